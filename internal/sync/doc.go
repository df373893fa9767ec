// Package sync keeps the local store and the shared remote document in step.
//
// Protocol
//
// The shared document is a full snapshot of the four collections stamped with
// a logical clock (lastUpdate, milliseconds). The coordinator runs two
// activities that never interleave:
//
//	publish  every Interval: export the local snapshot, stamp it with
//	         max(clock(), lastSyncClock+1) and publish it. On success the
//	         stamp becomes lastSyncClock.
//	import   for every remote version with lastUpdate > lastSyncClock:
//	         replace local state with the remote snapshot and adopt its
//	         clock. Versions that are not newer, including the echo of our
//	         own publish, are ignored.
//
// The result is last-writer-wins over whole snapshots: local writes that were
// not published before a newer remote document arrives are overwritten. A
// rejected remote document (for example one missing a collection) leaves the
// local data and the clock untouched.
//
// Usage
//
//	st, _ := store.Open("pincafe.db", nil)
//	box := transport.NewMailbox()
//	reg := notify.NewRegistry()
//	coord, _ := sync.New(st, box.Client(), reg, sync.DefaultConfig())
//	reg.AddListener(func(ev notify.Event) error {
//	    status := ev.Payload.(sync.Status)
//	    fmt.Println(status.IsOnline, status.PendingChangesCount)
//	    return nil
//	})
//	_ = coord.Start(ctx)
//	defer coord.Stop()
//
// Disabling sync with SetEnabled(false) stops the timer and the remote
// subscription; anything still in flight finishes without changing state or
// notifying listeners.
//
// Listeners are called with no coordinator lock held, so a listener may call
// SyncNow, Stop or SetEnabled.
package sync
