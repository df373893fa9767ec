package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frankstormy/pincafe/internal/pos"
	"github.com/frankstormy/pincafe/internal/schema"
	"github.com/frankstormy/pincafe/internal/store"
	pcsync "github.com/frankstormy/pincafe/internal/sync"
	"github.com/frankstormy/pincafe/internal/transport"
)

func openTestApp(t *testing.T, dir string, box *transport.Mailbox, opts Options) *App {
	t.Helper()
	opts.DBPath = filepath.Join(dir, "pincafe.db")
	opts.Transport = box.Client()
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	a, err := Open(context.Background(), &opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// waitFor polls cond until it holds or a few seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOpen_DeviceIDPersists(t *testing.T) {
	dir := t.TempDir()
	box := transport.NewMailbox()

	a, err := Open(context.Background(), &Options{DBPath: filepath.Join(dir, "pincafe.db"), Transport: box.Client()})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	id := a.DeviceID()
	if id == "" {
		t.Fatal("DeviceID() is empty")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	b := openTestApp(t, dir, box, Options{})
	if b.DeviceID() != id {
		t.Errorf("DeviceID() after reopen = %q, want %q", b.DeviceID(), id)
	}
	if got := b.GetSyncStatus().DeviceID; got != id {
		t.Errorf("status device id = %q, want %q", got, id)
	}

	c := openTestApp(t, t.TempDir(), box, Options{DeviceID: "counter-2"})
	if c.DeviceID() != "counter-2" {
		t.Errorf("DeviceID() override = %q", c.DeviceID())
	}
}

func TestOpen_RequiresTransport(t *testing.T) {
	if _, err := Open(context.Background(), &Options{DBPath: filepath.Join(t.TempDir(), "x.db")}); err == nil {
		t.Error("Open() without transport succeeded")
	}
}

func TestCollections(t *testing.T) {
	ctx := context.Background()
	a := openTestApp(t, t.TempDir(), transport.NewMailbox(), Options{})

	if _, err := a.Add(ctx, &schema.Category{Name: "مشروبات"}); err != nil {
		t.Fatalf("Add(category) failed: %v", err)
	}
	if _, err := a.Add(ctx, &schema.Category{Name: "مشروبات"}); !errors.Is(err, pos.ErrDuplicate) {
		t.Errorf("Add(duplicate category) error = %v, want ErrDuplicate", err)
	}
	cola := &schema.Product{Name: "كولا", Price: 500, Category: "مشروبات"}
	if _, err := a.Add(ctx, cola); err != nil {
		t.Fatalf("Add(product) failed: %v", err)
	}

	cats, _ := a.store.Categories(ctx)
	if err := a.Remove(ctx, schema.Categories, cats[0].ID); !errors.Is(err, pos.ErrCategoryInUse) {
		t.Errorf("Remove(category in use) error = %v, want ErrCategoryInUse", err)
	}

	cats[0].Name = "مشروبات باردة"
	if err := a.Update(ctx, &cats[0]); err != nil {
		t.Fatalf("Update(category) failed: %v", err)
	}
	p, _ := a.store.Product(ctx, cola.ID)
	if p.Category != "مشروبات باردة" {
		t.Errorf("product category after rename = %q", p.Category)
	}

	txn := &schema.Transaction{Type: schema.Deposit, Amount: 100, Date: time.Now()}
	if _, err := a.Add(ctx, txn); err != nil {
		t.Fatalf("Add(transaction) failed: %v", err)
	}
	txn.Amount = 1
	if err := a.Update(ctx, txn); !errors.Is(err, schema.ErrValidation) {
		t.Errorf("Update(transaction) error = %v, want ErrValidation", err)
	}
	if err := a.Remove(ctx, schema.Transactions, txn.ID); !errors.Is(err, schema.ErrValidation) {
		t.Errorf("Remove(transaction) error = %v, want ErrValidation", err)
	}

	if err := a.Update(ctx, &schema.Product{ID: 99, Name: "x", Price: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}

	tableID, err := a.Add(ctx, &schema.Table{MergedWith: []int64{12345}})
	if err != nil {
		t.Fatalf("Add(table) failed: %v", err)
	}
	records, err := a.GetAll(ctx, schema.Tables)
	if err != nil || len(records) != 1 {
		t.Fatalf("GetAll(tables) = %d records, %v", len(records), err)
	}
	if tbl := records[0].(*schema.Table); len(tbl.MergedWith) != 0 {
		t.Errorf("added table mergedWith = %v, want empty", tbl.MergedWith)
	}
	if err := a.Remove(ctx, schema.Tables, tableID); err != nil {
		t.Errorf("Remove(table) failed: %v", err)
	}
	if err := a.Remove(ctx, schema.Products, 424242); err != nil {
		t.Errorf("Remove(missing product) error = %v, want nil", err)
	}
}

func TestStatusListener_SeesLocalChanges(t *testing.T) {
	ctx := context.Background()
	a := openTestApp(t, t.TempDir(), transport.NewMailbox(), Options{SyncEnabled: true})

	var last atomic.Int64
	unsubscribe := a.OnSyncStatusChange(func(s pcsync.Status) {
		last.Store(int64(s.PendingChangesCount))
	})
	defer unsubscribe()

	if _, err := a.POS().Deposit(ctx, 1000, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := a.POS().Withdraw(ctx, 200, ""); err != nil {
		t.Fatal(err)
	}
	if got := last.Load(); got != 2 {
		t.Errorf("listener saw %d pending changes, want 2", got)
	}

	if err := a.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow() failed: %v", err)
	}
	if got := a.GetSyncStatus().PendingChangesCount; got != 0 {
		t.Errorf("PendingChangesCount after sync = %d, want 0", got)
	}
	if got := last.Load(); got != 0 {
		t.Errorf("listener saw %d pending changes after sync, want 0", got)
	}
}

func TestStart_RespectsFlags(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	box := transport.NewMailbox()
	a := openTestApp(t, dir, box, Options{})

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if s := a.GetSyncStatus(); s.Running || s.Enabled {
		t.Errorf("status with both flags off = %+v", s)
	}
	if err := a.ForceSyncNow(ctx); !errors.Is(err, pcsync.ErrSyncDisabled) {
		t.Errorf("ForceSyncNow() error = %v, want ErrSyncDisabled", err)
	}

	if err := a.SetSyncEnabled(ctx, true); err != nil {
		t.Fatalf("SetSyncEnabled() failed: %v", err)
	}
	if !a.GetSyncStatus().Running {
		t.Error("enabling sync did not start the coordinator")
	}
	if err := a.SetAutoSyncEnabled(ctx, true); err != nil {
		t.Fatalf("SetAutoSyncEnabled() failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	b := openTestApp(t, dir, box, Options{})
	if !b.SyncEnabled() || !b.AutoSyncEnabled() {
		t.Fatalf("flags did not persist: enabled=%v auto=%v", b.SyncEnabled(), b.AutoSyncEnabled())
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !b.GetSyncStatus().Running {
		t.Error("Start() with both flags on did not run the coordinator")
	}

	if err := b.SetSyncEnabled(ctx, false); err != nil {
		t.Fatalf("SetSyncEnabled(false) failed: %v", err)
	}
	if s := b.GetSyncStatus(); s.Running || s.Enabled {
		t.Errorf("status after disabling = %+v", s)
	}
}

func TestTwoDevices(t *testing.T) {
	ctx := context.Background()
	box := transport.NewMailbox()
	var clock atomic.Int64
	clock.Store(1000)
	now := func() int64 { return clock.Add(1) }

	a := openTestApp(t, t.TempDir(), box, Options{SyncEnabled: true, AutoSync: true, Clock: now})
	b := openTestApp(t, t.TempDir(), box, Options{SyncEnabled: true, AutoSync: true, Clock: now})

	var imported atomic.Int32
	b.OnRemoteImport(func() { imported.Add(1) })

	for _, dev := range []*App{a, b} {
		if err := dev.Start(ctx); err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
	}

	if _, err := a.POS().SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.ForceSyncNow(ctx); err != nil {
		t.Fatalf("ForceSyncNow() failed: %v", err)
	}

	waitFor(t, "device b to import", func() bool {
		products, err := b.store.Products(ctx)
		return err == nil && len(products) == 6
	})
	waitFor(t, "import event", func() bool { return imported.Load() > 0 })

	if got := b.GetSyncStatus().PendingChangesCount; got != 0 {
		t.Errorf("device b pending changes after import = %d, want 0", got)
	}

	snapA, _ := a.ExportSnapshot(ctx)
	snapB, _ := b.ExportSnapshot(ctx)
	if len(snapA.Categories) != len(snapB.Categories) || snapA.Products[0].ID != snapB.Products[0].ID {
		t.Error("devices did not converge on the same records")
	}
}

func TestImportSnapshot(t *testing.T) {
	ctx := context.Background()
	a := openTestApp(t, t.TempDir(), transport.NewMailbox(), Options{})

	if _, err := a.POS().SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err := a.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot() failed: %v", err)
	}

	bad := *snap
	bad.Transactions = nil
	if err := a.ImportSnapshot(ctx, &bad); !errors.Is(err, schema.ErrImportRejected) {
		t.Errorf("ImportSnapshot() without transactions error = %v, want ErrImportRejected", err)
	}

	empty := schema.EmptySnapshot()
	if err := a.ImportSnapshot(ctx, empty); err != nil {
		t.Fatalf("ImportSnapshot() failed: %v", err)
	}
	products, _ := a.store.Products(ctx)
	if len(products) != 0 {
		t.Errorf("got %d products after importing an empty snapshot", len(products))
	}
}

func TestReset_KeepsDeviceAndFlags(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	box := transport.NewMailbox()
	a := openTestApp(t, dir, box, Options{})

	if _, err := a.POS().SeedDefaults(ctx); err != nil {
		t.Fatalf("SeedDefaults() failed: %v", err)
	}
	if err := a.SetSyncEnabled(ctx, true); err != nil {
		t.Fatalf("SetSyncEnabled() failed: %v", err)
	}
	id := a.DeviceID()

	if err := a.Reset(ctx); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	products, err := a.GetAll(ctx, schema.Products)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(products) != 0 {
		t.Errorf("%d products after reset", len(products))
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	b := openTestApp(t, dir, box, Options{})
	if b.DeviceID() != id {
		t.Errorf("device id after reset = %q, want %q", b.DeviceID(), id)
	}
	if !b.SyncEnabled() {
		t.Error("sync flag lost in reset")
	}
}

func TestStartSync_WithoutAutoStart(t *testing.T) {
	ctx := context.Background()
	a := openTestApp(t, t.TempDir(), transport.NewMailbox(), Options{})

	if err := a.StartSync(ctx); !errors.Is(err, pcsync.ErrSyncDisabled) {
		t.Errorf("StartSync() while disabled error = %v, want ErrSyncDisabled", err)
	}

	// Enabled but not running, as after a launch with auto-start off.
	if err := a.SetSyncEnabled(ctx, true); err != nil {
		t.Fatalf("SetSyncEnabled() failed: %v", err)
	}
	a.StopSync()
	if s := a.GetSyncStatus(); s.Running || !s.Enabled {
		t.Fatalf("status after StopSync = %+v", s)
	}
	if err := a.SetSyncEnabled(ctx, true); err != nil {
		t.Fatalf("SetSyncEnabled() failed: %v", err)
	}
	if a.GetSyncStatus().Running {
		t.Fatal("re-enabling an enabled flag started sync")
	}

	if err := a.StartSync(ctx); err != nil {
		t.Fatalf("StartSync() failed: %v", err)
	}
	if !a.GetSyncStatus().Running {
		t.Error("StartSync() did not run the coordinator")
	}
	if a.AutoSyncEnabled() {
		t.Error("StartSync() changed the auto-start flag")
	}
	if err := a.StartSync(ctx); err != nil {
		t.Errorf("second StartSync() failed: %v", err)
	}
}
