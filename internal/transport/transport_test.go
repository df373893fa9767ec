package transport

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/frankstormy/pincafe/internal/relay"
	"github.com/frankstormy/pincafe/internal/schema"
)

// recorder collects delivered clocks.
type recorder struct {
	mu     sync.Mutex
	clocks []int64
	seen   chan int64
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan int64, 64)}
}

func (r *recorder) fn(doc *schema.Document) {
	r.mu.Lock()
	r.clocks = append(r.clocks, doc.LastUpdate)
	r.mu.Unlock()
	r.seen <- doc.LastUpdate
}

// waitClock blocks until a document with clock want was delivered.
func (r *recorder) waitClock(t *testing.T, want int64) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-r.seen:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("document with lastUpdate %d not delivered", want)
		}
	}
}

func doc(clock int64) *schema.Document {
	return &schema.Document{Snapshot: *schema.EmptySnapshot(), LastUpdate: clock}
}

func TestMailbox_PublishReachesAllSubscribers(t *testing.T) {
	box := NewMailbox()
	a, b := box.Client(), box.Client()
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	ra, rb := newRecorder(), newRecorder()
	if _, err := a.Subscribe(ctx, ra.fn); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	if _, err := b.Subscribe(ctx, rb.fn); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	if err := a.Publish(ctx, doc(5)); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	ra.waitClock(t, 5)
	rb.waitClock(t, 5)

	if box.Publishes() != 1 || box.Document().LastUpdate != 5 {
		t.Errorf("mailbox = %d publishes, clock %d", box.Publishes(), box.Document().LastUpdate)
	}
}

func TestMailbox_SubscribeDeliversCurrent(t *testing.T) {
	box := NewMailbox()
	a := box.Client()
	defer a.Close()

	ctx := context.Background()
	if err := a.Publish(ctx, doc(3)); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	b := box.Client()
	defer b.Close()
	r := newRecorder()
	if _, err := b.Subscribe(ctx, r.fn); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	r.waitClock(t, 3)
}

func TestMailbox_Offline(t *testing.T) {
	box := NewMailbox()
	a, b := box.Client(), box.Client()
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	rb := newRecorder()
	_, _ = b.Subscribe(ctx, rb.fn)

	a.SetOnline(false)
	err := a.Publish(ctx, doc(1))
	if !errors.Is(err, ErrTransportUnreachable) || !IsRetryable(err) {
		t.Fatalf("Publish() while offline error = %v, want ErrTransportUnreachable", err)
	}
	if box.Document() != nil {
		t.Error("offline publish reached the mailbox")
	}

	b.SetOnline(false)
	a.SetOnline(true)
	if err := a.Publish(ctx, doc(2)); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	b.SetOnline(true)
	rb.waitClock(t, 2)

	box.SetOnline(false)
	if err := b.Publish(ctx, doc(3)); !errors.Is(err, ErrTransportUnreachable) {
		t.Errorf("Publish() during outage error = %v", err)
	}
}

func TestMailbox_Unsubscribe(t *testing.T) {
	box := NewMailbox()
	a := box.Client()
	defer a.Close()

	ctx := context.Background()
	r := newRecorder()
	unsubscribe, err := a.Subscribe(ctx, r.fn)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	unsubscribe()
	unsubscribe()

	_ = a.Publish(ctx, doc(9))
	select {
	case got := <-r.seen:
		t.Errorf("unsubscribed callback received clock %d", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMailbox_ClosedClient(t *testing.T) {
	box := NewMailbox()
	a := box.Client()
	_ = a.Close()

	if err := a.Publish(context.Background(), doc(1)); !errors.Is(err, ErrTransportUnreachable) {
		t.Errorf("Publish() after Close error = %v", err)
	}
	if _, err := a.Subscribe(context.Background(), func(*schema.Document) {}); !errors.Is(err, ErrTransportUnreachable) {
		t.Errorf("Subscribe() after Close error = %v", err)
	}
}

func TestSubscriber_Coalesces(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var got []int64
	done := make(chan struct{}, 8)

	s := newSubscriber(func(d *schema.Document) {
		if d.LastUpdate == 1 {
			<-release
		}
		mu.Lock()
		got = append(got, d.LastUpdate)
		mu.Unlock()
		done <- struct{}{}
	})
	defer s.stop()

	s.offer(doc(1))
	// Give the first document time to be picked up so the callback blocks.
	time.Sleep(50 * time.Millisecond)
	s.offer(doc(2))
	s.offer(doc(3))
	close(release)

	<-done
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("delivered %v, want [1 3]", got)
	}
}

func startRelay(t *testing.T) *relay.Server {
	t.Helper()
	server, err := relay.NewServer(&relay.Config{
		Addr:   "127.0.0.1:0",
		DBPath: filepath.Join(t.TempDir(), "relay.db"),
	})
	if err != nil {
		t.Fatalf("relay.NewServer() failed: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("relay Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func TestWSClient_PublishSubscribe(t *testing.T) {
	server := startRelay(t)
	base := "http://" + server.GetAddr()

	a, err := NewWSClient(WSConfig{BaseURL: base, Tenant: "cafe"})
	if err != nil {
		t.Fatalf("NewWSClient() failed: %v", err)
	}
	defer a.Close()
	b, err := NewWSClient(WSConfig{BaseURL: base, Tenant: "cafe", MinBackoff: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWSClient() failed: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Publish(ctx, doc(4)); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	r := newRecorder()
	if _, err := b.Subscribe(ctx, r.fn); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	r.waitClock(t, 4)

	if err := a.Publish(ctx, doc(8)); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	r.waitClock(t, 8)
}

func TestWSClient_Unreachable(t *testing.T) {
	c, err := NewWSClient(WSConfig{BaseURL: "http://127.0.0.1:1", Tenant: "cafe"})
	if err != nil {
		t.Fatalf("NewWSClient() failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Publish(ctx, doc(1)); !errors.Is(err, ErrTransportUnreachable) {
		t.Errorf("Publish() error = %v, want ErrTransportUnreachable", err)
	}
}

func TestNewWSClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  WSConfig
	}{
		{"bad scheme", WSConfig{BaseURL: "ftp://relay", Tenant: "cafe"}},
		{"no tenant", WSConfig{BaseURL: "http://relay"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWSClient(tt.cfg); err == nil {
				t.Error("NewWSClient() accepted invalid config")
			}
		})
	}
}
