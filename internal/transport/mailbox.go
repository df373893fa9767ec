package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/frankstormy/pincafe/internal/schema"
)

// Mailbox is an in-memory shared document. Clients created with Client act as
// the devices connected to it.
type Mailbox struct {
	mu        sync.Mutex
	online    bool
	data      []byte
	publishes int
	clients   map[*MailboxClient]struct{}
}

// NewMailbox returns an empty, reachable mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		online:  true,
		clients: make(map[*MailboxClient]struct{}),
	}
}

// Client returns a new transport connected to the mailbox.
func (m *Mailbox) Client() *MailboxClient {
	c := &MailboxClient{box: m, online: true}
	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()
	return c
}

// SetOnline simulates an outage of the whole mailbox. Coming back online
// hands the current document to every reachable subscriber.
func (m *Mailbox) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wasOnline := m.online
	m.online = online
	if online && !wasOnline {
		for c := range m.clients {
			c.deliverLocked()
		}
	}
}

// Document returns a copy of the current document, or nil when nothing was
// published yet.
func (m *Mailbox) Document() *schema.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	doc, err := schema.DecodeDocument(m.data)
	if err != nil {
		return nil
	}
	return doc
}

// Publishes returns the number of accepted publishes.
func (m *Mailbox) Publishes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishes
}

// MailboxClient is one device's view of a Mailbox.
type MailboxClient struct {
	box  *Mailbox
	subs subscriberSet

	// online is guarded by box.mu.
	online bool
	closed bool
}

// SetOnline simulates this device losing or regaining connectivity.
func (c *MailboxClient) SetOnline(online bool) {
	c.box.mu.Lock()
	defer c.box.mu.Unlock()
	wasOnline := c.online
	c.online = online
	if online && !wasOnline {
		c.deliverLocked()
	}
}

// reachableLocked requires box.mu.
func (c *MailboxClient) reachableLocked() bool {
	return c.box.online && c.online && !c.closed
}

// deliverLocked offers the current document to every subscriber of c.
// The caller holds box.mu.
func (c *MailboxClient) deliverLocked() {
	if !c.reachableLocked() || c.box.data == nil {
		return
	}
	data := c.box.data
	c.subs.each(func(s *subscriber) {
		if doc, err := schema.DecodeDocument(data); err == nil {
			s.offer(doc)
		}
	})
}

func (c *MailboxClient) Publish(ctx context.Context, doc *schema.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrRejected)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	m := c.box
	m.mu.Lock()
	defer m.mu.Unlock()

	if !c.reachableLocked() {
		return fmt.Errorf("%w: mailbox offline", ErrTransportUnreachable)
	}
	m.data = data
	m.publishes++
	for other := range m.clients {
		other.deliverLocked()
	}
	return nil
}

func (c *MailboxClient) Subscribe(ctx context.Context, fn func(*schema.Document)) (func(), error) {
	sub := newSubscriber(fn)
	if !c.subs.add(sub) {
		sub.stop()
		return nil, fmt.Errorf("%w: transport closed", ErrTransportUnreachable)
	}
	unsubscribe := func() { c.subs.remove(sub) }

	c.box.mu.Lock()
	if c.reachableLocked() && c.box.data != nil {
		if doc, err := schema.DecodeDocument(c.box.data); err == nil {
			sub.offer(doc)
		}
	}
	c.box.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()
	return unsubscribe, nil
}

// Close detaches the client from the mailbox.
func (c *MailboxClient) Close() error {
	c.box.mu.Lock()
	c.closed = true
	delete(c.box.clients, c)
	c.box.mu.Unlock()
	c.subs.closeAll()
	return nil
}
