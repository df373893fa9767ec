// Package transport moves the shared sync document between devices.
//
// The document is a single last-writer-wins value: Publish overwrites it as a
// whole and every subscriber, the publisher's own included, is handed the new
// value. Nothing is queued while the transport is unreachable; the next
// successful publish carries the full state anyway.
//
// Two implementations are provided. Mailbox keeps the document in memory and
// connects any number of clients in one process, which is what the tests and
// single-machine setups use. WSClient talks to a relay server over HTTP for
// publishing and a websocket for change notifications.
package transport

import (
	"context"
	"errors"

	"github.com/frankstormy/pincafe/internal/schema"
)

var (
	// ErrTransportUnreachable is returned when the shared document cannot be
	// reached. Publishing may be retried on the next interval.
	ErrTransportUnreachable = errors.New("transport unreachable")

	// ErrRejected is returned when the other end refused the document.
	ErrRejected = errors.New("document rejected")
)

// Transport publishes the local document and reports remote changes.
type Transport interface {
	// Publish replaces the shared document with doc.
	Publish(ctx context.Context, doc *schema.Document) error

	// Subscribe calls fn with the current document, if there is one, and then
	// with every later version. Calls happen on a separate goroutine, one at a
	// time; when fn is slow only the newest pending version is delivered.
	// The subscription ends when ctx is done or unsubscribe is called.
	Subscribe(ctx context.Context, fn func(*schema.Document)) (unsubscribe func(), err error)

	// Close ends every subscription made through this transport.
	Close() error
}

// IsRetryable reports whether err is a connectivity failure that may clear up
// by itself.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransportUnreachable)
}
