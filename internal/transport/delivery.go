package transport

import (
	"sync"

	"github.com/frankstormy/pincafe/internal/schema"
)

// subscriber delivers documents to one callback. Offers never block: a new
// document replaces one that has not been handed over yet.
type subscriber struct {
	fn func(*schema.Document)

	mu      sync.Mutex
	pending *schema.Document

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscriber(fn func(*schema.Document)) *subscriber {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) offer(doc *schema.Document) {
	s.mu.Lock()
	s.pending = doc
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		doc := s.pending
		s.pending = nil
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		default:
		}
		if doc != nil {
			s.fn(doc)
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// subscriberSet tracks the subscriptions of one transport client.
type subscriberSet struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func (ss *subscriberSet) add(s *subscriber) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.closed {
		return false
	}
	if ss.subs == nil {
		ss.subs = make(map[*subscriber]struct{})
	}
	ss.subs[s] = struct{}{}
	return true
}

func (ss *subscriberSet) remove(s *subscriber) {
	ss.mu.Lock()
	delete(ss.subs, s)
	ss.mu.Unlock()
	s.stop()
}

func (ss *subscriberSet) each(fn func(*subscriber)) {
	ss.mu.Lock()
	list := make([]*subscriber, 0, len(ss.subs))
	for s := range ss.subs {
		list = append(list, s)
	}
	ss.mu.Unlock()
	for _, s := range list {
		fn(s)
	}
}

// closeAll stops every subscriber and refuses new ones.
func (ss *subscriberSet) closeAll() {
	ss.mu.Lock()
	ss.closed = true
	subs := ss.subs
	ss.subs = nil
	ss.mu.Unlock()
	for s := range subs {
		s.stop()
	}
}
