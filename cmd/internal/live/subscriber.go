package live

import "sync"

// Subscriber represents one connected websocket session.
//
// Send is never closed by the server so concurrent publishers cannot panic;
// done signals goroutines to stop and Close is idempotent.
type Subscriber struct {
	ID     string
	PostID int64
	Send   chan Message

	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber constructs a Subscriber with a bounded send queue.
func NewSubscriber(id string, postID int64, queue int) *Subscriber {
	if queue <= 0 {
		queue = defaultSendQueue
	}
	return &Subscriber{
		ID:     id,
		PostID: postID,
		Send:   make(chan Message, queue),
		done:   make(chan struct{}),
	}
}

// Done returns a channel that is closed when the subscriber is shutting down.
func (s *Subscriber) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Close signals the subscriber goroutines to stop.
func (s *Subscriber) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() { close(s.done) })
}
