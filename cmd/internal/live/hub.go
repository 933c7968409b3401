package live

import (
	"log/slog"
	"sync"
	"time"
)

// Gauge tracks connected subscribers. *metrics.Metrics satisfies it.
type Gauge interface {
	LiveSubscribers(delta int)
}

// Hub owns the per-post topics. It implements vote.Notifier.
type Hub struct {
	log   *slog.Logger
	gauge Gauge

	mu     sync.Mutex
	topics map[int64]*Topic
}

// NewHub constructs a Hub. gauge may be nil.
func NewHub(log *slog.Logger, gauge Gauge) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:    log,
		gauge:  gauge,
		topics: make(map[int64]*Topic),
	}
}

// Subscribe adds s to the topic of s.PostID.
func (h *Hub) Subscribe(s *Subscriber) {
	if s == nil || s.ID == "" {
		return
	}

	h.mu.Lock()
	t := h.topics[s.PostID]
	if t == nil {
		t = newTopic(s.PostID)
		h.topics[s.PostID] = t
	}
	t.join(s)
	h.mu.Unlock()

	if h.gauge != nil {
		h.gauge.LiveSubscribers(1)
	}
	h.log.Debug("live.subscribe", "post_id", s.PostID, "subscriber_id", s.ID)
}

// Unsubscribe removes s and signals it to stop. Empty topics are dropped.
// Membership is removed before Close so a publisher never races teardown.
func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}

	removed := false
	h.mu.Lock()
	if t := h.topics[s.PostID]; t != nil {
		before := t.Len()
		if t.leave(s.ID) == 0 {
			delete(h.topics, s.PostID)
		}
		removed = before > t.Len()
	}
	h.mu.Unlock()

	s.Close()

	if removed && h.gauge != nil {
		h.gauge.LiveSubscribers(-1)
	}
	h.log.Debug("live.unsubscribe", "post_id", s.PostID, "subscriber_id", s.ID)
}

// PublishVotes fans the new total out to the post's subscribers.
func (h *Hub) PublishVotes(postID, votes int64) {
	h.mu.Lock()
	t := h.topics[postID]
	h.mu.Unlock()

	if t == nil {
		return
	}

	if dropped := t.Broadcast(Message{
		Type:   TypeVotes,
		PostID: postID,
		Votes:  votes,
		TS:     time.Now().UTC(),
	}); dropped > 0 {
		h.log.Debug("live.publish.dropped", "post_id", postID, "dropped", dropped)
	}
}

// Subscribers returns the number of subscribers on a post.
func (h *Hub) Subscribers(postID int64) int {
	h.mu.Lock()
	t := h.topics[postID]
	h.mu.Unlock()

	if t == nil {
		return 0
	}
	return t.Len()
}
