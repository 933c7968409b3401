package live

import "sync"

// Topic is the subscriber set of one post.
//
// Join and Leave are safe under concurrent Broadcast, and Broadcast never
// blocks.
type Topic struct {
	PostID int64

	mu      sync.RWMutex
	members map[string]*Subscriber
}

func newTopic(postID int64) *Topic {
	return &Topic{PostID: postID, members: make(map[string]*Subscriber)}
}

func (t *Topic) join(s *Subscriber) {
	t.mu.Lock()
	t.members[s.ID] = s
	t.mu.Unlock()
}

// leave removes id and reports how many members remain.
func (t *Topic) leave(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.members, id)
	return len(t.members)
}

// Len returns the current member count.
func (t *Topic) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.members)
}

// Broadcast delivers m to every member that has room; the rest miss it.
// It returns how many were dropped.
func (t *Topic) Broadcast(m Message) (dropped int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, s := range t.members {
		select {
		case <-s.Done():
			continue
		default:
		}

		select {
		case s.Send <- m:
		default:
			dropped++
		}
	}
	return dropped
}
