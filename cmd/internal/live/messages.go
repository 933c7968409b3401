package live

import "time"

// Message types sent to subscribers.
const (
	TypeSnapshot = "snapshot"
	TypeVotes    = "votes"
	TypeError    = "error"
)

// Message is the only frame shape the server writes.
type Message struct {
	Type   string    `json:"type"`
	PostID int64     `json:"post_id,omitempty"`
	Votes  int64     `json:"votes"`
	TS     time.Time `json:"ts"`

	Code string `json:"code,omitempty"`
}
