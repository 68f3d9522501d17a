package session

import "time"

const DefaultHistoryLimit = 5

// Key identifies one conversation: a participant inside a channel.
type Key struct {
	ParticipantID string
	ChannelID     string
}

func (k Key) String() string {
	return k.ParticipantID + "@" + k.ChannelID
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single utterance in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// History is the bounded, ordered list of turns for one key.
type History struct {
	turns []Turn
	limit int
}

func newHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// append adds a turn and drops the oldest ones past the limit. A turn stamped
// before the current last activity is clamped to it.
func (h *History) append(t Turn) {
	if n := len(h.turns); n > 0 && t.CreatedAt.Before(h.turns[n-1].CreatedAt) {
		t.CreatedAt = h.turns[n-1].CreatedAt
	}
	h.turns = append(h.turns, t)
	if over := len(h.turns) - h.limit; over > 0 {
		kept := make([]Turn, h.limit)
		copy(kept, h.turns[over:])
		h.turns = kept
	}
}

func (h *History) Len() int {
	return len(h.turns)
}

// Turns returns a copy of the turns, oldest first.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// LastActivity is the timestamp of the newest turn, or the zero time.
func (h *History) LastActivity() time.Time {
	if len(h.turns) == 0 {
		return time.Time{}
	}
	return h.turns[len(h.turns)-1].CreatedAt
}

func (h *History) clone() *History {
	return &History{turns: h.Turns(), limit: h.limit}
}
