package domain

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

// History is the append-only turn log of a single session.
type History struct {
	turns []ConversationTurn
}

func NewHistory(turns ...ConversationTurn) *History {
	h := &History{}
	for _, turn := range turns {
		h.append(turn.Role, turn.Text, turn.CreatedAt)
	}
	return h
}

func (h *History) AddUser(text string) ConversationTurn {
	return h.append(RoleUser, text, time.Now().UTC())
}

func (h *History) AddAssistant(text string) ConversationTurn {
	return h.append(RoleAssistant, text, time.Now().UTC())
}

func (h *History) append(role Role, text string, at time.Time) ConversationTurn {
	turn := ConversationTurn{
		Role:      role,
		Text:      text,
		Order:     len(h.turns) + 1,
		CreatedAt: at,
	}
	h.turns = append(h.turns, turn)
	return turn
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.turns)
}

// Turns returns a copy so callers cannot rewrite past turns.
func (h *History) Turns() []ConversationTurn {
	if h == nil {
		return nil
	}
	out := make([]ConversationTurn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Recent returns up to n of the latest turns in chronological order.
func (h *History) Recent(n int) []ConversationTurn {
	if h == nil || n <= 0 {
		return nil
	}
	start := len(h.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]ConversationTurn, len(h.turns)-start)
	copy(out, h.turns[start:])
	return out
}

// Since returns the turns appended after the first n.
func (h *History) Since(n int) []ConversationTurn {
	if h == nil || n >= len(h.turns) {
		return nil
	}
	if n < 0 {
		n = 0
	}
	out := make([]ConversationTurn, len(h.turns)-n)
	copy(out, h.turns[n:])
	return out
}

func (h *History) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.turns)
}

func (h *History) UnmarshalJSON(data []byte) error {
	var turns []ConversationTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return err
	}
	h.turns = turns
	return nil
}
