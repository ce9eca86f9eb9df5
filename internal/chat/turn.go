package chat

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one entry of the local transcript. Turns are append-only.
type Turn struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	MemoryMode bool      `json:"memory_mode"`
	SessionID  string    `json:"session_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
