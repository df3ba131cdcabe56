package models

import (
	"encoding/json"

	"gorm.io/gorm"
)

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one message in a meal's refinement conversation.
// Rows are immutable once created; created_at is the conversation order.
type ChatMessage struct {
	gorm.Model
	MealID  uint     `gorm:"index;not null" json:"meal_id"`
	Role    ChatRole `gorm:"type:varchar(16);not null" json:"role"`
	Content string   `gorm:"type:text" json:"content"` // display text, directive-free

	// Edits extracted from this assistant message, JSON-encoded. Null for
	// user messages and for assistant messages that produced no edits.
	AppliedChanges json.RawMessage `gorm:"type:jsonb" json:"applied_changes,omitempty"`
}
