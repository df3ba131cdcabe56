package models

import "gorm.io/gorm"

// One row per chat turn, written after the assistant message is persisted.
type UsageRecord struct {
	gorm.Model
	UserID           uint `gorm:"index;not null"`
	MealID           uint
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
