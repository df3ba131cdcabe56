package services

import (
	"errors"
	"os"
	"strconv"
	"time"

	"backend/config"
	"backend/models"
)

// ErrDailyLimitReached gates a turn before any generation starts.
var ErrDailyLimitReached = errors.New("daily chat limit reached")

type UsageService struct{}

func NewUsageService() *UsageService {
	return &UsageService{}
}

// RecordUsage writes one accounting row for a completed turn.
func (s *UsageService) RecordUsage(userID, mealID uint, u TokenUsage) error {
	rec := &models.UsageRecord{
		UserID:           userID,
		MealID:           mealID,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	return config.DB.Create(rec).Error
}

// DayWindow returns the half-open [from, to) range covering "today" in the
// given IANA timezone. Unknown or empty zones fall back to UTC.
func DayWindow(tz string, now time.Time) (time.Time, time.Time) {
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	local := now.In(loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return from, from.Add(24 * time.Hour)
}

// TurnsToday counts chat turns the user already ran in their local day.
func (s *UsageService) TurnsToday(userID uint, tz string) (int64, error) {
	from, to := DayWindow(tz, time.Now())
	var n int64
	err := config.DB.
		Model(&models.UsageRecord{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to).
		Count(&n).Error
	return n, err
}

// CheckDailyLimit reports whether the user may start another turn today.
// CHAT_DAILY_LIMIT <= 0 disables the gate.
func (s *UsageService) CheckDailyLimit(user *models.User) error {
	limit := 50
	if v := os.Getenv("CHAT_DAILY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit <= 0 {
		return nil
	}
	n, err := s.TurnsToday(user.ID, user.Timezone)
	if err != nil {
		return err
	}
	if n >= int64(limit) {
		return ErrDailyLimitReached
	}
	return nil
}
