package models

import "time"

const (
    PortionSmall  = "small"
    PortionMedium = "medium"
    PortionLarge  = "large"
)

// NormalizePortion maps anything outside the three portion sizes to medium.
// Generated directives occasionally invent values ("3つ", "half"); medium is
// the safe default.
func NormalizePortion(p string) string {
    switch p {
    case PortionSmall, PortionMedium, PortionLarge:
        return p
    }
    return PortionMedium
}

// One food item inside a meal. Keyed by an opaque uuid so chat directives
// can address items across turns.
type FoodItem struct {
    ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
    MealID    uint      `gorm:"index;not null" json:"-"`
    Name      string    `gorm:"not null" json:"name"`
    Portion   string    `json:"portion"` // small|medium|large
    Calories  int       `json:"calories"`
    Protein   float64   `json:"protein"`
    Fat       float64   `json:"fat"`
    Carbs     float64   `json:"carbs"`
    CreatedAt time.Time `json:"-"`
    UpdatedAt time.Time `json:"-"`
}
