package models

import (
    "time"

    "gorm.io/gorm"
)

const (
    MealTypeBreakfast = "breakfast"
    MealTypeLunch     = "lunch"
    MealTypeDinner    = "dinner"
    MealTypeSnack     = "snack"
)

// ValidMealType reports whether t is one of the four meal types.
func ValidMealType(t string) bool {
    switch t {
    case MealTypeBreakfast, MealTypeLunch, MealTypeDinner, MealTypeSnack:
        return true
    }
    return false
}

// One Meal (breakfast/lunch/…)
type Meal struct {
    gorm.Model
    UserID   uint      `gorm:"index;not null"` // FK → users.id
    Type     string    // breakfast|lunch|dinner|snack
    AteAt    time.Time // timestamp of the meal
    PhotoURL string
    Items    []FoodItem `gorm:"foreignKey:MealID"`

    // Nutrition totals over Items. Never written directly; always
    // recomputed from the current items in one pass.
    TotalCalories int
    TotalProtein  float64
    TotalFat      float64
    TotalCarbs    float64
}
