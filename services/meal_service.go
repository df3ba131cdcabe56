package services

import (
	"math"
	"time"

	"backend/config"
	"backend/models"

	"github.com/google/uuid"
)

type MealService struct{}

func NewMealService() *MealService {
	return &MealService{}
}

// FoodItemRequest is one item of a directly logged meal.
type FoodItemRequest struct {
	Name     string  `json:"name" binding:"required"`
	Portion  string  `json:"portion"`
	Calories int     `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
}

func (s *MealService) AddMeal(
	userID uint,
	mealType string,
	ateAt time.Time,
	items []FoodItemRequest,
) (*models.Meal, error) {
	meal := &models.Meal{UserID: userID, Type: mealType, AteAt: ateAt}
	for _, it := range items {
		meal.Items = append(meal.Items, models.FoodItem{
			ID:       uuid.NewString(),
			Name:     it.Name,
			Portion:  models.NormalizePortion(it.Portion),
			Calories: it.Calories,
			Protein:  it.Protein,
			Fat:      it.Fat,
			Carbs:    it.Carbs,
		})
	}
	RecomputeTotals(meal)

	if err := config.DB.Create(meal).Error; err != nil {
		return nil, err
	}
	return s.GetMeal(userID, meal.ID)
}

func (s *MealService) GetMeal(userID, mealID uint) (*models.Meal, error) {
	var meal models.Meal
	err := config.DB.
		Preload("Items").
		Where("id = ? AND user_id = ?", mealID, userID).
		First(&meal).Error
	if err != nil {
		return nil, err // could be ErrRecordNotFound
	}
	return &meal, nil
}

func (s *MealService) ListMeals(userID uint) ([]models.Meal, error) {
	var meals []models.Meal
	err := config.DB.
		Preload("Items").
		Where("user_id = ?", userID).
		Order("ate_at DESC").
		Find(&meals).Error
	return meals, err
}

func (s *MealService) ListMealsByDateRange(userID uint, from, to time.Time) ([]models.Meal, error) {
	var meals []models.Meal
	err := config.DB.
		Preload("Items").
		Where("user_id = ? AND ate_at >= ? AND ate_at < ?", userID, from, to).
		Order("ate_at DESC").
		Find(&meals).Error
	return meals, err
}

func (s *MealService) DeleteMeal(userID, mealID uint) error {
	if err := config.DB.
		Where("meal_id = ?", mealID).
		Delete(&models.FoodItem{}).Error; err != nil {
		return err
	}
	if err := config.DB.
		Where("meal_id = ?", mealID).
		Delete(&models.ChatMessage{}).Error; err != nil {
		return err
	}
	return config.DB.
		Where("id = ? AND user_id = ?", mealID, userID).
		Delete(&models.Meal{}).Error
}

// ListMessages returns a meal's conversation in creation order.
func (s *MealService) ListMessages(userID, mealID uint) ([]models.ChatMessage, error) {
	if _, err := s.GetMeal(userID, mealID); err != nil {
		return nil, err
	}
	var msgs []models.ChatMessage
	err := config.DB.
		Where("meal_id = ?", mealID).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}

// RecomputeTotals sums the current items once and writes the stored totals.
// Calories are an exact integer sum; protein/fat/carbs are summed raw and
// rounded to one decimal on the aggregate, so repeated fractional edits do
// not accumulate rounding drift.
func RecomputeTotals(meal *models.Meal) {
	var calories int
	var protein, fat, carbs float64
	for _, it := range meal.Items {
		calories += it.Calories
		protein += it.Protein
		fat += it.Fat
		carbs += it.Carbs
	}
	meal.TotalCalories = calories
	meal.TotalProtein = roundTenth(protein)
	meal.TotalFat = roundTenth(fat)
	meal.TotalCarbs = roundTenth(carbs)
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
