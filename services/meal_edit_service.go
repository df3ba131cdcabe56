package services

import (
	"fmt"

	"backend/config"
	"backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MealEditService applies ordered edit batches to a meal. One batch is one
// deterministic transformation: edits run strictly in order, unknown targets
// are skipped, and totals are recomputed once at the end.
type MealEditService struct{}

func NewMealEditService() *MealEditService {
	return &MealEditService{}
}

// ValidateEdits rejects malformed batches before they reach ApplyEdits.
// Chat-extracted edits are shaped by the extractor and always pass; this is
// the boundary check for the direct edit API.
func ValidateEdits(edits []models.Edit) error {
	for i, e := range edits {
		switch e.Action {
		case models.EditActionAdd:
			if e.Food == nil || e.Food.Name == nil || *e.Food.Name == "" {
				return fmt.Errorf("edit %d: add requires food.name", i)
			}
		case models.EditActionUpdate:
			if e.FoodItemID == "" {
				return fmt.Errorf("edit %d: update requires foodItemId", i)
			}
			if e.Food == nil {
				return fmt.Errorf("edit %d: update requires food", i)
			}
		case models.EditActionRemove:
			if e.FoodItemID == "" {
				return fmt.Errorf("edit %d: remove requires foodItemId", i)
			}
		case models.EditActionSetDateTime:
			if e.RecordedAt == nil {
				return fmt.Errorf("edit %d: set_datetime requires recordedAt", i)
			}
		case models.EditActionSetMealType:
			if !models.ValidMealType(e.MealType) {
				return fmt.Errorf("edit %d: invalid meal type %q", i, e.MealType)
			}
		default:
			return fmt.Errorf("edit %d: unknown action %q", i, e.Action)
		}
	}
	return nil
}

// ApplyEdits applies the batch to the meal in memory and recomputes its
// totals. Update/Remove against an id that is not present are no-ops.
func (s *MealEditService) ApplyEdits(meal *models.Meal, edits []models.Edit) {
	for _, e := range edits {
		switch e.Action {
		case models.EditActionAdd:
			item := models.FoodItem{
				ID:      uuid.NewString(),
				MealID:  meal.ID,
				Portion: models.PortionMedium,
			}
			mergeFood(&item, e.Food)
			meal.Items = append(meal.Items, item)
		case models.EditActionUpdate:
			if i := itemIndex(meal.Items, e.FoodItemID); i >= 0 {
				mergeFood(&meal.Items[i], e.Food)
			}
		case models.EditActionRemove:
			if i := itemIndex(meal.Items, e.FoodItemID); i >= 0 {
				meal.Items = append(meal.Items[:i], meal.Items[i+1:]...)
			}
		case models.EditActionSetDateTime:
			if e.RecordedAt != nil {
				meal.AteAt = *e.RecordedAt
			}
		case models.EditActionSetMealType:
			meal.Type = e.MealType
		}
	}
	RecomputeTotals(meal)
}

// UpdateMealWithEdits validates the batch, applies it, and persists the
// result in one transaction. Items are rewritten wholesale, which keeps the
// stored rows identical to the in-memory outcome.
func (s *MealEditService) UpdateMealWithEdits(userID, mealID uint, edits []models.Edit) (*models.Meal, error) {
	if err := ValidateEdits(edits); err != nil {
		return nil, err
	}

	var meal models.Meal
	if err := config.DB.
		Preload("Items").
		Where("id = ? AND user_id = ?", mealID, userID).
		First(&meal).Error; err != nil {
		return nil, err
	}

	s.ApplyEdits(&meal, edits)

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("meal_id = ?", meal.ID).Delete(&models.FoodItem{}).Error; err != nil {
			return err
		}
		for i := range meal.Items {
			meal.Items[i].MealID = meal.ID
			if err := tx.Create(&meal.Items[i]).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Meal{}).Where("id = ?", meal.ID).Updates(map[string]interface{}{
			"type":           meal.Type,
			"ate_at":         meal.AteAt,
			"total_calories": meal.TotalCalories,
			"total_protein":  meal.TotalProtein,
			"total_fat":      meal.TotalFat,
			"total_carbs":    meal.TotalCarbs,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &meal, nil
}

func itemIndex(items []models.FoodItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func mergeFood(item *models.FoodItem, f *models.FoodPayload) {
	if f == nil {
		return
	}
	if f.Name != nil {
		item.Name = *f.Name
	}
	if f.Portion != nil {
		item.Portion = models.NormalizePortion(*f.Portion)
	}
	if f.Calories != nil {
		item.Calories = *f.Calories
	}
	if f.Protein != nil {
		item.Protein = *f.Protein
	}
	if f.Fat != nil {
		item.Fat = *f.Fat
	}
	if f.Carbs != nil {
		item.Carbs = *f.Carbs
	}
}
