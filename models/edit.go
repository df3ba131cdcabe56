package models

import "time"

type EditAction string

const (
	EditActionAdd         EditAction = "add"
	EditActionUpdate      EditAction = "update"
	EditActionRemove      EditAction = "remove"
	EditActionSetDateTime EditAction = "set_datetime"
	EditActionSetMealType EditAction = "set_meal_type"
)

// FoodPayload carries the food fields of an add or update edit. Pointer
// fields distinguish "not supplied" from a zero value on partial updates.
type FoodPayload struct {
	Name     *string  `json:"name,omitempty"`
	Portion  *string  `json:"portion,omitempty"`
	Calories *int     `json:"calories,omitempty"`
	Protein  *float64 `json:"protein,omitempty"`
	Fat      *float64 `json:"fat,omitempty"`
	Carbs    *float64 `json:"carbs,omitempty"`
}

// Edit is one requested mutation of a meal. Action selects the variant;
// only that variant's fields are meaningful:
//
//	add           → Food (Name required)
//	update        → FoodItemID + Food (supplied fields only)
//	remove        → FoodItemID
//	set_datetime  → RecordedAt
//	set_meal_type → MealType
//
// The json keys match the directive wire format embedded in generated text.
type Edit struct {
	Action     EditAction   `json:"action"`
	Food       *FoodPayload `json:"food,omitempty"`
	FoodItemID string       `json:"foodItemId,omitempty"`
	RecordedAt *time.Time   `json:"recordedAt,omitempty"`
	MealType   string       `json:"mealType,omitempty"`
}
