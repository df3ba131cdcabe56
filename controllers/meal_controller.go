package controllers

import (
	"errors"
	"strconv"
	"time"

	"backend/models"
	"backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func LogMeal(c *gin.Context) {
	var body struct {
		Type  string                     `json:"type" binding:"required"`
		AteAt time.Time                  `json:"ate_at" binding:"required"`
		Items []services.FoodItemRequest `json:"items"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidMealType(body.Type) {
		c.JSON(400, gin.H{"error": "invalid meal type"})
		return
	}

	mealSvc := services.NewMealService()
	meal, err := mealSvc.AddMeal(c.GetUint("userID"), body.Type, body.AteAt, body.Items)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(201, meal)
}

func ListMeals(c *gin.Context) {
	mealSvc := services.NewMealService()

	// optional ?from=...&to=... (RFC3339) range
	if fromStr, toStr := c.Query("from"), c.Query("to"); fromStr != "" && toStr != "" {
		from, err1 := time.Parse(time.RFC3339, fromStr)
		to, err2 := time.Parse(time.RFC3339, toStr)
		if err1 != nil || err2 != nil {
			c.JSON(400, gin.H{"error": "from/to must be RFC3339 timestamps"})
			return
		}
		meals, err := mealSvc.ListMealsByDateRange(c.GetUint("userID"), from, to)
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, meals)
		return
	}

	meals, err := mealSvc.ListMeals(c.GetUint("userID"))
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, meals)
}

func GetMeal(c *gin.Context) {
	mealID, ok := mealIDParam(c)
	if !ok {
		return
	}
	meal, err := services.NewMealService().GetMeal(c.GetUint("userID"), mealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(404, gin.H{"error": "meal not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, meal)
}

func DeleteMeal(c *gin.Context) {
	mealID, ok := mealIDParam(c)
	if !ok {
		return
	}
	if err := services.NewMealService().DeleteMeal(c.GetUint("userID"), mealID); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"message": "meal deleted"})
}

// ApplyMealEdits is the direct (non-chat) edit-batch API. Malformed batches
// are rejected here, before the applier ever runs.
func ApplyMealEdits(c *gin.Context) {
	mealID, ok := mealIDParam(c)
	if !ok {
		return
	}
	var body struct {
		Edits []models.Edit `json:"edits" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if err := services.ValidateEdits(body.Edits); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	meal, err := services.NewMealEditService().UpdateMealWithEdits(c.GetUint("userID"), mealID, body.Edits)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(404, gin.H{"error": "meal not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, meal)
}

func ListMealMessages(c *gin.Context) {
	mealID, ok := mealIDParam(c)
	if !ok {
		return
	}
	msgs, err := services.NewMealService().ListMessages(c.GetUint("userID"), mealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(404, gin.H{"error": "meal not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, msgs)
}

func mealIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid meal id"})
		return 0, false
	}
	return uint(id), true
}
