package controllers

import (
	"errors"

	"backend/config"
	"backend/services"
	"backend/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UploadMealPhoto attaches a photo to an existing meal. The image arrives as
// a base64 data URI and is stored on S3.
func UploadMealPhoto(c *gin.Context) {
	mealID, ok := mealIDParam(c)
	if !ok {
		return
	}
	var body struct {
		Image string `json:"image" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
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

	url, err := utils.UploadMealPhoto(body.Image, meal.ID)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	if err := config.DB.Model(meal).Update("photo_url", url).Error; err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"photo_url": url})
}
