package services

import (
	"errors"

	"backend/config"
	"backend/models"
)

type ProfileInput struct {
	FullName string `json:"full_name"`
	Timezone string `json:"timezone"`
}

func GetUserProfile(email string) (map[string]interface{}, error) {
	var user models.User
	if err := config.DB.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, errors.New("user not found")
	}

	return map[string]interface{}{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"timezone":  user.Timezone,
	}, nil
}

func UpdateUserProfile(email string, input ProfileInput) error {
	var user models.User
	if err := config.DB.Where("email = ?", email).First(&user).Error; err != nil {
		return errors.New("user not found")
	}

	if input.FullName != "" {
		user.FullName = input.FullName
	}
	if input.Timezone != "" {
		user.Timezone = input.Timezone
	}

	return config.DB.Save(&user).Error
}

func FindUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := config.DB.First(&user, "email = ?", email).Error; err != nil {
		return nil, errors.New("user not found")
	}
	return &user, nil
}
