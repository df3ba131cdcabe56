package controllers

import (
	"errors"
	"net/http"
	"strings"

	"backend/config"
	"backend/models"
	"backend/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ChatController struct {
	RT *services.RealtimeHub
}

func NewChatController(rt *services.RealtimeHub) *ChatController {
	return &ChatController{RT: rt}
}

var chatUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // tighten behind ALB/CloudFront if needed
}

// MealChatWS runs a meal-refinement conversation over one websocket.
// Client frames: {"message": "..."}. For each message the server replies
// with the turn's event stream: zero or more {"text": ...} frames, then one
// {"done": true, "message_id": ..., "changes": [...]} or {"error": ...}.
// Edits from a completed turn are applied to the meal before the next
// message is read, and the new totals are broadcast to the user's other
// connections.
func (cc *ChatController) MealChatWS(c *gin.Context) {
	userID := c.GetUint("userID")
	mealID, ok := mealIDParam(c)
	if !ok {
		return
	}

	var user models.User
	if err := config.DB.First(&user, userID).Error; err != nil {
		c.JSON(401, gin.H{"error": "user not found"})
		return
	}

	mealSvc := services.NewMealService()
	meal, err := mealSvc.GetMeal(userID, mealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(404, gin.H{"error": "meal not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	conn, err := chatUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	chatSvc := services.NewDefaultChatService()
	editSvc := services.NewMealEditService()
	usageSvc := services.NewUsageService()

	for {
		var in struct {
			Message string `json:"message"`
		}
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if strings.TrimSpace(in.Message) == "" {
			_ = conn.WriteJSON(services.ChatEvent{Error: "empty message"})
			continue
		}

		// quota gate runs before the turn touches anything
		if err := usageSvc.CheckDailyLimit(&user); err != nil {
			_ = conn.WriteJSON(services.ChatEvent{Error: err.Error()})
			continue
		}

		events, err := chatSvc.RefineMeal(c.Request.Context(), meal, in.Message)
		if err != nil {
			_ = conn.WriteJSON(services.ChatEvent{Error: err.Error()})
			continue
		}

		writable := true
		for ev := range events {
			if writable {
				if err := conn.WriteJSON(ev); err != nil {
					// keep draining so the turn still finalizes
					writable = false
				}
			}
			if ev.Done && len(ev.Changes) > 0 {
				updated, err := editSvc.UpdateMealWithEdits(userID, meal.ID, ev.Changes)
				if err != nil {
					config.Log.Error("apply chat edits",
						zap.Uint("meal_id", meal.ID), zap.Error(err))
					continue
				}
				meal = updated // next turn's prompt sees the new items
				cc.RT.BroadcastMealUpdate(updated)
			}
		}
		if !writable {
			return
		}
	}
}
