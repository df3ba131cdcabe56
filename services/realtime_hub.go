package services

import (
	"encoding/json"
	"sync"

	"backend/models"

	"github.com/gorilla/websocket"
)

type WSClient struct {
	UserID uint
	Conn   *websocket.Conn
}

// MealUpdateEvent is pushed to all of a user's open connections after a chat
// turn (or a direct edit batch) changes a meal.
type MealUpdateEvent struct {
	Kind          string  `json:"kind"` // "meal.updated"
	MealID        uint    `json:"meal_id"`
	MealType      string  `json:"meal_type"`
	TotalCalories int     `json:"total_calories"`
	TotalProtein  float64 `json:"total_protein"`
	TotalFat      float64 `json:"total_fat"`
	TotalCarbs    float64 `json:"total_carbs"`
}

// RealtimeHub fans meal updates out to a user's connected clients, so a
// second device sees edits the chat applied on the first.
type RealtimeHub struct {
	mu      sync.RWMutex
	clients map[uint]map[*WSClient]struct{}
}

func NewRealtimeHub() *RealtimeHub {
	return &RealtimeHub{clients: make(map[uint]map[*WSClient]struct{})}
}

func (h *RealtimeHub) Register(c *WSClient) {
	h.mu.Lock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*WSClient]struct{})
	}
	h.clients[c.UserID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *RealtimeHub) Unregister(c *WSClient) {
	h.mu.Lock()
	if set := h.clients[c.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()
	_ = c.Conn.Close()
}

// BroadcastMealUpdate pushes the meal's current type and totals to every
// connection the owning user has open. Write failures are ignored; the read
// loop unregisters dead connections.
func (h *RealtimeHub) BroadcastMealUpdate(meal *models.Meal) {
	msg, _ := json.Marshal(MealUpdateEvent{
		Kind:          "meal.updated",
		MealID:        meal.ID,
		MealType:      meal.Type,
		TotalCalories: meal.TotalCalories,
		TotalProtein:  meal.TotalProtein,
		TotalFat:      meal.TotalFat,
		TotalCarbs:    meal.TotalCarbs,
	})
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[meal.UserID] {
		_ = c.Conn.WriteMessage(websocket.TextMessage, msg)
	}
}
