package routes

import (
    "backend/controllers"
    "backend/middlewares"
    "backend/services"

    "github.com/gin-gonic/gin"
)

func SetupRouter() *gin.Engine {
    r := gin.Default()

    hub := services.NewRealtimeHub()
    chatCtl := controllers.NewChatController(hub)
    rtCtl := controllers.NewRealtimeController(hub)

    // Public auth routes
    auth := r.Group("/auth")
    {
        auth.POST("/register", controllers.Register)
        auth.POST("/login", controllers.Login)
    }

    // Protected user routes
    user := r.Group("/user")
    user.Use(middlewares.AuthMiddleware())
    {
        user.GET("/profile", controllers.GetProfile)
        user.PUT("/profile", controllers.UpdateProfile)
    }

    // Meals and the refinement chat
    meals := r.Group("/meals")
    meals.Use(middlewares.AuthMiddleware())
    {
        meals.POST("", controllers.LogMeal)
        meals.GET("", controllers.ListMeals)
        meals.GET("/:id", controllers.GetMeal)
        meals.DELETE("/:id", controllers.DeleteMeal)
        meals.POST("/:id/edits", controllers.ApplyMealEdits)
        meals.GET("/:id/messages", controllers.ListMealMessages)
        meals.POST("/:id/photo", controllers.UploadMealPhoto)
        meals.GET("/:id/chat", chatCtl.MealChatWS)
    }

    // Realtime meal updates
    ws := r.Group("/ws")
    ws.Use(middlewares.AuthMiddleware())
    {
        ws.GET("/meals", rtCtl.MealUpdatesWS)
    }

    return r
}
