package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/usta-app/usta-server/internal/auth"
	"github.com/usta-app/usta-server/internal/chat"
	"github.com/usta-app/usta-server/internal/data"
	"github.com/usta-app/usta-server/internal/job"
	"github.com/usta-app/usta-server/internal/middleware"
	"github.com/usta-app/usta-server/internal/notification"
	"github.com/usta-app/usta-server/internal/realtime"
)

type routeDeps struct {
	jwt           *auth.JWTManager
	limiter       *middleware.LimiterStore
	users         *data.UsersStore
	jobs          *job.Service
	chat          *chat.Service
	notifications *notification.Service
	gateway       *realtime.Gateway
}

func setupRoutes(router *gin.Engine, deps routeDeps) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "usta-server"})
	})

	// The gateway does its own token check before the upgrade.
	router.GET("/ws", func(c *gin.Context) {
		deps.gateway.Handle(c.Writer, c.Request)
	})

	jobs := &jobHandler{jobs: deps.jobs}
	messages := &messageHandler{chat: deps.chat, users: deps.users}
	notifications := &notificationHandler{notifications: deps.notifications}

	protected := router.Group("/")
	protected.Use(middleware.Auth(deps.jwt), middleware.RateLimit(deps.limiter))
	{
		j := protected.Group("/jobs")
		{
			j.POST("", middleware.RequireRole(data.RoleClient), jobs.create)
			j.GET("/my-jobs", jobs.myJobs)
			j.GET("/feed", middleware.RequireRole(data.RoleProfessional), jobs.feed)
			j.GET("/:id", jobs.get)
			j.POST("/:id/apply", middleware.RequireRole(data.RoleProfessional), jobs.apply)
			j.POST("/:id/accept/:applicationId", middleware.RequireRole(data.RoleClient), jobs.acceptApplication)
			j.POST("/chat/:conversationId/request", middleware.RequireRole(data.RoleClient), jobs.requestInChat)
			j.POST("/:id/accept-request", middleware.RequireRole(data.RoleProfessional), jobs.acceptRequest)
			j.POST("/:id/complete-by-pro", middleware.RequireRole(data.RoleProfessional), jobs.completeByPro)
			j.POST("/:id/confirm-completion", middleware.RequireRole(data.RoleClient), jobs.confirmCompletion)
			// Legacy alias kept for older clients.
			j.POST("/:id/complete", middleware.RequireRole(data.RoleClient), jobs.confirmCompletion)
			j.POST("/:id/cancel", jobs.cancel)
			j.DELETE("/:id", middleware.RequireRole(data.RoleClient), jobs.delete)
		}

		m := protected.Group("/messages")
		{
			m.GET("/conversations", messages.listConversations)
			m.POST("/conversations", messages.startConversation)
			m.GET("/conversations/:id", messages.listMessages)
			m.POST("/conversations/:id", messages.send)
			m.POST("/conversations/:id/read", messages.markRead)
			m.DELETE("/conversations/:id/my-messages", messages.deleteMyMessages)
			m.DELETE("/conversations/:id/all-for-me", messages.deleteAllForMe)
			m.DELETE("/conversations/:id/for-me", messages.deleteConversationForMe)
			m.PUT("/:id", messages.edit)
			m.DELETE("/:id", messages.delete)
		}

		n := protected.Group("/notifications")
		{
			n.GET("", notifications.list)
			n.POST("/:id/read", notifications.markRead)
			n.POST("/read-all", notifications.markAllRead)
			n.DELETE("/:id", notifications.delete)
		}
	}
}
