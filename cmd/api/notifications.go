package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/usta-app/usta-server/internal/apperr"
	"github.com/usta-app/usta-server/internal/middleware"
	"github.com/usta-app/usta-server/internal/notification"
)

type notificationHandler struct {
	notifications *notification.Service
}

func (h *notificationHandler) list(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	page, perPage := pageParams(c)
	unreadOnly := c.Query("unread") == "true"

	items, unread, err := h.notifications.List(c.Request.Context(), actor, page, perPage, unreadOnly)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "unreadCount": unread})
}

func (h *notificationHandler) markRead(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), id, actor); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

func (h *notificationHandler) markAllRead(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	n, err := h.notifications.MarkAllRead(c.Request.Context(), actor)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affected": n})
}

func (h *notificationHandler) delete(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.Delete(c.Request.Context(), id, actor); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
