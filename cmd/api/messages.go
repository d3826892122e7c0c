package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/usta-app/usta-server/internal/apperr"
	"github.com/usta-app/usta-server/internal/chat"
	"github.com/usta-app/usta-server/internal/data"
	"github.com/usta-app/usta-server/internal/middleware"
)

type messageHandler struct {
	chat  *chat.Service
	users *data.UsersStore
}

type startConversationRequest struct {
	RecipientID string `json:"recipientId" binding:"required"`
	JobID       string `json:"jobId"`
}

func (h *messageHandler) startConversation(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	recipientID, err := bson.ObjectIDFromHex(req.RecipientID)
	if err != nil {
		fail(c, apperr.Validation("invalid recipientId"))
		return
	}
	var jobID *bson.ObjectID
	if req.JobID != "" {
		id, err := bson.ObjectIDFromHex(req.JobID)
		if err != nil {
			fail(c, apperr.Validation("invalid jobId"))
			return
		}
		jobID = &id
	}

	recipient, err := h.users.GetUserByID(c.Request.Context(), recipientID)
	if err != nil {
		fail(c, err)
		return
	}

	conv, created, err := h.chat.FindOrCreate(c.Request.Context(), actor, middleware.Role(c), recipient.ID, recipient.Role, jobID)
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conv)
}

func (h *messageHandler) listConversations(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	page, perPage := pageParams(c)
	convs, err := h.chat.ListConversations(c.Request.Context(), actor, page, perPage)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *messageHandler) listMessages(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, perPage := pageParams(c)
	msgs, err := h.chat.GetMessages(c.Request.Context(), convID, actor, page, perPage)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type sendMessageRequest struct {
	Type    data.MessageType  `json:"type"`
	Content chat.ContentInput `json:"content"`
	ReplyTo string            `json:"replyTo"`
}

func (h *messageHandler) send(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	var replyTo *bson.ObjectID
	if req.ReplyTo != "" {
		id, err := bson.ObjectIDFromHex(req.ReplyTo)
		if err != nil {
			fail(c, apperr.Validation("invalid replyTo"))
			return
		}
		replyTo = &id
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), chat.SendParams{
		ConversationID: convID,
		Sender:         actor,
		Type:           req.Type,
		Content:        req.Content,
		ReplyTo:        replyTo,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type editMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *messageHandler) edit(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	msg, err := h.chat.EditMessage(c.Request.Context(), msgID, actor, req.Body)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *messageHandler) delete(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.chat.DeleteMessage(c.Request.Context(), msgID, actor); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *messageHandler) markRead(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.chat.MarkConversationRead(c.Request.Context(), convID, actor); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

func (h *messageHandler) deleteMyMessages(c *gin.Context) {
	h.bulkDelete(c, h.chat.DeleteMyMessages)
}

func (h *messageHandler) deleteAllForMe(c *gin.Context) {
	h.bulkDelete(c, h.chat.DeleteAllMessagesForMe)
}

func (h *messageHandler) deleteConversationForMe(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.chat.DeleteConversationForMe(c.Request.Context(), convID, actor); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hidden": true})
}

func (h *messageHandler) bulkDelete(c *gin.Context, op func(context.Context, bson.ObjectID, bson.ObjectID) (int64, error)) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := op(c.Request.Context(), convID, actor)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affected": n})
}
