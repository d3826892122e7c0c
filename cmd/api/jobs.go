package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/usta-app/usta-server/internal/apperr"
	"github.com/usta-app/usta-server/internal/data"
	"github.com/usta-app/usta-server/internal/job"
	"github.com/usta-app/usta-server/internal/middleware"
)

type jobHandler struct {
	jobs *job.Service
}

type budgetRequest struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

type createJobRequest struct {
	Title       string        `json:"title" binding:"required"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Budget      budgetRequest `json:"budget"`
}

func (h *jobHandler) create(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	created, err := h.jobs.Create(c.Request.Context(), actor, job.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Budget:      data.Budget{Min: req.Budget.Min, Max: req.Budget.Max},
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *jobHandler) myJobs(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	page, perPage := pageParams(c)
	jobs, err := h.jobs.ListMine(c.Request.Context(), actor, middleware.Role(c), page, perPage)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *jobHandler) feed(c *gin.Context) {
	page, perPage := pageParams(c)
	jobs, err := h.jobs.Feed(c.Request.Context(), c.Query("category"), page, perPage)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *jobHandler) get(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	jobID, ok := pathID(c, "id")
	if !ok {
		return
	}
	found, err := h.jobs.Get(c.Request.Context(), actor, middleware.Role(c), jobID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

type applyRequest struct {
	Proposal string `json:"proposal"`
	Price    int64  `json:"price"`
	Duration string `json:"duration"`
}

func (h *jobHandler) apply(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	jobID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	updated, err := h.jobs.Apply(c.Request.Context(), actor, jobID, job.ApplyParams{
		Proposal: req.Proposal,
		Price:    req.Price,
		Duration: req.Duration,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *jobHandler) acceptApplication(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	jobID, ok := pathID(c, "id")
	if !ok {
		return
	}
	appID, ok := pathID(c, "applicationId")
	if !ok {
		return
	}
	updated, err := h.jobs.AcceptApplication(c.Request.Context(), actor, jobID, appID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *jobHandler) requestInChat(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	convID, ok := pathID(c, "conversationId")
	if !ok {
		return
	}
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	created, err := h.jobs.CreateJobRequestInChat(c.Request.Context(), actor, convID, job.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Budget:      data.Budget{Min: req.Budget.Min, Max: req.Budget.Max},
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *jobHandler) acceptRequest(c *gin.Context) {
	h.transition(c, h.jobs.AcceptJobRequest)
}

func (h *jobHandler) completeByPro(c *gin.Context) {
	h.transition(c, h.jobs.ProMarkCompleted)
}

func (h *jobHandler) confirmCompletion(c *gin.Context) {
	h.transition(c, h.jobs.ConfirmCompletion)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *jobHandler) cancel(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	jobID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	// Body is optional for cancellation.
	_ = c.ShouldBindJSON(&req)

	updated, err := h.jobs.Cancel(c.Request.Context(), actor, jobID, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *jobHandler) delete(c *gin.Context) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	jobID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.jobs.Delete(c.Request.Context(), actor, jobID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// transition runs one actor-plus-job lifecycle operation and returns
// the updated job.
func (h *jobHandler) transition(c *gin.Context, op func(context.Context, bson.ObjectID, bson.ObjectID) (*data.Job, error)) {
	actor, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperr.Authorization("invalid caller identity"))
		return
	}
	jobID, ok := pathID(c, "id")
	if !ok {
		return
	}
	updated, err := op(c.Request.Context(), actor, jobID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func pageParams(c *gin.Context) (int64, int64) {
	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	perPage, _ := strconv.ParseInt(c.DefaultQuery("perPage", "0"), 10, 64)
	return page, perPage
}
