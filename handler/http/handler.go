package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"packsight/src/core/pipeline"
	"packsight/src/core/rebrand"
)

// JobService is the slice of the job lifecycle the API exposes.
type JobService interface {
	Init(ctx context.Context, kind string, params json.RawMessage) (*pipeline.Job, error)
	Start(ctx context.Context, jobID int64, credential string) error
	Run(ctx context.Context, kind string, params json.RawMessage) (*pipeline.Job, error)
	Resume(ctx context.Context, runID string, stepsRange string) (*pipeline.Job, error)
	GetStatus(ctx context.Context, jobID int64) (*pipeline.Status, error)
	Result(ctx context.Context, jobID int64) (json.RawMessage, error)
	RunTrace(ctx context.Context, runID string) (*pipeline.RunRecord, []pipeline.StepRecord, error)
}

// SessionService drives rebrand session fan-out and aggregation.
type SessionService interface {
	Start(ctx context.Context, analysisID int64, sourceAsset, brandIdentity, category string) (*rebrand.Session, error)
	GetStatus(ctx context.Context, sessionID string) (*rebrand.SessionStatus, error)
}

type Handler struct {
	jobService     JobService
	sessionService SessionService
}

func NewHandler(jobService JobService, sessionService SessionService) *Handler {
	return &Handler{
		jobService:     jobService,
		sessionService: sessionService,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")

	// Job lifecycle routes
	api.POST("/jobs", h.RunJob)
	api.POST("/jobs/init", h.InitJob)
	api.POST("/jobs/:id/start", h.StartJob)
	api.GET("/jobs/:id", h.GetJobStatus)
	api.GET("/jobs/:id/result", h.GetJobResult)

	// Run routes
	api.POST("/runs/:runId/resume", h.ResumeRun)
	api.GET("/runs/:runId", h.GetRunTrace)

	// Rebrand session routes
	api.POST("/rebrand-sessions", h.CreateRebrandSession)
	api.GET("/rebrand-sessions/:id", h.GetRebrandSession)

	// System routes
	api.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, status int, err error) {
	var code string
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		code = "VALIDATION_ERROR"
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrStateConflict):
		code = "STATE_CONFLICT"
		status = http.StatusConflict
	case errors.Is(err, pipeline.ErrMissingPrerequisite):
		code = "MISSING_PREREQUISITE"
		status = http.StatusConflict
	case errors.Is(err, pipeline.ErrNotReady):
		code = "NOT_READY"
		status = http.StatusConflict
	case errors.Is(err, rebrand.ErrSessionRunning):
		code = "SESSION_ALREADY_RUNNING"
		status = http.StatusConflict
	case status == http.StatusBadRequest:
		code = "VALIDATION_ERROR"
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
