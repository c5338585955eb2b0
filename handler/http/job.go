package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"packsight/src/core/pipeline"
)

type submitJobRequest struct {
	Kind   string          `json:"kind" binding:"required"`
	Params json.RawMessage `json:"params"`
}

type startJobRequest struct {
	Credential string `json:"credential" binding:"required"`
}

func jobIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed job id %q: %w", c.Param("id"), pipeline.ErrValidation)
	}
	return id, nil
}

// RunJob godoc
// @Summary Submit an ungated job for immediate execution
// @Tags jobs
// @Accept json
// @Produce json
// @Param body body submitJobRequest true "Job kind and parameters"
// @Success 202 {object} pipeline.Status
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /jobs [post]
func (h *Handler) RunJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	job, err := h.jobService.Run(c.Request.Context(), req.Kind, req.Params)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, pipeline.StatusOf(job))
}

// InitJob godoc
// @Summary Create a gated job in DRAFT, awaiting start
// @Tags jobs
// @Accept json
// @Produce json
// @Param body body submitJobRequest true "Job kind and parameters"
// @Success 201 {object} pipeline.Status
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /jobs/init [post]
func (h *Handler) InitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	job, err := h.jobService.Init(c.Request.Context(), req.Kind, req.Params)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusCreated, pipeline.StatusOf(job))
}

// StartJob godoc
// @Summary Validate the credential and release a DRAFT job
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param body body startJobRequest true "Credential"
// @Success 202 {object} pipeline.Status
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /jobs/{id}/start [post]
func (h *Handler) StartJob(c *gin.Context) {
	id, err := jobIDParam(c)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	var req startJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.jobService.Start(c.Request.Context(), id, req.Credential); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	status, err := h.jobService.GetStatus(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, status)
}

// GetJobStatus godoc
// @Summary Poll the current status of a job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} pipeline.Status
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /jobs/{id} [get]
func (h *Handler) GetJobStatus(c *gin.Context) {
	id, err := jobIDParam(c)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	status, err := h.jobService.GetStatus(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, status)
}

// GetJobResult godoc
// @Summary Fetch the final payload of a terminal job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} object
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /jobs/{id}/result [get]
func (h *Handler) GetJobResult(c *gin.Context) {
	id, err := jobIDParam(c)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	result, err := h.jobService.Result(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if len(result) == 0 {
		result = []byte("null")
	}

	c.Data(http.StatusOK, "application/json", result)
}
