package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"packsight/src/core/pipeline"
)

type resumeRunRequest struct {
	StepsRange string `json:"steps_range" binding:"required"`
}

type runTraceResponse struct {
	RunID      string          `json:"run_id"`
	Kind       string          `json:"kind"`
	ContextKey string          `json:"context_key,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Steps      []stepTraceItem `json:"steps"`
}

type stepTraceItem struct {
	JobID         string              `json:"job_id"`
	Ordinal       int                 `json:"ordinal"`
	Name          string              `json:"name"`
	Status        pipeline.StepStatus `json:"status"`
	InputSummary  string              `json:"input_summary,omitempty"`
	OutputSummary string              `json:"output_summary,omitempty"`
	ArtifactURL   string              `json:"artifact_url,omitempty"`
	DurationMS    int64               `json:"duration_ms"`
	Error         string              `json:"error,omitempty"`
}

// ResumeRun godoc
// @Summary Resume a run from a step range, reusing completed outputs
// @Tags runs
// @Accept json
// @Produce json
// @Param runId path string true "Run ID"
// @Param body body resumeRunRequest true "Step range, e.g. 5-7"
// @Success 202 {object} pipeline.Status
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /runs/{runId}/resume [post]
func (h *Handler) ResumeRun(c *gin.Context) {
	var req resumeRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	job, err := h.jobService.Resume(c.Request.Context(), c.Param("runId"), req.StepsRange)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, pipeline.StatusOf(job))
}

// GetRunTrace godoc
// @Summary List every step recorded under a run, oldest first
// @Tags runs
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} runTraceResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /runs/{runId} [get]
func (h *Handler) GetRunTrace(c *gin.Context) {
	run, recs, err := h.jobService.RunTrace(c.Request.Context(), c.Param("runId"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	resp := runTraceResponse{
		RunID:      run.RunID,
		Kind:       run.Kind,
		ContextKey: run.ContextKey,
		CreatedAt:  run.CreatedAt,
		Steps:      make([]stepTraceItem, 0, len(recs)),
	}
	for _, rec := range recs {
		resp.Steps = append(resp.Steps, stepTraceItem{
			JobID:         strconv.FormatInt(rec.JobID, 10),
			Ordinal:       rec.Ordinal,
			Name:          rec.Name,
			Status:        rec.Status,
			InputSummary:  rec.InputSummary,
			OutputSummary: rec.OutputSummary,
			ArtifactURL:   rec.ArtifactURL,
			DurationMS:    rec.DurationMS,
			Error:         rec.ErrorMessage,
		})
	}

	sendJSON(c, http.StatusOK, resp)
}
