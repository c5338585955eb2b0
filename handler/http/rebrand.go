package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type createRebrandSessionRequest struct {
	AnalysisID    string `json:"analysis_id" binding:"required"`
	SourceAsset   string `json:"source_asset" binding:"required"`
	BrandIdentity string `json:"brand_identity" binding:"required"`
	Category      string `json:"category"`
}

// CreateRebrandSession godoc
// @Summary Fan a rebrand request out into one job per target product
// @Tags rebrand-sessions
// @Accept json
// @Produce json
// @Param body body createRebrandSessionRequest true "Rebrand request"
// @Success 202 {object} rebrand.SessionStatus
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /rebrand-sessions [post]
func (h *Handler) CreateRebrandSession(c *gin.Context) {
	var req createRebrandSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	analysisID, err := strconv.ParseInt(req.AnalysisID, 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	sess, err := h.sessionService.Start(c.Request.Context(), analysisID, req.SourceAsset, req.BrandIdentity, req.Category)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	status, err := h.sessionService.GetStatus(c.Request.Context(), sess.ID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, status)
}

// GetRebrandSession godoc
// @Summary Poll the aggregate status of a rebrand session
// @Tags rebrand-sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} rebrand.SessionStatus
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /rebrand-sessions/{id} [get]
func (h *Handler) GetRebrandSession(c *gin.Context) {
	status, err := h.sessionService.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, status)
}
