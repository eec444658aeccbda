package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stakevine/stakevine_core/internal/domain/services/batchcollect"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// BatchCollectHandlers serves the admin consolidation surface
type BatchCollectHandlers struct {
	collector *batchcollect.Service
	logger    *logger.Logger
}

// NewBatchCollectHandlers creates the batch collect handlers
func NewBatchCollectHandlers(collector *batchcollect.Service, log *logger.Logger) *BatchCollectHandlers {
	return &BatchCollectHandlers{collector: collector, logger: log}
}

// Trigger handles POST /admin/batch-collect
func (h *BatchCollectHandlers) Trigger(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	jobID, err := h.collector.Start(c.Request.Context(), adminID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusAccepted, gin.H{"job_id": jobID})
}

// Status handles GET /admin/batch-collect/:id
func (h *BatchCollectHandlers) Status(c *gin.Context) {
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	progress, err := h.collector.Progress(c.Request.Context(), jobID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, progress)
}

// Cancel handles POST /admin/batch-collect/:id/cancel
func (h *BatchCollectHandlers) Cancel(c *gin.Context) {
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.collector.Cancel(jobID); err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"status": "cancelling"})
}

// Runs handles GET /admin/batch-collect/:id/runs
func (h *BatchCollectHandlers) Runs(c *gin.Context) {
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	runs, err := h.collector.RunsByJob(c.Request.Context(), jobID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"runs": runs})
}

// History handles GET /admin/batch-collect
func (h *BatchCollectHandlers) History(c *gin.Context) {
	limit, offset := pagination(c)
	runs, err := h.collector.History(c.Request.Context(), limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"runs": runs})
}
