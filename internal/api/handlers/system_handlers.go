package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/stakevine/stakevine_core/internal/infrastructure/database"
	"github.com/stakevine/stakevine_core/internal/scheduler"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// SystemHandlers serves health, metrics and worker status
type SystemHandlers struct {
	db        *sqlx.DB
	redis     *redis.Client
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(db *sqlx.DB, redisClient *redis.Client, sched *scheduler.Scheduler, log *logger.Logger) *SystemHandlers {
	return &SystemHandlers{db: db, redis: redisClient, scheduler: sched, logger: log}
}

// Health handles GET /health
func (h *SystemHandlers) Health(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{"database": "ok", "redis": "ok"}
	healthy := true

	if err := database.HealthCheck(h.db); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
}

// Metrics handles GET /metrics
func (h *SystemHandlers) Metrics(c *gin.Context) {
	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}

// WorkerStatus handles GET /admin/workers
func (h *SystemHandlers) WorkerStatus(c *gin.Context) {
	respondSuccess(c, http.StatusOK, h.scheduler.Status())
}

// TriggerJob handles POST /admin/jobs/:id/trigger. Waits a bounded time
// for the job; a 202 means it is still running in the background.
func (h *SystemHandlers) TriggerJob(c *gin.Context) {
	jobID := c.Param("id")

	completed, err := h.scheduler.TriggerNow(c.Request.Context(), jobID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if !completed {
		respondSuccess(c, http.StatusAccepted, gin.H{"job_id": jobID, "status": "running"})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"job_id": jobID, "status": "completed"})
}
