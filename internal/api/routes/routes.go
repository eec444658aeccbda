// Package routes wires handlers into the gin router
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/stakevine/stakevine_core/internal/api/handlers"
	"github.com/stakevine/stakevine_core/internal/api/middleware"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// Handlers aggregates everything the router needs
type Handlers struct {
	Webhooks     *handlers.WebhookHandlers
	Accounts     *handlers.AccountHandlers
	Withdrawals  *handlers.WithdrawalHandlers
	BatchCollect *handlers.BatchCollectHandlers
	System       *handlers.SystemHandlers
}

// SetupRoutes configures all application routes
func SetupRoutes(h Handlers, log *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	// Unauthenticated surface
	router.GET("/health", h.System.Health)
	router.GET("/metrics", h.System.Metrics)
	router.POST("/webhooks/chain-watch", h.Webhooks.DepositNotification)

	// Account surface, identity injected by the upstream auth proxy
	account := router.Group("/", middleware.AccountRequired())
	{
		account.GET("/accounts/me/balances", h.Accounts.GetBalances)
		account.GET("/accounts/me/transactions", h.Accounts.GetTransactions)
		account.GET("/accounts/me/commissions", h.Accounts.GetCommissions)
		account.GET("/accounts/me/deposit-address", h.Accounts.GetDepositAddress)

		account.GET("/withdrawals/quote", h.Withdrawals.Quote)
		account.POST("/withdrawals", h.Withdrawals.Request)
		account.GET("/withdrawals", h.Withdrawals.List)
		account.GET("/withdrawals/:id", h.Withdrawals.Get)
	}

	// Operator surface
	admin := router.Group("/admin", middleware.AdminRequired())
	{
		admin.POST("/withdrawals/:id/approve", h.Withdrawals.Approve)
		admin.POST("/withdrawals/:id/reject", h.Withdrawals.Reject)
		admin.POST("/withdrawals/:id/retry", h.Withdrawals.Retry)

		admin.POST("/batch-collect", h.BatchCollect.Trigger)
		admin.GET("/batch-collect", h.BatchCollect.History)
		admin.GET("/batch-collect/:id", h.BatchCollect.Status)
		admin.POST("/batch-collect/:id/cancel", h.BatchCollect.Cancel)
		admin.GET("/batch-collect/:id/runs", h.BatchCollect.Runs)

		admin.GET("/workers", h.System.WorkerStatus)
		admin.POST("/jobs/:id/trigger", h.System.TriggerJob)
		admin.GET("/accounts/:id/reconcile/:token", h.Accounts.Reconcile)
	}

	return router
}
