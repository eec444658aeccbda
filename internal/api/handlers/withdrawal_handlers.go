package handlers

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	"github.com/stakevine/stakevine_core/internal/domain/services/withdrawal"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

var evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// WithdrawalHandlers serves the withdrawal request/approval surface
type WithdrawalHandlers struct {
	withdrawals *withdrawal.Service
	validator   *validator.Validate
	logger      *logger.Logger
}

// NewWithdrawalHandlers creates the withdrawal handlers
func NewWithdrawalHandlers(withdrawals *withdrawal.Service, log *logger.Logger) *WithdrawalHandlers {
	v := validator.New()
	// Registration only fails for an empty tag or a nil func
	_ = v.RegisterValidation("evm_address", func(fl validator.FieldLevel) bool {
		return evmAddressPattern.MatchString(fl.Field().String())
	})
	return &WithdrawalHandlers{withdrawals: withdrawals, validator: v, logger: log}
}

// Quote handles GET /withdrawals/quote?amount=
func (h *WithdrawalHandlers) Quote(c *gin.Context) {
	accountID, ok := getAccountID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		respondBadRequest(c, "invalid amount")
		return
	}

	fee, err := h.withdrawals.Quote(c.Request.Context(), accountID, amount)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, fee)
}

// Request handles POST /withdrawals
func (h *WithdrawalHandlers) Request(c *gin.Context) {
	accountID, ok := getAccountID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	var input entities.RequestWithdrawalInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if err := h.validator.Struct(&input); err != nil {
		h.logger.Warn("withdrawal request validation failed", "error", err)
		respondBadRequest(c, "request validation failed")
		return
	}
	input.AccountID = accountID

	result, err := h.withdrawals.Request(c.Request.Context(), &input)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if result.RequiresConfirmation {
		// 200 with the confirmation flag: nothing was committed
		respondSuccess(c, http.StatusOK, result)
		return
	}
	respondSuccess(c, http.StatusCreated, result)
}

// List handles GET /withdrawals
func (h *WithdrawalHandlers) List(c *gin.Context) {
	accountID, ok := getAccountID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	limit, offset := pagination(c)
	withdrawals, err := h.withdrawals.List(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"withdrawals": withdrawals})
}

// Get handles GET /withdrawals/:id
func (h *WithdrawalHandlers) Get(c *gin.Context) {
	accountID, ok := getAccountID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	w, err := h.withdrawals.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if w.AccountID != accountID {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "withdrawal not found")
		return
	}

	respondSuccess(c, http.StatusOK, w)
}

// Approve handles POST /admin/withdrawals/:id/approve
func (h *WithdrawalHandlers) Approve(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.withdrawals.Approve(c.Request.Context(), id, adminID); err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"status": "approved"})
}

// Reject handles POST /admin/withdrawals/:id/reject
func (h *WithdrawalHandlers) Reject(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "reason is required")
		return
	}

	if err := h.withdrawals.Reject(c.Request.Context(), id, adminID, body.Reason); err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"status": "rejected"})
}

// Retry handles POST /admin/withdrawals/:id/retry
func (h *WithdrawalHandlers) Retry(c *gin.Context) {
	if _, ok := getAdminID(c); !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.withdrawals.Retry(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusAccepted, gin.H{"status": "queued"})
}
