package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stakevine/stakevine_core/internal/domain/services/ledger"
	"github.com/stakevine/stakevine_core/internal/domain/services/network"
	"github.com/stakevine/stakevine_core/internal/domain/services/wallet"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// AccountHandlers serves balances, history and deposit addresses for the
// authenticated account
type AccountHandlers struct {
	ledger  *ledger.Service
	network *network.Service
	wallets *wallet.Service
	logger  *logger.Logger
}

// NewAccountHandlers creates the account handlers
func NewAccountHandlers(ledgerSvc *ledger.Service, networkSvc *network.Service, wallets *wallet.Service, log *logger.Logger) *AccountHandlers {
	return &AccountHandlers{
		ledger:  ledgerSvc,
		network: networkSvc,
		wallets: wallets,
		logger:  log,
	}
}

// GetBalances handles GET /accounts/me/balances
func (h *AccountHandlers) GetBalances(c *gin.Context) {
	accountID, ok := getAccountID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	balances, err := h.ledger.Balances(c.Request.Context(), accountID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"balances": balances})
}

// GetTransactions handles GET /accounts/me/transactions
func (h *AccountHandlers) GetTransactions(c *gin.Context) {
	accountID, ok := getAccountID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	limit, offset := pagination(c)
	txs, err := h.ledger.Transactions(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"transactions": txs})
}

// GetCommissions handles GET /accounts/me/commissions
func (h *AccountHandlers) GetCommissions(c *gin.Context) {
	accountID, ok := getAccountID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	limit, offset := pagination(c)
	commissions, err := h.network.History(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"commissions": commissions})
}

// GetDepositAddress handles GET /accounts/me/deposit-address, minting a
// custodial address on first call
func (h *AccountHandlers) GetDepositAddress(c *gin.Context) {
	accountID, ok := getAccountID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	addr, err := h.wallets.GetOrCreate(c.Request.Context(), accountID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"address":      addr.Address,
		"watch_active": addr.WatchActive,
	})
}

// Reconcile handles GET /admin/accounts/:id/reconcile/:token
func (h *AccountHandlers) Reconcile(c *gin.Context) {
	accountID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	token := c.Param("token")

	rec, err := h.ledger.Reconcile(c.Request.Context(), accountID, token)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, rec)
}
