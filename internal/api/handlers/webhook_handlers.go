package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	"github.com/stakevine/stakevine_core/internal/domain/services/deposit"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/pkg/crypto"
	"github.com/stakevine/stakevine_core/pkg/logger"
	"github.com/stakevine/stakevine_core/pkg/metrics"
	"github.com/stakevine/stakevine_core/pkg/ratelimit"
)

// signatureHeader carries the HMAC-SHA256 of the body, hex encoded,
// computed by the chain-watch provider with the shared stream secret
const signatureHeader = "X-Stream-Signature"

// WebhookHandlers receives chain-watch deposit notifications
type WebhookHandlers struct {
	deposits *deposit.Service
	cfg      config.WebhookConfig
	probes   *ratelimit.IPLimiter
	logger   *logger.Logger
}

// NewWebhookHandlers creates the webhook handlers. Requests with a bad or
// missing signature are never processed, but each source IP gets a small
// budget of them acknowledged before being throttled, so provider
// verification probes don't surface as errors.
func NewWebhookHandlers(deposits *deposit.Service, cfg config.WebhookConfig, log *logger.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		deposits: deposits,
		cfg:      cfg,
		probes:   ratelimit.NewIPLimiter(cfg.ProbeLimitPerWindow, windowDuration(cfg.ProbeWindowSeconds)),
		logger:   log,
	}
}

// Close stops the probe limiter's cleanup goroutine
func (h *WebhookHandlers) Close() {
	h.probes.Stop()
}

// DepositNotification handles POST /webhooks/chain-watch
func (h *WebhookHandlers) DepositNotification(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondBadRequest(c, "failed to read body")
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	if !h.verifySignature(c, body) {
		return
	}

	var n entities.DepositNotification
	if err := json.Unmarshal(body, &n); err != nil {
		respondBadRequest(c, "invalid payload")
		return
	}
	if n.Kind == "" || n.TxHash == "" || n.Address == "" || n.RawAmount == "" {
		respondBadRequest(c, "missing required fields")
		return
	}

	if err := h.deposits.HandleNotification(c.Request.Context(), &n); err != nil {
		h.logger.Error("deposit notification processing failed",
			"tx_hash", n.TxHash, "error", err)
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandlers) verifySignature(c *gin.Context, body []byte) bool {
	if h.cfg.SkipSignatureVerify {
		return true
	}

	signature := c.GetHeader(signatureHeader)
	if signature != "" && crypto.VerifySignature(body, signature, h.cfg.StreamSecret) {
		return true
	}

	metrics.WebhookSignatureRejects.Inc()

	ip := c.ClientIP()
	h.logger.Warn("webhook signature verification failed",
		"client_ip", ip, "has_signature", signature != "")

	// The body is dropped either way; within the per-IP budget the probe
	// is acknowledged, past it the source is throttled outright
	if h.probes.Allow(ip) {
		respondSuccess(c, http.StatusOK, gin.H{"received": true})
	} else {
		respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many unsigned requests")
	}
	return false
}

func windowDuration(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}
