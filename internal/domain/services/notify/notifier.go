// Package notify is the outbound notification seam. Delivery transports
// (email, push) live behind the Notifier interface; failures never block
// settlement flows.
package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/stakevine/stakevine_core/pkg/logger"
)

// Event names used across services
const (
	EventDepositConfirmed    = "deposit.confirmed"
	EventAccountActivated    = "account.activated"
	EventRankPromoted        = "rank.promoted"
	EventRankWarning         = "rank.warning"
	EventRankDownranked      = "rank.downranked"
	EventRankRecovered       = "rank.recovered"
	EventWithdrawalRequested = "withdrawal.requested"
	EventWithdrawalApproved  = "withdrawal.approved"
	EventWithdrawalRejected  = "withdrawal.rejected"
	EventWithdrawalCompleted = "withdrawal.completed"
	EventWithdrawalFailed    = "withdrawal.failed"
)

// Notifier delivers an event to an account's owner
type Notifier interface {
	Notify(ctx context.Context, accountID uuid.UUID, event string, data map[string]string) error
}

// LogNotifier writes notifications to the log, the default transport
// until a real channel is configured
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Notify(_ context.Context, accountID uuid.UUID, event string, data map[string]string) error {
	n.logger.Info("notification",
		"account_id", accountID.String(),
		"event", event,
		"data", data,
	)
	return nil
}
