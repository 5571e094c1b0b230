package driving

import (
	"context"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// SchedulerService owns the durable task queue and its dispatch loop.
type SchedulerService interface {
	// Enqueue consults the rate limiter and stores the task; when denied,
	// the task's next-run time is set to the reported retry-after so it is
	// never dispatched prematurely.
	Enqueue(ctx context.Context, task *domain.Task) error

	// Start launches the periodic tick and re-seeding loops.
	Start(ctx context.Context) error

	// Stop gracefully stops the loops.
	Stop()
}

// WebhookService verifies, gates and dispatches inbound provider webhooks.
type WebhookService interface {
	// Handle verifies the HMAC signature over rawBody, drops replays inside
	// the replay window, validates the payload shape and dispatches by
	// resource type. Replays are silently ignored, not errors.
	Handle(ctx context.Context, rawBody []byte, signature string) error
}

// AccountService exposes linked-account reads and cached balances.
type AccountService interface {
	// ListAccounts returns all actively linked accounts.
	ListAccounts(ctx context.Context) ([]*domain.LinkedAccount, error)

	// GetBalance returns the cached balance. When the account is rate
	// limited the value is marked stale with a concrete next-available
	// timestamp instead of an error.
	GetBalance(ctx context.Context, accountID string) (*domain.CachedBalance, error)
}
