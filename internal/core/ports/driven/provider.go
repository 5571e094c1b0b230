package driven

import (
	"context"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// TransactionPager streams transaction pages lazily. It is finite and not
// restartable mid-stream; a fresh sync restarts from the cursor.
type TransactionPager interface {
	// Next returns the next page, or nil when the stream is exhausted.
	Next(ctx context.Context) (*domain.TransactionPage, error)
}

// BankProvider is the third-party open-banking API consumed by the sync
// engine. A 429 from any call surfaces as *domain.RateLimitError carrying the
// provider's retry-after; a 404 surfaces as domain.ErrNotFound; other
// failures are transient.
type BankProvider interface {
	// ListAccounts returns the account IDs attached to a requisition.
	ListAccounts(ctx context.Context, requisitionID string) ([]string, error)

	// GetAccountDetails fetches account metadata.
	GetAccountDetails(ctx context.Context, accountID string) (*domain.LinkedAccount, error)

	// GetBalance fetches the current balance.
	GetBalance(ctx context.Context, accountID string) (*domain.Balance, error)

	// GetTransactions returns a pager over the date range (ISO dates,
	// inclusive).
	GetTransactions(ctx context.Context, accountID, dateFrom, dateTo string) (TransactionPager, error)

	// ListInstitutions returns banks selectable during linking for a
	// country.
	ListInstitutions(ctx context.Context, country string) ([]domain.Institution, error)

	// CreateRequisition starts the consent flow against an institution.
	CreateRequisition(ctx context.Context, institutionID, redirectURL string) (*domain.Requisition, error)

	// GetRequisition fetches the consent status.
	GetRequisition(ctx context.Context, requisitionID string) (*domain.Requisition, error)

	// ListRequisitions returns all requisitions for this client.
	ListRequisitions(ctx context.Context) ([]*domain.Requisition, error)

	// DeleteRequisition revokes the consent.
	DeleteRequisition(ctx context.Context, requisitionID string) error
}
