package driving

import (
	"context"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// LinkService drives the provider consent flow that attaches bank accounts
// to this system.
type LinkService interface {
	// ListInstitutions returns banks selectable during linking for a country.
	ListInstitutions(ctx context.Context, country string) ([]domain.Institution, error)

	// CreateLink starts a consent flow and returns the requisition carrying
	// the end-user authorisation URL.
	CreateLink(ctx context.Context, institutionID, redirectURL string) (*domain.Requisition, error)

	// GetLink fetches the consent status. When the requisition has become
	// linked, its accounts are registered for scheduling as a side effect.
	GetLink(ctx context.Context, requisitionID string) (*domain.Requisition, error)

	// RemoveLink revokes the consent and deactivates its accounts.
	RemoveLink(ctx context.Context, requisitionID string) error
}
