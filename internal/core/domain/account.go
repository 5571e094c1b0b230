package domain

import "time"

// RequisitionStatus mirrors the provider-side consent lifecycle.
type RequisitionStatus string

const (
	RequisitionStatusCreated RequisitionStatus = "created"
	RequisitionStatusLinked  RequisitionStatus = "linked"
	RequisitionStatusExpired RequisitionStatus = "expired"
	RequisitionStatusRevoked RequisitionStatus = "revoked"
)

// Requisition is the provider-side object representing a user's authorization
// linking bank accounts to this system.
type Requisition struct {
	ID            string            `json:"id"`
	InstitutionID string            `json:"institution_id"`
	Status        RequisitionStatus `json:"status"`
	AccountIDs    []string          `json:"account_ids,omitempty"`
	Link          string            `json:"link,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Active reports whether the requisition still authorises data access.
func (r *Requisition) Active() bool {
	return r.Status == RequisitionStatusLinked
}

// Institution is a bank selectable during linking.
type Institution struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	BIC       string   `json:"bic,omitempty"`
	Countries []string `json:"countries,omitempty"`
}

// LinkedAccount is a bank account known to this system through an active
// requisition. Accounts with active links are re-seeded by the scheduler.
type LinkedAccount struct {
	ID            string    `json:"id"`
	RequisitionID string    `json:"requisition_id"`
	InstitutionID string    `json:"institution_id"`
	IBAN          string    `json:"iban,omitempty"`
	Name          string    `json:"name,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Active        bool      `json:"active"`
	LinkedAt      time.Time `json:"linked_at"`
}

// Balance is a point-in-time account balance snapshot.
type Balance struct {
	AccountID string    `json:"account_id"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CachedBalance annotates a balance read served from cache. Stale is set when
// the account is currently rate limited and NextAvailable says when a fresh
// fetch can happen.
type CachedBalance struct {
	Balance
	Stale         bool       `json:"stale"`
	NextAvailable *time.Time `json:"next_available,omitempty"`
}
