package domain

import "time"

// CheckpointRetention is how long the disaster-recovery checkpoint copy of a
// cursor is kept. Longer than any realistic outage window.
const CheckpointRetention = 30 * 24 * time.Hour

// Cursor is the per-account incremental sync position.
// SinceDate is monotonically non-decreasing under normal operation; the store
// enforces this on write.
type Cursor struct {
	// AccountID is the account this cursor belongs to
	AccountID string `json:"account_id"`

	// SinceDate is the lower bound for the next incremental fetch (ISO date)
	SinceDate string `json:"since_date,omitempty"`

	// Token is an opaque provider-specific pagination cursor, if the provider
	// issues one
	Token string `json:"token,omitempty"`

	// LastTransactionRef is the external reference of the last transaction seen
	LastTransactionRef string `json:"last_transaction_ref,omitempty"`

	// UpdatedAt is set on every write
	UpdatedAt time.Time `json:"updated_at"`
}

// CursorUpdate carries partial cursor fields. Nil fields are retained from
// the stored cursor on merge.
type CursorUpdate struct {
	SinceDate          *string
	Token              *string
	LastTransactionRef *string
}

// Merge applies the non-nil fields of the update onto the cursor and stamps
// UpdatedAt. SinceDate never moves backwards.
func (c *Cursor) Merge(u CursorUpdate) {
	if u.SinceDate != nil && *u.SinceDate >= c.SinceDate {
		c.SinceDate = *u.SinceDate
	}
	if u.Token != nil {
		c.Token = *u.Token
	}
	if u.LastTransactionRef != nil {
		c.LastTransactionRef = *u.LastTransactionRef
	}
	c.UpdatedAt = time.Now().UTC()
}

// StringPtr is a convenience for building CursorUpdate values.
func StringPtr(s string) *string { return &s }
