package domain

import "strings"

// Direction classifies a transaction relative to the account.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// RawTransaction is a provider transaction flattened by the provider
// adapter, before normalisation. The adapter maps the wire shape itself, so
// this struct carries no wire tags.
type RawTransaction struct {
	// ExternalRef is the provider-assigned unique reference, used as the
	// idempotency key downstream
	ExternalRef string

	// Amount is the signed decimal amount as a string (negative = debit)
	Amount string

	// Currency is the ISO currency code
	Currency string

	// BookingDate is the ISO date the transaction was booked
	BookingDate string

	// CreditorName is set when money left the account
	CreditorName string

	// DebtorName is set when money arrived on the account
	DebtorName string

	// RemittanceInfo is the free-text description
	RemittanceInfo string
}

// Transaction is the normalised internal shape emitted downstream.
type Transaction struct {
	ExternalRef  string    `json:"external_ref"`
	AccountID    string    `json:"account_id"`
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	Direction    Direction `json:"direction"`
	Counterparty string    `json:"counterparty,omitempty"`
	Description  string    `json:"description,omitempty"`
	BookingDate  string    `json:"booking_date"`
}

// NormalizeTransaction converts a provider transaction into the internal
// shape: the signed amount becomes an unsigned amount plus direction, and the
// counterparty is chosen from creditor/debtor based on that direction.
func NormalizeTransaction(accountID string, raw RawTransaction) Transaction {
	amount := strings.TrimSpace(raw.Amount)
	direction := DirectionCredit
	if strings.HasPrefix(amount, "-") {
		direction = DirectionDebit
		amount = strings.TrimPrefix(amount, "-")
	}

	counterparty := raw.DebtorName
	if direction == DirectionDebit {
		counterparty = raw.CreditorName
	}

	return Transaction{
		ExternalRef:  raw.ExternalRef,
		AccountID:    accountID,
		Amount:       amount,
		Currency:     raw.Currency,
		Direction:    direction,
		Counterparty: counterparty,
		Description:  strings.TrimSpace(raw.RemittanceInfo),
		BookingDate:  raw.BookingDate,
	}
}

// TransactionPage is one page of provider transactions.
type TransactionPage struct {
	Transactions []RawTransaction
	// NextToken is the provider cursor for the following page; empty on the
	// final page
	NextToken string
}
