package provider

import (
	"context"
	"net/http"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TransactionPager = (*transactionPager)(nil)

// transactionPager streams transaction pages lazily. The provider serves a
// date range as a single booked-transactions document, so the pager fetches
// on the first Next call and reports exhaustion afterwards. It is finite and
// not restartable; a fresh sync restarts from the cursor.
type transactionPager struct {
	client *Client
	path   string
	done   bool
}

func newTransactionPager(client *Client, path string) *transactionPager {
	return &transactionPager{client: client, path: path}
}

// Next returns the next page, or nil when the stream is exhausted.
func (p *transactionPager) Next(ctx context.Context) (*domain.TransactionPage, error) {
	if p.done {
		return nil, nil
	}

	var resp struct {
		Transactions struct {
			Booked []struct {
				TransactionID     string `json:"transactionId"`
				TransactionAmount struct {
					Amount   string `json:"amount"`
					Currency string `json:"currency"`
				} `json:"transactionAmount"`
				BookingDate    string `json:"bookingDate"`
				CreditorName   string `json:"creditorName"`
				DebtorName     string `json:"debtorName"`
				RemittanceInfo string `json:"remittanceInformationUnstructured"`
			} `json:"booked"`
		} `json:"transactions"`
	}

	if err := p.client.do(ctx, http.MethodGet, p.path, nil, &resp); err != nil {
		return nil, err
	}
	p.done = true

	page := &domain.TransactionPage{
		Transactions: make([]domain.RawTransaction, 0, len(resp.Transactions.Booked)),
	}
	for _, tx := range resp.Transactions.Booked {
		page.Transactions = append(page.Transactions, domain.RawTransaction{
			ExternalRef:    tx.TransactionID,
			Amount:         tx.TransactionAmount.Amount,
			Currency:       tx.TransactionAmount.Currency,
			BookingDate:    tx.BookingDate,
			CreditorName:   tx.CreditorName,
			DebtorName:     tx.DebtorName,
			RemittanceInfo: tx.RemittanceInfo,
		})
	}
	return page, nil
}
