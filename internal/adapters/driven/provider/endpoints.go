package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
)

// requisitionResponse is the provider's consent object shape.
type requisitionResponse struct {
	ID            string   `json:"id"`
	InstitutionID string   `json:"institution_id"`
	Status        string   `json:"status"`
	Accounts      []string `json:"accounts"`
	Link          string   `json:"link"`
	Created       string   `json:"created"`
}

// requisitionStatus maps the provider's short status codes onto the domain
// lifecycle. "LN" is linked, "EX" expired; everything else is still in
// progress.
func requisitionStatus(code string) domain.RequisitionStatus {
	switch code {
	case "LN":
		return domain.RequisitionStatusLinked
	case "EX":
		return domain.RequisitionStatusExpired
	case "RJ", "SU":
		return domain.RequisitionStatusRevoked
	default:
		return domain.RequisitionStatusCreated
	}
}

func toRequisition(r requisitionResponse) *domain.Requisition {
	created, _ := time.Parse(time.RFC3339, r.Created)
	return &domain.Requisition{
		ID:            r.ID,
		InstitutionID: r.InstitutionID,
		Status:        requisitionStatus(r.Status),
		AccountIDs:    r.Accounts,
		Link:          r.Link,
		CreatedAt:     created,
	}
}

// ListAccounts returns the account IDs attached to a requisition.
func (c *Client) ListAccounts(ctx context.Context, requisitionID string) ([]string, error) {
	var resp requisitionResponse
	if err := c.do(ctx, http.MethodGet, "/api/v2/requisitions/"+requisitionID+"/", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// GetAccountDetails fetches account metadata.
func (c *Client) GetAccountDetails(ctx context.Context, accountID string) (*domain.LinkedAccount, error) {
	var resp struct {
		Account struct {
			ResourceID string `json:"resourceId"`
			IBAN       string `json:"iban"`
			Name       string `json:"name"`
			Currency   string `json:"currency"`
		} `json:"account"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v2/accounts/"+accountID+"/details/", nil, &resp); err != nil {
		return nil, err
	}
	return &domain.LinkedAccount{
		ID:       accountID,
		IBAN:     resp.Account.IBAN,
		Name:     resp.Account.Name,
		Currency: resp.Account.Currency,
	}, nil
}

// GetBalance fetches the current balance. The provider returns a list; the
// first interim-available entry wins, falling back to the first entry.
func (c *Client) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	var resp struct {
		Balances []struct {
			BalanceAmount struct {
				Amount   string `json:"amount"`
				Currency string `json:"currency"`
			} `json:"balanceAmount"`
			BalanceType string `json:"balanceType"`
		} `json:"balances"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v2/accounts/"+accountID+"/balances/", nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Balances) == 0 {
		return nil, domain.ErrNotFound
	}

	chosen := resp.Balances[0]
	for _, b := range resp.Balances {
		if b.BalanceType == "interimAvailable" {
			chosen = b
			break
		}
	}

	return &domain.Balance{
		AccountID: accountID,
		Amount:    chosen.BalanceAmount.Amount,
		Currency:  chosen.BalanceAmount.Currency,
		FetchedAt: c.now().UTC(),
	}, nil
}

// GetTransactions returns a lazy pager over the date range. The provider
// serves the whole range in one response; the pager still yields it
// page-at-a-time so truly paginated providers slot in without redesign.
func (c *Client) GetTransactions(ctx context.Context, accountID, dateFrom, dateTo string) (driven.TransactionPager, error) {
	query := url.Values{}
	if dateFrom != "" {
		query.Set("date_from", dateFrom)
	}
	if dateTo != "" {
		query.Set("date_to", dateTo)
	}

	path := "/api/v2/accounts/" + accountID + "/transactions/"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	return newTransactionPager(c, path), nil
}

// ListInstitutions returns banks selectable during linking for a country.
func (c *Client) ListInstitutions(ctx context.Context, country string) ([]domain.Institution, error) {
	path := "/api/v2/institutions/"
	if country != "" {
		path += "?country=" + url.QueryEscape(country)
	}

	var resp []struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		BIC       string   `json:"bic"`
		Countries []string `json:"countries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	institutions := make([]domain.Institution, 0, len(resp))
	for _, inst := range resp {
		institutions = append(institutions, domain.Institution{
			ID:        inst.ID,
			Name:      inst.Name,
			BIC:       inst.BIC,
			Countries: inst.Countries,
		})
	}
	return institutions, nil
}

// CreateRequisition starts the consent flow against an institution.
func (c *Client) CreateRequisition(ctx context.Context, institutionID, redirectURL string) (*domain.Requisition, error) {
	body := map[string]string{
		"institution_id": institutionID,
		"redirect":       redirectURL,
		"reference":      fmt.Sprintf("banksync-%d", c.now().UnixNano()),
	}
	var resp requisitionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v2/requisitions/", body, &resp); err != nil {
		return nil, err
	}
	return toRequisition(resp), nil
}

// GetRequisition fetches the consent status.
func (c *Client) GetRequisition(ctx context.Context, requisitionID string) (*domain.Requisition, error) {
	var resp requisitionResponse
	if err := c.do(ctx, http.MethodGet, "/api/v2/requisitions/"+requisitionID+"/", nil, &resp); err != nil {
		return nil, err
	}
	return toRequisition(resp), nil
}

// ListRequisitions returns all requisitions for this client.
func (c *Client) ListRequisitions(ctx context.Context) ([]*domain.Requisition, error) {
	var resp struct {
		Results []requisitionResponse `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v2/requisitions/", nil, &resp); err != nil {
		return nil, err
	}

	requisitions := make([]*domain.Requisition, 0, len(resp.Results))
	for _, r := range resp.Results {
		requisitions = append(requisitions, toRequisition(r))
	}
	return requisitions, nil
}

// DeleteRequisition revokes the consent.
func (c *Client) DeleteRequisition(ctx context.Context, requisitionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v2/requisitions/"+requisitionID+"/", nil, nil)
}
