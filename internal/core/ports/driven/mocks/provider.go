package mocks

import (
	"context"
	"sync"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
)

// MockBankProvider is a BankProvider for testing. Pages are configured up
// front; hooks override individual calls.
type MockBankProvider struct {
	mu sync.Mutex

	// Pages returned by GetTransactions, consumed in order by the pager
	Pages []*domain.TransactionPage

	// Balances keyed by account ID
	Balances map[string]*domain.Balance

	// Accounts keyed by account ID for GetAccountDetails
	Accounts map[string]*domain.LinkedAccount

	// Requisitions keyed by requisition ID
	Requisitions map[string]*domain.Requisition

	// Custom behavior hooks (optional)
	GetTransactionsFn func(accountID, dateFrom, dateTo string) (driven.TransactionPager, error)
	GetBalanceFn      func(accountID string) (*domain.Balance, error)

	// Recorded calls for assertions
	TransactionCalls []TransactionCall
}

// TransactionCall records one GetTransactions invocation.
type TransactionCall struct {
	AccountID string
	DateFrom  string
	DateTo    string
}

// NewMockBankProvider creates a new mock bank provider.
func NewMockBankProvider() *MockBankProvider {
	return &MockBankProvider{
		Balances:     make(map[string]*domain.Balance),
		Accounts:     make(map[string]*domain.LinkedAccount),
		Requisitions: make(map[string]*domain.Requisition),
	}
}

// ListAccounts returns the account IDs of a stored requisition.
func (m *MockBankProvider) ListAccounts(ctx context.Context, requisitionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.Requisitions[requisitionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return req.AccountIDs, nil
}

// GetAccountDetails returns stored account metadata.
func (m *MockBankProvider) GetAccountDetails(ctx context.Context, accountID string) (*domain.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.Accounts[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

// GetBalance returns the stored balance.
func (m *MockBankProvider) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	if m.GetBalanceFn != nil {
		return m.GetBalanceFn(accountID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.Balances[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *balance
	return &copied, nil
}

// GetTransactions returns a pager over the configured pages.
func (m *MockBankProvider) GetTransactions(ctx context.Context, accountID, dateFrom, dateTo string) (driven.TransactionPager, error) {
	m.mu.Lock()
	m.TransactionCalls = append(m.TransactionCalls, TransactionCall{accountID, dateFrom, dateTo})
	m.mu.Unlock()

	if m.GetTransactionsFn != nil {
		return m.GetTransactionsFn(accountID, dateFrom, dateTo)
	}

	return &slicePager{pages: m.Pages}, nil
}

// ListInstitutions returns a fixed institution list.
func (m *MockBankProvider) ListInstitutions(ctx context.Context, country string) ([]domain.Institution, error) {
	return []domain.Institution{{ID: "TESTBANK_" + country, Name: "Test Bank", Countries: []string{country}}}, nil
}

// CreateRequisition stores and returns a new requisition.
func (m *MockBankProvider) CreateRequisition(ctx context.Context, institutionID, redirectURL string) (*domain.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req := &domain.Requisition{
		ID:            "req-" + institutionID,
		InstitutionID: institutionID,
		Status:        domain.RequisitionStatusCreated,
		Link:          redirectURL,
	}
	m.Requisitions[req.ID] = req
	copied := *req
	return &copied, nil
}

// GetRequisition returns a stored requisition.
func (m *MockBankProvider) GetRequisition(ctx context.Context, requisitionID string) (*domain.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.Requisitions[requisitionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *req
	return &copied, nil
}

// ListRequisitions returns all stored requisitions.
func (m *MockBankProvider) ListRequisitions(ctx context.Context) ([]*domain.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reqs []*domain.Requisition
	for _, req := range m.Requisitions {
		copied := *req
		reqs = append(reqs, &copied)
	}
	return reqs, nil
}

// DeleteRequisition removes a stored requisition.
func (m *MockBankProvider) DeleteRequisition(ctx context.Context, requisitionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Requisitions[requisitionID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.Requisitions, requisitionID)
	return nil
}

// slicePager yields pre-built pages in order.
type slicePager struct {
	pages []*domain.TransactionPage
	pos   int
}

func (p *slicePager) Next(ctx context.Context) (*domain.TransactionPage, error) {
	if p.pos >= len(p.pages) {
		return nil, nil
	}
	page := p.pages[p.pos]
	p.pos++
	return page, nil
}

// FailingPager returns err on the first Next call. For failure-path tests.
type FailingPager struct {
	Err error
}

func (p *FailingPager) Next(ctx context.Context) (*domain.TransactionPage, error) {
	return nil, p.Err
}
