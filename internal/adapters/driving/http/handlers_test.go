package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	authadapter "github.com/ledgerbridge/banksync-core/internal/adapters/driven/auth"
	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven/mocks"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driving"
)

// Service stubs

type stubSyncService struct {
	RequestSyncFn  func(ctx context.Context, accountID string, req driving.SyncRequest) (*domain.Operation, error)
	GetOperationFn func(ctx context.Context, operationID string) (*domain.Operation, error)
}

func (s *stubSyncService) RequestSync(ctx context.Context, accountID string, req driving.SyncRequest) (*domain.Operation, error) {
	if s.RequestSyncFn != nil {
		return s.RequestSyncFn(ctx, accountID, req)
	}
	op := domain.NewOperation(accountID)
	return op, nil
}

func (s *stubSyncService) StartSync(ctx context.Context, accountID, operationID string, req driving.SyncRequest) error {
	return nil
}

func (s *stubSyncService) GetOperation(ctx context.Context, operationID string) (*domain.Operation, error) {
	if s.GetOperationFn != nil {
		return s.GetOperationFn(ctx, operationID)
	}
	return nil, domain.ErrNotFound
}

type stubAccountService struct {
	ListAccountsFn func(ctx context.Context) ([]*domain.LinkedAccount, error)
	GetBalanceFn   func(ctx context.Context, accountID string) (*domain.CachedBalance, error)
}

func (s *stubAccountService) ListAccounts(ctx context.Context) ([]*domain.LinkedAccount, error) {
	if s.ListAccountsFn != nil {
		return s.ListAccountsFn(ctx)
	}
	return nil, nil
}

func (s *stubAccountService) GetBalance(ctx context.Context, accountID string) (*domain.CachedBalance, error) {
	if s.GetBalanceFn != nil {
		return s.GetBalanceFn(ctx, accountID)
	}
	return nil, domain.ErrNotFound
}

type stubWebhookService struct {
	HandleFn func(ctx context.Context, rawBody []byte, signature string) error
}

func (s *stubWebhookService) Handle(ctx context.Context, rawBody []byte, signature string) error {
	if s.HandleFn != nil {
		return s.HandleFn(ctx, rawBody, signature)
	}
	return nil
}

type stubLinkService struct {
	ListInstitutionsFn func(ctx context.Context, country string) ([]domain.Institution, error)
	CreateLinkFn       func(ctx context.Context, institutionID, redirectURL string) (*domain.Requisition, error)
	GetLinkFn          func(ctx context.Context, requisitionID string) (*domain.Requisition, error)
	RemoveLinkFn       func(ctx context.Context, requisitionID string) error
}

func (s *stubLinkService) ListInstitutions(ctx context.Context, country string) ([]domain.Institution, error) {
	if s.ListInstitutionsFn != nil {
		return s.ListInstitutionsFn(ctx, country)
	}
	if country == "" {
		return nil, domain.ErrInvalidInput
	}
	return []domain.Institution{{ID: "BANK_X", Name: "Bank X"}}, nil
}

func (s *stubLinkService) CreateLink(ctx context.Context, institutionID, redirectURL string) (*domain.Requisition, error) {
	if s.CreateLinkFn != nil {
		return s.CreateLinkFn(ctx, institutionID, redirectURL)
	}
	if institutionID == "" {
		return nil, domain.ErrInvalidInput
	}
	return &domain.Requisition{ID: "req-1", InstitutionID: institutionID, Status: domain.RequisitionStatusCreated}, nil
}

func (s *stubLinkService) GetLink(ctx context.Context, requisitionID string) (*domain.Requisition, error) {
	if s.GetLinkFn != nil {
		return s.GetLinkFn(ctx, requisitionID)
	}
	return nil, domain.ErrNotFound
}

func (s *stubLinkService) RemoveLink(ctx context.Context, requisitionID string) error {
	if s.RemoveLinkFn != nil {
		return s.RemoveLinkFn(ctx, requisitionID)
	}
	return nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Test harness

type serverFixture struct {
	server  *Server
	sync    *stubSyncService
	account *stubAccountService
	webhook *stubWebhookService
	link    *stubLinkService
	bus     *mocks.MockEventBus
	auth    *authadapter.Adapter
}

const (
	testAdminSecret   = "admin-secret"
	testServiceSecret = "service-secret"
)

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	auth := authadapter.NewAdapterWithCost("test-jwt-secret", 4)
	adminHash, err := auth.HashSecret(testAdminSecret)
	if err != nil {
		t.Fatalf("failed to hash secret: %v", err)
	}
	serviceHash, err := auth.HashSecret(testServiceSecret)
	if err != nil {
		t.Fatalf("failed to hash secret: %v", err)
	}

	f := &serverFixture{
		sync:    &stubSyncService{},
		account: &stubAccountService{},
		webhook: &stubWebhookService{},
		link:    &stubLinkService{},
		bus:     mocks.NewMockEventBus(),
		auth:    auth,
	}

	cfg := DefaultConfig()
	cfg.Version = "test"
	cfg.Credentials = []domain.APICredential{
		{ClientID: "admin-client", SecretHash: adminHash, Role: domain.RoleAdmin},
		{ClientID: "service-client", SecretHash: serviceHash, Role: domain.RoleService},
	}

	f.server = NewServer(cfg, f.sync, f.account, f.webhook, f.link, auth,
		f.bus, pingerFunc(func(ctx context.Context) error { return nil }), nil)
	return f
}

func (f *serverFixture) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) token(t *testing.T, role domain.Role) string {
	t.Helper()

	clientID := "service-client"
	if role == domain.RoleAdmin {
		clientID = "admin-client"
	}
	now := time.Now()
	token, err := f.auth.GenerateToken(&domain.TokenClaims{
		ClientID:  clientID,
		Role:      role,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(domain.TokenTTL).Unix(),
	})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

// Health and version

func TestHealthEndpoints(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready: expected 200, got %d", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/version", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("version: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test") {
		t.Errorf("version: unexpected body %s", rec.Body.String())
	}
}

func TestReady_StoreUnavailable(t *testing.T) {
	f := newTestServer(t)
	f.server.store = pingerFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	rec := f.request(t, http.MethodGet, "/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

// Token issuance

func TestToken_ValidCredentials(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/token", "",
		tokenRequest{ClientID: "service-client", ClientSecret: testServiceSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.AccessToken == "" {
		t.Errorf("unexpected token response %+v", resp)
	}
	if resp.ExpiresIn != int(domain.TokenTTL.Seconds()) {
		t.Errorf("expected expires_in %d, got %d", int(domain.TokenTTL.Seconds()), resp.ExpiresIn)
	}

	// The issued token authenticates API calls.
	rec = f.request(t, http.MethodGet, "/api/v1/accounts", resp.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected issued token accepted, got %d", rec.Code)
	}
}

func TestToken_RejectedCredentials(t *testing.T) {
	f := newTestServer(t)

	cases := []struct {
		name string
		req  tokenRequest
	}{
		{"wrong secret", tokenRequest{ClientID: "service-client", ClientSecret: "nope"}},
		{"unknown client", tokenRequest{ClientID: "ghost-client", ClientSecret: testServiceSecret}},
		{"empty", tokenRequest{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.request(t, http.MethodPost, "/api/v1/auth/token", "", tc.req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

// Auth middleware

func TestAuth_MissingToken(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodGet, "/api/v1/accounts", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_GarbageToken(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodGet, "/api/v1/accounts", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_AdminGate(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodPost, "/api/v1/requisitions", f.token(t, domain.RoleService),
		createRequisitionRequest{InstitutionID: "BANK_X"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for service role, got %d", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/api/v1/requisitions", f.token(t, domain.RoleAdmin),
		createRequisitionRequest{InstitutionID: "BANK_X"})
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 for admin role, got %d: %s", rec.Code, rec.Body.String())
	}
}

// Sync endpoints

func TestTriggerSync_Accepted(t *testing.T) {
	f := newTestServer(t)
	f.sync.RequestSyncFn = func(ctx context.Context, accountID string, req driving.SyncRequest) (*domain.Operation, error) {
		if accountID != "acc-1" {
			t.Errorf("expected acc-1, got %s", accountID)
		}
		if req.FromDate != "2026-08-01" {
			t.Errorf("expected from_date passed through, got %q", req.FromDate)
		}
		op := domain.NewOperation(accountID)
		op.MarkCompleted(3)
		return op, nil
	}

	rec := f.request(t, http.MethodPost, "/api/v1/accounts/acc-1/sync", f.token(t, domain.RoleService),
		syncRequest{FromDate: "2026-08-01"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var op domain.Operation
	if err := json.Unmarshal(rec.Body.Bytes(), &op); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if op.Status != domain.OperationStatusCompleted {
		t.Errorf("unexpected operation %+v", op)
	}
}

func TestTriggerSync_Conflict(t *testing.T) {
	f := newTestServer(t)
	f.sync.RequestSyncFn = func(ctx context.Context, accountID string, req driving.SyncRequest) (*domain.Operation, error) {
		return nil, domain.ErrSyncInProgress
	}

	rec := f.request(t, http.MethodPost, "/api/v1/accounts/acc-1/sync", f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestTriggerSync_RateLimited(t *testing.T) {
	f := newTestServer(t)
	f.sync.RequestSyncFn = func(ctx context.Context, accountID string, req driving.SyncRequest) (*domain.Operation, error) {
		return nil, domain.NewRateLimitError("daily", time.Now().Add(2*time.Hour))
	}

	rec := f.request(t, http.MethodPost, "/api/v1/accounts/acc-1/sync", f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestTriggerSync_UnknownAccount(t *testing.T) {
	f := newTestServer(t)
	f.sync.RequestSyncFn = func(ctx context.Context, accountID string, req driving.SyncRequest) (*domain.Operation, error) {
		return nil, domain.ErrNotFound
	}

	rec := f.request(t, http.MethodPost, "/api/v1/accounts/acc-ghost/sync", f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetOperation(t *testing.T) {
	f := newTestServer(t)
	op := domain.NewOperation("acc-1")
	f.sync.GetOperationFn = func(ctx context.Context, operationID string) (*domain.Operation, error) {
		if operationID == op.ID {
			return op, nil
		}
		return nil, domain.ErrNotFound
	}

	rec := f.request(t, http.MethodGet, "/api/v1/operations/"+op.ID, f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/operations/op-ghost", f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// Account endpoints

func TestListAccounts_EmptyIsJSONArray(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodGet, "/api/v1/accounts", f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %s", rec.Body.String())
	}
}

func TestGetBalance(t *testing.T) {
	f := newTestServer(t)
	next := time.Now().Add(time.Hour)
	f.account.GetBalanceFn = func(ctx context.Context, accountID string) (*domain.CachedBalance, error) {
		if accountID != "acc-1" {
			return nil, domain.ErrNotFound
		}
		return &domain.CachedBalance{
			Balance:       domain.Balance{AccountID: "acc-1", Amount: "10.00", Currency: "EUR"},
			Stale:         true,
			NextAvailable: &next,
		}, nil
	}

	rec := f.request(t, http.MethodGet, "/api/v1/accounts/acc-1/balance", f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var balance domain.CachedBalance
	if err := json.Unmarshal(rec.Body.Bytes(), &balance); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if balance.Amount != "10.00" || !balance.Stale {
		t.Errorf("unexpected balance %+v", balance)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/accounts/acc-ghost/balance", f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// Webhook ingress

func TestWebhook_Dispatch(t *testing.T) {
	f := newTestServer(t)
	var gotSignature string
	f.webhook.HandleFn = func(ctx context.Context, rawBody []byte, signature string) error {
		gotSignature = signature
		return nil
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(`{"id":"evt-1"}`))
	req.Header.Set(SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if gotSignature != "deadbeef" {
		t.Errorf("expected signature header passed through, got %q", gotSignature)
	}
}

func TestWebhook_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bad signature", domain.ErrInvalidSignature, http.StatusUnauthorized},
		{"bad payload", domain.ErrInvalidInput, http.StatusBadRequest},
		{"store failure", errors.New("redis down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTestServer(t)
			f.webhook.HandleFn = func(ctx context.Context, rawBody []byte, signature string) error {
				return tc.err
			}

			rec := f.request(t, http.MethodPost, "/webhooks/provider", "", map[string]string{"id": "evt-1"})
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

// Linking endpoints

func TestListInstitutions(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodGet, "/api/v1/institutions?country=NL", f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/institutions", f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without country, got %d", rec.Code)
	}
}

func TestDeleteRequisition(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodDelete, "/api/v1/requisitions/req-1", f.token(t, domain.RoleAdmin), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	f.link.RemoveLinkFn = func(ctx context.Context, requisitionID string) error {
		return domain.ErrNotFound
	}
	rec = f.request(t, http.MethodDelete, "/api/v1/requisitions/req-ghost", f.token(t, domain.RoleAdmin), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// Event log

func TestGetEvents(t *testing.T) {
	f := newTestServer(t)
	_, _ = f.bus.Emit(context.Background(), domain.EventSyncCompleted, map[string]any{"account_id": "acc-1"}, nil)

	rec := f.request(t, http.MethodGet, "/api/v1/events/sync-completed", f.token(t, domain.RoleAdmin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var events []*domain.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}

func TestGetEvents_UnknownType(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodGet, "/api/v1/events/cache-invalidated", f.token(t, domain.RoleAdmin), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetEvents_RequiresAdmin(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodGet, "/api/v1/events/sync-completed", f.token(t, domain.RoleService), nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

// Middleware wiring

func TestServer_HandlerPanicAnswers500(t *testing.T) {
	f := newTestServer(t)
	f.webhook.HandleFn = func(ctx context.Context, rawBody []byte, signature string) error {
		panic("webhook handler exploded")
	}

	rec := f.request(t, http.MethodPost, "/webhooks/provider", "", map[string]any{"id": "evt-1"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 from recovery, got %d", rec.Code)
	}
}
