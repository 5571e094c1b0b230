package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven/mocks"
)

type linkFixture struct {
	provider *mocks.MockBankProvider
	accounts *mocks.MockAccountStore
	queue    *mocks.MockTaskQueue
	svc      *LinkService
}

func newTestLinkService(t *testing.T) *linkFixture {
	t.Helper()

	f := &linkFixture{
		provider: mocks.NewMockBankProvider(),
		accounts: mocks.NewMockAccountStore(),
		queue:    mocks.NewMockTaskQueue(),
	}
	scheduler := NewScheduler(SchedulerConfig{
		Queue:       f.queue,
		SeedMarker:  f.queue,
		RateLimiter: mocks.NewMockRateLimiter(),
		Accounts:    f.accounts,
		Executor:    &stubExecutor{},
		Bus:         mocks.NewMockEventBus(),
	})
	f.svc = NewLinkService(LinkServiceConfig{
		Provider:  f.provider,
		Accounts:  f.accounts,
		Scheduler: scheduler,
	})
	return f
}

func TestLinkService_CreateLink(t *testing.T) {
	f := newTestLinkService(t)

	req, err := f.svc.CreateLink(context.Background(), "TESTBANK_DE", "https://app.example.com/done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.InstitutionID != "TESTBANK_DE" {
		t.Errorf("unexpected requisition %+v", req)
	}

	_, err = f.svc.CreateLink(context.Background(), "", "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty institution, got %v", err)
	}
}

func TestLinkService_GetLink_RegistersLinkedAccounts(t *testing.T) {
	f := newTestLinkService(t)
	f.provider.Requisitions["req-1"] = &domain.Requisition{
		ID:            "req-1",
		InstitutionID: "TESTBANK_DE",
		Status:        domain.RequisitionStatusLinked,
		AccountIDs:    []string{"acc-1", "acc-2"},
	}

	req, err := f.svc.GetLink(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.Active() {
		t.Fatalf("expected active requisition, got %s", req.Status)
	}

	for _, id := range []string{"acc-1", "acc-2"} {
		account, err := f.accounts.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("expected %s registered: %v", id, err)
		}
		if !account.Active || account.RequisitionID != "req-1" {
			t.Errorf("unexpected account state %+v", account)
		}
	}

	// Each new account gets an initial detail fetch queued.
	if n, _ := f.queue.Len(context.Background()); n != 2 {
		t.Errorf("expected 2 detail tasks, got %d", n)
	}

	// A second poll must not duplicate registrations.
	if _, err := f.svc.GetLink(context.Background(), "req-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := f.queue.Len(context.Background()); n != 2 {
		t.Errorf("expected registration to be idempotent, got %d tasks", n)
	}
}

func TestLinkService_GetLink_PendingDoesNotRegister(t *testing.T) {
	f := newTestLinkService(t)
	f.provider.Requisitions["req-1"] = &domain.Requisition{
		ID:         "req-1",
		Status:     domain.RequisitionStatusCreated,
		AccountIDs: []string{"acc-1"},
	}

	if _, err := f.svc.GetLink(context.Background(), "req-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.accounts.Get(context.Background(), "acc-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("expected no account registration before consent completes")
	}
}

func TestLinkService_RemoveLink(t *testing.T) {
	f := newTestLinkService(t)
	f.provider.Requisitions["req-1"] = &domain.Requisition{ID: "req-1", Status: domain.RequisitionStatusLinked}
	_ = f.accounts.Save(context.Background(), &domain.LinkedAccount{ID: "acc-1", RequisitionID: "req-1", Active: true})

	if err := f.svc.RemoveLink(context.Background(), "req-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	account, _ := f.accounts.Get(context.Background(), "acc-1")
	if account.Active {
		t.Error("expected account deactivated on consent removal")
	}
	if _, ok := f.provider.Requisitions["req-1"]; ok {
		t.Error("expected requisition deleted at the provider")
	}
}
