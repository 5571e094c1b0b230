package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.LinkService = (*LinkService)(nil)

// LinkServiceConfig holds dependencies for the consent flow.
type LinkServiceConfig struct {
	Provider  driven.BankProvider
	Accounts  driven.AccountStore
	Scheduler driving.SchedulerService
	Logger    *slog.Logger
}

// LinkService walks accounts through the provider consent flow and registers
// newly linked accounts so the scheduler starts polling them.
type LinkService struct {
	provider  driven.BankProvider
	accounts  driven.AccountStore
	scheduler driving.SchedulerService
	logger    *slog.Logger
}

// NewLinkService creates a link service.
func NewLinkService(cfg LinkServiceConfig) *LinkService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkService{
		provider:  cfg.Provider,
		accounts:  cfg.Accounts,
		scheduler: cfg.Scheduler,
		logger:    logger,
	}
}

// ListInstitutions returns banks selectable during linking for a country.
func (s *LinkService) ListInstitutions(ctx context.Context, country string) ([]domain.Institution, error) {
	if country == "" {
		return nil, fmt.Errorf("%w: country is required", domain.ErrInvalidInput)
	}
	return s.provider.ListInstitutions(ctx, country)
}

// CreateLink starts a consent flow against an institution.
func (s *LinkService) CreateLink(ctx context.Context, institutionID, redirectURL string) (*domain.Requisition, error) {
	if institutionID == "" {
		return nil, fmt.Errorf("%w: institution_id is required", domain.ErrInvalidInput)
	}
	req, err := s.provider.CreateRequisition(ctx, institutionID, redirectURL)
	if err != nil {
		return nil, err
	}
	s.logger.Info("consent flow started", "requisition_id", req.ID, "institution_id", institutionID)
	return req, nil
}

// GetLink fetches the consent status. Once the requisition reports linked,
// its accounts are saved and an initial details task is queued per account.
func (s *LinkService) GetLink(ctx context.Context, requisitionID string) (*domain.Requisition, error) {
	req, err := s.provider.GetRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if !req.Active() {
		return req, nil
	}

	for _, accountID := range req.AccountIDs {
		if err := s.registerAccount(ctx, req, accountID); err != nil {
			s.logger.Warn("failed to register linked account", "account_id", accountID, "error", err)
		}
	}
	return req, nil
}

// registerAccount persists a newly linked account once and seeds its first
// detail fetch. Already-known accounts are left untouched.
func (s *LinkService) registerAccount(ctx context.Context, req *domain.Requisition, accountID string) error {
	existing, err := s.accounts.Get(ctx, accountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if existing != nil {
		return nil
	}

	account := &domain.LinkedAccount{
		ID:            accountID,
		RequisitionID: req.ID,
		InstitutionID: req.InstitutionID,
		Active:        true,
		LinkedAt:      time.Now().UTC(),
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return err
	}

	if err := s.scheduler.Enqueue(ctx, domain.NewTask(domain.TaskTypeDetails, accountID)); err != nil {
		s.logger.Warn("failed to enqueue detail fetch for new account", "account_id", accountID, "error", err)
	}
	s.logger.Info("account linked", "account_id", accountID, "requisition_id", req.ID)
	return nil
}

// RemoveLink revokes the consent and deactivates its accounts.
func (s *LinkService) RemoveLink(ctx context.Context, requisitionID string) error {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		if account.RequisitionID != requisitionID {
			continue
		}
		if err := s.accounts.Deactivate(ctx, account.ID); err != nil {
			s.logger.Warn("failed to deactivate account", "account_id", account.ID, "error", err)
		}
	}

	if err := s.provider.DeleteRequisition(ctx, requisitionID); err != nil {
		return err
	}
	s.logger.Info("consent revoked", "requisition_id", requisitionID)
	return nil
}
