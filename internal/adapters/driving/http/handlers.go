package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driving"
)

// SignatureHeader carries the webhook HMAC signature.
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody bounds inbound webhook payloads.
const maxWebhookBody = 1 << 20

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady pings the state store and, when configured, the archive
// database. An unreachable store means syncs cannot run safely.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "state store unavailable")
			return
		}
	}
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "archive database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Auth endpoints

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleToken exchanges configured client credentials for a bearer token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, ok := s.lookupCredential(req.ClientID)
	if !ok || !s.auth.VerifySecret(req.ClientSecret, cred.SecretHash) {
		writeError(w, http.StatusUnauthorized, "invalid client credentials")
		return
	}

	now := time.Now()
	token, err := s.auth.GenerateToken(&domain.TokenClaims{
		ClientID:  cred.ClientID,
		Role:      cred.Role,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(domain.TokenTTL).Unix(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(domain.TokenTTL.Seconds()),
	})
}

func (s *Server) lookupCredential(clientID string) (domain.APICredential, bool) {
	for _, cred := range s.credentials {
		if subtle.ConstantTimeCompare([]byte(cred.ClientID), []byte(clientID)) == 1 {
			return cred, true
		}
	}
	return domain.APICredential{}, false
}

// Webhook ingress

// handleWebhook verifies and dispatches a provider webhook. A replayed
// delivery still gets a 200 so the provider stops retrying it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	err = s.webhookService.Handle(r.Context(), body, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
	case errors.Is(err, domain.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid payload")
	default:
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
	}
}

// Sync endpoints

type syncRequest struct {
	FromDate string `json:"from_date,omitempty"`
	ToDate   string `json:"to_date,omitempty"`
}

// handleTriggerSync starts a sync for the account. Responds 202 with the
// operation for polling, or 409 when a sync is already running.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")

	var req syncRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	op, err := s.syncService.RequestSync(r.Context(), accountID, driving.SyncRequest{
		FromDate: req.FromDate,
		ToDate:   req.ToDate,
	})
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync already in progress")
		return
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if rle, ok := domain.IsRateLimited(err); ok {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(rle.RetryAfter).Seconds())+1, 10))
		writeError(w, http.StatusTooManyRequests, "account is rate limited")
		return
	}
	if op == nil {
		writeError(w, http.StatusInternalServerError, "sync failed to start")
		return
	}

	// The pipeline may have already failed; the operation carries the outcome
	// either way.
	writeJSON(w, http.StatusAccepted, op)
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	op, err := s.syncService.GetOperation(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load operation")
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// Account endpoints

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accountService.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []*domain.LinkedAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.accountService.GetBalance(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "balance not available")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// Linking endpoints

func (s *Server) handleListInstitutions(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	institutions, err := s.linkService.ListInstitutions(r.Context(), country)
	if errors.Is(err, domain.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "country query parameter is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, institutions)
}

type createRequisitionRequest struct {
	InstitutionID string `json:"institution_id"`
	RedirectURL   string `json:"redirect_url"`
}

func (s *Server) handleCreateRequisition(w http.ResponseWriter, r *http.Request) {
	var req createRequisitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	requisition, err := s.linkService.CreateLink(r.Context(), req.InstitutionID, req.RedirectURL)
	if errors.Is(err, domain.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "institution_id is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to create requisition")
		return
	}
	writeJSON(w, http.StatusCreated, requisition)
}

func (s *Server) handleGetRequisition(w http.ResponseWriter, r *http.Request) {
	requisition, err := s.linkService.GetLink(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "requisition not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch requisition")
		return
	}
	writeJSON(w, http.StatusOK, requisition)
}

func (s *Server) handleDeleteRequisition(w http.ResponseWriter, r *http.Request) {
	if err := s.linkService.RemoveLink(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "requisition not found")
			return
		}
		writeError(w, http.StatusBadGateway, "failed to delete requisition")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Event log

// handleGetEvents tails the per-type event log. Query params: from (exclusive
// log position) and count.
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	eventType := domain.EventType(r.PathValue("type"))
	switch eventType {
	case domain.EventTransactionCreated, domain.EventSyncCompleted, domain.EventSyncFailed, domain.EventAccountUpdated:
	default:
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}

	count := 100
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
		count = parsed
	}

	events, err := s.bus.GetEvents(r.Context(), eventType, driven.ReadOptions{
		FromID: r.URL.Query().Get("from"),
		Count:  count,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if events == nil {
		events = []*domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
