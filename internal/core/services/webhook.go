package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driving"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Verify interface compliance
var _ driving.WebhookService = (*WebhookGate)(nil)

// webhookSchema describes the provider's webhook envelope. Payloads that do
// not match are rejected before any dispatch.
const webhookSchema = `{
	"type": "object",
	"required": ["id", "resource_type"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"resource_type": {"type": "string", "enum": ["account", "transaction", "requisition"]},
		"account_id": {"type": "string"},
		"requisition_id": {"type": "string"},
		"payload": {"type": "object"}
	}
}`

// providerEvent is the parsed webhook envelope.
type providerEvent struct {
	ID            string         `json:"id"`
	ResourceType  string         `json:"resource_type"`
	AccountID     string         `json:"account_id"`
	RequisitionID string         `json:"requisition_id"`
	Payload       map[string]any `json:"payload"`
}

// WebhookGateConfig holds dependencies for the webhook gate.
type WebhookGateConfig struct {
	Secret      string
	ReplayGuard driven.ReplayGuard
	Bus         driven.EventBus
	Accounts    driven.AccountStore
	Scheduler   driving.SchedulerService
	Logger      *slog.Logger
}

// WebhookGate verifies inbound provider webhooks, drops replays and
// dispatches by resource type. Replays inside the window are silently
// ignored; only signature failures surface as errors.
type WebhookGate struct {
	secret      []byte
	replayGuard driven.ReplayGuard
	bus         driven.EventBus
	accounts    driven.AccountStore
	scheduler   driving.SchedulerService
	schema      *jsonschema.Schema
	logger      *slog.Logger
}

// NewWebhookGate creates a webhook gate. The envelope schema is compiled at
// construction; a compile failure is a programming error.
func NewWebhookGate(cfg WebhookGateConfig) (*WebhookGate, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(webhookSchema)))
	if err != nil {
		return nil, fmt.Errorf("parse webhook schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("webhook.json", doc); err != nil {
		return nil, fmt.Errorf("add webhook schema: %w", err)
	}
	schema, err := compiler.Compile("webhook.json")
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}

	return &WebhookGate{
		secret:      []byte(cfg.Secret),
		replayGuard: cfg.ReplayGuard,
		bus:         cfg.Bus,
		accounts:    cfg.Accounts,
		scheduler:   cfg.Scheduler,
		schema:      schema,
		logger:      logger,
	}, nil
}

// Handle verifies the signature over the raw body, validates the payload
// shape, drops replays and dispatches the event.
func (g *WebhookGate) Handle(ctx context.Context, rawBody []byte, signature string) error {
	if !g.verifySignature(rawBody, signature) {
		return domain.ErrInvalidSignature
	}

	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(rawBody))
	if err != nil {
		return fmt.Errorf("%w: malformed webhook body", domain.ErrInvalidInput)
	}
	if err := g.schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var event providerEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	replay, err := g.replayGuard.Seen(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("replay check: %w", err)
	}
	if replay {
		// Same delivery inside the window: ignore silently, not an error.
		g.logger.Info("webhook replay ignored", "event_id", event.ID)
		return nil
	}

	return g.dispatch(ctx, event)
}

// verifySignature computes HMAC-SHA256 over the raw body and compares in
// constant time.
func (g *WebhookGate) verifySignature(rawBody []byte, signature string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, g.secret)
	_, _ = mac.Write(rawBody)
	return hmac.Equal(provided, mac.Sum(nil))
}

// SignHex computes the hex signature for a body. Helper for tests and
// delivery tooling.
func SignHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// dispatch routes a verified, first-seen event by resource type.
func (g *WebhookGate) dispatch(ctx context.Context, event providerEvent) error {
	switch event.ResourceType {
	case "account":
		_, err := g.bus.Emit(ctx, domain.EventAccountUpdated, map[string]any{
			"account_id": event.AccountID,
			"source":     "webhook",
		}, map[string]string{"provider_event_id": event.ID})
		return err

	case "transaction":
		// A transaction notification triggers a targeted incremental sync
		// rather than waiting for the next polling pass.
		task := domain.NewTask(domain.TaskTypeTransactions, event.AccountID)
		task.Priority = -1
		if err := g.scheduler.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue webhook sync: %w", err)
		}
		g.logger.Info("webhook triggered sync", "account_id", event.AccountID, "event_id", event.ID)
		return nil

	case "requisition":
		// Consent revoked or expired: stop polling the linked accounts.
		if event.RequisitionID == "" {
			return nil
		}
		accounts, err := g.accounts.ListActive(ctx)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			if account.RequisitionID != event.RequisitionID {
				continue
			}
			if err := g.accounts.Deactivate(ctx, account.ID); err != nil {
				g.logger.Warn("failed to deactivate account", "account_id", account.ID, "error", err)
			}
		}
		return nil

	default:
		g.logger.Info("ignoring unknown webhook resource type", "resource_type", event.ResourceType)
		return nil
	}
}
