// Package mocks provides hand-written in-memory implementations of the driven
// ports for service tests.
package mocks

import "github.com/ledgerbridge/banksync-core/internal/core/ports/driven"

// Interface compliance checks
var (
	_ driven.DistributedLock = (*MockDistributedLock)(nil)
	_ driven.DedupeStore     = (*MockDedupeStore)(nil)
	_ driven.CursorStore     = (*MockCursorStore)(nil)
	_ driven.RateLimiter     = (*MockRateLimiter)(nil)
	_ driven.TaskQueue       = (*MockTaskQueue)(nil)
	_ driven.SeedMarker      = (*MockTaskQueue)(nil)
	_ driven.EventBus        = (*MockEventBus)(nil)
	_ driven.OperationStore  = (*MockOperationStore)(nil)
	_ driven.ReplayGuard     = (*MockReplayGuard)(nil)
	_ driven.AccountStore    = (*MockAccountStore)(nil)
	_ driven.BalanceCache    = (*MockBalanceCache)(nil)
	_ driven.BankProvider    = (*MockBankProvider)(nil)
)
