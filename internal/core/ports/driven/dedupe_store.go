package driven

import "context"

// DedupeStore admits each external transaction reference exactly once.
// Presence of a record means the transaction was already emitted at least
// once; absence is best-effort under store failure.
type DedupeStore interface {
	// IsDuplicate atomically claims externalRef (set-if-absent with TTL) and
	// reports true iff the ref was already present, i.e. this call did not
	// win the claim. On store error it fails open: reports false so a real
	// transaction is never silently dropped.
	IsDuplicate(ctx context.Context, externalRef string) (bool, error)

	// BatchCheck reports existence for each ref without claiming any of
	// them. Used for planning only.
	BatchCheck(ctx context.Context, externalRefs []string) (map[string]bool, error)

	// Sweep removes entries that outlived their retention despite missing a
	// TTL. Returns the number removed.
	Sweep(ctx context.Context) (int, error)
}
