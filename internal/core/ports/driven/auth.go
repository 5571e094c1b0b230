package driven

import "github.com/ledgerbridge/banksync-core/internal/core/domain"

// AuthAdapter hashes client secrets and issues and validates API tokens.
type AuthAdapter interface {
	// HashSecret generates a hash from a plaintext client secret.
	HashSecret(secret string) (string, error)

	// VerifySecret checks a plaintext secret against a stored hash.
	VerifySecret(secret, hash string) bool

	// GenerateToken creates a signed token from claims.
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ParseToken validates a token and extracts its claims.
	ParseToken(tokenString string) (*domain.TokenClaims, error)
}
