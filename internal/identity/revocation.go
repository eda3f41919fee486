package identity

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:"

// Revoker keeps revoked token ids in Redis until the token would have expired.
// A nil client disables revocation.
type Revoker struct {
	rdb *redis.Client
}

// NewRevoker creates a Revoker backed by rdb.
func NewRevoker(rdb *redis.Client) *Revoker {
	return &Revoker{rdb: rdb}
}

// Revoke blacklists the token until its expiry.
func (r *Revoker) Revoke(ctx context.Context, claims *Claims) error {
	if r == nil || r.rdb == nil || claims == nil || claims.JTI == "" {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, blacklistPrefix+claims.JTI, 1, ttl).Err()
}

// IsRevoked reports whether the token id is blacklisted. Redis errors are
// returned to the caller, which decides the failure policy.
func (r *Revoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if r == nil || r.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := r.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
