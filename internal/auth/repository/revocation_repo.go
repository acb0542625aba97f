package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokedKeyPrefix = "pm:auth:revoked:" // pm:auth:revoked:{jti}
)

// RevocationRepository remembers logged-out token ids until they expire.
type RevocationRepository struct {
	client *redis.Client
	now    func() time.Time
}

func NewRevocationRepository(client *redis.Client) *RevocationRepository {
	return &RevocationRepository{client: client, now: time.Now}
}

// Revoke marks the token id as revoked until expiresAt.
// Already expired tokens are ignored.
func (r *RevocationRepository) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (r *RevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

func (r *RevocationRepository) key(jti string) string {
	return revokedKeyPrefix + jti
}
