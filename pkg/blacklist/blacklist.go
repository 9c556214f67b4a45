package blacklist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "blacklist"

// TokenBlacklist stores revoked access tokens and per-user revocation
// markers in Redis. Tokens are stored by hash, never verbatim.
type TokenBlacklist struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTokenBlacklist(redisClient redis.UniversalClient) *TokenBlacklist {
	return &TokenBlacklist{
		redis:  redisClient,
		prefix: defaultPrefix,
	}
}

func (b *TokenBlacklist) tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%s:token:%s", b.prefix, hex.EncodeToString(sum[:]))
}

func (b *TokenBlacklist) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", b.prefix, userID)
}

// AddAccessToken blacklists a token for its remaining lifetime.
// Expired tokens are ignored.
func (b *TokenBlacklist) AddAccessToken(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := b.redis.Set(ctx, b.tokenKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

func (b *TokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	exists, err := b.redis.Exists(ctx, b.tokenKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// BlacklistUser invalidates every token of the user issued up to now, at
// millisecond resolution. The marker expires after ttl, which must outlive
// the longest token.
func (b *TokenBlacklist) BlacklistUser(ctx context.Context, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := b.redis.Set(ctx, b.userKey(userID), time.Now().UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist user: %w", err)
	}
	return nil
}

// IsUserBlacklisted reports whether a token issued at issuedAt predates the
// user's revocation marker.
func (b *TokenBlacklist) IsUserBlacklisted(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	marker, err := b.redis.Get(ctx, b.userKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user blacklist: %w", err)
	}

	return issuedAt.UnixMilli() <= marker, nil
}
