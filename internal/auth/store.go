package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SSOKey is the redis key holding the one valid access token for a user.
func SSOKey(userID string) string { return "sso:" + userID }

// BlacklistKey is the redis key marking a revoked access token.
func BlacklistKey(token string) string { return "blacklist:" + token }

// SessionStore keeps the SSO pointer and the revocation list in redis.
type SessionStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewSessionStore builds a store whose entries live for ttl, the access token lifetime.
func NewSessionStore(client redis.Cmdable, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// SetActive records token as the user's current session, superseding any other.
func (s *SessionStore) SetActive(ctx context.Context, userID, token string) error {
	return s.client.Set(ctx, SSOKey(userID), token, s.ttl).Err()
}

// Active returns the user's current token, if any.
func (s *SessionStore) Active(ctx context.Context, userID string) (string, bool, error) {
	token, err := s.client.Get(ctx, SSOKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// Revoke blacklists token.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	return s.client.Set(ctx, BlacklistKey(token), "", s.ttl).Err()
}

// Revoked reports whether token was blacklisted.
func (s *SessionStore) Revoked(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, BlacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
