// Package captcha issues and verifies short human-verification codes bound to
// a client fingerprint (ip and user agent).
package captcha

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/cases"
)

const (
	keyPrefix     = "captcha:"
	payloadPrefix = "data:image/svg+xml;base64,"
	alphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"
)

// Options controls code shape and lifetime.
type Options struct {
	TTL    time.Duration
	Length int
	Width  int
	Height int
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 120 * time.Second
	}
	if o.Length <= 0 {
		o.Length = 4
	}
	if o.Width <= 0 {
		o.Width = 150
	}
	if o.Height <= 0 {
		o.Height = 50
	}
	return o
}

// Service stores codes in Redis under a hashed fingerprint key.
type Service struct {
	client redis.Cmdable
	opts   Options
}

// NewService constructs a Service.
func NewService(client redis.Cmdable, opts Options) *Service {
	return &Service{client: client, opts: opts.withDefaults()}
}

// Key derives the cache key for a client fingerprint.
func Key(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + ":" + userAgent))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Issue generates a fresh code for the fingerprint and returns it rendered as an
// inline SVG data URI. A previous code for the same fingerprint is replaced.
func (s *Service) Issue(ctx context.Context, ip, userAgent string) (string, error) {
	code, err := randomCode(s.opts.Length)
	if err != nil {
		return "", fmt.Errorf("captcha: generate: %w", err)
	}
	if err := s.client.Set(ctx, Key(ip, userAgent), code, s.opts.TTL).Err(); err != nil {
		return "", fmt.Errorf("captcha: store: %w", err)
	}
	svg := Render(code, s.opts.Width, s.opts.Height)
	return payloadPrefix + base64.StdEncoding.EncodeToString([]byte(svg)), nil
}

// Verify compares code case-insensitively with the stored value. A match consumes
// the code; a mismatch leaves it in place so the client can retry within the TTL.
func (s *Service) Verify(ctx context.Context, ip, userAgent, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	key := Key(ip, userAgent)
	stored, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("captcha: load: %w", err)
	}
	if cases.Fold().String(stored) != cases.Fold().String(code) {
		return false, nil
	}
	// Only the caller that actually removes the key wins when two verifies race.
	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("captcha: consume: %w", err)
	}
	return deleted == 1, nil
}

func randomCode(n int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
