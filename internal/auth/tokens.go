package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	audienceAccess  = "access"
	audienceRefresh = "refresh"
)

// TokenOptions configures signing. RS256 is used when both PEM keys are set,
// otherwise HS256 with separate access and refresh secrets.
type TokenOptions struct {
	Secret        string
	RefreshSecret string
	PrivateKeyPEM string
	PublicKeyPEM  string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

type keyPair struct {
	sign   any
	verify any
}

// Tokens mints and verifies access and refresh tokens.
type Tokens struct {
	method     jwt.SigningMethod
	access     keyPair
	refresh    keyPair
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// NewTokens builds a Tokens from opts.
func NewTokens(opts TokenOptions) (*Tokens, error) {
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	t := &Tokens{
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		issuer:     opts.Issuer,
		now:        time.Now,
	}
	if opts.PrivateKeyPEM != "" && opts.PublicKeyPEM != "" {
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(opts.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("auth: parse private key: %w", err)
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(opts.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("auth: parse public key: %w", err)
		}
		t.method = jwt.SigningMethodRS256
		t.access = keyPair{sign: priv, verify: pub}
		t.refresh = t.access
		return t, nil
	}
	if opts.Secret == "" || opts.RefreshSecret == "" {
		return nil, errors.New("auth: signing secrets missing")
	}
	t.method = jwt.SigningMethodHS256
	t.access = keyPair{sign: []byte(opts.Secret), verify: []byte(opts.Secret)}
	t.refresh = keyPair{sign: []byte(opts.RefreshSecret), verify: []byte(opts.RefreshSecret)}
	return t, nil
}

// AccessTTL returns the access token lifetime.
func (t *Tokens) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (t *Tokens) RefreshTTL() time.Duration { return t.refreshTTL }

// Mint issues a new pair for userID. The returned id is the access token jti.
func (t *Tokens) Mint(userID string) (TokenPair, string, error) {
	now := t.now()
	jti := uuid.NewString()
	access, err := t.sign(t.access, userID, jti, audienceAccess, now, t.accessTTL)
	if err != nil {
		return TokenPair{}, "", err
	}
	refresh, err := t.sign(t.refresh, userID, uuid.NewString(), audienceRefresh, now, t.refreshTTL)
	if err != nil {
		return TokenPair{}, "", err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, jti, nil
}

// ParseAccess verifies an access token.
func (t *Tokens) ParseAccess(token string) (*Claims, error) {
	return t.parse(t.access, token, audienceAccess)
}

// ParseRefresh verifies a refresh token.
func (t *Tokens) ParseRefresh(token string) (*Claims, error) {
	return t.parse(t.refresh, token, audienceRefresh)
}

func (t *Tokens) sign(keys keyPair, userID, jti, audience string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(keys.sign)
	if err != nil {
		return "", fmt.Errorf("auth: sign %s token: %w", audience, err)
	}
	return signed, nil
}

func (t *Tokens) parse(keys keyPair, token, audience string) (*Claims, error) {
	if token == "" {
		return nil, errors.New("auth: empty token")
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(t.issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return keys.verify, nil
	}, parserOpts...)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("auth: token without user id")
	}
	return claims, nil
}
