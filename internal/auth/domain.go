package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User represents an account as seen by the login flow.
type User struct {
	ID           string
	UserName     string
	PasswordHash string
	Disabled     bool
	Deleted      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may sign in.
func (u *User) Active() bool {
	return u != nil && !u.Disabled && !u.Deleted
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Claims is the token payload. Only the user id is carried; jti and the
// audience come from the registered claims.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// LoginInput carries credentials plus the client fingerprint the captcha was
// issued for.
type LoginInput struct {
	UserName  string
	Password  string
	Captcha   string
	IP        string
	UserAgent string
}

// SessionRecord is the audit row written for each login.
type SessionRecord struct {
	ID        string
	UserID    string
	IP        string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}
