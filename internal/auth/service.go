package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// CaptchaVerifier checks a one-time captcha answer.
type CaptchaVerifier interface {
	Verify(ctx context.Context, ip, userAgent, code string) (bool, error)
}

// Observer receives login and token-check outcomes. *observability.Metrics implements it.
type Observer interface {
	LoginAttempt(outcome string)
	TokenCheck(outcome string)
}

// Options tunes the session rules.
type Options struct {
	// SSOStrict makes every request, not just refresh, require the SSO pointer
	// to match the presented access token.
	SSOStrict  bool
	BcryptCost int
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *Tokens
	store    *SessionStore
	captcha  CaptchaVerifier
	opts     Options
	logger   *slog.Logger
	observer Observer
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *Tokens, store *SessionStore, captcha CaptchaVerifier, opts Options, logger *slog.Logger) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, store: store, captcha: captcha, opts: opts, logger: logger}
}

// WithObserver attaches an outcome observer.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// Login checks captcha and credentials and opens a new session. Every
// credential failure returns shared.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, in LoginInput) (TokenPair, error) {
	ok, err := s.captcha.Verify(ctx, in.IP, in.UserAgent, in.Captcha)
	if err != nil {
		s.loginOutcome("error")
		return TokenPair{}, fmt.Errorf("auth: verify captcha: %w", err)
	}
	if !ok {
		s.loginOutcome("bad_captcha")
		return TokenPair{}, shared.ErrInvalidCredentials
	}
	user, err := s.repo.FindActiveByUserName(ctx, in.UserName)
	if err != nil {
		if shared.KindOf(err) == shared.KindNotFound {
			s.loginOutcome("unknown_user")
			return TokenPair{}, shared.ErrInvalidCredentials
		}
		s.loginOutcome("error")
		return TokenPair{}, fmt.Errorf("auth: find user: %w", err)
	}
	if !user.Active() {
		s.loginOutcome("unknown_user")
		return TokenPair{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		s.loginOutcome("bad_password")
		return TokenPair{}, shared.ErrInvalidCredentials
	}

	pair, jti, err := s.tokens.Mint(user.ID)
	if err != nil {
		s.loginOutcome("error")
		return TokenPair{}, err
	}
	if err := s.store.SetActive(ctx, user.ID, pair.AccessToken); err != nil {
		s.loginOutcome("error")
		return TokenPair{}, fmt.Errorf("auth: set sso pointer: %w", err)
	}
	now := time.Now().UTC()
	rec := SessionRecord{
		ID:        jti,
		UserID:    user.ID,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokens.RefreshTTL()),
	}
	if err := s.repo.CreateSession(ctx, rec); err != nil {
		s.logger.Warn("register session", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	s.loginOutcome("success")
	return pair, nil
}

// Logout revokes the access token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	if err := s.store.Revoke(ctx, accessToken); err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

// Refresh exchanges a refresh token for a new pair. The access token must not
// be revoked and must still be the user's current session.
func (s *Service) Refresh(ctx context.Context, refreshToken, accessToken string) (TokenPair, error) {
	revoked, err := s.store.Revoked(ctx, accessToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: check blacklist: %w", err)
	}
	if revoked {
		return TokenPair{}, shared.Unauthorized("token is invalid")
	}
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, shared.Unauthorized("please login again")
	}
	current, ok, err := s.store.Active(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: read sso pointer: %w", err)
	}
	if ok && current != accessToken {
		return TokenPair{}, shared.Unauthorized("signed in elsewhere")
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil && shared.KindOf(err) != shared.KindNotFound {
		return TokenPair{}, fmt.Errorf("auth: find user: %w", err)
	}
	if err != nil || !user.Active() {
		return TokenPair{}, shared.Unauthorized("no user found")
	}

	pair, _, err := s.tokens.Mint(claims.UserID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.SetActive(ctx, claims.UserID, pair.AccessToken); err != nil {
		return TokenPair{}, fmt.Errorf("auth: set sso pointer: %w", err)
	}
	return pair, nil
}

// Validate authenticates an access token for a request.
func (s *Service) Validate(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		s.tokenOutcome("invalid")
		return nil, shared.Unauthorized("invalid token")
	}
	revoked, err := s.store.Revoked(ctx, accessToken)
	if err != nil {
		s.tokenOutcome("error")
		return nil, fmt.Errorf("auth: check blacklist: %w", err)
	}
	if revoked {
		s.tokenOutcome("revoked")
		return nil, shared.Unauthorized("token has been revoked")
	}
	if s.opts.SSOStrict {
		current, ok, err := s.store.Active(ctx, claims.UserID)
		if err != nil {
			s.tokenOutcome("error")
			return nil, fmt.Errorf("auth: read sso pointer: %w", err)
		}
		if !ok || current != accessToken {
			s.tokenOutcome("superseded")
			return nil, shared.Unauthorized("signed in elsewhere")
		}
	}
	s.tokenOutcome("valid")
	return claims, nil
}

// ChangePassword replaces the caller's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == newPassword {
		return shared.Validation("old and new password cannot be the same")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Active() {
		return shared.NotFound("user not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return shared.Validation("old password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, userID, string(hash))
}

// PruneSessions removes session audit rows that expired before cutoff.
func (s *Service) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.PruneSessions(ctx, cutoff)
}

func (s *Service) loginOutcome(outcome string) {
	if s.observer != nil {
		s.observer.LoginAttempt(outcome)
	}
}

func (s *Service) tokenOutcome(outcome string) {
	if s.observer != nil {
		s.observer.TokenCheck(outcome)
	}
}
