package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// CaptchaIssuer produces a captcha image for a client fingerprint.
type CaptchaIssuer interface {
	Issue(ctx context.Context, ip, userAgent string) (string, error)
}

// UserInfoSource resolves the profile, permissions and menus of a user.
type UserInfoSource interface {
	GetUserInfo(ctx context.Context, userID string) (rbac.UserInfo, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	captcha   CaptchaIssuer
	profiles  UserInfoSource
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, captcha CaptchaIssuer, profiles UserInfoSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		captcha:   captcha,
		profiles:  profiles,
		validator: httpx.NewValidator(),
	}
}

// MountPublicRoutes registers the routes reachable without a token.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/captcha", h.handleCaptcha)
	r.Post("/login", h.handleLogin)
	r.Get("/refresh_token", h.handleRefresh)
}

// MountRoutes registers the routes that need an authenticated principal.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/logout", h.handleLogout)
	r.Get("/userinfo", h.handleUserInfo)
	r.Post("/password", h.handleChangePassword)
}

type loginRequest struct {
	UserName string `json:"userName" validate:"required,username"`
	Password string `json:"password" validate:"required,password"`
	Captcha  string `json:"captcha" validate:"required,min=4"`
}

type passwordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required,password"`
	NewPassword string `json:"newPassword" validate:"required,password"`
}

func (h *Handler) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	image, err := h.captcha.Issue(r.Context(), clientIP(r), r.UserAgent())
	if err != nil {
		h.logger.Error("issue captcha", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]string{"captcha": image})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pair, err := h.service.Login(r.Context(), LoginInput{
		UserName:  req.UserName,
		Password:  req.Password,
		Captcha:   req.Captcha,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logFailure("login", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, pair)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refreshToken")
	if refresh == "" {
		httpx.RespondError(w, shared.Validation("refreshToken is required"))
		return
	}
	pair, err := h.service.Refresh(r.Context(), refresh, BearerToken(r))
	if err != nil {
		h.logFailure("refresh token", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.Unauthorized("missing bearer token"))
		return
	}
	if err := h.service.Logout(r.Context(), principal.Token); err != nil {
		h.logFailure("logout", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.profiles.GetUserInfo(r.Context(), shared.UserIDFromContext(r.Context()))
	if err != nil {
		h.logFailure("user info", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, info)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), shared.UserIDFromContext(r.Context()), req.OldPassword, req.NewPassword); err != nil {
		h.logFailure("change password", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) logFailure(op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
}

// clientIP drops the port so the captcha fingerprint survives new connections.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
