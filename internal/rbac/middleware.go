package rbac

import (
	"context"
	"net/http"
	"strings"

	"log/slog"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Resolver is the part of Service the middleware needs.
type Resolver interface {
	FindUserPermissions(ctx context.Context, userID string) ([]string, error)
	SuperPermission() string
}

// DecisionObserver receives gate outcomes. *observability.Metrics implements it.
type DecisionObserver interface {
	GateDecision(outcome string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers. It expects an
// authenticated principal in the request context.
type Middleware struct {
	Service  Resolver
	Logger   *slog.Logger
	Observer DecisionObserver
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAnyPermission)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAllPermissions)
}

func (m Middleware) require(required []string, match func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID := shared.UserIDFromContext(r.Context())
			if userID == "" {
				m.deny(w, "anonymous")
				return
			}
			granted, err := m.Service.FindUserPermissions(r.Context(), userID)
			if err != nil {
				if shared.KindOf(err) == shared.KindNotFound {
					m.deny(w, "unknown_user")
					return
				}
				if m.Logger != nil {
					m.Logger.Error("rbac resolve permissions", slog.String("user_id", userID), slog.Any("error", err))
				}
				m.record("error")
				httpx.RespondError(w, err)
				return
			}
			if hasPermission(granted, m.Service.SuperPermission()) || match(granted, required) {
				m.record("allow")
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, "insufficient")
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, outcome string) {
	m.record(outcome)
	httpx.RespondError(w, shared.ErrForbidden)
}

func (m Middleware) record(outcome string) {
	if m.Observer != nil {
		m.Observer.GateDecision(outcome)
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func hasPermission(granted []string, perm string) bool {
	if perm == "" {
		return false
	}
	for _, p := range granted {
		if strings.EqualFold(p, perm) {
			return true
		}
	}
	return false
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
