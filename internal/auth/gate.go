package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// TokenValidator is the part of Service the gate needs.
type TokenValidator interface {
	Validate(ctx context.Context, accessToken string) (*Claims, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth rejects requests without a valid access token and attaches the
// principal otherwise. Store failures answer 500.
func RequireAuth(v TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				httpx.RespondError(w, shared.Unauthorized("missing bearer token"))
				return
			}
			claims, err := v.Validate(r.Context(), token)
			if err != nil {
				if shared.KindOf(err) != shared.KindUnauthorized && logger != nil {
					logger.Error("validate token", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: claims.UserID, Token: token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
