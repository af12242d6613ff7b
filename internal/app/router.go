package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/permissions"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/roles"
	"github.com/odyssey-erp/odyssey-rbac/internal/upload"
	"github.com/odyssey-erp/odyssey-rbac/internal/users"
	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Tokens             auth.TokenValidator
	AuthHandler        *auth.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *permissions.Handler
	UploadHandler      *upload.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults.
//
// Routes outside the authenticated group are public: health, metrics, job
// health, captcha, login and token refresh. Everything else requires a valid
// access token and, where a handler says so, a permission marker.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	prefix := "/api/v1"
	loginLimit := 10
	if params.Config != nil {
		if params.Config.AppPrefix != "" {
			prefix = params.Config.AppPrefix
		}
		if params.Config.LoginLimitPerMin > 0 {
			loginLimit = params.Config.LoginLimitPerMin
		}
	}

	gate := auth.RequireAuth(params.Tokens, params.Logger)
	r.Route(prefix, func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(RateLimit(loginLimit))
					params.AuthHandler.MountPublicRoutes(r)
				})
				r.Group(func(r chi.Router) {
					r.Use(gate)
					params.AuthHandler.MountRoutes(r)
				})
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(gate)
			if params.RolesHandler != nil {
				r.Route("/roles", params.RolesHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.PermissionsHandler != nil {
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}
			if params.UploadHandler != nil {
				r.Route("/upload", params.UploadHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit-logs", params.AuditHandler.MountRoutes)
			}
		})
	})

	return r
}
