package roles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermRoleAdd)).Post("/", h.createRole)
	r.With(h.rbac.RequireAny(shared.PermRoleQuery)).Get("/", h.listRoles)
	r.Get("/all", h.listActive)
	r.Get("/{id}", h.getRole)
	r.With(h.rbac.RequireAny(shared.PermRoleEdit)).Patch("/{id}", h.updateRole)
	r.With(h.rbac.RequireAny(shared.PermRoleDel)).Delete("/{id}", h.deleteRole)
	r.With(h.rbac.RequireAny(shared.PermRoleDel)).Post("/batch-delete", h.batchDelete)
}

type batchDeleteRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := h.service.Create(r.Context(), shared.UserIDFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.OK(w, map[string]int64{"id": id})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	q, err := httpx.ParseListQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), q)
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.OK(w, page)
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListActive(r.Context())
	if err != nil {
		h.fail(w, "list active roles", err)
		return
	}
	httpx.OK(w, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.OK(w, detail)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Update(r.Context(), shared.UserIDFromContext(r.Context()), id, in); err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), shared.UserIDFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) batchDelete(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.BatchDelete(r.Context(), shared.UserIDFromContext(r.Context()), req.IDs); err != nil {
		h.fail(w, "batch delete roles", err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("id must be a positive integer")
	}
	return id, nil
}
