package permissions

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Handler manages permission node endpoints.
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

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermMenuAdd)).Post("/", h.createPermission)
	r.Get("/", h.listPermissions)
	r.Get("/tree", h.tree)
	r.With(h.rbac.RequireAny(shared.PermMenuDel)).Post("/batch-delete", h.batchDelete)
	r.Get("/{id}", h.getPermission)
	r.With(h.rbac.RequireAny(shared.PermMenuEdit)).Patch("/{id}", h.updatePermission)
	r.With(h.rbac.RequireAny(shared.PermMenuDel)).Delete("/{id}", h.deletePermission)
}

type batchDeleteRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := h.service.Create(r.Context(), shared.UserIDFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.OK(w, map[string]int64{"id": id})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	q, err := httpx.ParseListQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f := ListFilter{ListQuery: q}
	if raw := strings.ToUpper(r.URL.Query().Get("type")); raw != "" {
		f.Type = rbac.PermissionType(raw)
		if !f.Type.Valid() {
			httpx.RespondError(w, shared.Validation("type must be one of DIRECTORY, MENU, BUTTON"))
			return
		}
	}
	page, err := h.service.List(r.Context(), f)
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.OK(w, page)
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	withButtons, err := httpx.BoolParam(r.URL.Query().Get("containButton"), "containButton")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tree, err := h.service.Tree(r.Context(), withButtons != nil && *withButtons)
	if err != nil {
		h.fail(w, "permission tree", err)
		return
	}
	httpx.OK(w, tree)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get permission", err)
		return
	}
	httpx.OK(w, p)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
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
		h.fail(w, "update permission", err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), shared.UserIDFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete permission", err)
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
		h.fail(w, "batch delete permissions", err)
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
