package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermUserAdd)).Post("/", h.createUser)
	r.With(h.rbac.RequireAny(shared.PermUserQuery)).Get("/", h.listUsers)
	r.Patch("/profile", h.updateProfile)
	r.With(h.rbac.RequireAny(shared.PermUserDel)).Post("/batch-delete", h.batchDelete)
	r.Get("/{id}", h.getUser)
	r.With(h.rbac.RequireAny(shared.PermUserEdit)).Patch("/{id}", h.updateUser)
	r.With(h.rbac.RequireAny(shared.PermUserDel)).Delete("/{id}", h.deleteUser)
	r.With(h.rbac.RequireAny(shared.PermUserReset)).Patch("/{id}/password", h.resetPassword)
}

type batchDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := h.service.Create(r.Context(), shared.UserIDFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpx.OK(w, map[string]string{"id": id})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q, err := httpx.ParseListQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), q)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.OK(w, page)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.OK(w, detail)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
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
		h.fail(w, "update user", err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in ProfileInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UpdateProfile(r.Context(), shared.UserIDFromContext(r.Context()), in); err != nil {
		h.fail(w, "update profile", err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), shared.UserIDFromContext(r.Context()), id); err != nil {
		h.fail(w, "reset password", err)
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), shared.UserIDFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete user", err)
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
		h.fail(w, "batch delete users", err)
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

func pathID(r *http.Request) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return "", shared.Validation("id must be a UUID")
	}
	return id.String(), nil
}
