package upload

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Handler exposes upload endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers upload routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/presigned", h.presigned)
}

func (h *Handler) presigned(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("fileName")
	if name == "" {
		name = r.URL.Query().Get("filename")
	}
	out, err := h.service.PresignUpload(r.Context(), name)
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal {
			h.logger.Error("presign upload", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}
