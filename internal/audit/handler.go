package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
	exportLimit      = 10
	exportWindow     = time.Minute
	dateLayout       = "2006-01-02"
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers the timeline and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAuditQuery))
		r.Get("/", h.timeline)
		r.With(httprate.Limit(exportLimit, exportWindow,
			httprate.WithKeyFuncs(exportKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Fail(w, http.StatusTooManyRequests, "too many exports")
			}),
		)).Get("/export.csv", h.export)
	})
}

// exportKey limits per caller, falling back to the client address.
func exportKey(r *http.Request) (string, error) {
	if id := shared.UserIDFromContext(r.Context()); id != "" {
		return "user:" + id, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	body, err := WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	to := h.now().UTC().Truncate(24 * time.Hour)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return TimelineFilters{}, shared.Validation("to must be a YYYY-MM-DD date")
		}
		to = parsed
	}
	from := to.Add(-defaultDateRange)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return TimelineFilters{}, shared.Validation("from must be a YYYY-MM-DD date")
		}
		from = parsed
	}
	if from.After(to) {
		return TimelineFilters{}, shared.Validation("from must not be after to")
	}
	if to.Sub(from) > maxDateRange {
		return TimelineFilters{}, shared.Validation("date range must not exceed 90 days")
	}

	page, err := positiveParam(q.Get("page"), "page", 1)
	if err != nil {
		return TimelineFilters{}, err
	}
	pageSize, err := positiveParam(q.Get("pageSize"), "pageSize", defaultPageSize)
	if err != nil {
		return TimelineFilters{}, err
	}

	return TimelineFilters{
		From:     from,
		To:       to,
		Actor:    strings.TrimSpace(q.Get("actor")),
		Entity:   strings.TrimSpace(q.Get("entity")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func positiveParam(raw, name string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, shared.Validation(name + " must be a positive integer")
	}
	return v, nil
}
