package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/helixcare/portal-core/internal/audit"
	"github.com/helixcare/portal-core/internal/infra/auth"
	"github.com/helixcare/portal-core/internal/portal/domain"
	"github.com/helixcare/portal-core/internal/portal/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/events", h.LogEvent)
	r.Get("/events", h.ListEvents)
	r.Get("/events/{id}/verify", h.Verify)
	r.Get("/pending", h.Pending)
	r.Get("/batches", h.ListBatches)
	r.Post("/batches/run", h.ForceBatch)
	return r
}

// LogEvent принимает событие аудита от поверхности портала
// POST /v1/audit/events
func (h *AuditHandler) LogEvent(w http.ResponseWriter, r *http.Request) {
	var req domain.LogEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	actorID := auth.UserID(r.Context())
	traceID := middleware.GetReqID(r.Context())

	ev, err := h.service.LogEvent(r.Context(), actorID, traceID, req)
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrInvalidEvent):
			http.Error(w, "invalid event", http.StatusBadRequest)
		case errors.Is(err, audit.ErrStoreUnavailable):
			// Событие не вошло в систему — клиент должен повторить
			http.Error(w, "audit store unavailable", http.StatusServiceUnavailable)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ev)
}

// ForceBatch — сервисный хук, минующий таймер (только audit.admin)
// POST /v1/audit/batches/run
func (h *AuditHandler) ForceBatch(w http.ResponseWriter, r *http.Request) {
	if !auth.HasScope(r.Context(), "audit.admin") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := h.service.ForceBatch(r.Context()); err != nil {
		http.Error(w, "batch run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(domain.ForceBatchResponse{
		Triggered: true,
		Pending:   h.service.PendingCount(),
	})
}

// Pending — размер буфера для observability
// GET /v1/audit/pending
func (h *AuditHandler) Pending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(domain.PendingResponse{Pending: h.service.PendingCount()})
}

// ListEvents возвращает события с фильтрацией
// GET /v1/audit/events?actor_id=...&action=...&unlinked=true&limit=...
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	events, err := h.service.FetchEvents(r.Context(), audit.EventFilter{
		ActorID:      q.Get("actor_id"),
		Action:       q.Get("action"),
		UnlinkedOnly: q.Get("unlinked") == "true",
		Limit:        limit,
	})
	if err != nil {
		http.Error(w, "Failed to fetch audit events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// ListBatches возвращает последние батчи
// GET /v1/audit/batches?limit=...
func (h *AuditHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	batches, err := h.service.FetchBatches(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to fetch batches", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(batches)
}

// Verify — независимая спот-проверка привязки события
// GET /v1/audit/events/{id}/verify
func (h *AuditHandler) Verify(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	ok, err := h.service.VerifyIntegrity(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		http.Error(w, "verification failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(domain.VerifyResponse{EventID: eventID, Valid: ok})
}
