package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/rl1809/stock-transfer/internal/core/domain"
	"github.com/rl1809/stock-transfer/internal/core/service"
	"github.com/rl1809/stock-transfer/internal/logging"
)

const defaultHistoryLimit = 20

type HTTPHandler struct {
	sessions  *service.SessionService
	loader    *service.ReferenceLoader
	transfers *service.TransferService
	logger    *zap.Logger
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func NewHTTPHandler(
	sessions *service.SessionService,
	loader *service.ReferenceLoader,
	transfers *service.TransferService,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		sessions:  sessions,
		loader:    loader,
		transfers: transfers,
		logger:    logging.OrNop(logger),
	}
}

// Routes builds the HTTP API. metrics may be nil.
func (h *HTTPHandler) Routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/reference", h.Reference)
		r.Post("/reference/reload", h.ReloadReference)
		r.Get("/transfers", h.Transfers)

		r.Post("/sessions", h.OpenSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.AbandonSession)
			r.Put("/destination", h.SetDestination)
			r.Put("/notes", h.SetNotes)
			r.Post("/submit", h.Submit)

			r.Put("/staging/item", h.SelectItem)
			r.Put("/staging/quantity", h.SetStagingQuantity)
			r.Post("/staging/serials", h.AddTempSerial)
			r.Delete("/staging/serials/{serial}", h.RemoveTempSerial)
			r.Post("/staging/serials/{serial}/toggle", h.ToggleAvailableSerial)

			r.Post("/lines", h.AddLine)
			r.Delete("/lines/{itemID}", h.RemoveLine)
			r.Post("/lines/{itemID}/adjust", h.AdjustQuantity)
			r.Put("/lines/{itemID}/quantity", h.SetQuantity)
			r.Post("/lines/{itemID}/serials/{serial}/toggle", h.ToggleSerial)
		})
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	refs := h.loader.Current()
	status := "ok"
	if !refs.CanChooseDestination() || !refs.CanAddItems() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *HTTPHandler) Reference(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: newReferenceResponse(h.loader.Current())})
}

// ReloadReference refetches clinics and items. A partial failure still
// returns whatever loaded.
func (h *HTTPHandler) ReloadReference(w http.ResponseWriter, r *http.Request) {
	refs, err := h.loader.Load(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, Response{
			Success: false,
			Message: service.UserMessage(err, service.FallbackLoadMessage),
			Data:    newReferenceResponse(refs),
		})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: newReferenceResponse(refs)})
}

func (h *HTTPHandler) Transfers(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.badRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.transfers.History(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err, "Failed to load transfer history.", nil)
		return
	}
	out := make([]transferRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newTransferRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: out})
}

func (h *HTTPHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	view := h.sessions.Open(r.Context())
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: newSessionResponse(view)})
}

func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.View(r.Context(), chi.URLParam(r, "sessionID"))
	h.writeView(w, r, view, err)
}

func (h *HTTPHandler) AbandonSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Abandon(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, r, err, service.FallbackSubmitMessage, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type destinationRequest struct {
	ClinicID string `json:"clinic_id"`
}

func (h *HTTPHandler) SetDestination(w http.ResponseWriter, r *http.Request) {
	var req destinationRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.sessions.SetDestination(r.Context(), chi.URLParam(r, "sessionID"), req.ClinicID)
	h.writeView(w, r, view, err)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *HTTPHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.sessions.SetNotes(r.Context(), chi.URLParam(r, "sessionID"), req.Notes)
	h.writeView(w, r, view, err)
}

type selectItemRequest struct {
	ItemID int `json:"item_id"`
}

func (h *HTTPHandler) SelectItem(w http.ResponseWriter, r *http.Request) {
	var req selectItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.sessions.SelectItem(r.Context(), chi.URLParam(r, "sessionID"), req.ItemID)
	h.writeView(w, r, view, err)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *HTTPHandler) SetStagingQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.sessions.SetStagingQuantity(r.Context(), chi.URLParam(r, "sessionID"), req.Quantity)
	h.writeView(w, r, view, err)
}

type serialRequest struct {
	Serial string `json:"serial"`
}

func (h *HTTPHandler) AddTempSerial(w http.ResponseWriter, r *http.Request) {
	var req serialRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.sessions.AddTempSerial(r.Context(), chi.URLParam(r, "sessionID"), req.Serial)
	h.writeView(w, r, view, err)
}

func (h *HTTPHandler) RemoveTempSerial(w http.ResponseWriter, r *http.Request) {
	serial, ok := h.serial(w, r)
	if !ok {
		return
	}
	view, err := h.sessions.RemoveTempSerial(r.Context(), chi.URLParam(r, "sessionID"), serial)
	h.writeView(w, r, view, err)
}

func (h *HTTPHandler) ToggleAvailableSerial(w http.ResponseWriter, r *http.Request) {
	serial, ok := h.serial(w, r)
	if !ok {
		return
	}
	view, err := h.sessions.ToggleAvailableSerial(r.Context(), chi.URLParam(r, "sessionID"), serial)
	h.writeView(w, r, view, err)
}

func (h *HTTPHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.AddLine(r.Context(), chi.URLParam(r, "sessionID"))
	h.writeView(w, r, view, err)
}

func (h *HTTPHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	view, err := h.sessions.RemoveLine(r.Context(), chi.URLParam(r, "sessionID"), itemID)
	h.writeView(w, r, view, err)
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

func (h *HTTPHandler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.sessions.AdjustQuantity(r.Context(), chi.URLParam(r, "sessionID"), itemID, req.Delta)
	h.writeView(w, r, view, err)
}

func (h *HTTPHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.sessions.SetQuantity(r.Context(), chi.URLParam(r, "sessionID"), itemID, req.Quantity)
	h.writeView(w, r, view, err)
}

func (h *HTTPHandler) ToggleSerial(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	serial, ok := h.serial(w, r)
	if !ok {
		return
	}
	view, err := h.sessions.ToggleSerial(r.Context(), chi.URLParam(r, "sessionID"), itemID, serial)
	h.writeView(w, r, view, err)
}

func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	conf, view, err := h.sessions.Submit(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err, service.FallbackSubmitMessage, sessionData(view))
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: conf.Message,
		Data: submitResponse{
			TransferredCount: conf.TransferredCount,
			IdempotencyKey:   conf.IdempotencyKey,
			SubmittedAt:      conf.SubmittedAt,
			Session:          newSessionResponse(view),
		},
	})
}

func (h *HTTPHandler) writeView(w http.ResponseWriter, r *http.Request, view service.SessionView, err error) {
	if err != nil {
		h.writeError(w, r, err, service.FallbackSubmitMessage, sessionData(view))
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: newSessionResponse(view)})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string, data any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, Response{
		Success: false,
		Message: service.UserMessage(err, fallback),
		Data:    data,
	})
}

func statusFor(err error) int {
	var be *domain.BackendError
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSubmissionInFlight), errors.Is(err, service.ErrDuplicateSubmission):
		return http.StatusConflict
	case domain.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.As(err, &be):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		h.badRequest(w, "invalid request body")
		return false
	}
	return true
}

func (h *HTTPHandler) itemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "itemID"))
	if err != nil {
		h.badRequest(w, "invalid item id")
		return 0, false
	}
	return id, true
}

// serial reads the serial path segment. chi hands back the escaped segment
// when the request path carries an escaped separator.
func (h *HTTPHandler) serial(w http.ResponseWriter, r *http.Request) (string, bool) {
	serial := chi.URLParam(r, "serial")
	if r.URL.RawPath == "" {
		return serial, true
	}
	serial, err := url.PathUnescape(serial)
	if err != nil {
		h.badRequest(w, "invalid serial")
		return "", false
	}
	return serial, true
}

func (h *HTTPHandler) badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: message})
}

func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
