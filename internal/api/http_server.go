package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"grillbook/internal/config"
	"grillbook/internal/domain"
	"grillbook/internal/metrics"
	"grillbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	headerUserID    = "X-User-ID"
	headerRequestID = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// HTTPServer exposes the reservation JSON API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     *service.ReservationService
	server  *http.Server
	limiter *rateLimiter
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc *service.ReservationService, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, svc: svc, logger: logger}
	srv.limiter = newRateLimiter(cfg.RateLimit)

	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /api/v1/status", srv.instrument("status", srv.handleStatus))
	mux.HandleFunc("GET /api/v1/apartments", srv.instrument("apartments", srv.handleApartments))
	mux.HandleFunc("GET /api/v1/reservations", srv.instrument("list_reservations", srv.handleListReservations))
	mux.HandleFunc("POST /api/v1/reservations", srv.instrument("create_reservation", srv.handleCreateReservation))
	mux.HandleFunc("GET /api/v1/reservations/{id}", srv.instrument("get_reservation", srv.handleGetReservation))
	mux.HandleFunc("PUT /api/v1/reservations/{id}", srv.instrument("update_reservation", srv.handleUpdateReservation))
	mux.HandleFunc("DELETE /api/v1/reservations/{id}", srv.instrument("delete_reservation", srv.handleDeleteReservation))
	mux.HandleFunc("POST /api/v1/reservations/{id}/cancel", srv.instrument("cancel_reservation", srv.handleCancelReservation))
	mux.HandleFunc("GET /api/v1/slots", srv.instrument("start_slots", srv.handleStartSlots))
	mux.HandleFunc("GET /api/v1/slots/end", srv.instrument("end_slots", srv.handleEndSlots))
	mux.HandleFunc("GET /api/v1/calendar", srv.instrument("calendar", srv.handleCalendar))
	mux.HandleFunc("GET /api/v1/history", srv.instrument("history", srv.handleHistory))
	mux.HandleFunc("GET /api/v1/history/export", srv.instrument("history_export", srv.handleHistoryExport))

	handler := srv.loggingMiddleware(srv.limiter.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the full middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(endpoint)
		h(w, r)
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		event := s.logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// writeServiceError maps domain errors onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, service.MsgNotFound)
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, service.MsgTooManyTries)
	case errors.Is(err, domain.ErrSlotTaken):
		writeError(w, http.StatusConflict, domain.ErrSlotTaken.Error()+".")
	case errors.Is(err, domain.ErrStoreUnavailable):
		s.logger.Error().Err(err).Msg("Store unavailable")
		writeError(w, http.StatusServiceUnavailable, "try again later")
	default:
		s.logger.Error().Err(err).Msg("Unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", domain.ErrValidation)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
