package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"grillbook/internal/domain"
	"grillbook/internal/export"
	"grillbook/internal/models"
	"grillbook/internal/service"
	"grillbook/internal/timeutil"
)

// reservationRequest accepts RFC 3339 instants or naive "2006-01-02T15:04" local times.
type reservationRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	ApartmentNumber string `json:"apartment_number"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	UserID          string `json:"user_id"`
}

func (req reservationRequest) input(loc *time.Location) (models.ReservationInput, error) {
	start, err := parseInstant(req.StartTime, loc)
	if err != nil {
		return models.ReservationInput{}, fmt.Errorf("%w: invalid start_time", domain.ErrValidation)
	}
	end, err := parseInstant(req.EndTime, loc)
	if err != nil {
		return models.ReservationInput{}, fmt.Errorf("%w: invalid end_time", domain.ErrValidation)
	}
	return models.ReservationInput{
		Name:            req.Name,
		Email:           req.Email,
		ApartmentNumber: req.ApartmentNumber,
		Title:           req.Title,
		Description:     req.Description,
		StartTime:       start,
		EndTime:         end,
		UserID:          req.UserID,
	}, nil
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

func parseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time %q", s)
}

// updateRequest carries the cancellation code when the caller is not the owner.
type updateRequest struct {
	reservationRequest
	Code string `json:"code"`
}

type cancelRequest struct {
	Code string `json:"code"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.svc.Status(r.Context())
	code := http.StatusOK
	if !status.Connected {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *HTTPServer) handleApartments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"apartments": s.svc.Apartments()})
}

func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	var (
		list []*models.Reservation
		err  error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("upcoming_days")); raw != "" {
		days, convErr := strconv.Atoi(raw)
		if convErr != nil || days <= 0 {
			writeError(w, http.StatusBadRequest, "upcoming_days must be a positive integer")
			return
		}
		list, err = s.svc.Upcoming(r.Context(), days)
	} else {
		list, err = s.svc.List(r.Context())
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	in, err := req.input(s.svc.Location())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if in.UserID == "" {
		in.UserID = r.Header.Get(headerUserID)
	}

	res, err := s.svc.Create(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleUpdateReservation(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	in, err := req.input(s.svc.Location())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	res, err := s.svc.Update(r.Context(), r.PathValue("id"), r.Header.Get(headerUserID), req.Code, in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteOwned(r.Context(), r.PathValue("id"), r.Header.Get(headerUserID)); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}

	res, err := s.svc.CancelWithCode(r.Context(), r.PathValue("id"), req.Code)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	code := http.StatusOK
	switch {
	case res.Success:
	case res.Message == service.MsgNotFound:
		code = http.StatusNotFound
	case res.Message == service.MsgTooManyTries:
		code = http.StatusTooManyRequests
	default:
		code = http.StatusForbidden
	}
	writeJSON(w, code, res)
}

func (s *HTTPServer) handleStartSlots(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dayParam(w, r)
	if !ok {
		return
	}
	res, err := s.svc.StartSlots(r.Context(), day)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleEndSlots(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dayParam(w, r)
	if !ok {
		return
	}
	rawStart := r.URL.Query().Get("start")
	offset, err := timeutil.ParseClock(rawStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected HH:MM")
		return
	}
	start := timeutil.AtClock(day, offset, s.svc.Location())

	slots, err := s.svc.EndSlots(r.Context(), day, start, strings.TrimSpace(r.URL.Query().Get("exclude")))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  timeutil.DateKey(day, s.svc.Location()),
		"start": start,
		"slots": slots,
	})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	markers, err := s.svc.Calendar(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": markers})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilter(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	h, err := s.svc.History(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *HTTPServer) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilter(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	h, err := s.svc.History(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	loc := s.svc.Location()
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(time.Now().In(loc))))
	if err := export.WriteHistory(w, h, loc); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write history export")
	}
}

func (s *HTTPServer) dayParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return time.Time{}, false
	}
	day, err := timeutil.ParseDate(raw, s.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

func historyFilter(r *http.Request) (models.HistoryFilter, error) {
	q := r.URL.Query()
	filter := models.HistoryFilter{Apartment: strings.TrimSpace(q.Get("apartment"))}

	if raw := strings.TrimSpace(q.Get("month")); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil || month < 1 || month > 12 {
			return filter, fmt.Errorf("%w: month must be between 1 and 12", domain.ErrValidation)
		}
		filter.Month = time.Month(month)
	}
	if raw := strings.TrimSpace(q.Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year <= 0 {
			return filter, fmt.Errorf("%w: invalid year", domain.ErrValidation)
		}
		filter.Year = year
	}
	return filter, nil
}
