package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"grillbook/internal/availability"
	"grillbook/internal/config"
	"grillbook/internal/database"
	"grillbook/internal/export"
	"grillbook/internal/models"
	"grillbook/internal/service"
	"grillbook/internal/timeutil"
	"grillbook/internal/validator"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCodes string

func (c fixedCodes) Generate() (string, error) { return string(c), nil }

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestHTTPServer(t *testing.T, cfg config.APIConfig) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger, database.WithLocation(time.UTC))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := timeutil.NewFixedClock(testNow)
	engineCfg := availability.DefaultConfig()
	engineCfg.Location = time.UTC

	svc := service.NewReservationService(service.Deps{
		Store:     db,
		Engine:    availability.NewEngine(engineCfg, clock),
		Validator: validator.New(engineCfg.MaxDuration, time.UTC, clock),
		Codes:     fixedCodes("4321"),
		Clock:     clock,
	}, service.Options{}, &logger)

	srv := NewHTTPServer(cfg, svc, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func reservationBody(start, end string) map[string]string {
	return map[string]string{
		"name":             "Ana",
		"apartment_number": "1C",
		"title":            "Birthday",
		"start_time":       start,
		"end_time":         end,
	}
}

type createResponse struct {
	Reservation      models.Reservation `json:"reservation"`
	CancellationCode string             `json:"cancellation_code"`
	EmailSent        bool               `json:"email_sent"`
	Warning          string             `json:"warning"`
}

func createReservation(t *testing.T, ts *httptest.Server, start, end string) createResponse {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/reservations", reservationBody(start, end), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[createResponse](t, resp)
}

func TestHealth(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	resp := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
}

func TestStatusConnected(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/status", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status := decode[models.ConnectionStatus](t, resp)
	assert.True(t, status.Connected)
	assert.Equal(t, service.MsgConnected, status.Message)
}

func TestApartments(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/apartments", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string][]string](t, resp)
	assert.Equal(t, models.DefaultApartments, body["apartments"])
}

func TestCreateAndGetReservation(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	created := createReservation(t, ts, "2025-06-02T12:00:00Z", "2025-06-02T14:00:00Z")

	assert.Equal(t, "4321", created.CancellationCode)
	assert.NotEmpty(t, created.Reservation.ID)
	assert.False(t, created.EmailSent)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/reservations/"+created.Reservation.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "cancellation_code")
	assert.Contains(t, string(raw), `"title":"Birthday"`)
}

func TestCreateAcceptsLocalTimes(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	created := createReservation(t, ts, "2025-06-02T12:00", "2025-06-02T13:30")
	assert.True(t, created.Reservation.StartTime.Equal(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)))
}

func TestCreateOverlapReturnsConflict(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	createReservation(t, ts, "2025-06-02T12:00:00Z", "2025-06-02T14:00:00Z")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/reservations",
		reservationBody("2025-06-02T13:00:00Z", "2025-06-02T15:00:00Z"), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "slot no longer available - please retry.", body["error"])

	// back-to-back is allowed
	createReservation(t, ts, "2025-06-02T14:00:00Z", "2025-06-02T15:00:00Z")
}

func TestCreateValidationErrors(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})

	tests := []struct {
		name    string
		body    map[string]string
		message string
	}{
		{"past", reservationBody("2025-06-01T08:00:00Z", "2025-06-01T08:30:00Z"), validator.MsgPast},
		{"end before start", reservationBody("2025-06-02T14:00:00Z", "2025-06-02T12:00:00Z"), validator.MsgEndBefore},
		{"different days", reservationBody("2025-06-02T20:00:00Z", "2025-06-03T01:00:00Z"), validator.MsgSameDay},
		{"bad time", reservationBody("tomorrow", "2025-06-02T12:00:00Z"), "invalid start_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/reservations", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decode[map[string]string](t, resp)
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestCreateRejectsUnknownFields(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	body := reservationBody("2025-06-02T12:00:00Z", "2025-06-02T14:00:00Z")
	body["cancellation_code"] = "0000"

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/reservations", body, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetReservationNotFound(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/reservations/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelFlow(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	created := createReservation(t, ts, "2025-06-02T12:00:00Z", "2025-06-02T14:00:00Z")
	url := ts.URL + "/api/v1/reservations/" + created.Reservation.ID + "/cancel"

	resp := doJSON(t, http.MethodPost, url, cancelRequest{Code: "9999"}, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, service.CancelResult{Message: service.MsgWrongCode}, decode[service.CancelResult](t, resp))

	resp = doJSON(t, http.MethodPost, url, cancelRequest{Code: "4321"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, service.CancelResult{Success: true, Message: service.MsgCancelled}, decode[service.CancelResult](t, resp))

	resp = doJSON(t, http.MethodPost, url, cancelRequest{Code: "4321"}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, service.MsgNotFound, decode[service.CancelResult](t, resp).Message)
}

func TestUpdateAndOwnerDelete(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	body := reservationBody("2025-06-02T12:00:00Z", "2025-06-02T14:00:00Z")
	body["user_id"] = "u1"
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/reservations", body, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[createResponse](t, resp)
	url := ts.URL + "/api/v1/reservations/" + created.Reservation.ID

	update := reservationBody("2025-06-02T13:00:00Z", "2025-06-02T15:00:00Z")
	resp = doJSON(t, http.MethodPut, url, update, map[string]string{headerUserID: "u2"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, url, update, map[string]string{headerUserID: "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[models.Reservation](t, resp)
	assert.Equal(t, created.Reservation.ID, updated.ID)
	assert.True(t, updated.StartTime.Equal(time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)))

	resp = doJSON(t, http.MethodDelete, url, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, url, nil, map[string]string{headerUserID: "u1"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, url, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateAnonymousRequiresCode(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	created := createReservation(t, ts, "2025-06-02T12:00:00Z", "2025-06-02T14:00:00Z")
	url := ts.URL + "/api/v1/reservations/" + created.Reservation.ID

	update := reservationBody("2025-06-05T12:00:00Z", "2025-06-05T14:00:00Z")
	update["name"] = "Mallory"
	resp := doJSON(t, http.MethodPut, url, update, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	update["code"] = "0000"
	resp = doJSON(t, http.MethodPut, url, update, map[string]string{headerUserID: "stranger"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, url, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	unchanged := decode[models.Reservation](t, resp)
	assert.Equal(t, "Ana", unchanged.Name)
	assert.True(t, unchanged.StartTime.Equal(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)))

	update["code"] = "4321"
	resp = doJSON(t, http.MethodPut, url, update, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[models.Reservation](t, resp)
	assert.Equal(t, "Mallory", updated.Name)
	assert.True(t, updated.StartTime.Equal(time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)))
}

func TestListUpcoming(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	createReservation(t, ts, "2025-06-02T12:00:00Z", "2025-06-02T14:00:00Z")
	createReservation(t, ts, "2025-06-20T12:00:00Z", "2025-06-20T14:00:00Z")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/reservations", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[map[string][]models.Reservation](t, resp)
	assert.Len(t, all["reservations"], 2)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/reservations?upcoming_days=5", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	upcoming := decode[map[string][]models.Reservation](t, resp)
	assert.Len(t, upcoming["reservations"], 1)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/reservations?upcoming_days=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSlots(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	createReservation(t, ts, "2025-06-02T12:00:00Z", "2025-06-02T14:00:00Z")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/slots?date=2025-06-02", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	day := decode[service.DaySlots](t, resp)
	assert.Equal(t, 1, day.Count)
	require.Len(t, day.Slots, 28)
	unavailable := 0
	for _, s := range day.Slots {
		if !s.Available {
			unavailable++
		}
	}
	assert.Equal(t, 4, unavailable)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/slots/end?date=2025-06-02&start=11:00", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	end := decode[struct {
		Slots []models.TimeSlot `json:"slots"`
	}](t, resp)
	require.Len(t, end.Slots, 12)
	assert.True(t, end.Slots[1].Available)
	assert.False(t, end.Slots[2].Available)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/slots?date=02/06/2025", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/slots/end?date=2025-06-02&start=noon", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCalendar(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	createReservation(t, ts, "2025-06-02T12:00:00Z", "2025-06-02T14:00:00Z")
	createReservation(t, ts, "2025-06-02T15:00:00Z", "2025-06-02T16:00:00Z")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/calendar", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string][]models.DayMarker](t, resp)
	require.Len(t, body["days"], 1)
	assert.Equal(t, models.DayMarker{Date: "2025-06-02", Count: 2, Level: models.DensityMedium}, body["days"][0])
}

func TestHistoryAndExport(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	createReservation(t, ts, "2025-06-02T12:00:00Z", "2025-06-02T14:00:00Z")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/history?apartment=1C&month=6&year=2025", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	h := decode[models.History](t, resp)
	assert.Len(t, h.Upcoming, 1)
	assert.Empty(t, h.Past)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/history?month=13", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/history/export", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment;"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{})
	resp := doJSON(t, http.MethodPatch, ts.URL+"/api/v1/calendar", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	ts := newTestHTTPServer(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1}})

	resp := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
