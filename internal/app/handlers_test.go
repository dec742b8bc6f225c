package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-scheduler/internal/availability"
	"clinic-scheduler/internal/events"
	"clinic-scheduler/internal/store"
)

var testNow = time.Date(2025, 9, 15, 8, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	events []events.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.BookingEvent) error {
	p.events = append(p.events, e)
	return nil
}

type countingInvalidator struct {
	calls int
}

func (i *countingInvalidator) Invalidate(context.Context) error {
	i.calls++
	return nil
}

type failingFinder struct{ err error }

func (f failingFinder) FindSlots(context.Context, availability.Query) ([]availability.Slot, error) {
	return nil, f.err
}

type testEnv struct {
	app    *App
	router *gin.Engine
	events *recordingPublisher
	cache  *countingInvalidator
}

func setupApp(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	st, err := store.NewSQLite(ctx, ":memory:", time.UTC)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(ctx))

	clock := availability.FixedClock(testNow)
	a := New(st, availability.NewEngine(st, clock, nil), nil)
	a.Clock = clock
	a.Location = time.UTC
	a.AllowSeed = true

	env := &testEnv{app: a, events: &recordingPublisher{}, cache: &countingInvalidator{}}
	a.Events = env.events
	a.Cache = env.cache
	env.router = routes(a)
	return env
}

func routes(a *App) *gin.Engine {
	r := gin.New()
	r.GET("/healthz", a.HealthHandler)
	r.GET("/query", a.QueryAvailabilityHandler)
	api := r.Group("/api")
	api.GET("/availability", a.QueryAvailabilityHandler)
	api.GET("/specializations", a.ListSpecializationsHandler)
	api.POST("/specializations", a.CreateSpecializationHandler)
	api.GET("/providers", a.ListProvidersHandler)
	api.POST("/providers", a.CreateProviderHandler)
	api.GET("/providers/:id/windows", a.ListWindowsHandler)
	api.POST("/providers/:id/windows", a.CreateWindowHandler)
	api.GET("/providers/:id/bookings", a.ListBookingsHandler)
	api.POST("/providers/:id/bookings", a.CreateBookingHandler)
	api.DELETE("/bookings/:id", a.CancelBookingHandler)
	api.POST("/seed", a.SeedHandler)
	return r
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// clinic creates one specialization, one provider and a 10:00-12:00 window on testNow's date.
func (e *testEnv) clinic(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/specializations", gin.H{"name": "Cardiology"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, "/api/providers", gin.H{"firstName": "Ada", "lastName": "Lovelace"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, "/api/providers/1/windows", gin.H{
		"startDate":         "2025-09-15",
		"endDate":           "2025-09-15",
		"startTime":         "10:00",
		"endTime":           "12:00",
		"specializationIds": []int{1},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestQueryAvailability_Validation(t *testing.T) {
	env := setupApp(t)

	tests := []struct {
		name  string
		query string
	}{
		{"missing specialization", ""},
		{"zero specialization", "specializationId=0"},
		{"non numeric provider", "specializationId=1&providerId=abc"},
		{"negative provider", "specializationId=1&providerId=-2"},
		{"zero duration", "specializationId=1&slotDurationMinutes=0"},
		{"duration too long", "specializationId=1&slotDurationMinutes=481"},
		{"too many results", "specializationId=1&maxResults=1001"},
		{"bad date", "specializationId=1&dateFrom=15-09-2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/availability?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestQueryAvailability_NothingFound(t *testing.T) {
	env := setupApp(t)

	w := env.do(t, http.MethodGet, "/api/availability?specializationId=9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestAvailabilityBookingFlow(t *testing.T) {
	env := setupApp(t)
	env.clinic(t)
	assert.Equal(t, 1, env.cache.calls)

	const query = "/api/availability?specializationId=1&dateFrom=2025-09-15&dateTo=2025-09-15"
	w := env.do(t, http.MethodGet, query, nil)
	require.Equal(t, http.StatusOK, w.Code)
	slots := decode[[]availability.Slot](t, w)
	require.Len(t, slots, 4)
	assert.Equal(t, "Ada Lovelace", slots[0].ProviderName)
	assert.Equal(t, "Cardiology", slots[0].SpecializationName)
	assert.True(t, slots[0].StartTime.Equal(time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)))

	w = env.do(t, http.MethodPost, "/api/providers/1/bookings", gin.H{
		"startTime": "2025-09-15T10:30:00Z",
		"endTime":   "2025-09-15T11:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	booking := decode[Booking](t, w)
	assert.Equal(t, 1, booking.ProviderID)
	assert.Equal(t, 2, env.cache.calls)
	require.Len(t, env.events.events, 1)
	assert.Equal(t, events.BookingCreated, env.events.events[0].Type)
	assert.Equal(t, booking.ID, env.events.events[0].BookingID)

	w = env.do(t, http.MethodGet, "/query?specializationId=1&dateFrom=2025-09-15&dateTo=2025-09-15", nil)
	require.Equal(t, http.StatusOK, w.Code)
	slots = decode[[]availability.Slot](t, w)
	var starts []string
	for _, s := range slots {
		starts = append(starts, s.StartTime.Format("15:04"))
	}
	assert.Equal(t, []string{"10:00", "11:00", "11:30"}, starts)

	w = env.do(t, http.MethodPost, "/api/providers/1/bookings", gin.H{
		"startTime": "2025-09-15T10:45:00Z",
		"endTime":   "2025-09-15T11:15:00Z",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/providers/1/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]Booking](t, w), 1)

	w = env.do(t, http.MethodDelete, "/api/bookings/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.events.events, 2)
	assert.Equal(t, events.BookingCancelled, env.events.events[1].Type)

	w = env.do(t, http.MethodDelete, "/api/bookings/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, query+"&slotDurationMinutes=60&maxResults=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	slots = decode[[]availability.Slot](t, w)
	require.Len(t, slots, 1)
	assert.Equal(t, time.Hour, slots[0].EndTime.Sub(slots[0].StartTime))
}

func TestCreateBooking_Invalid(t *testing.T) {
	env := setupApp(t)
	env.clinic(t)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"end before start", "/api/providers/1/bookings", gin.H{"startTime": "2025-09-15T11:00:00Z", "endTime": "2025-09-15T10:00:00Z"}, http.StatusBadRequest},
		{"missing times", "/api/providers/1/bookings", gin.H{}, http.StatusBadRequest},
		{"not rfc3339", "/api/providers/1/bookings", gin.H{"startTime": "tomorrow", "endTime": "later"}, http.StatusBadRequest},
		{"bad provider id", "/api/providers/x/bookings", gin.H{"startTime": "2025-09-15T10:00:00Z", "endTime": "2025-09-15T11:00:00Z"}, http.StatusBadRequest},
		{"unknown provider", "/api/providers/42/bookings", gin.H{"startTime": "2025-09-15T10:00:00Z", "endTime": "2025-09-15T11:00:00Z"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, env.events.events)
}

func TestCreateWindow(t *testing.T) {
	env := setupApp(t)
	env.clinic(t)

	w := env.do(t, http.MethodPost, "/api/providers/1/windows", gin.H{
		"startDate":         "2025-09-01",
		"endDate":           "2025-09-30",
		"daysOfWeek":        []string{"monday", "wed"},
		"startTime":         "08:00",
		"endTime":           "09:30",
		"specializationIds": []int{1},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"id": 2,
		"providerId": 1,
		"startDate": "2025-09-01",
		"endDate": "2025-09-30",
		"daysOfWeek": ["monday", "wednesday"],
		"startTime": "08:00",
		"endTime": "09:30",
		"specializationIds": [1]
	}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/providers/1/windows", nil)
	require.Equal(t, http.StatusOK, w.Code)
	windows := decode[[]Window](t, w)
	require.Len(t, windows, 2)
	assert.Equal(t, availability.Everyday, windows[0].DaysOfWeek)
}

func TestCreateWindow_Invalid(t *testing.T) {
	env := setupApp(t)
	env.clinic(t)

	base := func() gin.H {
		return gin.H{
			"startDate":         "2025-09-01",
			"startTime":         "10:00",
			"endTime":           "12:00",
			"specializationIds": []int{1},
		}
	}
	tests := []struct {
		name   string
		mutate func(b gin.H)
	}{
		{"end time not after start", func(b gin.H) { b["endTime"] = "10:00" }},
		{"bad time", func(b gin.H) { b["startTime"] = "25:00" }},
		{"end date before start", func(b gin.H) { b["endDate"] = "2025-08-31" }},
		{"bad start date", func(b gin.H) { b["startDate"] = "09/01/2025" }},
		{"no specializations", func(b gin.H) { b["specializationIds"] = []int{} }},
		{"unknown specialization", func(b gin.H) { b["specializationIds"] = []int{99} }},
		{"unknown weekday", func(b gin.H) { b["daysOfWeek"] = []string{"funday"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := base()
			tt.mutate(body)
			w := env.do(t, http.MethodPost, "/api/providers/1/windows", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestListBookings_BadRange(t *testing.T) {
	env := setupApp(t)

	w := env.do(t, http.MethodGet, "/api/providers/1/bookings?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/providers/1/bookings?from=2025-09-16T00:00:00Z&to=2025-09-15T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSeedHandler(t *testing.T) {
	env := setupApp(t)

	w := env.do(t, http.MethodPost, "/api/seed", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, store.SeedSummary{Specializations: 4, Providers: 3, Windows: 12, Bookings: 7},
		decode[store.SeedSummary](t, w))
	assert.Equal(t, 1, env.cache.calls)

	w = env.do(t, http.MethodGet, "/api/specializations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]store.Specialization](t, w), 4)

	w = env.do(t, http.MethodGet, "/api/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]store.Provider](t, w), 3)

	env.app.AllowSeed = false
	w = env.do(t, http.MethodPost, "/api/seed", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthHandler(t *testing.T) {
	env := setupApp(t)

	w := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestFail_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"breaker open", gobreaker.ErrOpenState, http.StatusServiceUnavailable},
		{"wrapped breaker open", errors.Join(errors.New("fetch bookings"), gobreaker.ErrOpenState), http.StatusServiceUnavailable},
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"conflict", store.ErrConflict, http.StatusConflict},
		{"invalid", store.ErrInvalid, http.StatusBadRequest},
		{"other", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupApp(t)
			env.app.Finder = failingFinder{err: tt.err}
			env.router = routes(env.app)

			w := env.do(t, http.MethodGet, "/api/availability?specializationId=1", nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
