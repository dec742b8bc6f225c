package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"clinic-scheduler/internal/availability"
	"clinic-scheduler/internal/events"
	"clinic-scheduler/internal/store"
)

// GET /api/availability?specializationId=&providerId=&dateFrom=&dateTo=&slotDurationMinutes=&maxResults=
func (a *App) QueryAvailabilityHandler(c *gin.Context) {
	q, err := a.parseQuery(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	if err := q.Validate(); err != nil {
		a.fail(c, err)
		return
	}
	slots, err := a.Finder.FindSlots(c.Request.Context(), q)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

func (a *App) parseQuery(c *gin.Context) (availability.Query, error) {
	q := availability.Query{
		SlotDurationMinutes: availability.DefaultSlotDurationMinutes,
		MaxResults:          availability.DefaultMaxResults,
	}
	var err error
	if q.SpecializationID, err = intParam(c, "specializationId"); err != nil {
		return q, err
	}
	if v, ok := c.GetQuery("providerId"); ok && v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return q, invalidParam("providerId")
		}
		q.ProviderID = &id
	}
	if v, ok := c.GetQuery("dateFrom"); ok && v != "" {
		d, err := availability.ParseDate(v, a.Location)
		if err != nil {
			return q, invalidParam("dateFrom")
		}
		q.DateFrom = &d
	}
	if v, ok := c.GetQuery("dateTo"); ok && v != "" {
		d, err := availability.ParseDate(v, a.Location)
		if err != nil {
			return q, invalidParam("dateTo")
		}
		q.DateTo = &d
	}
	if _, ok := c.GetQuery("slotDurationMinutes"); ok {
		if q.SlotDurationMinutes, err = intParam(c, "slotDurationMinutes"); err != nil {
			return q, err
		}
	}
	if _, ok := c.GetQuery("maxResults"); ok {
		if q.MaxResults, err = intParam(c, "maxResults"); err != nil {
			return q, err
		}
	}
	return q, nil
}

// GET /api/specializations
func (a *App) ListSpecializationsHandler(c *gin.Context) {
	specs, err := a.Store.ListSpecializations(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, specs)
}

// POST /api/specializations
func (a *App) CreateSpecializationHandler(c *gin.Context) {
	var req specializationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sp := store.Specialization{Name: req.Name}
	if err := a.Store.CreateSpecialization(c.Request.Context(), &sp); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sp)
}

// GET /api/providers
func (a *App) ListProvidersHandler(c *gin.Context) {
	providers, err := a.Store.ListProviders(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, providers)
}

// POST /api/providers
func (a *App) CreateProviderHandler(c *gin.Context) {
	var req providerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := store.Provider{FirstName: req.FirstName, LastName: req.LastName}
	if err := a.Store.CreateProvider(c.Request.Context(), &p); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GET /api/providers/:id/windows
func (a *App) ListWindowsHandler(c *gin.Context) {
	providerID, ok := a.providerParam(c)
	if !ok {
		return
	}
	records, err := a.Store.ListWindows(c.Request.Context(), providerID)
	if err != nil {
		a.fail(c, err)
		return
	}
	out := make([]Window, 0, len(records))
	for _, r := range records {
		out = append(out, windowFromRecord(r))
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/providers/:id/windows
func (a *App) CreateWindowHandler(c *gin.Context) {
	providerID, ok := a.providerParam(c)
	if !ok {
		return
	}
	var req windowReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := store.WindowRecord{SpecializationIDs: req.SpecializationIDs}
	rec.ProviderID = providerID
	rec.StartTime = req.StartTime
	rec.EndTime = req.EndTime
	rec.Days = availability.Everyday
	if req.DaysOfWeek != nil {
		rec.Days = *req.DaysOfWeek
	}
	start, err := availability.ParseDate(req.StartDate, a.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate"})
		return
	}
	rec.StartDate = start
	if req.EndDate != "" {
		end, err := availability.ParseDate(req.EndDate, a.Location)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate"})
			return
		}
		rec.EndDate = &end
	}

	ctx := c.Request.Context()
	if err := a.Store.CreateWindow(ctx, &rec); err != nil {
		a.fail(c, err)
		return
	}
	a.changed(ctx)
	c.JSON(http.StatusCreated, windowFromRecord(rec))
}

// GET /api/providers/:id/bookings?from=RFC3339&to=RFC3339
func (a *App) ListBookingsHandler(c *gin.Context) {
	providerID, ok := a.providerParam(c)
	if !ok {
		return
	}
	var from, to *time.Time
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &from}, {"to", &to}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + p.name})
			return
		}
		*p.dst = &t
	}
	if (from == nil) != (to == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be given together"})
		return
	}
	if from != nil && !from.Before(*to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}

	bookings, err := a.Store.ListBookings(c.Request.Context(), providerID, from, to)
	if err != nil {
		a.fail(c, err)
		return
	}
	out := make([]Booking, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, bookingFromModel(b))
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/providers/:id/bookings
func (a *App) CreateBookingHandler(c *gin.Context) {
	providerID, ok := a.providerParam(c)
	if !ok {
		return
	}
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startTime and endTime required (RFC3339)"})
		return
	}

	b := availability.Booking{
		ProviderID: providerID,
		Start:      req.StartTime.In(a.Location),
		End:        req.EndTime.In(a.Location),
	}
	ctx := c.Request.Context()
	if err := a.Store.CreateBooking(ctx, &b); err != nil {
		a.fail(c, err)
		return
	}
	a.changed(ctx)
	a.publish(ctx, events.BookingCreated, b, "api")
	c.JSON(http.StatusCreated, bookingFromModel(b))
}

// DELETE /api/bookings/:id
func (a *App) CancelBookingHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}
	ctx := c.Request.Context()
	b, err := a.Store.CancelBooking(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.changed(ctx)
	a.publish(ctx, events.BookingCancelled, b, "api")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/seed
func (a *App) SeedHandler(c *gin.Context) {
	if !a.AllowSeed {
		c.JSON(http.StatusForbidden, gin.H{"error": "seeding is disabled"})
		return
	}
	ctx := c.Request.Context()
	sum, err := store.Seed(ctx, a.Store, a.Clock.Now().In(a.Location))
	if err != nil {
		a.fail(c, err)
		return
	}
	a.changed(ctx)
	a.Log.Info("demo data seeded",
		zap.Int("providers", sum.Providers),
		zap.Int("windows", sum.Windows),
		zap.Int("bookings", sum.Bookings),
	)
	c.JSON(http.StatusOK, sum)
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	if err := a.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) providerParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider id"})
		return 0, false
	}
	return id, true
}

// fail maps domain errors to status codes.
func (a *App) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, availability.ErrInvalidQuery), errors.Is(err, store.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		a.Log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func intParam(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0, invalidParam(name)
	}
	return v, nil
}

func invalidParam(name string) error {
	return fmt.Errorf("%w: invalid %s", availability.ErrInvalidQuery, name)
}
