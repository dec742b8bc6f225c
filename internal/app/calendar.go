package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"clinic-scheduler/internal/availability"
	"clinic-scheduler/internal/events"
	"clinic-scheduler/internal/store"
)

const calendarSource = "google-calendar"

// NewCalendarConfig builds the OAuth2 config for read-only calendar access.
// It returns nil unless all three settings are present.
func NewCalendarConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// GET /api/calendar/auth?providerId=
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if a.Calendar == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Google Calendar not configured"})
		return
	}
	providerID, err := strconv.Atoi(c.Query("providerId"))
	if err != nil || providerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "providerId required"})
		return
	}

	state := fmt.Sprintf("provider_%d_%d", providerID, a.Clock.Now().Unix())
	url := a.Calendar.AuthCodeURL(state, oauth2.AccessTypeOffline)
	c.JSON(http.StatusOK, gin.H{
		"authUrl": url,
		"state":   state,
	})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if a.Calendar == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Google Calendar not configured"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}

	token, err := a.Calendar.Exchange(c.Request.Context(), code)
	if err != nil {
		a.Log.Warn("oauth code exchange failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}

	// The client keeps the token and sends it back in X-Google-Token.
	tokenJSON, _ := json.Marshal(token)
	c.JSON(http.StatusOK, gin.H{
		"message": "Authorization successful",
		"state":   c.Query("state"),
		"token":   string(tokenJSON),
	})
}

// GET /api/calendar/calendars
func (a *App) GoogleCalendarListHandler(c *gin.Context) {
	srv, ok := a.calendarService(c)
	if !ok {
		return
	}
	list, err := srv.CalendarList.List().Context(c.Request.Context()).Do()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("failed to retrieve calendars: %v", err)})
		return
	}

	type calendarInfo struct {
		ID         string `json:"id"`
		Summary    string `json:"summary"`
		Primary    bool   `json:"primary"`
		AccessRole string `json:"accessRole"`
	}
	out := make([]calendarInfo, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, calendarInfo{
			ID:         item.Id,
			Summary:    item.Summary,
			Primary:    item.Primary,
			AccessRole: item.AccessRole,
		})
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/providers/:id/calendar/import?from=RFC3339&to=RFC3339&calendarId=
// Stores the provider's timed calendar events as bookings.
func (a *App) ImportCalendarHandler(c *gin.Context) {
	providerID, ok := a.providerParam(c)
	if !ok {
		return
	}
	now := a.Clock.Now().In(a.Location)
	from, to := now, availability.AddMonths(now, availability.HorizonMonths)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		to = t
	}
	if !from.Before(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}

	srv, ok := a.calendarService(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var items []*calendar.Event
	err := srv.Events.List(c.DefaultQuery("calendarId", "primary")).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		MaxResults(250).
		Pages(ctx, func(page *calendar.Events) error {
			items = append(items, page.Items...)
			return nil
		})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("failed to retrieve events: %v", err)})
		return
	}

	bookings, skipped := busyBookings(items, providerID, a.Location)
	res, err := a.importBookings(ctx, bookings)
	if err != nil {
		a.fail(c, err)
		return
	}
	res.Skipped += skipped
	c.JSON(http.StatusOK, res)
}

// importBookings stores the bookings, counting overlaps with existing ones as skipped.
func (a *App) importBookings(ctx context.Context, bookings []availability.Booking) (ImportResult, error) {
	var res ImportResult
	for i := range bookings {
		b := bookings[i]
		err := a.Store.CreateBooking(ctx, &b)
		if errors.Is(err, store.ErrConflict) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Imported++
		a.publish(ctx, events.BookingCreated, b, calendarSource)
	}
	if res.Imported > 0 {
		a.changed(ctx)
	}
	return res, nil
}

func (a *App) calendarService(c *gin.Context) (*calendar.Service, bool) {
	if a.Calendar == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Google Calendar not configured"})
		return nil, false
	}
	tokenStr := c.GetHeader("X-Google-Token")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Google token required in X-Google-Token header"})
		return nil, false
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(tokenStr), &token); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token format"})
		return nil, false
	}

	ctx := c.Request.Context()
	client := a.Calendar.Client(ctx, &token)
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create calendar service"})
		return nil, false
	}
	return srv, true
}

// busyBookings turns timed, confirmed, opaque events into bookings of the
// provider. Everything else is counted as skipped.
func busyBookings(items []*calendar.Event, providerID int, loc *time.Location) ([]availability.Booking, int) {
	var (
		out     []availability.Booking
		skipped int
	)
	for _, item := range items {
		if item == nil || item.Status == "cancelled" || item.Transparency == "transparent" {
			skipped++
			continue
		}
		// all-day events only carry Date
		if item.Start == nil || item.End == nil || item.Start.DateTime == "" || item.End.DateTime == "" {
			skipped++
			continue
		}
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			skipped++
			continue
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil || !end.After(start) {
			skipped++
			continue
		}
		out = append(out, availability.Booking{
			ProviderID: providerID,
			Start:      start.In(loc),
			End:        end.In(loc),
		})
	}
	return out, skipped
}
