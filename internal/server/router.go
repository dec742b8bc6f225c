package server

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-scheduler/internal/app"
	"clinic-scheduler/internal/config"
)

// NewRouter wires middleware and every route of the API.
func NewRouter(a *app.App, cfg *config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(log.Named("http")))
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	router.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, log))

	router.GET("/healthz", a.HealthHandler)
	// OAuth2 callback (must be before auth middleware)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	var guard []gin.HandlerFunc
	if cfg.AuthEnabled() {
		guard = append(guard, app.AuthMiddleware(cfg.StaticTokens, cfg.JWTSecret))
	} else {
		log.Warn("authentication disabled: no STATIC_TOKENS or JWT_HMAC_SECRET in development")
	}

	router.GET("/query", append(guard, a.QueryAvailabilityHandler)...)

	api := router.Group("/api", guard...)
	{
		api.GET("/availability", a.QueryAvailabilityHandler)

		api.GET("/specializations", a.ListSpecializationsHandler)
		api.POST("/specializations", a.CreateSpecializationHandler)

		providers := api.Group("/providers")
		{
			providers.GET("", a.ListProvidersHandler)
			providers.POST("", a.CreateProviderHandler)
			providers.GET("/:id/windows", a.ListWindowsHandler)
			providers.POST("/:id/windows", a.CreateWindowHandler)
			providers.GET("/:id/bookings", a.ListBookingsHandler)
			providers.POST("/:id/bookings", a.CreateBookingHandler)
			providers.POST("/:id/calendar/import", a.ImportCalendarHandler)
		}
		api.DELETE("/bookings/:id", a.CancelBookingHandler)

		if a.AllowSeed {
			api.POST("/seed", a.SeedHandler)
		}

		calendar := api.Group("/calendar")
		{
			calendar.GET("/auth", a.GoogleAuthHandler)
			calendar.GET("/calendars", a.GoogleCalendarListHandler)
		}
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-Google-Token", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowOrigins = nil
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	}
	return c
}
