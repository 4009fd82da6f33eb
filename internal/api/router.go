package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"appointment-booking-backend/internal/mw"
)

// RouterConfig holds the HTTP-layer settings.
type RouterConfig struct {
	JWTSecret       []byte
	JWTIssuer       string
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration

	// Redis enables the shared per-user limiter when set.
	Redis               *redis.Client
	RedisLimitPerMinute int
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger())

	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL, mw.KeyByURI)
	callerCaching := mw.Cache(cacheStore, cfg.CacheTTL, mw.KeyByCaller)

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.Use(rateLimiter)
	api.GET("/vapid_public_key", h.GetVAPIDPublicKey)

	authed := api.Group("")
	authed.Use(mw.Auth(cfg.JWTSecret, cfg.JWTIssuer))
	if cfg.Redis != nil {
		authed.Use(mw.NewRedisRateLimiter(cfg.Redis, cfg.RedisLimitPerMinute, time.Minute, "booking").Middleware(true))
	}
	authed.Use(mw.Invalidate(cacheStore))
	{
		authed.POST("/appointments/book", h.BookAppointment)
		authed.GET("/appointments", h.ListAppointments)
		authed.GET("/appointments/:id", h.GetAppointment)
		authed.POST("/appointments/:id/cancel", h.CancelAppointment)
		authed.POST("/appointments/:id/complete", h.CompleteAppointment)
		authed.POST("/appointments/:id/no-show", h.MarkNoShow)
		authed.POST("/appointments/:id/feedback", h.SubmitFeedback)

		authed.GET("/slots/available", h.AvailableSlots)
		authed.POST("/slots", h.CreateSlot)
		authed.PATCH("/slots/:id/status", h.SetSlotStatus)

		authed.GET("/agendas", callerCaching, h.ListAgendas)
		authed.POST("/agendas", h.CreateAgenda)
		authed.GET("/themes", caching, h.ListThemes)
		authed.GET("/statistics", h.Statistics)

		authed.GET("/subscriptions", h.GetSubscription)
		authed.PUT("/subscriptions", h.PutSubscription)
		authed.DELETE("/subscriptions", h.DeleteSubscription)
	}

	return r
}
