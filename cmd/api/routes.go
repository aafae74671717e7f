package main

import (
	"log/slog"
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"callflex/internal/auth"
	"callflex/internal/billing"
	"callflex/internal/config"
	"callflex/internal/httpapi"
	"callflex/internal/signature"
	"callflex/internal/telephony"
	"callflex/internal/voice"
	"callflex/pkg/logger"
	"callflex/pkg/ratelimit"
)

// deps is everything the router needs, built once in main.
type deps struct {
	verifier *auth.Verifier
	users    auth.UserResolver

	voice  voice.Handler
	stripe billing.Handler
	twilio telephony.StatusHandler
	api    httpapi.Handlers
	checks map[string]httpapi.Check
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, d deps) {
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	r.Use(logger.Middleware(slog.Default()))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// public
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "callflex-api"})
	})
	r.GET("/health", httpapi.Health(d.checks))

	// Provider webhooks. Each route verifies its own signature scheme before
	// the handler sees the body; one limiter covers all three providers.
	limiter := ratelimit.NewKeyedLimiter(cfg.Webhooks.RateLimitRPS, cfg.Webhooks.RateLimitBurst)
	hooks := r.Group("/api/webhooks")
	hooks.Use(ratelimit.Middleware(limiter))
	{
		hooks.POST("/vapi/:organizationId",
			signature.Require(signature.VAPI{Secret: cfg.Webhooks.VAPISecret}, http.StatusUnauthorized),
			d.voice.Handle,
		)
		hooks.POST("/stripe",
			signature.Require(signature.Stripe{Secret: cfg.Webhooks.StripeSecret}, http.StatusBadRequest),
			d.stripe.Handle,
		)

		twilioGate := signature.Require(signature.Twilio{
			AuthToken: cfg.Webhooks.TwilioAuthToken,
			BaseURL:   cfg.Webhooks.TwilioBaseURL,
		}, http.StatusForbidden)
		hooks.POST("/twilio/status", twilioGate, d.twilio.HandleCallStatus)
		hooks.POST("/twilio/sms-status", twilioGate, d.twilio.HandleSMSStatus)
	}

	// tenant API
	d.api.Mount(r.Group("/api/v1"), auth.RequireUser(d.verifier, d.users), auth.RequireIdentity(d.verifier))
}
