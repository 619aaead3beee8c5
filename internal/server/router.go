// Package server assembles the HTTP surface: routing, middleware chain, and
// CORS.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/receiptwise/billing-engine/internal/domain/entitlement"
	paymentshandler "github.com/receiptwise/billing-engine/internal/domain/payments/handler"
	subshandler "github.com/receiptwise/billing-engine/internal/domain/subscriptions/handler"
	"github.com/receiptwise/billing-engine/internal/server/middleware"
	"github.com/receiptwise/billing-engine/pkg/config"
)

// Router bundles the mounted handler set.
type Router struct {
	Subscriptions *subshandler.Handler
	Payments      *paymentshandler.Handler
}

// New builds the full HTTP handler. Every /v1 route sits behind bearer
// authentication and the premium entitlement gate; health stays open.
func New(cfg *config.Config, router Router, gate entitlement.Gate, logger *slog.Logger) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.RateLimit(float64(cfg.Server.RateLimitPerSecond), cfg.Server.RateLimitBurst))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.Use(middleware.Auth(cfg.Auth.JWTSecret))
	v1.Use(middleware.Entitlement(gate, logger))
	{
		router.Subscriptions.RegisterRoutes(v1)
		router.Payments.RegisterRoutes(v1)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
