package main

import (
	"database/sql"
	"net/http"

	"cafesys/internal/httpapi"
	"cafesys/internal/rbac"
	"cafesys/internal/routing"
	"cafesys/internal/telephony"
	"cafesys/pkg/logger"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	DB       *sql.DB
	AuthMW   gin.HandlerFunc
	Verifier telephony.SourceVerifier
	Phone    telephony.ElksWebhookHandler
	Credits  httpapi.CreditService
	Tokens   httpapi.TokenRefresher
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		if d.DB != nil {
			if err := pingDB(c.Request.Context(), d.DB); err != nil {
				logger.FromGin(c).Warn("health check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 46elks webhooks. Public, gated by source address.
	phone := r.Group("/")
	phone.Use(d.Verifier.Middleware())
	{
		phone.POST(routing.IncomingCallPath, d.Phone.HandleIncomingCall)
		phone.POST(routing.CallStatusPath, d.Phone.HandleCallStatus)
	}

	h := httpapi.Handlers{Credits: d.Credits, Tokens: d.Tokens}
	r.POST("/v1/auth/refresh", h.RefreshToken)

	v1 := r.Group("/v1")
	v1.Use(d.AuthMW)
	{

		creds := v1.Group("/credits")
		{
			creds.POST("/refill", h.Refill)
			creds.POST("/import", h.Import)
			creds.GET("/history", h.History)

			board := creds.Group("/codes")
			board.Use(rbac.RequireAnyRole(rbac.RoleBoard, rbac.RoleAdmin))
			board.GET("/:code", h.CodeStatus)
		}
	}
}
