package main

import (
	"database/sql"
	"net/http"
	"time"

	"rez-ledger/internal/auth"
	"rez-ledger/internal/httpapi"
	"rez-ledger/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider callbacks authenticate via HMAC signature, not JWT.
	r.POST("/webhooks/:provider", h.HandleWebhook)

	v1 := r.Group("/v1")

	// Token issuance.
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	protected := v1.Group("")
	protected.Use(authMW)
	{
		ledgerGroup := protected.Group("/ledger")
		ledgerGroup.Use(auth.RequireRole(auth.RoleService, auth.RoleAdmin))
		{
			ledgerGroup.POST("/entries", h.AppendEntry)
			ledgerGroup.GET("/entries/:user_id", h.ListEntries)
		}

		wallets := protected.Group("/wallets")
		wallets.Use(auth.RequireRole(auth.RoleService, auth.RoleAdmin))
		{
			wallets.GET("/:user_id/balance", h.GetBalance)
		}

		admin := protected.Group("/admin")
		admin.Use(auth.RequireRole(auth.RoleAdmin))
		{
			admin.POST("/reconcile", h.RunReconcile)
			admin.GET("/drifts", h.ListDrifts)
			admin.POST("/corrections", h.AdminCorrection)
			admin.GET("/alerts", h.ListAlerts)
			admin.POST("/alerts/:id/resolve", h.ResolveAlert)
			admin.GET("/reports/flow", h.FlowReport)
			admin.GET("/reports/intake", h.IntakeReport)
		}
	}
}
