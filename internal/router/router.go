package router

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/config"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/handler"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/treasury"
	"github.com/gin-gonic/gin"
)

func Setup(store *ledger.Store, pipeline *treasury.Pipeline, chainClient treasury.ChainClient, cfg *config.Config, gasTankAddress, payoutAddress string) *gin.Engine {
	r := gin.Default()

	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "treasury-service",
		})
	})

	v1 := r.Group("/api/v1")
	v1.Use(bearerSecretMiddleware(cfg.Jobs.CronSecret))
	{
		cronHandler := handler.NewCronHandler(pipeline)
		cron := v1.Group("/cron")
		{
			cron.POST("/deposits/monitor", cronHandler.MonitorDeposits)
			cron.POST("/deposits/provision", cronHandler.ProvisionAddresses)
			cron.POST("/payouts/batch", cronHandler.BatchPayouts)
			cron.POST("/payouts/execute", cronHandler.ExecutePayouts)
			cron.POST("/sweep/fund", cronHandler.SweepFund)
			cron.POST("/sweep/advance", cronHandler.SweepAdvance)
			cron.POST("/sweep/verify", cronHandler.SweepVerify)
			cron.POST("/treasury/gas-check", cronHandler.GasCheck)
			cron.POST("/outbox/dispatch", cronHandler.DispatchOutbox)
			cron.POST("/cleanup/intents", cronHandler.CleanupIntents)
		}

		adminHandler := handler.NewAdminHandler(store, chainClient, pipeline.Executor, gasTankAddress, payoutAddress)
		admin := v1.Group("/admin")
		{
			admin.POST("/commissions/:id/payout", adminHandler.ExecutePayout)
			admin.GET("/batches", adminHandler.ListBatches)
			admin.GET("/treasury/status", adminHandler.TreasuryStatus)
		}
	}

	return r
}

// bearerSecretMiddleware guards the cron and admin routes with the shared
// scheduler secret.
func bearerSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "cron secret not configured"})
			return
		}
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
