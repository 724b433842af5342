package router

import (
	"github.com/gin-gonic/gin"

	"trackio.app/trackio/internal/http/handler"
	"trackio.app/trackio/internal/service"
)

func SetupRoutes(router *gin.Engine, heartbeats service.HeartbeatService) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		heartbeatHandler := handler.NewHeartbeatHandler(heartbeats)
		HeartbeatRouter(v1.Group("/heartbeats"), heartbeatHandler)

		summaryHandler := handler.NewSummaryHandler(heartbeats)
		SummaryRouter(v1.Group("/summaries"), summaryHandler)
	}
}
