package router

import (
	"github.com/gin-gonic/gin"

	"trackio.app/trackio/internal/http/handler"
)

func HeartbeatRouter(router *gin.RouterGroup, handler *handler.HeartbeatHandler) {
	router.POST("", handler.Ingest)
}

func SummaryRouter(router *gin.RouterGroup, handler *handler.SummaryHandler) {
	router.GET("", handler.List)
}
