package tcp

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewAdminRouter exposes a read-only HTTP mirror of the operator console
func NewAdminRouter(manager *ConnectionManager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/check-conn", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"message": "relay is alive",
			"clients": manager.Count(),
		})
	})

	r.GET("/clients", func(ctx *gin.Context) {
		clients := manager.List()
		ctx.JSON(http.StatusOK, gin.H{
			"count":   len(clients),
			"clients": clients,
		})
	})

	r.GET("/msg", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"last_message": manager.LastMessage(),
		})
	})

	return r
}
