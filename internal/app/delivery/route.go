package delivery

import "github.com/gin-gonic/gin"

func RegisterRoutes(rg *gin.RouterGroup, handler Handler) {
	g := rg.Group("/messages")
	g.POST("", handler.Send)
	g.GET("/status", handler.Status)
}
