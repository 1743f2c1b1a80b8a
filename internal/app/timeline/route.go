package timeline

import "github.com/gin-gonic/gin"

func RegisterRoutes(rg *gin.RouterGroup, handler Handler) {
	g := rg.Group("/timeline")
	g.GET("", handler.List)
	g.POST("/refresh", handler.Refresh)
	g.POST("/:id/rating", handler.Rate)
}
