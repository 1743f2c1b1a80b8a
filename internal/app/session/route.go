package session

import "github.com/gin-gonic/gin"

func RegisterRoutes(rg *gin.RouterGroup, handler Handler) {
	g := rg.Group("/session")
	g.GET("", handler.Current)
	g.POST("/login", handler.Login)
	g.POST("/restore", handler.Restore)
	g.POST("/logout", handler.Logout)
}
