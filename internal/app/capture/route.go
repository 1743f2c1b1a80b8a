package capture

import "github.com/gin-gonic/gin"

func RegisterRoutes(rg *gin.RouterGroup, handler Handler) {
	g := rg.Group("/capture")
	g.GET("", handler.Status)
	g.DELETE("", handler.Clear)
	g.POST("/text", handler.SetText)
	g.POST("/image", handler.SetImage)
	g.POST("/audio", handler.SetAudio)
	g.POST("/recording/start", handler.StartRecording)
	g.POST("/recording/stop", handler.StopRecording)
	g.GET("/previews/:ref", handler.Preview)
}
