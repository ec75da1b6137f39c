package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quizmentor/quizmentor/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(handler.logger),
		errorHandlingMiddleware(handler.logger),
		rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger),
		corsMiddleware(nil),
	)

	api := router.Group("/api/v1")
	{
		api.POST("/questions/resolve", handler.ResolveGlobal)
		api.POST("/lessons/:lessonId/questions/resolve", handler.ResolveLesson)
		api.POST("/questions/direct", handler.DirectInsert)
		api.GET("/questions/related", handler.Related)
		api.GET("/questions/trending", handler.Trending)
		api.DELETE("/questions/:id", handler.DeleteQuestion)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
