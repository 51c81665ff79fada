package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Server struct {
	logger *slog.Logger
	server *http.Server
}

// New - the HTTP host for games.
func New(logger *slog.Logger, port string, gameUseCase gameUseCase) *Server {
	return &Server{
		logger: logger.With("component", "rest"),
		server: &http.Server{
			Addr:         ":" + port,
			Handler:      NewRouter(logger, gameUseCase),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
	}
}

func NewRouter(logger *slog.Logger, gameUseCase gameUseCase) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/ping", pingHandler)

	handlers := NewHandlers(logger, gameUseCase)

	games := router.Group("/games")
	games.POST("", handlers.CreateGame)
	games.GET("/:id", handlers.GetGame)
	games.POST("/:id/moves", handlers.MakeMove)

	return router
}

// Start - blocks until the server fails or is shut down.
func (that *Server) Start() error {
	that.logger.Info("starting HTTP server", "addr", that.server.Addr)

	if err := that.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) Shutdown(ctx context.Context) error {
	if err := that.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	log := logger.With("component", "rest")

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.DebugContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
