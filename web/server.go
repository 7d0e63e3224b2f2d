package web

import (
	"context"
	"net/http"

	"crispr-agent/config"
	"crispr-agent/web/handlers"
	"crispr-agent/web/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
	chat   *services.ChatService
	logger *zap.Logger
	config *config.Config
}

func NewServer(chat *services.ChatService, logger *zap.Logger, config *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	server := &Server{
		router: router,
		chat:   chat,
		logger: logger,
		config: config,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	chatHandler := handlers.NewChatHandler(s.chat, s.logger)

	s.router.POST("/chat", chatHandler.SendMessage)
	s.router.GET("/sessions", chatHandler.ListSessions)
	s.router.GET("/sessions/:id/messages", chatHandler.GetMessages)
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	return srv.Shutdown(context.Background())
}
