package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketchat/config"
	"marketchat/internal/handler"
	"marketchat/internal/identity"
	"marketchat/internal/middleware"
	"marketchat/internal/transport/httpdto"
	"marketchat/internal/websocket"
	"marketchat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Personas *handler.PersonaHandler
	Rooms    *handler.RoomHandler
	Messages *handler.MessageHandler
	Calls    *handler.CallHandler
	Live     *websocket.Handler
}

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, verifier identity.Verifier, health HealthFunc) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware(s.config.CORSOrigins))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	if handlers.Live != nil {
		s.engine.GET("/v1/rooms/:roomId/live", handlers.Live.Live)
	}

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(verifier))
	{
		v1.GET("/personas", handlers.Personas.List)
		v1.GET("/personas/:personaId/rooms", handlers.Personas.Rooms)

		v1.POST("/rooms", handlers.Rooms.Ensure)
		v1.GET("/rooms/:roomId/messages", handlers.Messages.List)
		v1.POST("/rooms/:roomId/messages", handlers.Messages.Send)
		v1.DELETE("/rooms/:roomId/messages", handlers.Messages.Delete)
		v1.POST("/rooms/:roomId/read", handlers.Messages.MarkRead)
		v1.POST("/rooms/:roomId/delivered", handlers.Messages.MarkDelivered)
		v1.POST("/rooms/:roomId/media", handlers.Messages.Upload)

		v1.POST("/rooms/:roomId/calls", handlers.Calls.Start)
		v1.POST("/calls/:callId/answer", handlers.Calls.Answer)
		v1.POST("/calls/:callId/end", handlers.Calls.End)
	}
}

func (s *Server) Start() error {
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	s.logger.Infof("Server is running on :%s", s.config.AppPort)

	<-quit

	s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		return err
	}

	s.logger.Infof("Server stopped gracefully")
	return nil
}
