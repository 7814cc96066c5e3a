package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/internal/application/withdrawalservice"
	"github.com/moritzWa/pickup-sub004/internal/server/handlers"
	"github.com/moritzWa/pickup-sub004/internal/server/middleware"
	"github.com/moritzWa/pickup-sub004/internal/server/websocket"
	"github.com/moritzWa/pickup-sub004/pkg/config"
)

type Server struct {
	WithdrawalSvc withdrawalservice.IWithdrawalService
	Cfg           *config.Config
	Logger        zerolog.Logger
	Router        *gin.Engine
	httpServer    *http.Server
	WsHub         *websocket.Hub
	Registry      *prometheus.Registry
}

func New(
	cfg *config.Config,
	withdrawalSvc withdrawalservice.IWithdrawalService,
	logger zerolog.Logger,
	wsHub *websocket.Hub,
	registry *prometheus.Registry,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	return &Server{
		Cfg:           cfg,
		WithdrawalSvc: withdrawalSvc,
		Logger:        logger,
		Router:        router,
		WsHub:         wsHub,
		Registry:      registry,
	}
}

func (s *Server) SetupRouter() {
	middleware.SetupMiddleware(s.Router)
	s.Router.Use(middleware.JWTAuth(s.Cfg.JWT.Secret))

	handler := handlers.New(
		s.WithdrawalSvc,
		s.Logger,
		s.Cfg,
		s.WsHub,
		s.Registry,
	)
	handler.SetupHandlers(s.Router)
}

func (s *Server) Start() {
	s.SetupRouter()

	s.httpServer = &http.Server{
		Addr:         s.Cfg.Server.Host + ":" + s.Cfg.Server.Port,
		Handler:      s.Router,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	s.Logger.Info().Msgf("Starting server on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-stopChan
	s.Logger.Info().Msg("Shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	s.Logger.Info().Msg("Server exited gracefully")
}
