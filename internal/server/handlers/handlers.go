package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/internal/application/withdrawalservice"
	"github.com/moritzWa/pickup-sub004/internal/server/websocket"
	"github.com/moritzWa/pickup-sub004/pkg/config"
)

type Handlers struct {
	WithdrawalSvc withdrawalservice.IWithdrawalService
	Logger        zerolog.Logger
	Config        *config.Config
	WsHub         *websocket.Hub
	Registry      *prometheus.Registry
}

func New(
	withdrawalSvc withdrawalservice.IWithdrawalService,
	logger zerolog.Logger,
	config *config.Config,
	wsHub *websocket.Hub,
	registry *prometheus.Registry,
) *Handlers {
	return &Handlers{
		WithdrawalSvc: withdrawalSvc,
		Logger:        logger,
		Config:        config,
		WsHub:         wsHub,
		Registry:      registry,
	}
}

func (h *Handlers) SetupHandlers(router *gin.Engine) {
	withdrawalHandler := NewWithdrawalHandler(h.WithdrawalSvc, h.Logger)
	wsHandler := NewWebSocketHandler(h.WsHub)
	healthHandler := NewHealthHandler()

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Registry, promhttp.HandlerOpts{})))

	// WebSocket endpoint for live status updates
	router.GET("/status", wsHandler.HandleConnection)

	v1 := router.Group("/v1")
	{
		withdrawals := v1.Group("/withdrawals")
		{
			withdrawals.POST("", withdrawalHandler.SubmitWithdrawal)
			withdrawals.GET("/:id", withdrawalHandler.GetWithdrawal)
		}
	}
}
