package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/internal/application/withdrawalservice"
	"github.com/moritzWa/pickup-sub004/internal/domain"
	"github.com/moritzWa/pickup-sub004/internal/server/middleware"
	"github.com/moritzWa/pickup-sub004/pkg/gate"
)

type WithdrawalHandler struct {
	withdrawalSvc withdrawalservice.IWithdrawalService
	logger        zerolog.Logger
}

func NewWithdrawalHandler(withdrawalSvc withdrawalservice.IWithdrawalService, logger zerolog.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{
		withdrawalSvc: withdrawalSvc,
		logger:        logger,
	}
}

func (h *WithdrawalHandler) SubmitWithdrawal(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "No authenticated user",
		})
		return
	}

	var req domain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": err.Error(),
		})
		return
	}

	withdrawal, err := h.withdrawalSvc.Submit(c.Request.Context(), user, req)
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	c.JSON(http.StatusCreated, withdrawal)
}

func (h *WithdrawalHandler) GetWithdrawal(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "No authenticated user",
		})
		return
	}

	withdrawal, err := h.withdrawalSvc.GetWithdrawal(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrWithdrawalNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "Not Found",
				"message": "No such withdrawal",
			})
			return
		}
		h.logger.Error().Err(err).Str("withdrawal_id", c.Param("id")).Msg("Failed to load withdrawal")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "Failed to load withdrawal",
		})
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

func (h *WithdrawalHandler) writeSubmitError(c *gin.Context, err error) {
	var eligibilityErr *domain.EligibilityError
	if errors.As(err, &eligibilityErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Withdrawal Not Allowed",
			"reason":  string(eligibilityErr.Reason),
			"message": eligibilityErr.Message,
		})
		return
	}

	var broadcastErr *domain.BroadcastError
	if errors.As(err, &broadcastErr) {
		if broadcastErr.Retryable() {
			c.Header("Retry-After", "5")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":     "Relay Unavailable",
				"message":   broadcastErr.Message,
				"retryable": true,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Transaction Rejected",
			"message": broadcastErr.Message,
		})
		return
	}

	if errors.Is(err, gate.ErrAcquireTimeout) {
		c.Header("Retry-After", "10")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "Too Many In-Flight Withdrawals",
			"message":   "The service is saturated, retry shortly",
			"retryable": true,
		})
		return
	}

	h.logger.Error().Err(err).Msg("Withdrawal submission failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal Server Error",
		"message": "Failed to submit withdrawal",
	})
}
