package handler

import (
	"time"

	"chainremit/internal/adapter/http/dto"
	"chainremit/internal/adapter/http/middleware"
	"chainremit/internal/core/ports"
	"chainremit/pkg/apperror"
	"chainremit/pkg/response"

	"github.com/gin-gonic/gin"
)

// BalanceHandler handles balance queries. It reads the repository directly:
// balances are only ever mutated through the transfer orchestrator.
type BalanceHandler struct {
	balanceRepo ports.BalanceRepository
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(balanceRepo ports.BalanceRepository) *BalanceHandler {
	return &BalanceHandler{balanceRepo: balanceRepo}
}

// Get handles GET /api/v1/balance?currency=USD. A user with no balance row
// yet reads as zero.
func (h *BalanceHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	currency := c.Query("currency")
	if currency == "" {
		response.Error(c, apperror.Validation("currency query parameter is required"))
		return
	}

	balance, err := h.balanceRepo.Get(c.Request.Context(), userID, currency)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	resp := dto.BalanceResponse{Currency: currency, UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	if balance != nil {
		resp.Amount = balance.Amount
		resp.UpdatedAt = balance.UpdatedAt.Format(time.RFC3339)
	}
	response.OK(c, resp)
}
