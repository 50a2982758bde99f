package handler

import (
	"net/http"

	"chainremit/internal/adapter/http/dto"
	"chainremit/internal/adapter/http/middleware"
	"chainremit/internal/core/ports"
	"chainremit/pkg/apperror"
	"chainremit/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CardHandler handles linked-card endpoints.
type CardHandler struct {
	cardSvc ports.CardService
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(cardSvc ports.CardService) *CardHandler {
	return &CardHandler{cardSvc: cardSvc}
}

// Add handles POST /api/v1/cards.
func (h *CardHandler) Add(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.AddCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	card, err := h.cardSvc.AddCard(c.Request.Context(), ports.AddCardRequest{
		UserID:      userID,
		Number:      req.Number,
		Cvv:         req.Cvv,
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
		MakeDefault: req.MakeDefault,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromCard(card))
}

// List handles GET /api/v1/cards.
func (h *CardHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	cards, err := h.cardSvc.ListCards(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := make([]dto.CardResponse, 0, len(cards))
	for i := range cards {
		resp = append(resp, dto.FromCard(&cards[i]))
	}
	response.OK(c, resp)
}

// Remove handles DELETE /api/v1/cards/:id.
func (h *CardHandler) Remove(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	cardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("card id must be a uuid"))
		return
	}

	if err := h.cardSvc.RemoveCard(c.Request.Context(), userID, cardID); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SetDefault handles PUT /api/v1/cards/:id/default.
func (h *CardHandler) SetDefault(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	cardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("card id must be a uuid"))
		return
	}

	if err := h.cardSvc.SetDefaultCard(c.Request.Context(), userID, cardID); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
