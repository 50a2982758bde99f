package handler

import (
	"strconv"

	"chainremit/internal/adapter/http/dto"
	"chainremit/internal/adapter/http/middleware"
	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"
	"chainremit/pkg/apperror"
	"chainremit/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransferHandler handles transfer, deposit, withdrawal and transaction
// endpoints.
type TransferHandler struct {
	transferSvc ports.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transferSvc ports.TransferService) *TransferHandler {
	return &TransferHandler{transferSvc: transferSvc}
}

// Transfer handles POST /api/v1/transfers.
func (h *TransferHandler) Transfer(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.transferSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		UserID:            userID,
		RecipientRef:      req.RecipientRef,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Network:           domain.SettlementNetwork(req.Network),
		ExpectedTotalFees: req.ExpectedTotalFees,
	})
	if err != nil {
		respondWithOutcome(c, txn, err)
		return
	}

	response.Created(c, dto.FromTransaction(txn))
}

// Deposit handles POST /api/v1/deposits.
func (h *TransferHandler) Deposit(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.transferSvc.Deposit(c.Request.Context(), ports.DepositRequest{
		UserID:   userID,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		respondWithOutcome(c, txn, err)
		return
	}

	response.Created(c, dto.FromTransaction(txn))
}

// Withdraw handles POST /api/v1/withdrawals.
func (h *TransferHandler) Withdraw(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.transferSvc.Withdraw(c.Request.Context(), ports.WithdrawRequest{
		UserID:        userID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
	})
	if err != nil {
		respondWithOutcome(c, txn, err)
		return
	}

	response.Created(c, dto.FromTransaction(txn))
}

// Cancel handles POST /api/v1/transactions/:id/cancel.
func (h *TransferHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	txnID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("transaction id must be a uuid"))
		return
	}

	txn, err := h.transferSvc.Cancel(c.Request.Context(), userID, txnID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromTransaction(txn))
}

// Get handles GET /api/v1/transactions/:id.
func (h *TransferHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	txnID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("transaction id must be a uuid"))
		return
	}

	txn, err := h.transferSvc.Get(c.Request.Context(), userID, txnID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromTransaction(txn))
}

// List handles GET /api/v1/transactions.
func (h *TransferHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	params := ports.TransactionListParams{
		UserID:   userID,
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if s := c.Query("status"); s != "" {
		status := domain.TransactionStatus(s)
		if !domain.ValidStatus(status) {
			response.Error(c, apperror.Validation("unknown status filter"))
			return
		}
		params.Status = &status
	}
	if ty := c.Query("type"); ty != "" {
		txType := domain.TransactionType(ty)
		if !domain.ValidType(txType) {
			response.Error(c, apperror.Validation("unknown type filter"))
			return
		}
		params.Type = &txType
	}

	items, total, err := h.transferSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	list := dto.TransactionListResponse{
		Items:    make([]dto.TransactionResponse, 0, len(items)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for i := range items {
		list.Items = append(list.Items, dto.FromTransaction(&items[i]))
	}
	response.OK(c, list)
}

// respondWithOutcome distinguishes "rejected before any money moved" from
// "accepted but ended in a non-completed state": the former has no
// transaction to report, the latter returns the transaction alongside the
// error envelope status.
func respondWithOutcome(c *gin.Context, txn *domain.Transaction, err error) {
	if txn == nil {
		response.Error(c, err)
		return
	}
	response.ErrorWithData(c, err, dto.FromTransaction(txn))
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
