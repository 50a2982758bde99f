package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_002", "Amount must be positive", http.StatusBadRequest)
}

func ErrUnsupportedCurrency(currency string) *AppError {
	return New("VAL_003", fmt.Sprintf("Unsupported currency %q", currency), http.StatusBadRequest)
}

func ErrUnsupportedNetwork(network string) *AppError {
	return New("VAL_004", fmt.Sprintf("Unsupported settlement network %q", network), http.StatusBadRequest)
}

// ---- Money movement (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New("PAY_001", "Insufficient balance", http.StatusPaymentRequired)
}

func ErrFundingFailed(err error) *AppError {
	return Wrap("PAY_002", "Card charge was declined", http.StatusUnprocessableEntity, err)
}

func ErrSettlementFailed(err error) *AppError {
	return Wrap("PAY_003", "Settlement leg failed; funds returned to source", http.StatusBadGateway, err)
}

// ErrCompensationFailed is fatal: the refund of an already-captured charge
// failed and the transaction requires manual reconciliation.
func ErrCompensationFailed(err error) *AppError {
	return Wrap("PAY_004", "Refund of funding charge failed; flagged for reconciliation", http.StatusInternalServerError, err)
}

func ErrUnknownOutcome(err error) *AppError {
	return Wrap("PAY_005", "Gateway outcome unknown; transaction flagged for reconciliation", http.StatusAccepted, err)
}

func ErrFeeQuoteMismatch() *AppError {
	return New("PAY_006", "Fee quote no longer matches current schedule", http.StatusConflict)
}

// ---- Currency conversion (FX) ----

func ErrRateUnavailable(err error) *AppError {
	return Wrap("FX_001", "No usable exchange rate available", http.StatusServiceUnavailable, err)
}

// ---- Transactions (TXN) ----

func ErrNotFound(entity string) *AppError {
	return New("TXN_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrNotCancellable() *AppError {
	return New("TXN_002", "Transaction can no longer be cancelled", http.StatusConflict)
}

// ---- Linked cards (CARD) ----

func ErrInvalidCard(reason string) *AppError {
	return New("CARD_001", reason, http.StatusBadRequest)
}

func ErrCardLimitReached() *AppError {
	return New("CARD_002", fmt.Sprintf("At most %d active cards allowed", 3), http.StatusConflict)
}

func ErrLastCard() *AppError {
	return New("CARD_003", "Cannot remove the last active card", http.StatusConflict)
}

func ErrNoDefaultCard() *AppError {
	return New("CARD_004", "No default card linked", http.StatusPreconditionFailed)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Bank verification (BANK) ----

func ErrBankVerificationFailed(err error) *AppError {
	return Wrap("BANK_001", "Destination bank account could not be verified", http.StatusBadRequest, err)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_002", "Card vault failure", http.StatusInternalServerError, err)
}
