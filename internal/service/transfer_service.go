package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"
	"chainremit/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// GatewayTimeouts bounds every external money-movement call. A call that
// exceeds its bound is an unknown outcome, never a failure.
type GatewayTimeouts struct {
	Funding    time.Duration
	Settlement time.Duration
	Payout     time.Duration
}

// TransferServiceImpl implements ports.TransferService: the saga
// orchestrator for transfers, deposits and withdrawals.
//
// External gateway calls never run while a database transaction is open.
// Each flow is: short transaction to reserve/record, external calls, short
// transaction to write the outcome. Partial failure is repaired by
// compensation (a refund or a balance credit-back), and when compensation
// itself fails the transaction is flagged for reconciliation rather than
// silently dropped.
type TransferServiceImpl struct {
	txRepo      ports.TransactionRepository
	balanceRepo ports.BalanceRepository
	cardRepo    ports.CardRepository
	transactor  ports.DBTransactor
	fees        ports.FeeCalculator
	converter   ports.CurrencyConverter
	funding     ports.FundingGateway
	router      ports.SettlementRouter
	payout      ports.PayoutGateway
	bank        ports.BankVerifier
	notifier    ports.Notifier
	currencies  map[string]struct{}
	timeouts    GatewayTimeouts
	log         zerolog.Logger
}

// NewTransferService creates a TransferServiceImpl.
func NewTransferService(
	txRepo ports.TransactionRepository,
	balanceRepo ports.BalanceRepository,
	cardRepo ports.CardRepository,
	transactor ports.DBTransactor,
	fees ports.FeeCalculator,
	converter ports.CurrencyConverter,
	funding ports.FundingGateway,
	router ports.SettlementRouter,
	payout ports.PayoutGateway,
	bank ports.BankVerifier,
	notifier ports.Notifier,
	supportedCurrencies []string,
	timeouts GatewayTimeouts,
	log zerolog.Logger,
) *TransferServiceImpl {
	currencies := make(map[string]struct{}, len(supportedCurrencies))
	for _, c := range supportedCurrencies {
		currencies[c] = struct{}{}
	}
	return &TransferServiceImpl{
		txRepo:      txRepo,
		balanceRepo: balanceRepo,
		cardRepo:    cardRepo,
		transactor:  transactor,
		fees:        fees,
		converter:   converter,
		funding:     funding,
		router:      router,
		payout:      payout,
		bank:        bank,
		notifier:    notifier,
		currencies:  currencies,
		timeouts:    timeouts,
		log:         log,
	}
}

// Transfer runs a card-funded on-chain transfer:
// quote -> pending -> charge card -> send on-chain -> completed,
// compensating with a refund if the settlement leg fails after the charge
// was captured.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !s.supportedCurrency(req.Currency) {
		return nil, apperror.ErrUnsupportedCurrency(req.Currency)
	}
	if !domain.ValidNetwork(req.Network) {
		return nil, apperror.ErrUnsupportedNetwork(string(req.Network))
	}
	if req.RecipientRef == "" {
		return nil, apperror.Validation("Recipient reference is required")
	}

	gateway, err := s.router.Gateway(req.Network)
	if err != nil {
		return nil, apperror.ErrUnsupportedNetwork(string(req.Network))
	}

	card, err := s.defaultCard(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	quote, err := s.fees.Quote(req.Network, req.Amount)
	if err != nil {
		return nil, err
	}
	if req.ExpectedTotalFees != nil && *req.ExpectedTotalFees != quote.TotalFees {
		return nil, apperror.ErrFeeQuoteMismatch()
	}

	// Resolve the conversion before anything is written: an unusable rate
	// rejects the request with no side effects.
	settlementAmount, err := s.converter.ToSettlementCurrency(ctx, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		UserID:        req.UserID,
		Type:          domain.TransactionTypeTransfer,
		Status:        domain.TransactionStatusPending,
		Amount:        req.Amount,
		Currency:      req.Currency,
		SettlementFee: quote.SettlementFee,
		PlatformFee:   quote.PlatformFee,
		TotalFees:     quote.TotalFees,
		Network:       req.Network,
		RecipientRef:  req.RecipientRef,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.createTransaction(ctx, txn); err != nil {
		return nil, apperror.InternalError(err)
	}

	chargeRef, err := s.chargeCard(ctx, txn, card)
	if err != nil {
		return txn, err
	}

	txRef, err := s.settle(ctx, txn, gateway, settlementAmount)
	if err != nil {
		if errors.Is(err, errOutcomeUnknown) {
			// The charge is captured and the on-chain leg may or may not
			// have happened: compensating now could double-move funds.
			s.flagForReconciliation(ctx, txn, err)
			return txn, apperror.ErrUnknownOutcome(err)
		}
		return txn, s.compensate(ctx, txn, chargeRef, err)
	}

	txn.Status = domain.TransactionStatusCompleted
	txn.SettlementTxRef = &txRef
	now := time.Now().UTC()
	txn.CompletedAt = &now
	if err := s.writeOutcome(ctx, txn); err != nil {
		return txn, apperror.InternalError(err)
	}

	s.notifyAsync(ctx, txn, "transfer.completed")
	return txn, nil
}

// Deposit charges the default card and credits the user's balance. There is
// no settlement leg; the final ledger write covers both the transaction row
// and the balance credit atomically.
func (s *TransferServiceImpl) Deposit(ctx context.Context, req ports.DepositRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !s.supportedCurrency(req.Currency) {
		return nil, apperror.ErrUnsupportedCurrency(req.Currency)
	}

	card, err := s.defaultCard(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	platformFee, err := s.fees.PlatformFee(req.Amount)
	if err != nil {
		return nil, err
	}

	balance, err := s.ensureBalance(ctx, req.UserID, req.Currency)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	txn := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Type:        domain.TransactionTypeDeposit,
		Status:      domain.TransactionStatusPending,
		Amount:      req.Amount,
		Currency:    req.Currency,
		PlatformFee: platformFee,
		TotalFees:   platformFee,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.createTransaction(ctx, txn); err != nil {
		return nil, apperror.InternalError(err)
	}

	chargeRef, err := s.chargeCard(ctx, txn, card)
	if err != nil {
		return txn, err
	}

	if err := s.creditDeposit(ctx, txn, balance.ID); err != nil {
		// Charged but not credited: hand the money back.
		return txn, s.compensate(ctx, txn, chargeRef, err)
	}

	s.notifyAsync(ctx, txn, "deposit.completed")
	return txn, nil
}

// Withdraw debits the user's balance under a row lock and pays out to a
// verified bank account. The payout runs outside the lock; a payout failure
// credits the debited amount back.
func (s *TransferServiceImpl) Withdraw(ctx context.Context, req ports.WithdrawRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !s.supportedCurrency(req.Currency) {
		return nil, apperror.ErrUnsupportedCurrency(req.Currency)
	}
	if req.AccountNumber == "" || req.BankCode == "" {
		return nil, apperror.Validation("Account number and bank code are required")
	}

	accountName, err := s.bank.Verify(ctx, req.AccountNumber, req.BankCode)
	if err != nil {
		return nil, apperror.ErrBankVerificationFailed(err)
	}

	platformFee, err := s.fees.PlatformFee(req.Amount)
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		ID:             uuid.New(),
		UserID:         req.UserID,
		Type:           domain.TransactionTypeWithdrawal,
		Status:         domain.TransactionStatusPending,
		Amount:         req.Amount,
		Currency:       req.Currency,
		PlatformFee:    platformFee,
		TotalFees:      platformFee,
		DestinationRef: fmt.Sprintf("%s:%s:%s", req.BankCode, req.AccountNumber, accountName),
		CreatedAt:      time.Now().UTC(),
	}

	// Balance check, debit and transaction creation share one row lock so a
	// concurrent withdrawal observes this debit.
	if err := s.debitForWithdrawal(ctx, txn); err != nil {
		return nil, err
	}

	if err := s.txRepo.UpdateStatus(ctx, nil, txn.ID, domain.TransactionStatusProcessing); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to mark transaction processing")
	}
	txn.Status = domain.TransactionStatusProcessing

	payoutRef, err := s.sendPayout(ctx, txn, req)
	if err != nil {
		if errors.Is(err, errOutcomeUnknown) {
			s.flagForReconciliation(ctx, txn, err)
			return txn, apperror.ErrUnknownOutcome(err)
		}
		return txn, s.refundWithdrawal(ctx, txn, err)
	}

	txn.Status = domain.TransactionStatusCompleted
	txn.SettlementTxRef = &payoutRef
	now := time.Now().UTC()
	txn.CompletedAt = &now
	if err := s.writeOutcome(ctx, txn); err != nil {
		return txn, apperror.InternalError(err)
	}

	s.notifyAsync(ctx, txn, "withdrawal.completed")
	return txn, nil
}

// Cancel aborts a transaction that has not yet been funded. A cancelled
// withdrawal returns the debited amount to the balance.
func (s *TransferServiceImpl) Cancel(ctx context.Context, userID, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil || txn.UserID != userID {
		return nil, apperror.ErrNotFound("Transaction")
	}
	if !txn.IsCancellable() {
		return nil, apperror.ErrNotCancellable()
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer tx.Rollback(ctx)

	txn.Status = domain.TransactionStatusCancelled
	now := time.Now().UTC()
	txn.CompletedAt = &now

	if txn.Type == domain.TransactionTypeWithdrawal {
		balance, err := s.balanceRepo.GetForUpdate(ctx, tx, userID, txn.Currency)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		if balance == nil {
			return nil, apperror.InternalError(fmt.Errorf("balance row missing for cancelled withdrawal %s", txn.ID))
		}
		if err := s.balanceRepo.Credit(ctx, tx, balance.ID, txn.GrossAmount()); err != nil {
			return nil, apperror.InternalError(err)
		}
	}
	if err := s.txRepo.UpdateOutcome(ctx, tx, txn); err != nil {
		return nil, apperror.InternalError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}
	return txn, nil
}

// Get returns one of the user's transactions.
func (s *TransferServiceImpl) Get(ctx context.Context, userID, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil || txn.UserID != userID {
		return nil, apperror.ErrNotFound("Transaction")
	}
	return txn, nil
}

// List returns a page of the user's transactions.
func (s *TransferServiceImpl) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	items, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return items, total, nil
}

// errOutcomeUnknown marks a gateway interaction whose result could not be
// established even after a status re-check.
var errOutcomeUnknown = errors.New("gateway outcome unknown")

func (s *TransferServiceImpl) supportedCurrency(currency string) bool {
	_, ok := s.currencies[currency]
	return ok
}

func (s *TransferServiceImpl) defaultCard(ctx context.Context, userID uuid.UUID) (*domain.LinkedCard, error) {
	card, err := s.cardRepo.GetDefault(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if card == nil {
		return nil, apperror.ErrNoDefaultCard()
	}
	return card, nil
}

func (s *TransferServiceImpl) createTransaction(ctx context.Context, txn *domain.Transaction) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.txRepo.Create(ctx, tx, txn); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *TransferServiceImpl) writeOutcome(ctx context.Context, txn *domain.Transaction) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.txRepo.UpdateOutcome(ctx, tx, txn); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// chargeCard moves the transaction to processing and captures the gross
// amount from the card. On a timeout the charge is reconciled through an
// issuer lookup before any state is decided.
func (s *TransferServiceImpl) chargeCard(ctx context.Context, txn *domain.Transaction, card *domain.LinkedCard) (string, error) {
	if err := s.txRepo.UpdateStatus(ctx, nil, txn.ID, domain.TransactionStatusProcessing); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to mark transaction processing")
	}
	txn.Status = domain.TransactionStatusProcessing

	cctx, cancel := context.WithTimeout(ctx, s.timeouts.Funding)
	chargeRef, err := s.funding.Charge(cctx, card, txn.GrossAmount(), txn.Currency, txn.ID.String())
	cancel()

	if err != nil {
		if !isTimeout(err) {
			return "", s.failTransaction(ctx, txn, fmt.Sprintf("card charge declined: %v", err), apperror.ErrFundingFailed(err))
		}

		status, lookedUpRef, lerr := s.lookupCharge(ctx, txn.ID.String())
		switch {
		case lerr == nil && status == ports.ChargeStatusSucceeded:
			chargeRef = lookedUpRef
		case lerr == nil && status == ports.ChargeStatusFailed:
			return "", s.failTransaction(ctx, txn, "card charge timed out and issuer reports no capture", apperror.ErrFundingFailed(err))
		default:
			s.flagForReconciliation(ctx, txn, err)
			return "", apperror.ErrUnknownOutcome(err)
		}
	}

	txn.FundingRef = &chargeRef
	if err := s.writeOutcome(ctx, txn); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to persist funding reference")
	}
	return chargeRef, nil
}

// lookupCharge re-checks a timed-out charge against the issuer using a
// fresh context, since the request context may already be expired.
func (s *TransferServiceImpl) lookupCharge(ctx context.Context, reference string) (ports.ChargeStatus, string, error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeouts.Funding)
	defer cancel()
	return s.funding.LookupCharge(lctx, reference)
}

// settle sends the converted amount on-chain. A timeout is resolved through
// GetStatus; only a definitive on-chain failure is returned as an error the
// caller may compensate for. An unresolved outcome returns
// errOutcomeUnknown.
func (s *TransferServiceImpl) settle(ctx context.Context, txn *domain.Transaction, gateway ports.SettlementGateway, amount decimal.Decimal) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeouts.Settlement)
	txRef, err := gateway.Send(sctx, txn.RecipientRef, amount, txn.ID.String())
	cancel()
	if err == nil {
		return txRef, nil
	}
	if !isTimeout(err) {
		return "", fmt.Errorf("settlement send: %w", err)
	}

	pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeouts.Settlement)
	result, serr := gateway.GetStatus(pctx, txn.ID.String())
	pcancel()
	if serr != nil {
		return "", fmt.Errorf("settlement timed out, status poll failed: %w: %w", serr, errOutcomeUnknown)
	}
	switch result.Status {
	case ports.SettlementStatusConfirmed:
		return result.TxRef, nil
	case ports.SettlementStatusFailed:
		return "", fmt.Errorf("settlement send timed out and chain reports failure: %w", err)
	default:
		return "", fmt.Errorf("settlement still pending after timeout: %w", errOutcomeUnknown)
	}
}

// sendPayout transfers withdrawal funds to the verified bank account, with
// the same timeout-reconciliation contract as settle.
func (s *TransferServiceImpl) sendPayout(ctx context.Context, txn *domain.Transaction, req ports.WithdrawRequest) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, s.timeouts.Payout)
	payoutRef, err := s.payout.Send(pctx, txn.DestinationRef, req.Amount, req.Currency, txn.ID.String())
	cancel()
	if err == nil {
		return payoutRef, nil
	}
	if !isTimeout(err) {
		return "", fmt.Errorf("payout send: %w", err)
	}

	gctx, gcancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeouts.Payout)
	result, serr := s.payout.GetStatus(gctx, txn.ID.String())
	gcancel()
	if serr != nil {
		return "", fmt.Errorf("payout timed out, status poll failed: %w: %w", serr, errOutcomeUnknown)
	}
	switch result.Status {
	case ports.SettlementStatusConfirmed:
		return result.TxRef, nil
	case ports.SettlementStatusFailed:
		return "", fmt.Errorf("payout send timed out and provider reports failure: %w", err)
	default:
		return "", fmt.Errorf("payout still pending after timeout: %w", errOutcomeUnknown)
	}
}

// compensate refunds a captured charge after a later leg failed, records
// the refund as its own ledger row linked to the original transaction, and
// marks the original failed. A failed refund is fatal and flags the
// transaction for manual reconciliation.
func (s *TransferServiceImpl) compensate(ctx context.Context, txn *domain.Transaction, chargeRef string, cause error) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeouts.Funding)
	refundRef, err := s.funding.Refund(rctx, chargeRef, txn.GrossAmount())
	cancel()
	if err != nil {
		s.log.Error().Err(err).
			Str("transaction_id", txn.ID.String()).
			Str("charge_ref", chargeRef).
			Msg("refund of captured charge failed, flagging for reconciliation")
		reason := fmt.Sprintf("%v; refund failed: %v", cause, err)
		txn.Status = domain.TransactionStatusFailed
		txn.FailureReason = &reason
		txn.NeedsReconciliation = true
		if werr := s.writeOutcome(ctx, txn); werr != nil {
			s.log.Error().Err(werr).Str("transaction_id", txn.ID.String()).Msg("failed to persist compensation failure")
		}
		return apperror.ErrCompensationFailed(err)
	}

	reason := fmt.Sprintf("%v; funding charge refunded", cause)
	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusFailed
	txn.FailureReason = &reason
	txn.RefundRef = &refundRef
	txn.CompletedAt = &now

	originalID := txn.ID
	refund := &domain.Transaction{
		ID:                    uuid.New(),
		UserID:                txn.UserID,
		Type:                  domain.TransactionTypeCardCharge,
		Status:                domain.TransactionStatusCompleted,
		Amount:                txn.GrossAmount(),
		Currency:              txn.Currency,
		RefundRef:             &refundRef,
		OriginalTransactionID: &originalID,
		CreatedAt:             now,
		CompletedAt:           &now,
	}

	tx, terr := s.transactor.Begin(ctx)
	if terr != nil {
		return apperror.InternalError(terr)
	}
	defer tx.Rollback(ctx)
	if err := s.txRepo.UpdateOutcome(ctx, tx, txn); err != nil {
		return apperror.InternalError(err)
	}
	if err := s.txRepo.Create(ctx, tx, refund); err != nil {
		return apperror.InternalError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}

	return apperror.ErrSettlementFailed(cause)
}

// refundWithdrawal credits a debited withdrawal amount back after a payout
// failure.
func (s *TransferServiceImpl) refundWithdrawal(ctx context.Context, txn *domain.Transaction, cause error) error {
	reason := fmt.Sprintf("%v; balance credited back", cause)
	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusFailed
	txn.FailureReason = &reason
	txn.CompletedAt = &now

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}
	defer tx.Rollback(ctx)

	balance, err := s.balanceRepo.GetForUpdate(ctx, tx, txn.UserID, txn.Currency)
	if err != nil || balance == nil {
		if err == nil {
			err = fmt.Errorf("balance row missing for failed withdrawal %s", txn.ID)
		}
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("credit-back failed, flagging for reconciliation")
		s.flagForReconciliation(ctx, txn, err)
		return apperror.ErrCompensationFailed(err)
	}
	if err := s.balanceRepo.Credit(ctx, tx, balance.ID, txn.GrossAmount()); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("credit-back failed, flagging for reconciliation")
		s.flagForReconciliation(ctx, txn, err)
		return apperror.ErrCompensationFailed(err)
	}
	if err := s.txRepo.UpdateOutcome(ctx, tx, txn); err != nil {
		return apperror.InternalError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}

	return apperror.ErrSettlementFailed(cause)
}

// creditDeposit finalizes a funded deposit: balance credit and completion
// in one database transaction.
func (s *TransferServiceImpl) creditDeposit(ctx context.Context, txn *domain.Transaction, balanceID uuid.UUID) error {
	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusCompleted
	txn.CompletedAt = &now

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := s.balanceRepo.GetForUpdate(ctx, tx, txn.UserID, txn.Currency); err != nil {
		return err
	}
	if err := s.balanceRepo.Credit(ctx, tx, balanceID, txn.Amount); err != nil {
		return err
	}
	if err := s.txRepo.UpdateOutcome(ctx, tx, txn); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// debitForWithdrawal performs the balance check, the debit and the
// transaction creation under one row lock.
func (s *TransferServiceImpl) debitForWithdrawal(ctx context.Context, txn *domain.Transaction) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}
	defer tx.Rollback(ctx)

	balance, err := s.balanceRepo.GetForUpdate(ctx, tx, txn.UserID, txn.Currency)
	if err != nil {
		return apperror.InternalError(err)
	}
	if balance == nil || balance.Amount < txn.GrossAmount() {
		return apperror.ErrInsufficientFunds()
	}
	if err := s.balanceRepo.Debit(ctx, tx, balance.ID, txn.GrossAmount()); err != nil {
		return apperror.InternalError(err)
	}
	if err := s.txRepo.Create(ctx, tx, txn); err != nil {
		return apperror.InternalError(err)
	}
	return tx.Commit(ctx)
}

// ensureBalance returns the user's balance row for a currency, creating it
// on first use.
func (s *TransferServiceImpl) ensureBalance(ctx context.Context, userID uuid.UUID, currency string) (*domain.Balance, error) {
	balance, err := s.balanceRepo.Get(ctx, userID, currency)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		return balance, nil
	}
	balance = &domain.Balance{
		ID:        uuid.New(),
		UserID:    userID,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.balanceRepo.Create(ctx, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// failTransaction marks a transaction failed with a reason and returns the
// caller-facing error.
func (s *TransferServiceImpl) failTransaction(ctx context.Context, txn *domain.Transaction, reason string, cause *apperror.AppError) error {
	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusFailed
	txn.FailureReason = &reason
	txn.CompletedAt = &now
	if err := s.writeOutcome(ctx, txn); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to persist transaction failure")
	}
	return cause
}

// flagForReconciliation persists the unknown-outcome flag. The transaction
// stays in processing until reconciliation resolves it.
func (s *TransferServiceImpl) flagForReconciliation(ctx context.Context, txn *domain.Transaction, cause error) {
	txn.NeedsReconciliation = true
	reason := cause.Error()
	txn.FailureReason = &reason
	if err := s.writeOutcome(ctx, txn); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to persist reconciliation flag")
	}
}

func (s *TransferServiceImpl) notifyAsync(ctx context.Context, txn *domain.Transaction, event string) {
	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		payload := map[string]any{
			"transaction_id": txn.ID,
			"type":           txn.Type,
			"status":         txn.Status,
			"amount":         txn.Amount,
			"currency":       txn.Currency,
			"total_fees":     txn.TotalFees,
		}
		if err := s.notifier.Notify(nctx, txn.UserID, event, payload); err != nil {
			s.log.Warn().Err(err).Str("event", event).Msg("notification publish failed")
		}
	}()
}

// isTimeout reports whether an external call ended without a definitive
// outcome.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
