package service

import (
	"context"
	"fmt"
	"time"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reconciler resolves transactions whose gateway outcome could not be
// established at request time. It re-checks the external side (issuer,
// chain, payout provider) and either completes the transaction, fails it
// with compensation, or leaves it flagged for the next pass when the
// outcome is still unknown.
type Reconciler struct {
	txRepo      ports.TransactionRepository
	balanceRepo ports.BalanceRepository
	transactor  ports.DBTransactor
	funding     ports.FundingGateway
	router      ports.SettlementRouter
	payout      ports.PayoutGateway
	notifier    ports.Notifier
	batchSize   int
	interval    time.Duration
	log         zerolog.Logger
}

// NewReconciler creates a reconciliation worker.
func NewReconciler(
	txRepo ports.TransactionRepository,
	balanceRepo ports.BalanceRepository,
	transactor ports.DBTransactor,
	funding ports.FundingGateway,
	router ports.SettlementRouter,
	payout ports.PayoutGateway,
	notifier ports.Notifier,
	interval time.Duration,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		txRepo:      txRepo,
		balanceRepo: balanceRepo,
		transactor:  transactor,
		funding:     funding,
		router:      router,
		payout:      payout,
		notifier:    notifier,
		batchSize:   50,
		interval:    interval,
		log:         log.With().Str("component", "reconciler").Logger(),
	}
}

// Run processes flagged transactions on a fixed interval until the context
// is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.log.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}

// RunOnce processes one batch of flagged transactions.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	flagged, err := r.txRepo.ListNeedingReconciliation(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("list flagged transactions: %w", err)
	}

	for i := range flagged {
		txn := &flagged[i]
		if err := r.resolve(ctx, txn); err != nil {
			r.log.Error().Err(err).
				Str("transaction_id", txn.ID.String()).
				Str("type", string(txn.Type)).
				Msg("reconciliation of transaction failed")
		}
	}
	return nil
}

func (r *Reconciler) resolve(ctx context.Context, txn *domain.Transaction) error {
	switch txn.Type {
	case domain.TransactionTypeTransfer:
		return r.resolveTransfer(ctx, txn)
	case domain.TransactionTypeDeposit:
		return r.resolveDeposit(ctx, txn)
	case domain.TransactionTypeWithdrawal:
		return r.resolveWithdrawal(ctx, txn)
	case domain.TransactionTypeCardCharge:
		return r.resolveSurcharge(ctx, txn)
	default:
		// Nothing external to re-check; clear the flag so the row stops
		// cycling through every pass.
		txn.NeedsReconciliation = false
		return r.writeOutcome(ctx, txn)
	}
}

// resolveTransfer re-checks an in-doubt transfer leg by leg. A transfer
// already marked failed is one whose compensation refund did not go
// through; only the refund is retried.
func (r *Reconciler) resolveTransfer(ctx context.Context, txn *domain.Transaction) error {
	if txn.Status == domain.TransactionStatusFailed {
		return r.retryRefund(ctx, txn)
	}

	if txn.FundingRef == nil {
		status, chargeRef, err := r.funding.LookupCharge(ctx, txn.ID.String())
		if err != nil || status == ports.ChargeStatusUnknown {
			return err // stays flagged for the next pass
		}
		if status == ports.ChargeStatusFailed {
			return r.fail(ctx, txn, "issuer reports no capture")
		}
		txn.FundingRef = &chargeRef
	}

	gateway, err := r.router.Gateway(txn.Network)
	if err != nil {
		return fmt.Errorf("resolve gateway for %s: %w", txn.Network, err)
	}

	result, err := gateway.GetStatus(ctx, txn.ID.String())
	if err != nil {
		return fmt.Errorf("settlement status: %w", err)
	}

	switch result.Status {
	case ports.SettlementStatusConfirmed:
		return r.complete(ctx, txn, result.TxRef, "transfer.completed")
	case ports.SettlementStatusFailed:
		return r.refundCharge(ctx, txn, "settlement failed on chain")
	default:
		return nil // still pending on chain, stays flagged
	}
}

// resolveDeposit re-checks an in-doubt card charge. A deposit already
// marked failed is a failed refund retry, like a transfer.
func (r *Reconciler) resolveDeposit(ctx context.Context, txn *domain.Transaction) error {
	if txn.Status == domain.TransactionStatusFailed {
		return r.retryRefund(ctx, txn)
	}

	status, chargeRef, err := r.funding.LookupCharge(ctx, txn.ID.String())
	if err != nil || status == ports.ChargeStatusUnknown {
		return err
	}
	if status == ports.ChargeStatusFailed {
		return r.fail(ctx, txn, "issuer reports no capture")
	}

	txn.FundingRef = &chargeRef
	return r.creditAndComplete(ctx, txn)
}

// resolveSurcharge re-checks an in-doubt card-addition surcharge. The
// card itself was never linked, so a capture that did land is handed
// straight back.
func (r *Reconciler) resolveSurcharge(ctx context.Context, txn *domain.Transaction) error {
	status, chargeRef, err := r.funding.LookupCharge(ctx, txn.ID.String())
	if err != nil || status == ports.ChargeStatusUnknown {
		return err
	}
	if status == ports.ChargeStatusFailed {
		return r.fail(ctx, txn, "issuer reports no capture")
	}

	txn.FundingRef = &chargeRef
	return r.refundCharge(ctx, txn, "card was not linked")
}

// resolveWithdrawal re-checks an in-doubt payout. A withdrawal already
// marked failed is one whose balance credit-back did not land.
func (r *Reconciler) resolveWithdrawal(ctx context.Context, txn *domain.Transaction) error {
	if txn.Status == domain.TransactionStatusFailed {
		return r.creditBack(ctx, txn)
	}

	result, err := r.payout.GetStatus(ctx, txn.ID.String())
	if err != nil {
		return fmt.Errorf("payout status: %w", err)
	}

	switch result.Status {
	case ports.SettlementStatusConfirmed:
		return r.complete(ctx, txn, result.TxRef, "withdrawal.completed")
	case ports.SettlementStatusFailed:
		txn.Status = domain.TransactionStatusFailed
		reason := "payout failed at provider"
		txn.FailureReason = &reason
		return r.creditBack(ctx, txn)
	default:
		return nil
	}
}

func (r *Reconciler) complete(ctx context.Context, txn *domain.Transaction, txRef, event string) error {
	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusCompleted
	txn.SettlementTxRef = &txRef
	txn.NeedsReconciliation = false
	txn.FailureReason = nil
	txn.CompletedAt = &now

	if err := r.writeOutcome(ctx, txn); err != nil {
		return err
	}

	r.log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("tx_ref", txRef).
		Msg("in-doubt transaction resolved as completed")
	r.notify(ctx, txn, event)
	return nil
}

func (r *Reconciler) fail(ctx context.Context, txn *domain.Transaction, reason string) error {
	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusFailed
	txn.FailureReason = &reason
	txn.NeedsReconciliation = false
	txn.CompletedAt = &now
	if err := r.writeOutcome(ctx, txn); err != nil {
		return err
	}
	r.notify(ctx, txn, "transaction.failed")
	return nil
}

// refundCharge reverses a captured charge after the settlement leg is known
// to have failed, recording the refund as its own ledger row. Exactly one
// refund may exist per original transaction.
func (r *Reconciler) refundCharge(ctx context.Context, txn *domain.Transaction, reason string) error {
	refunds, err := r.txRepo.CountRefundsFor(ctx, txn.ID)
	if err != nil {
		return fmt.Errorf("count refunds: %w", err)
	}
	if refunds > 0 {
		// Refund already recorded; just finalize the original row.
		return r.fail(ctx, txn, reason)
	}
	if txn.FundingRef == nil {
		return r.fail(ctx, txn, reason)
	}

	refundRef, err := r.funding.Refund(ctx, *txn.FundingRef, txn.GrossAmount())
	if err != nil {
		return fmt.Errorf("refund charge: %w", err) // stays flagged
	}

	now := time.Now().UTC()
	full := reason + "; funding charge refunded"
	txn.Status = domain.TransactionStatusFailed
	txn.FailureReason = &full
	txn.RefundRef = &refundRef
	txn.NeedsReconciliation = false
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

	tx, err := r.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := r.txRepo.UpdateOutcome(ctx, tx, txn); err != nil {
		return err
	}
	if err := r.txRepo.Create(ctx, tx, refund); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.notify(ctx, txn, "transaction.failed")
	return nil
}

// retryRefund retries the compensation refund of a failed card-funded
// transaction.
func (r *Reconciler) retryRefund(ctx context.Context, txn *domain.Transaction) error {
	return r.refundCharge(ctx, txn, "compensation retried")
}

// creditBack returns a debited withdrawal amount to the balance.
func (r *Reconciler) creditBack(ctx context.Context, txn *domain.Transaction) error {
	tx, err := r.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	balance, err := r.balanceRepo.GetForUpdate(ctx, tx, txn.UserID, txn.Currency)
	if err != nil {
		return err
	}
	if balance == nil {
		return fmt.Errorf("balance row missing for withdrawal %s", txn.ID)
	}
	if err := r.balanceRepo.Credit(ctx, tx, balance.ID, txn.GrossAmount()); err != nil {
		return err
	}

	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusFailed
	txn.NeedsReconciliation = false
	txn.CompletedAt = &now
	if err := r.txRepo.UpdateOutcome(ctx, tx, txn); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.notify(ctx, txn, "transaction.failed")
	return nil
}

// creditAndComplete finalizes a reconciled deposit: balance credit and
// completion in one database transaction.
func (r *Reconciler) creditAndComplete(ctx context.Context, txn *domain.Transaction) error {
	tx, err := r.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	balance, err := r.balanceRepo.GetForUpdate(ctx, tx, txn.UserID, txn.Currency)
	if err != nil {
		return err
	}
	if balance == nil {
		return fmt.Errorf("balance row missing for deposit %s", txn.ID)
	}
	if err := r.balanceRepo.Credit(ctx, tx, balance.ID, txn.Amount); err != nil {
		return err
	}

	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusCompleted
	txn.NeedsReconciliation = false
	txn.FailureReason = nil
	txn.CompletedAt = &now
	if err := r.txRepo.UpdateOutcome(ctx, tx, txn); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.notify(ctx, txn, "deposit.completed")
	return nil
}

func (r *Reconciler) writeOutcome(ctx context.Context, txn *domain.Transaction) error {
	tx, err := r.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := r.txRepo.UpdateOutcome(ctx, tx, txn); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Reconciler) notify(ctx context.Context, txn *domain.Transaction, event string) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	payload := map[string]any{
		"transaction_id": txn.ID,
		"type":           txn.Type,
		"status":         txn.Status,
	}
	if err := r.notifier.Notify(nctx, txn.UserID, event, payload); err != nil {
		r.log.Warn().Err(err).Str("event", event).Msg("notification publish failed")
	}
}
