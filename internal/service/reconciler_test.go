package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"
	"chainremit/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reconcilerFixture struct {
	txRepo      *mocks.MockTransactionRepository
	balanceRepo *mocks.MockBalanceRepository
	transactor  *mocks.MockDBTransactor
	funding     *mocks.MockFundingGateway
	router      *mocks.MockSettlementRouter
	settlement  *mocks.MockSettlementGateway
	payout      *mocks.MockPayoutGateway
	notifier    *fakeNotifier
	tx          *stubTx
	worker      *Reconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	ctrl := gomock.NewController(t)
	f := &reconcilerFixture{
		txRepo:      mocks.NewMockTransactionRepository(ctrl),
		balanceRepo: mocks.NewMockBalanceRepository(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		funding:     mocks.NewMockFundingGateway(ctrl),
		router:      mocks.NewMockSettlementRouter(ctrl),
		settlement:  mocks.NewMockSettlementGateway(ctrl),
		payout:      mocks.NewMockPayoutGateway(ctrl),
		notifier:    &fakeNotifier{},
		tx:          &stubTx{},
	}
	f.worker = NewReconciler(
		f.txRepo, f.balanceRepo, f.transactor, f.funding, f.router, f.payout,
		f.notifier, time.Minute, zerolog.Nop(),
	)
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil).AnyTimes()
	return f
}

// trackOutcomes lets every UpdateOutcome call through and keeps the last
// written state for assertions.
func (f *reconcilerFixture) trackOutcomes(last **domain.Transaction) {
	f.txRepo.EXPECT().UpdateOutcome(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, txn *domain.Transaction) error {
			copied := *txn
			*last = &copied
			return nil
		}).AnyTimes()
}

func flaggedTransfer() domain.Transaction {
	ref := "ch_1"
	reason := "settlement still pending after timeout"
	return domain.Transaction{
		ID:                  uuid.New(),
		UserID:              uuid.New(),
		Type:                domain.TransactionTypeTransfer,
		Status:              domain.TransactionStatusProcessing,
		Amount:              50000,
		Currency:            "USD",
		SettlementFee:       750,
		PlatformFee:         50,
		TotalFees:           800,
		Network:             domain.NetworkEthereum,
		RecipientRef:        "0xrecipient",
		FundingRef:          &ref,
		FailureReason:       &reason,
		NeedsReconciliation: true,
		CreatedAt:           time.Now().UTC(),
	}
}

func TestReconciler_TransferConfirmedOnChain(t *testing.T) {
	f := newReconcilerFixture(t)
	txn := flaggedTransfer()

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).Return([]domain.Transaction{txn}, nil)
	f.router.EXPECT().Gateway(domain.NetworkEthereum).Return(f.settlement, nil)
	f.settlement.EXPECT().GetStatus(gomock.Any(), txn.ID.String()).
		Return(ports.SettlementResult{Status: ports.SettlementStatusConfirmed, TxRef: "0xconfirmed"}, nil)

	var last *domain.Transaction
	f.trackOutcomes(&last)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	require.NotNil(t, last)
	assert.Equal(t, domain.TransactionStatusCompleted, last.Status)
	assert.False(t, last.NeedsReconciliation)
	require.NotNil(t, last.SettlementTxRef)
	assert.Equal(t, "0xconfirmed", *last.SettlementTxRef)
	assert.Nil(t, last.FailureReason)
	assert.Equal(t, []string{"transfer.completed"}, f.notifier.Events())
}

func TestReconciler_TransferFailedOnChainRefunds(t *testing.T) {
	f := newReconcilerFixture(t)
	txn := flaggedTransfer()

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).Return([]domain.Transaction{txn}, nil)
	f.router.EXPECT().Gateway(domain.NetworkEthereum).Return(f.settlement, nil)
	f.settlement.EXPECT().GetStatus(gomock.Any(), txn.ID.String()).
		Return(ports.SettlementResult{Status: ports.SettlementStatusFailed}, nil)

	f.txRepo.EXPECT().CountRefundsFor(gomock.Any(), txn.ID).Return(int64(0), nil)
	f.funding.EXPECT().Refund(gomock.Any(), "ch_1", int64(50800)).Return("re_1", nil)

	var refundRow *domain.Transaction
	f.txRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, created *domain.Transaction) error {
			refundRow = created
			return nil
		})

	var last *domain.Transaction
	f.trackOutcomes(&last)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	require.NotNil(t, last)
	assert.Equal(t, domain.TransactionStatusFailed, last.Status)
	assert.False(t, last.NeedsReconciliation)
	require.NotNil(t, last.RefundRef)
	assert.Equal(t, "re_1", *last.RefundRef)

	require.NotNil(t, refundRow)
	assert.Equal(t, domain.TransactionTypeCardCharge, refundRow.Type)
	require.NotNil(t, refundRow.OriginalTransactionID)
	assert.Equal(t, txn.ID, *refundRow.OriginalTransactionID)
	assert.Equal(t, int64(50800), refundRow.Amount)
}

func TestReconciler_TransferStillPendingStaysFlagged(t *testing.T) {
	f := newReconcilerFixture(t)
	txn := flaggedTransfer()

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).Return([]domain.Transaction{txn}, nil)
	f.router.EXPECT().Gateway(domain.NetworkEthereum).Return(f.settlement, nil)
	f.settlement.EXPECT().GetStatus(gomock.Any(), txn.ID.String()).
		Return(ports.SettlementResult{Status: ports.SettlementStatusPending}, nil)

	// No UpdateOutcome expected: the row stays flagged untouched.
	require.NoError(t, f.worker.RunOnce(context.Background()))
	assert.Empty(t, f.notifier.Events())
}

func TestReconciler_TransferChargeNeverCaptured(t *testing.T) {
	f := newReconcilerFixture(t)
	txn := flaggedTransfer()
	txn.FundingRef = nil

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).Return([]domain.Transaction{txn}, nil)
	f.funding.EXPECT().LookupCharge(gomock.Any(), txn.ID.String()).
		Return(ports.ChargeStatusFailed, "", nil)

	var last *domain.Transaction
	f.trackOutcomes(&last)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	require.NotNil(t, last)
	assert.Equal(t, domain.TransactionStatusFailed, last.Status)
	assert.False(t, last.NeedsReconciliation)
	assert.Nil(t, last.RefundRef)
}

func TestReconciler_FailedTransferRetriesRefundOnce(t *testing.T) {
	f := newReconcilerFixture(t)
	txn := flaggedTransfer()
	txn.Status = domain.TransactionStatusFailed

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).Return([]domain.Transaction{txn}, nil)
	f.txRepo.EXPECT().CountRefundsFor(gomock.Any(), txn.ID).Return(int64(1), nil)

	// A refund row already exists: no second refund is issued.
	var last *domain.Transaction
	f.trackOutcomes(&last)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	require.NotNil(t, last)
	assert.Equal(t, domain.TransactionStatusFailed, last.Status)
	assert.False(t, last.NeedsReconciliation)
}

func TestReconciler_DepositChargeCapturedCreditsBalance(t *testing.T) {
	f := newReconcilerFixture(t)
	txn := flaggedTransfer()
	txn.Type = domain.TransactionTypeDeposit
	txn.Network = ""
	txn.FundingRef = nil
	txn.SettlementFee = 0
	txn.TotalFees = txn.PlatformFee

	balance := &domain.Balance{ID: uuid.New(), UserID: txn.UserID, Currency: "USD", Amount: 1000}

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).Return([]domain.Transaction{txn}, nil)
	f.funding.EXPECT().LookupCharge(gomock.Any(), txn.ID.String()).
		Return(ports.ChargeStatusSucceeded, "ch_found", nil)
	f.balanceRepo.EXPECT().GetForUpdate(gomock.Any(), f.tx, txn.UserID, "USD").Return(balance, nil)
	f.balanceRepo.EXPECT().Credit(gomock.Any(), f.tx, balance.ID, txn.Amount).Return(nil)

	var last *domain.Transaction
	f.trackOutcomes(&last)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	require.NotNil(t, last)
	assert.Equal(t, domain.TransactionStatusCompleted, last.Status)
	require.NotNil(t, last.FundingRef)
	assert.Equal(t, "ch_found", *last.FundingRef)
	assert.Equal(t, []string{"deposit.completed"}, f.notifier.Events())
}

func flaggedSurcharge() domain.Transaction {
	reason := "card addition surcharge outcome unknown: context deadline exceeded"
	return domain.Transaction{
		ID:                  uuid.New(),
		UserID:              uuid.New(),
		Type:                domain.TransactionTypeCardCharge,
		Status:              domain.TransactionStatusProcessing,
		Amount:              100,
		Currency:            "USD",
		FailureReason:       &reason,
		NeedsReconciliation: true,
		CreatedAt:           time.Now().UTC(),
	}
}

func TestReconciler_InDoubtSurchargeRefunded(t *testing.T) {
	f := newReconcilerFixture(t)
	txn := flaggedSurcharge()

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).Return([]domain.Transaction{txn}, nil)
	f.funding.EXPECT().LookupCharge(gomock.Any(), txn.ID.String()).
		Return(ports.ChargeStatusSucceeded, "ch_9", nil)
	f.txRepo.EXPECT().CountRefundsFor(gomock.Any(), txn.ID).Return(int64(0), nil)
	f.funding.EXPECT().Refund(gomock.Any(), "ch_9", int64(100)).Return("re_9", nil)

	var refundRow *domain.Transaction
	f.txRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, created *domain.Transaction) error {
			refundRow = created
			return nil
		})

	var last *domain.Transaction
	f.trackOutcomes(&last)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	// The captured surcharge goes back to the card; the card was never
	// linked, so the row finalizes as failed.
	require.NotNil(t, last)
	assert.Equal(t, domain.TransactionStatusFailed, last.Status)
	assert.False(t, last.NeedsReconciliation)
	require.NotNil(t, last.RefundRef)
	assert.Equal(t, "re_9", *last.RefundRef)

	require.NotNil(t, refundRow)
	assert.Equal(t, int64(100), refundRow.Amount)
	require.NotNil(t, refundRow.OriginalTransactionID)
	assert.Equal(t, txn.ID, *refundRow.OriginalTransactionID)
}

func TestReconciler_InDoubtSurchargeNeverCaptured(t *testing.T) {
	f := newReconcilerFixture(t)
	txn := flaggedSurcharge()

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).Return([]domain.Transaction{txn}, nil)
	f.funding.EXPECT().LookupCharge(gomock.Any(), txn.ID.String()).
		Return(ports.ChargeStatusFailed, "", nil)

	var last *domain.Transaction
	f.trackOutcomes(&last)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	require.NotNil(t, last)
	assert.Equal(t, domain.TransactionStatusFailed, last.Status)
	assert.False(t, last.NeedsReconciliation)
	assert.Nil(t, last.RefundRef)
}

func TestReconciler_WithdrawalPayoutFailedCreditsBack(t *testing.T) {
	f := newReconcilerFixture(t)
	txn := flaggedTransfer()
	txn.Type = domain.TransactionTypeWithdrawal
	txn.Network = ""
	txn.FundingRef = nil
	txn.SettlementFee = 0
	txn.TotalFees = txn.PlatformFee

	balance := &domain.Balance{ID: uuid.New(), UserID: txn.UserID, Currency: "USD", Amount: 0}

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).Return([]domain.Transaction{txn}, nil)
	f.payout.EXPECT().GetStatus(gomock.Any(), txn.ID.String()).
		Return(ports.SettlementResult{Status: ports.SettlementStatusFailed}, nil)
	f.balanceRepo.EXPECT().GetForUpdate(gomock.Any(), f.tx, txn.UserID, "USD").Return(balance, nil)
	f.balanceRepo.EXPECT().Credit(gomock.Any(), f.tx, balance.ID, txn.GrossAmount()).Return(nil)

	var last *domain.Transaction
	f.trackOutcomes(&last)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	require.NotNil(t, last)
	assert.Equal(t, domain.TransactionStatusFailed, last.Status)
	assert.False(t, last.NeedsReconciliation)
}

func TestReconciler_WithdrawalPayoutConfirmedCompletes(t *testing.T) {
	f := newReconcilerFixture(t)
	txn := flaggedTransfer()
	txn.Type = domain.TransactionTypeWithdrawal
	txn.Network = ""
	txn.FundingRef = nil

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).Return([]domain.Transaction{txn}, nil)
	f.payout.EXPECT().GetStatus(gomock.Any(), txn.ID.String()).
		Return(ports.SettlementResult{Status: ports.SettlementStatusConfirmed, TxRef: "po_7"}, nil)

	var last *domain.Transaction
	f.trackOutcomes(&last)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	require.NotNil(t, last)
	assert.Equal(t, domain.TransactionStatusCompleted, last.Status)
	require.NotNil(t, last.SettlementTxRef)
	assert.Equal(t, "po_7", *last.SettlementTxRef)
	assert.Equal(t, []string{"withdrawal.completed"}, f.notifier.Events())
}

func TestReconciler_ListFailureSurfacesError(t *testing.T) {
	f := newReconcilerFixture(t)

	f.txRepo.EXPECT().ListNeedingReconciliation(gomock.Any(), 50).
		Return(nil, errors.New("db down"))

	err := f.worker.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
