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

const cardAdditionFee = int64(100)

type cardFixture struct {
	cardRepo   *mocks.MockCardRepository
	txRepo     *mocks.MockTransactionRepository
	transactor *mocks.MockDBTransactor
	funding    *mocks.MockFundingGateway
	notifier   *fakeNotifier
	tx         *stubTx
	svc        *CardServiceImpl
}

func newCardFixture(t *testing.T) *cardFixture {
	ctrl := gomock.NewController(t)
	f := &cardFixture{
		cardRepo:   mocks.NewMockCardRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		funding:    mocks.NewMockFundingGateway(ctrl),
		notifier:   &fakeNotifier{},
		tx:         &stubTx{},
	}
	f.svc = NewCardService(
		f.cardRepo, f.txRepo, f.transactor, newVault(t), f.funding,
		f.notifier, cardAdditionFee, "USD", time.Second, zerolog.Nop(),
	)
	return f
}

func activeCards(userID uuid.UUID, n int) []domain.LinkedCard {
	cards := make([]domain.LinkedCard, n)
	for i := range cards {
		cards[i] = domain.LinkedCard{
			ID:        uuid.New(),
			UserID:    userID,
			IsActive:  true,
			IsDefault: i == 0,
			CreatedAt: time.Date(2026, time.January, i+1, 0, 0, 0, 0, time.UTC),
		}
	}
	return cards
}

func validAddCardRequest(userID uuid.UUID) ports.AddCardRequest {
	return ports.AddCardRequest{
		UserID:      userID,
		Number:      "4532015112830366",
		Cvv:         "123",
		ExpiryMonth: 12,
		ExpiryYear:  2031,
	}
}

func TestAddCard_FirstCardBecomesDefault(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()
	req := validAddCardRequest(userID)

	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(nil, nil)
	f.funding.EXPECT().Charge(gomock.Any(), gomock.Any(), cardAdditionFee, "USD", gomock.Any()).Return("ch_1", nil)
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil)
	f.cardRepo.EXPECT().ListActiveForUpdate(gomock.Any(), f.tx, userID).Return(nil, nil)

	var stored *domain.LinkedCard
	f.cardRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, card *domain.LinkedCard) error {
			stored = card
			return nil
		})
	f.txRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, surcharge *domain.Transaction) error {
			assert.Equal(t, domain.TransactionTypeCardCharge, surcharge.Type)
			assert.Equal(t, domain.TransactionStatusCompleted, surcharge.Status)
			assert.Equal(t, cardAdditionFee, surcharge.Amount)
			require.NotNil(t, surcharge.FundingRef)
			assert.Equal(t, "ch_1", *surcharge.FundingRef)
			return nil
		})

	card, err := f.svc.AddCard(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, f.tx.commits)

	assert.True(t, card.IsDefault, "first card must become default")
	assert.True(t, card.IsActive)
	assert.Equal(t, domain.CardTypeVisa, card.CardType)
	assert.Equal(t, "4532********0366", card.MaskedNumber)

	// Raw PAN must never be stored; ciphertext must round-trip.
	assert.NotEqual(t, req.Number, card.EncryptedNumber)
	v := newVault(t)
	number, err := v.Decrypt(card.EncryptedNumber)
	require.NoError(t, err)
	assert.Equal(t, req.Number, number)
	cvv, err := v.Decrypt(card.EncryptedCvv)
	require.NoError(t, err)
	assert.Equal(t, req.Cvv, cvv)
}

func TestAddCard_MakeDefaultClearsExisting(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()
	req := validAddCardRequest(userID)
	req.MakeDefault = true

	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(activeCards(userID, 1), nil)
	f.funding.EXPECT().Charge(gomock.Any(), gomock.Any(), cardAdditionFee, "USD", gomock.Any()).Return("ch_2", nil)
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil)
	f.cardRepo.EXPECT().ListActiveForUpdate(gomock.Any(), f.tx, userID).Return(activeCards(userID, 1), nil)
	f.cardRepo.EXPECT().ClearDefault(gomock.Any(), f.tx, userID).Return(nil)
	f.cardRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).Return(nil)
	f.txRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).Return(nil)

	card, err := f.svc.AddCard(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, card.IsDefault)
}

func TestAddCard_LimitReached(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()

	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(activeCards(userID, domain.MaxActiveCards), nil)

	_, err := f.svc.AddCard(context.Background(), validAddCardRequest(userID))
	assertAppError(t, err, "CARD_002")
}

func TestAddCard_InvalidInput(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()

	bad := validAddCardRequest(userID)
	bad.Number = "4532015112830367"
	_, err := f.svc.AddCard(context.Background(), bad)
	assertAppError(t, err, "CARD_001")

	bad = validAddCardRequest(userID)
	bad.Cvv = "12"
	_, err = f.svc.AddCard(context.Background(), bad)
	assertAppError(t, err, "CARD_001")

	bad = validAddCardRequest(userID)
	bad.ExpiryYear = 2020
	_, err = f.svc.AddCard(context.Background(), bad)
	assertAppError(t, err, "CARD_001")
}

func TestAddCard_SurchargeDeclined(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()

	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(nil, nil)
	f.funding.EXPECT().Charge(gomock.Any(), gomock.Any(), cardAdditionFee, "USD", gomock.Any()).
		Return("", errors.New("card declined"))

	_, err := f.svc.AddCard(context.Background(), validAddCardRequest(userID))
	assertAppError(t, err, "PAY_002")
}

func TestAddCard_SurchargeTimeoutResolvedByLookup(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()

	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(nil, nil)
	f.funding.EXPECT().Charge(gomock.Any(), gomock.Any(), cardAdditionFee, "USD", gomock.Any()).
		Return("", context.DeadlineExceeded)
	f.funding.EXPECT().LookupCharge(gomock.Any(), gomock.Any()).
		Return(ports.ChargeStatusSucceeded, "ch_found", nil)
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil)
	f.cardRepo.EXPECT().ListActiveForUpdate(gomock.Any(), f.tx, userID).Return(nil, nil)
	f.cardRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).Return(nil)
	f.txRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, surcharge *domain.Transaction) error {
			assert.Equal(t, domain.TransactionStatusCompleted, surcharge.Status)
			require.NotNil(t, surcharge.FundingRef)
			assert.Equal(t, "ch_found", *surcharge.FundingRef)
			return nil
		})

	card, err := f.svc.AddCard(context.Background(), validAddCardRequest(userID))
	require.NoError(t, err)
	assert.True(t, card.IsActive)
	assert.Equal(t, 1, f.tx.commits)
}

func TestAddCard_SurchargeTimeoutIssuerReportsNoCapture(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()

	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(nil, nil)
	f.funding.EXPECT().Charge(gomock.Any(), gomock.Any(), cardAdditionFee, "USD", gomock.Any()).
		Return("", context.DeadlineExceeded)
	f.funding.EXPECT().LookupCharge(gomock.Any(), gomock.Any()).
		Return(ports.ChargeStatusFailed, "", nil)

	_, err := f.svc.AddCard(context.Background(), validAddCardRequest(userID))
	assertAppError(t, err, "PAY_002")
	assert.Equal(t, 0, f.tx.commits)
}

func TestAddCard_SurchargeTimeoutUnknownOutcomeFlagged(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()

	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(nil, nil)
	f.funding.EXPECT().Charge(gomock.Any(), gomock.Any(), cardAdditionFee, "USD", gomock.Any()).
		Return("", context.DeadlineExceeded)
	f.funding.EXPECT().LookupCharge(gomock.Any(), gomock.Any()).
		Return(ports.ChargeStatusUnknown, "", errors.New("issuer unreachable"))

	// The in-doubt surcharge is written to the ledger flagged for
	// reconciliation. No card row is created.
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil)
	var flagged *domain.Transaction
	f.txRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, surcharge *domain.Transaction) error {
			flagged = surcharge
			return nil
		})

	_, err := f.svc.AddCard(context.Background(), validAddCardRequest(userID))
	assertAppError(t, err, "PAY_005")

	require.NotNil(t, flagged)
	assert.Equal(t, domain.TransactionTypeCardCharge, flagged.Type)
	assert.Equal(t, domain.TransactionStatusProcessing, flagged.Status)
	assert.True(t, flagged.NeedsReconciliation)
	assert.Nil(t, flagged.FundingRef)
	assert.Equal(t, 1, f.tx.commits)
}

func TestAddCard_LimitRecheckedUnderLock(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()

	// The unlocked pre-check sees room, but by the time the transaction
	// opens another request has filled the last slot.
	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).
		Return(activeCards(userID, domain.MaxActiveCards-1), nil)
	f.funding.EXPECT().Charge(gomock.Any(), gomock.Any(), cardAdditionFee, "USD", gomock.Any()).Return("ch_5", nil)
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil)
	f.cardRepo.EXPECT().ListActiveForUpdate(gomock.Any(), f.tx, userID).
		Return(activeCards(userID, domain.MaxActiveCards), nil)
	f.funding.EXPECT().Refund(gomock.Any(), "ch_5", cardAdditionFee).Return("rf_2", nil)

	_, err := f.svc.AddCard(context.Background(), validAddCardRequest(userID))
	assertAppError(t, err, "CARD_002")
	assert.Equal(t, 0, f.tx.commits)
	assert.Equal(t, 1, f.tx.rollbacks)
}

func TestAddCard_PersistFailureRefundsSurcharge(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()

	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(nil, nil)
	f.funding.EXPECT().Charge(gomock.Any(), gomock.Any(), cardAdditionFee, "USD", gomock.Any()).Return("ch_3", nil)
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil)
	f.cardRepo.EXPECT().ListActiveForUpdate(gomock.Any(), f.tx, userID).Return(nil, nil)
	f.cardRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).Return(errors.New("db down"))
	f.funding.EXPECT().Refund(gomock.Any(), "ch_3", cardAdditionFee).Return("rf_1", nil)

	_, err := f.svc.AddCard(context.Background(), validAddCardRequest(userID))
	assertAppError(t, err, "SYS_001")
	assert.Equal(t, 0, f.tx.commits)
	assert.Equal(t, 1, f.tx.rollbacks)
}

func TestAddCard_PersistAndRefundFailure(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()

	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(nil, nil)
	f.funding.EXPECT().Charge(gomock.Any(), gomock.Any(), cardAdditionFee, "USD", gomock.Any()).Return("ch_4", nil)
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil)
	f.cardRepo.EXPECT().ListActiveForUpdate(gomock.Any(), f.tx, userID).Return(nil, nil)
	f.cardRepo.EXPECT().Create(gomock.Any(), f.tx, gomock.Any()).Return(errors.New("db down"))
	f.funding.EXPECT().Refund(gomock.Any(), "ch_4", cardAdditionFee).Return("", errors.New("gateway down"))

	_, err := f.svc.AddCard(context.Background(), validAddCardRequest(userID))
	assertAppError(t, err, "PAY_004")
}

func TestRemoveCard_NonDefault(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()
	cards := activeCards(userID, 2)
	target := cards[1] // not the default

	f.cardRepo.EXPECT().GetByID(gomock.Any(), target.ID).Return(&target, nil)
	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(cards, nil)
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil)
	f.cardRepo.EXPECT().Deactivate(gomock.Any(), f.tx, target.ID).Return(nil)

	err := f.svc.RemoveCard(context.Background(), userID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.tx.commits)
}

func TestRemoveCard_DefaultHandsOverToNewestRemaining(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()
	cards := activeCards(userID, 3)
	target := cards[0] // the default, oldest

	f.cardRepo.EXPECT().GetByID(gomock.Any(), target.ID).Return(&target, nil)
	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(cards, nil)
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil)
	f.cardRepo.EXPECT().Deactivate(gomock.Any(), f.tx, target.ID).Return(nil)
	// cards[2] has the latest CreatedAt among the remaining two.
	f.cardRepo.EXPECT().SetDefault(gomock.Any(), f.tx, userID, cards[2].ID).Return(nil)

	err := f.svc.RemoveCard(context.Background(), userID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.tx.commits)
}

func TestRemoveCard_LastCardRejected(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()
	cards := activeCards(userID, 1)

	f.cardRepo.EXPECT().GetByID(gomock.Any(), cards[0].ID).Return(&cards[0], nil)
	f.cardRepo.EXPECT().ListActive(gomock.Any(), userID).Return(cards, nil)

	err := f.svc.RemoveCard(context.Background(), userID, cards[0].ID)
	assertAppError(t, err, "CARD_003")
}

func TestRemoveCard_OtherUsersCardNotFound(t *testing.T) {
	f := newCardFixture(t)
	owner := uuid.New()
	cards := activeCards(owner, 2)

	f.cardRepo.EXPECT().GetByID(gomock.Any(), cards[1].ID).Return(&cards[1], nil)

	err := f.svc.RemoveCard(context.Background(), uuid.New(), cards[1].ID)
	assertAppError(t, err, "TXN_001")
}

func TestSetDefaultCard(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()
	cards := activeCards(userID, 2)
	target := cards[1]

	f.cardRepo.EXPECT().GetByID(gomock.Any(), target.ID).Return(&target, nil)
	f.transactor.EXPECT().Begin(gomock.Any()).Return(f.tx, nil)
	f.cardRepo.EXPECT().ClearDefault(gomock.Any(), f.tx, userID).Return(nil)
	f.cardRepo.EXPECT().SetDefault(gomock.Any(), f.tx, userID, target.ID).Return(nil)

	err := f.svc.SetDefaultCard(context.Background(), userID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.tx.commits)
}

func TestSetDefaultCard_AlreadyDefaultIsNoop(t *testing.T) {
	f := newCardFixture(t)
	userID := uuid.New()
	cards := activeCards(userID, 2)

	f.cardRepo.EXPECT().GetByID(gomock.Any(), cards[0].ID).Return(&cards[0], nil)

	err := f.svc.SetDefaultCard(context.Background(), userID, cards[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.tx.commits)
}
