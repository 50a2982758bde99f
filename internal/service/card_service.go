package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"
	"chainremit/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CardServiceImpl implements ports.CardService: linking, listing, removing
// and default-flagging of stored cards. Linking a card charges a fixed
// surcharge to the card itself before anything is persisted, so a declined
// card never enters the vault.
type CardServiceImpl struct {
	cardRepo          ports.CardRepository
	txRepo            ports.TransactionRepository
	transactor        ports.DBTransactor
	vault             ports.CardVault
	funding           ports.FundingGateway
	notifier          ports.Notifier
	additionFee       int64
	surchargeCurrency string
	fundingTimeout    time.Duration
	log               zerolog.Logger
}

// NewCardService creates a CardServiceImpl.
func NewCardService(
	cardRepo ports.CardRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	vault ports.CardVault,
	funding ports.FundingGateway,
	notifier ports.Notifier,
	additionFee int64,
	surchargeCurrency string,
	fundingTimeout time.Duration,
	log zerolog.Logger,
) *CardServiceImpl {
	return &CardServiceImpl{
		cardRepo:          cardRepo,
		txRepo:            txRepo,
		transactor:        transactor,
		vault:             vault,
		funding:           funding,
		notifier:          notifier,
		additionFee:       additionFee,
		surchargeCurrency: surchargeCurrency,
		fundingTimeout:    fundingTimeout,
		log:               log,
	}
}

// AddCard validates, surcharges, encrypts and stores a new card. The first
// card a user links always becomes the default.
func (s *CardServiceImpl) AddCard(ctx context.Context, req ports.AddCardRequest) (*domain.LinkedCard, error) {
	if !s.vault.ValidateNumber(req.Number) {
		return nil, apperror.ErrInvalidCard("Card number failed validation")
	}
	cardType := s.vault.DetectType(req.Number)
	if !s.vault.ValidateCvv(req.Cvv, cardType) {
		return nil, apperror.ErrInvalidCard("Invalid CVV")
	}
	if !s.vault.ValidateExpiry(req.ExpiryMonth, req.ExpiryYear, time.Now().UTC()) {
		return nil, apperror.ErrInvalidCard("Card is expired")
	}

	active, err := s.cardRepo.ListActive(ctx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if len(active) >= domain.MaxActiveCards {
		return nil, apperror.ErrCardLimitReached()
	}

	encryptedNumber, err := s.vault.Encrypt(req.Number)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}
	encryptedCvv, err := s.vault.Encrypt(req.Cvv)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}

	now := time.Now().UTC()
	card := &domain.LinkedCard{
		ID:              uuid.New(),
		UserID:          req.UserID,
		EncryptedNumber: encryptedNumber,
		MaskedNumber:    s.vault.Mask(req.Number),
		CardType:        cardType,
		ExpiryMonth:     req.ExpiryMonth,
		ExpiryYear:      req.ExpiryYear,
		EncryptedCvv:    encryptedCvv,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Charge the addition surcharge to the card itself before persisting
	// anything: a card that cannot absorb the surcharge is never linked.
	surcharge := &domain.Transaction{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Type:      domain.TransactionTypeCardCharge,
		Status:    domain.TransactionStatusCompleted,
		Amount:    s.additionFee,
		Currency:  s.surchargeCurrency,
		CreatedAt: now,
	}
	var chargeRef string
	if s.additionFee > 0 {
		chargeRef, err = s.chargeSurcharge(ctx, card, surcharge)
		if err != nil {
			return nil, err
		}
		surcharge.FundingRef = &chargeRef
		surcharge.CompletedAt = &now
	}

	if err := s.persistNewCard(ctx, card, surcharge, req.MakeDefault); err != nil {
		// The surcharge was captured but the card could not be stored:
		// compensate by refunding the charge.
		if s.additionFee > 0 {
			if _, refundErr := s.funding.Refund(ctx, chargeRef, s.additionFee); refundErr != nil {
				s.log.Error().Err(refundErr).
					Str("charge_ref", chargeRef).
					Str("user_id", req.UserID.String()).
					Msg("surcharge refund failed after card persist failure")
				return nil, apperror.ErrCompensationFailed(refundErr)
			}
		}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.InternalError(err)
	}

	s.notifyAsync(ctx, req.UserID, "card.added", map[string]any{
		"card_id":       card.ID,
		"masked_number": card.MaskedNumber,
		"card_type":     card.CardType,
	})
	return card, nil
}

// chargeSurcharge captures the addition fee from the card being linked,
// bounded by the funding timeout. A timed-out charge is re-checked with
// the issuer; when even the lookup cannot settle it, the surcharge is
// recorded flagged for reconciliation so a capture that did land gets
// refunded later.
func (s *CardServiceImpl) chargeSurcharge(ctx context.Context, card *domain.LinkedCard, surcharge *domain.Transaction) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.fundingTimeout)
	chargeRef, err := s.funding.Charge(cctx, card, surcharge.Amount, surcharge.Currency, surcharge.ID.String())
	cancel()
	if err == nil {
		return chargeRef, nil
	}
	if !isTimeout(err) {
		return "", apperror.ErrFundingFailed(err)
	}

	lctx, lcancel := context.WithTimeout(context.WithoutCancel(ctx), s.fundingTimeout)
	status, lookedUpRef, lerr := s.funding.LookupCharge(lctx, surcharge.ID.String())
	lcancel()
	switch {
	case lerr == nil && status == ports.ChargeStatusSucceeded:
		return lookedUpRef, nil
	case lerr == nil && status == ports.ChargeStatusFailed:
		return "", apperror.ErrFundingFailed(err)
	}

	surcharge.Status = domain.TransactionStatusProcessing
	surcharge.NeedsReconciliation = true
	reason := fmt.Sprintf("card addition surcharge outcome unknown: %v", err)
	surcharge.FailureReason = &reason
	if perr := s.persistSurcharge(ctx, surcharge); perr != nil {
		s.log.Error().Err(perr).
			Str("transaction_id", surcharge.ID.String()).
			Msg("failed to persist in-doubt surcharge")
	}
	return "", apperror.ErrUnknownOutcome(err)
}

func (s *CardServiceImpl) persistSurcharge(ctx context.Context, surcharge *domain.Transaction) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.txRepo.Create(ctx, tx, surcharge); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// persistNewCard stores the card, its surcharge ledger record and any
// default-flag handover in one database transaction. The card cap and the
// default flag are decided against a locked read, since the earlier list
// ran outside the transaction and may be stale.
func (s *CardServiceImpl) persistNewCard(ctx context.Context, card *domain.LinkedCard, surcharge *domain.Transaction, makeDefault bool) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	active, err := s.cardRepo.ListActiveForUpdate(ctx, tx, card.UserID)
	if err != nil {
		return err
	}
	if len(active) >= domain.MaxActiveCards {
		return apperror.ErrCardLimitReached()
	}
	card.IsDefault = makeDefault || len(active) == 0

	if makeDefault && len(active) > 0 {
		if err := s.cardRepo.ClearDefault(ctx, tx, card.UserID); err != nil {
			return err
		}
	}
	if err := s.cardRepo.Create(ctx, tx, card); err != nil {
		return err
	}
	if s.additionFee > 0 {
		if err := s.txRepo.Create(ctx, tx, surcharge); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListCards returns the user's active cards.
func (s *CardServiceImpl) ListCards(ctx context.Context, userID uuid.UUID) ([]domain.LinkedCard, error) {
	cards, err := s.cardRepo.ListActive(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return cards, nil
}

// RemoveCard soft-deletes a card. The sole remaining card cannot be
// removed; removing the default hands the flag to the most recently
// created remaining card.
func (s *CardServiceImpl) RemoveCard(ctx context.Context, userID, cardID uuid.UUID) error {
	card, err := s.cardRepo.GetByID(ctx, cardID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if card == nil || card.UserID != userID || !card.IsActive {
		return apperror.ErrNotFound("Card")
	}

	active, err := s.cardRepo.ListActive(ctx, userID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if len(active) <= 1 {
		return apperror.ErrLastCard()
	}

	var successor *domain.LinkedCard
	if card.IsDefault {
		remaining := make([]domain.LinkedCard, 0, len(active)-1)
		for _, c := range active {
			if c.ID != cardID {
				remaining = append(remaining, c)
			}
		}
		sort.Slice(remaining, func(i, j int) bool {
			return remaining[i].CreatedAt.After(remaining[j].CreatedAt)
		})
		successor = &remaining[0]
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}
	defer tx.Rollback(ctx)

	if err := s.cardRepo.Deactivate(ctx, tx, cardID); err != nil {
		return apperror.InternalError(err)
	}
	if successor != nil {
		if err := s.cardRepo.SetDefault(ctx, tx, userID, successor.ID); err != nil {
			return apperror.InternalError(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}

	s.notifyAsync(ctx, userID, "card.removed", map[string]any{"card_id": cardID})
	return nil
}

// SetDefaultCard makes the given card the user's default.
func (s *CardServiceImpl) SetDefaultCard(ctx context.Context, userID, cardID uuid.UUID) error {
	card, err := s.cardRepo.GetByID(ctx, cardID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if card == nil || card.UserID != userID || !card.IsActive {
		return apperror.ErrNotFound("Card")
	}
	if card.IsDefault {
		return nil
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}
	defer tx.Rollback(ctx)

	if err := s.cardRepo.ClearDefault(ctx, tx, userID); err != nil {
		return apperror.InternalError(err)
	}
	if err := s.cardRepo.SetDefault(ctx, tx, userID, cardID); err != nil {
		return apperror.InternalError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}
	return nil
}

// notifyAsync publishes an event without blocking or failing the calling
// operation.
func (s *CardServiceImpl) notifyAsync(ctx context.Context, userID uuid.UUID, event string, payload any) {
	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.notifier.Notify(nctx, userID, event, payload); err != nil {
			s.log.Warn().Err(err).Str("event", event).Msg("notification publish failed")
		}
	}()
}
