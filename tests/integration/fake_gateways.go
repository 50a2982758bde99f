package integration

import (
	"context"
	"fmt"
	"sync"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Fake Funding Gateway ---

type chargeRecord struct {
	ChargeRef string
	CardID    uuid.UUID
	Amount    int64
	Currency  string
}

type refundRecord struct {
	ChargeRef string
	RefundRef string
	Amount    int64
}

// fakeFunding records charges keyed by the caller-supplied reference, so
// LookupCharge behaves like a real issuer lookup.
type fakeFunding struct {
	mu        sync.Mutex
	seq       int
	charges   map[string]chargeRecord
	refunds   []refundRecord
	chargeErr error
	refundErr error
	lookupErr error
}

func newFakeFunding() *fakeFunding {
	return &fakeFunding{charges: make(map[string]chargeRecord)}
}

func (f *fakeFunding) Charge(ctx context.Context, card *domain.LinkedCard, grossAmount int64, currency, reference string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chargeErr != nil {
		return "", f.chargeErr
	}
	f.seq++
	ref := fmt.Sprintf("ch_%d", f.seq)
	f.charges[reference] = chargeRecord{ChargeRef: ref, CardID: card.ID, Amount: grossAmount, Currency: currency}
	return ref, nil
}

func (f *fakeFunding) Refund(ctx context.Context, chargeRef string, amount int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return "", f.refundErr
	}
	f.seq++
	ref := fmt.Sprintf("re_%d", f.seq)
	f.refunds = append(f.refunds, refundRecord{ChargeRef: chargeRef, RefundRef: ref, Amount: amount})
	return ref, nil
}

func (f *fakeFunding) LookupCharge(ctx context.Context, reference string) (ports.ChargeStatus, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return ports.ChargeStatusUnknown, "", f.lookupErr
	}
	if rec, ok := f.charges[reference]; ok {
		return ports.ChargeStatusSucceeded, rec.ChargeRef, nil
	}
	return ports.ChargeStatusFailed, "", nil
}

// setChargeOutcome controls the error returned by Charge and by the
// issuer lookup that follows a timed-out charge.
func (f *fakeFunding) setChargeOutcome(chargeErr, lookupErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeErr = chargeErr
	f.lookupErr = lookupErr
}

// recordCharge injects a capture the gateway never reported back, as a
// dropped response would leave it.
func (f *fakeFunding) recordCharge(reference, chargeRef string, amount int64, currency string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges[reference] = chargeRecord{ChargeRef: chargeRef, Amount: amount, Currency: currency}
}

func (f *fakeFunding) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}

func (f *fakeFunding) refundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refunds)
}

func (f *fakeFunding) chargeFor(reference string) (chargeRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.charges[reference]
	return rec, ok
}

// --- Fake Settlement Gateway ---

// fakeSettlement tracks successful sends by reference. When statusOverride
// is set, GetStatus reports it regardless of what was sent; otherwise a
// recorded send reads as confirmed and an unknown reference as failed.
type fakeSettlement struct {
	mu             sync.Mutex
	seq            int
	sent           map[string]string
	sendErr        error
	statusOverride ports.SettlementStatus
	statusRef      string
}

func newFakeSettlement() *fakeSettlement {
	return &fakeSettlement{sent: make(map[string]string)}
}

func (f *fakeSettlement) Send(ctx context.Context, destination string, amount decimal.Decimal, reference string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.seq++
	txRef := fmt.Sprintf("0xtx_%d", f.seq)
	f.sent[reference] = txRef
	return txRef, nil
}

func (f *fakeSettlement) GetStatus(ctx context.Context, reference string) (ports.SettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusOverride != "" {
		return ports.SettlementResult{Status: f.statusOverride, TxRef: f.statusRef}, nil
	}
	if txRef, ok := f.sent[reference]; ok {
		return ports.SettlementResult{Status: ports.SettlementStatusConfirmed, TxRef: txRef, Confirmations: 12}, nil
	}
	return ports.SettlementResult{Status: ports.SettlementStatusFailed}, nil
}

func (f *fakeSettlement) setOutcome(sendErr error, status ports.SettlementStatus, statusRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = sendErr
	f.statusOverride = status
	f.statusRef = statusRef
}

func (f *fakeSettlement) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// --- Fake Payout Gateway ---

type payoutRecord struct {
	DestinationRef string
	Amount         int64
	Currency       string
}

type fakePayout struct {
	mu      sync.Mutex
	seq     int
	sent    map[string]payoutRecord
	sendErr error
}

func newFakePayout() *fakePayout {
	return &fakePayout{sent: make(map[string]payoutRecord)}
}

func (f *fakePayout) Send(ctx context.Context, destinationRef string, amount int64, currency, reference string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.seq++
	f.sent[reference] = payoutRecord{DestinationRef: destinationRef, Amount: amount, Currency: currency}
	return fmt.Sprintf("po_%d", f.seq), nil
}

func (f *fakePayout) GetStatus(ctx context.Context, reference string) (ports.SettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sent[reference]; ok {
		return ports.SettlementResult{Status: ports.SettlementStatusConfirmed, TxRef: reference}, nil
	}
	return ports.SettlementResult{Status: ports.SettlementStatusFailed}, nil
}

func (f *fakePayout) payoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakePayout) payoutFor(reference string) (payoutRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.sent[reference]
	return rec, ok
}

// --- Fake Bank Verifier ---

type fakeBankVerifier struct {
	accountName string
	err         error
}

func (f *fakeBankVerifier) Verify(ctx context.Context, accountNumber, bankCode string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.accountName, nil
}

// --- Collecting Notifier ---

type collectNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *collectNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *collectNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	copy(out, n.events)
	return out
}

// --- Rate plumbing ---

// memRateCache is a map-backed ports.RateCache without TTL eviction.
type memRateCache struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
}

func newMemRateCache() *memRateCache {
	return &memRateCache{rates: make(map[string]decimal.Decimal)}
}

func (c *memRateCache) Get(ctx context.Context, base, target string) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rate, ok := c.rates[base+":"+target]
	if !ok {
		return decimal.Zero, false, nil
	}
	return rate, true, nil
}

func (c *memRateCache) Set(ctx context.Context, base, target string, rate decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[base+":"+target] = rate
	return nil
}

// fixedRateSource always returns the same rate.
type fixedRateSource struct {
	name string
	rate decimal.Decimal
	err  error
}

func (s *fixedRateSource) Rate(ctx context.Context, base, target string) (decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.rate, nil
}

func (s *fixedRateSource) Name() string { return s.name }

// memRateRepo is a map-backed ports.RateRepository.
type memRateRepo struct {
	mu    sync.Mutex
	rates map[string]*domain.ExchangeRate
}

func newMemRateRepo() *memRateRepo {
	return &memRateRepo{rates: make(map[string]*domain.ExchangeRate)}
}

func (r *memRateRepo) Save(ctx context.Context, rate *domain.ExchangeRate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *rate
	r.rates[rate.Base+":"+rate.Target] = &clone
	return nil
}

func (r *memRateRepo) GetLatest(ctx context.Context, base, target string) (*domain.ExchangeRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rate, ok := r.rates[base+":"+target]
	if !ok {
		return nil, nil
	}
	clone := *rate
	return &clone, nil
}
