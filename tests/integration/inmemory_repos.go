package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *t
	r.transactions[t.ID] = &clone
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	clone := *t
	return &clone, nil
}

func (r *inMemoryTransactionRepo) UpdateOutcome(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.transactions[t.ID]
	if !ok {
		return fmt.Errorf("transaction not found: %s", t.ID)
	}
	stored.Status = t.Status
	stored.SettlementTxRef = t.SettlementTxRef
	stored.FundingRef = t.FundingRef
	stored.RefundRef = t.RefundRef
	stored.FailureReason = t.FailureReason
	stored.NeedsReconciliation = t.NeedsReconciliation
	stored.CompletedAt = t.CompletedAt
	return nil
}

func (r *inMemoryTransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return fmt.Errorf("transaction not found: %s", id)
	}
	t.Status = status
	return nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.UserID != params.UserID {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryTransactionRepo) ListNeedingReconciliation(ctx context.Context, limit int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.NeedsReconciliation {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *inMemoryTransactionRepo) CountRefundsFor(ctx context.Context, originalTxID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, t := range r.transactions {
		if t.OriginalTransactionID != nil && *t.OriginalTransactionID == originalTxID {
			count++
		}
	}
	return count, nil
}

// --- In-Memory Balance Repo ---

type inMemoryBalanceRepo struct {
	mu       sync.RWMutex
	balances map[uuid.UUID]*domain.Balance
}

func newInMemoryBalanceRepo() *inMemoryBalanceRepo {
	return &inMemoryBalanceRepo{balances: make(map[uuid.UUID]*domain.Balance)}
}

func (r *inMemoryBalanceRepo) Create(ctx context.Context, b *domain.Balance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *b
	r.balances[b.ID] = &clone
	return nil
}

func (r *inMemoryBalanceRepo) Get(ctx context.Context, userID uuid.UUID, currency string) (*domain.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.balances {
		if b.UserID == userID && b.Currency == currency {
			clone := *b
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *inMemoryBalanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*domain.Balance, error) {
	return r.Get(ctx, userID, currency)
}

func (r *inMemoryBalanceRepo) Credit(ctx context.Context, tx pgx.Tx, balanceID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[balanceID]
	if !ok {
		return fmt.Errorf("balance not found: %s", balanceID)
	}
	b.Amount += amount
	return nil
}

func (r *inMemoryBalanceRepo) Debit(ctx context.Context, tx pgx.Tx, balanceID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[balanceID]
	if !ok {
		return fmt.Errorf("balance not found: %s", balanceID)
	}
	if b.Amount < amount {
		return fmt.Errorf("balance check constraint violated: %s", balanceID)
	}
	b.Amount -= amount
	return nil
}

// --- In-Memory Card Repo ---

type inMemoryCardRepo struct {
	mu    sync.RWMutex
	cards map[uuid.UUID]*domain.LinkedCard
}

func newInMemoryCardRepo() *inMemoryCardRepo {
	return &inMemoryCardRepo{cards: make(map[uuid.UUID]*domain.LinkedCard)}
}

func (r *inMemoryCardRepo) Create(ctx context.Context, tx pgx.Tx, c *domain.LinkedCard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *c
	r.cards[c.ID] = &clone
	return nil
}

func (r *inMemoryCardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LinkedCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cards[id]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}

func (r *inMemoryCardRepo) ListActive(ctx context.Context, userID uuid.UUID) ([]domain.LinkedCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.LinkedCard
	for _, c := range r.cards {
		if c.UserID == userID && c.IsActive {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListActiveForUpdate relies on the transactor's global lock standing in
// for the row locks, so a plain read suffices.
func (r *inMemoryCardRepo) ListActiveForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]domain.LinkedCard, error) {
	return r.ListActive(ctx, userID)
}

func (r *inMemoryCardRepo) GetDefault(ctx context.Context, userID uuid.UUID) (*domain.LinkedCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cards {
		if c.UserID == userID && c.IsActive && c.IsDefault {
			clone := *c
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *inMemoryCardRepo) Deactivate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok {
		return fmt.Errorf("card not found: %s", id)
	}
	c.IsActive = false
	c.IsDefault = false
	return nil
}

func (r *inMemoryCardRepo) SetDefault(ctx context.Context, tx pgx.Tx, userID, cardID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[cardID]
	if !ok || c.UserID != userID {
		return fmt.Errorf("card not found: %s", cardID)
	}
	c.IsDefault = true
	return nil
}

func (r *inMemoryCardRepo) ClearDefault(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cards {
		if c.UserID == userID {
			c.IsDefault = false
		}
	}
	return nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor serializes "database transactions" with a single mutex,
// standing in for the row locks the real repos take with FOR UPDATE.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &memTx{release: &t.mu}, nil
}

// memTx is a no-op pgx.Tx that holds the transactor lock until it is
// committed or rolled back. Rollback after Commit is a no-op, matching the
// defer tx.Rollback(ctx) idiom.
type memTx struct {
	release *sync.Mutex
	once    sync.Once
}

func (t *memTx) done() {
	t.once.Do(func() { t.release.Unlock() })
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Commit(ctx context.Context) error          { t.done(); return nil }
func (t *memTx) Rollback(ctx context.Context) error        { t.done(); return nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }
