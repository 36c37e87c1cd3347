// Package memory provides an in-process store.Store used by tests and by
// ledgerd when DB_DRIVER=memory. A single mutex is held for the whole unit
// of work, so every unit is serialized regardless of user.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"
)

// Compile-time check: *Store must satisfy store.Store.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	balances map[string]models.Balance
	entries  []models.Entry
	seq      int64
	failure  error
}

func New() *Store {
	return &Store{balances: make(map[string]models.Balance)}
}

// SetFailure makes every subsequent operation return err (nil clears it).
// Used to simulate an unreachable backend.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

func (s *Store) Close() {}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// WithTx snapshots state, runs fn under the store mutex and restores the
// snapshot if fn fails or panics.
func (s *Store) WithTx(ctx context.Context, fn store.TxFunc) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != nil {
		return fmt.Errorf("failed to begin transaction: %w", s.failure)
	}

	balances := make(map[string]models.Balance, len(s.balances))
	for k, v := range s.balances {
		balances[k] = v
	}
	entries := append([]models.Entry(nil), s.entries...)
	seq := s.seq

	rollback := func() {
		s.balances = balances
		s.entries = entries
		s.seq = seq
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
		if err != nil {
			rollback()
		}
	}()

	return fn(ctx, &tx{s: s})
}

func (s *Store) GetBalance(_ context.Context, userId string) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, fmt.Errorf("failed to get balance: %w", s.failure)
	}
	b, ok := s.balances[userId]
	if !ok {
		return nil, store.ErrBalanceNotFound
	}
	return &b, nil
}

func (s *Store) SumOutstanding(_ context.Context, userId string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return 0, fmt.Errorf("failed to sum outstanding credits: %w", s.failure)
	}
	var sum int64
	for _, e := range s.entries {
		if e.UserId == userId && e.Type.IsEarn() && e.Remaining() > 0 {
			sum += e.Remaining()
		}
	}
	return sum, nil
}

func (s *Store) ListUserIds(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, fmt.Errorf("failed to list users: %w", s.failure)
	}
	ids := make([]string, 0, len(s.balances))
	for id := range s.balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetEntry(_ context.Context, userId, entryId string) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, fmt.Errorf("failed to get entry: %w", s.failure)
	}
	return s.findEntry(userId, entryId)
}

func (s *Store) ListEntries(_ context.Context, userId string, filter models.EntryFilter) ([]models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, fmt.Errorf("failed to list entries: %w", s.failure)
	}

	var result []models.Entry
	for _, e := range s.entries {
		if e.UserId != userId {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, e.Type) {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		result = append(result, cloneEntry(e))
	}

	// newest first
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].Seq > result[j].Seq
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListUsersWithExpiredCredits(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, fmt.Errorf("failed to list users with expired credits: %w", s.failure)
	}

	seen := make(map[string]struct{})
	for _, e := range s.entries {
		if isUnprocessedExpired(e, now) {
			seen[e.UserId] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) findEntry(userId, entryId string) (*models.Entry, error) {
	for _, e := range s.entries {
		if e.Id == entryId && e.UserId == userId {
			c := cloneEntry(e)
			return &c, nil
		}
	}
	return nil, store.ErrEntryNotFound
}

func (s *Store) entryIndex(entryId string) int {
	for i := range s.entries {
		if s.entries[i].Id == entryId {
			return i
		}
	}
	return -1
}

func isUnprocessedExpired(e models.Entry, now time.Time) bool {
	return e.Type.IsEarn() && e.Remaining() > 0 && e.IsExpiredAt(now) && e.ExpirationProcessedAt == nil
}

func containsType(types []models.EntryType, t models.EntryType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// cloneEntry copies pointer fields so callers cannot reach stored state.
func cloneEntry(e models.Entry) models.Entry {
	if e.RemainingAmount != nil {
		v := *e.RemainingAmount
		e.RemainingAmount = &v
	}
	if e.ExpirationDate != nil {
		v := *e.ExpirationDate
		e.ExpirationDate = &v
	}
	if e.ExpirationProcessedAt != nil {
		v := *e.ExpirationProcessedAt
		e.ExpirationProcessedAt = &v
	}
	return e
}

// tx operates on the parent store while its mutex is already held.
type tx struct {
	s *Store
}

var _ store.Tx = (*tx)(nil)

func (t *tx) LockBalance(_ context.Context, userId string) (*models.Balance, error) {
	b, ok := t.s.balances[userId]
	if !ok {
		return nil, store.ErrBalanceNotFound
	}
	return &b, nil
}

func (t *tx) EnsureBalance(ctx context.Context, userId string, now time.Time) (*models.Balance, error) {
	if _, ok := t.s.balances[userId]; !ok {
		t.s.balances[userId] = models.Balance{UserId: userId, UpdatedAt: now}
	}
	return t.LockBalance(ctx, userId)
}

func (t *tx) UpdateBalance(_ context.Context, userId string, credits int64, now time.Time) error {
	b, ok := t.s.balances[userId]
	if !ok {
		return store.ErrBalanceNotFound
	}
	if credits < 0 {
		return fmt.Errorf("balance for user %s would become negative (%d)", userId, credits)
	}
	b.CurrentCredits = credits
	b.UpdatedAt = now
	t.s.balances[userId] = b
	return nil
}

func (t *tx) LockSpendableEntries(_ context.Context, userId string, now time.Time) ([]models.Entry, error) {
	var result []models.Entry
	for _, e := range t.s.entries {
		if e.UserId != userId || !e.Type.IsEarn() || e.Remaining() <= 0 {
			continue
		}
		if e.ExpirationDate != nil && !e.ExpirationDate.After(now) {
			continue
		}
		result = append(result, cloneEntry(e))
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		switch {
		case a.ExpirationDate == nil && b.ExpirationDate != nil:
			return false
		case a.ExpirationDate != nil && b.ExpirationDate == nil:
			return true
		case a.ExpirationDate != nil && !a.ExpirationDate.Equal(*b.ExpirationDate):
			return a.ExpirationDate.Before(*b.ExpirationDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Seq < b.Seq
	})
	return result, nil
}

func (t *tx) LockExpiredEntries(_ context.Context, userId string, now time.Time) ([]models.Entry, error) {
	var result []models.Entry
	for _, e := range t.s.entries {
		if e.UserId == userId && isUnprocessedExpired(e, now) {
			result = append(result, cloneEntry(e))
		}
	}
	return result, nil
}

func (t *tx) UpdateRemaining(_ context.Context, entryId string, remaining int64, now time.Time) error {
	i := t.s.entryIndex(entryId)
	if i < 0 {
		return store.ErrEntryNotFound
	}
	if remaining < 0 {
		return fmt.Errorf("remaining amount for entry %s would become negative (%d)", entryId, remaining)
	}
	v := remaining
	t.s.entries[i].RemainingAmount = &v
	t.s.entries[i].UpdatedAt = now
	return nil
}

func (t *tx) MarkExpirationProcessed(_ context.Context, entryId string, now time.Time) error {
	i := t.s.entryIndex(entryId)
	if i < 0 {
		return store.ErrEntryNotFound
	}
	zero := int64(0)
	processed := now
	t.s.entries[i].RemainingAmount = &zero
	t.s.entries[i].ExpirationProcessedAt = &processed
	t.s.entries[i].UpdatedAt = now
	return nil
}

func (t *tx) InsertEntry(_ context.Context, entry *models.Entry) error {
	if t.s.entryIndex(entry.Id) >= 0 {
		return fmt.Errorf("entry %s already exists", entry.Id)
	}
	t.s.seq++
	entry.Seq = t.s.seq
	t.s.entries = append(t.s.entries, cloneEntry(*entry))
	return nil
}

func (t *tx) GetEntry(_ context.Context, userId, entryId string) (*models.Entry, error) {
	return t.s.findEntry(userId, entryId)
}

func (t *tx) HasRefundReferencing(_ context.Context, userId, originalId string) (bool, error) {
	for _, e := range t.s.entries {
		if e.UserId == userId && e.Type == models.EntryRefund &&
			strings.HasSuffix(e.Description, models.RefundMarker(originalId)) {
			return true, nil
		}
	}
	return false, nil
}
