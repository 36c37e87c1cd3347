package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"

	"go.uber.org/zap"
)

// GetEntry returns one of the user's entries by id
func (s *Service) GetEntry(ctx context.Context, userId, entryId string) (*models.Entry, error) {
	return getEntry(ctx, s.db, s.dialect, userId, entryId)
}

// ListEntries returns the user's history, newest first
func (s *Service) ListEntries(ctx context.Context, userId string, filter models.EntryFilter) ([]models.Entry, error) {
	zap.L().Debug("Getting entry history",
		zap.String("user_id", userId),
		zap.Int("limit", filter.Limit),
		zap.Int("offset", filter.Offset))

	var b strings.Builder
	b.WriteString("SELECT" + entryColumns + " FROM credit_entries WHERE user_id = ?")
	args := []any{userId}

	if len(filter.Types) > 0 {
		b.WriteString(" AND type IN (")
		for i, t := range filter.Types {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, string(t))
		}
		b.WriteString(")")
	}
	if !filter.Since.IsZero() {
		b.WriteString(" AND created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(b.String()), args...)
	if err != nil {
		zap.L().Error("Failed to get entry history", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to get entry history: %w", err)
	}
	defer closeRows(rows)

	return scanEntries(rows)
}

// ListUsersWithExpiredCredits returns users holding expired, unswept remainders
func (s *Service) ListUsersWithExpiredCredits(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(queryUsersWithExpiredCredits), now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with expired credits: %w", err)
	}
	defer closeRows(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return ids, nil
}

func getEntry(ctx context.Context, q queryer, d dialect, userId, entryId string) (*models.Entry, error) {
	entry, err := scanEntry(q.QueryRowContext(ctx, d.rebind(queryGetEntry), userId, entryId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		e           models.Entry
		entryType   string
		remaining   sql.NullInt64
		paymentId   sql.NullString
		expiration  sql.NullTime
		processedAt sql.NullTime
	)

	err := row.Scan(&e.Seq, &e.Id, &e.UserId, &entryType, &e.Amount, &remaining,
		&e.Description, &paymentId, &expiration, &processedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Type = models.EntryType(entryType)
	if remaining.Valid {
		v := remaining.Int64
		e.RemainingAmount = &v
	}
	e.PaymentId = paymentId.String
	if expiration.Valid {
		t := expiration.Time.UTC()
		e.ExpirationDate = &t
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		e.ExpirationProcessedAt = &t
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]models.Entry, error) {
	var entries []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
