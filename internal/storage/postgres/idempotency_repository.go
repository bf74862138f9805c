package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultKeyTTL = 24 * time.Hour

	// конфликт по ключу перезаписывает только просроченную запись
	claimKeySQL = `INSERT INTO idempotency_keys
		(key, method, request_hash, response, status_code, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, 0, 'processing', $4, $5, $5)
		ON CONFLICT (key) DO UPDATE
		SET method = EXCLUDED.method, request_hash = EXCLUDED.request_hash,
		    response = NULL, status_code = 0, status = EXCLUDED.status,
		    ttl_at = EXCLUDED.ttl_at, created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.ttl_at <= $5
		RETURNING key`
	selectKeySQL = `SELECT key, method, request_hash, response, status_code, status, ttl_at, created_at, updated_at
		FROM idempotency_keys WHERE key = $1`
	finishKeySQL = `UPDATE idempotency_keys
		SET response = $2, status_code = $3, status = $4, updated_at = $5
		WHERE key = $1`
	deleteExpiredSQL = `DELETE FROM idempotency_keys WHERE ttl_at <= $1`
	// самые старые по TTL уходят первыми
	deleteExpiredBatchSQL = `DELETE FROM idempotency_keys WHERE key IN (
		SELECT key FROM idempotency_keys WHERE ttl_at <= $1 ORDER BY ttl_at, key LIMIT $2)`
)

type idempotencyRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyRepository хранит ключи идемпотентности gRPC-вызовов
// в таблице idempotency_keys. Истёкший ключ занимается заново одним запросом.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *idempotencyRepository) CreateProcessing(key, method, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultKeyTTL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var claimed string
	err := r.db.QueryRowContext(ctx, claimKeySQL, key, method, requestHash, ttlAt, now).Scan(&claimed)
	switch {
	case err == nil:
		return domain.IdempotencyRecord{
			Key:         key,
			Method:      method,
			RequestHash: requestHash,
			Status:      domain.IdempotencyStatusProcessing,
			TTLAt:       ttlAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, fmt.Errorf("claim idempotency key %s: %w", key, err)
	}

	// ключ занят живой записью
	existing, err := r.Get(key)
	if err != nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	if existing.Method != method || existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *idempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		rec    domain.IdempotencyRecord
		status string
	)
	err := r.db.QueryRowContext(ctx, selectKeySQL, key).Scan(
		&rec.Key, &rec.Method, &rec.RequestHash, &rec.Response, &rec.StatusCode,
		&status, &rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency key %s: %w", key, err)
	}

	rec.Status = domain.IdempotencyStatus(status)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency key %s has unknown status %q", key, status)
	}
	return rec, nil
}

func (r *idempotencyRepository) MarkDone(key string, response []byte, statusCode int) error {
	return r.finish(key, domain.IdempotencyStatusDone, response, statusCode)
}

func (r *idempotencyRepository) MarkFailed(key string, response []byte, statusCode int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, response, statusCode)
}

func (r *idempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	query, args := deleteExpiredSQL, []any{before}
	if limit > 0 {
		query, args = deleteExpiredBatchSQL, []any{before, limit}
	}
	n, err := r.exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return int(n), nil
}

func (r *idempotencyRepository) finish(key string, status domain.IdempotencyStatus, response []byte, statusCode int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	n, err := r.exec(finishKeySQL, key, response, statusCode, string(status), r.now())
	if err != nil {
		return fmt.Errorf("mark idempotency key %s %s: %w", key, status, err)
	}
	if n == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func (r *idempotencyRepository) exec(query string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
