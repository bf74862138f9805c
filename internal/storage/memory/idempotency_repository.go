package memory

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultKeyTTL = 24 * time.Hour

type idempotencyRepository struct {
	mu   sync.Mutex
	keys map[string]domain.IdempotencyRecord
	now  func() time.Time
}

// IdempotencyOption настраивает хранилище ключей в памяти.
type IdempotencyOption func(*idempotencyRepository)

// WithIdempotencyClock подменяет часы, по которым считаются UpdatedAt и истечение.
func WithIdempotencyClock(now func() time.Time) IdempotencyOption {
	return func(r *idempotencyRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewIdempotencyRepository хранит ключи в памяти. Истёкший ключ можно
// занять заново ещё до прохода sweeper.
func NewIdempotencyRepository(opts ...IdempotencyOption) domain.IdempotencyRepository {
	r := &idempotencyRepository{
		keys: make(map[string]domain.IdempotencyRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *idempotencyRepository) CreateProcessing(key, method, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.keys[key]; ok && !existing.Expired(now) {
		// тот же ключ с другим методом или телом считается чужим запросом
		if existing.Method != method || existing.RequestHash != requestHash {
			return cloneRecord(existing), domain.ErrIdempotencyHashMismatch
		}
		return cloneRecord(existing), domain.ErrIdempotencyKeyAlreadyExists
	}

	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultKeyTTL)
	}
	record := domain.IdempotencyRecord{
		Key:         key,
		Method:      method,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.keys[key] = record
	return cloneRecord(record), nil
}

func (r *idempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.keys[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return cloneRecord(record), nil
}

func (r *idempotencyRepository) MarkDone(key string, response []byte, statusCode int) error {
	return r.finish(key, domain.IdempotencyStatusDone, response, statusCode)
}

func (r *idempotencyRepository) MarkFailed(key string, response []byte, statusCode int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, response, statusCode)
}

// DeleteExpired удаляет сначала самые старые по TTL записи.
func (r *idempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if before.IsZero() {
		before = r.now()
	}

	var expired []domain.IdempotencyRecord
	for _, record := range r.keys {
		if !record.TTLAt.After(before) {
			expired = append(expired, record)
		}
	}
	slices.SortFunc(expired, func(a, b domain.IdempotencyRecord) int {
		return cmp.Or(a.TTLAt.Compare(b.TTLAt), cmp.Compare(a.Key, b.Key))
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, record := range expired {
		delete(r.keys, record.Key)
	}
	return len(expired), nil
}

func (r *idempotencyRepository) finish(key string, status domain.IdempotencyStatus, response []byte, statusCode int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.keys[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.Response = slices.Clone(response)
	record.StatusCode = statusCode
	record.UpdatedAt = r.now()
	r.keys[key] = record
	return nil
}

func cloneRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	src.Response = slices.Clone(src.Response)
	return src
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
