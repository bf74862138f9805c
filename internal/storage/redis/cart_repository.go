// Package redis хранит корзины в Redis: корзина живёт, пока пользователь ею пользуется.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultTTL    = 72 * time.Hour
	defaultJitter = 30 * time.Minute
	keyPrefix     = "storefront:cart:"
)

// CartRepository: реализация domain.CartRepository поверх Redis.
// Версия корзины проверяется через WATCH/MULTI.
type CartRepository struct {
	client *goredis.Client
	ttl    time.Duration
	jitter time.Duration
}

// Option настраивает CartRepository.
type Option func(*CartRepository)

// WithTTL задаёт время жизни корзины без изменений.
func WithTTL(ttl time.Duration) Option {
	return func(r *CartRepository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithJitter задаёт разброс TTL, чтобы ключи не истекали одновременно.
func WithJitter(jitter time.Duration) Option {
	return func(r *CartRepository) {
		if jitter >= 0 {
			r.jitter = jitter
		}
	}
}

// NewCartRepository создаёт репозиторий корзин.
func NewCartRepository(client *goredis.Client, opts ...Option) *CartRepository {
	r := &CartRepository{client: client, ttl: defaultTTL, jitter: defaultJitter}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type cartRecord struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	StoreID   string       `json:"store_id"`
	Lines     []lineRecord `json:"lines"`
	Version   int64        `json:"version"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type lineRecord struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	Name           string    `json:"name"`
	UnitPrice      int64     `json:"unit_price"`
	Qty            int32     `json:"qty"`
	AvailableStock int32     `json:"available_stock"`
	WeightGrams    int64     `json:"weight_grams"`
	AddedAt        time.Time `json:"added_at"`
}

// Get возвращает корзину или domain.ErrCartNotFound.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get cart: %w", err)
	}
	return decodeCart(data)
}

// Save сохраняет корзину, если её версия не изменилась с момента чтения.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if cart.UserID == "" {
		return domain.Cart{}, domain.ErrUserRequired
	}
	key := cartKey(cart.UserID)
	next := cart.Clone()
	next.Version++

	payload, err := encodeCart(next)
	if err != nil {
		return domain.Cart{}, err
	}

	err = r.client.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
			if cart.Version != 0 {
				return domain.ErrCartVersionConflict
			}
		case err != nil:
			return fmt.Errorf("redis get cart: %w", err)
		default:
			stored, err := decodeCart(current)
			if err != nil {
				return err
			}
			if stored.Version != cart.Version {
				return domain.ErrCartVersionConflict
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.expiry())
			return nil
		})
		return err
	}, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return domain.Cart{}, domain.ErrCartVersionConflict
	}
	if err != nil {
		return domain.Cart{}, err
	}
	return next, nil
}

// Delete удаляет корзину; отсутствие ключа не считается ошибкой.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis (для readiness).
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *CartRepository) expiry() time.Duration {
	if r.jitter <= 0 {
		return r.ttl
	}
	return r.ttl + rand.N(r.jitter)
}

func cartKey(userID string) string {
	return keyPrefix + userID
}

func encodeCart(cart domain.Cart) ([]byte, error) {
	rec := cartRecord{
		ID:        cart.ID,
		UserID:    cart.UserID,
		StoreID:   cart.StoreID,
		Version:   cart.Version,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
		Lines:     make([]lineRecord, 0, len(cart.Lines)),
	}
	for _, l := range cart.Lines {
		rec.Lines = append(rec.Lines, lineRecord{
			ID:             l.ID,
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPrice:      int64(l.UnitPrice),
			Qty:            l.Qty,
			AvailableStock: l.AvailableStock,
			WeightGrams:    l.WeightGrams,
			AddedAt:        l.AddedAt,
		})
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}
	return data, nil
}

func decodeCart(data []byte) (domain.Cart, error) {
	var rec cartRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cart: %w", err)
	}
	cart := domain.Cart{
		ID:        rec.ID,
		UserID:    rec.UserID,
		StoreID:   rec.StoreID,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	for _, l := range rec.Lines {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:             l.ID,
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPrice:      domain.Money(l.UnitPrice),
			Qty:            l.Qty,
			AvailableStock: l.AvailableStock,
			WeightGrams:    l.WeightGrams,
			AddedAt:        l.AddedAt,
		})
	}
	return cart, nil
}

var _ domain.CartRepository = (*CartRepository)(nil)
