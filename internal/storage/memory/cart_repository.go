package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// cartRepositoryInMemory хранит корзины по пользователю.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartRepository создаёт in-memory реализацию CartRepository.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{carts: make(map[string]domain.Cart)}
}

func (r *cartRepositoryInMemory) Get(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

// Save проверяет версию: новая корзина сохраняется с Version 0.
func (r *cartRepositoryInMemory) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	if cart.UserID == "" {
		return domain.Cart{}, domain.ErrUserRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.carts[cart.UserID]
	switch {
	case exists && current.Version != cart.Version:
		return domain.Cart{}, domain.ErrCartVersionConflict
	case !exists && cart.Version != 0:
		return domain.Cart{}, domain.ErrCartVersionConflict
	}

	next := cart.Clone()
	next.Version++
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	r.carts[cart.UserID] = next
	return next.Clone(), nil
}

func (r *cartRepositoryInMemory) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, userID)
	return nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
