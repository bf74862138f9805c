package memory

import (
	"cmp"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	// byUser держит ID заказов пользователя от новых к старым.
	byUser map[string][]string
}

// NewOrderRepository возвращает зеркало заказов в памяти процесса.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepository{
		orders: make(map[string]domain.Order),
		byUser: make(map[string][]string),
	}
}

func newestFirst(a, b domain.Order) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func (r *orderRepository) Create(order domain.Order) error {
	if order.ID == "" {
		return domain.ErrOrderIDRequired
	}
	if order.UserID == "" {
		return domain.ErrUserRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.orders[order.ID] = order.Clone()

	ids := r.byUser[order.UserID]
	at, _ := slices.BinarySearchFunc(ids, order, func(id string, target domain.Order) int {
		return newestFirst(r.orders[id], target)
	})
	r.byUser[order.UserID] = slices.Insert(ids, at, order.ID)
	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListByUser отдаёт не более limit заказов; limit<=0 снимает ограничение.
func (r *orderRepository) ListByUser(userID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	result := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.orders[id].Clone())
	}
	return result, nil
}

// Save принимает заказ только с текущей версией. Позиции и владелец
// фиксируются при создании и здесь не меняются.
func (r *orderRepository) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}

	next := order.Clone()
	next.UserID = current.UserID
	next.CreatedAt = current.CreatedAt
	next.Items = current.Items
	next.Version = current.Version + 1
	r.orders[order.ID] = next
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
