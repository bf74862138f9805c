package domain

import "context"

// OrderRepository: локальное зеркало заказов пользователя.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(userID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// CartRepository хранит корзины по пользователю.
type CartRepository interface {
	// Get возвращает корзину или ErrCartNotFound.
	Get(ctx context.Context, userID string) (Cart, error)
	// Save сохраняет корзину; Version проверяется и увеличивается.
	Save(ctx context.Context, cart Cart) (Cart, error)
	Delete(ctx context.Context, userID string) error
}
