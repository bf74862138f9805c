// Package cart управляет корзиной пользователя поверх CartRepository и каталога.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const maxConflictRetries = 3

// ChangeListener получает уведомление после каждого успешного изменения корзины.
type ChangeListener interface {
	CartChanged(userID string)
}

// Result: корзина после изменения и сведения об изменённой строке.
type Result struct {
	Cart          domain.Cart
	Change        *domain.LineChange
	StoreSwitched bool
}

// Service: операции над корзиной. Каждая операция перечитывает корзину
// и повторяется при конфликте версий.
type Service struct {
	repo     domain.CartRepository
	catalog  domain.CatalogService
	listener ChangeListener
	metrics  *metrics.StorefrontMetrics
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithListener подписывает listener на изменения корзин.
func WithListener(l ChangeListener) Option {
	return func(s *Service) { s.listener = l }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт сервис корзины.
func NewService(repo domain.CartRepository, catalog domain.CatalogService, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		catalog: catalog,
		logger:  log.New().WithField("component", "cart"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetListener подключает listener после создания (checkout создаётся позже корзины).
func (s *Service) SetListener(l ChangeListener) {
	s.listener = l
}

// Get возвращает корзину пользователя; отсутствующая корзина возвращается пустой.
func (s *Service) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if userID == "" {
		return domain.Cart{}, domain.ErrUserRequired
	}
	cart, err := s.repo.Get(ctx, userID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.Cart{UserID: userID}, nil
	}
	return cart, err
}

// AddItem добавляет товар. Товар из другого магазина переключает корзину на этот магазин.
func (s *Service) AddItem(ctx context.Context, userID, storeID, productID string, qty int32) (Result, error) {
	if storeID == "" {
		return Result{}, domain.ErrStoreRequired
	}
	if err := domain.ValidQuantity(qty); err != nil {
		return Result{}, err
	}

	offer, err := s.catalog.Product(ctx, productID, storeID)
	if err != nil {
		s.metrics.RecordCartMutation("add", err)
		return Result{}, fmt.Errorf("fetch product %s: %w", productID, err)
	}

	res, err := s.mutate(ctx, "add", userID, storeID, func(cart *domain.Cart, now time.Time) (Result, error) {
		var res Result
		if cart.StoreID != storeID {
			res.StoreSwitched = cart.SwitchStore(storeID, now)
		}
		change, err := cart.AddLine(offer, qty, now)
		if err != nil {
			return Result{}, err
		}
		res.Change = &change
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	if res.StoreSwitched {
		s.logger.WithFields(log.Fields{"user_id": userID, "store_id": storeID}).Info("cart switched to another store")
	}
	return res, nil
}

// SetQuantity меняет количество строки; остаток перед этим перечитывается из каталога.
func (s *Service) SetQuantity(ctx context.Context, userID, lineID string, qty int32) (Result, error) {
	if err := domain.ValidQuantity(qty); err != nil {
		return Result{}, err
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	line, ok := current.Line(lineID)
	if !ok {
		return Result{}, domain.ErrCartLineNotFound
	}
	offer, err := s.catalog.Product(ctx, line.ProductID, current.StoreID)
	if err != nil {
		s.metrics.RecordCartMutation("set_quantity", err)
		return Result{}, fmt.Errorf("fetch product %s: %w", line.ProductID, err)
	}

	return s.mutate(ctx, "set_quantity", userID, current.StoreID, func(cart *domain.Cart, now time.Time) (Result, error) {
		cart.ApplyOffer(offer)
		change, err := cart.SetQuantity(lineID, qty, now)
		if err != nil {
			return Result{}, err
		}
		return Result{Change: &change}, nil
	})
}

// RemoveLine удаляет строку; отсутствие строки не ошибка.
func (s *Service) RemoveLine(ctx context.Context, userID, lineID string) (Result, error) {
	return s.mutate(ctx, "remove", userID, "", func(cart *domain.Cart, now time.Time) (Result, error) {
		cart.RemoveLine(lineID, now)
		return Result{}, nil
	})
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context, userID string) (Result, error) {
	return s.mutate(ctx, "clear", userID, "", func(cart *domain.Cart, now time.Time) (Result, error) {
		cart.Clear(now)
		return Result{}, nil
	})
}

// SwitchStore переключает корзину на другой магазин, сбрасывая строки.
func (s *Service) SwitchStore(ctx context.Context, userID, storeID string) (Result, error) {
	if storeID == "" {
		return Result{}, domain.ErrStoreRequired
	}
	return s.mutate(ctx, "switch_store", userID, storeID, func(cart *domain.Cart, now time.Time) (Result, error) {
		return Result{StoreSwitched: cart.SwitchStore(storeID, now)}, nil
	})
}

type mutation func(cart *domain.Cart, now time.Time) (Result, error)

func (s *Service) mutate(ctx context.Context, op, userID, storeID string, fn mutation) (Result, error) {
	if userID == "" {
		return Result{}, domain.ErrUserRequired
	}
	logger := s.logger.WithFields(log.Fields{"user_id": userID, "op": op})

	var lastErr error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		cart, err := s.repo.Get(ctx, userID)
		missing := errors.Is(err, domain.ErrCartNotFound)
		switch {
		case missing:
			cart = domain.NewCart(userID, storeID, s.now())
		case err != nil:
			s.metrics.RecordCartMutation(op, err)
			return Result{}, fmt.Errorf("load cart: %w", err)
		}

		res, err := fn(&cart, s.now())
		if err != nil {
			s.metrics.RecordCartMutation(op, err)
			return Result{}, err
		}
		if missing && cart.StoreID == "" && cart.IsEmpty() {
			// удалять нечего, пустую корзину без магазина не храним
			res.Cart = cart
			s.metrics.RecordCartMutation(op, nil)
			return res, nil
		}

		saved, err := s.repo.Save(ctx, cart)
		if domain.IsVersionConflict(err) {
			lastErr = err
			logger.WithField("attempt", attempt).Debug("cart version conflict, retrying")
			continue
		}
		if err != nil {
			s.metrics.RecordCartMutation(op, err)
			return Result{}, fmt.Errorf("save cart: %w", err)
		}

		res.Cart = saved
		s.metrics.RecordCartMutation(op, nil)
		if res.Change != nil && res.Change.Clamped {
			s.metrics.RecordCartClamped()
			logger.WithFields(log.Fields{
				"product_id": res.Change.Line.ProductID,
				"requested":  res.Change.Requested,
				"granted":    res.Change.Line.Qty,
			}).Info("quantity clamped to available stock")
		}
		if s.listener != nil {
			s.listener.CartChanged(userID)
		}
		return res, nil
	}

	s.metrics.RecordCartMutation(op, lastErr)
	return Result{}, fmt.Errorf("save cart after %d attempts: %w", maxConflictRetries, lastErr)
}
