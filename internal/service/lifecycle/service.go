// Package lifecycle ведёт заказ по статусам: создание, действия покупателя и магазина,
// синхронизация с бэкендом. Локальное зеркало заказа обновляется оптимистично.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
)

const (
	maxSaveAttempts      = 3
	saveRetryBaseDelay   = 10 * time.Millisecond
	defaultPaymentWindow = 24 * time.Hour
)

var errNoChange = errors.New("order already in requested state")

// Previewer считает свежий предпросмотр перед созданием заказа.
type Previewer interface {
	Preview(ctx context.Context, in domain.CheckoutInput) (domain.CheckoutPreview, error)
	Forget(userID string)
}

// CartClearer очищает корзину после создания заказа.
type CartClearer interface {
	Clear(ctx context.Context, userID string) (cart.Result, error)
}

// Service управляет жизненным циклом заказов.
type Service struct {
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	gateway  domain.OrderGateway
	admin    domain.OrderAdminGateway
	vouchers domain.VoucherService
	preview  Previewer
	carts    CartClearer

	policy        domain.ProofPolicy
	paymentWindow time.Duration
	metrics       *metrics.StorefrontMetrics
	logger        *log.Entry
	now           func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option настраивает Service.
type Option func(*Service)

// WithAdminGateway подключает действия администратора магазина.
func WithAdminGateway(admin domain.OrderAdminGateway) Option {
	return func(s *Service) { s.admin = admin }
}

// WithPlacement подключает создание заказа из корзины.
func WithPlacement(preview Previewer, carts CartClearer, vouchers domain.VoucherService) Option {
	return func(s *Service) {
		s.preview = preview
		s.carts = carts
		s.vouchers = vouchers
	}
}

// WithProofPolicy задаёт правила проверки подтверждения оплаты.
func WithProofPolicy(p domain.ProofPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithPaymentWindow задаёт срок оплаты, если бэкенд его не вернул.
func WithPaymentWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.paymentWindow = d
		}
	}
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

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт Service.
func NewService(
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	gateway domain.OrderGateway,
	opts ...Option,
) *Service {
	s := &Service{
		orders:        orders,
		outbox:        outbox,
		timeline:      timeline,
		gateway:       gateway,
		policy:        domain.DefaultProofPolicy(),
		paymentWindow: defaultPaymentWindow,
		logger:        log.New().WithField("component", "order-lifecycle"),
		now:           func() time.Time { return time.Now().UTC() },
		inflight:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquire занимает ключ на время операции. Повторная попытка получает ErrOperationInProgress.
func (s *Service) acquire(key string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return nil, domain.ErrOperationInProgress
	}
	s.inflight[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}, nil
}

// Get возвращает заказ из локального зеркала, подтягивая его с бэкенда при отсутствии.
func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	order, err := s.orders.Get(orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return s.Refresh(ctx, orderID)
	}
	return order, err
}

// List возвращает заказы пользователя, новые первыми.
func (s *Service) List(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	return s.orders.ListByUser(userID, limit)
}

// Timeline возвращает историю заказа.
func (s *Service) Timeline(orderID string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(orderID)
}

// Refresh перечитывает заказ с бэкенда и сохраняет его состояние локально.
func (s *Service) Refresh(ctx context.Context, orderID string) (domain.Order, error) {
	remote, err := s.gateway.GetOrder(ctx, orderID)
	if err != nil {
		s.metrics.RecordRemoteSync("error")
		return domain.Order{}, err
	}

	if _, err := s.orders.Get(orderID); errors.Is(err, domain.ErrOrderNotFound) {
		mirror := s.normalize(remote)
		if err := s.orders.Create(mirror); err != nil && !domain.IsVersionConflict(err) {
			s.metrics.RecordRemoteSync("error")
			return domain.Order{}, fmt.Errorf("mirror order: %w", err)
		}
		s.metrics.RecordRemoteSync("created")
		return s.orders.Get(orderID)
	}

	var previous domain.OrderStatus
	updated, err := s.update(orderID, func(o *domain.Order) error {
		previous = o.Status
		adoptRemote(o, remote)
		return nil
	})
	if err != nil {
		s.metrics.RecordRemoteSync("error")
		return domain.Order{}, err
	}
	if previous != updated.Status {
		s.emit(updated, eventStatusSynced, previous, "")
	}
	s.metrics.RecordRemoteSync("refreshed")
	return updated, nil
}

// ApplyRemoteStatus применяет статус из события бэкенда. Принимаются только
// переходы вперёд по графу; повтор текущего статуса ничего не меняет.
func (s *Service) ApplyRemoteStatus(_ context.Context, orderID string, status domain.OrderStatus, reason string) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.ErrIllegalTransition.WithMessage("unknown status %q", status)
	}

	var previous domain.OrderStatus
	now := s.now()
	updated, err := s.update(orderID, func(o *domain.Order) error {
		previous = o.Status
		if o.Status == status {
			return errNoChange
		}
		if !domain.Reachable(o.Status, status) {
			return domain.ErrIllegalTransition.WithMessage("%s -> %s", o.Status, status)
		}
		o.Status = status
		o.UpdatedAt = now
		if status != domain.OrderStatusPendingPayment {
			o.PaymentDeadline = nil
		}
		if status == domain.OrderStatusCancelled && reason != "" {
			o.CancelReason = reason
		}
		return nil
	})
	switch {
	case errors.Is(err, errNoChange):
		s.metrics.RecordRemoteSync("unchanged")
		return s.orders.Get(orderID)
	case err != nil:
		s.metrics.RecordRemoteSync("rejected")
		return domain.Order{}, err
	}

	s.metrics.RecordRemoteSync("applied")
	s.emit(updated, eventStatusSynced, previous, reason)
	return updated, nil
}

// update читает заказ, применяет mutate и сохраняет с проверкой версии.
// При конфликте версий заказ перечитывается и mutate применяется заново.
func (s *Service) update(orderID string, mutate func(*domain.Order) error) (domain.Order, error) {
	delay := saveRetryBaseDelay
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		current, err := s.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}
		next := current.Clone()
		if err := mutate(&next); err != nil {
			return domain.Order{}, err
		}
		next.Version = current.Version
		err = s.orders.Save(next)
		if err == nil {
			next.Version = current.Version + 1
			return next, nil
		}
		if !domain.IsVersionConflict(err) {
			return domain.Order{}, fmt.Errorf("save order: %w", err)
		}
		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
			"version":  current.Version,
		}).Warn("version conflict detected, retrying")
		time.Sleep(delay)
		delay *= 2
	}
	return domain.Order{}, domain.ErrOrderVersionConflict
}

// normalize дополняет заказ бэкенда полями, обязательными для зеркала.
func (s *Service) normalize(order domain.Order) domain.Order {
	out := order.Clone()
	now := s.now()
	if out.Status == "" {
		out.Status = domain.OrderStatusPendingPayment
	}
	if out.Status != domain.OrderStatusPendingPayment {
		out.PaymentDeadline = nil
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = out.CreatedAt
	}
	// позиции бэкенда приходят без id, а в зеркале id первичный ключ
	for i := range out.Items {
		if out.Items[i].ID == "" {
			out.Items[i].ID = uuid.NewString()
		}
	}
	out.Version = 0
	return out
}

// adoptRemote переносит в локальный заказ состояние, которым владеет бэкенд.
// Позиции и суммы заказа не меняются после создания.
func adoptRemote(local *domain.Order, remote domain.Order) {
	if remote.Status.Valid() {
		local.Status = remote.Status
	}
	if local.Status == domain.OrderStatusPendingPayment {
		if remote.PaymentDeadline != nil {
			deadline := *remote.PaymentDeadline
			local.PaymentDeadline = &deadline
		}
	} else {
		local.PaymentDeadline = nil
	}
	if remote.PaymentProofURL != "" {
		local.PaymentProofURL = remote.PaymentProofURL
	}
	if remote.CancelReason != "" {
		local.CancelReason = remote.CancelReason
	}
	if !remote.UpdatedAt.IsZero() {
		local.UpdatedAt = remote.UpdatedAt
	}
}
