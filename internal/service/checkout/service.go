package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultDebounce         = 300 * time.Millisecond
	defaultRecomputeTimeout = 30 * time.Second
)

// CartReader отдаёт текущую корзину пользователя.
type CartReader interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
}

type session struct {
	coord    Coordinator
	debounce *Debouncer
	mu       sync.Mutex
	input    *domain.CheckoutInput
}

func (s *session) lastInput() (domain.CheckoutInput, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.input == nil {
		return domain.CheckoutInput{}, false
	}
	return *s.input, true
}

func (s *session) remember(in domain.CheckoutInput) {
	s.mu.Lock()
	s.input = &in
	s.mu.Unlock()
}

// Service держит предпросмотры пользователей в актуальном состоянии:
// явные запросы считаются сразу, изменения корзины через debounce.
type Service struct {
	carts   CartReader
	builder *Builder
	logger  *log.Entry

	debounce time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// ServiceOption настраивает Service.
type ServiceOption func(*Service)

// WithDebounce задаёт паузу перед пересчётом после изменения корзины.
func WithDebounce(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithRecomputeTimeout ограничивает фоновый пересчёт.
func WithRecomputeTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithServiceLogger задаёт logger.
func WithServiceLogger(logger *log.Entry) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создаёт Service.
func NewService(carts CartReader, builder *Builder, opts ...ServiceOption) *Service {
	s := &Service{
		carts:    carts,
		builder:  builder,
		logger:   log.New().WithField("component", "checkout-service"),
		debounce: defaultDebounce,
		timeout:  defaultRecomputeTimeout,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) session(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{debounce: NewDebouncer(s.debounce)}
		s.sessions[userID] = sess
	}
	return sess
}

// Preview пересчитывает предпросмотр с новыми параметрами и запоминает их
// для последующих пересчётов по изменению корзины.
func (s *Service) Preview(ctx context.Context, in domain.CheckoutInput) (domain.CheckoutPreview, error) {
	if in.UserID == "" {
		return domain.CheckoutPreview{}, domain.ErrUserRequired
	}
	sess := s.session(in.UserID)
	sess.remember(in)
	// явный запрос важнее отложенного
	sess.debounce.Cancel()
	return sess.coord.Run(ctx, s.compute(in))
}

// Latest возвращает последний рассчитанный предпросмотр пользователя.
func (s *Service) Latest(userID string) (domain.CheckoutPreview, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return domain.CheckoutPreview{}, false
	}
	return sess.coord.Latest()
}

// CartChanged планирует пересчёт после изменения корзины.
// Пока пользователь не открывал оформление, пересчитывать нечего.
func (s *Service) CartChanged(userID string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return
	}
	if _, ok := sess.lastInput(); !ok {
		return
	}
	// результат до изменения корзины больше не действителен
	sess.coord.Invalidate()
	sess.debounce.Trigger(func() { s.recompute(userID, sess) })
}

func (s *Service) recompute(userID string, sess *session) {
	in, ok := sess.lastInput()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := sess.coord.Run(ctx, s.compute(in))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrStalePreview), errors.Is(err, context.Canceled):
		s.logger.WithField("user_id", userID).Debug("preview superseded")
	default:
		s.logger.WithError(err).WithField("user_id", userID).Warn("background preview failed")
	}
}

func (s *Service) compute(in domain.CheckoutInput) ComputeFunc {
	return func(ctx context.Context) (domain.CheckoutPreview, error) {
		cart, err := s.carts.Get(ctx, in.UserID)
		if err != nil {
			return domain.CheckoutPreview{}, fmt.Errorf("load cart: %w", err)
		}
		return s.builder.Build(ctx, cart, in)
	}
}

// Forget сбрасывает состояние пользователя, например после создания заказа.
func (s *Service) Forget(userID string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()
	if ok {
		sess.debounce.Cancel()
		sess.coord.Invalidate()
	}
}

// Close снимает все запланированные пересчёты.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.debounce.Cancel()
		sess.coord.Invalidate()
	}
}
