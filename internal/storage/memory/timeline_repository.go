package memory

import (
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type timelineRepository struct {
	mu    sync.RWMutex
	byID  map[string][]domain.TimelineEvent
	nowFn func() time.Time
}

// NewTimelineRepository возвращает историю заказов в памяти процесса.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepository{
		byID:  make(map[string][]domain.TimelineEvent),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = r.nowFn()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// события бэкенда могут прийти с более ранним временем, чем локальные
	events := r.byID[event.OrderID]
	at, _ := slices.BinarySearchFunc(events, event.Occurred, func(e domain.TimelineEvent, t time.Time) int {
		if e.Occurred.After(t) {
			return 1
		}
		return -1
	})
	r.byID[event.OrderID] = slices.Insert(events, at, event)
	return nil
}

func (r *timelineRepository) List(orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.byID[orderID]), nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
