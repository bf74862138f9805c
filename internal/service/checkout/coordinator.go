package checkout

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ComputeFunc считает предпросмотр в переданном контексте.
type ComputeFunc func(ctx context.Context) (domain.CheckoutPreview, error)

// Coordinator применяет правило last-write-wins к пересчётам одного пользователя:
// новый запуск отменяет предыдущий, а результат устаревшего запуска отбрасывается.
type Coordinator struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	latest *domain.CheckoutPreview
}

// Run запускает пересчёт. Если за время работы был начат более новый пересчёт,
// возвращает domain.ErrStalePreview и не трогает последний сохранённый результат.
func (c *Coordinator) Run(ctx context.Context, compute ComputeFunc) (domain.CheckoutPreview, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	preview, err := compute(runCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	if gen != c.gen {
		return domain.CheckoutPreview{}, domain.ErrStalePreview
	}
	c.cancel = nil
	if err != nil {
		return domain.CheckoutPreview{}, err
	}
	preview.Generation = gen
	stored := preview
	c.latest = &stored
	return preview, nil
}

// Latest возвращает последний актуальный предпросмотр.
func (c *Coordinator) Latest() (domain.CheckoutPreview, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return domain.CheckoutPreview{}, false
	}
	return *c.latest, true
}

// Generation возвращает номер последнего начатого пересчёта.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Invalidate отменяет текущий пересчёт и забывает сохранённый результат.
func (c *Coordinator) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.latest = nil
}
