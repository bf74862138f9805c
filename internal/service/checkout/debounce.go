package checkout

import (
	"sync"
	"time"
)

// Debouncer откладывает вызов до паузы во входящих событиях.
// Каждый Trigger переносит срабатывание; Cancel снимает отложенный вызов.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	seq   uint64
}

// NewDebouncer создаёт Debouncer с задержкой delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger планирует fn через delay, отменяя ранее запланированный вызов.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// таймер мог сработать одновременно с новым Trigger/Cancel
		if seq != d.seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel снимает запланированный вызов. Возвращает true, если он был.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	d.seq++
	d.timer.Stop()
	d.timer = nil
	return true
}

// Pending сообщает, есть ли запланированный вызов.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
