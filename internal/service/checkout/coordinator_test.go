package checkout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestCoordinator_LastWriteWins(t *testing.T) {
	var c Coordinator
	started := make(chan struct{})
	release := make(chan struct{})

	type result struct {
		preview domain.CheckoutPreview
		err     error
	}
	firstDone := make(chan result, 1)
	go func() {
		p, err := c.Run(context.Background(), func(ctx context.Context) (domain.CheckoutPreview, error) {
			close(started)
			<-release
			return domain.CheckoutPreview{Total: 100}, nil
		})
		firstDone <- result{p, err}
	}()
	<-started

	second, err := c.Run(context.Background(), func(context.Context) (domain.CheckoutPreview, error) {
		return domain.CheckoutPreview{Total: 200}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Money(200), second.Total)
	assert.Equal(t, uint64(2), second.Generation)

	close(release)
	first := <-firstDone
	require.ErrorIs(t, first.err, domain.ErrStalePreview)

	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, domain.Money(200), latest.Total)
}

func TestCoordinator_NewRunCancelsPrevious(t *testing.T) {
	var c Coordinator
	started := make(chan struct{})
	cancelled := make(chan error, 1)

	go func() {
		_, _ = c.Run(context.Background(), func(ctx context.Context) (domain.CheckoutPreview, error) {
			close(started)
			<-ctx.Done()
			cancelled <- ctx.Err()
			return domain.CheckoutPreview{}, ctx.Err()
		})
	}()
	<-started

	_, err := c.Run(context.Background(), func(context.Context) (domain.CheckoutPreview, error) {
		return domain.CheckoutPreview{}, nil
	})
	require.NoError(t, err)

	select {
	case err := <-cancelled:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("previous run was not cancelled")
	}
}

func TestCoordinator_ErrorKeepsPreviousResult(t *testing.T) {
	var c Coordinator
	_, err := c.Run(context.Background(), func(context.Context) (domain.CheckoutPreview, error) {
		return domain.CheckoutPreview{Total: 1}, nil
	})
	require.NoError(t, err)

	_, err = c.Run(context.Background(), func(context.Context) (domain.CheckoutPreview, error) {
		return domain.CheckoutPreview{}, domain.ErrTransport
	})
	require.ErrorIs(t, err, domain.ErrTransport)

	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, domain.Money(1), latest.Total)
}

func TestCoordinator_Invalidate(t *testing.T) {
	var c Coordinator
	_, err := c.Run(context.Background(), func(context.Context) (domain.CheckoutPreview, error) {
		return domain.CheckoutPreview{Total: 1}, nil
	})
	require.NoError(t, err)

	c.Invalidate()
	_, ok := c.Latest()
	assert.False(t, ok)
	assert.Equal(t, uint64(2), c.Generation())
}

func TestDebouncer_CoalescesTriggers(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32

	for range 5 {
		d.Trigger(func() { calls.Add(1) })
	}
	assert.True(t, d.Pending())

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32

	d.Trigger(func() { calls.Add(1) })
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, calls.Load())
}
