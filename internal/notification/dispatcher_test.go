package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lendhub/pkg/docstore"
	"lendhub/pkg/logger"
)

func TestNotifyRunsEveryHandler(t *testing.T) {
	d := NewDispatcher(logger.Discard())

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		d.Attach(TypeOverdue, func(ctx context.Context, payload any) error {
			calls.Add(1)
			return nil
		})
	}
	d.Attach(TypeNewRequest, func(ctx context.Context, payload any) error {
		t.Error("handler for another type ran")
		return nil
	})

	d.Notify(context.Background(), TypeOverdue, OverduePayload{DaysOverdue: 1})
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifyWithoutHandlersIsNoop(t *testing.T) {
	d := NewDispatcher(logger.Discard())
	d.Notify(context.Background(), TypeBookAvailable, BookAvailablePayload{})
	assert.Zero(t, d.Handlers(TypeBookAvailable))
}

func TestNotifyIsolatesFailures(t *testing.T) {
	d := NewDispatcher(logger.Discard())

	var ran atomic.Int32
	d.Attach(TypeNewRequest, func(ctx context.Context, payload any) error {
		return errors.New("storage down")
	})
	d.Attach(TypeNewRequest, func(ctx context.Context, payload any) error {
		panic("bad record")
	})
	d.Attach(TypeNewRequest, func(ctx context.Context, payload any) error {
		ran.Add(1)
		return nil
	})

	assert.NotPanics(t, func() {
		d.Notify(context.Background(), TypeNewRequest, NewRequestPayload{})
	})
	assert.Equal(t, int32(1), ran.Load())
}

func TestNotifyRunsHandlersConcurrentlyAndWaits(t *testing.T) {
	d := NewDispatcher(logger.Discard())

	const n = 4
	var (
		started sync.WaitGroup
		done    atomic.Int32
	)
	started.Add(n)
	for i := 0; i < n; i++ {
		d.Attach(TypeDueDateReminder, func(ctx context.Context, payload any) error {
			started.Done()
			// every handler must be running at once for this to return
			started.Wait()
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
			return nil
		})
	}

	d.Notify(context.Background(), TypeDueDateReminder, DueDateReminderPayload{})
	assert.Equal(t, int32(n), done.Load())
}

func TestDetach(t *testing.T) {
	d := NewDispatcher(logger.Discard())

	var calls atomic.Int32
	id := d.Attach(TypeOverdue, func(ctx context.Context, payload any) error {
		calls.Add(1)
		return nil
	})
	assert.Equal(t, 1, d.Handlers(TypeOverdue))

	assert.True(t, d.Detach(TypeOverdue, id))
	assert.False(t, d.Detach(TypeOverdue, id))
	assert.False(t, d.Detach(TypeNewRequest, id))

	d.Notify(context.Background(), TypeOverdue, OverduePayload{})
	assert.Zero(t, calls.Load())
}

func TestNamedHandlerFuncsShareTheRegistry(t *testing.T) {
	d := NewDispatcher(logger.Discard())
	api := NewHandler(NewService(docstore.NewMemory(), logger.Discard()))
	assert.NotNil(t, api)

	var calls atomic.Int32
	counting := HandlerFunc(func(ctx context.Context, payload any) error {
		calls.Add(1)
		return nil
	})
	handlers := []HandlerFunc{counting, counting}
	for _, h := range handlers {
		d.Attach(TypeDueDateReminder, h)
	}

	d.Notify(context.Background(), TypeDueDateReminder, DueDateReminderPayload{})
	assert.Equal(t, int32(2), calls.Load())
}
