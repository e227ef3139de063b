package shutdown

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"postcraft/internal/pkg/logger"
)

func TestHooksRunNewestFirst(t *testing.T) {
	m := NewManager(logger.Discard(), time.Second)

	var order []string
	m.RegisterFunc("pool", func() { order = append(order, "pool") })
	m.RegisterFunc("worker", func() { order = append(order, "worker") })
	m.RegisterFunc("http", func() { order = append(order, "http") })

	if err := m.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if want := []string{"http", "worker", "pool"}; !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestShutdownCancelsContextFirst(t *testing.T) {
	m := NewManager(logger.Discard(), time.Second)

	var canceledBeforeHook bool
	m.RegisterFunc("check", func() { canceledBeforeHook = m.Context().Err() != nil })

	_ = m.Shutdown()
	if !canceledBeforeHook {
		t.Error("expected root context to be canceled before hooks run")
	}
	select {
	case <-m.Done():
	default:
		t.Error("expected Done to be closed")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	m := NewManager(logger.Discard(), time.Second)
	calls := 0
	boom := errors.New("boom")
	m.Register("once", func(context.Context) error {
		calls++
		return boom
	})

	first := m.Shutdown()
	second := m.Shutdown()
	if calls != 1 {
		t.Errorf("expected hook to run once, ran %d times", calls)
	}
	if !errors.Is(first, boom) || !errors.Is(second, boom) {
		t.Errorf("expected hook error from both calls, got %v / %v", first, second)
	}
}

func TestShutdownDeadlineSkipsRemainingHooks(t *testing.T) {
	m := NewManager(logger.Discard(), 20*time.Millisecond)

	ran := false
	m.RegisterFunc("late", func() { ran = true })
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	err := m.Shutdown()
	if ran {
		t.Error("expected hook after deadline to be skipped")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestWaitReturnsWhenParentDone(t *testing.T) {
	m := NewManager(logger.Discard(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Context().Err() == nil {
		t.Error("expected root context canceled after Wait")
	}
}
