package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestEvery_FiresOnMockClock(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)
	defer s.Stop()

	var n atomic.Int32
	tok, err := s.Every("tick", time.Second, func(context.Context) { n.Add(1) })
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		clk.Add(time.Second)
		want := int32(i)
		require.Eventually(t, func() bool { return n.Load() == want }, time.Second, time.Millisecond)
	}
	assert.Equal(t, int64(3), tok.Runs())
	assert.Equal(t, "tick", tok.Name())
}

func TestEvery_RunImmediately(t *testing.T) {
	s := New(clock.NewMock())
	defer s.Stop()

	done := make(chan struct{})
	_, err := s.Every("now", time.Hour, func(context.Context) { close(done) }, RunImmediately())
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run immediately")
	}
}

func TestToken_Cancel(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)
	defer s.Stop()

	var n atomic.Int32
	tok, err := s.Every("cancel", time.Second, func(context.Context) { n.Add(1) })
	require.NoError(t, err)

	tok.Cancel()
	<-tok.Done()
	assert.True(t, tok.Cancelled())

	clk.Add(5 * time.Second)
	assert.Equal(t, int32(0), n.Load())
	assert.Equal(t, 0, s.Active())
}

func TestAfter_FiresOnce(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)
	defer s.Stop()

	var n atomic.Int32
	tok, err := s.After("once", 100*time.Millisecond, func(context.Context) { n.Add(1) })
	require.NoError(t, err)

	clk.Add(50 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())

	clk.Add(50 * time.Millisecond)
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
	<-tok.Done()

	clk.Add(time.Second)
	assert.Equal(t, int32(1), n.Load())
}

func TestTask_PanicDoesNotStopLoop(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)
	defer s.Stop()

	var n atomic.Int32
	_, err := s.Every("panicky", time.Second, func(context.Context) {
		if n.Add(1) == 1 {
			panic("boom")
		}
	})
	require.NoError(t, err)

	clk.Add(time.Second)
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
	clk.Add(time.Second)
	require.Eventually(t, func() bool { return n.Load() == 2 }, time.Second, time.Millisecond)
}

func TestStop_MakesTimersInert(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)

	var n atomic.Int32
	_, err := s.Every("a", time.Second, func(context.Context) { n.Add(1) })
	require.NoError(t, err)
	_, err = s.After("b", time.Second, func(context.Context) { n.Add(1) })
	require.NoError(t, err)

	s.Stop()
	assert.Equal(t, 0, s.Active())

	clk.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())

	_, err = s.Every("late", time.Second, func(context.Context) {})
	assert.ErrorIs(t, err, ErrStopped)
	s.Stop()
}

func TestTask_ContextCancelledOnStop(t *testing.T) {
	s := New(clock.New())

	started := make(chan struct{})
	exited := make(chan struct{})
	_, err := s.Every("blocking", time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(exited)
	}, RunImmediately())
	require.NoError(t, err)

	<-started
	s.Stop()
	select {
	case <-exited:
	default:
		t.Fatal("Stop returned before the task observed cancellation")
	}
}

func TestEvery_InvalidInterval(t *testing.T) {
	s := New(nil)
	defer s.Stop()
	_, err := s.Every("bad", 0, func(context.Context) {})
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestModule_StopsOnAppStop(t *testing.T) {
	clk := clock.NewMock()
	var s *Scheduler
	app := fxtest.New(t,
		fx.Provide(func() clock.Clock { return clk }),
		Module(),
		fx.Populate(&s),
	)
	app.RequireStart()
	require.NotNil(t, s)
	assert.Same(t, clk, s.Clock().(*clock.Mock))

	_, err := s.Every("x", time.Second, func(context.Context) {})
	require.NoError(t, err)
	app.RequireStop()
	assert.Equal(t, 0, s.Active())
}
