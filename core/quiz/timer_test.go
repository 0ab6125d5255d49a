package quiz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	inmemdb "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database/inmem"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { close(f.stopped) }

func mockTicker(t *testing.T) *fakeTicker {
	t.Helper()
	fake := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	newTicker = func(time.Duration) ticker { return fake }
	t.Cleanup(func() {
		newTicker = func(d time.Duration) ticker { return timeTicker{time.NewTicker(d)} }
	})
	return fake
}

func TestEngine_StartTimer(t *testing.T) {
	ctx := context.Background()
	gw := inmemdb.NewGateway()
	seedQuiz(t, gw, null.IntFrom(1), null.Float64{})
	eng, _, _ := newTestEngine(t, gw)
	require.NoError(t, eng.Load(ctx, testQuizID, testStudentID))

	fake := mockTicker(t)
	eng.StartTimer(ctx)
	eng.StartTimer(ctx) // already running

	for i := 0; i < 60; i++ {
		fake.ch <- time.Now()
	}
	select {
	case <-fake.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("countdown did not stop after the forced submit")
	}
	assert.Equal(t, StateSubmitted, eng.State())
	eng.Close() // no-op once stopped
}

func TestEngine_StartTimer_close(t *testing.T) {
	ctx := context.Background()
	gw := inmemdb.NewGateway()
	seedQuiz(t, gw, null.IntFrom(1), null.Float64{})
	eng, _, _ := newTestEngine(t, gw)
	require.NoError(t, eng.Load(ctx, testQuizID, testStudentID))

	fake := mockTicker(t)
	eng.StartTimer(ctx)
	fake.ch <- time.Now()
	eng.Close()

	select {
	case <-fake.stopped:
	default:
		t.Fatal("Close returned before the countdown stopped")
	}
	rem, _ := eng.TimeRemaining()
	assert.Equal(t, 59, rem)
	assert.Equal(t, StateInProgress, eng.State())
}

func TestEngine_StartTimer_untimedOrSubmitted(t *testing.T) {
	ctx := context.Background()
	gw := inmemdb.NewGateway()
	seedQuiz(t, gw, null.Int{}, null.Float64{})
	eng, _, _ := newTestEngine(t, gw)
	require.NoError(t, eng.Load(ctx, testQuizID, testStudentID))

	called := false
	newTicker = func(time.Duration) ticker { called = true; return nil }
	defer func() { newTicker = func(d time.Duration) ticker { return timeTicker{time.NewTicker(d)} } }()

	eng.StartTimer(ctx)
	assert.False(t, called)
	eng.Close()
}

func TestEngine_StartTimer_ctxDone(t *testing.T) {
	gw := inmemdb.NewGateway()
	seedQuiz(t, gw, null.IntFrom(1), null.Float64{})
	eng, _, _ := newTestEngine(t, gw)
	require.NoError(t, eng.Load(context.Background(), testQuizID, testStudentID))

	fake := mockTicker(t)
	ctx, cancel := context.WithCancel(context.Background())
	eng.StartTimer(ctx)
	cancel()

	select {
	case <-fake.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("countdown did not stop with its context")
	}
	eng.Close()
}
