package notifyexec

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPooledExecutor_StartStopWaitIdempotent(t *testing.T) {
	listener := newFakeListener()
	d := NewDispatcher(nil, nil, nil, true)
	e := NewPooledExecutor(Config{ExecutorThreadPoolSize: 2}, listener, d)

	// Wait before Start: the tombstone starts quiescent, so this returns
	// immediately, true.
	ok, err := e.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	e.Start()
	e.Start() // idempotent: must not spawn a second poller or panic

	e.Stop()
	e.Stop() // idempotent

	ok, err = e.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// restart after a full drain
	e.Start()
	e.Stop()
	ok, err = e.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPooledExecutor_HappyPath(t *testing.T) {
	var handled int32
	endpoint := recordingEndpoint{
		handlers: map[Priority]Handler{
			PriorityInfo: func(any, string, string, any, Metadata) (Verdict, error) {
				atomic.AddInt32(&handled, 1)
				return Handled, nil
			},
		},
	}
	d := NewDispatcher(nil, []Endpoint{endpoint}, nil, true)
	listener := newFakeListener()
	e := NewPooledExecutor(Config{ExecutorThreadPoolSize: 4}, listener, d)

	var acked int32
	for i := 0; i < 10; i++ {
		im := NewIncomingMessage(nil, Message{Priority: `info`}, func() error {
			atomic.AddInt32(&acked, 1)
			return nil
		}, func() error { return nil })
		listener.ch <- im
	}

	e.Start()

	// Stop ends polling, so let every queued message be handled first.
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&handled) < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, err := e.Wait(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.EqualValues(t, 10, handled)
	require.EqualValues(t, 10, acked)
}

// TestPooledExecutor_DrainWaitsForInFlight exercises the scenario of many
// slow handlers against a small pool: Wait must not report a complete drain
// until every in-flight handler has actually finished (and been
// acknowledged), even though the poller itself stops well before that.
func TestPooledExecutor_DrainWaitsForInFlight(t *testing.T) {
	const (
		messages = 128
		poolSize = 4
	)

	release := make(chan struct{})
	var started, acked int32

	endpoint := recordingEndpoint{
		handlers: map[Priority]Handler{
			PriorityInfo: func(any, string, string, any, Metadata) (Verdict, error) {
				atomic.AddInt32(&started, 1)
				<-release
				return Handled, nil
			},
		},
	}
	d := NewDispatcher(nil, []Endpoint{endpoint}, nil, true)
	listener := newFakeListener()
	e := NewPooledExecutor(Config{ExecutorThreadPoolSize: poolSize}, listener, d)

	for i := 0; i < messages; i++ {
		im := NewIncomingMessage(nil, Message{Priority: `info`}, func() error {
			atomic.AddInt32(&acked, 1)
			return nil
		}, func() error { return nil })
		listener.ch <- im
	}

	e.Start()

	// wait until the poller has pulled every message and the pool is
	// saturated (each submission spawns its own goroutine, so this does not
	// require the pool to actually run them all concurrently).
	deadline := time.Now().Add(2 * time.Second)
	for (atomic.LoadInt32(&started) < poolSize || len(listener.ch) > 0) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&started), int32(poolSize))

	e.Stop()

	// a short-lived Wait must report an incomplete drain: handlers are still
	// blocked on release.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	ok, err := e.Wait(shortCtx)
	shortCancel()
	require.NoError(t, err)
	require.False(t, ok)

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err = e.Wait(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.EqualValues(t, messages, acked, `every message must be acknowledged once draining completes`)
}

func TestPooledExecutor_SubmissionAfterStopIsFinalizedDirectly(t *testing.T) {
	// once accepting is false, doSubmit finalizes ec.Done() directly rather
	// than handing it to the pool; exercise this by stopping the executor
	// before it ever starts (accepting defaults to false).
	var acked int32
	d := NewDispatcher(nil, nil, nil, true)
	listener := newFakeListener()
	e := NewPooledExecutor(Config{ExecutorThreadPoolSize: 1}, listener, d)

	im := NewIncomingMessage(nil, Message{Priority: `info`}, func() error {
		atomic.AddInt32(&acked, 1)
		return nil
	}, func() error { return nil })

	ec, err := d.Poll(context.Background(), &staticListener{msg: im})
	require.NoError(t, err)
	require.NotNil(t, ec)

	e.Stop()
	e.doSubmit(ec)
	require.EqualValues(t, 1, acked)
}

type staticListener struct{ msg *IncomingMessage }

func (s *staticListener) Poll(context.Context) (*IncomingMessage, error) { return s.msg, nil }
func (s *staticListener) BatchPoll(context.Context, int, time.Duration) ([]*IncomingMessage, error) {
	return []*IncomingMessage{s.msg}, nil
}
func (s *staticListener) Stop() {}
