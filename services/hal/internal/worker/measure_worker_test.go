package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"bme280-go/services/hal/internal/halcore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdaptor struct {
	id          string
	delay       time.Duration
	collectErrs int // number of consecutive ErrNotReady before success
	failErr     error
	triggers    atomic.Int32
}

func (f *fakeAdaptor) ID() string                      { return f.id }
func (f *fakeAdaptor) Capabilities() []halcore.CapInfo { return nil }
func (f *fakeAdaptor) Trigger(ctx context.Context) (time.Duration, error) {
	f.triggers.Add(1)
	return f.delay, nil
}
func (f *fakeAdaptor) Collect(ctx context.Context) (halcore.Sample, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	if f.collectErrs > 0 {
		f.collectErrs--
		return nil, halcore.ErrNotReady
	}
	return halcore.Sample{{Kind: "temperature", Payload: 123, TsMs: time.Now().UnixMilli()}}, nil
}
func (f *fakeAdaptor) Control(string, string, any) (any, error) { return nil, halcore.ErrUnsupported }

func recv(t *testing.T, ch <-chan halcore.Result) halcore.Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(300 * time.Millisecond):
		t.Fatal("timeout waiting for result")
	}
	return halcore.Result{}
}

func TestMeasureWorkerSuccessWithRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan halcore.Result, 1)
	w := New("i2c1", halcore.WorkerConfig{
		TriggerTimeout: 5 * time.Millisecond,
		CollectTimeout: 10 * time.Millisecond,
		RetryBackoff:   2 * time.Millisecond,
		MaxRetries:     5,
		InputQueueSize: 4,
	}, results)
	w.Start(ctx)

	ad := &fakeAdaptor{id: "env0", delay: time.Millisecond, collectErrs: 2}
	require.True(t, w.Submit(halcore.MeasureReq{ID: ad.id, Adaptor: ad}))

	r := recv(t, results)
	require.NoError(t, r.Err)
	assert.Equal(t, "env0", r.ID)
	assert.Equal(t, []string{"temperature"}, r.Sample.Kinds())
}

func TestMeasureWorkerGivesUpAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan halcore.Result, 1)
	w := New("i2c1", halcore.WorkerConfig{RetryBackoff: time.Millisecond, MaxRetries: 2}, results)
	w.Start(ctx)

	ad := &fakeAdaptor{id: "env0", collectErrs: 10}
	require.True(t, w.Submit(halcore.MeasureReq{ID: ad.id, Adaptor: ad}))

	r := recv(t, results)
	assert.ErrorIs(t, r.Err, halcore.ErrNotReady)
}

func TestMeasureWorkerErrorPathAndPrio(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan halcore.Result, 4)
	w := New("i2c1", halcore.WorkerConfig{}, results)

	boom := errors.New("boom")
	ad := &fakeAdaptor{id: "envX", delay: 20 * time.Millisecond, failErr: boom}
	// Both queued before the loop starts: the prio request lands while the
	// first cycle is pending and earns a second cycle after the failure.
	require.True(t, w.Submit(halcore.MeasureReq{ID: ad.id, Adaptor: ad}))
	require.True(t, w.Submit(halcore.MeasureReq{ID: ad.id, Adaptor: ad, Prio: true}))
	w.Start(ctx)

	assert.ErrorIs(t, recv(t, results).Err, boom)
	assert.ErrorIs(t, recv(t, results).Err, boom)
	assert.Equal(t, int32(2), ad.triggers.Load())
}

type stuckAdaptor struct {
	fakeAdaptor
	entered chan struct{}
	release chan struct{}
}

// Collect holds the bus until released, whatever ctx says.
func (s *stuckAdaptor) Collect(ctx context.Context) (halcore.Sample, error) {
	close(s.entered)
	<-s.release
	return nil, ctx.Err()
}

func TestMeasureWorkerWaitJoinsInFlightCollect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan halcore.Result, 1)
	w := New("i2c1", halcore.WorkerConfig{}, results)
	w.Start(ctx)

	ad := &stuckAdaptor{
		fakeAdaptor: fakeAdaptor{id: "env0"},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	require.True(t, w.Submit(halcore.MeasureReq{ID: ad.id, Adaptor: ad}))

	select {
	case <-ad.entered:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("collect never started")
	}
	cancel()

	joined := make(chan struct{})
	go func() {
		w.Wait()
		close(joined)
	}()

	select {
	case <-joined:
		t.Fatal("Wait returned while a collect was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(ad.release)
	select {
	case <-joined:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("Wait did not return after the worker stopped")
	}
	assert.Equal(t, int32(1), ad.triggers.Load())
}
