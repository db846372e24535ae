package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"numflow/internal/encoder"
)

func rows(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{float64(i%97) * 1.25}
	}
	return out
}

func countingLoader(calls *int32, delay time.Duration) Loader {
	return func(ctx context.Context) (TrainingSet, error) {
		atomic.AddInt32(calls, 1)
		time.Sleep(delay)
		return TrainingSet{Rows: rows(500), Column: "Amount", Policy: FitSample}, nil
	}
}

func TestFitOrGet_ConcurrentCallersShareOneFit(t *testing.T) {
	reg, err := New(Options{Encoder: encoder.KindMode, Modes: 5})
	require.NoError(t, err)

	var calls int32
	const n = 64
	handles := make([]Handle, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			handles[i], errs[i] = reg.FitOrGet(context.Background(), "ds-1", countingLoader(&calls, 20*time.Millisecond))
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, calls)
	require.EqualValues(t, 1, reg.Fits())
	for _, h := range handles {
		require.Equal(t, handles[0], h)
	}
	require.Equal(t, HandleID("ds-1"), handles[0].ID)
	require.Equal(t, 6, handles[0].Schema.OutputWidth)
	require.Equal(t, FitSample, handles[0].Schema.FitPolicy)
	require.Equal(t, 500, handles[0].Schema.TrainingRows)

	// Later callers never refit, even with a different loader.
	h, err := reg.FitOrGet(context.Background(), "ds-1", func(context.Context) (TrainingSet, error) {
		t.Fatal("loader must not run for an existing identity")
		return TrainingSet{}, nil
	})
	require.NoError(t, err)
	require.Equal(t, handles[0], h)
}

func TestFitOrGet_FailedFitStoresNothing(t *testing.T) {
	reg, err := New(Options{Encoder: encoder.KindStandard})
	require.NoError(t, err)

	boom := errors.New("disk on fire")
	_, err = reg.FitOrGet(context.Background(), "ds", func(context.Context) (TrainingSet, error) {
		return TrainingSet{}, boom
	})
	require.ErrorIs(t, err, boom)

	_, err = reg.Resolve("ds")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	var calls int32
	_, err = reg.FitOrGet(context.Background(), "ds", countingLoader(&calls, 0))
	require.NoError(t, err)
	require.EqualValues(t, 1, calls)
}

func TestGet_NotFound(t *testing.T) {
	reg, err := New(Options{Encoder: encoder.KindMode, Modes: 3})
	require.NoError(t, err)

	_, err = reg.Get(HandleID("never-fitted"))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, HandleID("never-fitted"), nf.HandleID)
}

func TestGet_IsReadOnly(t *testing.T) {
	reg, err := New(Options{Encoder: encoder.KindStandard})
	require.NoError(t, err)
	var calls int32
	h, err := reg.FitOrGet(context.Background(), "ds", countingLoader(&calls, 0))
	require.NoError(t, err)

	f, err := reg.Get(h.ID)
	require.NoError(t, err)
	_, canRefit := f.(encoder.Encoder)
	require.False(t, canRefit)
}

func TestFileStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	reg, err := New(Options{Encoder: encoder.KindMode, Modes: 4, Store: store})
	require.NoError(t, err)

	var calls int32
	h, err := reg.FitOrGet(context.Background(), "ds-42", countingLoader(&calls, 0))
	require.NoError(t, err)
	before, err := reg.Get(h.ID)
	require.NoError(t, err)

	// A fresh registry over the same directory sees the fit.
	store2, err := NewFileStore(dir)
	require.NoError(t, err)
	reg2, err := New(Options{Encoder: encoder.KindMode, Modes: 4, Store: store2})
	require.NoError(t, err)

	got, err := reg2.Resolve("ds-42")
	require.NoError(t, err)
	require.Equal(t, h.ID, got.ID)
	require.True(t, h.FittedAt.Equal(got.FittedAt))
	require.Equal(t, h.Schema, got.Schema)

	after, err := reg2.Get(h.ID)
	require.NoError(t, err)
	batch := rows(50)
	want, err := before.Transform(context.Background(), batch)
	require.NoError(t, err)
	have, err := after.Transform(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, want, have)
	require.Len(t, reg2.Handles(), 1)
	require.EqualValues(t, 0, reg2.Fits())
}

func TestHandleID_Deterministic(t *testing.T) {
	require.Equal(t, HandleID("a"), HandleID("a"))
	require.NotEqual(t, HandleID("a"), HandleID("b"))
	require.Len(t, HandleID("anything"), 17)
}

func TestFitOrGet_CancelledStarterDoesNotFailWaiters(t *testing.T) {
	reg, err := New(Options{Encoder: encoder.KindMode, Modes: 5})
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	blocking := func(ctx context.Context) (TrainingSet, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return TrainingSet{}, err
		}
		return TrainingSet{Rows: rows(200), Column: "Amount", Policy: FitSample}, nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := reg.FitOrGet(ctxA, "ds-shared", blocking)
		errA <- err
	}()
	<-started

	type result struct {
		h   Handle
		err error
	}
	resB := make(chan result, 1)
	go func() {
		h, err := reg.FitOrGet(context.Background(), "ds-shared", countingLoader(&calls, 0))
		resB <- result{h, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)
	close(release)

	b := <-resB
	require.NoError(t, b.err)
	require.Equal(t, HandleID("ds-shared"), b.h.ID)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.EqualValues(t, 1, reg.Fits())

	_, err = reg.Get(b.h.ID)
	require.NoError(t, err)
}
