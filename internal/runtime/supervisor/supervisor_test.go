package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	sup := New(context.Background(), WithCancelOnError(true))

	sup.Go("fails", func(ctx context.Context) error { return errors.New("boom") })
	sup.Go0("waits", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sup.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fails: boom")
	assert.Equal(t, int64(0), sup.Counters().Active)
	assert.Equal(t, uint64(2), sup.Counters().Started)
}

func TestGoRecoversPanic(t *testing.T) {
	sup := New(context.Background())
	sup.Go0("panics", func(ctx context.Context) { panic("oops") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sup.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in panics")
	assert.NoError(t, sup.Context().Err(), "cancel-on-error is off")
}

func TestGoRestartRetriesUntilClean(t *testing.T) {
	sup := New(context.Background())
	var runs atomic.Int32
	sup.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sup.Wait(ctx))
	assert.Equal(t, int32(3), runs.Load())
	assert.Equal(t, uint64(2), sup.Counters().Restarts)
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	sup := New(context.Background())
	var runs atomic.Int32
	sup.GoRestart("loop", func(ctx context.Context) error {
		runs.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}, WithStopOnCleanExit(false))

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sup.Stop(ctx))
	assert.Equal(t, int32(1), runs.Load())
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	sup := New(context.Background())
	sup.Go0("idle", func(ctx context.Context) { <-ctx.Done() })
	r.Set("app", sup)
	r.Set("gone", nil)

	snap := r.Snapshot()
	require.Contains(t, snap, "app")
	assert.NotContains(t, snap, "gone")
	assert.Equal(t, uint64(1), snap["app"].Started)

	r.Delete("app")
	assert.Empty(t, r.Snapshot())
	sup.Cancel()

	var nilReg *Registry
	nilReg.Set("x", sup)
	assert.Nil(t, nilReg.Snapshot())
}
