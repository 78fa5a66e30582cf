package keepalive

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "pingkeeper/pkg/logx"
)

func TestCronSchedulerCancelStopsFiring(t *testing.T) {
	s := NewCronScheduler(logx.Nop())
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})

	var old, cur atomic.Int32
	h, err := s.Every(time.Second, func() { old.Add(1) })
	require.NoError(t, err)
	require.Eventually(t, func() bool { return old.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)

	// replace: cancel the old schedule, add a new one
	s.Cancel(h)
	_, err = s.Every(time.Second, func() { cur.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	time.Sleep(100 * time.Millisecond)
	fired := old.Load()
	require.Eventually(t, func() bool { return cur.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(1100 * time.Millisecond)
	assert.Equal(t, fired, old.Load(), "canceled schedule fired again")
}

func TestCronSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler(logx.Nop())
	s.Start()

	var running, peak atomic.Int32
	release := make(chan struct{})
	_, err := s.Every(time.Second, func() {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return running.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(2100 * time.Millisecond)
	assert.Equal(t, int32(1), peak.Load())

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestCronSchedulerRefusesAfterStop(t *testing.T) {
	s := NewCronScheduler(logx.Nop())
	s.Start()
	require.NoError(t, s.Stop(context.Background()))

	_, err := s.Every(time.Second, func() {})
	assert.ErrorIs(t, err, ErrSchedulerStopped)
	assert.NoError(t, s.Stop(context.Background()), "second stop is a no-op")
}
