package rescan

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"photo-indexer/internal/core/indexer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	calls   atomic.Int32
	running atomic.Bool
	mu      sync.Mutex
	roots   []string
	block   chan struct{}
}

func (f *fakeScanner) Index(ctx context.Context, root string) (*indexer.Report, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.roots = append(f.roots, root)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &indexer.Report{Root: root}, nil
}

func (f *fakeScanner) Running() bool { return f.running.Load() }

func TestTrigger(t *testing.T) {
	scanner := &fakeScanner{}
	svc := NewRescanService(scanner, "/photos", Schedule{})
	require.NoError(t, svc.Start())

	require.NoError(t, svc.Trigger())
	assert.Eventually(t, func() bool { return scanner.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	scanner.running.Store(true)
	assert.ErrorIs(t, svc.Trigger(), indexer.ErrScanInProgress)
	scanner.running.Store(false)

	svc.Stop()
	assert.Error(t, svc.Trigger(), "stopped service refuses new scans")

	last, err := svc.LastRun()
	assert.NoError(t, err)
	assert.False(t, last.IsZero())
	assert.True(t, svc.NextRun().IsZero())
	assert.Equal(t, []string{"/photos"}, scanner.roots)
}

func TestTriggerRejectsPendingScan(t *testing.T) {
	scanner := &fakeScanner{block: make(chan struct{})}
	svc := NewRescanService(scanner, "/photos", Schedule{})
	defer svc.Stop()

	require.NoError(t, svc.Trigger())
	// Running() meldet noch false, der erste Scan ist aber schon angefordert
	assert.ErrorIs(t, svc.Trigger(), indexer.ErrScanInProgress)

	close(scanner.block)
	assert.Eventually(t, func() bool { return svc.Trigger() == nil }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return scanner.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduledRuns(t *testing.T) {
	scanner := &fakeScanner{}
	svc := NewRescanService(scanner, "/photos", Schedule{Every: 50 * time.Millisecond})
	require.NoError(t, svc.Start())
	defer svc.Stop()

	assert.Eventually(t, func() bool { return scanner.calls.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.False(t, svc.NextRun().IsZero())
}

func TestInvalidCron(t *testing.T) {
	svc := NewRescanService(&fakeScanner{}, "/photos", Schedule{Cron: "not a cron"})
	assert.Error(t, svc.Start())
}
