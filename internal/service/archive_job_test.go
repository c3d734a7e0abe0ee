package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/schedule"
)

func TestArchiveJob_RunOnce(t *testing.T) {
	arch := &fakeArchiver{n: 42}
	locks := &fakeLocks{}
	job := NewArchiveJob(arch, locks, 30, time.Minute, testLogger())
	now := time.Date(2025, 5, 4, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	require.Len(t, arch.before, 1)
	assert.Equal(t, now.AddDate(0, 0, -30), arch.before[0])
	assert.Equal(t, 1, locks.released)
}

func TestArchiveJob_LockHeld(t *testing.T) {
	arch := &fakeArchiver{}
	locks := &fakeLocks{held: true}
	job := NewArchiveJob(arch, locks, 30, time.Minute, testLogger())

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, arch.before)
}

func TestArchiveJob_ArchiverError(t *testing.T) {
	job := NewArchiveJob(&fakeArchiver{err: errBoom}, nil, 7, 0, testLogger())
	_, err := job.RunOnce(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestArchiveJob_RunEveryStopsOnCancel(t *testing.T) {
	arch := &fakeArchiver{}
	job := NewArchiveJob(arch, nil, 1, 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.RunEvery(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		arch.mu.Lock()
		defer arch.mu.Unlock()
		return len(arch.before) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestArchiveJob_RunCronStopsOnCancel(t *testing.T) {
	cron, err := schedule.Parse("0 3 * * *")
	require.NoError(t, err)
	job := NewArchiveJob(&fakeArchiver{}, nil, 1, 0, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, job.RunCron(ctx, cron), context.DeadlineExceeded)
}
