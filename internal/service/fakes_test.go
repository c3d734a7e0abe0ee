package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

type fakeLogStore struct {
	mu      sync.Mutex
	batches [][]domain.LogRecord
	err     error
}

func (s *fakeLogStore) InsertBatch(_ context.Context, records []domain.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]domain.LogRecord(nil), records...))
	return s.err
}

func (s *fakeLogStore) ListRecent(context.Context, domain.ListOpts) ([]domain.LogRecord, error) {
	return nil, nil
}

func (s *fakeLogStore) ListBefore(context.Context, time.Time, int) ([]domain.LogRecord, error) {
	return nil, nil
}

func (s *fakeLogStore) DeleteByID(context.Context, []string) (int64, error) { return 0, nil }

func (s *fakeLogStore) rows() []domain.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LogRecord
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

type fakePerfStore struct {
	mu    sync.Mutex
	evals []domain.ModelEvaluation
}

func (s *fakePerfStore) Insert(_ context.Context, eval domain.ModelEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evals = append(s.evals, eval)
	return nil
}

func (s *fakePerfStore) ListRecent(context.Context, int) ([]domain.ModelEvaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ModelEvaluation(nil), s.evals...), nil
}

func (s *fakePerfStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.evals)
}

type fakeArchiver struct {
	mu     sync.Mutex
	before []time.Time
	n      int64
	err    error
}

func (a *fakeArchiver) ArchiveSlippageLog(_ context.Context, before time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.before = append(a.before, before)
	return a.n, a.err
}

type fakeLocks struct {
	mu       sync.Mutex
	held     bool
	released int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.held = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
	}, nil
}

type fakeBookCache struct {
	mu    sync.Mutex
	snaps []domain.BookSnapshot
}

func (c *fakeBookCache) SetSnapshot(_ context.Context, snap domain.BookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, snap)
	return nil
}

func (c *fakeBookCache) GetSnapshot(context.Context, string) (domain.BookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snaps) == 0 {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return c.snaps[len(c.snaps)-1], nil
}

func (c *fakeBookCache) GetBBO(context.Context, string) (domain.BBO, error) {
	return domain.BBO{}, domain.ErrNotFound
}

var errBoom = errors.New("boom")
