package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

type fakeLogStore struct {
	records []domain.LogRecord
	gotOpts domain.ListOpts
	err     error
}

func (f *fakeLogStore) InsertBatch(context.Context, []domain.LogRecord) error { return nil }

func (f *fakeLogStore) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.LogRecord, error) {
	f.gotOpts = opts
	return f.records, f.err
}

func (f *fakeLogStore) ListBefore(context.Context, time.Time, int) ([]domain.LogRecord, error) {
	return nil, nil
}

func (f *fakeLogStore) DeleteByID(context.Context, []string) (int64, error) { return 0, nil }

type fakePerfStore struct{ evals []domain.ModelEvaluation }

func (f *fakePerfStore) Insert(context.Context, domain.ModelEvaluation) error { return nil }

func (f *fakePerfStore) ListRecent(_ context.Context, limit int) ([]domain.ModelEvaluation, error) {
	return f.evals[:min(limit, len(f.evals))], nil
}

type fakeTail struct{ entries [][]byte }

func (f fakeTail) StreamTail(_ context.Context, _ string, count int64) ([][]byte, error) {
	return f.entries[:min(int(count), len(f.entries))], nil
}

func TestLogHandler_ListRecent(t *testing.T) {
	store := &fakeLogStore{records: []domain.LogRecord{{ID: "a", Symbol: "BTC-USDT-SWAP"}}}
	h := NewLogHandler(store, nil, nil, testLogger())

	rec := do(h.ListRecent, http.MethodGet, "/api/log?limit=1000&offset=5&since=2025-05-04T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[logResponse](t, rec)
	assert.Equal(t, "postgres", got.Source)
	require.Len(t, got.Records, 1)
	assert.Equal(t, 500, store.gotOpts.Limit)
	assert.Equal(t, 5, store.gotOpts.Offset)
	require.NotNil(t, store.gotOpts.Since)

	rec = do(h.ListRecent, http.MethodGet, "/api/log?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	store.err = errors.New("db down")
	rec = do(h.ListRecent, http.MethodGet, "/api/log", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogHandler_StreamFallback(t *testing.T) {
	row, err := json.Marshal(domain.LogRecord{ID: "s1", UserOrderSizeUSD: domain.Float(100)})
	require.NoError(t, err)
	h := NewLogHandler(nil, nil, fakeTail{entries: [][]byte{row, []byte("garbage")}}, testLogger())

	rec := do(h.ListRecent, http.MethodGet, "/api/log", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[logResponse](t, rec)
	assert.Equal(t, "stream", got.Source)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "s1", got.Records[0].ID)
}

func TestLogHandler_NoStorage(t *testing.T) {
	h := NewLogHandler(nil, nil, nil, testLogger())
	assert.Equal(t, http.StatusNotImplemented, do(h.ListRecent, http.MethodGet, "/api/log", "").Code)
	assert.Equal(t, http.StatusNotImplemented, do(h.ListEvaluations, http.MethodGet, "/api/model/history", "").Code)
}

func TestLogHandler_ListEvaluations(t *testing.T) {
	perf := &fakePerfStore{evals: []domain.ModelEvaluation{{ID: "e1", NumTrainingSamples: 60}, {ID: "e2"}}}
	h := NewLogHandler(nil, perf, nil, testLogger())
	rec := do(h.ListEvaluations, http.MethodGet, "/api/model/history?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string][]domain.ModelEvaluation](t, rec)
	require.Len(t, got["evaluations"], 1)
	assert.Equal(t, 60, got["evaluations"][0].NumTrainingSamples)
}
