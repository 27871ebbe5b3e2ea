package backfill

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu       sync.Mutex
	latest   uint64
	logs     map[uint64][]types.Log // keyed by block number
	failures int
	calls    []Batch
	topics   []common.Hash
	address  []common.Address
}

func (f *fakeFetcher) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeFetcher) FilterLogs(_ context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("429 too many requests")
	}
	f.calls = append(f.calls, Batch{From: from, To: to})
	f.address = addresses
	f.topics = topic0

	var out []types.Log
	for block := from; block <= to; block++ {
		out = append(out, f.logs[block]...)
	}
	return out, nil
}

type recordingHandler struct {
	handled []uint64
	failOn  map[uint64]bool
}

func (h *recordingHandler) Handle(_ context.Context, log types.Log) error {
	h.handled = append(h.handled, log.BlockNumber)
	if h.failOn[log.BlockNumber] {
		return errors.New("identity lookup failed")
	}
	return nil
}

func logsAt(blocks ...uint64) map[uint64][]types.Log {
	out := make(map[uint64][]types.Log, len(blocks))
	for _, b := range blocks {
		out[b] = append(out[b], types.Log{Address: testContract, BlockNumber: b})
	}
	return out
}

func TestRunnerReplaysAllBatches(t *testing.T) {
	fetcher := &fakeFetcher{logs: logsAt(10, 12, 15)}
	handler := &recordingHandler{}

	runner := NewRunner(RunConfig{
		FromBlock: 10,
		ToBlock:   15,
		Contract:  testContract,
		BatchSize: 3,
	}, fetcher, handler, nil)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint64{10, 12, 15}, handler.handled)
	assert.Equal(t, []Batch{{From: 10, To: 12}, {From: 13, To: 15}}, fetcher.calls)
	assert.Equal(t, []common.Address{testContract}, fetcher.address)
	assert.Empty(t, fetcher.topics)
	assert.Equal(t, Summary{From: 10, To: 15, Batches: 2, Logs: 3}, summary)
}

func TestRunnerDefaultsToLatestBlock(t *testing.T) {
	fetcher := &fakeFetcher{latest: 4, logs: logsAt(4)}
	handler := &recordingHandler{}

	summary, err := NewRunner(RunConfig{Contract: testContract, BatchSize: 10}, fetcher, handler, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), summary.To)
	assert.Equal(t, []uint64{4}, handler.handled)
}

func TestRunnerSkipsFailedEvents(t *testing.T) {
	fetcher := &fakeFetcher{logs: logsAt(1, 2, 3)}
	handler := &recordingHandler{failOn: map[uint64]bool{2: true}}

	summary, err := NewRunner(RunConfig{FromBlock: 1, ToBlock: 3, Contract: testContract, BatchSize: 10}, fetcher, handler, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, handler.handled)
	assert.Equal(t, 1, summary.Failed)
}

func TestRunnerRetriesFetch(t *testing.T) {
	fetcher := &fakeFetcher{logs: logsAt(5), failures: 2}
	handler := &recordingHandler{}

	_, err := NewRunner(RunConfig{
		FromBlock:    5,
		ToBlock:      5,
		Contract:     testContract,
		BatchSize:    1,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}, fetcher, handler, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, handler.handled)
}

func TestRunnerStopsWhenRetriesExhausted(t *testing.T) {
	fetcher := &fakeFetcher{failures: 10}

	_, err := NewRunner(RunConfig{
		FromBlock:    1,
		ToBlock:      2,
		Contract:     testContract,
		BatchSize:    1,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}, fetcher, &recordingHandler{}, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filter logs 1-1")
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	cfg := RunConfig{
		FromBlock:         1,
		ToBlock:           6,
		Contract:          testContract,
		BatchSize:         2,
		CheckpointPath:    path,
		CheckpointEnabled: true,
	}

	first := &recordingHandler{}
	_, err := NewRunner(cfg, &fakeFetcher{logs: logsAt(1, 4, 6)}, first, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 4, 6}, first.handled)

	cfg.ToBlock = 8
	second := &recordingHandler{}
	fetcher := &fakeFetcher{logs: logsAt(1, 4, 6, 7)}
	summary, err := NewRunner(cfg, fetcher, second, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, second.handled)
	assert.Equal(t, uint64(7), summary.From)
	assert.Equal(t, []Batch{{From: 7, To: 8}}, fetcher.calls)
}

func TestRunnerNothingToDo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, NewCheckpointStore(path, testContract, true).Save(20))

	fetcher := &fakeFetcher{}
	summary, err := NewRunner(RunConfig{
		FromBlock:         5,
		ToBlock:           20,
		Contract:          testContract,
		BatchSize:         5,
		CheckpointPath:    path,
		CheckpointEnabled: true,
	}, fetcher, &recordingHandler{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Batches)
	assert.Empty(t, fetcher.calls)
}

func TestRunnerValidatesConfig(t *testing.T) {
	_, err := NewRunner(RunConfig{BatchSize: 1}, &fakeFetcher{}, &recordingHandler{}, nil).Run(context.Background())
	require.Error(t, err)

	_, err = NewRunner(RunConfig{Contract: testContract}, &fakeFetcher{}, &recordingHandler{}, nil).Run(context.Background())
	require.Error(t, err)

	_, err = NewRunner(RunConfig{Contract: testContract, BatchSize: 1}, nil, &recordingHandler{}, nil).Run(context.Background())
	require.Error(t, err)
}
