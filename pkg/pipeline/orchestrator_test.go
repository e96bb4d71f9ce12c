package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/checkpoint"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
	"github.com/lenardflx/ai-data-migration/pkg/lifecycle"
	"github.com/lenardflx/ai-data-migration/pkg/merge"
	"github.com/lenardflx/ai-data-migration/pkg/store"
	"github.com/lenardflx/ai-data-migration/pkg/transform"
)

func inputs(n int) []model.InputRecord {
	records := make([]model.InputRecord, n)
	for i := range records {
		records[i] = model.InputRecord{
			Row:    i,
			ID:     fmt.Sprintf("P-%03d", i),
			Active: "True",
			Fields: []model.Field{{Name: "name", Value: fmt.Sprintf("item %d", i)}},
		}
	}
	return records
}

// recordingClient echoes names and records every batch it was called with.
type recordingClient struct {
	mu      sync.Mutex
	calls   [][]int
	respond func(call int, records []model.InputRecord) ([]model.TransformedRecord, error)
}

func (c *recordingClient) Transform(_ context.Context, records []model.InputRecord) ([]model.TransformedRecord, error) {
	c.mu.Lock()
	rows := make([]int, len(records))
	for i, r := range records {
		rows[i] = r.Row
	}
	c.calls = append(c.calls, rows)
	call := len(c.calls)
	c.mu.Unlock()

	if c.respond != nil {
		return c.respond(call, records)
	}
	return echo(records), nil
}

func echo(records []model.InputRecord) []model.TransformedRecord {
	out := make([]model.TransformedRecord, len(records))
	for i, r := range records {
		name, _ := r.Get("name")
		out[i] = model.TransformedRecord{
			Product: model.Product{Name: &name, ID: "api-id", IsActive: false},
			Log:     model.TransformLog{Comment: "ok"},
		}
	}
	return out
}

// failingStore fails every Append.
type failingStore struct{ store.Store }

func (failingStore) Append(context.Context, []model.OutputRecord) error {
	return errors.New(errors.CodeWriteFailed, "disk full")
}

// failingTracker loads normally but fails every Save.
type failingTracker struct{ checkpoint.Tracker }

func (failingTracker) Save(context.Context, int) error {
	return errors.New(errors.CodeCheckpointFailed, "read-only filesystem")
}

type env struct {
	dir     string
	store   *store.JSONFileStore
	tracker *checkpoint.FileTracker
}

func newEnv(t *testing.T) env {
	dir := t.TempDir()
	return env{
		dir:     dir,
		store:   store.NewJSONFileStore(filepath.Join(dir, "new_data.json")),
		tracker: checkpoint.NewFileTracker(filepath.Join(dir, "index.txt"), zerolog.Nop()),
	}
}

func (e env) deps(records []model.InputRecord, client transform.Client) Deps {
	return Deps{
		Records: records,
		Client:  client,
		Store:   e.store,
		Tracker: e.tracker,
		Logger:  zerolog.Nop(),
	}
}

func outputNames(t *testing.T, s store.Store) []string {
	t.Helper()
	recs, err := s.Records(context.Background())
	require.NoError(t, err)
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = *r.Product.Name
	}
	return names
}

func TestRun_Finished(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	client := &recordingClient{}

	o, err := New(Config{ChunkSize: 15}, e.deps(inputs(32), client))
	require.NoError(t, err)

	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunFinished, res.State)
	assert.Equal(t, 0, res.StartCursor)
	assert.Equal(t, 32, res.Cursor)
	assert.Equal(t, 3, res.BatchesCommitted)
	assert.Equal(t, 32, res.RowsCommitted)

	assert.Equal(t, 32, e.tracker.Load(ctx))
	n, err := e.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 32, n)

	require.Len(t, client.calls, 3)
	assert.Len(t, client.calls[2], 2)
}

func TestRun_ResumeIdempotence(t *testing.T) {
	ctx := context.Background()
	records := inputs(30)

	full := newEnv(t)
	o, err := New(Config{ChunkSize: 15}, full.deps(records, &recordingClient{}))
	require.NoError(t, err)
	_, err = o.Run(ctx)
	require.NoError(t, err)
	want := outputNames(t, full.store)

	// Interrupted run: only batch 1 committed.
	resumed := newEnv(t)
	stop := lifecycle.NewStop()
	deps := resumed.deps(records, &recordingClient{})
	deps.Stop = stop
	deps.OnBatch = func(p Progress) {
		if p.State == BatchDone {
			stop.Request()
		}
	}
	o, err = New(Config{ChunkSize: 15}, deps)
	require.NoError(t, err)
	res, err := o.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, RunAborted, res.State)
	require.Equal(t, 15, resumed.tracker.Load(ctx))

	client := &recordingClient{}
	o, err = New(Config{ChunkSize: 15}, resumed.deps(records, client))
	require.NoError(t, err)
	res, err = o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, RunFinished, res.State)
	assert.Equal(t, 15, res.StartCursor)
	assert.Equal(t, 30, res.Cursor)
	require.Len(t, client.calls, 1)
	assert.Equal(t, 15, client.calls[0][0])
	assert.Equal(t, 29, client.calls[0][14])

	got := outputNames(t, resumed.store)
	assert.Equal(t, want, got)
	assert.Len(t, got, 30)
}

func TestRun_CardinalityGuard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	client := &recordingClient{
		respond: func(_ int, records []model.InputRecord) ([]model.TransformedRecord, error) {
			return echo(records)[:len(records)-1], nil
		},
	}

	o, err := New(Config{ChunkSize: 15}, e.deps(inputs(15), client))
	require.NoError(t, err)

	res, err := o.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCardinalityMismatch))
	assert.Equal(t, RunFailed, res.State)
	assert.Equal(t, 0, res.Cursor)
	assert.Len(t, client.calls, 2, "mismatch is retried once")

	assert.Equal(t, 0, e.tracker.Load(ctx))
	n, err := e.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRun_CardinalityGuardAfterCommittedBatch(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	client := &recordingClient{
		respond: func(call int, records []model.InputRecord) ([]model.TransformedRecord, error) {
			if call == 1 {
				return echo(records), nil
			}
			return append(echo(records), echo(records[:1])...), nil
		},
	}

	o, err := New(Config{ChunkSize: 15}, e.deps(inputs(30), client))
	require.NoError(t, err)

	res, err := o.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, RunFailed, res.State)
	assert.Equal(t, 15, res.Cursor)
	assert.Equal(t, 15, e.tracker.Load(ctx))
	assert.Len(t, outputNames(t, e.store), 15)
}

func TestRun_RetrySucceeds(t *testing.T) {
	e := newEnv(t)
	client := &recordingClient{
		respond: func(call int, records []model.InputRecord) ([]model.TransformedRecord, error) {
			if call == 1 {
				return nil, stderrors.New("connection reset by peer")
			}
			return echo(records), nil
		},
	}

	var states []BatchState
	deps := e.deps(inputs(5), client)
	deps.OnBatch = func(p Progress) { states = append(states, p.State) }

	o, err := New(Config{ChunkSize: 15}, deps)
	require.NoError(t, err)
	res, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunFinished, res.State)
	assert.Len(t, client.calls, 2)
	assert.Equal(t, []BatchState{
		BatchPending, BatchCalling, BatchRetry, BatchCalling, BatchCommitting, BatchDone,
	}, states)
}

func TestRun_FatalErrorIsNotRetried(t *testing.T) {
	e := newEnv(t)
	client := &recordingClient{
		respond: func(int, []model.InputRecord) ([]model.TransformedRecord, error) {
			return nil, errors.New(errors.CodeRequestRejected, "invalid api key")
		},
	}

	o, err := New(Config{ChunkSize: 15, MaxAttempts: 3}, e.deps(inputs(5), client))
	require.NoError(t, err)
	res, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, RunFailed, res.State)
	assert.Len(t, client.calls, 1)
}

func TestRun_AbortBoundary(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	stop := lifecycle.NewStop()
	client := &recordingClient{}

	deps := e.deps(inputs(30), client)
	deps.Stop = stop
	deps.OnBatch = func(p Progress) {
		if p.State == BatchDone && p.BatchEnd == 15 {
			stop.Request()
		}
	}

	o, err := New(Config{ChunkSize: 15}, deps)
	require.NoError(t, err)
	res, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, RunAborted, res.State)
	assert.Equal(t, 15, res.Cursor)
	assert.Equal(t, 15, e.tracker.Load(ctx))
	assert.Len(t, client.calls, 1)

	names := outputNames(t, e.store)
	require.Len(t, names, 15)
	assert.Equal(t, "item 14", names[14])
}

func TestRun_StopBeforeFirstBatch(t *testing.T) {
	e := newEnv(t)
	stop := lifecycle.NewStop()
	stop.Request()
	client := &recordingClient{}

	deps := e.deps(inputs(10), client)
	deps.Stop = stop
	o, err := New(Config{}, deps)
	require.NoError(t, err)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunAborted, res.State)
	assert.Empty(t, client.calls)
}

func TestRun_ActiveFlagAndIdentifiers(t *testing.T) {
	e := newEnv(t)
	records := inputs(100)
	records[3].Active = "False"

	deps := e.deps(records, &recordingClient{})
	deps.Merger = merge.New(merge.NewULIDGenerator())
	o, err := New(Config{ChunkSize: 7}, deps)
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	require.NoError(t, err)

	out, err := e.store.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 100)

	seen := make(map[string]bool, len(out))
	for i, r := range out {
		assert.NotEqual(t, "api-id", r.Product.ID)
		assert.NotEqual(t, records[i].ID, r.Product.ID)
		assert.False(t, seen[r.Product.ID], "duplicate id %s", r.Product.ID)
		seen[r.Product.ID] = true

		assert.Equal(t, i != 3, r.Product.IsActive, "row %d", i)
	}
}

func TestRun_PersistenceFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Deps)
		code   errors.Code
	}{
		{"append fails", func(d *Deps) { d.Store = failingStore{d.Store} }, errors.CodeWriteFailed},
		{"save fails", func(d *Deps) { d.Tracker = failingTracker{d.Tracker} }, errors.CodeCheckpointFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t)
			client := &recordingClient{}
			deps := e.deps(inputs(30), client)
			tt.mutate(&deps)

			o, err := New(Config{ChunkSize: 15}, deps)
			require.NoError(t, err)
			res, err := o.Run(ctx)

			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), err.Error())
			assert.Equal(t, RunFailed, res.State)
			assert.Equal(t, 0, res.Cursor)
			assert.Len(t, client.calls, 1, "persistence failures are not retried")
			assert.Equal(t, 0, e.tracker.Load(ctx))
		})
	}
}

func TestRun_ResumesFromTracker(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.tracker.Save(ctx, 10))
	client := &recordingClient{}

	o, err := New(Config{ChunkSize: 4}, e.deps(inputs(12), client))
	require.NoError(t, err)
	res, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 10, res.StartCursor)
	assert.Equal(t, 12, res.Cursor)
	require.Len(t, client.calls, 1)
	assert.Equal(t, []int{10, 11}, client.calls[0])
}

func TestRun_CursorPastEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.tracker.Save(ctx, 50))
	client := &recordingClient{}

	o, err := New(Config{}, e.deps(inputs(12), client))
	require.NoError(t, err)
	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunFinished, res.State)
	assert.Empty(t, client.calls)
}

func TestRun_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	e := newEnv(t)
	client := &recordingClient{
		respond: func(call int, records []model.InputRecord) ([]model.TransformedRecord, error) {
			if call == 2 {
				return nil, stderrors.New("timeout")
			}
			return echo(records), nil
		},
	}
	deps := e.deps(inputs(20), client)
	deps.Tracer = tp.Tracer("test")

	o, err := New(Config{ChunkSize: 10}, deps)
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	require.NoError(t, err)

	counts := map[string]int{}
	for _, s := range recorder.Ended() {
		counts[s.Name()]++
	}
	assert.Equal(t, 2, counts["migrate.batch"])
	assert.Equal(t, 3, counts["migrate.transform"])
}

func TestNew_Validation(t *testing.T) {
	e := newEnv(t)
	client := &recordingClient{}

	tests := []struct {
		name   string
		cfg    Config
		mutate func(d *Deps)
	}{
		{"negative chunk size", Config{ChunkSize: -1}, nil},
		{"negative attempts", Config{MaxAttempts: -1}, nil},
		{"no client", Config{}, func(d *Deps) { d.Client = nil }},
		{"no store", Config{}, func(d *Deps) { d.Store = nil }},
		{"no tracker", Config{}, func(d *Deps) { d.Tracker = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := e.deps(inputs(1), client)
			if tt.mutate != nil {
				tt.mutate(&deps)
			}
			_, err := New(tt.cfg, deps)
			assert.Error(t, err)
		})
	}
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "COMMITTING", BatchCommitting.String())
	assert.Equal(t, "ABORTED", RunAborted.String())
	assert.Equal(t, 50.0, Progress{Cursor: 15, Total: 30}.Percent())
	assert.Equal(t, 100.0, Progress{}.Percent())
}
