// Package pipeline drives a migration run: chunk, transform with bounded retry, merge, commit,
// advance the cursor. Exactly one batch is in flight at a time.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/checkpoint"
	"github.com/lenardflx/ai-data-migration/pkg/chunk"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
	"github.com/lenardflx/ai-data-migration/pkg/logging"
	"github.com/lenardflx/ai-data-migration/pkg/merge"
	"github.com/lenardflx/ai-data-migration/pkg/resilience"
	"github.com/lenardflx/ai-data-migration/pkg/store"
	"github.com/lenardflx/ai-data-migration/pkg/transform"
)

// DefaultMaxAttempts is the attempt budget per batch, first attempt included.
const DefaultMaxAttempts = 2

const tracerName = "github.com/lenardflx/ai-data-migration/pkg/pipeline"

// Config holds run tuning.
type Config struct {
	// ChunkSize is the number of rows per batch (0 = chunk.DefaultSize).
	ChunkSize int

	// MaxAttempts is the attempt budget per batch (0 = DefaultMaxAttempts).
	MaxAttempts int

	// Backoff yields the delay between attempts. Nil means retry immediately.
	Backoff backoff.BackOff
}

// Deps are the collaborators of a run. Client, Store and Tracker are required.
type Deps struct {
	Records []model.InputRecord
	Client  transform.Client
	Merger  *merge.Merger
	Store   store.Store
	Tracker checkpoint.Tracker

	// Stop is checked before every attempt. Nil means the run is never stopped.
	Stop resilience.StopChecker

	Logger zerolog.Logger
	Tracer trace.Tracer

	// OnBatch observes batch state changes. It runs on the orchestrator goroutine.
	OnBatch func(Progress)
}

// Result summarises a run.
type Result struct {
	State            RunState
	StartCursor      int
	Cursor           int
	BatchesCommitted int
	RowsCommitted    int
	TotalRows        int

	// Err is the failure that ended a FAILED run.
	Err error
}

// Orchestrator runs batches sequentially.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
}

// New validates the configuration and creates an orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunk.DefaultSize
	}
	if cfg.ChunkSize < 0 {
		return nil, fmt.Errorf("%w: got %d", chunk.ErrInvalidChunkSize, cfg.ChunkSize)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", cfg.MaxAttempts)
	}

	switch {
	case deps.Client == nil:
		return nil, fmt.Errorf("no transform client configured")
	case deps.Store == nil:
		return nil, fmt.Errorf("no result store configured")
	case deps.Tracker == nil:
		return nil, fmt.Errorf("no progress tracker configured")
	}
	if deps.Merger == nil {
		deps.Merger = merge.New(nil)
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}

	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  logging.Component(deps.Logger, "pipeline"),
	}, nil
}

// Run processes every batch from the saved cursor on. A FAILED run returns its error;
// FINISHED and ABORTED runs return nil.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	total := len(o.deps.Records)
	start := o.deps.Tracker.Load(ctx)
	if start > total {
		o.log.Warn().Int("cursor", start).Int("total", total).Msg("saved cursor is past the end of the input")
	}

	chunker, err := chunk.New(o.deps.Records, o.cfg.ChunkSize, start)
	if err != nil {
		return nil, err
	}

	res := &Result{
		State:       RunFinished,
		StartCursor: start,
		Cursor:      start,
		TotalRows:   total,
	}

	o.log.Info().
		Int("cursor", start).
		Int("total", total).
		Int("chunk_size", o.cfg.ChunkSize).
		Int("batches", chunker.TotalBatches()).
		Str("store", o.deps.Store.Name()).
		Str("tracker", o.deps.Tracker.Name()).
		Msg("starting run")

	for {
		batch, ok := chunker.Next()
		if !ok {
			break
		}

		state, err := o.runBatch(ctx, batch, res)
		switch state {
		case BatchAborted:
			res.State = RunAborted
			o.log.Info().Int("cursor", res.Cursor).Int("total", total).Msg("run aborted")
			return res, nil
		case BatchFailed:
			res.State = RunFailed
			res.Err = err
			o.log.Error().Err(err).Int("cursor", res.Cursor).Int("total", total).Msg("run failed")
			return res, err
		}
	}

	o.log.Info().
		Int("cursor", res.Cursor).
		Int("total", total).
		Int("rows_committed", res.RowsCommitted).
		Msg("run finished")
	return res, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, batch model.Batch, res *Result) (BatchState, error) {
	ctx, span := o.deps.Tracer.Start(ctx, "migrate.batch", trace.WithAttributes(
		attribute.Int("batch.start", batch.Start),
		attribute.Int("batch.end", batch.End()),
	))
	defer span.End()

	log := o.log.With().
		Int("batch_start", batch.Start).
		Int("batch_end", batch.End()).
		Int("total", res.TotalRows).
		Logger()
	o.emit(BatchPending, batch, 0, res)

	var transformed []model.TransformedRecord
	policy := resilience.Policy{
		MaxAttempts: o.cfg.MaxAttempts,
		Backoff:     o.cfg.Backoff,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying batch")
			o.emit(BatchRetry, batch, attempt, res)
		},
	}

	outcome := resilience.Retry(ctx, policy, o.deps.Stop, func(ctx context.Context, attempt int) error {
		o.emit(BatchCalling, batch, attempt, res)
		log.Info().
			Int("attempt", attempt).
			Int("cursor", res.Cursor).
			Str("progress", fmt.Sprintf("%.2f%%", percent(res.Cursor, res.TotalRows))).
			Msg("processing batch")

		out, err := o.call(ctx, batch, attempt)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("batch attempt failed")
			return err
		}
		transformed = out
		return nil
	})

	span.SetAttributes(attribute.Int("batch.attempts", outcome.Attempts))

	switch outcome.Outcome {
	case resilience.Stopped:
		log.Info().Int("cursor", res.Cursor).Msg("stop requested, not starting new work")
		span.SetAttributes(attribute.String("batch.state", BatchAborted.String()))
		o.emit(BatchAborted, batch, outcome.Attempts, res)
		return BatchAborted, nil
	case resilience.Transient, resilience.Fatal:
		log.Error().Err(outcome.Err).
			Int("attempts", outcome.Attempts).
			Str("outcome", outcome.Outcome.String()).
			Msg("batch failed")
		return o.fail(span, batch, outcome.Attempts, res, outcome.Err)
	}

	o.emit(BatchCommitting, batch, outcome.Attempts, res)
	if err := o.commit(ctx, batch, transformed); err != nil {
		log.Error().Err(err).Int("cursor", res.Cursor).Msg("commit failed")
		return o.fail(span, batch, outcome.Attempts, res, err)
	}

	res.Cursor = batch.End()
	res.BatchesCommitted++
	res.RowsCommitted += batch.Len()

	log.Info().
		Int("cursor", res.Cursor).
		Int("attempts", outcome.Attempts).
		Str("progress", fmt.Sprintf("%.2f%%", percent(res.Cursor, res.TotalRows))).
		Msg("batch committed")
	span.SetAttributes(attribute.String("batch.state", BatchDone.String()))
	o.emit(BatchDone, batch, outcome.Attempts, res)
	return BatchDone, nil
}

// call runs one transform attempt and applies the cardinality guard.
func (o *Orchestrator) call(ctx context.Context, batch model.Batch, attempt int) ([]model.TransformedRecord, error) {
	ctx, span := o.deps.Tracer.Start(ctx, "migrate.transform", trace.WithAttributes(
		attribute.Int("batch.start", batch.Start),
		attribute.Int("attempt", attempt),
		attribute.Int("rows", batch.Len()),
	))
	defer span.End()

	out, err := o.deps.Client.Transform(ctx, batch.Records)
	if err == nil && len(out) != batch.Len() {
		err = errors.CardinalityMismatch(batch.Start, batch.End(), len(out))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

// commit appends the merged batch, then saves the cursor past it. The cursor is never saved
// unless the append returned successfully.
func (o *Orchestrator) commit(ctx context.Context, batch model.Batch, transformed []model.TransformedRecord) error {
	merged, err := o.deps.Merger.MergeBatch(batch, transformed)
	if err != nil {
		return err
	}
	if err := o.deps.Store.Append(ctx, merged); err != nil {
		return errors.Wrapf(err, errors.CodeWriteFailed, "append rows %d-%d", batch.Start, batch.End())
	}
	if err := o.deps.Tracker.Save(ctx, batch.End()); err != nil {
		return errors.Wrapf(err, errors.CodeCheckpointFailed, "save cursor %d", batch.End())
	}
	return nil
}

func (o *Orchestrator) fail(span trace.Span, batch model.Batch, attempts int, res *Result, err error) (BatchState, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("batch.state", BatchFailed.String()))
	o.emit(BatchFailed, batch, attempts, res)
	return BatchFailed, err
}

func (o *Orchestrator) emit(state BatchState, batch model.Batch, attempt int, res *Result) {
	if o.deps.OnBatch == nil {
		return
	}
	o.deps.OnBatch(Progress{
		State:      state,
		BatchStart: batch.Start,
		BatchEnd:   batch.End(),
		Attempt:    attempt,
		Cursor:     res.Cursor,
		Total:      res.TotalRows,
	})
}
