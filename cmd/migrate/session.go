package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lenardflx/ai-data-migration/pkg/checkpoint"
	"github.com/lenardflx/ai-data-migration/pkg/config"
	"github.com/lenardflx/ai-data-migration/pkg/lifecycle"
	"github.com/lenardflx/ai-data-migration/pkg/merge"
	"github.com/lenardflx/ai-data-migration/pkg/pipeline"
	"github.com/lenardflx/ai-data-migration/pkg/resilience"
	"github.com/lenardflx/ai-data-migration/pkg/source"
	"github.com/lenardflx/ai-data-migration/pkg/store"
	"github.com/lenardflx/ai-data-migration/pkg/transform"
	"github.com/lenardflx/ai-data-migration/pkg/tui"
)

// session holds the collaborators shared by every run of one command invocation.
type session struct {
	cfg     *config.Config
	logger  zerolog.Logger
	tracker checkpoint.Tracker
	store   store.Store
	client  transform.Client
	merger  *merge.Merger
}

// openSession opens the progress backend, output store and transform client.
// Backend connections are registered with closers.
func openSession(ctx context.Context, c *config.Config, logger zerolog.Logger, closers *lifecycle.Closers) (*session, error) {
	tracker, closeTracker, err := checkpoint.Open(ctx, c.CheckpointConfig(), logger)
	if err != nil {
		return nil, err
	}
	closers.Add("progress", lifecycle.CloserFunc(func(context.Context) error { return closeTracker() }))

	st, err := store.Open(ctx, c.StoreConfig(), logger)
	if err != nil {
		return nil, err
	}

	client, err := newClient(c, logger)
	if err != nil {
		return nil, err
	}

	gen, err := merge.Generator(c.Transform.IDScheme)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:     c,
		logger:  logger,
		tracker: tracker,
		store:   st,
		client:  client,
		merger:  merge.New(gen),
	}, nil
}

func newClient(c *config.Config, logger zerolog.Logger) (transform.Client, error) {
	switch c.Transform.Provider {
	case "echo":
		return transform.NewEchoClient(transform.DefaultEchoColumns(), c.Input.Required), nil
	case "openai":
		prompt, err := c.SystemPromptText()
		if err != nil {
			return nil, err
		}
		return transform.NewOpenAIClient(c.OpenAIConfig(prompt), logger)
	default:
		return nil, fmt.Errorf("unknown transform provider %q", c.Transform.Provider)
	}
}

// run loads the input and processes it from the saved cursor.
// header is called once the input is loaded, before the first batch.
func (s *session) run(ctx context.Context, stop resilience.StopChecker, onBatch func(pipeline.Progress), header func(tui.RunInfo)) (*pipeline.Result, error) {
	records, err := source.Load(ctx, s.cfg.SourceOptions())
	if err != nil {
		return nil, err
	}

	orch, err := pipeline.New(pipeline.Config{
		ChunkSize:   s.cfg.Pipeline.ChunkSize,
		MaxAttempts: s.cfg.Pipeline.MaxAttempts,
		Backoff:     resilience.ExponentialBackoff(s.cfg.Pipeline.BackoffInitial, s.cfg.Pipeline.BackoffMax),
	}, pipeline.Deps{
		Records: records,
		Client:  s.client,
		Merger:  s.merger,
		Store:   s.store,
		Tracker: s.tracker,
		Stop:    stop,
		Logger:  s.logger,
		OnBatch: onBatch,
	})
	if err != nil {
		return nil, err
	}

	if header != nil {
		header(tui.RunInfo{
			Input:    s.cfg.Input.Path,
			Output:   s.store.Name(),
			Progress: s.tracker.Name(),
			Cursor:   s.tracker.Load(ctx),
			Total:    len(records),
			DryRun:   s.cfg.Transform.Provider == "echo",
		})
	}

	return orch.Run(ctx)
}
