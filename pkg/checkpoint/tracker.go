// Package checkpoint persists the committed-row cursor that lets a run resume.
//
// The cursor counts input rows whose output has been durably appended. It is saved only after
// the corresponding append returned, so a loaded cursor never exceeds the committed output.
package checkpoint

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

// Tracker loads and saves the progress cursor.
type Tracker interface {
	// Load returns the last saved cursor, or 0 when none exists or it cannot be read.
	Load(ctx context.Context) int

	// Save durably overwrites the cursor.
	Save(ctx context.Context, cursor int) error

	// Name returns the backend name for logging.
	Name() string
}

// errNoCursor marks a backend that has never been saved to.
var errNoCursor = stderrors.New("no cursor saved")

// reader is implemented by every backend in this package. Trackers build Load on top of it.
type reader interface {
	read(ctx context.Context) (int, error)
}

// loadOrZero maps read failures to a fresh start, logging anything other than absence.
func loadOrZero(ctx context.Context, r reader, name string, logger zerolog.Logger) int {
	cursor, err := r.read(ctx)
	if err == nil {
		return cursor
	}
	if errors.Is(err, errNoCursor) {
		logger.Debug().Str("backend", name).Msg("no saved cursor, starting from zero")
	} else {
		logger.Warn().Err(err).Str("backend", name).Msg("cursor unreadable, starting from zero")
	}
	return 0
}

// parseCursor parses the persisted decimal form. Surrounding whitespace is ignored.
func parseCursor(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errNoCursor
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeCheckpointFailed, "parse cursor %q", s)
	}
	if n < 0 {
		return 0, errors.Newf(errors.CodeCheckpointFailed, "negative cursor %d", n)
	}
	return n, nil
}

func formatCursor(cursor int) (string, error) {
	if cursor < 0 {
		return "", errors.Newf(errors.CodeCheckpointFailed, "refusing to save negative cursor %d", cursor)
	}
	return strconv.Itoa(cursor), nil
}

// MultiTracker saves to a primary and a best-effort secondary backend.
type MultiTracker struct {
	primary   Tracker
	secondary Tracker
	logger    zerolog.Logger
}

// NewMultiTracker creates a tracker that writes to both backends, primary first.
func NewMultiTracker(primary, secondary Tracker, logger zerolog.Logger) *MultiTracker {
	return &MultiTracker{primary: primary, secondary: secondary, logger: logger}
}

// Load reads the primary and falls back to the secondary when the primary cursor is missing,
// unreadable or unparsable.
func (m *MultiTracker) Load(ctx context.Context) int {
	if r, ok := m.primary.(reader); ok {
		if cursor, err := r.read(ctx); err == nil {
			return cursor
		}
		m.logger.Debug().Str("backend", m.primary.Name()).Msg("primary cursor unavailable, trying secondary")
		return m.secondary.Load(ctx)
	}
	return m.primary.Load(ctx)
}

// Save writes the primary; a secondary failure is logged and ignored.
func (m *MultiTracker) Save(ctx context.Context, cursor int) error {
	if err := m.primary.Save(ctx, cursor); err != nil {
		return err
	}
	if err := m.secondary.Save(ctx, cursor); err != nil {
		m.logger.Warn().Err(err).Str("backend", m.secondary.Name()).Int("cursor", cursor).
			Msg("secondary cursor save failed")
	}
	return nil
}

// Name returns the combined backend names.
func (m *MultiTracker) Name() string {
	return m.primary.Name() + "+" + m.secondary.Name()
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of "file", "redis" or "s3".
	Backend string

	// Secondary optionally names a second backend that mirrors every save.
	Secondary string

	// Path is the progress file used by the file backend.
	Path string

	Redis RedisConfig
	S3    S3Config
}

// Open creates the configured tracker. The returned close func releases backend connections.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Tracker, func() error, error) {
	primary, closePrimary, err := openBackend(ctx, cfg.Backend, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Secondary == "" || cfg.Secondary == cfg.Backend {
		return primary, closePrimary, nil
	}

	secondary, closeSecondary, err := openBackend(ctx, cfg.Secondary, cfg, logger)
	if err != nil {
		closePrimary()
		return nil, nil, err
	}
	closeBoth := func() error {
		err1 := closeSecondary()
		err2 := closePrimary()
		return errors.Join(err1, err2)
	}
	return NewMultiTracker(primary, secondary, logger), closeBoth, nil
}

func openBackend(ctx context.Context, backend string, cfg Config, logger zerolog.Logger) (Tracker, func() error, error) {
	noop := func() error { return nil }

	switch backend {
	case "", "file":
		return NewFileTracker(cfg.Path, logger), noop, nil
	case "redis":
		t, err := NewRedisTracker(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	case "s3":
		t, err := NewS3Tracker(ctx, cfg.S3, logger)
		if err != nil {
			return nil, nil, err
		}
		return t, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", backend)
	}
}
