package checkpoint

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/lenardflx/ai-data-migration/pkg/errors"
	"github.com/lenardflx/ai-data-migration/pkg/util"
)

// DefaultPath is the progress file used when none is configured.
const DefaultPath = "index.txt"

// FileTracker keeps the cursor as a decimal integer in a plain-text file.
type FileTracker struct {
	path   string
	logger zerolog.Logger
}

// NewFileTracker creates a tracker for path. An empty path means DefaultPath.
func NewFileTracker(path string, logger zerolog.Logger) *FileTracker {
	if path == "" {
		path = DefaultPath
	}
	return &FileTracker{path: path, logger: logger}
}

// Path returns the progress file location.
func (t *FileTracker) Path() string {
	return t.path
}

// Load implements Tracker.
func (t *FileTracker) Load(ctx context.Context) int {
	return loadOrZero(ctx, t, t.Name(), t.logger)
}

func (t *FileTracker) read(_ context.Context) (int, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errNoCursor
		}
		return 0, errors.Wrapf(err, errors.CodeCheckpointFailed, "read progress file %s", t.path)
	}
	return parseCursor(string(data))
}

// Save replaces the progress file atomically.
func (t *FileTracker) Save(_ context.Context, cursor int) error {
	s, err := formatCursor(cursor)
	if err != nil {
		return err
	}
	err = util.WriteAtomic(t.path, 0o644, func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeCheckpointFailed, "save progress file")
	}
	return nil
}

// Name implements Tracker.
func (t *FileTracker) Name() string {
	return "file"
}
