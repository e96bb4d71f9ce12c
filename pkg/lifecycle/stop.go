// Package lifecycle provides cooperative stop handling and ordered shutdown of run resources.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

// Stop is a cooperative stop token. Requesting a stop never interrupts work in progress;
// the holder decides when to look at it.
type Stop struct {
	once sync.Once
	done chan struct{}
}

// NewStop creates a token that has not been requested.
func NewStop() *Stop {
	return &Stop{done: make(chan struct{})}
}

// Request marks the token as stopped. Safe to call more than once and from any goroutine.
func (s *Stop) Request() {
	s.once.Do(func() { close(s.done) })
}

// Requested reports whether Request has been called.
func (s *Stop) Requested() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once a stop is requested.
func (s *Stop) Done() <-chan struct{} {
	return s.done
}

// NotifySignals requests a stop on the first of sigs received. With no sigs, SIGINT and SIGTERM
// are used. The signal does not terminate the process; a second signal is logged and ignored.
// The returned release func stops signal delivery and must be called when the run ends.
func NotifySignals(stop *Stop, logger zerolog.Logger, sigs ...os.Signal) (release func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)
	quit := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case sig := <-sigChan:
				if stop.Requested() {
					logger.Warn().Str("signal", sig.String()).Msg("stop already requested, waiting for current batch")
					continue
				}
				logger.Info().Str("signal", sig.String()).Msg("stop requested, finishing current batch")
				stop.Request()
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(quit)
			wg.Wait()
		})
	}
}

// Closer is a resource released at shutdown.
type Closer interface {
	Close(ctx context.Context) error
}

// CloserFunc adapts a function to Closer.
type CloserFunc func(ctx context.Context) error

// Close implements Closer.
func (f CloserFunc) Close(ctx context.Context) error {
	return f(ctx)
}

type namedCloser struct {
	name   string
	closer Closer
}

// Closers releases registered resources in reverse registration order.
type Closers struct {
	mu      sync.Mutex
	closers []namedCloser
	logger  zerolog.Logger
}

// NewClosers creates an empty registry.
func NewClosers(logger zerolog.Logger) *Closers {
	return &Closers{logger: logger}
}

// Add registers a resource. A nil closer is ignored.
func (c *Closers) Add(name string, closer Closer) {
	if closer == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, namedCloser{name: name, closer: closer})
}

// Close releases every resource, last registered first, and returns the first error.
// Every closer runs even if an earlier one fails.
func (c *Closers) Close(ctx context.Context) error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		nc := closers[i]
		if err := nc.closer.Close(ctx); err != nil {
			c.logger.Error().Err(err).Str("resource", nc.name).Msg("close failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.logger.Debug().Str("resource", nc.name).Msg("closed")
	}
	return firstErr
}
