package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5
)

var (
	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenPipe is returned when there's an error reading from stdout or stderr
	ErrBrokenPipe = errors.New("broken pipe")
)

// WithLogger sets the logger for the source
func WithLogger(logger *slog.Logger) func(s *Source) {
	return func(s *Source) {
		s.logger = logger.With(slog.String("source", s.handler.Name()))
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(s *Source) {
	return func(s *Source) {
		s.parseErrorsThreshold = threshold
	}
}

// Source reads decoded telemetry lines and hands the readings over a channel
// to a single consumer.
type Source struct {
	handler Handler

	isRunning atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// New creates a new Source instance with a discard logger
func New(h Handler, options ...func(s *Source)) *Source {
	s := Source{
		handler:              h,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		parseErrorsThreshold: ParseErrorsThreshold,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Start opens the stream and sends every parsed reading to readings. The
// returned channel is closed when reading stops and carries the error that
// stopped it, if any.
func (s *Source) Start(ctx context.Context, readings chan<- Reading) (<-chan error, error) {
	if !s.isRunning.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("source is already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	stream, err := s.handler.Open(ctx)
	if err != nil {
		s.cancel()
		s.isRunning.Store(false)
		return nil, err
	}

	stopped := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(stopped)
		defer s.cancel()

		s.logger.Info("reading telemetry...")

		readers := 1
		done := make(chan error, 2)

		go s.handleStdout(ctx, stream.Stdout, readings, done)
		if stream.Stderr != nil {
			readers++
			go s.handleStderr(stream.Stderr, done)
		}

		var errs []error
		for i := 0; i < readers; i++ {
			if err := <-done; err != nil {
				s.cancel()
				s.logger.Error(err.Error())

				errs = append(errs, err)
			}
		}

		// pipes are drained, the process can be reaped
		if stream.Wait != nil {
			if err := s.handleWait(ctx, stream.Wait); err != nil {
				s.logger.Error(err.Error())
				errs = append(errs, err)
			}
		}

		s.logger.Info("telemetry reading stopped")
		s.isRunning.Store(false)

		if len(errs) > 0 {
			stopped <- errors.Join(errs...)
		}
	}()

	return stopped, nil
}

// Stop cancels reading and waits for it to finish.
func (s *Source) Stop() {
	if !s.isRunning.Load() {
		return
	}

	s.cancel()
	s.wg.Wait()
}

// IsRunning returns true while the source is reading
func (s *Source) IsRunning() bool {
	return s.isRunning.Load()
}

// handleStdout reads lines, parses and sends readings to the readings channel.
func (s *Source) handleStdout(ctx context.Context, stdout io.Reader, readings chan<- Reading, done chan<- error) {
	var parseErrors uint8

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r, err := Parse(line)
		if err != nil {
			parseErrors++
			s.logger.Warn(fmt.Sprintf("error parsing reading: %s", err.Error()), slog.String("line", line))

			if parseErrors >= s.parseErrorsThreshold {
				done <- ErrTooManyParseErrors
				return
			}

			continue
		}

		parseErrors = 0 // reset counter

		select {
		case readings <- r:
		case <-ctx.Done():
			done <- nil
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stdout: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// handleStderr reads from stderr and logs it.
func (s *Source) handleStderr(stderr io.Reader, done chan<- error) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		s.logger.Warn(fmt.Sprintf("%s >> %s", s.handler.Name(), line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// handleWait waits for the stream to end and reports its exit error.
func (s *Source) handleWait(ctx context.Context, wait func() error) error {
	if err := wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("command exited with error: %w", err)
	}

	return nil
}
