package render

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// SpinnerFrames is the glyph cycle drawn while waiting on the model.
var SpinnerFrames = []string{"-", "/", "|", "\\"}

// SpinnerInterval is the time between frames.
const SpinnerInterval = 100 * time.Millisecond

// Indicator shows progress while a blocking call runs.
// Start returns a stop function that blocks until the indicator has
// finished drawing and cleaned up after itself.
type Indicator interface {
	Start(ctx context.Context) func()
}

// NopIndicator draws nothing. Used when stdout is not a terminal.
type NopIndicator struct{}

func (NopIndicator) Start(context.Context) func() { return func() {} }

// Spinner draws a single glyph and overwrites it in place on every tick.
type Spinner struct {
	writer   io.Writer
	frames   []string
	interval time.Duration
	mu       sync.Mutex
	running  bool
	stop     func()
}

// NewSpinner creates a new spinner with default frames.
func NewSpinner(writer io.Writer) *Spinner {
	return &Spinner{
		writer:   writer,
		frames:   SpinnerFrames,
		interval: SpinnerInterval,
	}
}

// Start begins the spinner animation and returns a stop function.
// The stop function blocks until the spinner goroutine has erased its glyph
// and exited, so nothing is written to the writer after it returns.
// Calling Start on a running spinner returns the running spinner's stop
// function.
func (s *Spinner) Start(ctx context.Context) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.stop
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	var once sync.Once

	s.running = true
	s.stop = func() {
		once.Do(func() {
			cancel()
			<-done
			s.mu.Lock()
			s.running = false
			s.stop = nil
			s.mu.Unlock()
		})
	}

	go s.run(ctx, done)

	return s.stop
}

// run is the internal goroutine that animates the spinner
func (s *Spinner) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	frameIndex := 0
	fmt.Fprint(s.writer, s.frame(frameIndex))

	for {
		select {
		case <-ctx.Done():
			// Step back over the glyph, blank it, and step back again.
			fmt.Fprint(s.writer, "\b \b")
			return
		case <-ticker.C:
			frameIndex = (frameIndex + 1) % len(s.frames)
			fmt.Fprint(s.writer, "\b"+s.frame(frameIndex))
		}
	}
}

func (s *Spinner) frame(i int) string {
	return SpinnerStyle.Render(s.frames[i])
}
