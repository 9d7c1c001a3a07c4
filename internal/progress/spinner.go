package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Spinner renders a live counter on a TTY. On a non-TTY it stays
// silent except for the final summary line.
type Spinner struct {
	message string
	tty     bool
	start   time.Time

	mu      sync.Mutex
	counts  map[EventKind]int
	bytes   int64
	skipped int

	done chan struct{}
	once sync.Once
}

func NewSpinner(message string) *Spinner {
	s := &Spinner{
		message: message,
		tty:     isatty.IsTerminal(os.Stderr.Fd()),
		start:   time.Now(),
		counts:  make(map[EventKind]int),
		done:    make(chan struct{}),
	}
	if s.tty {
		go s.render()
	}
	return s
}

func (s *Spinner) Event(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[ev.Kind]++
	s.bytes += ev.Bytes
	if ev.Kind == EventSkipped {
		s.skipped++
	}
}

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (s *Spinner) render() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			fmt.Fprintf(os.Stderr, "\r%s %s [%d scanned, %d stored, %d reused]  ",
				frames[frame%len(frames)], s.message,
				s.counts[EventScanned], s.counts[EventStored], s.counts[EventReused])
			s.mu.Unlock()
			frame++
		}
	}
}

// Finish stops rendering and prints the closing summary.
func (s *Spinner) Finish() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.tty {
			fmt.Fprint(os.Stderr, "\r")
		}
		fmt.Fprintf(os.Stderr, "%s: %d scanned, %d stored, %d reused, %d skipped (%s)\n",
			s.message,
			s.counts[EventScanned], s.counts[EventStored], s.counts[EventReused],
			s.skipped, time.Since(s.start).Round(time.Millisecond))
	})
}
