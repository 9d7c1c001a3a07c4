// Package pipe runs an external encoder or decoder program, streaming
// bytes through its stdin and stdout while counting both directions.
//
// All three of the child's streams are always handled: stdin and
// stdout each get their own copier task and stderr is drained into a
// buffer, so the child can never block on an unread pipe.
package pipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keshon/hoard/internal/logging"
)

var log = logging.For("pipe")

// DefaultTimeout bounds the wall-clock time a single program run may
// take before it is terminated.
const DefaultTimeout = 60 * time.Second

// SubprocessError reports a failed program run: non-zero exit, a
// missing program, or a timeout.
type SubprocessError struct {
	Argv     []string
	ExitCode int
	Stderr   string
	Timeout  bool
	Err      error
}

func (e *SubprocessError) Error() string {
	name := "encoder"
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: timed out", name)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", name, e.Err)
	default:
		return fmt.Sprintf("%s: exit %d: %s", name, e.ExitCode, strings.TrimSpace(e.Stderr))
	}
}

func (e *SubprocessError) Unwrap() error { return e.Err }

// Result describes one completed run.
type Result struct {
	Success     bool
	Elapsed     time.Duration
	InputBytes  int64
	OutputBytes int64
	ExitCode    int
	Stderr      string
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	atomic.AddInt64(&c.n, int64(n))
	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	atomic.AddInt64(&c.n, int64(n))
	return n, err
}

// Run starts argv, feeds src to its stdin, and copies its stdout to
// dst. A timeout of zero means DefaultTimeout. On timeout the process
// is killed; the stdout copier then reaches end of file and the stdin
// copier stops at its next failed write. The copiers are not
// interrupted otherwise: a stdin copier blocked reading src stays
// blocked until that read returns.
//
// The stdin copier closes the child's stdin when src is exhausted;
// the stdout copier runs until the child closes its end. dst is never
// closed here, so callers that hand in the write end of a pipe must
// close it themselves once Run returns.
func Run(ctx context.Context, argv []string, src io.Reader, dst io.Writer, timeout time.Duration) (Result, error) {
	var res Result
	if len(argv) == 0 {
		return res, &SubprocessError{Err: errors.New("empty command")}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)

	in := &countingReader{r: src}
	out := &countingWriter{w: dst}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return res, &SubprocessError{Argv: argv, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return res, &SubprocessError{Argv: argv, Err: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return res, &SubprocessError{Argv: argv, Err: err}
	}

	// One copier per direction. The upstream copier owns the child's
	// stdin and closes it when done; leaving either stream unserviced
	// can deadlock the child.
	var g errgroup.Group
	g.Go(func() error {
		_, cErr := io.Copy(stdin, in)
		if closeErr := stdin.Close(); cErr == nil {
			cErr = closeErr
		}
		return cErr
	})
	g.Go(func() error {
		_, cErr := io.Copy(out, stdout)
		return cErr
	})

	copyErr := g.Wait()
	waitErr := cmd.Wait()

	res.Elapsed = time.Since(start)
	res.InputBytes = atomic.LoadInt64(&in.n)
	res.OutputBytes = atomic.LoadInt64(&out.n)
	res.Stderr = stderr.String()

	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)

	// a caller-initiated cancellation is not a subprocess failure
	if err := ctx.Err(); err != nil && !timedOut {
		return res, err
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		log.WithField("argv", argv[0]).WithField("exit", res.ExitCode).Debug("subprocess failed")
		return res, &SubprocessError{
			Argv:     argv,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Timeout:  timedOut,
			Err:      waitErr,
		}
	}
	if timedOut {
		return res, &SubprocessError{Argv: argv, Stderr: res.Stderr, Timeout: true, Err: runCtx.Err()}
	}
	if copyErr != nil {
		return res, &SubprocessError{Argv: argv, Stderr: res.Stderr, Err: copyErr}
	}

	res.Success = true
	return res, nil
}
