// Package stdio dials a provider by spawning it as a child process and
// speaking newline-delimited JSON-RPC over its stdin and stdout.
package stdio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/syarbeats/mcp-playground/transport"
)

// DefaultGracePeriod is how long Close waits for the child to exit after its
// stdin is closed before killing it.
const DefaultGracePeriod = 5 * time.Second

// Command describes the provider process to spawn.
type Command struct {
	Path string
	Args []string
	// Env is appended to the parent's environment.
	Env []string
	Dir string

	GracePeriod time.Duration
	Logger      *slog.Logger
}

// Dialer returns a transport.Dialer that spawns a fresh process per call.
func (c Command) Dialer() transport.Dialer {
	return c.Dial
}

// Dial starts the process. ctx bounds only the start; the process runs until
// the returned stream is closed or it exits on its own.
func (c Command) Dial(ctx context.Context) (transport.Stream, error) {
	if c.Path == "" {
		return nil, errors.New("stdio: empty command path")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	grace := c.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stdin pipe: %w", err)
	}
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW
	// Grandchildren holding the output pipes must not keep Wait blocked.
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("stdio: start %s: %w", c.Path, err)
	}
	log = log.With(slog.String("provider", c.Path), slog.Int("pid", cmd.Process.Pid))
	log.Debug("stdio.spawned")

	p := &process{
		cmd:   cmd,
		stdin: stdin,
		grace: grace,
		log:   log,
		done:  make(chan struct{}),
	}
	go drainStderr(errR, log)
	go func() {
		p.exitErr = cmd.Wait()
		// All output has been copied once Wait returns.
		_ = outW.Close()
		_ = errW.Close()
		log.Debug("stdio.exited", slog.Any("err", p.exitErr))
		close(p.done)
	}()

	return transport.NewLineStream(outR, stdin, closerFunc(p.stop)), nil
}

type process struct {
	cmd     *exec.Cmd
	stdin   io.Closer
	grace   time.Duration
	log     *slog.Logger
	done    chan struct{}
	exitErr error

	stopOnce sync.Once
}

// stop closes stdin so the provider can drain and exit, then kills it if it
// is still running after the grace period.
func (p *process) stop() error {
	p.stopOnce.Do(func() {
		_ = p.stdin.Close()
		t := time.NewTimer(p.grace)
		defer t.Stop()
		select {
		case <-p.done:
		case <-t.C:
			p.log.Warn("stdio.kill", slog.Duration("grace", p.grace))
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	})
	return nil
}

func drainStderr(r io.Reader, log *slog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		log.Debug("stdio.stderr", slog.String("line", sc.Text()))
	}
	// Keep the child unblocked if a line overflowed the scanner.
	_, _ = io.Copy(io.Discard, r)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
