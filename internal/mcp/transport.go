// File: internal/mcp/transport.go
package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultShutdownGrace = 3 * time.Second

// CommandTransport launches a tool server as a subprocess and talks to it
// over the child's stdin and stdout. The child's stderr is forwarded to the
// log.
type CommandTransport struct {
	Command string
	Args    []string
	// Env is added on top of the current process environment.
	Env map[string]string
	// ShutdownGrace is how long Close waits for the child to exit on its own
	// after stdin is closed before killing it.
	ShutdownGrace time.Duration
	Logger        *zap.Logger
}

// Connect starts the subprocess. The returned connection owns it: closing
// the connection ends the process.
func (t *CommandTransport) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := exec.LookPath(t.Command)
	if err != nil {
		return nil, fmt.Errorf("tool server %q not found: %w", t.Command, err)
	}

	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mcp_transport").With(zap.String("command", path))

	// Not CommandContext: the process lives until Close, not until ctx ends.
	cmd := exec.Command(path, t.Args...)
	cmd.Env = os.Environ()
	for k, v := range t.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to capture stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to capture stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start tool server: %w", err)
	}
	logger.Debug("Tool server started", zap.Int("pid", cmd.Process.Pid))

	grace := t.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}

	out, outW := io.Pipe()
	pc := &processConn{
		cmd:        cmd,
		stdin:      stdin,
		out:        out,
		grace:      grace,
		log:        logger,
		stdoutDone: make(chan struct{}),
		stderrDone: make(chan struct{}),
	}
	go pc.pumpStdout(stdout, outW)
	go pc.monitorStderr(stderr)
	return pc, nil
}

// processConn is the client side of a tool server subprocess. Only the
// transport reads the child's stdout, so Wait never races a caller's Read.
type processConn struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	out        *io.PipeReader
	grace      time.Duration
	log        *zap.Logger
	stdoutDone chan struct{}
	stderrDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (p *processConn) Read(b []byte) (int, error)  { return p.out.Read(b) }
func (p *processConn) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Close shuts stdin, gives the child the grace period to exit, then kills it.
func (p *processConn) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		// Unblocks the pump if it is waiting on a reader that has gone away.
		_ = p.out.Close()

		ctx, cancel := context.WithTimeout(context.Background(), p.grace)
		defer cancel()

		killed := false
		// Wait closes the pipes, so both readers must be finished first.
		for _, done := range []chan struct{}{p.stdoutDone, p.stderrDone} {
			select {
			case <-done:
			case <-ctx.Done():
				if !killed {
					p.log.Warn("Tool server did not exit in time; killing it", zap.Duration("grace", p.grace))
					_ = p.cmd.Process.Kill()
					killed = true
				}
				<-done
			}
		}

		err := p.cmd.Wait()
		if !killed {
			p.closeErr = exitError(err)
		}
		p.log.Debug("Tool server stopped", zap.Bool("killed", killed))
	})
	return p.closeErr
}

// pumpStdout forwards the child's output to Read until the child closes
// it or Close discards the reading end.
func (p *processConn) pumpStdout(stdout io.Reader, w *io.PipeWriter) {
	defer close(p.stdoutDone)
	_, err := io.Copy(w, stdout)
	// A nil error surfaces to Read as io.EOF.
	_ = w.CloseWithError(err)
}

func (p *processConn) monitorStderr(pipe io.Reader) {
	defer close(p.stderrDone)
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.log.Debug("Tool server stderr", zap.String("line", scanner.Text()))
	}
}

// exitError drops the error for a child that exited because we closed its
// input.
func exitError(err error) error {
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
		return nil
	}
	return fmt.Errorf("tool server exited: %w", err)
}

// Pipe returns the two ends of an in-memory duplex connection: one for a
// Client and one for a Server running in the same process.
func Pipe() (client io.ReadWriteCloser, server io.ReadWriteCloser) {
	serverR, clientW := io.Pipe()
	clientR, serverW := io.Pipe()
	return &pipeEnd{r: clientR, w: clientW}, &pipeEnd{r: serverR, w: serverW}
}

type pipeEnd struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipeEnd) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeEnd) Write(b []byte) (int, error) { return p.w.Write(b) }

// Close signals EOF to the peer and unblocks any local reader.
func (p *pipeEnd) Close() error {
	werr := p.w.Close()
	rerr := p.r.Close()
	return errors.Join(werr, rerr)
}
