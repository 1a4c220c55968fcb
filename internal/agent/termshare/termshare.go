// Package termshare runs a command under a pseudo-terminal and
// streams its output to the room as terminal shares.
package termshare

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/CodeHiveAPP/codehive/internal/protocol"
)

// flushInterval is how often accumulated output is shared while the
// command runs. A final flush happens at exit.
const flushInterval = 2 * time.Second

// screenRing is a bounded chronological byte buffer. Its capacity
// matches the protocol's terminal output cap, so a snapshot is always
// sendable as one frame.
type screenRing struct {
	mu    sync.Mutex
	buf   []byte
	pos   int
	full  bool
	dirty bool
}

func newScreenRing(size int) *screenRing {
	return &screenRing{buf: make([]byte, size)}
}

func (sr *screenRing) Write(data []byte) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.dirty = true
	for len(data) > 0 {
		n := copy(sr.buf[sr.pos:], data)
		data = data[n:]
		sr.pos += n
		if sr.pos >= len(sr.buf) {
			sr.pos = 0
			sr.full = true
		}
	}
}

// snapshot returns the buffered output in chronological order and
// clears the dirty flag. ok is false when nothing arrived since the
// last call.
func (sr *screenRing) snapshot() (string, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if !sr.dirty {
		return "", false
	}
	sr.dirty = false

	if !sr.full {
		return string(sr.buf[:sr.pos]), true
	}
	out := make([]byte, len(sr.buf))
	n := copy(out, sr.buf[sr.pos:])
	copy(out[n:], sr.buf[:sr.pos])
	return string(out), true
}

// Run executes command with `sh -c` under a pty in dir, sharing
// buffered output periodically and once more on exit. It returns the
// command's exit code.
func Run(ctx context.Context, command, dir string, share func(output string)) (int, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 80, Rows: 24})
	if err != nil {
		return -1, fmt.Errorf("start pty: %w", err)
	}
	defer ptmx.Close()

	ring := newScreenRing(protocol.MaxTerminalOutput)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := make([]byte, 32*1024)
		for {
			n, rerr := ptmx.Read(buf)
			if n > 0 {
				ring.Write(buf[:n])
			}
			if rerr != nil {
				return
			}
		}
	}()

	flush := func() {
		if out, ok := ring.snapshot(); ok {
			share(out)
		}
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-readDone
			_ = cmd.Wait()
			flush()
			return -1, ctx.Err()
		case <-ticker.C:
			flush()
		case <-readDone:
			exitCode := 0
			if werr := cmd.Wait(); werr != nil {
				var exitErr *exec.ExitError
				if errors.As(werr, &exitErr) {
					exitCode = exitErr.ExitCode()
				} else {
					flush()
					return -1, werr
				}
			}
			flush()
			return exitCode, nil
		}
	}
}
