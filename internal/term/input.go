// Package term owns the interactive terminal input device.
//
// The terminal is a single exclusive resource: one pump goroutine reads
// bytes from the tty, and at most one consumer (a line read or a single-key
// read) waits on it at a time. Reads are cancellable via context; a
// cancelled read leaves no second reader blocked on the device and discards
// any partially typed line.
package term

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	xterm "golang.org/x/term"
)

// Reader provides cancellable reads from the interactive terminal.
type Reader struct {
	f       *os.File
	fd      int
	ownsTTY bool

	bytes   chan byte
	pumpErr error
	pumpMu  sync.Mutex

	historyPath string

	// mu serializes consumers; the race loop guarantees this never
	// actually contends, but a stray double-read must not corrupt input.
	mu sync.Mutex

	prompt io.Writer
}

// NewReader opens /dev/tty for input, falling back to stdin.
// Prompts are written to stderr so streamed stdout stays clean.
func NewReader() (*Reader, error) {
	if f, err := os.Open("/dev/tty"); err == nil {
		return newReader(f, true), nil
	}
	return newReader(os.Stdin, false), nil
}

func newReader(f *os.File, ownsTTY bool) *Reader {
	r := &Reader{
		f:       f,
		fd:      int(f.Fd()),
		ownsTTY: ownsTTY,
		bytes:   make(chan byte, 256),
		prompt:  os.Stderr,
	}
	go r.pump()
	return r
}

// SetHistoryPath enables appending submitted lines to a history file.
func (r *Reader) SetHistoryPath(path string) {
	r.historyPath = path
}

// IsTerminal reports whether input comes from an interactive terminal.
func (r *Reader) IsTerminal() bool {
	return xterm.IsTerminal(r.fd)
}

// Close releases the tty handle. Pending reads return io.EOF.
func (r *Reader) Close() error {
	if r.ownsTTY {
		return r.f.Close()
	}
	return nil
}

// pump is the single goroutine allowed to touch the device.
func (r *Reader) pump() {
	buf := make([]byte, 1)
	for {
		n, err := r.f.Read(buf)
		if n > 0 {
			r.bytes <- buf[0]
		}
		if err != nil {
			r.pumpMu.Lock()
			r.pumpErr = err
			r.pumpMu.Unlock()
			close(r.bytes)
			return
		}
	}
}

func (r *Reader) readErr() error {
	r.pumpMu.Lock()
	defer r.pumpMu.Unlock()
	if r.pumpErr != nil && r.pumpErr != io.EOF {
		return r.pumpErr
	}
	return io.EOF
}

// ReadLine prompts and collects one line of input (cooked mode, the tty
// driver handles echo and editing). Cancelling the context abandons the
// read immediately; whatever was typed is discarded.
func (r *Reader) ReadLine(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprint(r.prompt, prompt)

	var line strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case b, ok := <-r.bytes:
			if !ok {
				return "", r.readErr()
			}
			if b == '\n' {
				text := strings.TrimSpace(line.String())
				r.appendHistory(text)
				return text, nil
			}
			if b != '\r' {
				line.WriteByte(b)
			}
		}
	}
}

// ReadKey prompts and reads a single keypress in raw mode. The terminal
// state is always restored before returning, on every path.
func (r *Reader) ReadKey(ctx context.Context, prompt string) (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprint(r.prompt, prompt)

	if xterm.IsTerminal(r.fd) {
		state, err := xterm.MakeRaw(r.fd)
		if err != nil {
			return 0, err
		}
		defer xterm.Restore(r.fd, state)
	}

	// A line read cancelled mid-typing leaves its bytes pending in the
	// canonical buffer; raw mode makes them readable all at once. Drop
	// them so a stale keystroke is never taken as the decision.
	r.discardPending()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case b, ok := <-r.bytes:
		if !ok {
			return 0, r.readErr()
		}
		fmt.Fprintf(r.prompt, "%c\r\n", b)
		return b, nil
	}
}

// discardPending drains input until the device has been quiet briefly.
func (r *Reader) discardPending() {
	quiet := time.NewTimer(30 * time.Millisecond)
	defer quiet.Stop()
	for {
		select {
		case _, ok := <-r.bytes:
			if !ok {
				return
			}
			quiet.Reset(30 * time.Millisecond)
		case <-quiet.C:
			return
		}
	}
}

func (r *Reader) appendHistory(line string) {
	if r.historyPath == "" || line == "" {
		return
	}
	f, err := os.OpenFile(r.historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}
