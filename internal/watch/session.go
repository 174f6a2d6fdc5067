// Package watch runs todo watch sessions and the interactive follow-up loop.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"

	"github.com/joss/todoai/internal/approval"
	"github.com/joss/todoai/internal/edge"
	"github.com/joss/todoai/internal/stream"
)

// ErrInterrupted reports that a session was cancelled by the operator's
// first interrupt. Recoverable: the caller decides whether to continue.
var ErrInterrupted = errors.New("watch interrupted")

// Watcher opens one ordered event stream per todo invocation.
type Watcher interface {
	// Watch subscribes to a todo's events. The returned stream's channel
	// preserves delivery order and closes on terminal event, stream
	// error, timeout, or context cancellation.
	Watch(ctx context.Context, todoID, projectID string, timeout time.Duration) (EventStream, error)

	// SendInterrupt asks the server to stop the todo.
	SendInterrupt(ctx context.Context, todoID, projectID string) error
}

// EventStream is one live subscription.
type EventStream interface {
	Events() <-chan stream.Event
	// Err reports why the stream ended, once Events is closed. Nil after
	// a terminal event.
	Err() error
}

// Session owns one watch invocation for a single todo. Exactly one
// session is active per todo at a time.
type Session struct {
	Transport Watcher
	Approvals *approval.Coordinator
	TodoID    string
	ProjectID string
	Timeout   time.Duration

	Out  io.Writer // streamed content, unbuffered
	Errw io.Writer // notices, prompts, diagnostics

	// exit is os.Exit unless overridden in tests.
	exit func(int)

	// sigCh overrides OS signal delivery in tests.
	sigCh chan os.Signal
}

// RunOptions configures one session round.
type RunOptions struct {
	// NotifyInterrupt sends a server-side interrupt when the operator
	// cancels the session.
	NotifyInterrupt bool

	// QuietInterrupt suppresses the "Interrupted" notice. The race loop
	// sets this for preemptible rounds it cancels itself.
	QuietInterrupt bool

	// Activity, when non-nil, is set on the first visible event.
	Activity *Activity
}

// NewSession creates a session bound to one todo.
func NewSession(transport Watcher, approvals *approval.Coordinator, todoID, projectID string, timeout time.Duration) *Session {
	return &Session{
		Transport: transport,
		Approvals: approvals,
		TodoID:    todoID,
		ProjectID: projectID,
		Timeout:   timeout,
		Out:       os.Stdout,
		Errw:      os.Stderr,
		exit:      os.Exit,
	}
}

// SetExitFunc overrides process termination (for testing).
func (s *Session) SetExitFunc(fn func(int)) { s.exit = fn }

// Run watches the todo until a terminal event, interrupt, timeout, or
// stream error. Returns the outcome for a normal completion, or
// ErrInterrupted when the operator cancelled the round. Timeouts and
// stream errors are fatal: reported and the process exits 1.
//
// Interrupt handling is scoped to the run: the handler is installed on
// entry and released on every exit path. The first interrupt cancels the
// round; a second forces immediate process exit with code 130.
func (s *Session) Run(ctx context.Context, opts RunOptions) (stream.Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	s.watchInterrupts(cancel, opts, done)

	es, err := s.Transport.Watch(runCtx, s.TodoID, s.ProjectID, s.Timeout)
	if err != nil {
		fmt.Fprintf(s.Errw, "Error: Stream error: %v\n", err)
		s.exit(1)
		return stream.Outcome{}, err
	}

	outcome, sawTerminal := s.consume(runCtx, es, opts.Activity)

	switch err := es.Err(); {
	case sawTerminal:
		fmt.Fprintln(s.Out)
		if !outcome.Success {
			warnColor.Fprintf(s.Errw, "Warning: Stopped: %s\n", outcome.Kind)
		}
		return outcome, nil

	case errors.Is(err, context.Canceled):
		if !opts.QuietInterrupt {
			warnColor.Fprintln(s.Errw, "Interrupted")
		}
		return stream.Outcome{}, ErrInterrupted

	case errors.Is(err, edge.ErrTimeout):
		fmt.Fprintf(s.Errw, "\nTimeout after %s\n", s.Timeout)
		s.exit(1)
		return stream.Outcome{}, err

	default:
		fmt.Fprintf(s.Errw, "Error: Stream error: %v\n", err)
		s.exit(1)
		return stream.Outcome{}, err
	}
}

// consume processes events strictly in delivery order until the channel
// closes. Approval requests ready in the same tick are batched.
func (s *Session) consume(ctx context.Context, es EventStream, activity *Activity) (stream.Outcome, bool) {
	events := es.Events()
	var stashed *stream.Event

	next := func() (stream.Event, bool) {
		if stashed != nil {
			ev := *stashed
			stashed = nil
			return ev, true
		}
		ev, ok := <-events
		return ev, ok
	}

	for {
		ev, ok := next()
		if !ok {
			return stream.Outcome{}, false
		}

		cl := stream.Classify(ev)
		switch cl.Class {
		case stream.ClassIgnored:

		case stream.ClassContent:
			fmt.Fprint(s.Out, cl.Text)
			activity.Set()

		case stream.ClassNotice:
			s.printNotice(ev.Kind, cl.Text)
			activity.Set()

		case stream.ClassApproval:
			batch := []stream.BlockInfo{cl.Block}
			batch, stashed = drainApprovals(events, batch)
			activity.Set()
			if err := s.Approvals.Resolve(ctx, s.TodoID, batch); err != nil {
				fmt.Fprintf(s.Errw, "Error: %v\n", err)
			}

		case stream.ClassTerminal:
			return cl.Outcome, true
		}
	}
}

// drainApprovals extends the batch with approval requests already queued
// in this processing tick. The first non-approval event encountered is
// returned so delivery order is preserved; it is processed after the
// batch it trails.
func drainApprovals(events <-chan stream.Event, batch []stream.BlockInfo) ([]stream.BlockInfo, *stream.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return batch, nil
			}
			cl := stream.Classify(ev)
			if cl.Class == stream.ClassApproval {
				batch = append(batch, cl.Block)
				continue
			}
			return batch, &ev
		default:
			return batch, nil
		}
	}
}

var (
	warnColor   = color.New(color.FgYellow)
	forceColor  = color.New(color.FgRed)
	markerColor = color.New(color.FgGreen)
)

func (s *Session) printNotice(kind, text string) {
	switch kind {
	case stream.KindStartUniversal:
		markerColor.Fprint(s.Errw, "\n*")
		fmt.Fprintf(s.Errw, " %s\n", text)
	case stream.KindBlockUpdate:
		warnColor.Fprintf(s.Errw, "\n%s\n", text)
	default:
		fmt.Fprintf(s.Errw, "\n%s\n", text)
	}
}

// watchInterrupts installs the session-scoped interrupt handler. The
// first interrupt warns and cancels the round; the second exits 130
// immediately, skipping further cleanup. signal.Stop restores prior
// delivery on every exit path.
func (s *Session) watchInterrupts(cancel context.CancelFunc, opts RunOptions, done <-chan struct{}) {
	sigCh := s.sigCh
	if sigCh == nil {
		sigCh = make(chan os.Signal, 2)
		signal.Notify(sigCh, os.Interrupt)
	}

	go func() {
		defer signal.Stop(sigCh)
		count := 0
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				count++
				if count >= 2 {
					forceColor.Fprintln(s.Errw, "\nForce exit (double Ctrl+C)")
					s.exit(130)
					return
				}
				warnColor.Fprintln(s.Errw, "\nInterrupting... (Ctrl+C again to force exit)")
				if opts.NotifyInterrupt {
					s.Transport.SendInterrupt(context.Background(), s.TodoID, s.ProjectID)
				}
				cancel()
			}
		}
	}()
}
