package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joss/todoai/internal/stream"
)

// LineReader collects one line of operator input, cancellable.
type LineReader interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
}

// RunFunc runs one watch session round.
type RunFunc func(ctx context.Context, opts RunOptions) (stream.Outcome, error)

// SendFunc delivers operator-authored follow-up content to the transport.
type SendFunc func(ctx context.Context, content string) error

const followUpPrompt = "❯ "

type watchResult struct {
	outcome stream.Outcome
	err     error
}

type inputResult struct {
	line string
	err  error
}

// Interactive races todo streaming against operator input until the
// operator quits or input ends.
//
// Each iteration starts a preemptible watch round, a line read, and a
// wait on the round's activity signal. Server activity cancels the input
// prompt before any approval prompt or further output needs the
// terminal; a submitted line cancels the round before it is processed.
// The losing side of every race is awaited, not abandoned, so the
// terminal device never has two readers.
func Interactive(ctx context.Context, watch RunFunc, send SendFunc, in LineReader, errw io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		activity := NewActivity()

		watchCtx, cancelWatch := context.WithCancel(ctx)
		inputCtx, cancelInput := context.WithCancel(ctx)

		watchDone := make(chan watchResult, 1)
		go func() {
			outcome, err := watch(watchCtx, RunOptions{
				QuietInterrupt: true,
				Activity:       activity,
			})
			watchDone <- watchResult{outcome: outcome, err: err}
		}()

		inputDone := make(chan inputResult, 1)
		go func() {
			line, err := in.ReadLine(inputCtx, followUpPrompt)
			inputDone <- inputResult{line: line, err: err}
		}()

		select {
		case res := <-inputDone:
			// Operator typed first: stop the round, then act on the line.
			cancelWatch()
			<-watchDone
			cancelInput()

			if res.err != nil {
				// Nothing cancels inputCtx in this branch, so a
				// Canceled read means the parent context died.
				if errors.Is(res.err, context.Canceled) {
					return ctx.Err()
				}
				// Interrupt or end-of-input ends the loop.
				return nil
			}
			quit, err := handleFollowUp(ctx, res.line, watch, send, errw)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}

		case <-activity.Done():
			// Server output wins: free the terminal before the round
			// prints or prompts, then let it finish naturally.
			cancelInput()
			<-inputDone
			res := <-watchDone
			cancelWatch()
			if res.err != nil && !errors.Is(res.err, ErrInterrupted) {
				return res.err
			}

		case res := <-watchDone:
			cancelInput()
			<-inputDone
			cancelWatch()
			if res.err != nil && !errors.Is(res.err, ErrInterrupted) {
				return res.err
			}
		}
	}
}

// handleFollowUp processes one submitted line. Returns quit=true when
// the operator asked to leave the loop.
func handleFollowUp(ctx context.Context, line string, watch RunFunc, send SendFunc, errw io.Writer) (bool, error) {
	switch line {
	case "":
		return false, nil
	case "/help", "?":
		fmt.Fprintln(errw, "  /exit, /quit, /q  - quit")
		fmt.Fprintln(errw, "  /help, ?          - show this help")
		return false, nil
	case "/exit", "/quit", "/q", "q", "exit":
		return true, nil
	}

	fmt.Fprintln(errw, strings.Repeat("─", 40))
	if err := send(ctx, line); err != nil {
		return false, fmt.Errorf("send follow-up: %w", err)
	}

	// Non-preemptible round: runs to completion, interrupts notify the
	// server and are reported.
	_, err := watch(ctx, RunOptions{NotifyInterrupt: true})
	if err != nil && !errors.Is(err, ErrInterrupted) {
		return false, err
	}
	return false, nil
}
