package watch

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/todoai/internal/stream"
)

// seqReader scripts successive ReadLine calls.
type seqReader struct {
	mu    sync.Mutex
	n     int
	steps []func(ctx context.Context) (string, error)
}

func (r *seqReader) ReadLine(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	i := r.n
	r.n++
	r.mu.Unlock()
	if i >= len(r.steps) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.steps[i](ctx)
}

func line(s string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return s, nil }
}

func blockUntilCancelled(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// roundRecorder is a scripted RunFunc: preemptible rounds (those given
// an activity signal) block until cancelled; follow-up rounds complete
// immediately.
type roundRecorder struct {
	mu    sync.Mutex
	opts  []RunOptions
	hook  func(ctx context.Context, opts RunOptions)
}

func (r *roundRecorder) run(ctx context.Context, opts RunOptions) (stream.Outcome, error) {
	r.mu.Lock()
	r.opts = append(r.opts, opts)
	r.mu.Unlock()
	if r.hook != nil {
		r.hook(ctx, opts)
	}
	if opts.Activity != nil {
		<-ctx.Done()
		return stream.Outcome{}, ErrInterrupted
	}
	return stream.Outcome{Success: true}, nil
}

func (r *roundRecorder) recorded() []RunOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunOptions(nil), r.opts...)
}

func TestInteractiveFollowUpRoundTrip(t *testing.T) {
	rounds := &roundRecorder{}
	var sent []string
	send := func(ctx context.Context, content string) error {
		sent = append(sent, content)
		return nil
	}
	in := &seqReader{steps: []func(context.Context) (string, error){
		line("continue"),
		line("/q"),
	}}

	err := Interactive(context.Background(), rounds.run, send, in, io.Discard)
	require.NoError(t, err)

	// Follow-up sent exactly once, then one non-preemptible round ran.
	assert.Equal(t, []string{"continue"}, sent)

	opts := rounds.recorded()
	require.Len(t, opts, 3)
	assert.NotNil(t, opts[0].Activity)
	assert.True(t, opts[0].QuietInterrupt)
	assert.Nil(t, opts[1].Activity)
	assert.True(t, opts[1].NotifyInterrupt)
	assert.NotNil(t, opts[2].Activity)
}

func TestInteractiveActivityPreemptsInput(t *testing.T) {
	inputCancelled := make(chan struct{})

	in := &seqReader{steps: []func(context.Context) (string, error){
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			close(inputCancelled)
			return "", ctx.Err()
		},
		line("/q"),
	}}

	rounds := &roundRecorder{}
	rounds.hook = func(ctx context.Context, opts RunOptions) {
		if opts.Activity == nil {
			return
		}
		opts.Activity.Set()
		// The round only finishes once the input prompt has been
		// cancelled: if the loop failed to free the terminal first,
		// this would deadlock and the test would time out.
		select {
		case <-inputCancelled:
		case <-time.After(2 * time.Second):
		}
	}
	// First preemptible round must complete normally after activity, not
	// wait for ctx cancellation.
	runFn := func(ctx context.Context, opts RunOptions) (stream.Outcome, error) {
		rounds.mu.Lock()
		rounds.opts = append(rounds.opts, opts)
		first := len(rounds.opts) == 1
		rounds.mu.Unlock()
		if first {
			rounds.hook(ctx, opts)
			return stream.Outcome{Success: true}, nil
		}
		if opts.Activity != nil {
			<-ctx.Done()
			return stream.Outcome{}, ErrInterrupted
		}
		return stream.Outcome{Success: true}, nil
	}

	err := Interactive(context.Background(), runFn, func(context.Context, string) error { return nil }, in, io.Discard)
	require.NoError(t, err)

	select {
	case <-inputCancelled:
	default:
		t.Fatal("input prompt was never cancelled by server activity")
	}
}

func TestInteractiveHelpAndQuit(t *testing.T) {
	rounds := &roundRecorder{}
	sent := 0
	send := func(context.Context, string) error { sent++; return nil }
	in := &seqReader{steps: []func(context.Context) (string, error){
		line("/help"),
		line("/exit"),
	}}

	var errw bytes.Buffer
	err := Interactive(context.Background(), rounds.run, send, in, &errw)
	require.NoError(t, err)

	assert.Contains(t, errw.String(), "/exit, /quit, /q")
	assert.Zero(t, sent)
}

func TestInteractiveQuitAliases(t *testing.T) {
	for _, quit := range []string{"/exit", "/quit", "/q", "q", "exit"} {
		rounds := &roundRecorder{}
		in := &seqReader{steps: []func(context.Context) (string, error){line(quit)}}
		err := Interactive(context.Background(), rounds.run, func(context.Context, string) error { return nil }, in, io.Discard)
		require.NoError(t, err, "quit alias %q", quit)
	}
}

func TestInteractiveEmptyLineLoops(t *testing.T) {
	rounds := &roundRecorder{}
	in := &seqReader{steps: []func(context.Context) (string, error){
		line(""),
		line("/q"),
	}}

	err := Interactive(context.Background(), rounds.run, func(context.Context, string) error { return nil }, in, io.Discard)
	require.NoError(t, err)

	// Two preemptible rounds, no follow-up round.
	opts := rounds.recorded()
	require.Len(t, opts, 2)
	assert.NotNil(t, opts[0].Activity)
	assert.NotNil(t, opts[1].Activity)
}

func TestInteractivePreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rounds := &roundRecorder{}
	in := &seqReader{}

	err := Interactive(ctx, rounds.run, func(context.Context, string) error { return nil }, in, io.Discard)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rounds.recorded())
}

func TestInteractiveParentCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Both racers block until their contexts die, so only parent
	// cancellation can make progress here.
	rounds := &roundRecorder{}
	in := &seqReader{steps: []func(context.Context) (string, error){
		blockUntilCancelled,
	}}

	done := make(chan error, 1)
	go func() {
		done <- Interactive(ctx, rounds.run, func(context.Context, string) error { return nil }, in, io.Discard)
	}()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after parent context cancellation")
	}
	// The cancelled round must not have spun up replacements.
	assert.LessOrEqual(t, len(rounds.recorded()), 1)
}

func TestInteractiveEndOfInputExits(t *testing.T) {
	rounds := &roundRecorder{}
	in := &seqReader{steps: []func(context.Context) (string, error){
		func(context.Context) (string, error) { return "", io.EOF },
	}}

	err := Interactive(context.Background(), rounds.run, func(context.Context, string) error { return nil }, in, io.Discard)
	require.NoError(t, err)
}
