// Package approval collects operator decisions for blocks awaiting approval.
package approval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/joss/todoai/internal/logging"
	"github.com/joss/todoai/internal/stream"
)

// Sender delivers approval dispositions to the transport.
type Sender interface {
	// SendApproval sends one allow_once approval for a block.
	SendApproval(ctx context.Context, todoID, messageID, blockID string) error

	// SendDenial sends one denial for a block.
	SendDenial(ctx context.Context, todoID, messageID, blockID string) error
}

// KeyReader collects a single keypress from the operator.
type KeyReader interface {
	ReadKey(ctx context.Context, prompt string) (byte, error)
}

// Coordinator resolves batches of blocks awaiting operator approval.
//
// The approve-all flag is the only long-lived mutable state: once set by
// operator choice it persists for the rest of the run and is never unset
// by a deny.
type Coordinator struct {
	sender Sender
	keys   KeyReader
	rules  Rules
	log    *logging.Logger
	errw   io.Writer

	approveAll bool
}

// NewCoordinator creates a coordinator. approveAll is the caller's
// session-start policy (auto-approve configuration).
func NewCoordinator(sender Sender, keys KeyReader, approveAll bool) *Coordinator {
	return &Coordinator{
		sender:     sender,
		keys:       keys,
		log:        logging.New("approval"),
		errw:       os.Stderr,
		approveAll: approveAll,
	}
}

// SetRules installs auto-allow rules.
func (c *Coordinator) SetRules(r Rules) { c.rules = r }

// SetOutput redirects prompt output (for testing).
func (c *Coordinator) SetOutput(w io.Writer) { c.errw = w }

// SetLogger replaces the audit logger (for testing).
func (c *Coordinator) SetLogger(l *logging.Logger) { c.log = l }

// ApproveAll reports the current approve-all state.
func (c *Coordinator) ApproveAll() bool { return c.approveAll }

var (
	warnColor = color.New(color.FgYellow)
	denyColor = color.New(color.FgRed)
	hintColor = color.New(color.FgCyan)
)

// Resolve gives every block in the batch exactly one disposition. If the
// decision prompt is cancelled, the batch is dropped unresolved and the
// transport re-requests approval on its own schedule. The prompt must
// never stall stream consumption.
func (c *Coordinator) Resolve(ctx context.Context, todoID string, batch []stream.BlockInfo) error {
	if len(batch) == 0 {
		return nil
	}

	if c.approveAll {
		return c.approveSilently(ctx, todoID, batch, "approve_all")
	}

	pending := make([]stream.BlockInfo, 0, len(batch))
	for _, bi := range batch {
		if pattern, ok := c.rules.Match(bi); ok {
			if err := c.approveOne(ctx, todoID, bi, "rule", pattern); err != nil {
				return err
			}
			continue
		}
		pending = append(pending, bi)
	}
	if len(pending) == 0 {
		return nil
	}

	warnColor.Fprintf(c.errw, "\n⚠ %d action(s) awaiting approval:\n", len(pending))
	for _, bi := range pending {
		label, display := stream.BlockDisplay(bi)
		fmt.Fprintf(c.errw, "  [%s] %s\n", label, display)
		if installs := bi.ToolInstalls(); len(installs) > 0 {
			hintColor.Fprintf(c.errw, "  ↳ Install tools: %s\n", strings.Join(installs, ", "))
		}
	}

	key, err := c.keys.ReadKey(ctx, "  [Y]es / [n]o / [a]ll? ")
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintln(c.errw, "\n  (approval prompt cancelled, skipping)")
			return nil
		}
		// Interrupt or end-of-input while prompting means deny.
		key = 'n'
	}

	switch key {
	case 'a', 'A':
		c.approveAll = true
		c.log.Info("approve_all_enabled", nil)
		fallthrough
	case 'y', 'Y', '\r', '\n', 0:
		for _, bi := range pending {
			if err := c.approveOne(ctx, todoID, bi, "operator", ""); err != nil {
				return err
			}
		}
	default:
		for _, bi := range pending {
			if err := c.sender.SendDenial(ctx, todoID, bi.MessageID, bi.BlockID); err != nil {
				return fmt.Errorf("send denial: %w", err)
			}
			c.log.Info("block_denied", map[string]any{"block": bi.BlockID})
		}
		denyColor.Fprintln(c.errw, "  ✗ Denied")
	}
	return nil
}

func (c *Coordinator) approveSilently(ctx context.Context, todoID string, batch []stream.BlockInfo, source string) error {
	for _, bi := range batch {
		label, display := stream.BlockDisplay(bi)
		warnColor.Fprintf(c.errw, "\n⚠ Auto-approving [%s]", label)
		fmt.Fprintf(c.errw, " %s\n", display)
		if err := c.approveOne(ctx, todoID, bi, source, ""); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) approveOne(ctx context.Context, todoID string, bi stream.BlockInfo, source, pattern string) error {
	if err := c.sender.SendApproval(ctx, todoID, bi.MessageID, bi.BlockID); err != nil {
		return fmt.Errorf("send approval: %w", err)
	}
	extra := map[string]any{"block": bi.BlockID, "source": source}
	if pattern != "" {
		extra["pattern"] = pattern
	}
	c.log.Info("block_approved", extra)
	return nil
}
