package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/todoai/internal/approval"
	"github.com/joss/todoai/internal/config"
	"github.com/joss/todoai/internal/edge"
	"github.com/joss/todoai/internal/term"
	"github.com/joss/todoai/internal/watch"
)

// transport adapts the edge client to the session's Watcher interface.
type transport struct {
	c *edge.Client
}

func (t transport) Watch(ctx context.Context, todoID, projectID string, timeout time.Duration) (watch.EventStream, error) {
	return t.c.Watch(ctx, todoID, projectID, timeout)
}

func (t transport) SendInterrupt(ctx context.Context, todoID, projectID string) error {
	return t.c.SendInterrupt(ctx, todoID, projectID)
}

// wiring is everything a watch round needs, built once per command.
type wiring struct {
	client  *edge.Client
	reader  *term.Reader
	session *watch.Session
}

func (w *wiring) close() {
	w.client.Close()
	w.reader.Close()
}

func setup(ctx context.Context, todoID, projectID string, timeoutSec int, autoApprove bool) (*wiring, error) {
	cfg := config.Env()
	url := cfg.APIURL
	if apiURL != "" {
		url = apiURL
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("TODOAI_API_KEY is not set")
	}
	if projectID == "" {
		projectID = cfg.Project
	}

	client := edge.NewClient(url, cfg.APIKey, config.ClientID())
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	reader, err := term.NewReader()
	if err != nil {
		client.Close()
		return nil, err
	}
	paths := config.GetPaths()
	if config.EnsureDir(paths.Home) == nil {
		reader.SetHistoryPath(paths.History)
	}

	coord := approval.NewCoordinator(client, reader, autoApprove || cfg.AutoApprove)
	rules, err := approval.LoadRules(paths.Approvals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring %s: %v\n", paths.Approvals, err)
	} else {
		coord.SetRules(rules)
	}

	timeout := time.Duration(timeoutSec) * time.Second
	session := watch.NewSession(transport{client}, coord, todoID, projectID, timeout)

	return &wiring{client: client, reader: reader, session: session}, nil
}

func watchCmd() *cobra.Command {
	var projectID string
	var timeoutSec int
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "watch <todo-id>",
		Short: "Watch a todo's execution until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := setup(ctx, args[0], projectID, timeoutSec, autoApprove)
			if err != nil {
				return err
			}
			defer w.close()

			_, err = w.session.Run(ctx, watch.RunOptions{NotifyInterrupt: true})
			if errors.Is(err, watch.ErrInterrupted) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project identifier (default TODOAI_PROJECT)")
	cmd.Flags().IntVarP(&timeoutSec, "timeout", "t", 900, "Watch timeout in seconds")
	cmd.Flags().BoolVarP(&autoApprove, "auto-approve", "y", false, "Approve all pending actions without prompting")
	return cmd
}

func resumeCmd() *cobra.Command {
	var projectID string
	var timeoutSec int
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "resume <todo-id>",
		Short: "Watch a todo interactively, sending follow-ups between rounds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			todoID := args[0]
			w, err := setup(ctx, todoID, projectID, timeoutSec, autoApprove)
			if err != nil {
				return err
			}
			defer w.close()

			fmt.Fprintln(os.Stderr, strings.Repeat("─", 40))
			fmt.Fprintf(os.Stderr, "Resumed todo: %s\n", todoID)

			send := func(ctx context.Context, content string) error {
				return w.client.SendFollowUp(ctx, todoID, content)
			}
			return watch.Interactive(ctx, w.session.Run, send, w.reader, os.Stderr)
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project identifier (default TODOAI_PROJECT)")
	cmd.Flags().IntVarP(&timeoutSec, "timeout", "t", 900, "Watch timeout in seconds")
	cmd.Flags().BoolVarP(&autoApprove, "auto-approve", "y", false, "Approve all pending actions without prompting")
	return cmd
}
