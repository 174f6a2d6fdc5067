// Package edge is the websocket transport to the todo execution service.
package edge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/joss/todoai/internal/logging"
	"github.com/joss/todoai/internal/stream"
)

// Envelope wraps every wire message. Events arrive with Type as the
// event kind; outbound intents use the message types below.
type Envelope struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Timestamp string         `json:"ts"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Outbound message types.
const (
	MsgWatchTodo      = "TODO_WATCH"
	MsgUnwatchTodo    = "TODO_UNWATCH"
	MsgInterruptTodo  = "TODO_INTERRUPT"
	MsgAddMessage     = "MSG_ADD"
	MsgApprovalIntent = "BLOCK_APPROVAL_INTENT"
	MsgBlockDeny      = "BLOCK_DENY"
)

func newEnvelope(msgType string, payload map[string]any) *Envelope {
	return &Envelope{
		Type:      msgType,
		ID:        ulid.Make().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// Client is a websocket edge client. One read loop preserves server
// delivery order; writes are serialized.
type Client struct {
	apiURL   string
	apiKey   string
	clientID string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	streams map[string]*TodoStream
	closed  bool

	log *logging.Logger
}

// NewClient creates a client for the given endpoint.
func NewClient(apiURL, apiKey, clientID string) *Client {
	return &Client{
		apiURL:   apiURL,
		apiKey:   apiKey,
		clientID: clientID,
		streams:  make(map[string]*TodoStream),
		log:      logging.New("edge"),
	}
}

// Connect dials the service and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)
	header.Set("X-Client-ID", c.clientID)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.apiURL, header)
	if err != nil {
		if resp != nil {
			return &StreamError{Op: "dial " + c.apiURL, Err: err}
		}
		return &StreamError{Op: "dial", Err: err}
	}
	c.conn = conn

	c.log.Info("connected", map[string]any{"url": c.apiURL})
	go c.readLoop()
	return nil
}

// Close shuts the connection down. Active streams fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	streams := c.activeStreamsLocked()
	c.mu.Unlock()

	for _, ts := range streams {
		ts.fail(ErrClosed)
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) activeStreamsLocked() []*TodoStream {
	out := make([]*TodoStream, 0, len(c.streams))
	for _, ts := range c.streams {
		out = append(out, ts)
	}
	return out
}

// readLoop decodes envelopes and routes them to the watching stream.
// Events for a todo are delivered strictly in arrival order.
func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.failAll(&StreamError{Op: "read", Err: err})
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("bad_envelope", map[string]any{"bytes": len(data)}, err)
			continue
		}

		todoID, _ := env.Payload["todoId"].(string)
		c.mu.Lock()
		ts := c.streams[todoID]
		c.mu.Unlock()
		if ts == nil {
			continue
		}
		ts.deliver(stream.Event{Kind: env.Type, Payload: env.Payload})
	}
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	streams := c.activeStreamsLocked()
	c.closed = true
	c.mu.Unlock()
	for _, ts := range streams {
		ts.fail(err)
	}
}

func (c *Client) send(env *Envelope) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// Watch subscribes to a todo's events. The stream closes on terminal
// event, stream error, timeout, or context cancellation. Only one
// stream per todo may be active.
func (c *Client) Watch(ctx context.Context, todoID, projectID string, timeout time.Duration) (*TodoStream, error) {
	ts := newTodoStream()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if _, exists := c.streams[todoID]; exists {
		c.mu.Unlock()
		return nil, &StreamError{Op: "watch " + todoID, Err: errAlreadyWatching}
	}
	c.streams[todoID] = ts
	c.mu.Unlock()

	err := c.send(newEnvelope(MsgWatchTodo, map[string]any{
		"todoId":    todoID,
		"projectId": projectID,
		"edgeId":    c.clientID,
	}))
	if err != nil {
		c.dropStream(todoID)
		return nil, &StreamError{Op: "subscribe", Err: err}
	}

	timer := time.AfterFunc(timeout, func() { ts.fail(ErrTimeout) })
	go func() {
		select {
		case <-ctx.Done():
			ts.fail(ctx.Err())
		case <-ts.done:
		}
	}()
	go func() {
		ts.pump()
		timer.Stop()
		c.dropStream(todoID)
		c.send(newEnvelope(MsgUnwatchTodo, map[string]any{"todoId": todoID}))
		close(ts.events)
	}()

	return ts, nil
}

func (c *Client) dropStream(todoID string) {
	c.mu.Lock()
	delete(c.streams, todoID)
	c.mu.Unlock()
}

// SendApproval sends one allow_once approval for a block.
func (c *Client) SendApproval(ctx context.Context, todoID, messageID, blockID string) error {
	return c.send(newEnvelope(MsgApprovalIntent, map[string]any{
		"todoId":    todoID,
		"messageId": messageID,
		"blockId":   blockID,
		"decision":  "allow_once",
	}))
}

// SendDenial sends one denial for a block.
func (c *Client) SendDenial(ctx context.Context, todoID, messageID, blockID string) error {
	return c.send(newEnvelope(MsgBlockDeny, map[string]any{
		"todoId":    todoID,
		"messageId": messageID,
		"blockId":   blockID,
	}))
}

// SendFollowUp delivers operator-authored content to a running todo.
func (c *Client) SendFollowUp(ctx context.Context, todoID, content string) error {
	return c.send(newEnvelope(MsgAddMessage, map[string]any{
		"todoId":  todoID,
		"content": content,
	}))
}

// SendInterrupt asks the server to stop the todo.
func (c *Client) SendInterrupt(ctx context.Context, todoID, projectID string) error {
	return c.send(newEnvelope(MsgInterruptTodo, map[string]any{
		"todoId":    todoID,
		"projectId": projectID,
	}))
}
