// Package assistant is the client side of the course assistant chat.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	gonanoid "github.com/matoous/go-nanoid"
)

// ErrNotConnected is returned by operations that need an open connection.
var ErrNotConnected = errors.New("assistant not connected")

const (
	idLength      = 16
	defaultBuffer = 32
)

// State is the connection state. Only Open and Close change it.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message. Outgoing messages get their ID and Seq from
// the client.
type Message struct {
	ID       string    `json:"id"`
	Seq      uint64    `json:"seq"`
	Role     string    `json:"role"`
	Text     string    `json:"text"`
	CourseID string    `json:"course_id,omitempty"`
	ModuleID string    `json:"module_id,omitempty"`
	LessonID string    `json:"lesson_id,omitempty"`
	ReplyTo  string    `json:"reply_to,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

// Client is a websocket connection to the assistant service.
type Client struct {
	url    string
	header http.Header
	buffer int

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	cancel   context.CancelFunc
	seq      uint64
	incoming chan Message
	pending  map[string]chan Message
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential when connecting.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithBuffer sets how many unsolicited messages are buffered. Messages
// arriving while the buffer is full are dropped.
func WithBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// New creates a disconnected client for the service at url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:     url,
		header:  http.Header{},
		buffer:  defaultBuffer,
		pending: make(map[string]chan Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetToken replaces the bearer credential used by the next Open. An open
// connection keeps the credential it was opened with.
func (c *Client) SetToken(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header.Set("Authorization", "Bearer "+token)
}

// Open connects to the service. Opening a connected client is a no-op.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Connected {
		return nil
	}

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: c.header})
	if err != nil {
		return fmt.Errorf("connecting to assistant: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.state = Connected
	c.incoming = make(chan Message, c.buffer)
	go c.readLoop(readCtx, conn, c.incoming)

	slog.Debug("assistant connected", "url", c.url)
	return nil
}

// Close disconnects. Closing a disconnected client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == Disconnected {
		c.mu.Unlock()
		return nil
	}
	conn, cancel := c.conn, c.cancel
	c.state = Disconnected
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	err := conn.Close(websocket.StatusNormalClosure, "")
	if err != nil {
		slog.Debug("assistant close handshake incomplete", "error", err)
	}
	return nil
}

// Messages returns the unsolicited messages of the current connection in
// arrival order. The channel is closed when the connection ends.
func (c *Client) Messages() <-chan Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.incoming
}

// Send stamps msg with the next sequence number and a fresh ID and writes it.
func (c *Client) Send(ctx context.Context, msg Message) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(ctx, msg)
}

// Ask sends msg and waits for the reply whose ReplyTo matches it.
func (c *Client) Ask(ctx context.Context, msg Message) (Message, error) {
	c.mu.Lock()
	sent, err := c.sendLocked(ctx, msg)
	if err != nil {
		c.mu.Unlock()
		return Message{}, err
	}
	reply := make(chan Message, 1)
	c.pending[sent.ID] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, sent.ID)
		c.mu.Unlock()
	}()

	select {
	case m, ok := <-reply:
		if !ok {
			return Message{}, ErrNotConnected
		}
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *Client) sendLocked(ctx context.Context, msg Message) (Message, error) {
	if c.state != Connected {
		return Message{}, ErrNotConnected
	}

	id, err := gonanoid.Nanoid(idLength)
	if err != nil {
		return Message{}, fmt.Errorf("generating message id: %w", err)
	}
	c.seq++
	msg.ID = id
	msg.Seq = c.seq
	if msg.Role == "" {
		msg.Role = RoleUser
	}
	msg.SentAt = time.Now().UTC()

	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return Message{}, fmt.Errorf("sending assistant message: %w", err)
	}
	return msg, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, incoming chan Message) {
	defer func() {
		close(incoming)
		c.mu.Lock()
		if c.conn == nil || c.conn == conn {
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
		}
		c.mu.Unlock()
	}()

	for {
		var m Message
		if err := wsjson.Read(ctx, conn, &m); err != nil {
			if ctx.Err() == nil {
				slog.Warn("assistant connection lost", "error", err)
			}
			return
		}

		c.mu.Lock()
		waiter, ok := c.pending[m.ReplyTo]
		if ok {
			delete(c.pending, m.ReplyTo)
		}
		c.mu.Unlock()
		if ok {
			waiter <- m
			continue
		}

		// Replies must keep flowing when nobody drains Messages.
		select {
		case incoming <- m:
		default:
			slog.Warn("assistant message dropped, buffer full", "id", m.ID)
		}
	}
}
