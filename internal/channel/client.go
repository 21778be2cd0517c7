// Package channel is the duplex text chat connection to the backend.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voicecall/internal/domain"
)

var (
	ErrNotConnected = errors.New("chat channel is not connected")
	ErrClosed       = errors.New("chat channel closed")
	ErrRejected     = errors.New("chat channel rejected the session")
)

const (
	eventMessage  = "message"
	eventResponse = "response"

	writeTimeout = 10 * time.Second
)

// Config controls the chat channel connection.
type Config struct {
	URL             string
	Header          http.Header
	Dialer          *websocket.Dialer
	MaxRetries      uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outgoing struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Client keeps one websocket open and reconnects with exponential backoff
// when the connection drops.
type Client struct {
	cfg       Config
	responses chan domain.ChatResponse
	done      chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	writeMu sync.Mutex
}

func New(cfg Config) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	return &Client{
		cfg:       cfg,
		responses: make(chan domain.ChatResponse, 16),
		done:      make(chan struct{}),
	}
}

// ChannelURL maps an http(s) backend root onto the websocket endpoint at path.
func ChannelURL(base *url.URL, path string) (string, error) {
	if base == nil {
		return "", errors.New("missing backend URL")
	}
	u := *base
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported backend URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}

// Responses delivers server pushes. It is closed when Run returns.
func (c *Client) Responses() <-chan domain.ChatResponse {
	return c.responses
}

// Run connects and reads until ctx is done or Close is called. Failed rounds
// of dialing are retried after MaxInterval; only a rejected session is final.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.responses)
	defer c.drop()

	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if c.isClosed() {
				return nil
			}
			if errors.Is(err, ErrRejected) {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Warn("Chat channel unreachable, retrying", "err", err, "in", c.cfg.MaxInterval)
			if err := c.pause(ctx); err != nil {
				if c.isClosed() {
					return nil
				}
				return err
			}
			continue
		}

		err = c.read(ctx, conn)
		if c.isClosed() {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Warn("Chat channel dropped, reconnecting", "err", err)
	}
}

// Send writes one chat message and returns the client message id.
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("chat message is empty")
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return "", ErrNotConnected
	}

	id := uuid.NewString()
	data, err := json.Marshal(outgoing{ID: id, Message: message})
	if err != nil {
		return "", fmt.Errorf("encode chat message: %w", err)
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(frame{Event: eventMessage, Data: data}); err != nil {
		return "", fmt.Errorf("send chat message: %w", err)
	}
	return id, nil
}

// Ask sends message and waits for the next server response. It competes with
// other readers of Responses.
func (c *Client) Ask(ctx context.Context, message string) (domain.ChatResponse, error) {
	if _, err := c.Send(ctx, message); err != nil {
		return domain.ChatResponse{}, err
	}
	select {
	case <-ctx.Done():
		return domain.ChatResponse{}, ctx.Err()
	case resp, ok := <-c.responses:
		if !ok {
			return domain.ChatResponse{}, ErrClosed
		}
		return resp, nil
	}
}

// Connected reports whether a websocket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialInterval
	policy.MaxInterval = c.cfg.MaxInterval

	attempt := 0
	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		attempt++
		if c.isClosed() {
			return nil, backoff.Permanent(ErrClosed)
		}
		conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return nil, backoff.Permanent(fmt.Errorf("%w (status %d)", ErrRejected, resp.StatusCode))
			}
			slog.Debug("Chat channel dial failed", "attempt", attempt, "err", err)
			return nil, err
		}
		return conn, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.cfg.MaxRetries))
	if err != nil {
		return nil, fmt.Errorf("connect chat channel: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()
	slog.Info("Chat channel connected", "url", c.cfg.URL)
	return conn, nil
}

func (c *Client) pause(ctx context.Context) error {
	timer := time.NewTimer(c.cfg.MaxInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case <-timer.C:
		return nil
	}
}

func (c *Client) read(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer c.release(conn)

	for {
		var msg frame
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Event != eventResponse {
			continue
		}

		var resp domain.ChatResponse
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			slog.Warn("Dropping malformed chat response", "err", err)
			continue
		}
		select {
		case c.responses <- resp:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) release(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Client) drop() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
