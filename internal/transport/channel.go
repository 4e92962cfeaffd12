// ABOUTME: Reconnecting websocket chat channel exchanging JSON frames with the server
// ABOUTME: Exposes readiness, Send, and an ordered inbound frame stream

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/chatline/internal/chat"
)

var (
	// ErrNotReady is returned by Send while no connection is up.
	ErrNotReady = errors.New("chat channel not ready")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("chat channel closed")
)

const (
	defaultReconnectDelay    = 500 * time.Millisecond
	defaultMaxReconnectDelay = 30 * time.Second
	defaultBuffer            = 64
	readLimit                = 1 << 20
)

// Options configures a Channel.
type Options struct {
	// Header is sent with every dial, e.g. Authorization.
	Header http.Header
	// ReconnectDelay is the first wait after a failed dial; it doubles up
	// to MaxReconnectDelay and resets after a successful connect.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// Buffer is the capacity of the Frames channel.
	Buffer int
	Logger *slog.Logger
}

// Channel is a reconnecting websocket chat channel. It is safe for
// concurrent use.
type Channel struct {
	url    string
	opts   Options
	logger *slog.Logger
	frames chan chat.Frame

	mu     sync.Mutex
	conn   *websocket.Conn
	ready  chan struct{} // closed while conn != nil
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Open starts a channel to url. The channel dials in the background; use
// WaitReady to block until the first connection is up. The channel stops
// when ctx is cancelled or Close is called.
func Open(ctx context.Context, url string, opts Options) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.MaxReconnectDelay < opts.ReconnectDelay {
		opts.MaxReconnectDelay = max(defaultMaxReconnectDelay, opts.ReconnectDelay)
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		url:    url,
		opts:   opts,
		logger: logger.With("component", "transport"),
		frames: make(chan chat.Frame, opts.Buffer),
		ready:  make(chan struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

// Frames returns the inbound frame stream. It is closed after the channel stops.
func (c *Channel) Frames() <-chan chat.Frame {
	return c.frames
}

// Ready reports whether a connection is currently up.
func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// WaitReady blocks until a connection is up, ctx is done, or the channel
// is closed.
func (c *Channel) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	ready, closed := c.ready, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case <-ready:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes f to the server.
func (c *Channel) Send(ctx context.Context, f chat.Frame) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotReady
	}
	if err := wsjson.Write(ctx, conn, f); err != nil {
		return fmt.Errorf("sending frame %s: %w", f.ID, err)
	}
	return nil
}

// Close stops the channel and waits for its goroutine to exit.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	<-c.done
	return nil
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.frames)

	delay := c.opts.ReconnectDelay
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			delay = c.opts.ReconnectDelay
			c.setConn(conn)
			c.logger.Info("chat channel connected", "url", c.url)
			err = c.readLoop(ctx, conn)
			c.setConn(nil)
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "client closing")
				return
			}
			conn.CloseNow()
			c.logger.Warn("chat channel disconnected", "error", err)
		} else if ctx.Err() == nil {
			c.logger.Debug("chat channel dial failed", "error", err, "retry_in", delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = min(delay*2, c.opts.MaxReconnectDelay)
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPHeader: c.opts.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", c.url, err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// setConn swaps the live connection and the readiness signal.
func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn != nil {
		c.conn = conn
		close(c.ready)
		return
	}
	if c.conn != nil {
		c.conn = nil
		c.ready = make(chan struct{})
	}
}

// readLoop delivers frames until the connection fails. Undecodable messages
// are logged and skipped.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			c.logger.Warn("ignoring binary message", "bytes", len(data))
			continue
		}

		var f chat.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("ignoring malformed frame", "error", err)
			continue
		}

		select {
		case c.frames <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
