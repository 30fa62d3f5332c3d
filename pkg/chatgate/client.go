// Package chatgate is a websocket client for the chat gateway sidecar,
// which bridges this process onto the bot network. Frames are JSON: the
// client sends {"type":"send",...} and receives {"type":"message",...}
// events for every inbound chat message on the account.
package chatgate

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tracewire/tracewire/internal/chat"
)

const (
	frameSend    = "send"
	frameMessage = "message"

	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	inboundBacklog = 64
)

// frame is the wire format in both directions.
type frame struct {
	Type      string `json:"type"`
	Recipient string `json:"recipient,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token presented on the handshake.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithDialer overrides the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client implements chat.Transport over a gateway websocket.
type Client struct {
	url    string
	token  string
	dialer *websocket.Dialer

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	msgs    chan chat.Message
	done    chan struct{}
}

// New creates a gateway client for the given websocket URL.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect dials the gateway and starts the read pump.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return eris.New("chatgate: already connected")
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return eris.Wrapf(err, "chatgate: dial %s (status %d)", c.url, resp.StatusCode)
		}
		return eris.Wrapf(err, "chatgate: dial %s", c.url)
	}

	c.conn = conn
	c.msgs = make(chan chat.Message, inboundBacklog)
	c.done = make(chan struct{})
	go c.readPump(conn, c.msgs, c.done)
	go c.pingLoop(conn, c.done)

	zap.L().Info("chatgate: connected", zap.String("url", c.url))
	return nil
}

// Disconnect closes the connection; the inbound channel closes once the
// read pump drains.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}

	deadline := time.Now().Add(writeTimeout)
	c.writeMu.Lock()
	//nolint:errcheck
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.conn = nil
	return eris.Wrap(err, "chatgate: close")
}

// Send relays text to the named recipient through the gateway.
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return eris.New("chatgate: not connected")
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return eris.Wrap(err, "chatgate: set write deadline")
	}
	if err := conn.WriteJSON(frame{Type: frameSend, Recipient: recipient, Text: text}); err != nil {
		return eris.Wrapf(err, "chatgate: send to %s", recipient)
	}
	return nil
}

// Messages returns the inbound event stream.
func (c *Client) Messages() <-chan chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs
}

// Connected reports whether the read pump is still running.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Client) readPump(conn *websocket.Conn, msgs chan chat.Message, done chan struct{}) {
	defer close(done)
	defer close(msgs)

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Warn("chatgate: read failed", zap.Error(err))
			}
			return
		}
		if f.Type != frameMessage {
			continue
		}
		msgs <- chat.Message{
			Sender:     f.Sender,
			Text:       f.Text,
			ReceivedAt: time.Now().UTC(),
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
