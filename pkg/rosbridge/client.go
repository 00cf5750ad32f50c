// Package rosbridge talks to a ROS 2 robot through a rosbridge_server
// websocket using the JSON v2 protocol.
package rosbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-pupper/internal/log"
)

// DefaultURL is rosbridge_server's default listen address.
const DefaultURL = "ws://localhost:9090"

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 2 * time.Second
)

// Handler receives the raw msg field of a topic publication. Handlers run
// on the read goroutine and must not block.
type Handler func(msg json.RawMessage)

// Client is one rosbridge connection. Writes are serialized; reads happen
// on a single goroutine started by Dial.
type Client struct {
	url    string
	ws     *websocket.Conn
	wsMu   sync.Mutex
	logger *slog.Logger

	mu         sync.RWMutex
	handlers   map[string]Handler
	advertised map[string]string

	done    chan struct{}
	errOnce sync.Once
	err     error
}

// Dial connects to url (e.g. ws://pupper.local:9090) and starts reading.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rosbridge at %s: %w", url, err)
	}

	c := &Client{
		url:        url,
		ws:         ws,
		logger:     log.Component("rosbridge").With("url", url),
		handlers:   make(map[string]Handler),
		advertised: make(map[string]string),
		done:       make(chan struct{}),
	}
	go c.readLoop()

	c.logger.Info("connected to rosbridge")
	return c, nil
}

// Advertise announces that this client publishes msgType on topic.
// Repeated calls for the same topic are no-ops.
func (c *Client) Advertise(topic, msgType string) error {
	c.mu.Lock()
	if _, ok := c.advertised[topic]; ok {
		c.mu.Unlock()
		return nil
	}
	c.advertised[topic] = msgType
	c.mu.Unlock()

	return c.send(context.Background(), envelope{Op: "advertise", ID: opID("advertise"), Topic: topic, Type: msgType})
}

// Publish sends msg on topic. The topic should be advertised first.
func (c *Client) Publish(ctx context.Context, topic string, msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return c.send(ctx, envelope{Op: "publish", Topic: topic, Msg: raw})
}

// Subscribe registers h for topic and asks the server to forward it.
// A second subscription to the same topic replaces the handler.
func (c *Client) Subscribe(topic, msgType string, h Handler) error {
	c.mu.Lock()
	c.handlers[topic] = h
	c.mu.Unlock()

	return c.send(context.Background(), envelope{
		Op: "subscribe", ID: opID("subscribe"), Topic: topic, Type: msgType, QueueLength: 1,
	})
}

// Unsubscribe stops forwarding topic.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.handlers, topic)
	c.mu.Unlock()

	return c.send(context.Background(), envelope{Op: "unsubscribe", Topic: topic})
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close unadvertises published topics and closes the connection.
func (c *Client) Close() error {
	c.mu.RLock()
	topics := make([]string, 0, len(c.advertised))
	for t := range c.advertised {
		topics = append(topics, t)
	}
	c.mu.RUnlock()

	var errs []error
	for _, t := range topics {
		if err := c.send(context.Background(), envelope{Op: "unadvertise", Topic: t}); err != nil {
			errs = append(errs, fmt.Errorf("unadvertise %s: %w", t, err))
		}
	}

	c.wsMu.Lock()
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wsMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		errs = append(errs, fmt.Errorf("close frame: %w", err))
	}

	c.fail(ErrClosed)
	if err := c.ws.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Client) send(ctx context.Context, env envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(env); err != nil {
		return fmt.Errorf("rosbridge %s: %w", env.Op, err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		var env envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			c.fail(fmt.Errorf("%w: %w", ErrClosed, err))
			return
		}

		switch env.Op {
		case "publish":
			c.mu.RLock()
			h := c.handlers[env.Topic]
			c.mu.RUnlock()
			if h != nil {
				h(env.Msg)
			}
		case "status":
			c.logger.Warn("rosbridge status", "level", env.Level, "id", env.ID, "msg", string(env.Msg))
		default:
			c.logger.Debug("ignoring rosbridge op", "op", env.Op)
		}
	}
}

func (c *Client) fail(err error) {
	c.errOnce.Do(func() {
		c.err = err
		close(c.done)
		if err != ErrClosed {
			c.logger.Warn("rosbridge connection lost", "error", err)
		}
	})
}

func opID(op string) string {
	return op + ":" + uuid.NewString()[:8]
}
