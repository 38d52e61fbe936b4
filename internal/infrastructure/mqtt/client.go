package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/carewatch-core/internal/infrastructure/config"
)

// Client is the radar gateway link. It keeps the set of telemetry
// subscriptions so they survive broker reconnects, and counts what the
// handlers did with each delivery.
//
// All methods are safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	mu           sync.RWMutex
	connected    bool
	onConnect    func()
	onDisconnect func(error)
	logger       Logger

	subMu sync.RWMutex
	subs  map[string]subscription

	received      atomic.Uint64
	handlerErrors atomic.Uint64
	panics        atomic.Uint64
}

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one telemetry message. It runs on a paho
// delivery goroutine, so it must return quickly. A returned error is
// logged and counted; the message is acknowledged either way.
type MessageHandler func(topic string, payload []byte) error

// Stats is a point-in-time view of the link.
type Stats struct {
	Connected     bool   `json:"connected"`
	Subscriptions int    `json:"subscriptions"`
	Received      uint64 `json:"messages_received"`
	HandlerErrors uint64 `json:"handler_errors"`
	Panics        uint64 `json:"handler_panics"`
}

// Connect dials the broker and waits for the first CONNACK, bounded by
// ctx and the connect timeout. A retained offline notice is registered
// as the last will, and paho reconnects on its own afterwards.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg, subs: make(map[string]subscription)}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })

	c.paho = pahomqtt.NewClient(opts)
	if err := waitToken(ctx, c.paho.Connect(), defaultConnectTimeout); err != nil {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg.Broker), err)
	}

	// The on-connect handler may not have run yet.
	c.setConnected(true)
	return c, nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// connectionUp runs after every (re)connect. Clean sessions lose their
// subscriptions, so they are all re-issued.
func (c *Client) connectionUp() {
	c.setConnected(true)

	c.subMu.RLock()
	for topic, sub := range c.subs {
		c.paho.Subscribe(topic, sub.qos, c.deliver(sub.handler))
	}
	c.subMu.RUnlock()

	c.announce(buildOnlinePayload(c.cfg.Broker.ClientID))

	c.mu.RLock()
	fn := c.onConnect
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) connectionDown(err error) {
	c.mu.Lock()
	c.connected = false
	fn, logger := c.onDisconnect, c.logger
	c.mu.Unlock()

	if logger != nil {
		logger.Warn("radar gateway link lost", "error", err)
	}
	if fn != nil {
		fn(err)
	}
}

// announce publishes core's retained presence. Failures are ignored; the
// last will covers the offline case.
func (c *Client) announce(payload string) {
	c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload).WaitTimeout(defaultPublishTimeout)
}

// Close announces a graceful shutdown and disconnects. It is a no-op on
// a nil or never-connected client.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(buildOfflinePayload(c.cfg.Broker.ClientID))
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known link state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	up := c.connected
	c.mu.RUnlock()
	return up && c.paho != nil && c.paho.IsConnected()
}

// Stats returns the link state and delivery counters.
func (c *Client) Stats() Stats {
	c.subMu.RLock()
	n := len(c.subs)
	c.subMu.RUnlock()

	return Stats{
		Connected:     c.IsConnected(),
		Subscriptions: n,
		Received:      c.received.Load(),
		HandlerErrors: c.handlerErrors.Load(),
		Panics:        c.panics.Load(),
	}
}

// SetOnConnect sets a callback for the initial connect and every reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback for connection loss.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for link events and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// deliver adapts handler to paho. It counts every delivery and turns
// handler errors and panics into log entries.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.received.Add(1)
		defer func() {
			if r := recover(); r != nil {
				c.panics.Add(1)
				if l := c.log(); l != nil {
					l.Error("telemetry handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.handlerErrors.Add(1)
			if l := c.log(); l != nil {
				l.Warn("telemetry handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
