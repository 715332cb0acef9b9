package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/obsarchive/internal/infrastructure/config"
)

// Client is the archive's connection to the observation feed broker.
//
// The archive subscribes to observation topics, echoes rejected messages
// and keeps a retained status and ingest counters on the broker. Every
// method is safe for concurrent use. Subscriptions survive reconnects.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	connected atomic.Bool

	mu   sync.Mutex
	subs map[string]subscription

	logger       Logger
	onConnect    func()
	onDisconnect func(err error)
}

// Logger is the logging surface of the client. *logging.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// MessageHandler receives one message. Paho calls it from its own
// goroutine, so it should return quickly. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Option configures a Client at Connect.
type Option func(*Client)

// WithLogger logs reconnects, handler errors and recovered panics.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOnConnect is called after the initial connection and every reconnect,
// once subscriptions are restored.
func WithOnConnect(fn func()) Option {
	return func(c *Client) { c.onConnect = fn }
}

// WithOnDisconnect is called when the connection is lost.
func WithOnDisconnect(fn func(err error)) Option {
	return func(c *Client) { c.onDisconnect = fn }
}

// Connect dials the broker and waits for the first connection.
//
// The broker is told to publish an "offline" status if the archive
// vanishes, and an "online" status is published on every connect.
func Connect(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	c := newClient(cfg, opts...)

	po := buildClientOptions(cfg)
	configureLWT(po, cfg.Broker.ClientID)
	po.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })
	po.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logger.Warn("reconnecting to observation broker", "broker", cfg.Broker.Host)
	})

	c.paho = pahomqtt.NewClient(po)
	token := c.paho.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously and may not have fired yet.
	c.connected.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		subs:   make(map[string]subscription),
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) connectionUp() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	if err := c.publishStatus(statusOnline, ""); err != nil {
		c.logger.Warn("publishing archive status failed", "error", err)
	}
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *Client) connectionDown(err error) {
	c.connected.Store(false)
	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
}

// Close publishes a graceful "offline" status and disconnects.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		if err := c.publishStatus(statusOffline, "graceful_shutdown"); err != nil {
			c.logger.Warn("publishing archive status failed", "error", err)
		}
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck fails when the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.connected.Load() && c.paho.IsConnected()
}

// dispatch adapts a MessageHandler to paho, recovering panics so one bad
// observation cannot take the feed down.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("observation handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("observation handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}
