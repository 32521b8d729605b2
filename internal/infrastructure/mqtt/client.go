package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cashi/auth-core/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// hooks are the caller-supplied connection callbacks.
type hooks struct {
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Client publishes security notifications. It never subscribes.
//
// The retained status topic tracks whether this instance is online; the
// broker publishes the offline status as the will if the process dies.
// paho reconnects in the background with exponential backoff. All methods
// are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	qos    byte
	id     string
	topics Topics

	up atomic.Bool

	mu    sync.RWMutex
	hooks hooks
}

// Connect dials the broker and waits up to the connect timeout for the
// session. Returns ErrDisabled when mqtt.enabled is false.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := &Client{
		qos:    byte(cfg.QoS), // #nosec G115 -- validated 0..2 by config
		id:     cfg.Broker.ClientID,
		topics: NewTopics(cfg.TopicPrefix),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, c.id)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.client = pahomqtt.NewClient(opts)
	tok := c.client.Connect()
	if !tok.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// paho runs the connect handler on its own goroutine.
	c.up.Store(true)
	return c, nil
}

// Topics returns the topic builder for this client's prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) snapshot() hooks {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hooks
}

// connected runs on the initial connection and every reconnect.
func (c *Client) connected() {
	c.up.Store(true)
	c.client.Publish(c.topics.SystemStatus(), c.qos, true, buildOnlinePayload(c.id))

	if h := c.snapshot(); h.onConnect != nil {
		h.onConnect()
	}
}

func (c *Client) lost(err error) {
	c.up.Store(false)

	h := c.snapshot()
	if h.logger != nil {
		h.logger.Warn("mqtt connection lost", "error", err)
	}
	if h.onDisconnect != nil {
		h.onDisconnect(err)
	}
}

// Close publishes the offline status and disconnects. Safe on a nil or
// never-connected client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.client.Publish(c.topics.SystemStatus(), c.qos, true, buildOfflinePayload(c.id)).
			WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.up.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
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
	return c.up.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect registers a callback for connects and reconnects.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.hooks.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback for connection loss.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.hooks.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger used for connection-loss warnings.
func (c *Client) SetLogger(l Logger) {
	c.mu.Lock()
	c.hooks.logger = l
	c.mu.Unlock()
}
