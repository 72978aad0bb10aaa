package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
)

// Errors returned by the client. Asynchronous handler failures are logged
// instead.
var (
	ErrNotConnected     = errors.New("mqtt: not connected to broker")
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrPayloadTooLarge  = errors.New("mqtt: payload too large")
	ErrSubscribeFailed  = errors.New("mqtt: command subscription failed")
)

const (
	connectTimeout    = 10 * time.Second
	ackTimeout        = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
)

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler handles one message received on a device command topic.
// A returned error is logged; the message is not redelivered.
type MessageHandler func(topic string, payload []byte) error

// Client is the home core's broker connection. It mirrors device
// snapshots out and takes device commands in.
//
// The command subscription is restored on every reconnect and the core's
// presence is kept on the retained system status topic, with a Last Will
// that marks the site offline if the process dies.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	siteID string

	mu           sync.RWMutex
	connected    bool
	commands     MessageHandler
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker for site siteID and publishes the online
// presence. It fails if the first connection is not up within ten seconds;
// later drops are retried with backoff.
func Connect(cfg config.MQTTConfig, siteID string) (*Client, error) {
	c := &Client{cfg: cfg, siteID: siteID}

	opts := buildClientOptions(cfg)
	opts.SetWill(Topics{}.SystemStatus(),
		string(c.presence(presenceOffline, reasonUnexpected)), 1, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnecting", "broker", cfg.Broker.Host, "site", siteID)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnect fires asynchronously and may not have run yet.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return c, nil
}

func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	commands := c.commands
	callback := c.onConnect
	c.mu.Unlock()

	// Clean sessions drop subscriptions on the broker side.
	if commands != nil {
		c.client.Subscribe(Topics{}.AllDeviceCommands(), c.qos(), c.wrapHandler(commands))
	}
	c.client.Publish(Topics{}.SystemStatus(), c.qos(), true, c.presence(presenceOnline, ""))

	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	callback := c.onDisconnect
	c.mu.Unlock()

	if callback != nil {
		callback(err)
	}
}

// HandleCommands subscribes handler to every device command topic. A later
// call replaces the handler.
func (c *Client) HandleCommands(handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	previous := c.commands
	c.commands = handler
	c.mu.Unlock()

	token := c.client.Subscribe(Topics{}.AllDeviceCommands(), c.qos(), c.wrapHandler(handler))
	var err error
	if token.WaitTimeout(ackTimeout) {
		err = token.Error()
	} else {
		err = fmt.Errorf("timeout after %v", ackTimeout)
	}
	if err != nil {
		c.mu.Lock()
		c.commands = previous
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Close publishes the graceful offline presence and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.client.Publish(Topics{}.SystemStatus(), c.qos(), true, c.presence(presenceOffline, reasonShutdown))
		token.WaitTimeout(ackTimeout)
	}
	c.client.Disconnect(disconnectQuiesce)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
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
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback run after every (re)connect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures. Without one they are
// dropped silently.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) //nolint:gosec // validated to 0..2 by config
}

// wrapHandler adapts handler to paho. Returned errors are logged and
// panics are recovered.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT command handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT command rejected", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
