package mqtt

import (
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"meater_sync/internal/config"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
	maxQoS            = 2
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrPublishTimeout   = errors.New("mqtt publish timed out")
)

// Publisher sends one message to the broker.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Client is a connected paho client that reports the bridge's availability
// on <prefix>/status.
type Client struct {
	client      pahomqtt.Client
	statusTopic string
	qos         byte
}

func clampQoS(q int) byte {
	switch {
	case q < 0:
		return 0
	case q > maxQoS:
		return maxQoS
	}
	return byte(q)
}

func buildClientOptions(cfg config.MQTT, statusTopic string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	// The broker flips the status to offline if we vanish without saying goodbye.
	opts.SetWill(statusTopic, "offline", clampQoS(cfg.QoS), true)
	return opts
}

// Connect dials the broker and marks the bridge online.
func Connect(cfg config.MQTT) (*Client, error) {
	c := &Client{
		statusTopic: cfg.TopicPrefix + "/status",
		qos:         clampQoS(cfg.QoS),
	}
	opts := buildClientOptions(cfg, c.statusTopic)
	opts.SetOnConnectHandler(func(pc pahomqtt.Client) {
		pc.Publish(c.statusTopic, c.qos, true, "online")
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	return token.Error()
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() {
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	_ = c.Publish(c.statusTopic, c.qos, true, []byte("offline"))
	c.client.Disconnect(disconnectQuiesce)
}
