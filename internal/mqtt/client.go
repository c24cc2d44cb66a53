package mqtt

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

var (
	ErrBrokerRequired  = errors.New("mqtt: broker host required")
	ErrInvalidQoS      = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrConnectTimeout  = errors.New("mqtt: connect timeout")
	ErrPublishTimeout  = errors.New("mqtt: publish timeout")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")
	ErrNotConnected    = errors.New("mqtt: not connected")
)

type Config struct {
	Broker         string
	Port           int
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Broker:         "localhost",
		Port:           1883,
		ClientID:       "rconbridge",
		QoS:            0,
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Broker) == "" {
		return ErrBrokerRequired
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("mqtt: invalid port %d", c.Port)
	}
	if c.QoS > 2 {
		return ErrInvalidQoS
	}
	return nil
}

// BrokerURL returns the tcp:// URL paho dials.
func (c Config) BrokerURL() string {
	return "tcp://" + net.JoinHostPort(c.Broker, strconv.Itoa(c.Port))
}

// Handler receives one message. A returned error is logged and dropped.
type Handler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler Handler
}

// Client publishes and subscribes on one broker connection.
type Client struct {
	cfg    Config
	client paho.Client

	mu   sync.Mutex
	subs map[string]subscription
}

// Connect dials the broker and waits up to ConnectTimeout for the session.
func Connect(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, subs: make(map[string]subscription)}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Str("component", "mqtt").Err(err).Msg("broker connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	c.client = paho.NewClient(opts)

	tok := c.client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, cfg.BrokerURL())
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.BrokerURL(), err)
	}
	log.Info().Str("component", "mqtt").Str("broker", cfg.BrokerURL()).Str("client_id", cfg.ClientID).Msg("connected to broker")
	return c, nil
}

// onConnect restores subscriptions; the broker drops them with a clean
// session.
func (c *Client) onConnect(pc paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()
	for topic, s := range subs {
		tok := pc.Subscribe(topic, s.qos, wrap(s.handler))
		if tok.WaitTimeout(c.cfg.ConnectTimeout) && tok.Error() == nil {
			log.Info().Str("component", "mqtt").Str("topic", topic).Msg("resubscribed")
			continue
		}
		log.Error().Str("component", "mqtt").Str("topic", topic).Err(tok.Error()).Msg("resubscribe failed")
	}
}

// Publish sends payload with the configured QoS, not retained. It fails
// fast while the connection is down instead of queueing behind a reconnect.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("%w: %s", ErrNotConnected, topic)
	}
	tok := c.client.Publish(topic, c.cfg.QoS, false, payload)
	if !tok.WaitTimeout(c.cfg.PublishTimeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	return tok.Error()
}

// Subscribe registers h for topic and keeps it across reconnects.
func (c *Client) Subscribe(topic string, qos byte, h Handler) error {
	if qos > 2 {
		return ErrInvalidQoS
	}
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: h}
	c.mu.Unlock()

	tok := c.client.Subscribe(topic, qos, wrap(h))
	if !tok.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("%w: %s: timeout", ErrSubscribeFailed, topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSubscribeFailed, topic, err)
	}
	log.Info().Str("component", "mqtt").Str("topic", topic).Msg("subscribed")
	return nil
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects, allowing in-flight work a short quiesce period.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

func wrap(h Handler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		if err := h(m.Topic(), m.Payload()); err != nil {
			log.Warn().Str("component", "mqtt").Str("topic", m.Topic()).Err(err).Msg("message handler failed")
		}
	}
}
