// Package mqttchannel is an MQTT-backed Channel: Source subscribes to a
// topic and emits each inbound publish, Destination publishes an
// exchange to a topic. Connection lifecycle follows a publisher's
// autopaho wiring — one shared connection manager, TLS enabled for
// mqtts://ssl:// broker URLs, inbound dispatch wrapped in panic
// recovery — trimmed down to the connect/publish/subscribe core; the
// discovery, sensor-state and rate-limiting concerns of that publisher
// belong to its own domain, not a general-purpose channel.
//
// The teacher's own internal/mqtt/publisher.go takes a config.MQTTConfig
// that is never actually defined anywhere in that package tree, so
// Options below is this adapter's own config shape rather than a reuse
// of that type.
package mqttchannel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/routecraftjs/routecraft"
)

// Options configures the shared MQTT connection underlying a Channel.
type Options struct {
	// Broker is the broker URL, e.g. "mqtt://host:1883" or
	// "mqtts://host:8883". Required.
	Broker string
	// ClientID identifies this connection to the broker. Required.
	ClientID string
	// Username and Password authenticate the connection, if the
	// broker requires it.
	Username string
	Password string
	// QoS is the publish/subscribe quality of service level. Default: 0.
	QoS byte
	// ConnectTimeout bounds how long the initial connection is awaited.
	// On timeout a warning is logged and no error is returned; the
	// connection manager keeps retrying in the background. Default: 10s.
	ConnectTimeout time.Duration
}

// Channel is an MQTT-backed routecraft Channel. One Channel may back
// any number of Source/Destination pairs on different topics, sharing
// a single underlying connection.
type Channel struct {
	opts   Options
	logger routecraft.Logger

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

// New returns a Channel that lazily connects to opts.Broker on first
// use from either Source or Destination.
func New(opts Options, logger routecraft.Logger) *Channel {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = routecraft.NewDiscardLogger()
	}
	return &Channel{opts: opts, logger: logger}
}

// connect establishes the shared connection manager if it does not
// already exist, following the connect-once-reuse discipline any
// mutex-guarded client in this codebase uses.
func (c *Channel) connect(ctx context.Context) (*autopaho.ConnectionManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cm != nil {
		return c.cm, nil
	}

	brokerURL, err := url.Parse(c.opts.Broker)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker url: %w", err)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: c.opts.Username,
		ConnectPassword: []byte(c.opts.Password),
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			c.logger.Info("mqtt connected", "broker", c.opts.Broker)
		},
		OnConnectError: func(err error) {
			c.logger.Warn("mqtt connection error", "broker", c.opts.Broker, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.opts.ClientID,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		cfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		c.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	c.cm = cm
	return cm, nil
}

// Source returns a routecraft.Source that subscribes to topic and
// emits each publish's payload as a string message, carrying the
// originating topic as a header. Runs until the route's cancellation
// token fires.
func (c *Channel) Source(topic string) routecraft.Source {
	return routecraft.SourceFunc(func(ctx context.Context, emit routecraft.Emit) error {
		cm, err := c.connect(ctx)
		if err != nil {
			return err
		}

		if _, err := cm.Subscribe(ctx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: c.opts.QoS}},
		}); err != nil {
			return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
		}

		cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
			if pr.Packet.Topic != topic {
				return false, nil
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logger.Error("mqtt message handler panicked", "topic", topic, "panic", r)
					}
				}()
				emit(string(pr.Packet.Payload), routecraft.Headers{"routecraft.mqtt.topic": topic})
			}()
			return true, nil
		})

		<-ctx.Done()
		if ctx.Err() == context.Canceled {
			return nil
		}
		return ctx.Err()
	})
}

// Destination returns a routecraft.Destination that publishes
// fmt.Sprint(ex.Body) to topic.
func (c *Channel) Destination(topic string) routecraft.Destination {
	return routecraft.DestinationFunc(func(ex *routecraft.Exchange) error {
		cm, err := c.connect(context.Background())
		if err != nil {
			return err
		}
		_, err = cm.Publish(context.Background(), &paho.Publish{
			Topic:   topic,
			Payload: []byte(fmt.Sprint(ex.Body)),
			QoS:     c.opts.QoS,
		})
		if err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
		return nil
	})
}
