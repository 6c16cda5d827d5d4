package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/mat-logger/internal/logic"
)

// DefaultBufferSize is the number of messages held while disconnected.
const DefaultBufferSize = 256

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topic      string
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client      paho.Client
	topic       string
	systemTopic string

	mu    sync.Mutex
	queue *republishQueue
}

var (
	_ Publisher        = (*RealPublisher)(nil)
	_ ConnectionStatus = (*RealPublisher)(nil)
)

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Topic == "" {
		o.Topic = DefaultTopic
	}
	if o.ClientID == "" {
		o.ClientID = "mat-host"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		topic:       o.Topic,
		systemTopic: SystemTopic(o.Topic),
		queue:       newRepublishQueue(o.BufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			log.Info().Str("broker", o.Broker).Msg("MQTT connected")
			p.replay()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// Publish sends a mat transition to the MQTT broker.
func (p *RealPublisher) Publish(rec logic.Record) error {
	payload, err := FormatPayload(rec)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: records are not re-readable once the logger is reset
	return p.send(outbound{topic: p.topic, payload: payload, qos: 1})
}

// PublishSystem sends a system event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(outbound{topic: p.systemTopic, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Pending returns the number of buffered messages.
func (p *RealPublisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}

// Close flushes what it can and disconnects from the broker.
func (p *RealPublisher) Close() error {
	if p.IsConnected() {
		p.replay()
	}
	pending := p.Pending()
	p.client.Disconnect(1000) // 1 second timeout
	if pending > 0 {
		return fmt.Errorf("%d messages not delivered", pending)
	}
	return nil
}

func (p *RealPublisher) send(msg outbound) error {
	if !p.IsConnected() {
		p.mu.Lock()
		p.queue.add(msg)
		p.mu.Unlock()
		return nil
	}
	if err := p.publish(msg); err != nil {
		p.mu.Lock()
		p.queue.add(msg)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *RealPublisher) publish(msg outbound) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// replay publishes buffered messages in order. Anything that fails goes
// back into the queue.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.queue.take()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}

	log.Info().Int("messages", len(msgs)).Msg("Replaying buffered MQTT messages")
	for i, msg := range msgs {
		if err := p.publish(msg); err != nil {
			log.Warn().Err(err).Int("remaining", len(msgs)-i).Msg("Replay interrupted")
			p.mu.Lock()
			for _, m := range msgs[i:] {
				p.queue.add(m)
			}
			p.mu.Unlock()
			return
		}
	}
}
