package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/tank-monitor/internal/logic"
	"github.com/sweeney/tank-monitor/internal/notify"
)

// DefaultBufferSize is the number of messages held while disconnected.
const DefaultBufferSize = 500

const publishTimeout = 5 * time.Second

// ErrNotConnected is returned by Send when the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed in order after reconnection.
type RealPublisher struct {
	client paho.Client

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher starts connecting to broker in the background and
// returns immediately; paho keeps retrying until the broker is reachable.
func NewRealPublisher(broker, clientID string, bufferSize int) *RealPublisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	p := &RealPublisher{buf: newRingBuffer(bufferSize)}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, WillPayload(), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Printf("mqtt: connected to %s", broker)
			go p.replay()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// PublishEvent sends a state event.
func (p *RealPublisher) PublishEvent(event logic.Event) error {
	payload, err := FormatEventPayload(event)
	if err != nil {
		return fmt.Errorf("format event payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicEvents, payload: payload})
}

// PublishSnapshot sends a snapshot, retained so new subscribers see the
// latest interval.
func (p *RealPublisher) PublishSnapshot(snap logic.Snapshot) error {
	payload, err := FormatSnapshotPayload(snap)
	if err != nil {
		return fmt.Errorf("format snapshot payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSnapshots, payload: payload, qos: 1, retained: true})
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// Send publishes an alert. Alerts are not buffered: the notifier needs to
// know whether delivery happened, so an offline broker is an error.
func (p *RealPublisher) Send(ctx context.Context, a notify.Alert) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}
	payload, err := FormatAlertPayload(a)
	if err != nil {
		return fmt.Errorf("format alert payload: %w", err)
	}
	token := p.client.Publish(TopicAlerts, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish alert: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.IsConnected() {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// replay drains the offline buffer after a (re)connection. Messages that
// fail to publish are pushed back for the next connection.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.buf.drain()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}

	log.Printf("mqtt: replaying %d buffered messages", len(msgs))
	for i, m := range msgs {
		token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
		if token.WaitTimeout(publishTimeout) && token.Error() == nil {
			continue
		}
		p.mu.Lock()
		for _, rest := range msgs[i:] {
			p.buf.push(rest)
		}
		p.mu.Unlock()
		log.Printf("mqtt: replay interrupted, %d messages re-buffered", len(msgs)-i)
		return
	}
}

// Buffered returns the number of messages waiting for reconnection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
