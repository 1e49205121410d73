package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/plunger-sensor/internal/logic"
	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// DefaultBufferSize is the number of messages held while disconnected.
const DefaultBufferSize = 1000

// queueSize bounds the messages waiting for the publish goroutine.
const queueSize = 256

const publishTimeout = 5 * time.Second

// ErrQueueFull is returned when the publish goroutine has fallen behind.
var ErrQueueFull = errors.New("mqtt publish queue full")

// ErrClosed is returned for messages sent after Close.
var ErrClosed = errors.New("mqtt publisher closed")

// RealPublisher publishes to an actual MQTT broker. Publishing never waits on
// the broker: messages are queued and a single goroutine hands them to the
// client in order and waits for their tokens. Events, calibrations and system
// messages published while the connection is down are buffered and replayed
// on reconnect; readings are dropped.
type RealPublisher struct {
	client  paho.Client
	session string
	log     logrus.FieldLogger

	queue   chan outgoing
	stopped chan struct{}

	mu            sync.Mutex
	backlog       *backlog
	everConnected bool
	closed        bool
}

type outgoing struct {
	bufferedMsg
	keep bool // buffer for replay if the connection is down
}

// newPublisher starts the publish goroutine. The client must be set before
// the first message is sent.
func newPublisher(session string, log logrus.FieldLogger) *RealPublisher {
	p := &RealPublisher{
		session: session,
		log:     log.WithField("component", "mqtt"),
		queue:   make(chan outgoing, queueSize),
		stopped: make(chan struct{}),
		backlog: newBacklog(DefaultBufferSize),
	}
	go p.run()
	return p
}

// NewRealPublisher creates a publisher for the given broker. The connection is
// made in the background and retried until it succeeds; the broker publishes a
// retained SHUTDOWN with reason MQTT_DISCONNECT if the daemon vanishes.
func NewRealPublisher(broker, session string, log logrus.FieldLogger) *RealPublisher {
	p := newPublisher(session, log)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}, session)

	id := session
	if len(id) > 8 {
		id = id[:8]
	}
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("plunger-sensor-" + id).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.client.Connect()
	p.log.WithField("broker", broker).Info("mqtt connecting")
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everConnected
	p.everConnected = true
	msgs := p.backlog.drainAll()
	p.mu.Unlock()

	if reconnect {
		p.log.Info("mqtt reconnected")
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}, p.session)
		c.Publish(TopicSystem, 1, false, payload)
	} else {
		p.log.Info("mqtt connected")
	}

	for _, m := range msgs {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if len(msgs) > 0 {
		p.log.WithField("count", len(msgs)).Info("mqtt replayed buffered messages")
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.log.WithError(err).Warn("mqtt connection lost")
}

// send queues a message for the publish goroutine, or buffers it if the
// connection is down and keep is set. It never blocks on the broker.
func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte, keep bool) error {
	m := outgoing{bufferedMsg: bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}, keep: keep}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("publish %s: %w", topic, ErrClosed)
	}
	if !p.client.IsConnectionOpen() {
		p.hold(m)
		return nil
	}
	select {
	case p.queue <- m:
		return nil
	default:
		return fmt.Errorf("publish %s: %w", topic, ErrQueueFull)
	}
}

// hold buffers m for replay. Called with p.mu held.
func (p *RealPublisher) hold(m outgoing) {
	if m.keep && p.backlog.push(m.bufferedMsg) {
		p.log.WithField("capacity", p.backlog.capacity).Warn("mqtt backlog full, dropping oldest")
	}
}

func (p *RealPublisher) run() {
	defer close(p.stopped)
	for m := range p.queue {
		p.deliver(m)
	}
}

func (p *RealPublisher) deliver(m outgoing) {
	log := p.log.WithField("topic", m.topic)
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn("mqtt publish timed out")
		return
	}
	err := token.Error()
	if err == nil {
		return
	}
	log.WithError(err).Warn("mqtt publish failed")
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.hold(m)
		p.mu.Unlock()
	}
}

// Publish sends a firing event.
func (p *RealPublisher) Publish(unit int, event logic.Event) error {
	payload, err := FormatPayload(unit, event, p.session)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(TopicEvents, 0, false, payload, true)
}

// PublishReading sends a position sample.
func (p *RealPublisher) PublishReading(unit int, r plunger.Reading) error {
	payload, err := FormatReading(unit, r)
	if err != nil {
		return fmt.Errorf("format reading: %w", err)
	}
	return p.send(TopicReadings, 0, false, payload, false)
}

// PublishCalibration sends a calibration result, retained per unit.
func (p *RealPublisher) PublishCalibration(unit int, cal plunger.Calibration, at time.Time) error {
	payload, err := FormatCalibration(unit, cal, at, p.session)
	if err != nil {
		return fmt.Errorf("format calibration: %w", err)
	}
	return p.send(CalibrationTopic(unit), 1, true, payload, true)
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event, p.session)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(TopicSystem, 1, event.Retained, payload, true)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backlog.len()
}

// Close waits for queued messages to be handed to the broker, then disconnects.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.stopped:
	case <-time.After(publishTimeout):
		p.log.Warn("mqtt queue not drained before disconnect")
	}
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
