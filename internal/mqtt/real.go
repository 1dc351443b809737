package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBufferSize is how many lines are kept while the broker is away.
const DefaultBufferSize = 256

// ErrNotConnected is returned when a line was buffered instead of sent.
var ErrNotConnected = errors.New("mqtt: not connected, line buffered")

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client      client
	logTopic    string
	headerTopic string

	mu        sync.Mutex
	buf       *ringBuffer
	header    *bufferedLine // pending header, kept out of the ring
	replaying bool
}

// NewRealPublisher creates a publisher connected to the given broker.
// Lines published before the first connection are buffered. The latest
// header is held apart from the rows so an overflow never drops it.
func NewRealPublisher(broker, clientID, name string, bufSize int) (*RealPublisher, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	p := &RealPublisher{
		logTopic:    LogTopic(name),
		headerTopic: HeaderTopic(name),
		buf:         newRingBuffer(bufSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			log.Printf("mqtt: connected to %s", broker)
			go p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newPublisherWithClient(c client, name string, bufSize int) *RealPublisher {
	return &RealPublisher{
		client:      c,
		logTopic:    LogTopic(name),
		headerTopic: HeaderTopic(name),
		buf:         newRingBuffer(bufSize),
	}
}

// PublishHeader sends the header line, retained so late subscribers can
// label the columns.
func (p *RealPublisher) PublishHeader(line string) error {
	return p.send(bufferedLine{topic: p.headerTopic, line: line, retained: true})
}

// PublishLine sends one log row.
func (p *RealPublisher) PublishLine(line string) error {
	return p.send(bufferedLine{topic: p.logTopic, line: line})
}

// send publishes msg directly only when nothing older is waiting.
// Otherwise it queues behind the pending lines so rows keep their order.
func (p *RealPublisher) send(msg bufferedLine) error {
	connected := p.client.IsConnectionOpen()

	p.mu.Lock()
	if connected && !p.replaying && p.pendingLocked() == 0 {
		p.mu.Unlock()
		if err := p.publish(msg); err != nil {
			p.mu.Lock()
			p.queueLocked(msg)
			p.mu.Unlock()
			return err
		}
		return nil
	}
	p.queueLocked(msg)
	replaying := p.replaying
	p.mu.Unlock()

	switch {
	case !connected:
		return ErrNotConnected
	case replaying:
		// the running replay picks it up
		return nil
	default:
		return p.flush()
	}
}

func (p *RealPublisher) queueLocked(msg bufferedLine) {
	if msg.retained {
		p.header = &msg
		return
	}
	p.buf.push(msg)
}

func (p *RealPublisher) pendingLocked() int {
	n := p.buf.len()
	if p.header != nil {
		n++
	}
	return n
}

// nextLocked removes the next line to replay, header first.
func (p *RealPublisher) nextLocked() (bufferedLine, bool) {
	if p.header != nil {
		msg := *p.header
		p.header = nil
		return msg, true
	}
	return p.buf.pop()
}

// requeueLocked puts back a line whose replay failed.
func (p *RealPublisher) requeueLocked(msg bufferedLine) {
	if msg.retained {
		if p.header == nil {
			p.header = &msg
		}
		return
	}
	if !p.buf.pushFront(msg) {
		log.Printf("mqtt: buffer full, dropping line that failed to replay")
	}
}

// publish sends msg with QoS 0 (at-most-once).
func (p *RealPublisher) publish(msg bufferedLine) error {
	token := p.client.Publish(msg.topic, 0, msg.retained, msg.line)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// flush replays pending lines in order until none are left. Only one
// replay runs at a time. On failure the line is put back in front and
// the rest wait for the next reconnection.
func (p *RealPublisher) flush() error {
	p.mu.Lock()
	if p.replaying {
		p.mu.Unlock()
		return nil
	}
	p.replaying = true
	p.mu.Unlock()

	sent := 0
	for {
		p.mu.Lock()
		msg, ok := p.nextLocked()
		if !ok {
			p.replaying = false
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		if err := p.publish(msg); err != nil {
			p.mu.Lock()
			p.requeueLocked(msg)
			p.replaying = false
			p.mu.Unlock()
			log.Printf("mqtt: replay failed after %d lines: %v", sent, err)
			return err
		}
		sent++
	}
	if sent > 0 {
		log.Printf("mqtt: replayed %d buffered lines", sent)
	}
	return nil
}

// Buffered returns how many lines are waiting for the broker.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingLocked()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
