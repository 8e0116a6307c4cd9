// README: Post-commit domain events; Kafka-backed in production, no-op when unconfigured.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"yatra/internal/observability"
	"yatra/internal/types"
)

type Type string

const (
	TripCreated       Type = "trip.created"
	TripCancelled     Type = "trip.cancelled"
	TripStarted       Type = "trip.started"
	TripCompleted     Type = "trip.completed"
	RequestCreated    Type = "request.created"
	RequestCancelled  Type = "request.cancelled"
	RequestRejected   Type = "request.rejected"
	RequestOnboard    Type = "request.onboard"
	RequestDroppedOff Type = "request.dropped_off"
	RatingSubmitted   Type = "rating.submitted"
)

// Event describes a committed state change. It is never published before the
// transaction that produced it has committed.
type Event struct {
	Type      Type      `json:"type"`
	TripID    types.ID  `json:"trip_id"`
	RequestID types.ID  `json:"request_id,omitempty"`
	ActorID   types.ID  `json:"actor_id,omitempty"`
	Seats     int       `json:"seats,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events on a best-effort basis. Delivery failures are
// logged by the implementation and never reported to the caller, because the
// state change has already committed.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

const (
	publishTimeout = 2 * time.Second
	queueSize      = 1024
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher queues events and writes them from a single goroutine, so
// Publish never waits on the broker and per-trip order is kept. When the
// queue is full the event is dropped and counted.
type KafkaPublisher struct {
	writer messageWriter
	log    logrus.FieldLogger
	queue  chan kafka.Message
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewKafkaPublisher(writer *kafka.Writer, log logrus.FieldLogger) *KafkaPublisher {
	return newKafkaPublisher(writer, log, queueSize)
}

func newKafkaPublisher(writer messageWriter, log logrus.FieldLogger, size int) *KafkaPublisher {
	p := &KafkaPublisher{
		writer: writer,
		log:    log,
		queue:  make(chan kafka.Message, size),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *KafkaPublisher) Publish(_ context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		p.log.WithError(err).WithField("event", e.Type).Error("encode event")
		return
	}
	msg := kafka.Message{Key: []byte(e.TripID), Value: b}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.closed {
		select {
		case p.queue <- msg:
			return
		default:
		}
	}
	observability.EventsDroppedTotal.Inc()
	p.log.WithFields(logrus.Fields{"event": e.Type, "trip_id": e.TripID}).Warn("event dropped")
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := p.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			p.log.WithError(err).WithField("trip_id", string(msg.Key)).Warn("publish event")
		}
	}
}

// Close stops accepting events, writes whatever is queued and closes the
// writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}
