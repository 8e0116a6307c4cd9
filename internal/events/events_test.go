package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatra/internal/types"
)

// gatedWriter blocks every write until release is closed.
type gatedWriter struct {
	release chan struct{}

	mu     sync.Mutex
	got    []kafka.Message
	closed bool
}

func newGatedWriter() *gatedWriter {
	return &gatedWriter{release: make(chan struct{})}
}

func (w *gatedWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	w.got = append(w.got, msgs...)
	return nil
}

func (w *gatedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *gatedWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.got...)
}

func TestRecorderConcurrentPublish(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Publish(context.Background(), Event{Type: RequestCreated, TripID: "t1"})
		}()
	}
	wg.Wait()
	assert.Len(t, r.Events(), 20)
}

func TestRecorderTypesInOrder(t *testing.T) {
	var r Recorder
	r.Publish(context.Background(), Event{Type: TripStarted})
	r.Publish(context.Background(), Event{Type: TripCompleted})
	assert.Equal(t, []Type{TripStarted, TripCompleted}, r.Types())
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NotPanics(t, func() { p.Publish(context.Background(), Event{Type: TripCreated}) })
}

func TestKafkaPublisherDoesNotWaitForBroker(t *testing.T) {
	w := newGatedWriter()
	log, _ := logtest.NewNullLogger()
	p := newKafkaPublisher(w, log, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range []types.ID{"t1", "t2", "t3"} {
			p.Publish(context.Background(), Event{Type: RequestCreated, TripID: id})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled writer")
	}
	assert.Empty(t, w.messages())

	close(w.release)
	require.NoError(t, p.Close())

	got := w.messages()
	require.Len(t, got, 3)
	for i, id := range []string{"t1", "t2", "t3"} {
		assert.Equal(t, id, string(got[i].Key))
		var e Event
		require.NoError(t, json.Unmarshal(got[i].Value, &e))
		assert.Equal(t, RequestCreated, e.Type)
		assert.False(t, e.At.IsZero())
	}
	assert.True(t, w.closed)
}

func TestKafkaPublisherDropsWhenQueueFull(t *testing.T) {
	w := newGatedWriter()
	log, hook := logtest.NewNullLogger()
	p := newKafkaPublisher(w, log, 1)

	// at most one event is in flight and one queued; the rest are dropped
	const sent = 5
	for i := 0; i < sent; i++ {
		p.Publish(context.Background(), Event{Type: TripStarted, TripID: "t1"})
	}
	close(w.release)
	require.NoError(t, p.Close())

	dropped := 0
	for _, entry := range hook.AllEntries() {
		if entry.Message == "event dropped" {
			dropped++
		}
	}
	delivered := len(w.messages())
	assert.GreaterOrEqual(t, dropped, sent-2)
	assert.Equal(t, sent, delivered+dropped)
}

func TestKafkaPublisherAfterClose(t *testing.T) {
	w := newGatedWriter()
	close(w.release)
	log, hook := logtest.NewNullLogger()
	p := newKafkaPublisher(w, log, 4)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	p.Publish(context.Background(), Event{Type: TripCancelled, TripID: "t1"})

	assert.Empty(t, w.messages())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "event dropped", hook.LastEntry().Message)
}
