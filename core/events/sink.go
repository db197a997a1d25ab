// Package events publishes run transitions to external consumers.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
)

// Sink receives every recorded transition.
type Sink interface {
	OnTransition(ev models.TransitionEvent)
	Close() error
}

// NopSink discards events.
type NopSink struct{}

// OnTransition does nothing.
func (NopSink) OnTransition(models.TransitionEvent) {}

// Close does nothing.
func (NopSink) Close() error { return nil }

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultBuffer = 256
	writeTimeout  = 10 * time.Second
)

// KafkaSink publishes transitions as JSON, keyed by run id. Publishing
// happens on a background goroutine; events are dropped when the buffer
// is full so the tracker never waits on the broker.
type KafkaSink struct {
	writer MessageWriter
	logger *logging.Logger
	queue  chan models.TransitionEvent
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewKafkaWriter creates a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaSink starts a sink publishing through w.
func NewKafkaSink(w MessageWriter, logger *logging.Logger) *KafkaSink {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &KafkaSink{
		writer: w,
		logger: logger,
		queue:  make(chan models.TransitionEvent, defaultBuffer),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// OnTransition enqueues ev for publishing.
func (s *KafkaSink) OnTransition(ev models.TransitionEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn("event buffer full, dropping transition", "run_id", ev.RunID, "seq", ev.Seq)
	}
}

// Close flushes queued events and closes the writer.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return s.writer.Close()
}

func (s *KafkaSink) loop() {
	defer s.wg.Done()
	for ev := range s.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("failed to encode transition", "run_id", ev.RunID, "error", err.Error())
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = s.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(ev.RunID),
			Value: payload,
			Time:  ev.At,
		})
		cancel()
		if err != nil {
			s.logger.Warn("failed to publish transition", "run_id", ev.RunID, "seq", ev.Seq, "error", err.Error())
		}
	}
}
