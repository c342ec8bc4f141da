// Package events publishes derivation lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stwalsh4118/canopy/internal/logger"
)

// Type identifies what happened.
type Type string

// Event types.
const (
	AOICreated           Type = "aoi.created"
	AOIDeleted           Type = "aoi.deleted"
	SceneIngested        Type = "scene.ingested"
	SceneDeleted         Type = "scene.deleted"
	ClipCreated          Type = "clip.created"
	VisualizationCreated Type = "visualization.created"
)

// Event is one pipeline change. Ids that do not apply are omitted.
type Event struct {
	OccurredAt time.Time `json:"occurredAt"`
	MeanNDVI   *float64  `json:"meanNdvi,omitempty"`
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Style      string    `json:"style,omitempty"`
	AOIID      int64     `json:"aoiId,omitempty"`
	FullID     int64     `json:"fullId,omitempty"`
	ClippedID  int64     `json:"clippedId,omitempty"`
	VizID      int64     `json:"vizId,omitempty"`
}

// New stamps an event of type t with an id and the current time.
func New(t Type) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
	}
}

// Key is the partition key. Events about the same AOI land on the same
// partition so consumers see them in order.
func (e Event) Key() string {
	if e.AOIID != 0 {
		return "aoi-" + strconv.FormatInt(e.AOIID, 10)
	}
	return "scene-" + strconv.FormatInt(e.FullID, 10)
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages to a Kafka topic.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a synchronous publisher for topic. Errors the
// writer hits internally, such as broker dial failures, go to log.
func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	if log != nil {
		w.ErrorLogger = kafkaErrorLogger(log.WithComponent("kafka").GetZerolog())
	}
	return &KafkaPublisher{writer: w}
}

func kafkaErrorLogger(zl *zerolog.Logger) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...interface{}) {
		zl.Error().Msgf(msg, args...)
	})
}

// Publish sends e keyed by Event.Key.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.Key()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards events. It is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
