package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/canopy/internal/logger"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	mean := 0.42
	e := New(ClipCreated)
	e.FullID = 7
	e.AOIID = 3
	e.ClippedID = 11
	e.MeanNDVI = &mean

	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "aoi-3", string(msg.Key))
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, string(ClipCreated), string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, int64(11), decoded.ClippedID)
	assert.InDelta(t, 0.42, *decoded.MeanNDVI, 1e-12)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}}

	err := p.Publish(context.Background(), New(SceneDeleted))
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaPublisher_RoutesWriterErrorsToLogger(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "ndvi.events", logger.Nop())

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "ndvi.events", w.Topic)
	assert.NotNil(t, w.ErrorLogger)

	bare := NewKafkaPublisher([]string{"localhost:9092"}, "ndvi.events", nil)
	assert.Nil(t, bare.writer.(*kafka.Writer).ErrorLogger)
}

func TestKafkaErrorLogger(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)

	kafkaErrorLogger(&zl).Printf("failed to dial %s: %v", "broker:9092", "connection refused")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "failed to dial broker:9092: connection refused", entry["message"])
}

func TestEventKey(t *testing.T) {
	e := New(SceneIngested)
	e.FullID = 5
	assert.Equal(t, "scene-5", e.Key())
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.OccurredAt.IsZero())
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), New(AOICreated)))
	assert.NoError(t, p.Close())
}
