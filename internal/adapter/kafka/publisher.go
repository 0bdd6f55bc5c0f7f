package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/geo-cascade-service/internal/config"
	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

// Command names, also sent in the "command" header.
const (
	CommandFlyTo       = "fly_to"
	CommandPlaceMarker = "place_marker"
	CommandAttachPopup = "attach_popup"
)

// Command is one map instruction addressed to the client rendering a session.
type Command struct {
	Command     string       `json:"command"`
	SessionID   string       `json:"session_id"`
	IssuedAt    time.Time    `json:"issued_at"`
	FlyTo       *FlyTo       `json:"fly_to,omitempty"`
	PlaceMarker *PlaceMarker `json:"place_marker,omitempty"`
	AttachPopup *AttachPopup `json:"attach_popup,omitempty"`
}

// FlyTo centers the map.
type FlyTo struct {
	Center domain.Coordinates `json:"center"`
	Zoom   int                `json:"zoom"`
}

// PlaceMarker draws the session's single marker. Replaces names the marker to
// remove, if any.
type PlaceMarker struct {
	Marker   domain.MarkerHandle `json:"marker"`
	Replaces domain.MarkerHandle `json:"replaces,omitempty"`
	Feature  *geojson.Feature    `json:"feature"`
}

// AttachPopup binds a popup to a marker.
type AttachPopup struct {
	Marker domain.MarkerHandle `json:"marker"`
	Popup  domain.Popup        `json:"popup"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces map commands to a Kafka topic, keyed by session id so a
// session's commands stay ordered within one partition.
type Publisher struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the configured map topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaMapTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics}
}

// ForSession returns the MapSync view of one session.
func (p *Publisher) ForSession(id string) domain.MapSync {
	return &sessionMap{publisher: p, sessionID: id}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) publish(ctx context.Context, cmd Command) error {
	msg, err := serializeToMessage(cmd)
	if err != nil {
		p.metrics.MapCommands.WithLabelValues(cmd.Command, "error").Inc()
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.MapCommands.WithLabelValues(cmd.Command, "error").Inc()
		return fmt.Errorf("publish %s: %w", cmd.Command, err)
	}
	p.metrics.MapCommands.WithLabelValues(cmd.Command, "ok").Inc()
	p.logger.Debug("map command published", "session_id", cmd.SessionID, "command", cmd.Command)
	return nil
}

// sessionMap tracks the single active marker of one session.
type sessionMap struct {
	publisher *Publisher
	sessionID string

	mu     sync.Mutex
	marker domain.MarkerHandle
}

func (m *sessionMap) FlyTo(ctx context.Context, center domain.Coordinates, zoom int) error {
	return m.publisher.publish(ctx, Command{
		Command:   CommandFlyTo,
		SessionID: m.sessionID,
		IssuedAt:  domain.Now(),
		FlyTo:     &FlyTo{Center: center, Zoom: zoom},
	})
}

func (m *sessionMap) PlaceMarker(ctx context.Context, at domain.Coordinates, color string) (domain.MarkerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle := domain.MarkerHandle(uuid.NewString())
	feature := geojson.NewFeature(at.Point())
	feature.ID = string(handle)
	feature.Properties["color"] = color

	err := m.publisher.publish(ctx, Command{
		Command:   CommandPlaceMarker,
		SessionID: m.sessionID,
		IssuedAt:  domain.Now(),
		PlaceMarker: &PlaceMarker{
			Marker:   handle,
			Replaces: m.marker,
			Feature:  feature,
		},
	})
	if err != nil {
		return "", err
	}
	m.marker = handle
	return handle, nil
}

// AttachPopup publishes only for the active marker. A popup for a marker
// that has since been replaced is dropped.
func (m *sessionMap) AttachPopup(ctx context.Context, marker domain.MarkerHandle, popup domain.Popup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if marker != m.marker {
		m.publisher.metrics.MapCommands.WithLabelValues(CommandAttachPopup, "dropped").Inc()
		m.publisher.logger.Debug("popup for replaced marker dropped",
			"session_id", m.sessionID,
			"marker", string(marker),
			"active_marker", string(m.marker),
		)
		return nil
	}
	return m.publisher.publish(ctx, Command{
		Command:     CommandAttachPopup,
		SessionID:   m.sessionID,
		IssuedAt:    domain.Now(),
		AttachPopup: &AttachPopup{Marker: marker, Popup: popup},
	})
}

// serializeToMessage marshals a Command into a Kafka message.
func serializeToMessage(cmd Command) (kafkago.Message, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize map command: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(cmd.SessionID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "command", Value: []byte(cmd.Command)},
			{Key: "issued_at", Value: []byte(cmd.IssuedAt.Format(time.RFC3339))},
		},
	}, nil
}
