//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/geo-cascade-service/internal/adapter/kafka"
	"github.com/couchcryptid/geo-cascade-service/internal/cascade"
	"github.com/couchcryptid/geo-cascade-service/internal/config"
	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

const testMapTopic = "test-map-commands"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("geo-cascade-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type staticData struct{}

func (staticData) ListChildren(_ context.Context, level domain.HierarchyLevel, parent string) ([]domain.LocationRecord, error) {
	if level == domain.Municipality && parent == "Madrid" {
		return []domain.LocationRecord{{
			Level:       domain.Municipality,
			Name:        "Alcobendas",
			ParentName:  "Madrid",
			Coordinates: &domain.Coordinates{Lon: -3.64, Lat: 40.54},
		}}, nil
	}
	return []domain.LocationRecord{{Level: level, Name: "Madrid"}}, nil
}

func (staticData) ResolveName(context.Context, domain.Coordinates) (string, error) {
	return "Alcobendas", nil
}

func (staticData) ResolveHierarchy(context.Context, string) ([]domain.HierarchyRecord, error) {
	return nil, nil
}

// TestPublisher_NavigationCommands drives a forward selection to a
// municipality and reads back the commands it produced.
func TestPublisher_NavigationCommands(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testMapTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaMapTopic: testMapTopic}
	pub := kafka.NewPublisher(cfg, discardLogger(), observability.NewMetricsForTesting())
	t.Cleanup(func() { _ = pub.Close() })

	s := cascade.NewSession("sess-int", staticData{}, pub.ForSession("sess-int"),
		cascade.DefaultOptions(), discardLogger(), observability.NewMetricsForTesting())
	t.Cleanup(s.Close)

	require.NoError(t, s.Select(ctx, domain.Region, "Comunidad de Madrid"))
	s.Wait()
	require.NoError(t, s.Select(ctx, domain.Province, "Madrid"))
	s.Wait()
	require.NoError(t, s.Select(ctx, domain.Municipality, "Alcobendas"))
	s.Wait()

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testMapTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	t.Cleanup(func() { _ = reader.Close() })

	var got []kafka.Command
	for range 3 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := reader.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read map command")
		assert.Equal(t, []byte("sess-int"), msg.Key)

		var cmd kafka.Command
		require.NoError(t, json.Unmarshal(msg.Value, &cmd))
		got = append(got, cmd)
	}

	require.Equal(t, kafka.CommandFlyTo, got[0].Command)
	assert.Equal(t, 14, got[0].FlyTo.Zoom)
	assert.Equal(t, domain.Coordinates{Lon: -3.64, Lat: 40.54}, got[0].FlyTo.Center)

	require.Equal(t, kafka.CommandPlaceMarker, got[1].Command)
	assert.Equal(t, "red", got[1].PlaceMarker.Feature.Properties["color"])

	require.Equal(t, kafka.CommandAttachPopup, got[2].Command)
	assert.Equal(t, got[1].PlaceMarker.Marker, got[2].AttachPopup.Marker)
	assert.Equal(t, "Alcobendas", got[2].AttachPopup.Popup.Station)
}
