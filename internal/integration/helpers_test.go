//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/couchcryptid/snowsense/internal/analysis"
	"github.com/couchcryptid/snowsense/internal/catalog"
	"github.com/couchcryptid/snowsense/internal/gridio"
	"github.com/couchcryptid/snowsense/internal/stacker"
	"github.com/couchcryptid/snowsense/internal/synth"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("snowsense-test"))
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
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// newAnalyzer serves one synthetic region named Demo from a temp data dir.
func newAnalyzer(t *testing.T) *analysis.Analyzer {
	t.Helper()
	dataDir := t.TempDir()
	opts := synth.Default()
	m, err := synth.Write(filepath.Join(dataDir, "demo"), stacker.Sentinel2(), opts)
	require.NoError(t, err)

	cat, err := catalog.New([]catalog.Region{synth.NewScene(opts).Region("Demo", "demo")})
	require.NoError(t, err)
	return analysis.New(cat, stacker.New(m, gridio.Reader{}, discardLogger()), dataDir, discardLogger())
}
