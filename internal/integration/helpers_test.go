//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/couchcryptid/storm-mosaic-etl/internal/mosaic/mosaictest"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("mosaic-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
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

// mosaicFixture is one source message: a file name and its bytes.
type mosaicFixture struct {
	name string
	data []byte
}

// loadMosaics returns the bzip2 composite from testdata plus synthetic
// uncompressed mosaics for two more regions.
func loadMosaics(t *testing.T) []mosaicFixture {
	t.Helper()

	composite, err := os.ReadFile(filepath.Join("..", "mosaic", "testdata", "composite_bz2.moc"))
	require.NoError(t, err)

	south := mosaictest.Composite()
	south.RegionID = "ASCN"
	south.Raw = []int16{100, 200, 500, 0}

	light := mosaictest.Composite()
	light.RegionID = "ANEC"
	light.Minute = 12
	light.Raw = []int16{60, 80, 0, 0}

	return []mosaicFixture{
		{name: "ACHN_CR_20240426_150600.moc", data: composite},
		{name: "ASCN_CR_20240426_150600.moc", data: south.Bytes()},
		{name: "ANEC_CR_20240426_151200.moc", data: light.Bytes()},
	}
}

func (f mosaicFixture) message() kafkago.Message {
	return kafkago.Message{
		Key:     []byte(f.name),
		Value:   f.data,
		Headers: []kafkago.Header{{Key: "filename", Value: []byte(f.name)}},
	}
}
