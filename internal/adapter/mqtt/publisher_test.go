package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-mosaic-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// --- fakes ---

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	connectToken mqtt.Token
	publishToken mqtt.Token
	published    []published
	disconnects  int
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Connect() mqtt.Token {
	if c.connectToken == nil {
		return completedToken(nil)
	}
	return c.connectToken
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	if c.publishToken == nil {
		return completedToken(nil)
	}
	return c.publishToken
}

func newTestPublisher(c *fakeClient) *Publisher {
	return &Publisher{
		client:      c,
		topicPrefix:    "radar/alerts",
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		connected:      c.connected,
		connectTimeout: connectTimeout,
		stopCh:         make(chan struct{}),
	}
}

func extremeProduct() domain.MosaicProduct {
	intensity := domain.IntensityExtreme
	return domain.MosaicProduct{
		ID:         "cr-0123456789abcdef",
		VarName:    "CR",
		RegionID:   "ACHN",
		Units:      "dBZ",
		ObservedAt: time.Date(2024, 4, 26, 15, 6, 0, 0, time.UTC),
		Center:     domain.Geo{Lat: 29.5, Lon: 100.5},
		MaxValue:   60,
		MaxAt:      &domain.Geo{Lat: 29.25, Lon: 100.75},
		Coverage:   0.75,
		Intensity:  &intensity,
		PlaceName:  "Ganzi",
	}
}

// --- tests ---

func TestBuildAlert(t *testing.T) {
	topic, payload, err := buildAlert("radar/alerts", extremeProduct())
	require.NoError(t, err)

	assert.Equal(t, "radar/alerts/ACHN/CR", topic)

	var alert Alert
	require.NoError(t, json.Unmarshal(payload, &alert))
	assert.Equal(t, "cr-0123456789abcdef", alert.ProductID)
	assert.Equal(t, "extreme", alert.Intensity)
	assert.InDelta(t, 60.0, alert.MaxValue, 0)
	require.NotNil(t, alert.MaxAt)
	assert.Equal(t, domain.Geo{Lat: 29.25, Lon: 100.75}, *alert.MaxAt)
	assert.Equal(t, "Ganzi", alert.PlaceName)
	assert.True(t, alert.ObservedAt.Equal(time.Date(2024, 4, 26, 15, 6, 0, 0, time.UTC)))
}

func TestTopicLevel(t *testing.T) {
	tests := map[string]string{
		"ACHN":  "ACHN",
		"":      "unknown",
		"  ":    "unknown",
		"A/B":   "A_B",
		"CR+#":  "CR__",
		" AZ9 ": "AZ9",
	}
	for in, want := range tests {
		assert.Equal(t, want, topicLevel(in), "input %q", in)
	}
}

func TestPublisher_Notify(t *testing.T) {
	c := &fakeClient{connected: true}
	p := newTestPublisher(c)

	require.NoError(t, p.Notify(context.Background(), extremeProduct()))

	require.Len(t, c.published, 1)
	msg := c.published[0]
	assert.Equal(t, "radar/alerts/ACHN/CR", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.False(t, msg.retained)
	assert.Contains(t, string(msg.payload), `"intensity":"extreme"`)
}

func TestPublisher_Notify_NotConnected(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)

	err := p.Notify(context.Background(), extremeProduct())
	require.Error(t, err)
	assert.Empty(t, c.published)
}

func TestPublisher_Notify_BrokerError(t *testing.T) {
	c := &fakeClient{connected: true, publishToken: completedToken(errors.New("not authorized"))}
	p := newTestPublisher(c)

	err := p.Notify(context.Background(), extremeProduct())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "radar/alerts/ACHN/CR")
	assert.Contains(t, err.Error(), "not authorized")
}

func TestPublisher_Notify_ContextCancelled(t *testing.T) {
	c := &fakeClient{connected: true, publishToken: pendingToken()}
	p := newTestPublisher(c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Notify(ctx, extremeProduct())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublisher_Connect(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		p := newTestPublisher(&fakeClient{})
		require.NoError(t, p.Connect(context.Background()))
	})

	t.Run("broker refuses", func(t *testing.T) {
		p := newTestPublisher(&fakeClient{connectToken: completedToken(errors.New("connection refused"))})
		err := p.Connect(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mqtt connect")
	})

	t.Run("context cancelled while waiting", func(t *testing.T) {
		c := &fakeClient{connectToken: pendingToken()}
		p := newTestPublisher(c)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		require.ErrorIs(t, p.Connect(ctx), context.DeadlineExceeded)
		assert.Equal(t, 0, c.disconnects, "background retry must keep running")
	})

	t.Run("broker down does not block startup", func(t *testing.T) {
		c := &fakeClient{connectToken: pendingToken()}
		p := newTestPublisher(c)
		p.connectTimeout = 50 * time.Millisecond

		start := time.Now()
		err := p.Connect(context.Background())
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, 0, c.disconnects)

		// The retrying client connects later and the handler flips the state.
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		p.setConnected(true)
		require.NoError(t, p.Notify(context.Background(), extremeProduct()))
		assert.Len(t, c.published, 1)
	})

	t.Run("after disconnect", func(t *testing.T) {
		p := newTestPublisher(&fakeClient{})
		p.Disconnect()
		p.Disconnect()
		require.ErrorIs(t, p.Connect(context.Background()), errStopped)
	})
}
