// Package mqtt publishes alerts for intense radar products to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/storm-mosaic-etl/internal/config"
	"github.com/couchcryptid/storm-mosaic-etl/internal/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	qos            = byte(1) // at least once
	publishTimeout = 5 * time.Second
	connectTimeout = 5 * time.Second
)

var errStopped = errors.New("mqtt publisher stopped")

// client is the subset of mqtt.Client the publisher uses.
type client interface {
	IsConnected() bool
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Alert is the JSON payload published for a heavy or extreme product.
type Alert struct {
	ProductID  string      `json:"product_id"`
	VarName    string      `json:"var"`
	RegionID   string      `json:"region"`
	Intensity  string      `json:"intensity"`
	MaxValue   float64     `json:"max_value"`
	Units      string      `json:"units,omitempty"`
	MaxAt      *domain.Geo `json:"max_at,omitempty"`
	Center     domain.Geo  `json:"center"`
	Coverage   float64     `json:"coverage"`
	PlaceName  string      `json:"place_name,omitempty"`
	ObservedAt time.Time   `json:"observed_at"`
}

// Publisher implements pipeline.Notifier.
type Publisher struct {
	client      client
	topicPrefix string
	logger      *slog.Logger
	mu          sync.RWMutex
	connected   bool

	connectTimeout time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPublisher builds a publisher for cfg.MQTTBroker (for example
// tcp://mosquitto:1883). Call Connect before Notify.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	p := &Publisher{
		topicPrefix:    strings.TrimSuffix(cfg.MQTTTopicPrefix, "/"),
		logger:         logger,
		connectTimeout: connectTimeout,
		stopCh:         make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits up to the connect timeout for the first connection to the
// broker. When the wait ends without a connection the client keeps retrying in
// the background and Notify starts working once it connects.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return errStopped
	default:
	}

	if p.IsConnected() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("mqtt connect: %w", ctx.Err())
		case <-p.stopCh:
			p.client.Disconnect(0)
			return errStopped
		default:
		}
	}
}

// Notify publishes an alert for product to <prefix>/<region>/<var>.
func (p *Publisher) Notify(ctx context.Context, product domain.MosaicProduct) error {
	if !p.IsConnected() {
		return errors.New("mqtt client not connected")
	}

	topic, payload, err := buildAlert(p.topicPrefix, product)
	if err != nil {
		return err
	}

	token := p.client.Publish(topic, qos, false, payload)

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.logger.Info("alert published", "topic", topic, "product_id", product.ID, "max", product.MaxValue)
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect closes the broker connection. Safe to call more than once.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.client != nil {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// buildAlert returns the topic and JSON payload for product.
func buildAlert(prefix string, product domain.MosaicProduct) (string, []byte, error) {
	alert := Alert{
		ProductID:  product.ID,
		VarName:    product.VarName,
		RegionID:   product.RegionID,
		MaxValue:   product.MaxValue,
		Units:      product.Units,
		MaxAt:      product.MaxAt,
		Center:     product.Center,
		Coverage:   product.Coverage,
		PlaceName:  product.PlaceName,
		ObservedAt: product.ObservedAt,
	}
	if product.Intensity != nil {
		alert.Intensity = *product.Intensity
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return "", nil, fmt.Errorf("encode alert: %w", err)
	}

	topic := prefix + "/" + topicLevel(product.RegionID) + "/" + topicLevel(product.VarName)
	return topic, payload, nil
}

// topicLevel makes s safe as a single MQTT topic level.
func topicLevel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, s)
}
