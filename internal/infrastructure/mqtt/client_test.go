package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/carewatch-core/internal/infrastructure/config"
)

// testConfig returns an MQTT config pointing at a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "carewatch-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// newDisconnected returns a client that was never connected.
func newDisconnected() *Client {
	return &Client{cfg: testConfig(), subs: make(map[string]subscription)}
}

func TestBrokerURL(t *testing.T) {
	b := testConfig().Broker
	if got := brokerURL(b); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	b.TLS = true
	if got := brokerURL(b); got != "ssl://127.0.0.1:1883" {
		t.Errorf("brokerURL(tls) = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "gateway"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if opts.ClientID != "carewatch-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "gateway" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		status string
		reason string
	}{
		{"online", buildOnlinePayload("core-1"), "online", ""},
		{"offline", buildOfflinePayload("core-1"), "offline", "graceful_shutdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p statusPayload
			if err := json.Unmarshal([]byte(tt.raw), &p); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if p.Status != tt.status || p.Reason != tt.reason || p.ClientID != "core-1" {
				t.Errorf("payload = %+v", p)
			}
			if p.Timestamp == "" {
				t.Error("timestamp missing")
			}
		})
	}
}

func TestValidation_Disconnected(t *testing.T) {
	c := newDisconnected()
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish wildcard topic", c.Publish("carewatch/+/x", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe bad filter", c.Subscribe("carewatch/#/x", 1, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("t", 3, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 1, noop), ErrNotConnected},
		{"unsubscribe empty", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("t"), ErrNotConnected},
		{"publish json disconnected", c.PublishJSON("t", map[string]int{"a": 1}), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.Stats().Subscriptions != 0 || c.Subscribed("t") {
		t.Error("failed subscriptions must not be tracked")
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := newDisconnected()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := newDisconnected().Close(); err != nil {
		t.Errorf("Close() on unconnected = %v", err)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1 // nothing listens here

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestDeliver_CountsAndLogs(t *testing.T) {
	c := newDisconnected()
	logger := &mockLogger{}
	c.SetLogger(logger)

	var got string
	ok := c.deliver(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})
	ok(nil, fakeMessage{topic: "carewatch/radar/vital/d1", payload: []byte("{}")})
	if got != "carewatch/radar/vital/d1={}" {
		t.Errorf("handler saw %q", got)
	}

	failing := c.deliver(func(string, []byte) error { return errors.New("bad payload") })
	failing(nil, fakeMessage{topic: "x"})

	panicking := c.deliver(func(string, []byte) error { panic("boom") })
	panicking(nil, fakeMessage{topic: "x"})

	if len(logger.warns) != 1 || !strings.Contains(logger.warns[0], "failed") {
		t.Errorf("warns = %v", logger.warns)
	}
	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("errors = %v", logger.errors)
	}

	stats := c.Stats()
	if stats.Received != 3 || stats.HandlerErrors != 1 || stats.Panics != 1 {
		t.Errorf("Stats() = %+v, want 3 received, 1 error, 1 panic", stats)
	}
	if stats.Connected {
		t.Error("Stats().Connected should be false")
	}
}

func TestSetOnCallbacks(t *testing.T) {
	c := newDisconnected()
	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })

	c.connectionDown(errors.New("eof"))
	if lost == nil || lost.Error() != "eof" {
		t.Errorf("disconnect callback got %v", lost)
	}
	if c.IsConnected() {
		t.Error("IsConnected() should be false after disconnect")
	}
}
