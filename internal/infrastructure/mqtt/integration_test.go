//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_PublishSubscribeRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "carewatch-int-roundtrip"

	client, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	var (
		mu       sync.Mutex
		received string
	)
	done := make(chan struct{})

	err = client.Subscribe(Topics{}.AllVitals(), 1, func(topic string, payload []byte) error {
		mu.Lock()
		received = topic
		mu.Unlock()
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.Subscribed(Topics{}.AllVitals()) {
		t.Error("subscription not tracked")
	}

	if err := client.Publish(Topics{}.Vital("int-1"), []byte(`{"heartRate":70}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	mu.Lock()
	defer mu.Unlock()
	if received != "carewatch/radar/vital/int-1" {
		t.Errorf("received on %q", received)
	}
}
