//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func connectForTest(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	client, err := Connect(cfg, "home-int")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg, "home-int"); err == nil {
		t.Fatal("Connect() expected error for unreachable broker")
	}
}

func TestIntegration_CommandRoundtrip(t *testing.T) {
	core := connectForTest(t, "grayhome-int-core")
	panel := connectForTest(t, "grayhome-int-panel")

	type command struct {
		id     string
		action string
	}
	received := make(chan command, 1)
	err := core.HandleCommands(func(topic string, payload []byte) error {
		id, _ := Topics{}.DeviceIDFromTopic(topic)
		var body struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return err
		}
		received <- command{id: id, action: body.Action}
		return nil
	})
	if err != nil {
		t.Fatalf("HandleCommands() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	topic := "graylogic/home/device/dev-int-01/command"
	if err := panel.PublishJSON(topic, map[string]string{"action": "toggle"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case got := <-received:
		if got.id != "dev-int-01" || got.action != "toggle" {
			t.Errorf("command = %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for command")
	}
}
