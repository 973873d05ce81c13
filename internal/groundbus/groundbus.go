// Package groundbus republishes ground station telemetry and mission state
// to an MQTT broker, for range displays and dashboards. It is purely an
// observability tap: the flight sequence never depends on it.
package groundbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	topicTelemetry = "groundctl/telemetry"
	topicState     = "groundctl/state"
)

// Publisher owns the MQTT connection.
type Publisher struct {
	client mqtt.Client
	broker string
}

// Connect dials the broker (host:port) and returns a connected publisher.
// The client reconnects on its own after connection loss.
func Connect(broker, clientID string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[BUS] connection lost: %v\n", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("[BUS] connected to broker at %s\n", broker)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("groundbus: connect %s: %w", broker, token.Error())
	}
	return &Publisher{client: client, broker: broker}, nil
}

// PublishState announces a flight state transition. Retained, so late
// subscribers immediately see the current state.
func (p *Publisher) PublishState(state string) {
	p.client.Publish(topicState, 1, true, state)
}

// PublishTelemetry publishes a JSON snapshot of the latest telemetry.
func (p *Publisher) PublishTelemetry(snapshot map[string]any) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("[BUS] marshal telemetry: %v\n", err)
		return
	}
	p.client.Publish(topicTelemetry, 0, false, payload)
}

// Close disconnects from the broker, allowing a short drain.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// SnapshotWorker publishes a telemetry snapshot every interval until ctx is
// done.
func SnapshotWorker(ctx context.Context, p *Publisher, interval time.Duration, snapshot func() map[string]any) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.PublishTelemetry(snapshot())
		case <-ctx.Done():
			return
		}
	}
}
