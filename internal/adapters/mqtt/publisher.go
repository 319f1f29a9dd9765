// Package mqtt publishes device-list snapshots to a broker so external
// dashboards can follow the scene without polling.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
)

const connectTimeout = 5 * time.Second

// Publisher implements ports.ScenePublisher over MQTT.
type Publisher struct {
	client pahomqtt.Client
	topic  string
}

func NewPublisher(brokerURL, topic string) (*Publisher, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("netsimd-" + uuid.New().String()[:8]).
		SetAutoReconnect(true)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", brokerURL, err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// PublishDevices fires and forgets one snapshot. Delivery is not waited
// on; the broker is an observer, never a dependency.
func (p *Publisher) PublishDevices(devices []domain.DeviceView) {
	payload, err := json.Marshal(devices)
	if err != nil {
		log.Printf("mqtt: marshal devices: %v", err)
		return
	}
	p.client.Publish(p.topic, 0, false, payload)
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
