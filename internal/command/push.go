package command

import (
	"encoding/json"
	"fmt"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/mqtt"
)

// pushQoS is the QoS level for command pushes. At-least-once: a duplicate
// toggle is corrected by the next telemetry report, a lost one leaves the
// device out of step with the store.
const pushQoS = 1

// Pusher forwards accepted commands to the device transport. The store
// write remains the source of truth; a failed push is degraded service,
// not a failed command.
type Pusher interface {
	PushRelay(deviceID string, relayIndex int, state bool) error
	PushBrightness(deviceID string, value int) error
}

// Publisher is the broker surface the pusher needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTPusher publishes accepted commands to the device's command topic so
// firmware can act without polling the store.
type MQTTPusher struct {
	publisher Publisher
}

// NewMQTTPusher creates a pusher over the given broker client.
func NewMQTTPusher(publisher Publisher) *MQTTPusher {
	return &MQTTPusher{publisher: publisher}
}

// PushRelay publishes the target relay state.
func (p *MQTTPusher) PushRelay(deviceID string, relayIndex int, state bool) error {
	return p.publish(deviceID, map[string]any{
		"type":  "relay",
		"index": relayIndex,
		"state": state,
	})
}

// PushBrightness publishes the target brightness percentage.
func (p *MQTTPusher) PushBrightness(deviceID string, value int) error {
	return p.publish(deviceID, map[string]any{
		"type":  "brightness",
		"value": value,
	})
}

func (p *MQTTPusher) publish(deviceID string, cmd map[string]any) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	// Never retained: commands are transient, state topics carry truth.
	if err := p.publisher.Publish(mqtt.Topics{}.Command(deviceID), payload, pushQoS, false); err != nil {
		return fmt.Errorf("publishing command: %w", err)
	}
	return nil
}
