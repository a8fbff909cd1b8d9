// Package telemetry ingests ESP32 device reports from MQTT.
//
// Each device publishes its full state document to its telemetry topic. The
// ingestor validates the payload, mirrors it wholesale into the realtime
// store at devices/{id}/data, and forwards sensor readings to InfluxDB for
// history. Malformed payloads and reports from unregistered devices are
// dropped with a warning; ingest never fails the process.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/device"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/mqtt"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/store"
)

// telemetryQoS is the QoS level for telemetry subscriptions. At-least-once:
// a duplicate report is harmless, a lost one means a stale dashboard.
const telemetryQoS = 1

// Subscriber is the MQTT surface the ingestor needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// SensorWriter forwards readings and relay transitions to time-series
// storage. Implementations must be non-blocking; the ingestor calls this
// on the MQTT handler goroutine.
type SensorWriter interface {
	WriteSensorReading(deviceID, sensor string, value float64)
	WriteRelayState(deviceID string, relayIndex int, state bool)
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Ingestor mirrors device telemetry into the realtime store.
type Ingestor struct {
	subscriber Subscriber
	store      store.Store
	sensors    SensorWriter
	logger     Logger
}

// New creates a telemetry ingestor. The sensor writer may be nil when
// InfluxDB is disabled.
func New(subscriber Subscriber, st store.Store, sensors SensorWriter, logger Logger) *Ingestor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ingestor{
		subscriber: subscriber,
		store:      st,
		sensors:    sensors,
		logger:     logger,
	}
}

// Start subscribes to all device telemetry topics.
func (i *Ingestor) Start() error {
	topic := mqtt.Topics{}.AllTelemetry()
	if err := i.subscriber.Subscribe(topic, telemetryQoS, i.handleMessage); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	return nil
}

// Stop releases the telemetry subscription.
func (i *Ingestor) Stop() error {
	return i.subscriber.Unsubscribe(mqtt.Topics{}.AllTelemetry())
}

// handleMessage processes one telemetry report. Always returns nil for
// recoverable problems so the MQTT client keeps the subscription healthy;
// drops are logged instead.
func (i *Ingestor) handleMessage(topic string, payload []byte) error {
	deviceID := mqtt.DeviceIDFromTelemetry(topic)
	if deviceID == "" {
		i.logger.Warn("telemetry on unexpected topic", "topic", topic)
		return nil
	}

	var data device.Data
	if err := json.Unmarshal(payload, &data); err != nil {
		i.logger.Warn("dropping malformed telemetry payload",
			"device_id", deviceID, "error", err)
		return nil
	}
	if data.TimestampSeconds <= 0 {
		i.logger.Warn("dropping telemetry without timestamp", "device_id", deviceID)
		return nil
	}

	ctx := context.Background()

	// Only registered devices get mirrored; a report from an unknown id
	// would otherwise create a half-formed document with no owner.
	if _, err := i.store.Get(ctx, "devices/"+deviceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			i.logger.Warn("telemetry from unregistered device", "device_id", deviceID)
			return nil
		}
		return fmt.Errorf("checking device registration: %w", err)
	}

	var value any
	raw, err := json.Marshal(&data)
	if err != nil {
		return fmt.Errorf("re-encoding telemetry: %w", err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("decoding telemetry document: %w", err)
	}

	if err := i.store.Set(ctx, "devices/"+deviceID+"/data", value); err != nil {
		return fmt.Errorf("mirroring telemetry: %w", err)
	}

	i.forwardSensors(deviceID, &data)
	i.logger.Debug("telemetry ingested", "device_id", deviceID)
	return nil
}

// forwardSensors pushes present sensor readings and relay states to
// time-series storage.
func (i *Ingestor) forwardSensors(deviceID string, data *device.Data) {
	if i.sensors == nil {
		return
	}

	if s := data.Sensors; s != nil {
		i.sensors.WriteSensorReading(deviceID, "temperature_c", s.Temperature)
		i.sensors.WriteSensorReading(deviceID, "humidity_pct", s.Humidity)
		i.sensors.WriteSensorReading(deviceID, "light_lux", s.LightLux)
		i.sensors.WriteSensorReading(deviceID, "pressure_hpa", s.PressureHpa)
	}

	for _, relay := range data.Relays {
		i.sensors.WriteRelayState(deviceID, relay.ID, relay.State)
	}
}
