package mqtt

import "fmt"

// Topic layout: esp32dash/{category}/{device_id}. Device firmware publishes
// telemetry; the core publishes system status and, optionally, commands.
const (
	// TopicPrefix is the base for all dashboard topics.
	TopicPrefix = "esp32dash"

	// TopicPrefixSystem is the base for core status topics.
	TopicPrefixSystem = "esp32dash/system"
)

// Topics provides builders for dashboard MQTT topics. Using these helpers
// keeps topic naming consistent across the codebase.
type Topics struct{}

// Telemetry returns the topic a device publishes its state to.
//
// Example: esp32dash/telemetry/dev-garage
func (Topics) Telemetry(deviceID string) string {
	return fmt.Sprintf("%s/telemetry/%s", TopicPrefix, deviceID)
}

// AllTelemetry returns the wildcard pattern matching every device's
// telemetry topic.
func (Topics) AllTelemetry() string {
	return TopicPrefix + "/telemetry/+"
}

// Command returns the topic for direct command pushes to a device.
//
// Example: esp32dash/command/dev-garage
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the core online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DeviceIDFromTelemetry extracts the device id from a telemetry topic.
// Returns empty string if the topic does not match the telemetry scheme.
func DeviceIDFromTelemetry(topic string) string {
	const prefix = TopicPrefix + "/telemetry/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	id := topic[len(prefix):]
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return ""
		}
	}
	return id
}
