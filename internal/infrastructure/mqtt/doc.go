// Package mqtt wraps paho.mqtt.golang for ESP32 device telemetry.
//
// Devices publish their full state as JSON to esp32dash/telemetry/{device_id}
// on every report interval. The dashboard core subscribes with a single-level
// wildcard and mirrors each payload into the realtime store. Command topics
// exist for future firmware that accepts direct pushes, though the store is
// the authoritative command channel today: devices poll their own document.
//
// The client restores subscriptions automatically after reconnect and
// publishes a Last Will so peers can detect an unclean core shutdown.
package mqtt
