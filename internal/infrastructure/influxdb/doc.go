// Package influxdb provides InfluxDB connectivity for sensor history.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, non-blocking batched writes, and health monitoring. The
// telemetry ingestor forwards every decoded sensor reading here so the
// dashboard can chart temperature, humidity, light, and pressure over time;
// the realtime store keeps only the latest report.
//
// All methods are safe for concurrent use. Write errors are delivered
// asynchronously via the SetOnError callback.
package influxdb
