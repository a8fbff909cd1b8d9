// Package device defines the domain types for ESP32 dashboard devices.
//
// A Device mirrors the devices/{id} document in the realtime store: identity
// and ownership fields set at provisioning time, plus an optional Data block
// the device overwrites wholesale on each telemetry push. Relay states and
// PWM brightness inside Data are the only fields this system mutates.
//
// Liveness ("online") is derived from the last telemetry timestamp at read
// time and is never stored.
package device
