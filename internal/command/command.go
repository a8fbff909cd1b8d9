// Package command dispatches control writes to devices.
//
// Every operation re-checks authorization against the latest cache snapshot
// at call time, validates locally, and issues exactly one store write. There
// is no optimistic cache mutation; observers see the change only when the
// devices subscription redelivers.
package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/access"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/device"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/session"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/store"
)

var (
	// ErrUnauthorized means the principal may not control the target device.
	ErrUnauthorized = errors.New("not authorized for device")

	// ErrDeviceNotFound means the device is absent from the latest snapshot.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrValidation means the request was rejected before any write.
	ErrValidation = errors.New("invalid command")
)

const (
	minBrightness = 0
	maxBrightness = 100
)

// Snapshotter provides the latest device snapshot for authorization checks.
type Snapshotter interface {
	Get(id string) *device.Device
}

// Dispatcher issues device control writes against the realtime store.
type Dispatcher struct {
	cache  Snapshotter
	store  store.Store
	pusher Pusher
	logger Logger
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// NewDispatcher creates a command dispatcher.
func NewDispatcher(cache Snapshotter, st store.Store, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{cache: cache, store: st, logger: logger}
}

// SetPusher attaches a transport that forwards accepted commands to the
// device. Without one, commands only update the store and the device
// catches up from its shadow on the next poll.
func (d *Dispatcher) SetPusher(pusher Pusher) {
	d.pusher = pusher
}

// ToggleRelay reads the relay's current state from the latest snapshot and
// writes the negation. Read-then-write is not atomic against concurrent
// writers; last write wins, and device telemetry overwrites within one
// report interval either way.
func (d *Dispatcher) ToggleRelay(ctx context.Context, principal *session.Principal, deviceID string, relayIndex int) error {
	dev, err := d.authorize(principal, deviceID)
	if err != nil {
		return err
	}

	relay, ok := dev.Relay(relayIndex)
	if !ok {
		return fmt.Errorf("%w: relay index %d out of range", ErrValidation, relayIndex)
	}

	path := fmt.Sprintf("devices/%s/data/relays/%d/state", deviceID, relayIndex)
	if err := d.store.Set(ctx, path, !relay.State); err != nil {
		return fmt.Errorf("writing relay state: %w", err)
	}

	if d.pusher != nil {
		if err := d.pusher.PushRelay(deviceID, relayIndex, !relay.State); err != nil {
			d.logger.Warn("command push failed, device will reconcile from telemetry",
				"device_id", deviceID, "relay", relayIndex, "error", err)
		}
	}

	d.logger.Info("relay toggled",
		"device_id", deviceID, "relay", relayIndex,
		"state", !relay.State, "account_id", principal.ID)
	return nil
}

// SetBrightness writes a brightness percentage unconditionally. Values
// outside [0, 100] are rejected before any write.
func (d *Dispatcher) SetBrightness(ctx context.Context, principal *session.Principal, deviceID string, value int) error {
	if value < minBrightness || value > maxBrightness {
		return fmt.Errorf("%w: brightness %d out of range [%d, %d]",
			ErrValidation, value, minBrightness, maxBrightness)
	}

	if _, err := d.authorize(principal, deviceID); err != nil {
		return err
	}

	path := "devices/" + deviceID + "/data/pwm/brightness"
	if err := d.store.Set(ctx, path, value); err != nil {
		return fmt.Errorf("writing brightness: %w", err)
	}

	if d.pusher != nil {
		if err := d.pusher.PushBrightness(deviceID, value); err != nil {
			d.logger.Warn("command push failed, device will reconcile from telemetry",
				"device_id", deviceID, "value", value, "error", err)
		}
	}

	d.logger.Info("brightness set",
		"device_id", deviceID, "value", value, "account_id", principal.ID)
	return nil
}

// authorize fetches the device from the latest snapshot and checks the
// principal's rights against it. No write happens if this fails.
func (d *Dispatcher) authorize(principal *session.Principal, deviceID string) (*device.Device, error) {
	if principal == nil {
		return nil, ErrUnauthorized
	}

	dev := d.cache.Get(deviceID)
	if dev == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	if !access.CanControl(dev, principal) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, deviceID)
	}
	return dev, nil
}
