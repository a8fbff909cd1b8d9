package devcache

import (
	"sync"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/device"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/store"
)

// devicesCollection is the store collection the cache mirrors.
const devicesCollection = "devices"

// Cache mirrors the devices collection from the realtime store.
type Cache struct {
	store  store.Store
	logger Logger

	mu       sync.RWMutex
	devices  map[string]*device.Device
	sub      *store.Subscription
	done     chan struct{}
	lastErr  error
	frozen   bool
	onUpdate []func()
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

// New creates an unsubscribed cache. Snapshot returns an empty collection
// until Subscribe has delivered the first snapshot.
func New(st store.Store, logger Logger) *Cache {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Cache{
		store:   st,
		logger:  logger,
		devices: make(map[string]*device.Device),
	}
}

// Subscribe starts mirroring the devices collection. The first snapshot is
// applied before Subscribe returns. Calling Subscribe on an already
// subscribed cache is an error.
func (c *Cache) Subscribe() error {
	c.mu.Lock()
	if c.sub != nil {
		c.mu.Unlock()
		return store.ErrClosed
	}
	c.frozen = false
	c.mu.Unlock()

	sub, err := c.store.Watch(devicesCollection)
	if err != nil {
		return err
	}

	// The store delivers the initial snapshot synchronously on subscribe
	if ev, ok := <-sub.C; ok {
		c.apply(ev)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.sub = sub
	c.done = done
	c.mu.Unlock()

	go c.run(sub, done)
	return nil
}

// run consumes watch events until the subscription closes.
func (c *Cache) run(sub *store.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.C {
		c.apply(ev)
	}
}

// apply installs a snapshot or records a delivery error. Errors keep the
// previous snapshot in place.
func (c *Cache) apply(ev store.Event) {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return
	}

	if ev.Err != nil {
		c.lastErr = ev.Err
		c.mu.Unlock()
		c.logger.Warn("device snapshot delivery failed, keeping cached state", "error", ev.Err)
		return
	}

	devices, skipped := device.CollectionFromValue(ev.Value)
	c.devices = devices
	c.lastErr = nil
	listeners := make([]func(), len(c.onUpdate))
	copy(listeners, c.onUpdate)
	c.mu.Unlock()

	for _, id := range skipped {
		c.logger.Warn("skipping malformed device record", "device_id", id)
	}
	c.logger.Debug("device snapshot applied", "devices", len(devices))

	for _, fn := range listeners {
		fn()
	}
}

// Snapshot returns a deep copy of the current device collection. Before the
// first delivery (or after Unsubscribe) it returns the last-known state,
// which starts empty.
func (c *Cache) Snapshot() map[string]*device.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*device.Device, len(c.devices))
	for id, d := range c.devices {
		out[id] = d.Clone()
	}
	return out
}

// Get returns a deep copy of one device, or nil if unknown.
func (c *Cache) Get(id string) *device.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.devices[id]
	if !ok {
		return nil
	}
	return d.Clone()
}

// LastErr returns the most recent delivery error, or nil if the last
// delivery succeeded.
func (c *Cache) LastErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// OnUpdate registers a listener invoked after each applied snapshot.
// Listeners run on the delivery goroutine and must not block.
func (c *Cache) OnUpdate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = append(c.onUpdate, fn)
}

// Unsubscribe releases the store subscription and freezes the snapshot at
// its last value. Safe to call multiple times.
func (c *Cache) Unsubscribe() {
	c.mu.Lock()
	sub := c.sub
	done := c.done
	c.sub = nil
	c.done = nil
	c.frozen = true
	c.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	if done != nil {
		<-done
	}
}
