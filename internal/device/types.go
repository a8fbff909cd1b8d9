package device

import "time"

// OnlineWindow is how recent a device's last telemetry push must be for the
// device to be considered online. A timestamp exactly this old counts as
// offline.
const OnlineWindow = 120 * time.Second

// Device represents a registered ESP32 unit as stored under devices/{id}.
//
// Devices are provisioned externally; the dashboard never creates them.
// Every device is owned by exactly one account (OwnerEmail). The Data block
// is overwritten wholesale by the device on each telemetry push; the only
// fields users may mutate are relay states and PWM brightness.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	OwnerEmail string `json:"owner_email"`
	Data       *Data  `json:"data,omitempty"`
}

// Data is the device-reported telemetry and control state.
type Data struct {
	TimestampSeconds int64    `json:"timestamp_seconds"`
	Relays           []Relay  `json:"relays"`
	PWM              *PWM     `json:"pwm,omitempty"`
	Sensors          *Sensors `json:"sensors,omitempty"`
}

// Relay is a single switched output channel.
type Relay struct {
	ID    int  `json:"id"`
	State bool `json:"state"`
}

// PWM is the dimmer output state.
type PWM struct {
	Brightness  int `json:"brightness"` // 0..100 percent
	ActiveRelay int `json:"active_relay"`
}

// Sensors holds the environmental readings from the device's sensor board.
type Sensors struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	LightLux    float64 `json:"light_lux"`
	PressureHpa float64 `json:"pressure_hpa"`
}

// Online reports whether the device has pushed telemetry recently enough to
// be considered reachable. It is a pure function of the last telemetry
// timestamp and the supplied clock reading; the result is never persisted
// and must be recomputed on every read.
func (d *Device) Online(now time.Time) bool {
	if d == nil || d.Data == nil {
		return false
	}
	age := now.Unix() - d.Data.TimestampSeconds
	return age >= 0 && age < int64(OnlineWindow/time.Second)
}

// Relay returns the relay with the given index, or false if the device has
// no telemetry yet or the index is out of range.
func (d *Device) Relay(index int) (Relay, bool) {
	if d == nil || d.Data == nil || index < 0 || index >= len(d.Data.Relays) {
		return Relay{}, false
	}
	return d.Data.Relays[index], true
}

// Clone returns an independent copy of the device, including its Data block.
// Cache consumers receive clones so mutations never leak into the snapshot.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.Data != nil {
		data := *d.Data
		if d.Data.Relays != nil {
			data.Relays = make([]Relay, len(d.Data.Relays))
			copy(data.Relays, d.Data.Relays)
		}
		if d.Data.PWM != nil {
			pwm := *d.Data.PWM
			data.PWM = &pwm
		}
		if d.Data.Sensors != nil {
			sensors := *d.Data.Sensors
			data.Sensors = &sensors
		}
		cpy.Data = &data
	}

	return &cpy
}
