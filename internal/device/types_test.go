package device

import (
	"testing"
	"time"
)

func TestOnline(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name string
		dev  *Device
		want bool
	}{
		{
			name: "no data",
			dev:  &Device{ID: "ESP32_A"},
			want: false,
		},
		{
			name: "fresh telemetry",
			dev:  &Device{Data: &Data{TimestampSeconds: now.Unix() - 5}},
			want: true,
		},
		{
			name: "just inside window",
			dev:  &Device{Data: &Data{TimestampSeconds: now.Unix() - 119}},
			want: true,
		},
		{
			name: "exactly at window boundary",
			dev:  &Device{Data: &Data{TimestampSeconds: now.Unix() - 120}},
			want: false,
		},
		{
			name: "stale telemetry",
			dev:  &Device{Data: &Data{TimestampSeconds: now.Unix() - 3600}},
			want: false,
		},
		{
			name: "timestamp in the future",
			dev:  &Device{Data: &Data{TimestampSeconds: now.Unix() + 60}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dev.Online(now); got != tt.want {
				t.Errorf("Online() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRelay(t *testing.T) {
	dev := &Device{
		Data: &Data{
			Relays: []Relay{{ID: 0, State: false}, {ID: 1, State: true}},
		},
	}

	r, ok := dev.Relay(1)
	if !ok {
		t.Fatal("Relay(1) not found")
	}
	if !r.State {
		t.Error("Relay(1).State = false, want true")
	}

	if _, ok := dev.Relay(2); ok {
		t.Error("Relay(2) should be out of range")
	}
	if _, ok := dev.Relay(-1); ok {
		t.Error("Relay(-1) should be out of range")
	}

	empty := &Device{}
	if _, ok := empty.Relay(0); ok {
		t.Error("Relay(0) on device without data should not be found")
	}
}

func TestClone_Independence(t *testing.T) {
	orig := &Device{
		ID:         "ESP32_A",
		OwnerEmail: "a@x.com",
		Data: &Data{
			TimestampSeconds: 100,
			Relays:           []Relay{{ID: 0, State: false}},
			PWM:              &PWM{Brightness: 40, ActiveRelay: 1},
			Sensors:          &Sensors{Temperature: 21.5},
		},
	}

	clone := orig.Clone()
	clone.Data.Relays[0].State = true
	clone.Data.PWM.Brightness = 90
	clone.Data.Sensors.Temperature = 0

	if orig.Data.Relays[0].State {
		t.Error("mutating clone relay state affected original")
	}
	if orig.Data.PWM.Brightness != 40 {
		t.Error("mutating clone PWM affected original")
	}
	if orig.Data.Sensors.Temperature != 21.5 {
		t.Error("mutating clone sensors affected original")
	}
}

func TestCollectionFromValue_SkipsMalformed(t *testing.T) {
	value := map[string]any{
		"ESP32_A": map[string]any{
			"name":        "Hallway",
			"owner_email": "a@x.com",
			"data": map[string]any{
				"timestamp_seconds": float64(123),
				"relays":            []any{map[string]any{"id": float64(0), "state": true}},
			},
		},
		"ESP32_BAD": "not a document",
	}

	devices, skipped := CollectionFromValue(value)

	if len(devices) != 1 {
		t.Fatalf("decoded %d devices, want 1", len(devices))
	}
	d := devices["ESP32_A"]
	if d == nil || d.OwnerEmail != "a@x.com" {
		t.Fatalf("device ESP32_A not decoded correctly: %+v", d)
	}
	if !d.Data.Relays[0].State {
		t.Error("relay state not decoded")
	}
	if len(skipped) != 1 || skipped[0] != "ESP32_BAD" {
		t.Errorf("skipped = %v, want [ESP32_BAD]", skipped)
	}
}

func TestCollectionFromValue_NonMap(t *testing.T) {
	devices, skipped := CollectionFromValue("garbage")
	if len(devices) != 0 || len(skipped) != 0 {
		t.Errorf("expected empty result for non-map value, got %v / %v", devices, skipped)
	}
}
