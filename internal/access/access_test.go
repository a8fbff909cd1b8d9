package access

import (
	"testing"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/device"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/session"
)

func testDevices() map[string]*device.Device {
	return map[string]*device.Device{
		"dev-1": {ID: "dev-1", Name: "Kitchen Lights", OwnerEmail: "a@x.com"},
		"dev-2": {ID: "dev-2", Name: "Garage Door", OwnerEmail: "b@x.com"},
		"dev-3": {ID: "dev-3", Name: "Orphan Sensor", OwnerEmail: ""},
		"dev-4": {ID: "dev-4", Name: "Bad Owner", OwnerEmail: "not-an-email"},
	}
}

func TestFilter_AdminSeesEverything(t *testing.T) {
	admin := &session.Principal{ID: "usr-1", Email: "a@x.com", Role: session.RoleAdmin}

	view := Filter(testDevices(), admin)
	if len(view) != 4 {
		t.Errorf("admin view = %d devices, want 4", len(view))
	}
}

func TestFilter_UserSeesOwnedOnly(t *testing.T) {
	user := &session.Principal{ID: "usr-1", Email: "a@x.com", Role: session.RoleUser}

	view := Filter(testDevices(), user)
	if len(view) != 1 {
		t.Fatalf("user view = %d devices, want 1", len(view))
	}
	if _, ok := view["dev-1"]; !ok {
		t.Error("user should see their own device dev-1")
	}
}

func TestFilter_MalformedOwnerBelongsToNoOne(t *testing.T) {
	// A user whose email literally matches the malformed owner string still
	// must not see the device
	user := &session.Principal{ID: "usr-1", Email: "not-an-email", Role: session.RoleUser}

	view := Filter(testDevices(), user)
	if len(view) != 0 {
		t.Errorf("view = %d devices, want 0 for malformed owner match", len(view))
	}
}

func TestFilter_NilPrincipal(t *testing.T) {
	view := Filter(testDevices(), nil)
	if len(view) != 0 {
		t.Errorf("nil principal view = %d devices, want 0", len(view))
	}
}

func TestFilter_CaseInsensitiveOwnerMatch(t *testing.T) {
	devices := map[string]*device.Device{
		"dev-1": {ID: "dev-1", OwnerEmail: "Jack@Example.com"},
	}
	user := &session.Principal{ID: "usr-1", Email: "jack@example.com", Role: session.RoleUser}

	view := Filter(devices, user)
	if len(view) != 1 {
		t.Errorf("view = %d devices, want 1 (owner match is case-insensitive)", len(view))
	}
}

func TestFilter_EmptyCollection(t *testing.T) {
	user := &session.Principal{ID: "usr-1", Email: "a@x.com", Role: session.RoleUser}

	view := Filter(map[string]*device.Device{}, user)
	if view == nil {
		t.Fatal("Filter() should return an empty map, not nil")
	}
	if len(view) != 0 {
		t.Errorf("view = %d devices, want 0", len(view))
	}
}

func TestCanControl(t *testing.T) {
	owned := &device.Device{ID: "dev-1", OwnerEmail: "a@x.com"}
	other := &device.Device{ID: "dev-2", OwnerEmail: "b@x.com"}
	orphan := &device.Device{ID: "dev-3", OwnerEmail: ""}

	admin := &session.Principal{ID: "usr-1", Email: "c@x.com", Role: session.RoleAdmin}
	user := &session.Principal{ID: "usr-2", Email: "a@x.com", Role: session.RoleUser}

	tests := []struct {
		name      string
		device    *device.Device
		principal *session.Principal
		want      bool
	}{
		{"admin controls any device", other, admin, true},
		{"admin controls orphan device", orphan, admin, true},
		{"owner controls own device", owned, user, true},
		{"user cannot control another's device", other, user, false},
		{"user cannot control orphan device", orphan, user, false},
		{"nil principal controls nothing", owned, nil, false},
		{"nil device", nil, admin, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanControl(tt.device, tt.principal); got != tt.want {
				t.Errorf("CanControl() = %v, want %v", got, tt.want)
			}
		})
	}
}
