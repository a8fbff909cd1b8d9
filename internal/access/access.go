// Package access decides which devices a principal may see and control.
package access

import (
	"strings"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/device"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/identity"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/session"
)

// Filter returns the devices visible to the principal: everything for
// admins, owned devices only for users. A device with an absent or
// malformed owner email belongs to no one and is excluded for non-admins.
// A nil principal sees nothing.
//
// The result holds the same device pointers as the input; callers must not
// mutate them. Filter is pure and runs in O(len(devices)).
func Filter(devices map[string]*device.Device, principal *session.Principal) map[string]*device.Device {
	view := make(map[string]*device.Device)
	if principal == nil {
		return view
	}

	if principal.IsAdmin() {
		for id, d := range devices {
			view[id] = d
		}
		return view
	}

	email := strings.ToLower(principal.Email)
	for id, d := range devices {
		if ownsDevice(d, email) {
			view[id] = d
		}
	}
	return view
}

// CanControl reports whether the principal may send commands to the device.
// Admins control everything; users control only devices they own.
func CanControl(d *device.Device, principal *session.Principal) bool {
	if principal == nil || d == nil {
		return false
	}
	if principal.IsAdmin() {
		return true
	}
	return ownsDevice(d, strings.ToLower(principal.Email))
}

func ownsDevice(d *device.Device, email string) bool {
	if d == nil || !identity.IsValidEmail(d.OwnerEmail) {
		return false
	}
	return strings.ToLower(d.OwnerEmail) == email
}
