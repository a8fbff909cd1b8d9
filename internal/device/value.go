package device

import (
	"encoding/json"
	"fmt"
)

// FromValue decodes a store document value into a Device. The value is the
// decoded-JSON form delivered by the realtime store (map[string]any).
func FromValue(id string, value any) (*Device, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding device %s: %w", id, err)
	}

	var d Device
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decoding device %s: %w", id, err)
	}

	d.ID = id
	return &d, nil
}

// CollectionFromValue decodes a full devices-collection snapshot
// (map of id to document) as delivered by a store watch.
//
// Malformed entries are skipped rather than failing the whole snapshot: one
// corrupt document must not blank the dashboard for every other device.
// The ids of skipped entries are returned for logging.
func CollectionFromValue(value any) (map[string]*Device, []string) {
	devices := make(map[string]*Device)
	var skipped []string

	docs, ok := value.(map[string]any)
	if !ok {
		return devices, skipped
	}

	for id, doc := range docs {
		d, err := FromValue(id, doc)
		if err != nil {
			skipped = append(skipped, id)
			continue
		}
		devices[id] = d
	}

	return devices, skipped
}
