package store

import (
	"errors"
	"reflect"
	"testing"
)

func TestGetLeaf(t *testing.T) {
	doc := map[string]any{
		"name": "Hallway",
		"data": map[string]any{
			"relays": []any{
				map[string]any{"id": 0.0, "state": false},
				map[string]any{"id": 1.0, "state": true},
			},
			"pwm": map[string]any{"brightness": 40.0},
		},
	}

	tests := []struct {
		name     string
		segments []string
		want     any
		wantErr  bool
	}{
		{name: "top-level field", segments: []string{"name"}, want: "Hallway"},
		{name: "nested field", segments: []string{"data", "pwm", "brightness"}, want: 40.0},
		{name: "array element leaf", segments: []string{"data", "relays", "1", "state"}, want: true},
		{name: "missing field", segments: []string{"data", "sensors"}, wantErr: true},
		{name: "array index out of range", segments: []string{"data", "relays", "5"}, wantErr: true},
		{name: "non-numeric array index", segments: []string{"data", "relays", "x"}, wantErr: true},
		{name: "descend through scalar", segments: []string{"name", "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := getLeaf(doc, tt.segments)
			if tt.wantErr {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("error = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("getLeaf() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("getLeaf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetLeaf_ExistingField(t *testing.T) {
	doc := map[string]any{
		"data": map[string]any{
			"relays": []any{map[string]any{"id": 0.0, "state": false}},
		},
	}

	updated, err := setLeaf(doc, []string{"data", "relays", "0", "state"}, true)
	if err != nil {
		t.Fatalf("setLeaf() error = %v", err)
	}

	got, err := getLeaf(updated, []string{"data", "relays", "0", "state"})
	if err != nil {
		t.Fatalf("getLeaf() error = %v", err)
	}
	if got != true {
		t.Errorf("leaf = %v, want true", got)
	}
}

func TestSetLeaf_CreatesIntermediateObjects(t *testing.T) {
	doc := map[string]any{"name": "Hallway"}

	updated, err := setLeaf(doc, []string{"data", "pwm", "brightness"}, 75)
	if err != nil {
		t.Fatalf("setLeaf() error = %v", err)
	}

	got, err := getLeaf(updated, []string{"data", "pwm", "brightness"})
	if err != nil {
		t.Fatalf("getLeaf() error = %v", err)
	}
	if got != 75 {
		t.Errorf("leaf = %v, want 75", got)
	}
}

func TestSetLeaf_ArrayIndexOutOfRange(t *testing.T) {
	doc := map[string]any{"relays": []any{}}

	_, err := setLeaf(doc, []string{"relays", "0", "state"}, true)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRemoveLeaf(t *testing.T) {
	doc := map[string]any{
		"name": "Hallway",
		"data": map[string]any{"temp": 21.0},
	}

	updated := removeLeaf(doc, []string{"data", "temp"})
	if _, err := getLeaf(updated, []string{"data", "temp"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("removed leaf still present, err = %v", err)
	}

	// Removing an absent leaf is a no-op.
	updated = removeLeaf(updated, []string{"data", "missing", "deep"})
	if _, err := getLeaf(updated, []string{"name"}); err != nil {
		t.Errorf("untouched field lost after no-op remove: %v", err)
	}
}

func TestSplitPath(t *testing.T) {
	if _, err := splitPath(""); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("empty path: error = %v, want ErrInvalidPath", err)
	}
	if _, err := splitPath("devices//data"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("empty segment: error = %v, want ErrInvalidPath", err)
	}

	segments, err := splitPath("devices/ESP32_A/data/relays/0/state")
	if err != nil {
		t.Fatalf("splitPath() error = %v", err)
	}
	if len(segments) != 6 {
		t.Errorf("segments = %d, want 6", len(segments))
	}
}
