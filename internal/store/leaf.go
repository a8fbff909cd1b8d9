package store

import (
	"fmt"
	"strconv"
)

// getLeaf walks the decoded JSON document along the given segments.
// Object fields are addressed by name, array elements by numeric segment.
func getLeaf(doc any, segments []string) (any, error) {
	current := doc
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, ErrNotFound
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, ErrNotFound
			}
			current = node[idx]
		default:
			return nil, ErrNotFound
		}
	}
	return current, nil
}

// setLeaf writes value at the leaf addressed by segments, returning the
// updated document. Missing intermediate objects are created; array elements
// must already exist (a leaf write cannot extend an array).
func setLeaf(doc any, segments []string, value any) (any, error) {
	if len(segments) == 0 {
		return value, nil
	}

	seg := segments[0]

	switch node := doc.(type) {
	case map[string]any:
		child, err := setLeaf(node[seg], segments[1:], value)
		if err != nil {
			return nil, err
		}
		node[seg] = child
		return node, nil

	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(node) {
			return nil, fmt.Errorf("%w: array index %q", ErrNotFound, seg)
		}
		child, err := setLeaf(node[idx], segments[1:], value)
		if err != nil {
			return nil, err
		}
		node[idx] = child
		return node, nil

	case nil:
		// Create intermediate objects on the way down.
		child, err := setLeaf(nil, segments[1:], value)
		if err != nil {
			return nil, err
		}
		return map[string]any{seg: child}, nil

	default:
		// Writing through a scalar replaces it with an object.
		child, err := setLeaf(nil, segments[1:], value)
		if err != nil {
			return nil, err
		}
		return map[string]any{seg: child}, nil
	}
}

// removeLeaf deletes the leaf addressed by segments, returning the updated
// document. Removing an absent leaf is a no-op.
func removeLeaf(doc any, segments []string) any {
	if len(segments) == 0 {
		return nil
	}

	seg := segments[0]

	switch node := doc.(type) {
	case map[string]any:
		if len(segments) == 1 {
			delete(node, seg)
			return node
		}
		if child, ok := node[seg]; ok {
			node[seg] = removeLeaf(child, segments[1:])
		}
		return node

	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(node) {
			return node
		}
		if len(segments) == 1 {
			node[idx] = nil
			return node
		}
		node[idx] = removeLeaf(node[idx], segments[1:])
		return node

	default:
		return node
	}
}
