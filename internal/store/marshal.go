package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/ruleassert/internal/ir"
)

// marshalHandles converts tuple handles to canonical JSON TEXT.
func marshalHandles(handles []ir.FactHandle) (string, error) {
	arr := make(ir.IRArray, len(handles))
	for i, h := range handles {
		arr[i] = ir.IRInt(h)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal handles: %w", err)
	}
	return string(data), nil
}

// unmarshalHandles parses handles TEXT. Empty input yields an empty slice.
func unmarshalHandles(data string) ([]ir.FactHandle, error) {
	if data == "" || data == "[]" {
		return []ir.FactHandle{}, nil
	}
	var raw []int64
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal handles: %w", err)
	}
	out := make([]ir.FactHandle, len(raw))
	for i, h := range raw {
		out[i] = ir.FactHandle(h)
	}
	return out, nil
}
