package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// encodeJSON writes data as indented JSON. Struct field order is kept
// unless JSON_SORT_KEYS is on, in which case every object is sorted.
func (h *Handler) encodeJSON(w http.ResponseWriter, status int, data any) error {
	js, err := h.marshal(data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func (h *Handler) marshal(data any) ([]byte, error) {
	if h.config.JSONSortKeys {
		sorted, err := sortKeys(data)
		if err != nil {
			return nil, err
		}
		data = sorted
	}

	js, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return append(js, '\n'), nil
}

// sortKeys round-trips data through a generic value; encoding/json writes
// map keys in sorted order.
func sortKeys(data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}
