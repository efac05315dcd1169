package state

import (
	"encoding/json"
	"fmt"
)

// TypedStore is a JSON view of one record kind in Store.
type TypedStore[T any] struct {
	store *Store
	kind  string
}

// NewTypedStore returns a typed view over kind.
func NewTypedStore[T any](store *Store, kind string) *TypedStore[T] {
	return &TypedStore[T]{store: store, kind: kind}
}

// Get decodes the record for id. A missing record yields the zero value and version 0.
func (s *TypedStore[T]) Get(id string) (value T, version int64, err error) {
	payload, version, err := s.store.Get(s.kind, id)
	if err != nil || payload == nil {
		return value, 0, err
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, 0, fmt.Errorf("failed to decode %s %q: %w", s.kind, id, err)
	}
	return value, version, nil
}

// Set encodes and stores the record for id.
func (s *TypedStore[T]) Set(id string, value T) error {
	payload, err := encode(s.kind, id, value)
	if err != nil {
		return err
	}
	return s.store.Set(s.kind, id, payload)
}

// Rename stores value under newID and drops oldID in one transaction.
func (s *TypedStore[T]) Rename(oldID, newID string, value T) error {
	payload, err := encode(s.kind, newID, value)
	if err != nil {
		return err
	}
	return s.store.Move(s.kind, oldID, newID, payload)
}

// Delete removes the record for id.
func (s *TypedStore[T]) Delete(id string) error {
	return s.store.Delete(s.kind, id)
}

// GetAll decodes every record of the kind. Records that fail to decode are
// returned raw in broken so the caller can quarantine them.
func (s *TypedStore[T]) GetAll() (values map[string]T, broken map[string][]byte, err error) {
	payloads, _, err := s.store.GetAll(s.kind)
	if err != nil {
		return nil, nil, err
	}

	values = make(map[string]T, len(payloads))
	broken = make(map[string][]byte)
	for id, payload := range payloads {
		var value T
		if err := json.Unmarshal(payload, &value); err != nil {
			broken[id] = payload
			continue
		}
		values[id] = value
	}
	return values, broken, nil
}

func encode(kind, id string, value any) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %q: %w", kind, id, err)
	}
	return payload, nil
}
