package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// SimulatedErrorMessage is the failure message produced by [CallOptions.SimulateError].
const SimulatedErrorMessage = "Simulated server error"

// Dataset maps a collection name to its records.
type Dataset map[string][]map[string]any

// record is a stored entity; fields keep their JSON encoding so reads always
// hand out fresh copies.
type record map[string]json.RawMessage

// MemorySource is an in-process [Source] holding records in memory.
//
// It mirrors the mock REST API: delays honor context cancellation, simulated
// failures short-circuit before any delay, and patches are shallow merges.
// All methods are safe for concurrent use.
type MemorySource struct {
	mu          sync.RWMutex
	collections map[string][]record
	latency     time.Duration
}

// MemoryOption configures a [MemorySource].
type MemoryOption func(*MemorySource)

// WithBaseLatency adds a fixed latency to every call, on top of
// [CallOptions.Delay].
func WithBaseLatency(d time.Duration) MemoryOption {
	return func(m *MemorySource) {
		if d > 0 {
			m.latency = d
		}
	}
}

// NewMemorySource creates a [MemorySource] seeded with data.
//
// Returns an error if a record cannot be encoded or lacks a numeric "id".
func NewMemorySource(data Dataset, opts ...MemoryOption) (*MemorySource, error) {
	m := &MemorySource{collections: make(map[string][]record, len(data))}
	for _, opt := range opts {
		opt(m)
	}

	for name, items := range data {
		records := make([]record, 0, len(items))
		for i, item := range items {
			rec, err := encodeFields(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
			}
			if _, err := rec.id(); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
			}
			records = append(records, rec)
		}
		m.collections[name] = records
	}
	return m, nil
}

// List implements [Source].
func (m *MemorySource) List(ctx context.Context, collection string, opts CallOptions, out any) error {
	if err := m.prepare(ctx, opts); err != nil {
		return err
	}

	m.mu.RLock()
	records, ok := m.collections[collection]
	if !ok {
		m.mu.RUnlock()
		return notFound("unknown collection %q", collection)
	}
	data, err := json.Marshal(records)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", collection, err)
	}
	return decode(data, out)
}

// Get implements [Source].
func (m *MemorySource) Get(ctx context.Context, collection string, id int, opts CallOptions, out any) error {
	if err := m.prepare(ctx, opts); err != nil {
		return err
	}

	m.mu.RLock()
	idx, err := m.find(collection, id)
	if err != nil {
		m.mu.RUnlock()
		return err
	}
	data, err := json.Marshal(m.collections[collection][idx])
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode %s %d: %w", collection, id, err)
	}
	return decode(data, out)
}

// Patch implements [Source].
func (m *MemorySource) Patch(ctx context.Context, collection string, id int, fields map[string]any, opts CallOptions, out any) error {
	if err := m.prepare(ctx, opts); err != nil {
		return err
	}

	patch, err := encodeFields(fields)
	if err != nil {
		return &Failure{StatusCode: http.StatusBadRequest, Message: err.Error()}
	}

	m.mu.Lock()
	idx, err := m.find(collection, id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	current := m.collections[collection][idx]
	merged := make(record, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	m.collections[collection][idx] = merged
	data, err := json.Marshal(merged)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode %s %d: %w", collection, id, err)
	}
	return decode(data, out)
}

// Collections returns the names of the stored collections.
func (m *MemorySource) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	return names
}

// prepare applies the testing hooks: failure first, then latency.
func (m *MemorySource) prepare(ctx context.Context, opts CallOptions) error {
	if opts.SimulateError {
		return &Failure{StatusCode: http.StatusInternalServerError, Message: SimulatedErrorMessage}
	}
	return sleep(ctx, m.latency+opts.Delay)
}

// find returns the index of an entity. Caller holds the lock.
func (m *MemorySource) find(collection string, id int) (int, error) {
	records, ok := m.collections[collection]
	if !ok {
		return 0, notFound("unknown collection %q", collection)
	}
	for i, rec := range records {
		if recID, err := rec.id(); err == nil && recID == id {
			return i, nil
		}
	}
	return 0, notFound("%s", NotFoundMessage(collection))
}

func (r record) id() (int, error) {
	raw, ok := r["id"]
	if !ok {
		return 0, fmt.Errorf("record has no id")
	}
	var id int
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, fmt.Errorf("record id is not an integer: %w", err)
	}
	return id, nil
}

func encodeFields(fields map[string]any) (record, error) {
	rec := make(record, len(fields))
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		rec[k] = raw
	}
	return rec, nil
}

// decode unmarshals data into out; a nil out discards the result.
func decode(data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
