package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	now         func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		now:         time.Now,
	}
}

func (m *Memory) collection(name string) map[string]Document {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]Document)
		m.collections[name] = c
	}
	return c
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (m *Memory) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	want := make(map[string]string, len(filter))
	for field, value := range filter {
		raw, err := codec.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", field, err)
		}
		want[field] = string(raw)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Document
	for _, doc := range m.collections[collection] {
		if matches(doc.Data, want) {
			out = append(out, cloneDocument(doc))
		}
	}
	return out, nil
}

func matches(data []byte, want map[string]string) bool {
	for field, raw := range want {
		res := gjson.GetBytes(data, gjson.Escape(field))
		if !res.Exists() || res.Raw != raw {
			return false
		}
	}
	return true
}

func (m *Memory) Insert(ctx context.Context, collection, id string, v any) (Document, error) {
	if id == "" {
		return Document{}, ErrEmptyID
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("encode document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	if _, exists := c[id]; exists {
		return Document{}, ErrAlreadyExists
	}
	now := m.now().UTC()
	doc := Document{ID: id, Collection: collection, Version: 1, Data: data, CreatedAt: now, UpdatedAt: now}
	c[id] = doc
	return cloneDocument(doc), nil
}

func (m *Memory) Put(ctx context.Context, collection, id string, v any) error {
	return m.PutBatch(ctx, collection, []Record{{ID: id, Value: v}})
}

func (m *Memory) PutBatch(ctx context.Context, collection string, records []Record) error {
	encoded := make([][]byte, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return ErrEmptyID
		}
		data, err := codec.Marshal(rec.Value)
		if err != nil {
			return fmt.Errorf("encode document %s: %w", rec.ID, err)
		}
		encoded[i] = data
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	now := m.now().UTC()
	for i, rec := range records {
		doc, exists := c[rec.ID]
		if !exists {
			doc = Document{ID: rec.ID, Collection: collection, CreatedAt: now}
		}
		doc.Version++
		doc.Data = encoded[i]
		doc.UpdatedAt = now
		c[rec.ID] = doc
	}
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Fields, expectedVersion int) (int, error) {
	patch := make(map[string]jsoniter.RawMessage, len(fields))
	for field, value := range fields {
		raw, err := codec.Marshal(value)
		if err != nil {
			return 0, fmt.Errorf("encode field %s: %w", field, err)
		}
		patch[field] = raw
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	doc, ok := c[id]
	if !ok {
		return 0, ErrNotFound
	}
	if expectedVersion > 0 && doc.Version != expectedVersion {
		return 0, ErrConcurrencyConflict
	}

	current := make(map[string]jsoniter.RawMessage)
	if err := codec.Unmarshal(doc.Data, &current); err != nil {
		return 0, fmt.Errorf("decode document %s: %w", id, err)
	}
	for field, raw := range patch {
		current[field] = raw
	}
	data, err := codec.Marshal(current)
	if err != nil {
		return 0, fmt.Errorf("encode document %s: %w", id, err)
	}

	doc.Data = data
	doc.Version++
	doc.UpdatedAt = m.now().UTC()
	c[id] = doc
	return doc.Version, nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collections[collection]
	if _, ok := c[id]; !ok {
		return false, nil
	}
	delete(c, id)
	return true, nil
}

func (m *Memory) BatchDelete(ctx context.Context, collection string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collections[collection]
	removed := 0
	for _, id := range ids {
		if _, ok := c[id]; ok {
			delete(c, id)
			removed++
		}
	}
	return removed, nil
}

func cloneDocument(doc Document) Document {
	doc.Data = append([]byte(nil), doc.Data...)
	return doc
}
