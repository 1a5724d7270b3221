// Package docstore is a small JSON document store with equality queries,
// shallow-merge updates and optimistic concurrency on a per-document version.
//
// Two backends are provided: an in-memory store for tests and single-process
// deployments, and a SQL store for postgres and sqlite. Neither guarantees any
// ordering of query results; callers sort in memory.
package docstore

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var (
	ErrNotFound            = errors.New("document not found")
	ErrAlreadyExists       = errors.New("document already exists")
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrEmptyID             = errors.New("document id must not be empty")
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is a stored JSON value with its bookkeeping columns.
type Document struct {
	ID         string    `json:"id" db:"id"`
	Collection string    `json:"collection" db:"collection"`
	Version    int       `json:"version" db:"version"`
	Data       []byte    `json:"data" db:"data"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	return codec.Unmarshal(d.Data, v)
}

// Filter selects documents whose top-level fields equal the given values.
type Filter map[string]any

// Fields is a partial update merged into the top level of a document.
type Fields map[string]any

// Record pairs an id with a value for batch writes.
type Record struct {
	ID    string
	Value any
}

// Store is the storage contract used by lendhub services.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// Insert fails with ErrAlreadyExists when the id is taken.
	Insert(ctx context.Context, collection, id string, v any) (Document, error)
	// Put creates or replaces the document.
	Put(ctx context.Context, collection, id string, v any) error
	PutBatch(ctx context.Context, collection string, records []Record) error
	// Update merges fields into the document and returns the new version.
	// An expectedVersion above zero must match the stored version.
	Update(ctx context.Context, collection, id string, fields Fields, expectedVersion int) (int, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
	BatchDelete(ctx context.Context, collection string, ids []string) (int, error)
}

// Encode marshals v with the store codec.
func Encode(v any) ([]byte, error) {
	return codec.Marshal(v)
}

// DecodeAll unmarshals every document into a fresh T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func encodeFields(fields Fields) ([]byte, error) {
	return codec.Marshal(map[string]any(fields))
}
