package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTableName = "documents"
	colID            = "id"
	colCollection    = "collection"
	colVersion       = "version"
	colData          = "data"
	colCreatedAt     = "created_at"
	colUpdatedAt     = "updated_at"
)

// SQL is a Store backed by a single documents table.
type SQL struct {
	db      *sqlx.DB
	dialect Dialect
	table   string
	tracer  trace.Tracer
	now     func() time.Time
}

var _ Store = (*SQL)(nil)

// Option configures a SQL store.
type Option func(*SQL) error

// WithTableName overrides the documents table name.
func WithTableName(name string) Option {
	return func(s *SQL) error {
		if name == "" {
			return errors.New("table name must not be empty")
		}
		s.table = name
		return nil
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *SQL) error {
		s.now = now
		return nil
	}
}

// NewSQL wraps db. driverName must be the name db was opened with so
// placeholders are rebound correctly.
func NewSQL(db *sql.DB, driverName string, dialect Dialect, options ...Option) (*SQL, error) {
	s := &SQL{
		db:      sqlx.NewDb(db, driverName),
		dialect: dialect,
		table:   defaultTableName,
		tracer:  otel.Tracer("lendhub/docstore"),
		now:     time.Now,
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SQL) startSpan(ctx context.Context, op, collection string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("doc.collection", collection),
		attribute.String("db.system", s.dialect.Name),
	)
	return s.tracer.Start(ctx, "docstore."+op, trace.WithAttributes(attrs...))
}

func (s *SQL) selectColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s", colID, colCollection, colVersion, colData, colCreatedAt, colUpdatedAt)
}

func (s *SQL) Get(ctx context.Context, collection, id string) (Document, error) {
	ctx, span := s.startSpan(ctx, "get", collection, attribute.String("doc.id", id))
	defer span.End()

	query := s.db.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE collection = ? AND id = ?`, s.selectColumns(), s.table))

	var doc Document
	err := s.db.GetContext(ctx, &doc, query, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *SQL) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	ctx, span := s.startSpan(ctx, "query", collection, attribute.Int("filter.fields", len(filter)))
	defer span.End()

	exprs, err := s.dialect.filterExpressions(filter)
	if err != nil {
		return nil, err
	}
	exprs = append([]goqu.Expression{goqu.C(colCollection).Eq(collection)}, exprs...)

	query, args, err := goqu.Dialect(s.dialect.Name).
		From(s.table).
		Prepared(true).
		Select(colID, colCollection, colVersion, colData, colCreatedAt, colUpdatedAt).
		Where(exprs...).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var docs []Document
	if err := s.db.SelectContext(ctx, &docs, query, args...); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query documents: %w", err)
	}
	span.SetAttributes(attribute.Int("docs.loaded", len(docs)))
	return docs, nil
}

func (s *SQL) Insert(ctx context.Context, collection, id string, v any) (Document, error) {
	ctx, span := s.startSpan(ctx, "insert", collection, attribute.String("doc.id", id))
	defer span.End()

	if id == "" {
		return Document{}, ErrEmptyID
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("encode document: %w", err)
	}

	now := s.now().UTC()
	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (collection, id, version, data, created_at, updated_at) VALUES (?, ?, 1, %s, ?, ?)`,
		s.table, s.dialect.JSONParam,
	))
	if _, err := s.db.ExecContext(ctx, query, collection, id, string(data), now, now); err != nil {
		if isUniqueViolation(err) {
			return Document{}, ErrAlreadyExists
		}
		span.RecordError(err)
		return Document{}, fmt.Errorf("insert document: %w", err)
	}

	return Document{ID: id, Collection: collection, Version: 1, Data: data, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQL) Put(ctx context.Context, collection, id string, v any) error {
	return s.PutBatch(ctx, collection, []Record{{ID: id, Value: v}})
}

func (s *SQL) PutBatch(ctx context.Context, collection string, records []Record) error {
	ctx, span := s.startSpan(ctx, "put_batch", collection, attribute.Int("doc.count", len(records)))
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(fmt.Sprintf(`
		INSERT INTO %[1]s (collection, id, version, data, created_at, updated_at)
		VALUES (?, ?, 1, %[2]s, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = excluded.data,
		    version = %[1]s.version + 1,
		    updated_at = excluded.updated_at`,
		s.table, s.dialect.JSONParam,
	))

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, rec := range records {
		if rec.ID == "" {
			return ErrEmptyID
		}
		data, err := codec.Marshal(rec.Value)
		if err != nil {
			return fmt.Errorf("encode document %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, rec.ID, string(data), now, now); err != nil {
			span.RecordError(err)
			return fmt.Errorf("put document %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQL) Update(ctx context.Context, collection, id string, fields Fields, expectedVersion int) (int, error) {
	ctx, span := s.startSpan(ctx, "update", collection,
		attribute.String("doc.id", id),
		attribute.Int("expected.version", expectedVersion),
	)
	defer span.End()

	patch, err := encodeFields(fields)
	if err != nil {
		return 0, fmt.Errorf("encode fields: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := fmt.Sprintf(
		`UPDATE %s SET data = %s, version = version + 1, updated_at = ? WHERE collection = ? AND id = ?`,
		s.table, s.dialect.MergeExpr,
	)
	args := []any{string(patch), s.now().UTC(), collection, id}
	if expectedVersion > 0 {
		update += " AND version = ?"
		args = append(args, expectedVersion)
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(update), args...)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	var version int
	err = tx.GetContext(ctx, &version,
		tx.Rebind(fmt.Sprintf(`SELECT version FROM %s WHERE collection = ? AND id = ?`, s.table)),
		collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	if affected == 0 {
		span.SetAttributes(
			attribute.Int("actual.version", version),
			attribute.Bool("conflict.detected", true),
		)
		return 0, ErrConcurrencyConflict
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return version, nil
}

func (s *SQL) Delete(ctx context.Context, collection, id string) (bool, error) {
	ctx, span := s.startSpan(ctx, "delete", collection, attribute.String("doc.id", id))
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE collection = ? AND id = ?`, s.table)),
		collection, id)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("delete document: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQL) BatchDelete(ctx context.Context, collection string, ids []string) (int, error) {
	ctx, span := s.startSpan(ctx, "batch_delete", collection, attribute.Int("doc.count", len(ids)))
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := goqu.Dialect(s.dialect.Name).
		Delete(s.table).
		Prepared(true).
		Where(goqu.C(colCollection).Eq(collection), goqu.C(colID).In(ids)).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("batch delete documents: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
