package docstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu dialect
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const uniqueViolation = "23505"

// Dialect carries the SQL fragments that differ between backends.
type Dialect struct {
	// Name is the goqu dialect name.
	Name string
	// JSONParam is the placeholder for a JSON document parameter.
	JSONParam string
	// MergeExpr merges a JSON object parameter into the data column.
	MergeExpr string
	contains  func(field string, raw string) exp.Expression
}

// Postgres stores documents in a jsonb column.
var Postgres = Dialect{
	Name:      "postgres",
	JSONParam: "?::jsonb",
	MergeExpr: "data || ?::jsonb",
	contains: func(field, raw string) exp.Expression {
		return goqu.L("data @> ?::jsonb", fmt.Sprintf(`{%q: %s}`, field, raw))
	},
}

// SQLite stores documents as JSON text and relies on the json1 functions.
var SQLite = Dialect{
	Name:      "sqlite3",
	JSONParam: "?",
	MergeExpr: "json_patch(data, ?)",
	contains: func(field, raw string) exp.Expression {
		path := "$." + field
		return goqu.L("json_extract(data, ?) = json_extract(?, '$')", path, raw)
	},
}

func (d Dialect) filterExpressions(filter Filter) ([]exp.Expression, error) {
	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	exprs := make([]exp.Expression, 0, len(fields))
	for _, field := range fields {
		raw, err := codec.Marshal(filter[field])
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", field, err)
		}
		exprs = append(exprs, d.contains(field, string(raw)))
	}
	return exprs, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
