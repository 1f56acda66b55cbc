package database

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/londonair/airdataset/internal/dataset"
)

// Exporter replaces a PostgreSQL table with the contents of a final table.
type Exporter struct {
	pool *pgxpool.Pool
}

// NewExporter creates an exporter on pool.
func NewExporter(pool *pgxpool.Pool) *Exporter {
	return &Exporter{pool: pool}
}

// Export drops and recreates table, then bulk-loads every row with COPY in a
// single transaction. It returns the number of rows copied.
func (e *Exporter) Export(ctx context.Context, table string, t *dataset.Table) (int64, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ident := pgx.Identifier{table}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()); err != nil {
		return 0, fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.Exec(ctx, CreateTableSQL(table, t.Columns)); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	n, err := tx.CopyFrom(ctx, ident, t.ColumnNames(), pgx.CopyFromSlice(len(t.Rows), func(i int) ([]any, error) {
		return RowValues(t, i), nil
	}))
	if err != nil {
		return 0, fmt.Errorf("copy rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// CreateTableSQL returns the CREATE TABLE statement for columns.
func CreateTableSQL(table string, columns []dataset.Column) string {
	defs := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		def := pgx.Identifier{c.Name}.Sanitize() + " " + sqlType(c.Kind)
		if c.Kind != dataset.KindOptionalFloat {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, `PRIMARY KEY ("site_code", "timestamp")`)
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", pgx.Identifier{table}.Sanitize(), strings.Join(defs, ",\n\t"))
}

func sqlType(k dataset.ColumnKind) string {
	switch k {
	case dataset.KindString:
		return "TEXT"
	case dataset.KindTimestamp:
		return "TIMESTAMPTZ"
	case dataset.KindInt:
		return "INTEGER"
	default:
		return "DOUBLE PRECISION"
	}
}

// RowValues converts row i of t to COPY values.
func RowValues(t *dataset.Table, i int) []any {
	values := make([]any, len(t.Columns))
	for c, col := range t.Columns {
		v := t.Value(i, c)
		switch x := v.(type) {
		case int64:
			if col.Kind == dataset.KindTimestamp {
				v = time.UnixMilli(x).UTC()
			}
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				v = nil
			}
		}
		values[c] = v
	}
	return values
}
