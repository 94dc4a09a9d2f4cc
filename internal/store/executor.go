package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ecom-agent/internal/apperr"
	"ecom-agent/internal/catalog"
	"ecom-agent/internal/sqlguard"
	"ecom-agent/internal/util"
)

// Rows is a capped query result
type Rows struct {
	Columns   []string
	Values    [][]interface{}
	Truncated bool
}

// Execute runs a vetted query inside a read-only transaction. At most
// MaxRows rows are returned; Truncated reports whether more existed.
func (s *Store) Execute(ctx context.Context, q sqlguard.Query) (*Rows, error) {
	ctx, span := util.StartSpan(ctx, "Store.Execute")
	defer span.End()

	if q.IsZero() {
		return nil, apperr.UnsafeSQL("query was not vetted")
	}
	util.SpanString(span, "sql", q.SQL())

	result, err := s.execute(ctx, q)
	if err != nil {
		util.SpanError(span, err)
		s.logger.Error("Query execution failed",
			zap.String("sql", q.SQL()),
			zap.Error(err),
		)
		return nil, apperr.Execution(err)
	}

	if result.Truncated {
		util.RowsTruncatedTotal.Inc()
		s.logger.Info("Result truncated at row cap",
			zap.String("sql", q.SQL()),
			zap.Int("max_rows", s.maxRows),
		)
	}
	return result, nil
}

func (s *Store) execute(ctx context.Context, q sqlguard.Query) (*Rows, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// nothing is ever committed
	defer tx.Rollback()

	rows, err := tx.QueryxContext(ctx, tx.Rebind(q.SQL()), q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}
	layouts := make([]string, len(types))
	for i, ct := range types {
		layouts[i] = timeLayout(ct.DatabaseTypeName())
	}

	result := &Rows{Columns: columns, Values: [][]interface{}{}}
	for rows.Next() {
		if len(result.Values) == s.maxRows {
			result.Truncated = true
			break
		}
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = normalize(v, layouts[i])
		}
		result.Values = append(result.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return result, nil
}

const dateLayout = "2006-01-02"

// timeLayout picks how a column's time values are written. Only DATE
// columns lose their time of day.
func timeLayout(dbType string) string {
	if strings.EqualFold(dbType, "DATE") {
		return dateLayout
	}
	return time.RFC3339
}

// normalize converts driver values into JSON-friendly scalars
func normalize(v interface{}, layout string) interface{} {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		if layout == dateLayout {
			return x.Format(dateLayout)
		}
		return x.UTC().Format(time.RFC3339)
	default:
		return v
	}
}

// Samples returns the first n rows of every catalog table
func (s *Store) Samples(ctx context.Context, cat *catalog.Catalog, n int) (map[string]*Rows, error) {
	ctx, span := util.StartSpan(ctx, "Store.Samples")
	defer span.End()

	samples := make(map[string]*Rows)
	for _, t := range cat.Tables() {
		q, err := sqlguard.Vet(fmt.Sprintf("SELECT %s FROM %s LIMIT ?", strings.Join(t.ColumnNames(), ", "), t.Name), n)
		if err != nil {
			return nil, err
		}
		rows, err := s.Execute(ctx, q)
		if err != nil {
			// a missing table leaves an empty sample
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, err
			}
			samples[t.Name] = &Rows{Columns: t.ColumnNames(), Values: [][]interface{}{}}
			continue
		}
		samples[t.Name] = rows
	}
	return samples, nil
}
