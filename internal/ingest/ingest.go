package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"ecom-agent/internal/catalog"
	"ecom-agent/internal/models"
	"ecom-agent/internal/util"
)

const batchSize = 200

// Dataset is the full content of the store
type Dataset struct {
	AdSales     []models.AdSalesRecord
	TotalSales  []models.TotalSalesRecord
	Eligibility []models.EligibilityRecord
}

// TableReport summarizes the ingestion of one table
type TableReport struct {
	Table    string
	Source   string
	Loaded   int
	Rejected []RowError
}

// sourceNames lists accepted file names per table, without extension
var sourceNames = map[string][]string{
	catalog.TableAdSales: {
		catalog.TableAdSales,
		"Product-LevelAdSalesandMetrics(mapped)-Product-LevelAdSalesandMetrics(mapped)",
		"Product-LevelAdSalesandMetrics(mapped)",
	},
	catalog.TableTotalSales: {
		catalog.TableTotalSales,
		"Product-LevelTotalSalesandMetrics(mapped)-Product-LevelTotalSalesandMetrics(mapped)",
		"Product-LevelTotalSalesandMetrics(mapped)",
	},
	catalog.TableEligibility: {
		catalog.TableEligibility,
		"Product-LevelEligibilityTable(mapped)-Product-LevelEligibilityTable(mapped)",
		"Product-LevelEligibilityTable(mapped)",
	},
}

// FindSource returns the first existing CSV or XLSX file for table in dir
func FindSource(dir, table string) (string, bool) {
	for _, name := range sourceNames[table] {
		for _, ext := range []string{".csv", ".xlsx"} {
			path := filepath.Join(dir, name+ext)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
	}
	return "", false
}

// Ingester rebuilds the store from flat files. It is the only writer.
type Ingester struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewIngester creates a new ingester
func NewIngester(db *sqlx.DB) *Ingester {
	return &Ingester{
		db:     db,
		logger: util.GetLogger(),
	}
}

// ReadDir parses every table source found in dir. Missing sources leave
// the table empty.
func (i *Ingester) ReadDir(dir string) (*Dataset, []TableReport, error) {
	ds := &Dataset{}
	var reports []TableReport

	for _, table := range []string{catalog.TableAdSales, catalog.TableTotalSales, catalog.TableEligibility} {
		path, ok := FindSource(dir, table)
		if !ok {
			i.logger.Warn("No source file found, table will be empty",
				zap.String("table", table),
				zap.String("dir", dir),
			)
			reports = append(reports, TableReport{Table: table})
			continue
		}

		rows, err := ReadSheet(path)
		if err != nil {
			return nil, nil, err
		}

		report := TableReport{Table: table, Source: path}
		switch table {
		case catalog.TableAdSales:
			ds.AdSales, report.Rejected, err = ParseAdSales(rows)
			report.Loaded = len(ds.AdSales)
		case catalog.TableTotalSales:
			ds.TotalSales, report.Rejected, err = ParseTotalSales(rows)
			report.Loaded = len(ds.TotalSales)
		case catalog.TableEligibility:
			ds.Eligibility, report.Rejected, err = ParseEligibility(rows)
			report.Loaded = len(ds.Eligibility)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		for _, rej := range report.Rejected {
			i.logger.Warn("Rejected row",
				zap.String("table", table),
				zap.Int("line", rej.Line),
				zap.Error(rej.Err),
			)
		}
		reports = append(reports, report)
	}

	return ds, reports, nil
}

// Load replaces the three tables with ds in a single transaction
func (i *Ingester) Load(ctx context.Context, ds *Dataset) error {
	ctx, span := util.StartSpan(ctx, "Ingester.Load")
	defer span.End()

	tx, err := i.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	schema := schemaFor(i.db.DriverName())
	for _, stmt := range append(append([]string{}, schema.drop...), schema.create...) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	if err := insertBatches(ctx, tx, insertAdSales, len(ds.AdSales), func(lo, hi int) interface{} {
		return ds.AdSales[lo:hi]
	}); err != nil {
		return fmt.Errorf("failed to load ad_sales: %w", err)
	}
	if err := insertBatches(ctx, tx, insertTotalSales, len(ds.TotalSales), func(lo, hi int) interface{} {
		return ds.TotalSales[lo:hi]
	}); err != nil {
		return fmt.Errorf("failed to load total_sales: %w", err)
	}
	if err := insertBatches(ctx, tx, insertEligibility, len(ds.Eligibility), func(lo, hi int) interface{} {
		return ds.Eligibility[lo:hi]
	}); err != nil {
		return fmt.Errorf("failed to load eligibility: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	i.logger.Info("Store loaded",
		zap.Int("ad_sales", len(ds.AdSales)),
		zap.Int("total_sales", len(ds.TotalSales)),
		zap.Int("eligibility", len(ds.Eligibility)),
	)
	return nil
}

func insertBatches(ctx context.Context, tx *sqlx.Tx, query string, n int, batch func(lo, hi int) interface{}) error {
	for lo := 0; lo < n; lo += batchSize {
		hi := lo + batchSize
		if hi > n {
			hi = n
		}
		if _, err := tx.NamedExecContext(ctx, query, batch(lo, hi)); err != nil {
			return err
		}
	}
	return nil
}

// Run reads dir and loads it into the store
func (i *Ingester) Run(ctx context.Context, dir string) ([]TableReport, error) {
	ds, reports, err := i.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	if err := i.Load(ctx, ds); err != nil {
		return nil, err
	}
	return reports, nil
}
