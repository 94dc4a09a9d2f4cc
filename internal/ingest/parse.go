package ingest

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"ecom-agent/internal/models"
)

// ErrMissingColumn is returned when a sheet lacks a required header
var ErrMissingColumn = errors.New("ingest: missing column")

// RowError describes a rejected input row
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// ReadSheet reads a CSV or XLSX file into raw string rows. The first row
// is the header. Only the first XLSX sheet is read.
func ReadSheet(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return readCSV(f)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// sheet gives named access to the cells of a raw row
type sheet struct {
	index map[string]int
}

func newSheet(header []string, required ...string) (*sheet, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		index[name] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return &sheet{index: index}, nil
}

func (s *sheet) cell(row []string, col string) string {
	i, ok := s.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (s *sheet) intCell(row []string, col string) (int64, error) {
	v := s.cell(row, col)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("%s: invalid integer %q", col, v)
		}
		n = int64(f)
	}
	return n, nil
}

func (s *sheet) countCell(row []string, col string) (int64, error) {
	n, err := s.intCell(row, col)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %d", col, n)
	}
	return n, nil
}

func (s *sheet) floatCell(row []string, col string) (float64, error) {
	v := s.cell(row, col)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", col, v)
	}
	return f, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
}

// parseTime accepts ISO layouts and Excel serial dates
func parseTime(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		return excelize.ExcelDateToTime(serial, false)
	}
	return time.Time{}, fmt.Errorf("invalid date %q", v)
}

func (s *sheet) dateCell(row []string, col string) (string, error) {
	t, err := s.timeCell(row, col)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

func (s *sheet) timeCell(row []string, col string) (time.Time, error) {
	v := s.cell(row, col)
	if v == "" {
		return time.Time{}, fmt.Errorf("%s: missing value", col)
	}
	t, err := parseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", col, err)
	}
	return t.UTC(), nil
}

func (s *sheet) boolCell(row []string, col string) (bool, error) {
	v := s.cell(row, col)
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", col, v)
	}
	return b, nil
}

// blank reports rows with no content, which spreadsheets often trail with
func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ParseAdSales converts raw rows into ad sales records. Invalid rows are
// returned as RowErrors and skipped.
func ParseAdSales(rows [][]string) ([]models.AdSalesRecord, []RowError, error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}
	sh, err := newSheet(rows[0], "date", "item_id")
	if err != nil {
		return nil, nil, err
	}

	var records []models.AdSalesRecord
	var rejected []RowError
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec, err := func() (r models.AdSalesRecord, err error) {
			if r.Date, err = sh.dateCell(row, "date"); err != nil {
				return
			}
			if r.ItemID, err = sh.intCell(row, "item_id"); err != nil {
				return
			}
			if r.AdSales, err = sh.floatCell(row, "ad_sales"); err != nil {
				return
			}
			if r.Impressions, err = sh.countCell(row, "impressions"); err != nil {
				return
			}
			if r.AdSpend, err = sh.floatCell(row, "ad_spend"); err != nil {
				return
			}
			if r.AdSpend < 0 {
				err = fmt.Errorf("ad_spend: must not be negative, got %v", r.AdSpend)
				return
			}
			if r.Clicks, err = sh.countCell(row, "clicks"); err != nil {
				return
			}
			r.UnitsSold, err = sh.countCell(row, "units_sold")
			return
		}()
		if err != nil {
			rejected = append(rejected, RowError{Line: i + 2, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, rejected, nil
}

// ParseTotalSales converts raw rows into total sales records
func ParseTotalSales(rows [][]string) ([]models.TotalSalesRecord, []RowError, error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}
	sh, err := newSheet(rows[0], "date", "item_id")
	if err != nil {
		return nil, nil, err
	}

	var records []models.TotalSalesRecord
	var rejected []RowError
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec, err := func() (r models.TotalSalesRecord, err error) {
			if r.Date, err = sh.dateCell(row, "date"); err != nil {
				return
			}
			if r.ItemID, err = sh.intCell(row, "item_id"); err != nil {
				return
			}
			if r.TotalSales, err = sh.floatCell(row, "total_sales"); err != nil {
				return
			}
			r.TotalUnitsOrdered, err = sh.intCell(row, "total_units_ordered")
			return
		}()
		if err != nil {
			rejected = append(rejected, RowError{Line: i + 2, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, rejected, nil
}

// ParseEligibility converts raw rows into eligibility records. An empty
// message is stored as NULL.
func ParseEligibility(rows [][]string) ([]models.EligibilityRecord, []RowError, error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}
	sh, err := newSheet(rows[0], "eligibility_datetime_utc", "item_id", "eligibility")
	if err != nil {
		return nil, nil, err
	}

	var records []models.EligibilityRecord
	var rejected []RowError
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec, err := func() (r models.EligibilityRecord, err error) {
			if r.EligibilityDatetimeUTC, err = sh.timeCell(row, "eligibility_datetime_utc"); err != nil {
				return
			}
			if r.ItemID, err = sh.intCell(row, "item_id"); err != nil {
				return
			}
			if r.Eligibility, err = sh.boolCell(row, "eligibility"); err != nil {
				return
			}
			if msg := sh.cell(row, "message"); msg != "" {
				r.Message = sql.NullString{String: msg, Valid: true}
			}
			return
		}()
		if err != nil {
			rejected = append(rejected, RowError{Line: i + 2, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, rejected, nil
}
