package chart

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind is the chart chosen for a result
type Kind string

const (
	KindScalar     Kind = "scalar"
	KindBar        Kind = "bar"
	KindTimeSeries Kind = "line"
	KindNone       Kind = "none"
)

// MaxBars limits how many categories a bar chart draws
const MaxBars = 20

// Spec is the chart description derived from a result
type Spec struct {
	Kind   Kind
	Reason string
	XLabel string
	YLabel string
	Labels []string
	Values []float64
}

// Select classifies a result by its shape. It never looks at the question.
func Select(columns []string, rows [][]interface{}) Spec {
	if len(rows) == 0 {
		return Spec{Kind: KindNone, Reason: "no rows"}
	}

	if len(columns) == 1 && len(rows) == 1 {
		if v, ok := number(rows[0][0]); ok {
			return Spec{Kind: KindScalar, YLabel: columns[0], Values: []float64{v}}
		}
		return Spec{Kind: KindNone, Reason: "single value is not numeric"}
	}

	if len(columns) != 2 {
		return Spec{Kind: KindNone, Reason: fmt.Sprintf("%d columns, need 2", len(columns))}
	}

	for _, pair := range [][2]int{{0, 1}, {1, 0}} {
		label, value := pair[0], pair[1]
		if !numericColumn(rows, value) || isIdentifier(columns[value]) {
			continue
		}

		switch {
		case isIdentifier(columns[label]) || categoricalColumn(columns[label], rows, label):
			if len(rows) < 2 {
				return Spec{Kind: KindNone, Reason: "single category"}
			}
			return bar(columns[label], columns[value], rows, label, value)
		case dateColumn(columns[label], rows, label):
			return timeSeries(columns[label], columns[value], rows, label, value)
		}
	}

	return Spec{Kind: KindNone, Reason: "no label and numeric column pair"}
}

// ParseOverride reads a requested chart kind. Empty and "auto" leave the
// choice to Select.
func ParseOverride(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case "bar":
		return KindBar, nil
	case "line":
		return KindTimeSeries, nil
	default:
		return "", fmt.Errorf("unsupported chart_type %q, use auto, bar or line", s)
	}
}

// SelectAs is Select with the drawn kind forced to want. The override only
// applies to two-column results with a numeric value column; anything else
// keeps the automatic choice.
func SelectAs(columns []string, rows [][]interface{}, want Kind) Spec {
	spec := Select(columns, rows)
	if want != KindBar && want != KindTimeSeries {
		return spec
	}

	switch spec.Kind {
	case KindBar, KindTimeSeries:
		spec.Kind = want
		return spec
	}
	if len(columns) != 2 || len(rows) == 0 {
		return spec
	}

	for _, pair := range [][2]int{{0, 1}, {1, 0}} {
		label, value := pair[0], pair[1]
		if numericColumn(rows, value) && !isIdentifier(columns[value]) {
			return build(want, columns[label], columns[value], collect(rows, label, value))
		}
	}
	return spec
}

type point struct {
	label string
	value float64
	at    time.Time
}

func bar(xLabel, yLabel string, rows [][]interface{}, label, value int) Spec {
	points := collect(rows, label, value)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].value > points[j].value
	})
	return build(KindBar, xLabel, yLabel, points)
}

func timeSeries(xLabel, yLabel string, rows [][]interface{}, label, value int) Spec {
	points := collect(rows, label, value)
	for i := range points {
		points[i].at, _ = parseDate(points[i].label)
	}
	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].at.Equal(points[j].at) {
			return points[i].at.Before(points[j].at)
		}
		return points[i].label < points[j].label
	})
	return build(KindTimeSeries, xLabel, yLabel, points)
}

func collect(rows [][]interface{}, label, value int) []point {
	points := make([]point, len(rows))
	for i, row := range rows {
		v, _ := number(row[value])
		points[i] = point{label: text(row[label]), value: v}
	}
	return points
}

func build(kind Kind, xLabel, yLabel string, points []point) Spec {
	spec := Spec{
		Kind:   kind,
		XLabel: xLabel,
		YLabel: yLabel,
		Labels: make([]string, len(points)),
		Values: make([]float64, len(points)),
	}
	for i, p := range points {
		spec.Labels[i] = p.label
		spec.Values[i] = p.value
	}
	return spec
}

// number reports whether v is numeric. Decimal types often arrive as
// strings.
func number(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func text(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func numericColumn(rows [][]interface{}, col int) bool {
	seen := false
	for _, row := range rows {
		if row[col] == nil {
			continue
		}
		if _, ok := number(row[col]); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func isIdentifier(name string) bool {
	n := strings.ToLower(name)
	return n == "item_id" || n == "id" || strings.HasSuffix(n, "_id")
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a date: %q", s)
}

func dateColumn(name string, rows [][]interface{}, col int) bool {
	n := strings.ToLower(name)
	if strings.Contains(n, "date") || strings.Contains(n, "time") || n == "day" || n == "month" {
		return true
	}
	for _, row := range rows {
		switch v := row[col].(type) {
		case time.Time:
			continue
		case string:
			if _, err := parseDate(v); err != nil {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func categoricalColumn(name string, rows [][]interface{}, col int) bool {
	if dateColumn(name, rows, col) {
		return false
	}
	for _, row := range rows {
		switch row[col].(type) {
		case string, []byte, bool, nil:
		default:
			return false
		}
	}
	return true
}
