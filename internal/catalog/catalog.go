package catalog

import (
	"fmt"
	"strings"
)

// Table names
const (
	TableAdSales     = "ad_sales"
	TableTotalSales  = "total_sales"
	TableEligibility = "eligibility"
)

// Column types
const (
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
	TypeInteger   = "integer"
	TypeCurrency  = "currency"
	TypeCount     = "count"
	TypeBoolean   = "boolean"
	TypeText      = "text"
)

// Column describes a single column of a table
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Nullable    bool   `json:"nullable"`
	Description string `json:"description"`
}

// Table describes a table of the store
type Table struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Columns     []Column `json:"columns"`
}

// ColumnNames returns the column names in declaration order
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Catalog is the read-only description of the store
type Catalog struct {
	tables []Table
}

// New creates a catalog from tables. The slice is copied.
func New(tables []Table) *Catalog {
	cp := make([]Table, len(tables))
	for i, t := range tables {
		cols := make([]Column, len(t.Columns))
		copy(cols, t.Columns)
		t.Columns = cols
		cp[i] = t
	}
	return &Catalog{tables: cp}
}

// Default returns the catalog of the e-commerce store
func Default() *Catalog {
	return New([]Table{
		{
			Name:        TableAdSales,
			Description: "Product-level advertising sales and metrics per day",
			Columns: []Column{
				{Name: "date", Type: TypeDate, Description: "Reporting day"},
				{Name: "item_id", Type: TypeInteger, Description: "Product identifier"},
				{Name: "ad_sales", Type: TypeCurrency, Description: "Sales attributed to ads"},
				{Name: "impressions", Type: TypeCount, Description: "Ad impressions"},
				{Name: "ad_spend", Type: TypeCurrency, Description: "Amount spent on ads"},
				{Name: "clicks", Type: TypeCount, Description: "Ad clicks"},
				{Name: "units_sold", Type: TypeCount, Description: "Units sold through ads"},
			},
		},
		{
			Name:        TableTotalSales,
			Description: "Product-level total sales and units ordered per day",
			Columns: []Column{
				{Name: "date", Type: TypeDate, Description: "Reporting day"},
				{Name: "item_id", Type: TypeInteger, Description: "Product identifier"},
				{Name: "total_sales", Type: TypeCurrency, Description: "Total sales amount"},
				{Name: "total_units_ordered", Type: TypeCount, Description: "Total units ordered"},
			},
		},
		{
			Name:        TableEligibility,
			Description: "Product advertising eligibility snapshots",
			Columns: []Column{
				{Name: "eligibility_datetime_utc", Type: TypeTimestamp, Description: "Snapshot time (UTC)"},
				{Name: "item_id", Type: TypeInteger, Description: "Product identifier"},
				{Name: "eligibility", Type: TypeBoolean, Description: "Whether the product is eligible for ads"},
				{Name: "message", Type: TypeText, Nullable: true, Description: "Reason when not eligible"},
			},
		},
	})
}

// Tables returns a copy of the catalog tables
func (c *Catalog) Tables() []Table {
	return New(c.tables).tables
}

// Table looks up a table by name
func (c *Catalog) Table(name string) (Table, bool) {
	for _, t := range c.tables {
		if t.Name == name {
			return New([]Table{t}).tables[0], true
		}
	}
	return Table{}, false
}

// Column looks up a column of a table
func (c *Catalog) Column(table, column string) (Column, bool) {
	t, ok := c.Table(table)
	if !ok {
		return Column{}, false
	}
	for _, col := range t.Columns {
		if col.Name == column {
			return col, true
		}
	}
	return Column{}, false
}

// Names maps table names to their column names, the shape served by /schema
func (c *Catalog) Names() map[string][]string {
	out := make(map[string][]string, len(c.tables))
	for _, t := range c.tables {
		out[t.Name] = t.ColumnNames()
	}
	return out
}

// Describe renders the catalog as text for model prompts
func (c *Catalog) Describe() string {
	var sb strings.Builder
	for _, t := range c.tables {
		fmt.Fprintf(&sb, "Table '%s': %s\n", t.Name, strings.Join(t.ColumnNames(), ", "))
		for _, col := range t.Columns {
			null := ""
			if col.Nullable {
				null = ", nullable"
			}
			fmt.Fprintf(&sb, "  - %s (%s%s): %s\n", col.Name, col.Type, null, col.Description)
		}
	}
	return sb.String()
}
