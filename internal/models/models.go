package models

import (
	"database/sql"
	"time"
)

// AdSalesRecord is a product-level ad sales row
type AdSalesRecord struct {
	Date        string  `db:"date" json:"date"`
	ItemID      int64   `db:"item_id" json:"item_id"`
	AdSales     float64 `db:"ad_sales" json:"ad_sales"`
	Impressions int64   `db:"impressions" json:"impressions"`
	AdSpend     float64 `db:"ad_spend" json:"ad_spend"`
	Clicks      int64   `db:"clicks" json:"clicks"`
	UnitsSold   int64   `db:"units_sold" json:"units_sold"`
}

// TotalSalesRecord is a product-level total sales row
type TotalSalesRecord struct {
	Date              string  `db:"date" json:"date"`
	ItemID            int64   `db:"item_id" json:"item_id"`
	TotalSales        float64 `db:"total_sales" json:"total_sales"`
	TotalUnitsOrdered int64   `db:"total_units_ordered" json:"total_units_ordered"`
}

// EligibilityRecord is a product eligibility snapshot
type EligibilityRecord struct {
	EligibilityDatetimeUTC time.Time      `db:"eligibility_datetime_utc" json:"eligibility_datetime_utc"`
	ItemID                 int64          `db:"item_id" json:"item_id"`
	Eligibility            bool           `db:"eligibility" json:"eligibility"`
	Message                sql.NullString `db:"message" json:"message"`
}

// Result sources
const (
	SourceModel      = "model"
	SourceRulePrefix = "rule:"
)

// QueryResult is the answer to a single question
type QueryResult struct {
	Question         string          `json:"question"`
	SQLQuery         string          `json:"sql_query"`
	ColumnNames      []string        `json:"column_names"`
	Results          [][]interface{} `json:"results"`
	RowCount         int             `json:"row_count"`
	Truncated        bool            `json:"truncated"`
	FormattedResults string          `json:"formatted_results"`
	ChartType        string          `json:"chart_type,omitempty"`
	ChartImageBase64 string          `json:"chart_image_base64,omitempty"`
	Source           string          `json:"source"`
}

// QueryRequest is the body of POST /query
type QueryRequest struct {
	Question  string `json:"question"`
	Visualize bool   `json:"visualize"`
	// ChartType is auto, bar or line. Empty means auto.
	ChartType string `json:"chart_type"`
}

// StreamQueryRequest is the body of POST /stream_query
type StreamQueryRequest struct {
	Question string `json:"question"`
}
