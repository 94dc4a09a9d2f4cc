package models

import "time"

// Event types
const (
	EventTypeQueryAnswered = "QUERY_ANSWERED"
	EventTypeQueryFailed   = "QUERY_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// QueryAnsweredEvent published when a question produced a result
type QueryAnsweredEvent struct {
	BaseEvent
	Question   string  `json:"question"`
	SQLQuery   string  `json:"sql_query"`
	Source     string  `json:"source"`
	RowCount   int     `json:"row_count"`
	Truncated  bool    `json:"truncated"`
	ChartType  string  `json:"chart_type,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

// QueryFailedEvent published when a question could not be answered
type QueryFailedEvent struct {
	BaseEvent
	Question  string `json:"question"`
	ErrorKind string `json:"error_kind"`
}
