package service

import (
	"fmt"
	"strconv"
	"strings"

	"ecom-agent/internal/models"
)

// NoResultsText is the formatted form of an empty result
const NoResultsText = "No results found."

// FormatResults renders rows as pipe-separated text under a header line
func FormatResults(columns []string, rows [][]interface{}) string {
	if len(rows) == 0 {
		return NoResultsText
	}

	var sb strings.Builder
	header := strings.Join(columns, " | ")
	sb.WriteString(header)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", len(header)))

	cells := make([]string, 0, len(columns))
	for _, row := range rows {
		cells = cells[:0]
		for _, v := range row {
			cells = append(cells, formatValue(v))
		}
		sb.WriteString("\n")
		sb.WriteString(strings.Join(cells, " | "))
	}
	return sb.String()
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}

// AnswerText is the prose streamed back for a result
func AnswerText(result *models.QueryResult) string {
	return fmt.Sprintf("Here are the results for your question: '%s'\n\n%s", result.Question, result.FormattedResults)
}
