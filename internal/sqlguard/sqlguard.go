package sqlguard

import (
	"regexp"
	"strings"

	"ecom-agent/internal/apperr"
	"ecom-agent/internal/util"
)

// Denied lists keywords that mutate data or schema, or reach outside the store
var Denied = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate",
	"attach", "detach", "pragma",
}

var (
	deniedPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(Denied, "|") + `)\b`)
	selectPattern = regexp.MustCompile(`(?i)^select\b`)
)

// Query is a vetted, read-only statement with its bound arguments.
// It can only be obtained through Vet.
type Query struct {
	sql  string
	args []interface{}
}

// SQL returns the statement text
func (q Query) SQL() string {
	return q.sql
}

// Args returns a copy of the bound arguments
func (q Query) Args() []interface{} {
	args := make([]interface{}, len(q.args))
	copy(args, q.args)
	return args
}

// IsZero reports whether q was never vetted
func (q Query) IsZero() bool {
	return q.sql == ""
}

// Vet checks that sql is a single read-only SELECT statement.
func Vet(sql string, args ...interface{}) (Query, error) {
	stmt := strings.TrimSpace(sql)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))

	if stmt == "" {
		return reject("empty statement")
	}
	if strings.Contains(stmt, ";") {
		return reject("multiple statements")
	}
	if !selectPattern.MatchString(stmt) {
		return reject("statement is not a SELECT")
	}
	if kw := deniedPattern.FindString(stmt); kw != "" {
		return reject("denied keyword: " + strings.ToLower(kw))
	}

	return Query{sql: stmt, args: args}, nil
}

func reject(reason string) (Query, error) {
	util.UnsafeSQLRejectedTotal.Inc()
	return Query{}, apperr.UnsafeSQL(reason)
}
