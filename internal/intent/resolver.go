package intent

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ErrNoMatch is returned when no rule fires for a question
var ErrNoMatch = errors.New("no intent matched the question")

// Shape is the expected result shape of a rule
type Shape string

const (
	ShapeScalar  Shape = "scalar"
	ShapeTable   Shape = "table"
	ShapeTopN    Shape = "top-n"
	ShapeRanking Shape = "ranking"
)

// Params are named template parameters
type Params map[string]interface{}

// Rule maps questions to a parameterized query template.
type Rule struct {
	Name  string
	Shape Shape
	// Pinned rules are always answered by the template, even when a
	// model gateway is configured.
	Pinned bool
	// Match receives the lower-cased, trimmed question.
	Match func(q string) bool
	// Template uses :name placeholders.
	Template string
	// Extract returns the template parameters. An error skips the rule.
	Extract func(q string) (Params, error)
}

// BoundQuery is a rule template bound to its parameters
type BoundQuery struct {
	Rule   string
	Shape  Shape
	Pinned bool
	SQL    string
	Args   []interface{}

	template string
	params   Params
}

// Display renders the template with literal parameter values
func (b *BoundQuery) Display() string {
	if len(b.params) == 0 {
		return b.template
	}
	names := make([]string, 0, len(b.params))
	for name := range b.params {
		names = append(names, name)
	}
	// longest first so :limit never clobbers :limit_x
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	out := b.template
	for _, name := range names {
		out = strings.ReplaceAll(out, ":"+name, literal(b.params[name]))
	}
	return out
}

func literal(v interface{}) string {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case nil:
		return "NULL"
	default:
		return fmt.Sprint(x)
	}
}

// Resolver evaluates rules in a fixed priority order
type Resolver struct {
	rules []Rule
}

// NewResolver creates a resolver over a copy of rules
func NewResolver(rules []Rule) *Resolver {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Resolver{rules: cp}
}

// Rules returns the rule names in priority order
func (r *Resolver) Rules() []string {
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = rule.Name
	}
	return names
}

// Resolve returns the query of the first matching rule.
func (r *Resolver) Resolve(question string) (*BoundQuery, error) {
	q := normalize(question)
	if q == "" {
		return nil, ErrNoMatch
	}

	for _, rule := range r.rules {
		if !rule.Match(q) {
			continue
		}

		params := Params{}
		if rule.Extract != nil {
			p, err := rule.Extract(q)
			if err != nil {
				continue
			}
			params = p
		}

		bound, err := bind(rule, params)
		if err != nil {
			continue
		}
		return bound, nil
	}

	return nil, ErrNoMatch
}

func bind(rule Rule, params Params) (*BoundQuery, error) {
	query, args := rule.Template, []interface{}(nil)
	if len(params) > 0 {
		var err error
		query, args, err = sqlx.Named(rule.Template, map[string]interface{}(params))
		if err != nil {
			return nil, fmt.Errorf("failed to bind rule %s: %w", rule.Name, err)
		}
	}

	return &BoundQuery{
		Rule:     rule.Name,
		Shape:    rule.Shape,
		Pinned:   rule.Pinned,
		SQL:      query,
		Args:     args,
		template: rule.Template,
		params:   params,
	}, nil
}

var spaces = regexp.MustCompile(`\s+`)

func normalize(question string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(question)), " ")
}

// Contains returns a predicate matching any of the phrases
func Contains(phrases ...string) func(string) bool {
	return func(q string) bool {
		for _, p := range phrases {
			if strings.Contains(q, p) {
				return true
			}
		}
		return false
	}
}

// All returns a predicate matching when every predicate matches
func All(preds ...func(string) bool) func(string) bool {
	return func(q string) bool {
		for _, p := range preds {
			if !p(q) {
				return false
			}
		}
		return true
	}
}

// Not negates a predicate
func Not(pred func(string) bool) func(string) bool {
	return func(q string) bool {
		return !pred(q)
	}
}

// Pattern returns a predicate matching a regular expression
func Pattern(re *regexp.Regexp) func(string) bool {
	return re.MatchString
}

// positiveInt parses s as a positive int64
func positiveInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("number must be positive: %d", n)
	}
	return n, nil
}
