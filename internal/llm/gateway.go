package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ecom-agent/internal/catalog"
	"ecom-agent/internal/sqlguard"
	"ecom-agent/internal/util"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Fallback reasons reported by the gateway
const (
	ReasonTimeout   = "timeout"
	ReasonCanceled  = "canceled"
	ReasonTransport = "transport"
	ReasonEmpty     = "empty_reply"
	ReasonUnsafe    = "unsafe_sql"
)

// ErrEmptyReply is returned when the model answers with no SQL
var ErrEmptyReply = errors.New("model returned no sql")

// Failure is a model translation that the caller should replace with
// pattern rules
type Failure struct {
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("model translation failed (%s): %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

var fencePattern = regexp.MustCompile("(?i)```(?:sql)?")

const promptNotes = `Important notes:
- The 'ad_sales' table holds advertising metrics (ad_sales, impressions, ad_spend, clicks, units_sold).
- The 'total_sales' table holds total sales (total_sales, total_units_ordered).
- The 'eligibility' table holds product eligibility changes.
- CPC (Cost Per Click) = ad_spend / clicks from 'ad_sales'. Exclude rows where clicks is 0.
- RoAS (Return on Ad Spend) = ad_sales / ad_spend from 'ad_sales'. Exclude rows where ad_spend is 0.
- Write a single read-only SELECT statement.
- Return only the SQL query, no explanations.`

// Gateway asks a Generator to translate questions into vetted SQL
type Gateway struct {
	gen     Generator
	catalog *catalog.Catalog
	timeout time.Duration
	logger  *zap.Logger
}

// NewGateway creates a new model gateway
func NewGateway(gen Generator, cat *catalog.Catalog, timeout time.Duration) *Gateway {
	return &Gateway{
		gen:     gen,
		catalog: cat,
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

// Prompt builds the generation prompt for a question
func (g *Gateway) Prompt(question string) string {
	var sb strings.Builder
	sb.WriteString("Given the following database schema:\n\n")
	sb.WriteString(g.catalog.Describe())
	sb.WriteString("\n")
	sb.WriteString(promptNotes)
	sb.WriteString("\n\nConvert this question into a SQL query:\nQuestion: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n\nSQL Query:")
	return sb.String()
}

// Translate returns vetted SQL for question. Every failure is a *Failure
// and is never retried.
func (g *Gateway) Translate(ctx context.Context, question string) (sqlguard.Query, error) {
	ctx, span := util.StartSpan(ctx, "Gateway.Translate")
	defer span.End()

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	reply, err := g.gen.Generate(callCtx, g.Prompt(question))
	if err != nil {
		reason := ReasonTransport
		switch {
		case ctx.Err() != nil:
			reason = ReasonCanceled
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			reason = ReasonTimeout
		}
		return g.fail(span, reason, err)
	}

	sql := StripFences(reply)
	if sql == "" {
		return g.fail(span, ReasonEmpty, ErrEmptyReply)
	}

	q, err := sqlguard.Vet(sql)
	if err != nil {
		return g.fail(span, ReasonUnsafe, err)
	}

	util.SpanString(span, "sql", q.SQL())
	return q, nil
}

func (g *Gateway) fail(span trace.Span, reason string, err error) (sqlguard.Query, error) {
	util.ModelFallbacksTotal.WithLabelValues(reason).Inc()
	util.SpanError(span, err)
	g.logger.Warn("Model translation failed, falling back to pattern rules",
		zap.String("reason", reason),
		zap.Error(err),
	)
	return sqlguard.Query{}, &Failure{Reason: reason, Err: err}
}

// StripFences removes Markdown code fences around a model reply
func StripFences(reply string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(reply, ""))
}
