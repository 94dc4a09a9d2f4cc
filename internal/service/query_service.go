package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ecom-agent/internal/apperr"
	"ecom-agent/internal/chart"
	"ecom-agent/internal/intent"
	"ecom-agent/internal/models"
	"ecom-agent/internal/sqlguard"
	"ecom-agent/internal/store"
	"ecom-agent/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxQuestionLength bounds question text, in characters
const DefaultMaxQuestionLength = 500

// Executor runs vetted queries against the store
type Executor interface {
	Execute(ctx context.Context, q sqlguard.Query) (*store.Rows, error)
}

// Translator asks an external model for SQL
type Translator interface {
	Translate(ctx context.Context, question string) (sqlguard.Query, error)
}

// ResultCache stores completed results. Get returns nil on a miss.
type ResultCache interface {
	GetResult(ctx context.Context, key string) (*models.QueryResult, error)
	SetResult(ctx context.Context, key string, result *models.QueryResult) error
}

// EventPublisher publishes query outcome events
type EventPublisher interface {
	PublishQueryAnswered(ctx context.Context, event *models.QueryAnsweredEvent) error
	PublishQueryFailed(ctx context.Context, event *models.QueryFailedEvent) error
}

// QueryService turns questions into results
type QueryService struct {
	resolver          *intent.Resolver
	executor          Executor
	translator        Translator
	cache             ResultCache
	publisher         EventPublisher
	maxQuestionLength int
	logger            *zap.Logger
}

// NewQueryService creates a new query service that answers from pattern
// rules only. Use WithTranslator to enable model assist.
func NewQueryService(resolver *intent.Resolver, executor Executor, maxQuestionLength int) *QueryService {
	if maxQuestionLength <= 0 {
		maxQuestionLength = DefaultMaxQuestionLength
	}
	return &QueryService{
		resolver:          resolver,
		executor:          executor,
		maxQuestionLength: maxQuestionLength,
		logger:            util.GetLogger(),
	}
}

// WithTranslator enables model-assisted translation
func (s *QueryService) WithTranslator(t Translator) *QueryService {
	s.translator = t
	return s
}

// WithCache enables result caching
func (s *QueryService) WithCache(c ResultCache) *QueryService {
	s.cache = c
	return s
}

// WithPublisher enables outcome events
func (s *QueryService) WithPublisher(p EventPublisher) *QueryService {
	s.publisher = p
	return s
}

// plan is a vetted query with its display form and origin
type plan struct {
	query    sqlguard.Query
	display  string
	source   string
	fallback *plan
}

// Answer runs the full pipeline for one question, choosing any chart
// automatically
func (s *QueryService) Answer(ctx context.Context, question string, visualize bool) (*models.QueryResult, error) {
	return s.AnswerRequest(ctx, models.QueryRequest{Question: question, Visualize: visualize})
}

// AnswerRequest runs the full pipeline for one request. ChartType forces a
// bar or line chart when the result has a shape that can be drawn.
func (s *QueryService) AnswerRequest(ctx context.Context, req models.QueryRequest) (*models.QueryResult, error) {
	ctx, span := util.StartSpan(ctx, "QueryService.Answer")
	defer span.End()

	start := time.Now()
	question := strings.TrimSpace(req.Question)

	result, err := s.answer(ctx, question, req.Visualize, req.ChartType)
	util.QueryLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.SpanError(span, err)
		s.recordFailure(ctx, question, err)
		return nil, err
	}

	util.SpanString(span, "source", result.Source)
	util.QueriesTotal.WithLabelValues(sourceLabel(result.Source), "ok").Inc()
	s.publishAnswered(ctx, result, time.Since(start))
	return result, nil
}

func (s *QueryService) answer(ctx context.Context, question string, visualize bool, chartType string) (*models.QueryResult, error) {
	if err := s.validate(question); err != nil {
		return nil, err
	}
	want, err := chart.ParseOverride(chartType)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	key := CacheKey(question, visualize, want)
	if cached := s.cached(ctx, key); cached != nil {
		hit := *cached
		hit.Question = question
		return &hit, nil
	}

	p, err := s.resolve(ctx, question)
	if err != nil {
		return nil, err
	}

	p, rows, err := s.execute(ctx, p)
	if err != nil {
		return nil, err
	}

	result := &models.QueryResult{
		Question:         question,
		SQLQuery:         p.display,
		ColumnNames:      rows.Columns,
		Results:          rows.Values,
		RowCount:         len(rows.Values),
		Truncated:        rows.Truncated,
		FormattedResults: FormatResults(rows.Columns, rows.Values),
		Source:           p.source,
	}

	if visualize {
		if err := s.visualize(ctx, result, want); err != nil {
			return nil, err
		}
	}

	s.remember(ctx, key, result)
	return result, nil
}

func (s *QueryService) validate(question string) error {
	if question == "" {
		return apperr.Validation("No question provided")
	}
	if n := utf8.RuneCountInString(question); n > s.maxQuestionLength {
		return apperr.Validation(fmt.Sprintf("Question is too long (%d characters, maximum %d)", n, s.maxQuestionLength))
	}
	return nil
}

// resolve picks the SQL for a question. Pinned rules always win; otherwise
// the model goes first when configured and the rules are the fallback.
func (s *QueryService) resolve(ctx context.Context, question string) (*plan, error) {
	var rule *plan
	bound, resolveErr := s.resolver.Resolve(question)
	if resolveErr == nil {
		q, err := sqlguard.Vet(bound.SQL, bound.Args...)
		if err != nil {
			return nil, err
		}
		rule = &plan{query: q, display: bound.Display(), source: models.SourceRulePrefix + bound.Rule}
	}

	if s.translator != nil && (rule == nil || !bound.Pinned) {
		q, err := s.translator.Translate(ctx, question)
		if err == nil {
			return &plan{query: q, display: q.SQL(), source: models.SourceModel, fallback: rule}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("question abandoned: %w", ctx.Err())
		}
	}

	if rule == nil {
		return nil, apperr.NoIntentMatch(resolveErr)
	}
	return rule, nil
}

// execute runs p. A model query the store rejects is replaced by the
// matching rule, if any.
func (s *QueryService) execute(ctx context.Context, p *plan) (*plan, *store.Rows, error) {
	rows, err := s.executor.Execute(ctx, p.query)
	if err == nil || p.fallback == nil || ctx.Err() != nil {
		return p, rows, err
	}

	util.ModelFallbacksTotal.WithLabelValues("execution").Inc()
	s.logger.Warn("Model query failed, falling back to pattern rules",
		zap.String("sql", p.display),
		zap.Error(err),
	)
	rows, err = s.executor.Execute(ctx, p.fallback.query)
	return p.fallback, rows, err
}

func (s *QueryService) visualize(ctx context.Context, result *models.QueryResult, want chart.Kind) error {
	_, span := util.StartSpan(ctx, "QueryService.visualize")
	defer span.End()

	spec := chart.SelectAs(result.ColumnNames, result.Results, want)
	result.ChartType = string(spec.Kind)
	util.ChartsRenderedTotal.WithLabelValues(string(spec.Kind)).Inc()

	if spec.Kind != chart.KindBar && spec.Kind != chart.KindTimeSeries {
		if spec.Reason != "" {
			s.logger.Debug("No chart for result", zap.String("reason", spec.Reason))
		}
		return nil
	}

	img, err := chart.Render(spec)
	if err != nil {
		util.SpanError(span, err)
		s.logger.Error("Chart rendering failed", zap.Error(err))
		return err
	}
	result.ChartImageBase64 = base64.StdEncoding.EncodeToString(img)
	return nil
}

func (s *QueryService) cached(ctx context.Context, key string) *models.QueryResult {
	if s.cache == nil {
		return nil
	}
	result, err := s.cache.GetResult(ctx, key)
	if err != nil {
		util.CacheRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Cache lookup failed", zap.Error(err))
		return nil
	}
	if result == nil {
		util.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	util.CacheRequestsTotal.WithLabelValues("hit").Inc()
	return result
}

func (s *QueryService) remember(ctx context.Context, key string, result *models.QueryResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetResult(context.WithoutCancel(ctx), key, result); err != nil {
		s.logger.Warn("Failed to cache result", zap.Error(err))
	}
}

func (s *QueryService) publishAnswered(ctx context.Context, result *models.QueryResult, took time.Duration) {
	if s.publisher == nil {
		return
	}
	event := &models.QueryAnsweredEvent{
		BaseEvent:  newBaseEvent(models.EventTypeQueryAnswered),
		Question:   result.Question,
		SQLQuery:   result.SQLQuery,
		Source:     result.Source,
		RowCount:   result.RowCount,
		Truncated:  result.Truncated,
		ChartType:  result.ChartType,
		DurationMs: float64(took.Microseconds()) / 1000,
	}
	if err := s.publisher.PublishQueryAnswered(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("Failed to publish query answered event", zap.Error(err))
	}
}

func (s *QueryService) recordFailure(ctx context.Context, question string, err error) {
	kind := apperr.KindOf(err)
	if kind == "" {
		kind = "internal"
	}
	util.QueriesTotal.WithLabelValues("none", string(kind)).Inc()

	switch kind {
	case apperr.KindValidation, apperr.KindNoIntentMatch:
		s.logger.Info("Question rejected", zap.String("kind", string(kind)), zap.String("question", question))
	default:
		if errors.Is(err, context.Canceled) {
			s.logger.Info("Question abandoned by caller", zap.String("question", question))
		} else {
			s.logger.Error("Question failed", zap.String("question", question), zap.Error(err))
		}
	}

	if s.publisher == nil {
		return
	}
	event := &models.QueryFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypeQueryFailed),
		Question:  question,
		ErrorKind: string(kind),
	}
	if perr := s.publisher.PublishQueryFailed(context.WithoutCancel(ctx), event); perr != nil {
		s.logger.Error("Failed to publish query failed event", zap.Error(perr))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// CacheKey identifies a question, visualize flag and requested chart kind.
// Questions that only differ in case or spacing share a key.
func CacheKey(question string, visualize bool, want chart.Kind) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%t|%s", normalized, visualize, want)))
	return "query:" + hex.EncodeToString(sum[:])
}

func sourceLabel(source string) string {
	if strings.HasPrefix(source, models.SourceRulePrefix) {
		return "rule"
	}
	return source
}
