package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecom-agent/internal/apperr"
	"ecom-agent/internal/chart"
	"ecom-agent/internal/ingest/ingesttest"
	"ecom-agent/internal/intent"
	"ecom-agent/internal/models"
	"ecom-agent/internal/sqlguard"
	"ecom-agent/internal/store"
)

type countingExecutor struct {
	inner Executor
	mu    sync.Mutex
	sql   []string
}

func (c *countingExecutor) Execute(ctx context.Context, q sqlguard.Query) (*store.Rows, error) {
	c.mu.Lock()
	c.sql = append(c.sql, q.SQL())
	c.mu.Unlock()
	return c.inner.Execute(ctx, q)
}

type fakeTranslator struct {
	sql   string
	err   error
	calls int
}

func (f *fakeTranslator) Translate(ctx context.Context, question string) (sqlguard.Query, error) {
	f.calls++
	if f.err != nil {
		return sqlguard.Query{}, f.err
	}
	return sqlguard.Vet(f.sql)
}

type memoryCache struct {
	items map[string]*models.QueryResult
}

func (m *memoryCache) GetResult(ctx context.Context, key string) (*models.QueryResult, error) {
	return m.items[key], nil
}

func (m *memoryCache) SetResult(ctx context.Context, key string, result *models.QueryResult) error {
	m.items[key] = result
	return nil
}

type recordingPublisher struct {
	answered []*models.QueryAnsweredEvent
	failed   []*models.QueryFailedEvent
}

func (r *recordingPublisher) PublishQueryAnswered(ctx context.Context, event *models.QueryAnsweredEvent) error {
	r.answered = append(r.answered, event)
	return nil
}

func (r *recordingPublisher) PublishQueryFailed(ctx context.Context, event *models.QueryFailedEvent) error {
	r.failed = append(r.failed, event)
	return nil
}

func newTestService(t *testing.T, maxRows int) (*QueryService, *countingExecutor) {
	t.Helper()
	exec := &countingExecutor{inner: store.NewStoreFromDB(ingesttest.Open(t, nil), maxRows)}
	return NewQueryService(intent.NewResolver(intent.DefaultRules()), exec, 0), exec
}

func TestAnswerTotalSales(t *testing.T) {
	svc, _ := newTestService(t, 0)

	result, err := svc.Answer(context.Background(), "  What is the total sales?  ", false)

	require.NoError(t, err)
	assert.Equal(t, "What is the total sales?", result.Question)
	assert.Equal(t, "SELECT SUM(total_sales) AS total_sales FROM total_sales", result.SQLQuery)
	assert.Equal(t, []string{"total_sales"}, result.ColumnNames)
	assert.Equal(t, [][]interface{}{{ingesttest.TotalSales}}, result.Results)
	assert.Equal(t, 1, result.RowCount)
	assert.False(t, result.Truncated)
	assert.Equal(t, "total_sales\n-----------\n600", result.FormattedResults)
	assert.Equal(t, "rule:total_sales", result.Source)
	assert.Empty(t, result.ChartType)
	assert.Empty(t, result.ChartImageBase64)
}

func TestAnswerScalarChartHasNoImage(t *testing.T) {
	svc, _ := newTestService(t, 0)

	result, err := svc.Answer(context.Background(), "What is the total sales?", true)

	require.NoError(t, err)
	assert.Equal(t, string(chart.KindScalar), result.ChartType)
	assert.Empty(t, result.ChartImageBase64)
}

func TestAnswerHighestCPC(t *testing.T) {
	svc, _ := newTestService(t, 0)

	result, err := svc.Answer(context.Background(), "Which product had the highest CPC?", false)

	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, []string{"item_id", "ad_spend", "clicks", "cpc"}, result.ColumnNames)
	assert.Equal(t, ingesttest.HighestCPCItem, result.Results[0][0])
	assert.Equal(t, ingesttest.HighestCPCValue, result.Results[0][3])
}

func TestAnswerRoAS(t *testing.T) {
	svc, _ := newTestService(t, 0)

	result, err := svc.Answer(context.Background(), "Calculate the RoAS", false)

	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{ingesttest.OverallRoAS}}, result.Results)
}

func TestAnswerTopNWithBarChart(t *testing.T) {
	svc, _ := newTestService(t, 0)

	result, err := svc.Answer(context.Background(), "Top 2 products by impressions", true)

	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{int64(1), int64(2500)}, {int64(2), int64(800)}}, result.Results)
	assert.Contains(t, result.SQLQuery, "LIMIT 2")
	assert.Equal(t, string(chart.KindBar), result.ChartType)
	assert.NotEmpty(t, result.ChartImageBase64)
}

func TestAnswerSalesTrendLineChart(t *testing.T) {
	svc, _ := newTestService(t, 0)

	result, err := svc.Answer(context.Background(), "Show total sales over time", true)

	require.NoError(t, err)
	assert.Equal(t, "rule:sales_trend", result.Source)
	assert.Equal(t, string(chart.KindTimeSeries), result.ChartType)
	assert.Equal(t, "2025-06-01", result.Results[0][0])
	assert.NotEmpty(t, result.ChartImageBase64)
}

func TestAnswerRequestForcesChartType(t *testing.T) {
	svc, _ := newTestService(t, 0)

	result, err := svc.AnswerRequest(context.Background(), models.QueryRequest{
		Question:  "Top 2 products by impressions",
		Visualize: true,
		ChartType: "line",
	})

	require.NoError(t, err)
	assert.Equal(t, string(chart.KindTimeSeries), result.ChartType)
	assert.NotEmpty(t, result.ChartImageBase64)

	result, err = svc.AnswerRequest(context.Background(), models.QueryRequest{
		Question:  "Show total sales over time",
		Visualize: true,
		ChartType: "bar",
	})

	require.NoError(t, err)
	assert.Equal(t, string(chart.KindBar), result.ChartType)
	assert.NotEmpty(t, result.ChartImageBase64)
}

func TestAnswerRequestKeepsScalarUnderOverride(t *testing.T) {
	svc, _ := newTestService(t, 0)

	result, err := svc.AnswerRequest(context.Background(), models.QueryRequest{
		Question:  "What is the total sales?",
		Visualize: true,
		ChartType: "bar",
	})

	require.NoError(t, err)
	assert.Equal(t, string(chart.KindScalar), result.ChartType)
	assert.Empty(t, result.ChartImageBase64)
}

func TestAnswerRequestRejectsUnknownChartType(t *testing.T) {
	svc, exec := newTestService(t, 0)

	_, err := svc.AnswerRequest(context.Background(), models.QueryRequest{
		Question:  "Top 2 products by impressions",
		Visualize: true,
		ChartType: "pie",
	})

	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, apperr.PublicMessage(err), "pie")
	assert.Empty(t, exec.sql)
}

func TestAnswerNotEligible(t *testing.T) {
	svc, _ := newTestService(t, 0)

	result, err := svc.Answer(context.Background(), "Show me products that are not eligible", false)

	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, int64(2), result.Results[0][0])
	assert.Contains(t, result.SQLQuery, "eligibility = FALSE")
}

func TestAnswerTruncates(t *testing.T) {
	svc, _ := newTestService(t, 2)

	result, err := svc.Answer(context.Background(), "Show product eligibility", false)

	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
	assert.Len(t, result.Results, 2)
	assert.True(t, result.Truncated)
}

func TestAnswerValidation(t *testing.T) {
	svc, exec := newTestService(t, 0)
	pub := &recordingPublisher{}
	svc.WithPublisher(pub)

	_, err := svc.Answer(context.Background(), "   ", false)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Answer(context.Background(), strings.Repeat("x", DefaultMaxQuestionLength+1), false)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Answer(context.Background(), strings.Repeat("é", DefaultMaxQuestionLength), false)
	assert.False(t, apperr.Is(err, apperr.KindValidation))

	assert.Empty(t, exec.sql)
	require.Len(t, pub.failed, 3)
	assert.Equal(t, string(apperr.KindValidation), pub.failed[0].ErrorKind)
	assert.Equal(t, models.EventTypeQueryFailed, pub.failed[0].EventType)
}

func TestAnswerNoIntentMatch(t *testing.T) {
	svc, exec := newTestService(t, 0)

	_, err := svc.Answer(context.Background(), "what is the weather like?", false)

	assert.True(t, apperr.Is(err, apperr.KindNoIntentMatch))
	assert.Empty(t, exec.sql)
}

func TestAnswerIsDeterministic(t *testing.T) {
	svc, _ := newTestService(t, 0)

	first, err := svc.Answer(context.Background(), "Top 3 products by clicks", true)
	require.NoError(t, err)
	second, err := svc.Answer(context.Background(), "Top 3 products by clicks", true)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAssistModeUsesModelForUnpinnedQuestions(t *testing.T) {
	svc, _ := newTestService(t, 0)
	tr := &fakeTranslator{sql: "SELECT COUNT(*) AS n FROM ad_sales"}
	svc.WithTranslator(tr)

	result, err := svc.Answer(context.Background(), "What is the total sales?", false)

	require.NoError(t, err)
	assert.Equal(t, models.SourceModel, result.Source)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM ad_sales", result.SQLQuery)
	assert.Equal(t, [][]interface{}{{int64(5)}}, result.Results)
	assert.Equal(t, 1, tr.calls)
}

func TestAssistModeSkipsModelForPinnedRules(t *testing.T) {
	svc, _ := newTestService(t, 0)
	tr := &fakeTranslator{sql: "SELECT 1 AS one"}
	svc.WithTranslator(tr)

	result, err := svc.Answer(context.Background(), "Which product had the highest CPC?", false)

	require.NoError(t, err)
	assert.Equal(t, "rule:highest_cpc", result.Source)
	assert.Equal(t, 0, tr.calls)
}

func TestAssistModeFallsBackOnModelFailure(t *testing.T) {
	svc, _ := newTestService(t, 0)
	svc.WithTranslator(&fakeTranslator{err: errors.New("connection refused")})

	result, err := svc.Answer(context.Background(), "What is the total sales?", false)

	require.NoError(t, err)
	assert.Equal(t, "rule:total_sales", result.Source)
}

func TestAssistModeFallsBackOnUnsafeModelSQL(t *testing.T) {
	svc, exec := newTestService(t, 0)
	svc.WithTranslator(&fakeTranslator{sql: "DROP TABLE total_sales"})

	result, err := svc.Answer(context.Background(), "What is the total sales?", false)

	require.NoError(t, err)
	assert.Equal(t, "rule:total_sales", result.Source)
	for _, sql := range exec.sql {
		assert.NotContains(t, strings.ToUpper(sql), "DROP")
	}
}

func TestAssistModeFallsBackWhenModelSQLFails(t *testing.T) {
	svc, exec := newTestService(t, 0)
	svc.WithTranslator(&fakeTranslator{sql: "SELECT no_such_column FROM total_sales"})

	result, err := svc.Answer(context.Background(), "What is the total sales?", false)

	require.NoError(t, err)
	assert.Equal(t, "rule:total_sales", result.Source)
	assert.Len(t, exec.sql, 2)
}

func TestAssistModeNoMatchWhenModelFails(t *testing.T) {
	svc, _ := newTestService(t, 0)
	svc.WithTranslator(&fakeTranslator{err: errors.New("timeout")})

	_, err := svc.Answer(context.Background(), "what is the weather like?", false)

	assert.True(t, apperr.Is(err, apperr.KindNoIntentMatch))
}

func TestAnswerUsesCache(t *testing.T) {
	svc, exec := newTestService(t, 0)
	cache := &memoryCache{items: map[string]*models.QueryResult{}}
	svc.WithCache(cache)

	first, err := svc.Answer(context.Background(), "What is the total sales?", false)
	require.NoError(t, err)
	require.Len(t, exec.sql, 1)
	assert.Len(t, cache.items, 1)

	second, err := svc.Answer(context.Background(), "WHAT is the   total sales?", false)
	require.NoError(t, err)
	assert.Len(t, exec.sql, 1)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, "WHAT is the   total sales?", second.Question)

	_, err = svc.Answer(context.Background(), "What is the total sales?", true)
	require.NoError(t, err)
	assert.Len(t, exec.sql, 2)
}

func TestAnswerPublishesEvent(t *testing.T) {
	svc, _ := newTestService(t, 0)
	pub := &recordingPublisher{}
	svc.WithPublisher(pub)

	_, err := svc.Answer(context.Background(), "Top 5 products by clicks", false)

	require.NoError(t, err)
	require.Len(t, pub.answered, 1)
	event := pub.answered[0]
	assert.Equal(t, models.EventTypeQueryAnswered, event.EventType)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "rule:top_n_clicks", event.Source)
	assert.Equal(t, 3, event.RowCount)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("Total  Sales", false, ""), CacheKey("total sales", false, ""))
	assert.NotEqual(t, CacheKey("total sales", false, ""), CacheKey("total sales", true, ""))
	assert.NotEqual(t, CacheKey("total sales", true, chart.KindBar), CacheKey("total sales", true, chart.KindTimeSeries))
	assert.True(t, strings.HasPrefix(CacheKey("x", false, ""), "query:"))
}
