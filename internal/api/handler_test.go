package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecom-agent/internal/apperr"
	"ecom-agent/internal/catalog"
	"ecom-agent/internal/chart"
	"ecom-agent/internal/ingest/ingesttest"
	"ecom-agent/internal/intent"
	"ecom-agent/internal/models"
	"ecom-agent/internal/service"
	"ecom-agent/internal/store"
	"ecom-agent/internal/stream"
	"ecom-agent/internal/util"
)

func init() {
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db := ingesttest.Open(t, nil)
	st := store.NewStoreFromDB(db, store.DefaultMaxRows)
	cat := catalog.Default()
	svc := service.NewQueryService(intent.NewResolver(intent.DefaultRules()), st, 0)

	router := gin.New()
	NewHandler(svc, stream.NewEmitter(svc, 0), st, cat, "*").SetupRoutes(router)
	return router
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func sseEvents(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestQueryTotalSales(t *testing.T) {
	router := newRouter(t)

	w := do(router, http.MethodPost, "/query", `{"question":"What is the total sales?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "What is the total sales?", body["question"])
	assert.Equal(t, []interface{}{"total_sales"}, body["column_names"])
	assert.Equal(t, []interface{}{[]interface{}{ingesttest.TotalSales}}, body["results"])
	assert.Equal(t, float64(1), body["row_count"])
	assert.Equal(t, false, body["truncated"])
	assert.Equal(t, "rule:total_sales", body["source"])
	assert.Contains(t, body["sql_query"], "SUM(total_sales)")
	assert.NotContains(t, body, "chart_image_base64")
}

func TestQueryVisualizeAddsChart(t *testing.T) {
	router := newRouter(t)

	w := do(router, http.MethodPost, "/query", `{"question":"Top 3 products by total sales","visualize":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, string(chart.KindBar), body["chart_type"])
	assert.NotEmpty(t, body["chart_image_base64"])
}

func TestQueryChartTypeOverride(t *testing.T) {
	router := newRouter(t)

	w := do(router, http.MethodPost, "/query", `{"question":"Top 3 products by total sales","visualize":true,"chart_type":"line"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, string(chart.KindTimeSeries), body["chart_type"])
	assert.NotEmpty(t, body["chart_image_base64"])

	w = do(router, http.MethodPost, "/query", `{"question":"Top 3 products by total sales","visualize":true,"chart_type":"pie"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "chart_type")
}

func TestQueryErrors(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"question":`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"empty question", `{"question":"   "}`, http.StatusBadRequest},
		{"oversized question", `{"question":"` + strings.Repeat("a", 501) + `"}`, http.StatusBadRequest},
		{"no match", `{"question":"What is the weather today?"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/query", tt.body)

			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

type failingAnswerer struct{ err error }

func (f failingAnswerer) AnswerRequest(ctx context.Context, req models.QueryRequest) (*models.QueryResult, error) {
	return nil, f.err
}

func (f failingAnswerer) Answer(ctx context.Context, question string, visualize bool) (*models.QueryResult, error) {
	return nil, f.err
}

func TestQueryExecutionErrorIsGeneric(t *testing.T) {
	db := ingesttest.Open(t, nil)
	st := store.NewStoreFromDB(db, 0)
	answerer := failingAnswerer{err: apperr.Execution(errors.New("no such column: secret_col"))}

	router := gin.New()
	NewHandler(answerer, stream.NewEmitter(answerer, 0), st, catalog.Default(), "*").SetupRoutes(router)

	w := do(router, http.MethodPost, "/query", `{"question":"anything"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperr.GenericFailureMessage, decode(t, w)["error"])
	assert.NotContains(t, w.Body.String(), "secret_col")
}

func TestStreamQuery(t *testing.T) {
	router := newRouter(t)

	w := do(router, http.MethodPost, "/stream_query", `{"question":"What is the total sales?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	events := sseEvents(t, w.Body.String())
	require.NotEmpty(t, events)

	var text strings.Builder
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, stream.StatusTyping, ev["status"])
		text.WriteString(ev["char"].(string))
	}
	last := events[len(events)-1]
	assert.Equal(t, stream.StatusComplete, last["status"])
	assert.Equal(t, "rule:total_sales", last["source"])

	expected := service.AnswerText(&models.QueryResult{
		Question:         "What is the total sales?",
		FormattedResults: last["formatted_results"].(string),
	})
	assert.Equal(t, expected, text.String())
	assert.Equal(t, utf8.RuneCountInString(expected), len(events)-1)
}

func TestStreamQueryErrorEvent(t *testing.T) {
	router := newRouter(t)

	w := do(router, http.MethodPost, "/stream_query", `{"question":"What is the weather today?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, stream.StatusError, events[0]["status"])
	assert.NotEmpty(t, events[0]["error"])
}

func TestStreamQueryMalformedJSON(t *testing.T) {
	router := newRouter(t)

	w := do(router, http.MethodPost, "/stream_query", `not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSchema(t *testing.T) {
	router := newRouter(t)

	w := do(router, http.MethodGet, "/schema", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)

	schema := body["schema"].(map[string]interface{})
	assert.Contains(t, schema, catalog.TableAdSales)
	assert.Contains(t, schema, catalog.TableTotalSales)
	assert.Contains(t, schema, catalog.TableEligibility)
	assert.Len(t, body["tables"], 3)

	samples := body["sample_data"].(map[string]interface{})
	adSales := samples[catalog.TableAdSales].([]interface{})
	require.Len(t, adSales, sampleRows)
	assert.Contains(t, adSales[0], "item_id")
}

func TestHealthAndReady(t *testing.T) {
	router := newRouter(t)

	w := do(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.ElementsMatch(t, []interface{}{"ad_sales", "eligibility", "total_sales"}, body["tables"])

	w = do(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

type downStore struct{}

func (downStore) Ping(ctx context.Context) error { return errors.New("dial tcp: connection refused") }
func (downStore) Tables(ctx context.Context) ([]string, error) {
	return nil, errors.New("dial tcp: connection refused")
}
func (downStore) Samples(ctx context.Context, cat *catalog.Catalog, n int) (map[string]*store.Rows, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestHealthUnhealthy(t *testing.T) {
	answerer := failingAnswerer{}
	router := gin.New()
	NewHandler(answerer, stream.NewEmitter(answerer, 0), downStore{}, catalog.Default(), "*").SetupRoutes(router)

	w := do(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "dial tcp")

	w = do(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(router, http.MethodGet, "/schema", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHomeAndCORS(t *testing.T) {
	router := newRouter(t)

	w := do(router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["example_questions"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(router, http.MethodOptions, "/query", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(t)
	do(router, http.MethodGet, "/", "")

	w := do(router, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
