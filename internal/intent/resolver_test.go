package intent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver() *Resolver {
	return NewResolver(DefaultRules())
}

func TestResolveTotalSales(t *testing.T) {
	bq, err := newTestResolver().Resolve("What is the total sales?")

	require.NoError(t, err)
	assert.Equal(t, "total_sales", bq.Rule)
	assert.Equal(t, ShapeScalar, bq.Shape)
	assert.Equal(t, "SELECT SUM(total_sales) AS total_sales FROM total_sales", bq.SQL)
	assert.Empty(t, bq.Args)
	assert.Equal(t, bq.SQL, bq.Display())
}

func TestResolveHighestCPC(t *testing.T) {
	bq, err := newTestResolver().Resolve("Which product had the highest CPC?")

	require.NoError(t, err)
	assert.Equal(t, "highest_cpc", bq.Rule)
	assert.True(t, bq.Pinned)
	assert.Contains(t, bq.SQL, "ORDER BY SUM(ad_spend) * 1.0 / SUM(clicks) DESC")
	assert.Contains(t, bq.SQL, "HAVING SUM(clicks) > 0")
	assert.Contains(t, bq.SQL, "LIMIT 1")
}

func TestResolveTopN(t *testing.T) {
	r := newTestResolver()

	bq, err := r.Resolve("Top 10 products by impressions")
	require.NoError(t, err)
	assert.Equal(t, "top_n_impressions", bq.Rule)
	assert.Equal(t, ShapeTopN, bq.Shape)
	assert.Equal(t, []interface{}{int64(10)}, bq.Args)
	assert.Contains(t, bq.SQL, "ORDER BY total_impressions DESC")
	assert.Contains(t, bq.SQL, "LIMIT ?")
	assert.Contains(t, bq.Display(), "LIMIT 10")

	bq, err = r.Resolve("Top 5 products by impressions")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(5)}, bq.Args)
	assert.Contains(t, bq.Display(), "LIMIT 5")
}

func TestResolveTopNDefaultsToTen(t *testing.T) {
	bq, err := newTestResolver().Resolve("show the top products by clicks")

	require.NoError(t, err)
	assert.Equal(t, "top_n_clicks", bq.Rule)
	assert.Equal(t, []interface{}{int64(DefaultTopN)}, bq.Args)
}

func TestResolveTopNReadsCountAnywhere(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		question string
		rule     string
		limit    int64
	}{
		{"Which 3 products had the highest ad spend?", "top_n_ad_spend", 3},
		{"Show the 5 top products by impressions", "top_n_impressions", 5},
		{"best products by clicks, give me 4.", "top_n_clicks", 4},
		{"Top 3.5 products by clicks", "top_n_clicks", DefaultTopN},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			bq, err := r.Resolve(tt.question)

			require.NoError(t, err)
			assert.Equal(t, tt.rule, bq.Rule)
			assert.Equal(t, []interface{}{tt.limit}, bq.Args)
		})
	}
}

func TestResolveSingularTopNAsksForOneRow(t *testing.T) {
	r := newTestResolver()

	for _, q := range []string{
		"Which product had the highest total sales?",
		"What item has the most impressions? Show the best",
		"Show the product with the highest ad sales",
	} {
		bq, err := r.Resolve(q)

		require.NoError(t, err, q)
		assert.Equal(t, ShapeTopN, bq.Shape, q)
		assert.Equal(t, []interface{}{int64(1)}, bq.Args, q)
		assert.Contains(t, bq.Display(), "LIMIT 1", q)
	}

	bq, err := r.Resolve("Which products had the highest total sales?")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(DefaultTopN)}, bq.Args)
}

func TestResolveTopNPicksMostSpecificMetric(t *testing.T) {
	r := newTestResolver()

	cases := map[string]string{
		"top 3 items by ad sales":            "top_n_ad_sales",
		"top 3 items by total sales":         "top_n_total_sales",
		"top 3 items by total units ordered": "top_n_units_ordered",
		"best 4 products by units sold":      "top_n_units_sold",
		"top 2 products by ad spend":         "top_n_ad_spend",
	}
	for question, rule := range cases {
		bq, err := r.Resolve(question)
		require.NoError(t, err, question)
		assert.Equal(t, rule, bq.Rule, question)
	}
}

func TestResolveRatioQuestionsSkipTopN(t *testing.T) {
	bq, err := newTestResolver().Resolve("Which item has the highest return on ad spend per product?")

	require.NoError(t, err)
	assert.Equal(t, "roas_by_item", bq.Rule)
}

func TestResolveRoAS(t *testing.T) {
	bq, err := newTestResolver().Resolve("Calculate the RoAS (Return on Ad Spend)")

	require.NoError(t, err)
	assert.Equal(t, "roas", bq.Rule)
	assert.Contains(t, bq.SQL, "CASE WHEN SUM(ad_spend) > 0")
}

func TestResolveItemTotalSales(t *testing.T) {
	bq, err := newTestResolver().Resolve("What are the total sales for item id 42?")

	require.NoError(t, err)
	assert.Equal(t, "item_total_sales", bq.Rule)
	assert.Equal(t, "SELECT SUM(total_sales) AS total_sales FROM total_sales WHERE item_id = ?", bq.SQL)
	assert.Equal(t, []interface{}{int64(42)}, bq.Args)
	assert.Equal(t, "SELECT SUM(total_sales) AS total_sales FROM total_sales WHERE item_id = 42", bq.Display())
}

func TestResolveSkipsRuleOnExtractionFailure(t *testing.T) {
	bq, err := newTestResolver().Resolve("What are the total sales for item id abc?")

	require.NoError(t, err)
	assert.Equal(t, "total_sales", bq.Rule)
}

func TestResolveSkipsTopNOnOverflow(t *testing.T) {
	bq, err := newTestResolver().Resolve("top 99999999999999999999 products by impressions")

	require.NoError(t, err)
	assert.Equal(t, "impressions_ranking", bq.Rule)
}

func TestResolveNotEligible(t *testing.T) {
	bq, err := newTestResolver().Resolve("Show me products that are not eligible")

	require.NoError(t, err)
	assert.Equal(t, "not_eligible", bq.Rule)
	assert.Equal(t, []interface{}{false}, bq.Args)
	assert.Contains(t, bq.Display(), "WHERE eligibility = FALSE")
}

func TestResolveSalesTrend(t *testing.T) {
	bq, err := newTestResolver().Resolve("How did sales change over time?")

	require.NoError(t, err)
	assert.Equal(t, "sales_trend", bq.Rule)
	assert.Equal(t, ShapeTable, bq.Shape)
}

func TestResolveNoMatch(t *testing.T) {
	r := newTestResolver()

	for _, q := range []string{"", "   ", "what is the weather like?"} {
		bq, err := r.Resolve(q)
		assert.Nil(t, bq)
		assert.True(t, errors.Is(err, ErrNoMatch), q)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	questions := []string{
		"What is the total sales?",
		"Which product had the highest CPC?",
		"Top 7 products by clicks",
		"Show me products that are not eligible",
		"total sales for item_id 9",
	}

	first := newTestResolver()
	second := newTestResolver()

	for _, q := range questions {
		a, err := first.Resolve(q)
		require.NoError(t, err)
		b, err := second.Resolve(q)
		require.NoError(t, err)
		c, err := first.Resolve(q)
		require.NoError(t, err)

		assert.Equal(t, a.Rule, b.Rule)
		assert.Equal(t, a.SQL, b.SQL)
		assert.Equal(t, a.Args, b.Args)
		assert.Equal(t, a.Display(), b.Display())
		assert.Equal(t, a.Display(), c.Display())
	}
}

func TestResolveIsCaseAndSpaceInsensitive(t *testing.T) {
	r := newTestResolver()

	a, err := r.Resolve("WHAT IS THE   TOTAL\tSALES?")
	require.NoError(t, err)
	b, err := r.Resolve("what is the total sales?")
	require.NoError(t, err)

	assert.Equal(t, a.Display(), b.Display())
}

func TestFirstMatchWins(t *testing.T) {
	r := NewResolver([]Rule{
		{Name: "first", Match: Contains("sales"), Template: "SELECT 1 AS a"},
		{Name: "second", Match: Contains("total sales"), Template: "SELECT 2 AS a"},
	})

	bq, err := r.Resolve("total sales")

	require.NoError(t, err)
	assert.Equal(t, "first", bq.Rule)
	assert.Equal(t, []string{"first", "second"}, r.Rules())
}

func TestNewResolverCopiesRules(t *testing.T) {
	rules := []Rule{{Name: "only", Match: Contains("x"), Template: "SELECT 1 AS a"}}
	r := NewResolver(rules)

	rules[0].Name = "changed"

	assert.Equal(t, []string{"only"}, r.Rules())
}

func TestDefaultRuleNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, rule := range DefaultRules() {
		assert.False(t, seen[rule.Name], rule.Name)
		seen[rule.Name] = true
		assert.NotEmpty(t, rule.Template, rule.Name)
		assert.NotNil(t, rule.Match, rule.Name)
	}
}
