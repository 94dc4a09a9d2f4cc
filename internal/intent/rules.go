package intent

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// DefaultTopN is used when a "top" question carries no count and asks
// about products in the plural
const DefaultTopN = 10

var (
	topPattern    = regexp.MustCompile(`\b(top|best|highest)\b`)
	singlePattern = regexp.MustCompile(`\b(?:which|what)\s+(?:product|item)\b|\bthe\s+(?:product|item)\s+(?:with|that)\b`)
	itemIDPattern = regexp.MustCompile(`\bitem[\s_-]*(?:id)?\s*[:#=]?\s*([^\s,?.!;]+)`)
)

// metric is an additive column that top-N questions can rank by
type metric struct {
	name    string
	phrases []string
	table   string
	column  string
}

// metrics are checked in order, so more specific phrases come first
var metrics = []metric{
	{name: "units_ordered", phrases: []string{"units ordered", "total units"}, table: "total_sales", column: "total_units_ordered"},
	{name: "ad_sales", phrases: []string{"ad sales", "ad revenue"}, table: "ad_sales", column: "ad_sales"},
	{name: "ad_spend", phrases: []string{"ad spend", "spend"}, table: "ad_sales", column: "ad_spend"},
	{name: "impressions", phrases: []string{"impressions"}, table: "ad_sales", column: "impressions"},
	{name: "clicks", phrases: []string{"clicks"}, table: "ad_sales", column: "clicks"},
	{name: "units_sold", phrases: []string{"units sold", "units"}, table: "ad_sales", column: "units_sold"},
	{name: "total_sales", phrases: []string{"total sales", "sales", "revenue"}, table: "total_sales", column: "total_sales"},
}

// DefaultRules returns the production rule set in priority order.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, len(metrics)+16)

	rules = append(rules, topNRules()...)

	rules = append(rules,
		Rule{
			Name:     "item_total_sales",
			Shape:    ShapeScalar,
			Match:    All(Contains("total sales", "sales"), Pattern(itemIDPattern)),
			Template: "SELECT SUM(total_sales) AS total_sales FROM total_sales WHERE item_id = :item_id",
			Extract:  extractItemID,
		},
		Rule{
			Name:   "highest_cpc",
			Shape:  ShapeRanking,
			Pinned: true,
			Match:  All(Contains("cpc", "cost per click"), Contains("highest", "maximum", "max ", "most")),
			Template: "SELECT item_id, SUM(ad_spend) AS ad_spend, SUM(clicks) AS clicks, " +
				"ROUND(SUM(ad_spend) * 1.0 / SUM(clicks), 2) AS cpc " +
				"FROM ad_sales GROUP BY item_id HAVING SUM(clicks) > 0 " +
				"ORDER BY SUM(ad_spend) * 1.0 / SUM(clicks) DESC, item_id ASC LIMIT 1",
		},
		Rule{
			Name:   "cpc_by_item",
			Shape:  ShapeRanking,
			Pinned: true,
			Match:  Contains("cpc", "cost per click"),
			Template: "SELECT item_id, SUM(ad_spend) AS ad_spend, SUM(clicks) AS clicks, " +
				"ROUND(SUM(ad_spend) * 1.0 / SUM(clicks), 2) AS cpc " +
				"FROM ad_sales GROUP BY item_id HAVING SUM(clicks) > 0 " +
				"ORDER BY SUM(ad_spend) * 1.0 / SUM(clicks) DESC, item_id ASC",
		},
		Rule{
			Name:   "roas_by_item",
			Shape:  ShapeRanking,
			Pinned: true,
			Match:  All(Contains("roas", "return on ad spend"), Contains("product", "item", "each", "per ")),
			Template: "SELECT item_id, SUM(ad_sales) AS ad_sales, SUM(ad_spend) AS ad_spend, " +
				"ROUND(SUM(ad_sales) * 1.0 / SUM(ad_spend), 2) AS roas " +
				"FROM ad_sales GROUP BY item_id HAVING SUM(ad_spend) > 0 " +
				"ORDER BY SUM(ad_sales) * 1.0 / SUM(ad_spend) DESC, item_id ASC",
		},
		Rule{
			Name:   "roas",
			Shape:  ShapeScalar,
			Pinned: true,
			Match:  Contains("roas", "return on ad spend"),
			Template: "SELECT CASE WHEN SUM(ad_spend) > 0 " +
				"THEN ROUND(SUM(ad_sales) * 1.0 / SUM(ad_spend), 2) END AS roas FROM ad_sales",
		},
		Rule{
			Name:     "ad_sales_trend",
			Shape:    ShapeTable,
			Match:    All(trendWords, Contains("ad sales")),
			Template: "SELECT date, SUM(ad_sales) AS ad_sales FROM ad_sales GROUP BY date ORDER BY date",
		},
		Rule{
			Name:     "sales_trend",
			Shape:    ShapeTable,
			Match:    All(trendWords, Contains("sales", "revenue")),
			Template: "SELECT date, SUM(total_sales) AS total_sales FROM total_sales GROUP BY date ORDER BY date",
		},
		Rule{
			Name:     "total_sales",
			Shape:    ShapeScalar,
			Match:    Contains("total sales", "revenue"),
			Template: "SELECT SUM(total_sales) AS total_sales FROM total_sales",
		},
		Rule{
			Name:     "total_ad_sales",
			Shape:    ShapeScalar,
			Match:    Contains("ad sales"),
			Template: "SELECT SUM(ad_sales) AS ad_sales FROM ad_sales",
		},
		Rule{
			Name:     "total_ad_spend",
			Shape:    ShapeScalar,
			Match:    Contains("ad spend", "spent on ads", "advertising spend"),
			Template: "SELECT SUM(ad_spend) AS ad_spend FROM ad_sales",
		},
		Rule{
			Name:     "units_ordered",
			Shape:    ShapeScalar,
			Match:    Contains("units ordered"),
			Template: "SELECT SUM(total_units_ordered) AS total_units_ordered FROM total_sales",
		},
		Rule{
			Name:     "units_sold",
			Shape:    ShapeScalar,
			Match:    Contains("units sold"),
			Template: "SELECT SUM(units_sold) AS units_sold FROM ad_sales",
		},
		Rule{
			Name:  "not_eligible",
			Shape: ShapeTable,
			Match: Contains("not eligible", "ineligible", "non-eligible", "not-eligible", "eligibility false", "eligibility = false"),
			Template: "SELECT item_id, eligibility_datetime_utc, message FROM eligibility " +
				"WHERE eligibility = :eligible ORDER BY item_id, eligibility_datetime_utc",
			Extract: func(string) (Params, error) {
				return Params{"eligible": false}, nil
			},
		},
		Rule{
			Name:  "eligibility",
			Shape: ShapeTable,
			Match: Contains("eligibility", "eligible"),
			Template: "SELECT item_id, eligibility_datetime_utc, eligibility, message FROM eligibility " +
				"ORDER BY item_id, eligibility_datetime_utc",
		},
		Rule{
			Name:  "impressions_ranking",
			Shape: ShapeRanking,
			Match: Contains("impressions"),
			Template: "SELECT item_id, SUM(impressions) AS total_impressions FROM ad_sales " +
				"GROUP BY item_id ORDER BY total_impressions DESC, item_id ASC",
		},
		Rule{
			Name:  "clicks_ranking",
			Shape: ShapeRanking,
			Match: Contains("clicks"),
			Template: "SELECT item_id, SUM(clicks) AS total_clicks FROM ad_sales " +
				"GROUP BY item_id ORDER BY total_clicks DESC, item_id ASC",
		},
		Rule{
			Name:     "product_count",
			Shape:    ShapeScalar,
			Match:    Contains("how many products", "how many items", "number of products", "count of products", "product count"),
			Template: "SELECT COUNT(DISTINCT item_id) AS total_products FROM total_sales",
		},
	)

	return rules
}

// ratio questions mention "ad spend" but rank by a derived metric
var ratioWords = Contains("roas", "return on ad spend", "cpc", "cost per click")

var trendWords = Contains("over time", "trend", "daily", "per day", "by date", "by day", "each day")

// topNRules builds one rule per rankable metric.
func topNRules() []Rule {
	rules := make([]Rule, 0, len(metrics))
	for _, m := range metrics {
		alias := "total_" + m.column
		if strings.HasPrefix(m.column, "total_") {
			alias = m.column
		}
		rules = append(rules, Rule{
			Name:  "top_n_" + m.name,
			Shape: ShapeTopN,
			Match: All(Pattern(topPattern), Not(ratioWords), metricMatcher(m)),
			Template: fmt.Sprintf(
				"SELECT item_id, SUM(%[1]s) AS %[2]s FROM %[3]s GROUP BY item_id ORDER BY %[2]s DESC, item_id ASC LIMIT :limit",
				m.column, alias, m.table),
			Extract: extractTopN,
		})
	}
	return rules
}

// metricMatcher matches m only when no earlier metric claims the question,
// so "ad sales" never resolves to total sales.
func metricMatcher(m metric) func(string) bool {
	return func(q string) bool {
		for _, other := range metrics {
			if Contains(other.phrases...)(q) {
				return other.name == m.name
			}
		}
		return false
	}
}

// extractTopN takes N from the first standalone integer in q. Without one,
// a singular question ("which product ...") asks for a single row.
func extractTopN(q string) (Params, error) {
	if digits, ok := firstInteger(q); ok {
		n, err := positiveInt(digits)
		if err != nil {
			return nil, err
		}
		return Params{"limit": n}, nil
	}
	if singlePattern.MatchString(q) {
		return Params{"limit": int64(1)}, nil
	}
	return Params{"limit": int64(DefaultTopN)}, nil
}

// firstInteger returns the first word of q made only of digits. Decimals
// such as "3.5" and tokens such as "top5" do not count.
func firstInteger(q string) (string, bool) {
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_'
	})
	for _, w := range words {
		w = strings.TrimRight(w, ".")
		if w == "" {
			continue
		}
		if strings.IndexFunc(w, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
			return w, true
		}
	}
	return "", false
}

func extractItemID(q string) (Params, error) {
	m := itemIDPattern.FindStringSubmatch(q)
	if m == nil {
		return nil, fmt.Errorf("no item id in question")
	}
	id, err := positiveInt(m[1])
	if err != nil {
		return nil, err
	}
	return Params{"item_id": id}, nil
}
