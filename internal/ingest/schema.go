package ingest

// ddl holds the schema for one driver, in creation order
type ddl struct {
	drop   []string
	create []string
}

var sqliteSchema = ddl{
	drop: []string{
		"DROP TABLE IF EXISTS ad_sales",
		"DROP TABLE IF EXISTS total_sales",
		"DROP TABLE IF EXISTS eligibility",
	},
	create: []string{
		`CREATE TABLE ad_sales (
			date DATE NOT NULL,
			item_id INTEGER NOT NULL,
			ad_sales REAL NOT NULL DEFAULT 0,
			impressions INTEGER NOT NULL DEFAULT 0 CHECK (impressions >= 0),
			ad_spend REAL NOT NULL DEFAULT 0 CHECK (ad_spend >= 0),
			clicks INTEGER NOT NULL DEFAULT 0 CHECK (clicks >= 0),
			units_sold INTEGER NOT NULL DEFAULT 0 CHECK (units_sold >= 0)
		)`,
		"CREATE INDEX idx_ad_sales_item_id ON ad_sales (item_id)",
		`CREATE TABLE total_sales (
			date DATE NOT NULL,
			item_id INTEGER NOT NULL,
			total_sales REAL NOT NULL DEFAULT 0,
			total_units_ordered INTEGER NOT NULL DEFAULT 0
		)`,
		"CREATE INDEX idx_total_sales_item_id ON total_sales (item_id)",
		`CREATE TABLE eligibility (
			eligibility_datetime_utc TIMESTAMP NOT NULL,
			item_id INTEGER NOT NULL,
			eligibility BOOLEAN NOT NULL,
			message TEXT
		)`,
		"CREATE INDEX idx_eligibility_item_id ON eligibility (item_id)",
	},
}

var postgresSchema = ddl{
	drop: sqliteSchema.drop,
	create: []string{
		`CREATE TABLE ad_sales (
			date DATE NOT NULL,
			item_id BIGINT NOT NULL,
			ad_sales DOUBLE PRECISION NOT NULL DEFAULT 0,
			impressions BIGINT NOT NULL DEFAULT 0 CHECK (impressions >= 0),
			ad_spend DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (ad_spend >= 0),
			clicks BIGINT NOT NULL DEFAULT 0 CHECK (clicks >= 0),
			units_sold BIGINT NOT NULL DEFAULT 0 CHECK (units_sold >= 0)
		)`,
		"CREATE INDEX idx_ad_sales_item_id ON ad_sales (item_id)",
		`CREATE TABLE total_sales (
			date DATE NOT NULL,
			item_id BIGINT NOT NULL,
			total_sales DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_units_ordered BIGINT NOT NULL DEFAULT 0
		)`,
		"CREATE INDEX idx_total_sales_item_id ON total_sales (item_id)",
		`CREATE TABLE eligibility (
			eligibility_datetime_utc TIMESTAMP NOT NULL,
			item_id BIGINT NOT NULL,
			eligibility BOOLEAN NOT NULL,
			message TEXT
		)`,
		"CREATE INDEX idx_eligibility_item_id ON eligibility (item_id)",
	},
}

func schemaFor(driver string) ddl {
	if driver == "postgres" {
		return postgresSchema
	}
	return sqliteSchema
}

const (
	insertAdSales = `INSERT INTO ad_sales (date, item_id, ad_sales, impressions, ad_spend, clicks, units_sold)
		VALUES (:date, :item_id, :ad_sales, :impressions, :ad_spend, :clicks, :units_sold)`
	insertTotalSales = `INSERT INTO total_sales (date, item_id, total_sales, total_units_ordered)
		VALUES (:date, :item_id, :total_sales, :total_units_ordered)`
	insertEligibility = `INSERT INTO eligibility (eligibility_datetime_utc, item_id, eligibility, message)
		VALUES (:eligibility_datetime_utc, :item_id, :eligibility, :message)`
)
