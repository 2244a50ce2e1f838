package database

// schemaStatements is the inventory DDL applied on startup. Statistics are
// stored as columns on states and counties; geometry and run error logs are
// opaque JSONB.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS states (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		abbreviation TEXT,
		geometry JSONB,
		total_counties INTEGER NOT NULL DEFAULT 0,
		total_properties INTEGER NOT NULL DEFAULT 0,
		total_tax_liens INTEGER NOT NULL DEFAULT 0,
		total_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_property_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_properties_with_liens INTEGER NOT NULL DEFAULT 0,
		stats_last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS counties (
		id TEXT PRIMARY KEY,
		state_id TEXT NOT NULL REFERENCES states(id),
		name TEXT NOT NULL,
		fips_code TEXT,
		geometry JSONB,
		total_properties INTEGER NOT NULL DEFAULT 0,
		total_tax_liens INTEGER NOT NULL DEFAULT 0,
		total_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_property_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_properties_with_liens INTEGER NOT NULL DEFAULT 0,
		stats_last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_counties_state_id ON counties(state_id)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		county_id TEXT NOT NULL REFERENCES counties(id),
		state_id TEXT NOT NULL REFERENCES states(id),
		parcel_number TEXT,
		address TEXT,
		owner_name TEXT,
		geometry JSONB,
		tax_lien_status TEXT NOT NULL DEFAULT 'None',
		assessed_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		market_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		lien_amount DOUBLE PRECISION,
		sale_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_county_id ON properties(county_id)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_state_id ON properties(state_id)`,
	`CREATE TABLE IF NOT EXISTS data_sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		county_id TEXT,
		frequency TEXT NOT NULL,
		day_of_week INTEGER,
		day_of_month INTEGER,
		last_collected TIMESTAMPTZ,
		next_scheduled_run TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'active',
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS collection_runs (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL REFERENCES data_sources(id),
		run_timestamp TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		duration_ns BIGINT NOT NULL DEFAULT 0,
		item_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		memory_usage BIGINT NOT NULL DEFAULT 0,
		error_log JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_collection_runs_source_id ON collection_runs(source_id, run_timestamp DESC)`,
}
