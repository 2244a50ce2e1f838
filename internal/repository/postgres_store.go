package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lienledger/api/internal/database"
	"github.com/lienledger/api/internal/models"
)

// Maximum attempts for a transaction that hits a serialization conflict.
const maxTxAttempts = 3

// pgSerializationFailure is the SQLSTATE Postgres reports when a
// serializable transaction must be retried.
const pgSerializationFailure = "40001"

// PostgresStore is the pgx-backed Store. Every transaction runs at
// SERIALIZABLE isolation so concurrent statistic increments on the same
// county or state are never lost; serialization failures are retried a
// bounded number of times before surfacing to the caller.
type PostgresStore struct {
	db *database.Database
}

// NewPostgresStore creates a Store backed by the given connection pool.
func NewPostgresStore(db *database.Database) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTransaction executes fn within one serializable transaction,
// retrying on serialization conflicts. Any error from fn aborts the
// transaction and is returned unchanged.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
}

// View executes fn within a read-only transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadOnly}, fn)
}

func (s *PostgresStore) run(ctx context.Context, opts pgx.TxOptions, fn func(tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.runOnce(ctx, opts, fn)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("transaction aborted after %d attempts: %w", maxTxAttempts, lastErr)
}

func (s *PostgresStore) runOnce(ctx context.Context, opts pgx.TxOptions, fn func(tx Tx) error) error {
	tx, err := s.db.Pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&postgresTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

// postgresTx implements Tx over one pgx transaction.
type postgresTx struct {
	tx pgx.Tx
}

const stateColumns = `
	id,
	name,
	abbreviation,
	geometry,
	total_counties,
	total_properties,
	total_tax_liens,
	total_value,
	average_property_value,
	total_properties_with_liens,
	stats_last_updated,
	created_at,
	updated_at`

func scanState(row pgx.Row) (*models.State, error) {
	var st models.State
	err := row.Scan(
		&st.ID,
		&st.Name,
		&st.Abbreviation,
		&st.Geometry,
		&st.TotalCounties,
		&st.Statistics.TotalProperties,
		&st.Statistics.TotalTaxLiens,
		&st.Statistics.TotalValue,
		&st.Statistics.AveragePropertyValue,
		&st.Statistics.TotalPropertiesWithLiens,
		&st.Statistics.LastUpdated,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (t *postgresTx) GetState(ctx context.Context, id string) (*models.State, error) {
	st, err := scanState(t.tx.QueryRow(ctx, `SELECT `+stateColumns+` FROM states WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query state %s: %w", id, err)
	}
	return st, nil
}

func (t *postgresTx) PutState(ctx context.Context, state *models.State) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO states (
			id, name, abbreviation, geometry, total_counties,
			total_properties, total_tax_liens, total_value,
			average_property_value, total_properties_with_liens,
			stats_last_updated, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			abbreviation = EXCLUDED.abbreviation,
			geometry = EXCLUDED.geometry,
			total_counties = EXCLUDED.total_counties,
			total_properties = EXCLUDED.total_properties,
			total_tax_liens = EXCLUDED.total_tax_liens,
			total_value = EXCLUDED.total_value,
			average_property_value = EXCLUDED.average_property_value,
			total_properties_with_liens = EXCLUDED.total_properties_with_liens,
			stats_last_updated = EXCLUDED.stats_last_updated,
			updated_at = EXCLUDED.updated_at`,
		state.ID,
		state.Name,
		state.Abbreviation,
		state.Geometry,
		state.TotalCounties,
		state.Statistics.TotalProperties,
		state.Statistics.TotalTaxLiens,
		state.Statistics.TotalValue,
		state.Statistics.AveragePropertyValue,
		state.Statistics.TotalPropertiesWithLiens,
		state.Statistics.LastUpdated,
		state.CreatedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", state.ID, err)
	}
	return nil
}

func (t *postgresTx) ListStates(ctx context.Context) ([]models.State, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+stateColumns+` FROM states ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query states: %w", err)
	}
	defer rows.Close()

	var out []models.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan state row: %w", err)
		}
		out = append(out, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state rows: %w", err)
	}
	return out, nil
}

const countyColumns = `
	id,
	state_id,
	name,
	fips_code,
	geometry,
	total_properties,
	total_tax_liens,
	total_value,
	average_property_value,
	total_properties_with_liens,
	stats_last_updated,
	created_at,
	updated_at`

func scanCounty(row pgx.Row) (*models.County, error) {
	var c models.County
	err := row.Scan(
		&c.ID,
		&c.StateID,
		&c.Name,
		&c.FIPSCode,
		&c.Geometry,
		&c.Statistics.TotalProperties,
		&c.Statistics.TotalTaxLiens,
		&c.Statistics.TotalValue,
		&c.Statistics.AveragePropertyValue,
		&c.Statistics.TotalPropertiesWithLiens,
		&c.Statistics.LastUpdated,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *postgresTx) GetCounty(ctx context.Context, id string) (*models.County, error) {
	c, err := scanCounty(t.tx.QueryRow(ctx, `SELECT `+countyColumns+` FROM counties WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query county %s: %w", id, err)
	}
	return c, nil
}

func (t *postgresTx) PutCounty(ctx context.Context, county *models.County) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO counties (
			id, state_id, name, fips_code, geometry,
			total_properties, total_tax_liens, total_value,
			average_property_value, total_properties_with_liens,
			stats_last_updated, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			state_id = EXCLUDED.state_id,
			name = EXCLUDED.name,
			fips_code = EXCLUDED.fips_code,
			geometry = EXCLUDED.geometry,
			total_properties = EXCLUDED.total_properties,
			total_tax_liens = EXCLUDED.total_tax_liens,
			total_value = EXCLUDED.total_value,
			average_property_value = EXCLUDED.average_property_value,
			total_properties_with_liens = EXCLUDED.total_properties_with_liens,
			stats_last_updated = EXCLUDED.stats_last_updated,
			updated_at = EXCLUDED.updated_at`,
		county.ID,
		county.StateID,
		county.Name,
		county.FIPSCode,
		county.Geometry,
		county.Statistics.TotalProperties,
		county.Statistics.TotalTaxLiens,
		county.Statistics.TotalValue,
		county.Statistics.AveragePropertyValue,
		county.Statistics.TotalPropertiesWithLiens,
		county.Statistics.LastUpdated,
		county.CreatedAt,
		county.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write county %s: %w", county.ID, err)
	}
	return nil
}

func (t *postgresTx) ListCountiesByState(ctx context.Context, stateID string) ([]models.County, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+countyColumns+` FROM counties WHERE state_id = $1 ORDER BY id`, stateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query counties for state %s: %w", stateID, err)
	}
	defer rows.Close()

	var out []models.County
	for rows.Next() {
		c, err := scanCounty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan county row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating county rows: %w", err)
	}
	return out, nil
}

const propertyColumns = `
	id,
	county_id,
	state_id,
	parcel_number,
	address,
	owner_name,
	geometry,
	tax_lien_status,
	assessed_value,
	market_value,
	lien_amount,
	sale_date,
	created_at,
	updated_at`

func scanProperty(row pgx.Row) (*models.Property, error) {
	var p models.Property
	err := row.Scan(
		&p.ID,
		&p.CountyID,
		&p.StateID,
		&p.ParcelNumber,
		&p.Address,
		&p.OwnerName,
		&p.Geometry,
		&p.TaxStatus.TaxLienStatus,
		&p.TaxStatus.AssessedValue,
		&p.TaxStatus.MarketValue,
		&p.TaxStatus.LienAmount,
		&p.TaxStatus.SaleDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *postgresTx) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	p, err := scanProperty(t.tx.QueryRow(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query property %s: %w", id, err)
	}
	return p, nil
}

func (t *postgresTx) InsertProperty(ctx context.Context, property *models.Property) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO properties (
			id, county_id, state_id, parcel_number, address, owner_name,
			geometry, tax_lien_status, assessed_value, market_value,
			lien_amount, sale_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		property.ID,
		property.CountyID,
		property.StateID,
		property.ParcelNumber,
		property.Address,
		property.OwnerName,
		property.Geometry,
		property.TaxStatus.TaxLienStatus,
		property.TaxStatus.AssessedValue,
		property.TaxStatus.MarketValue,
		property.TaxStatus.LienAmount,
		property.TaxStatus.SaleDate,
		property.CreatedAt,
		property.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert property %s: %w", property.ID, err)
	}
	return nil
}

func (t *postgresTx) UpdateProperty(ctx context.Context, property *models.Property) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE properties SET
			county_id = $2,
			state_id = $3,
			parcel_number = $4,
			address = $5,
			owner_name = $6,
			geometry = $7,
			tax_lien_status = $8,
			assessed_value = $9,
			market_value = $10,
			lien_amount = $11,
			sale_date = $12,
			updated_at = $13
		WHERE id = $1`,
		property.ID,
		property.CountyID,
		property.StateID,
		property.ParcelNumber,
		property.Address,
		property.OwnerName,
		property.Geometry,
		property.TaxStatus.TaxLienStatus,
		property.TaxStatus.AssessedValue,
		property.TaxStatus.MarketValue,
		property.TaxStatus.LienAmount,
		property.TaxStatus.SaleDate,
		property.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update property %s: %w", property.ID, err)
	}
	return nil
}

func (t *postgresTx) DeleteProperty(ctx context.Context, id string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM properties WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete property %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *postgresTx) ListPropertiesByCounty(ctx context.Context, countyID string) ([]models.Property, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+propertyColumns+` FROM properties WHERE county_id = $1 ORDER BY id`, countyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties for county %s: %w", countyID, err)
	}
	defer rows.Close()

	var out []models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property row: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating property rows: %w", err)
	}
	return out, nil
}

const sourceColumns = `
	id,
	name,
	url,
	county_id,
	frequency,
	day_of_week,
	day_of_month,
	last_collected,
	next_scheduled_run,
	status,
	error_message,
	created_at,
	updated_at`

func scanDataSource(row pgx.Row) (*models.DataSource, error) {
	var src models.DataSource
	err := row.Scan(
		&src.ID,
		&src.Name,
		&src.URL,
		&src.CountyID,
		&src.Schedule.Frequency,
		&src.Schedule.DayOfWeek,
		&src.Schedule.DayOfMonth,
		&src.LastCollected,
		&src.NextScheduledRun,
		&src.Status,
		&src.ErrorMessage,
		&src.CreatedAt,
		&src.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (t *postgresTx) GetDataSource(ctx context.Context, id string) (*models.DataSource, error) {
	src, err := scanDataSource(t.tx.QueryRow(ctx, `SELECT `+sourceColumns+` FROM data_sources WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query data source %s: %w", id, err)
	}
	return src, nil
}

func (t *postgresTx) PutDataSource(ctx context.Context, source *models.DataSource) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO data_sources (
			id, name, url, county_id, frequency, day_of_week, day_of_month,
			last_collected, next_scheduled_run, status, error_message,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			county_id = EXCLUDED.county_id,
			frequency = EXCLUDED.frequency,
			day_of_week = EXCLUDED.day_of_week,
			day_of_month = EXCLUDED.day_of_month,
			last_collected = EXCLUDED.last_collected,
			next_scheduled_run = EXCLUDED.next_scheduled_run,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at`,
		source.ID,
		source.Name,
		source.URL,
		source.CountyID,
		source.Schedule.Frequency,
		source.Schedule.DayOfWeek,
		source.Schedule.DayOfMonth,
		source.LastCollected,
		source.NextScheduledRun,
		source.Status,
		source.ErrorMessage,
		source.CreatedAt,
		source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write data source %s: %w", source.ID, err)
	}
	return nil
}

func (t *postgresTx) ListDataSources(ctx context.Context) ([]models.DataSource, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+sourceColumns+` FROM data_sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query data sources: %w", err)
	}
	defer rows.Close()

	var out []models.DataSource
	for rows.Next() {
		src, err := scanDataSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data source row: %w", err)
		}
		out = append(out, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data source rows: %w", err)
	}
	return out, nil
}

func (t *postgresTx) InsertRun(ctx context.Context, run *models.CollectionRun) error {
	errorLog, err := json.Marshal(run.ErrorLog)
	if err != nil {
		return fmt.Errorf("failed to encode error log for run %s: %w", run.ID, err)
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO collection_runs (
			id, source_id, run_timestamp, status, duration_ns,
			item_count, success_count, error_count, memory_usage, error_log
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID,
		run.SourceID,
		run.Timestamp,
		run.Status,
		int64(run.Stats.Duration),
		run.Stats.ItemCount,
		run.Stats.SuccessCount,
		run.Stats.ErrorCount,
		int64(run.Stats.MemoryUsage),
		errorLog,
	)
	if err != nil {
		return fmt.Errorf("failed to insert collection run %s: %w", run.ID, err)
	}
	return nil
}

func (t *postgresTx) ListRuns(ctx context.Context, sourceID string, limit int) ([]models.CollectionRun, error) {
	query := `
		SELECT id, source_id, run_timestamp, status, duration_ns,
			item_count, success_count, error_count, memory_usage, error_log
		FROM collection_runs
		WHERE source_id = $1
		ORDER BY run_timestamp DESC`
	args := []interface{}{sourceID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for source %s: %w", sourceID, err)
	}
	defer rows.Close()

	var out []models.CollectionRun
	for rows.Next() {
		var run models.CollectionRun
		var durationNs, memoryUsage int64
		var errorLog []byte

		err := rows.Scan(
			&run.ID,
			&run.SourceID,
			&run.Timestamp,
			&run.Status,
			&durationNs,
			&run.Stats.ItemCount,
			&run.Stats.SuccessCount,
			&run.Stats.ErrorCount,
			&memoryUsage,
			&errorLog,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		run.Stats.Duration = time.Duration(durationNs)
		run.Stats.MemoryUsage = uint64(memoryUsage)
		if len(errorLog) > 0 {
			if err := json.Unmarshal(errorLog, &run.ErrorLog); err != nil {
				return nil, fmt.Errorf("failed to decode error log for run %s: %w", run.ID, err)
			}
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return out, nil
}
