package repository

import (
	"context"

	"github.com/lienledger/api/internal/models"
)

// Tx exposes the point reads and writes available inside one store
// transaction. Every method sees the writes made earlier in the same
// transaction. Get methods return nil, nil when the entity does not exist;
// an error indicates an actual store failure.
type Tx interface {
	GetState(ctx context.Context, id string) (*models.State, error)
	PutState(ctx context.Context, state *models.State) error
	ListStates(ctx context.Context) ([]models.State, error)

	GetCounty(ctx context.Context, id string) (*models.County, error)
	PutCounty(ctx context.Context, county *models.County) error
	ListCountiesByState(ctx context.Context, stateID string) ([]models.County, error)

	GetProperty(ctx context.Context, id string) (*models.Property, error)
	InsertProperty(ctx context.Context, property *models.Property) error
	UpdateProperty(ctx context.Context, property *models.Property) error
	// DeleteProperty removes the property and reports whether it existed.
	DeleteProperty(ctx context.Context, id string) (bool, error)
	ListPropertiesByCounty(ctx context.Context, countyID string) ([]models.Property, error)

	GetDataSource(ctx context.Context, id string) (*models.DataSource, error)
	PutDataSource(ctx context.Context, source *models.DataSource) error
	ListDataSources(ctx context.Context) ([]models.DataSource, error)

	InsertRun(ctx context.Context, run *models.CollectionRun) error
	// ListRuns returns the most recent runs for a source, newest first,
	// capped at limit (all runs when limit <= 0).
	ListRuns(ctx context.Context, sourceID string, limit int) ([]models.CollectionRun, error)
}

// Store is the transactional document store behind the inventory core.
// RunInTransaction is the load-bearing contract: either every write made
// through the Tx commits, or none do. Implementations must provide at least
// serializable isolation or optimistic conflict detection so concurrent
// increments on the same county are never lost.
type Store interface {
	// RunInTransaction executes fn within one atomic transaction. Any error
	// returned by fn aborts the transaction and is returned unchanged.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// View executes fn with a read-only transaction view.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}
