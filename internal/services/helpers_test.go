package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lienledger/api/internal/logger"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/repository"
	"github.com/stretchr/testify/require"
)

// testStart is a Monday, which the weekly schedule tests rely on.
var testStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func newTestLogger() *logger.Logger {
	return logger.New("test")
}

func ptrString(s string) *string     { return &s }
func ptrInt(n int) *int              { return &n }
func ptrFloat(f float64) *float64    { return &f }
func ptrTime(t time.Time) *time.Time { return &t }

// seedHierarchy loads two states and three counties so move tests can cross
// both county and state boundaries.
//
//	st-tx: cty-travis, cty-harris
//	st-ok: cty-tulsa
func seedHierarchy(t *testing.T, store repository.Store) {
	t.Helper()

	states := []models.State{
		{ID: "st-tx", Name: "Texas", CreatedAt: testStart, UpdatedAt: testStart},
		{ID: "st-ok", Name: "Oklahoma", CreatedAt: testStart, UpdatedAt: testStart},
	}
	counties := []models.County{
		{ID: "cty-travis", StateID: "st-tx", Name: "Travis", CreatedAt: testStart, UpdatedAt: testStart},
		{ID: "cty-harris", StateID: "st-tx", Name: "Harris", CreatedAt: testStart, UpdatedAt: testStart},
		{ID: "cty-tulsa", StateID: "st-ok", Name: "Tulsa", CreatedAt: testStart, UpdatedAt: testStart},
	}

	err := store.RunInTransaction(context.Background(), func(tx repository.Tx) error {
		for i := range states {
			if err := tx.PutState(context.Background(), &states[i]); err != nil {
				return err
			}
		}
		for i := range counties {
			if err := tx.PutCounty(context.Background(), &counties[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func seedSource(t *testing.T, store repository.Store, source models.DataSource) {
	t.Helper()
	err := store.RunInTransaction(context.Background(), func(tx repository.Tx) error {
		return tx.PutDataSource(context.Background(), &source)
	})
	require.NoError(t, err)
}

func loadCounty(t *testing.T, store repository.Store, id string) models.County {
	t.Helper()
	var county *models.County
	err := store.View(context.Background(), func(tx repository.Tx) error {
		var err error
		county, err = tx.GetCounty(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, county, "county %s not found", id)
	return *county
}

func loadState(t *testing.T, store repository.Store, id string) models.State {
	t.Helper()
	var state *models.State
	err := store.View(context.Background(), func(tx repository.Tx) error {
		var err error
		state, err = tx.GetState(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, state, "state %s not found", id)
	return *state
}

func loadSource(t *testing.T, store repository.Store, id string) models.DataSource {
	t.Helper()
	var source *models.DataSource
	err := store.View(context.Background(), func(tx repository.Tx) error {
		var err error
		source, err = tx.GetDataSource(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, source, "source %s not found", id)
	return *source
}

func countRuns(t *testing.T, store repository.Store, sourceID string) int {
	t.Helper()
	var runs []models.CollectionRun
	err := store.View(context.Background(), func(tx repository.Tx) error {
		var err error
		runs, err = tx.ListRuns(context.Background(), sourceID, 0)
		return err
	})
	require.NoError(t, err)
	return len(runs)
}

func clockAt(at time.Time) *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(at)
}

// newHierarchyFixture wires a hierarchy service over a fresh seeded memory
// store with a fake clock.
func newHierarchyFixture(t *testing.T) (HierarchyService, *repository.MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	store := repository.NewMemoryStore()
	seedHierarchy(t, store)
	clock := clockAt(testStart)
	return NewHierarchyService(store, newTestLogger(), clock), store, clock
}

// faultStore wraps a Store and injects a PutState failure into every
// transaction, for exercising rollback behavior.
type faultStore struct {
	repository.Store
	failPutState bool
}

var errInjected = errors.New("injected store failure")

func (s *faultStore) RunInTransaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.Store.RunInTransaction(ctx, func(tx repository.Tx) error {
		return fn(&faultTx{Tx: tx, store: s})
	})
}

type faultTx struct {
	repository.Tx
	store *faultStore
}

func (t *faultTx) PutState(ctx context.Context, state *models.State) error {
	if t.store.failPutState {
		return errInjected
	}
	return t.Tx.PutState(ctx, state)
}
