package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/lienledger/api/internal/models"
)

// MemoryStore is an in-memory Store used by tests and the `memory` database
// driver for local development. Transactions operate on a copy of the full
// dataset which replaces the live dataset only on commit, so a failed
// transaction leaves no partial writes behind. Commits serialize under one
// mutex, which satisfies the lost-increment requirement trivially.
type MemoryStore struct {
	mu   sync.Mutex
	data memoryData
}

type memoryData struct {
	states     map[string]models.State
	counties   map[string]models.County
	properties map[string]models.Property
	sources    map[string]models.DataSource
	runs       []models.CollectionRun
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

func newMemoryData() memoryData {
	return memoryData{
		states:     make(map[string]models.State),
		counties:   make(map[string]models.County),
		properties: make(map[string]models.Property),
		sources:    make(map[string]models.DataSource),
	}
}

func (d memoryData) clone() memoryData {
	c := memoryData{
		states:     make(map[string]models.State, len(d.states)),
		counties:   make(map[string]models.County, len(d.counties)),
		properties: make(map[string]models.Property, len(d.properties)),
		sources:    make(map[string]models.DataSource, len(d.sources)),
		runs:       make([]models.CollectionRun, len(d.runs)),
	}
	for k, v := range d.states {
		c.states[k] = v
	}
	for k, v := range d.counties {
		c.counties[k] = v
	}
	for k, v := range d.properties {
		c.properties[k] = v
	}
	for k, v := range d.sources {
		c.sources[k] = v
	}
	copy(c.runs, d.runs)
	return c
}

// RunInTransaction executes fn against a transactional copy of the dataset,
// swapping it in only when fn succeeds.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.data.clone()
	if err := fn(&memoryTx{data: &working}); err != nil {
		return err
	}
	s.data = working
	return nil
}

// View executes fn against a read-only copy of the dataset. Writes made by
// fn are discarded.
func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	working := s.data.clone()
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memoryTx{data: &working})
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}

// memoryTx implements Tx over a private copy of the dataset.
type memoryTx struct {
	data *memoryData
}

func (t *memoryTx) GetState(_ context.Context, id string) (*models.State, error) {
	if st, ok := t.data.states[id]; ok {
		return &st, nil
	}
	return nil, nil
}

func (t *memoryTx) PutState(_ context.Context, state *models.State) error {
	t.data.states[state.ID] = *state
	return nil
}

func (t *memoryTx) ListStates(_ context.Context) ([]models.State, error) {
	out := make([]models.State, 0, len(t.data.states))
	for _, st := range t.data.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) GetCounty(_ context.Context, id string) (*models.County, error) {
	if c, ok := t.data.counties[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (t *memoryTx) PutCounty(_ context.Context, county *models.County) error {
	t.data.counties[county.ID] = *county
	return nil
}

func (t *memoryTx) ListCountiesByState(_ context.Context, stateID string) ([]models.County, error) {
	var out []models.County
	for _, c := range t.data.counties {
		if c.StateID == stateID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) GetProperty(_ context.Context, id string) (*models.Property, error) {
	if p, ok := t.data.properties[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (t *memoryTx) InsertProperty(_ context.Context, property *models.Property) error {
	t.data.properties[property.ID] = *property
	return nil
}

func (t *memoryTx) UpdateProperty(_ context.Context, property *models.Property) error {
	t.data.properties[property.ID] = *property
	return nil
}

func (t *memoryTx) DeleteProperty(_ context.Context, id string) (bool, error) {
	if _, ok := t.data.properties[id]; !ok {
		return false, nil
	}
	delete(t.data.properties, id)
	return true, nil
}

func (t *memoryTx) ListPropertiesByCounty(_ context.Context, countyID string) ([]models.Property, error) {
	var out []models.Property
	for _, p := range t.data.properties {
		if p.CountyID == countyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) GetDataSource(_ context.Context, id string) (*models.DataSource, error) {
	if src, ok := t.data.sources[id]; ok {
		return &src, nil
	}
	return nil, nil
}

func (t *memoryTx) PutDataSource(_ context.Context, source *models.DataSource) error {
	t.data.sources[source.ID] = *source
	return nil
}

func (t *memoryTx) ListDataSources(_ context.Context) ([]models.DataSource, error) {
	out := make([]models.DataSource, 0, len(t.data.sources))
	for _, src := range t.data.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) InsertRun(_ context.Context, run *models.CollectionRun) error {
	t.data.runs = append(t.data.runs, *run)
	return nil
}

func (t *memoryTx) ListRuns(_ context.Context, sourceID string, limit int) ([]models.CollectionRun, error) {
	var out []models.CollectionRun
	for _, r := range t.data.runs {
		if r.SourceID == sourceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
