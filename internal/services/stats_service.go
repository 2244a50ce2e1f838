package services

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/lienledger/api/internal/logger"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/repository"
)

// StatsService recomputes aggregate statistics from scratch by scanning an
// entity's children. Used for repair after bulk loads or detected drift;
// the incremental deltas in HierarchyService keep statistics correct in
// normal operation.
type StatsService interface {
	// RecalculateState rederives a state's statistics from its counties.
	// Returns nil, nil when the state does not exist.
	RecalculateState(ctx context.Context, stateID string) (*models.State, error)

	// RecalculateCounty rederives a county's statistics from its properties.
	// Returns nil, nil when the county does not exist.
	RecalculateCounty(ctx context.Context, countyID string) (*models.County, error)

	// GetState returns a state by id, or nil, nil when missing.
	GetState(ctx context.Context, stateID string) (*models.State, error)

	// GetCounty returns a county by id, or nil, nil when missing.
	GetCounty(ctx context.Context, countyID string) (*models.County, error)
}

type statsService struct {
	store repository.Store
	log   *logger.Logger
	clock clockwork.Clock
}

// NewStatsService creates a new StatsService instance.
func NewStatsService(store repository.Store, log *logger.Logger, clock clockwork.Clock) StatsService {
	return &statsService{
		store: store,
		log:   log,
		clock: clock,
	}
}

func (s *statsService) GetState(ctx context.Context, stateID string) (*models.State, error) {
	var state *models.State
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		state, err = tx.GetState(ctx, stateID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *statsService) GetCounty(ctx context.Context, countyID string) (*models.County, error) {
	var county *models.County
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		county, err = tx.GetCounty(ctx, countyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return county, nil
}

func (s *statsService) RecalculateState(ctx context.Context, stateID string) (*models.State, error) {
	now := s.clock.Now().UTC()
	var updated *models.State

	err := s.store.RunInTransaction(ctx, func(tx repository.Tx) error {
		state, err := tx.GetState(ctx, stateID)
		if err != nil {
			return err
		}
		if state == nil {
			return nil
		}

		counties, err := tx.ListCountiesByState(ctx, stateID)
		if err != nil {
			return err
		}

		stats := models.Statistics{LastUpdated: now}
		for _, county := range counties {
			stats.TotalProperties += county.Statistics.TotalProperties
			stats.TotalTaxLiens += county.Statistics.TotalTaxLiens
			stats.TotalValue += county.Statistics.TotalValue
			stats.TotalPropertiesWithLiens += county.Statistics.TotalPropertiesWithLiens
		}
		stats.RecomputeAverage()

		state.TotalCounties = len(counties)
		state.Statistics = stats
		state.UpdatedAt = now
		if err := tx.PutState(ctx, state); err != nil {
			return err
		}

		updated = state
		return nil
	})
	if err != nil {
		s.log.Error("Failed to recalculate state statistics", err, map[string]interface{}{
			"state_id": stateID,
		})
		return nil, err
	}

	if updated != nil {
		s.log.Info("State statistics recalculated", map[string]interface{}{
			"state_id":         stateID,
			"total_counties":   updated.TotalCounties,
			"total_properties": updated.Statistics.TotalProperties,
			"total_value":      updated.Statistics.TotalValue,
		})
	}
	return updated, nil
}

func (s *statsService) RecalculateCounty(ctx context.Context, countyID string) (*models.County, error) {
	now := s.clock.Now().UTC()
	var updated *models.County

	err := s.store.RunInTransaction(ctx, func(tx repository.Tx) error {
		county, err := tx.GetCounty(ctx, countyID)
		if err != nil {
			return err
		}
		if county == nil {
			return nil
		}

		properties, err := tx.ListPropertiesByCounty(ctx, countyID)
		if err != nil {
			return err
		}

		stats := models.Statistics{LastUpdated: now}
		for i := range properties {
			d := deltaFor(&properties[i])
			stats.TotalProperties += d.properties
			stats.TotalTaxLiens += d.taxLiens
			stats.TotalPropertiesWithLiens += d.withLiens
			stats.TotalValue += d.value
		}
		stats.RecomputeAverage()

		county.Statistics = stats
		county.UpdatedAt = now
		if err := tx.PutCounty(ctx, county); err != nil {
			return err
		}

		updated = county
		return nil
	})
	if err != nil {
		s.log.Error("Failed to recalculate county statistics", err, map[string]interface{}{
			"county_id": countyID,
		})
		return nil, err
	}

	if updated != nil {
		s.log.Info("County statistics recalculated", map[string]interface{}{
			"county_id":        countyID,
			"total_properties": updated.Statistics.TotalProperties,
			"total_value":      updated.Statistics.TotalValue,
		})
	}
	return updated, nil
}
