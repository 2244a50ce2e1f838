package services

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lienledger/api/internal/logger"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/repository"
)

// DefaultRunStatsLimit is how many recent runs GetRunStats aggregates when
// the caller does not specify a limit.
const DefaultRunStatsLimit = 10

// RecorderService appends an immutable history entry per collection run and
// reflects the latest outcome onto the data source's live status.
type RecorderService interface {
	// RecordRun persists the run and, in the same transaction, updates the
	// source's lastCollected timestamp, status, and error message. Returns
	// the new run's id, or ErrSourceNotFound.
	RecordRun(ctx context.Context, sourceID string, properties []models.Property, duration time.Duration, success bool, errorDetails *string) (string, error)

	// GetLatestRun returns the most recent run for a source, or nil, nil
	// when the source has no runs.
	GetLatestRun(ctx context.Context, sourceID string) (*models.CollectionRun, error)

	// GetRunStats aggregates the most recent limit runs (DefaultRunStatsLimit
	// when limit <= 0). Returns nil, nil when the source has no runs.
	GetRunStats(ctx context.Context, sourceID string, limit int) (*models.SourceRunSummary, error)
}

type recorderService struct {
	store repository.Store
	log   *logger.Logger
	clock clockwork.Clock
}

// NewRecorderService creates a new RecorderService instance.
func NewRecorderService(store repository.Store, log *logger.Logger, clock clockwork.Clock) RecorderService {
	return &recorderService{
		store: store,
		log:   log,
		clock: clock,
	}
}

func (s *recorderService) RecordRun(ctx context.Context, sourceID string, properties []models.Property, duration time.Duration, success bool, errorDetails *string) (string, error) {
	now := s.clock.Now().UTC()

	status := models.RunStatusSuccess
	successCount := len(properties)
	errorCount := 0
	var errorLog []models.RunError
	if !success {
		status = models.RunStatusError
		successCount = 0
		errorCount = len(properties)
		message := "Collection failed"
		if errorDetails != nil {
			message = *errorDetails
		}
		errorLog = []models.RunError{{Message: message, Timestamp: now}}
	}

	run := &models.CollectionRun{
		ID:        uuid.New().String(),
		SourceID:  sourceID,
		Timestamp: now,
		Status:    status,
		Stats: models.RunStats{
			Duration:     duration,
			ItemCount:    len(properties),
			SuccessCount: successCount,
			ErrorCount:   errorCount,
			MemoryUsage:  currentMemoryUsage(),
		},
		ErrorLog: errorLog,
	}

	err := s.store.RunInTransaction(ctx, func(tx repository.Tx) error {
		source, err := tx.GetDataSource(ctx, sourceID)
		if err != nil {
			return err
		}
		if source == nil {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
		}

		if err := tx.InsertRun(ctx, run); err != nil {
			return err
		}

		source.LastCollected = &now
		if success {
			source.Status = models.SourceStatusActive
			source.ErrorMessage = nil
		} else {
			source.Status = models.SourceStatusError
			source.ErrorMessage = errorDetails
		}
		source.UpdatedAt = now
		return tx.PutDataSource(ctx, source)
	})
	if err != nil {
		s.log.Error("Failed to record collection run", err, map[string]interface{}{
			"source_id": sourceID,
		})
		return "", err
	}

	s.log.Info("Collection run recorded", map[string]interface{}{
		"source_id":  sourceID,
		"run_id":     run.ID,
		"status":     status,
		"item_count": run.Stats.ItemCount,
		"duration":   duration.String(),
	})
	return run.ID, nil
}

func (s *recorderService) GetLatestRun(ctx context.Context, sourceID string) (*models.CollectionRun, error) {
	var latest *models.CollectionRun
	err := s.store.View(ctx, func(tx repository.Tx) error {
		runs, err := tx.ListRuns(ctx, sourceID, 1)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			latest = &runs[0]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run for source %s: %w", sourceID, err)
	}
	return latest, nil
}

func (s *recorderService) GetRunStats(ctx context.Context, sourceID string, limit int) (*models.SourceRunSummary, error) {
	if limit <= 0 {
		limit = DefaultRunStatsLimit
	}

	var summary *models.SourceRunSummary
	err := s.store.View(ctx, func(tx repository.Tx) error {
		runs, err := tx.ListRuns(ctx, sourceID, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return nil
		}

		successes := 0
		var totalDuration time.Duration
		totalItems := 0
		for _, run := range runs {
			if run.Status == models.RunStatusSuccess {
				successes++
			}
			totalDuration += run.Stats.Duration
			totalItems += run.Stats.ItemCount
		}

		lastRun := runs[0].Timestamp
		summary = &models.SourceRunSummary{
			SourceID:        sourceID,
			RunCount:        len(runs),
			SuccessRate:     float64(successes) / float64(len(runs)),
			AverageDuration: totalDuration / time.Duration(len(runs)),
			AverageItems:    float64(totalItems) / float64(len(runs)),
			LastRun:         &lastRun,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate runs for source %s: %w", sourceID, err)
	}
	return summary, nil
}

// currentMemoryUsage samples the process heap for run stats.
func currentMemoryUsage() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc
}
