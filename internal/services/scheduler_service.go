package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lienledger/api/internal/logger"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/repository"
)

// DefaultCollectorTimeout bounds one collector invocation when no timeout
// is configured.
const DefaultCollectorTimeout = 5 * time.Minute

// CollectorResult is what an external collector reports for one source.
type CollectorResult struct {
	Properties   []models.Property
	Duration     time.Duration
	Success      bool
	ErrorMessage *string
}

// CollectorFunc fetches property data for one due source. Implementations
// live outside the core; internal/collector provides the HTTP reference
// implementation.
type CollectorFunc func(ctx context.Context, source models.DataSource) (*CollectorResult, error)

// CollectionResult is the per-source outcome of one scheduler pass.
type CollectionResult struct {
	SourceID      string `json:"sourceId"`
	Success       bool   `json:"success"`
	PropertyCount int    `json:"propertyCount"`
	Error         string `json:"error,omitempty"`
}

// SchedulerService decides which data sources are due for collection and
// computes each source's next run time. The due/next-run arithmetic is pure
// over an injected now so it can be tested without a wall clock.
type SchedulerService interface {
	// IsDue reports whether the source's scheduled collection time has
	// passed. Inactive and manual sources are never automatically due.
	IsDue(source *models.DataSource, now time.Time) bool

	// NextRun computes the run time one period after from, applying the
	// schedule's weekday or day-of-month adjustment. The second return is
	// false for manual schedules, which are never auto-scheduled.
	NextRun(schedule models.Schedule, from time.Time) (time.Time, bool)

	// FindDueSources returns every non-inactive source that is due now.
	FindDueSources(ctx context.Context) ([]models.DataSource, error)

	// ListSources returns every configured data source.
	ListSources(ctx context.Context) ([]models.DataSource, error)

	// CollectSource runs one collection for a single source regardless of
	// its schedule. This is the manual trigger for on-demand sources.
	CollectSource(ctx context.Context, sourceID string, collect CollectorFunc) (CollectionResult, error)

	// ScheduleNext persists the source's next run time computed from now.
	// A failed run keeps its normal cadence but flips the source status to
	// error; operators intervene for systemic failures while the schedule
	// self-heals on the next tick.
	ScheduleNext(ctx context.Context, sourceID string, success bool, now time.Time) (*models.DataSource, error)

	// RunScheduledCollections collects every due source, records each run,
	// and reschedules each source. A failing source never blocks the rest.
	RunScheduledCollections(ctx context.Context, collect CollectorFunc) ([]CollectionResult, error)
}

type schedulerService struct {
	store            repository.Store
	recorder         RecorderService
	log              *logger.Logger
	clock            clockwork.Clock
	collectorTimeout time.Duration
}

// NewSchedulerService creates a new SchedulerService instance.
// collectorTimeout bounds each collector invocation; zero means
// DefaultCollectorTimeout.
func NewSchedulerService(store repository.Store, recorder RecorderService, log *logger.Logger, clock clockwork.Clock, collectorTimeout time.Duration) SchedulerService {
	if collectorTimeout <= 0 {
		collectorTimeout = DefaultCollectorTimeout
	}
	return &schedulerService{
		store:            store,
		recorder:         recorder,
		log:              log,
		clock:            clock,
		collectorTimeout: collectorTimeout,
	}
}

func (s *schedulerService) IsDue(source *models.DataSource, now time.Time) bool {
	if source.Status == models.SourceStatusInactive {
		return false
	}

	var last time.Time
	if source.LastCollected != nil {
		last = *source.LastCollected
	}

	next, ok := s.NextRun(source.Schedule, last)
	if !ok {
		return false
	}
	return !now.Before(next)
}

func (s *schedulerService) NextRun(schedule models.Schedule, from time.Time) (time.Time, bool) {
	switch schedule.Frequency {
	case models.FrequencyHourly:
		return from.Add(time.Hour), true
	case models.FrequencyDaily:
		return from.Add(24 * time.Hour), true
	case models.FrequencyWeekly:
		next := from.Add(7 * 24 * time.Hour)
		if schedule.DayOfWeek != nil {
			// Shift forward to the requested weekday, never backward. A next
			// already landing on that weekday stays put.
			target := time.Weekday(((*schedule.DayOfWeek % 7) + 7) % 7)
			days := (int(target) - int(next.Weekday()) + 7) % 7
			next = next.AddDate(0, 0, days)
		}
		return next, true
	case models.FrequencyMonthly:
		return nextCalendarMonth(from, schedule.DayOfMonth), true
	default:
		// Manual (or unknown) frequencies are never auto-scheduled.
		return time.Time{}, false
	}
}

// nextCalendarMonth advances one calendar month, targeting dayOfMonth when
// set and clamping to the destination month's length (Jan 31 + 1 month is
// Feb 28/29, not Mar 2).
func nextCalendarMonth(from time.Time, dayOfMonth *int) time.Time {
	year, month, day := from.Date()
	if dayOfMonth != nil && *dayOfMonth > 0 {
		day = *dayOfMonth
	}

	firstOfNext := time.Date(year, month+1, 1, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
	if max := daysInMonth(firstOfNext.Year(), firstOfNext.Month()); day > max {
		day = max
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (s *schedulerService) FindDueSources(ctx context.Context) ([]models.DataSource, error) {
	now := s.clock.Now().UTC()

	var due []models.DataSource
	err := s.store.View(ctx, func(tx repository.Tx) error {
		sources, err := tx.ListDataSources(ctx)
		if err != nil {
			return err
		}
		for i := range sources {
			if s.IsDue(&sources[i], now) {
				due = append(due, sources[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find due sources: %w", err)
	}
	return due, nil
}

func (s *schedulerService) ListSources(ctx context.Context) ([]models.DataSource, error) {
	var sources []models.DataSource
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		sources, err = tx.ListDataSources(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

func (s *schedulerService) CollectSource(ctx context.Context, sourceID string, collect CollectorFunc) (CollectionResult, error) {
	var source *models.DataSource
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		source, err = tx.GetDataSource(ctx, sourceID)
		return err
	})
	if err != nil {
		return CollectionResult{}, fmt.Errorf("failed to load source %s: %w", sourceID, err)
	}
	if source == nil {
		return CollectionResult{}, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}
	return s.collectOne(ctx, *source, collect), nil
}

func (s *schedulerService) ScheduleNext(ctx context.Context, sourceID string, success bool, now time.Time) (*models.DataSource, error) {
	var updated *models.DataSource

	err := s.store.RunInTransaction(ctx, func(tx repository.Tx) error {
		source, err := tx.GetDataSource(ctx, sourceID)
		if err != nil {
			return err
		}
		if source == nil {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
		}

		if next, ok := s.NextRun(source.Schedule, now); ok {
			source.NextScheduledRun = &next
		} else {
			source.NextScheduledRun = nil
		}
		if !success {
			source.Status = models.SourceStatusError
		}
		source.UpdatedAt = now
		if err := tx.PutDataSource(ctx, source); err != nil {
			return err
		}

		updated = source
		return nil
	})
	if err != nil {
		s.log.Error("Failed to schedule next run", err, map[string]interface{}{
			"source_id": sourceID,
		})
		return nil, err
	}
	return updated, nil
}

func (s *schedulerService) RunScheduledCollections(ctx context.Context, collect CollectorFunc) ([]CollectionResult, error) {
	due, err := s.FindDueSources(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info("Running scheduled collections", map[string]interface{}{
		"due_sources": len(due),
	})

	results := make([]CollectionResult, 0, len(due))
	for _, source := range due {
		results = append(results, s.collectOne(ctx, source, collect))
	}
	return results, nil
}

// collectOne runs the collector for a single source and records the
// outcome. Every failure path is absorbed into the per-source result so one
// bad source never blocks the rest of the due list.
func (s *schedulerService) collectOne(ctx context.Context, source models.DataSource, collect CollectorFunc) CollectionResult {
	collected, err := s.invokeCollector(ctx, source, collect)

	var properties []models.Property
	var duration time.Duration
	success := false
	var errorDetails *string

	switch {
	case err != nil:
		message := err.Error()
		errorDetails = &message
	case collected.Success:
		properties = collected.Properties
		duration = collected.Duration
		success = true
	default:
		properties = collected.Properties
		duration = collected.Duration
		errorDetails = collected.ErrorMessage
	}

	if _, recordErr := s.recorder.RecordRun(ctx, source.ID, properties, duration, success, errorDetails); recordErr != nil {
		s.log.Error("Failed to record run for source", recordErr, map[string]interface{}{
			"source_id": source.ID,
		})
		return CollectionResult{SourceID: source.ID, Success: false, Error: recordErr.Error()}
	}

	if _, schedErr := s.ScheduleNext(ctx, source.ID, success, s.clock.Now().UTC()); schedErr != nil {
		s.log.Error("Failed to reschedule source", schedErr, map[string]interface{}{
			"source_id": source.ID,
		})
		return CollectionResult{SourceID: source.ID, Success: false, Error: schedErr.Error()}
	}

	result := CollectionResult{
		SourceID:      source.ID,
		Success:       success,
		PropertyCount: len(properties),
	}
	if errorDetails != nil {
		result.Error = *errorDetails
	}
	return result
}

// invokeCollector calls the external collector under a timeout, converting
// panics into errors so a misbehaving collector cannot crash the loop.
func (s *schedulerService) invokeCollector(ctx context.Context, source models.DataSource, collect CollectorFunc) (result *CollectorResult, err error) {
	collectCtx, cancel := context.WithTimeout(ctx, s.collectorTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("collector panicked for source %s: %v", source.ID, r)
		}
	}()

	result, err = collect(collectCtx, source)
	if err != nil {
		return nil, fmt.Errorf("collector failed for source %s: %w", source.ID, err)
	}
	if result == nil {
		return nil, fmt.Errorf("collector returned no result for source %s", source.ID)
	}
	return result, nil
}
