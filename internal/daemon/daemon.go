package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/lienledger/api/internal/logger"
	"github.com/lienledger/api/internal/services"
)

// Daemon periodically ticks the collection scheduler. The tick interval is
// the polling cadence, not the per-source cadence: each tick asks the
// scheduler which sources are due and collects only those.
type Daemon struct {
	scheduler gocron.Scheduler
	svc       services.SchedulerService
	collect   services.CollectorFunc
	log       *logger.Logger
}

// New creates a daemon that runs the scheduler every tick interval.
func New(svc services.SchedulerService, collect services.CollectorFunc, log *logger.Logger, tick time.Duration) (*Daemon, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	d := &Daemon{
		scheduler: s,
		svc:       svc,
		collect:   collect,
		log:       log,
	}

	_, err = s.NewJob(
		gocron.DurationJob(tick),
		gocron.NewTask(d.tick),
		gocron.WithName("collection-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection tick job: %w", err)
	}

	return d, nil
}

// Start begins the tick loop.
func (d *Daemon) Start() {
	d.log.Info("Starting collection daemon", nil)
	d.scheduler.Start()
}

// Stop gracefully shuts down the tick loop, waiting for an in-flight tick.
func (d *Daemon) Stop() error {
	d.log.Info("Stopping collection daemon", nil)
	return d.scheduler.Shutdown()
}

// tick is invoked by gocron on each interval.
func (d *Daemon) tick() {
	results, err := d.svc.RunScheduledCollections(context.Background(), d.collect)
	if err != nil {
		d.log.Error("Scheduled collection pass failed", err, nil)
		return
	}

	failures := 0
	for _, r := range results {
		if !r.Success {
			failures++
		}
	}
	if len(results) > 0 {
		d.log.Info("Scheduled collection pass finished", map[string]interface{}{
			"sources":  len(results),
			"failures": failures,
		})
	}
}
