package models

import (
	"time"
)

// Collection frequencies supported by the scheduler.
const (
	FrequencyHourly  = "hourly"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyManual  = "manual"
)

// Data source statuses.
const (
	SourceStatusActive   = "active"
	SourceStatusInactive = "inactive"
	SourceStatusError    = "error"
	SourceStatusSyncing  = "syncing"
)

// Collection run statuses.
const (
	RunStatusInProgress = "in-progress"
	RunStatusSuccess    = "success"
	RunStatusError      = "error"
)

// Schedule configures when a data source is collected. DayOfWeek
// (0=Sunday..6=Saturday) applies to weekly sources only; DayOfMonth (1..31,
// clamped to the month's length) applies to monthly sources only.
type Schedule struct {
	Frequency  string `json:"frequency"`
	DayOfWeek  *int   `json:"dayOfWeek,omitempty"`
	DayOfMonth *int   `json:"dayOfMonth,omitempty"`
}

// DataSource is an external collection configuration, e.g. a county
// assessor feed. LastCollected and NextScheduledRun are maintained
// exclusively by the scheduler subsystem.
type DataSource struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	URL              string     `json:"url"`
	CountyID         *string    `json:"countyId,omitempty"`
	Schedule         Schedule   `json:"schedule"`
	LastCollected    *time.Time `json:"lastCollected,omitempty"`
	NextScheduledRun *time.Time `json:"nextScheduledRun,omitempty"`
	Status           string     `json:"status"`
	ErrorMessage     *string    `json:"errorMessage,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// RunStats summarizes one collection run.
type RunStats struct {
	Duration     time.Duration `json:"duration"`
	ItemCount    int           `json:"itemCount"`
	SuccessCount int           `json:"successCount"`
	ErrorCount   int           `json:"errorCount"`
	MemoryUsage  uint64        `json:"memoryUsage"`
}

// RunError is one entry in a run's error log.
type RunError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CollectionRun is an append-only history record of one collection run.
// It is never mutated after creation except to transition Status while
// in-progress.
type CollectionRun struct {
	ID        string     `json:"id"`
	SourceID  string     `json:"sourceId"`
	Timestamp time.Time  `json:"timestamp"`
	Status    string     `json:"status"`
	Stats     RunStats   `json:"stats"`
	ErrorLog  []RunError `json:"errorLog"`
}

// SourceRunSummary aggregates the most recent runs of a data source.
type SourceRunSummary struct {
	SourceID        string        `json:"sourceId"`
	RunCount        int           `json:"runCount"`
	SuccessRate     float64       `json:"successRate"`
	AverageDuration time.Duration `json:"averageDuration"`
	AverageItems    float64       `json:"averageItems"`
	LastRun         *time.Time    `json:"lastRun,omitempty"`
}
