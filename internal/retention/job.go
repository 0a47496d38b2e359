package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// JobConfig holds configuration for the retention job
type JobConfig struct {
	Interval         time.Duration // Interval between runs (default: 24 hours)
	SpamThreshold    time.Duration // Age at which spam is deleted (default: 15 days)
	ArchiveRetention time.Duration // Age at which export archives are pruned (default: 7 days)
	Enabled          bool
}

// DefaultJobConfig returns default configuration
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Interval:         24 * time.Hour,
		SpamThreshold:    DefaultThreshold,
		ArchiveRetention: 7 * 24 * time.Hour,
		Enabled:          true,
	}
}

// ArchivePruner removes export archives last modified before cutoff
type ArchivePruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Result holds the result of a retention run
type Result struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	SpamDeleted     int       `json:"spam_deleted"`
	ArchivesDeleted int       `json:"archives_deleted"`
	Errors          []string  `json:"errors,omitempty"`
}

// Job runs the spam sweep, and the archive prune when a pruner is set, on
// an interval
type Job struct {
	sweeper    *Sweeper
	pruner     ArchivePruner
	config     JobConfig
	logger     *slog.Logger
	stopChan   chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	lastResult *Result
}

// NewJob creates a retention job. pruner may be nil.
func NewJob(sweeper *Sweeper, pruner ArchivePruner, config JobConfig, log *slog.Logger) *Job {
	if log == nil {
		log = slog.Default()
	}
	defaults := DefaultJobConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.SpamThreshold <= 0 {
		config.SpamThreshold = defaults.SpamThreshold
	}
	if config.ArchiveRetention <= 0 {
		config.ArchiveRetention = defaults.ArchiveRetention
	}
	return &Job{
		sweeper:  sweeper,
		pruner:   pruner,
		config:   config,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic job
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("retention job is already running")
	}

	if !j.config.Enabled {
		j.logger.Info("retention job is disabled")
		return nil
	}

	j.running = true
	j.stopChan = make(chan struct{})
	j.wg.Add(1)

	go j.run()

	j.logger.Info("retention job started",
		slog.Duration("interval", j.config.Interval),
		slog.Duration("spam_threshold", j.config.SpamThreshold),
	)
	return nil
}

// Stop stops the periodic job and waits for a run in progress
func (j *Job) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stopChan)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("retention job stopped")
}

// IsRunning returns whether the job is running
func (j *Job) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// LastResult returns the result of the last run
func (j *Job) LastResult() *Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastResult
}

func (j *Job) run() {
	defer j.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-j.stopChan
		cancel()
	}()

	j.RunNow(ctx)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunNow(ctx)
		case <-j.stopChan:
			return
		}
	}
}

// RunNow performs a single run and records its result
func (j *Job) RunNow(ctx context.Context) *Result {
	result := &Result{StartTime: j.sweeper.now()}

	deleted, err := j.sweeper.SweepOldSpam(ctx, j.config.SpamThreshold)
	result.SpamDeleted = deleted
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("spam sweep: %v", err))
		j.logger.Error("spam sweep failed", slog.Any("error", err))
	}

	if j.pruner != nil {
		pruned, err := j.pruner.Prune(ctx, j.sweeper.now().Add(-j.config.ArchiveRetention))
		result.ArchivesDeleted = pruned
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("archive prune: %v", err))
			j.logger.Error("archive prune failed", slog.Any("error", err))
		}
	}

	result.EndTime = j.sweeper.now()

	j.mu.Lock()
	j.lastResult = result
	j.mu.Unlock()

	j.logger.Info("retention run completed",
		slog.Int("spam_deleted", result.SpamDeleted),
		slog.Int("archives_deleted", result.ArchivesDeleted),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)),
	)
	return result
}
