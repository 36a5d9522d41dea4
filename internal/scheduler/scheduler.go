package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/terrain-invest/internal/terrain"
)

// Analyzer is the part of terrain.Service the scheduler drives.
type Analyzer interface {
	Analyze(ctx context.Context, req terrain.BatchRequest) ([]terrain.AnalysisResult, error)
}

// Scheduler periodically re-analyzes every stored site.
type Scheduler struct {
	scheduler *gocron.Scheduler
	analyzer  Analyzer
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.SugaredLogger
}

// New creates a new Scheduler. A zero interval leaves it disabled.
func New(interval time.Duration, analyzer Analyzer, logger *zap.SugaredLogger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		analyzer:  analyzer,
		interval:  interval,
		timeout:   30 * time.Minute,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("scheduler: refresh interval not set; site refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	s.logger.Info("scheduler: refreshing stored sites")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	results, err := s.analyzer.Analyze(ctx, terrain.BatchRequest{})
	if err != nil {
		s.logger.Errorw("scheduler: site refresh failed", "error", err)
		return
	}
	s.logger.Infow("scheduler: site refresh completed", "results", len(results))
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
