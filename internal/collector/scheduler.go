package collector

import (
	"context"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/clock"
	"github.com/infra-mapper/infra-mapper/internal/config"
	"github.com/infra-mapper/infra-mapper/internal/logging"
)

// Scheduler runs the report loop at the configured report interval —
// one tick, one report, the way the teacher's engine.Scheduler runs
// one tick per scan cycle.
type Scheduler struct {
	collector *Collector
	client    *ReportClient
	cfg       *config.CollectorConfig
	log       *logging.Logger
	clock     clock.Clock
	resetCh   chan struct{}
	lastRun   time.Time
	sendErr   string // last transport failure, carried into the next report
}

// NewScheduler creates a Scheduler.
func NewScheduler(c *Collector, rc *ReportClient, cfg *config.CollectorConfig, log *logging.Logger, clk clock.Clock) *Scheduler {
	return &Scheduler{
		collector: c,
		client:    rc,
		cfg:       cfg,
		log:       log,
		clock:     clk,
		resetCh:   make(chan struct{}, 1),
	}
}

// Run starts the report loop: one report immediately, then one per
// interval, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.tick(ctx)

	for {
		select {
		case <-s.clock.After(s.cfg.ScanInterval()):
			s.tick(ctx)
		case <-s.resetCh:
			s.log.Info("report interval changed, resetting timer", "interval", s.cfg.ScanInterval())
		case <-ctx.Done():
			s.log.Info("collector scheduler stopped")
			return nil
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	report, err := s.collector.BuildReport(ctx)
	if err != nil {
		s.log.Error("build report failed, skipping this tick", "error", err)
		return
	}
	if s.sendErr != "" {
		report.Agent.Error = appendErr(s.sendErr, report.Agent.Error)
		s.sendErr = ""
	}
	if err := s.client.Send(ctx, report); err != nil {
		s.log.Warn("send report failed", "error", err)
		s.sendErr = err.Error()
	}
	s.lastRun = s.clock.Now()
}

// SetReportInterval updates the interval at runtime and wakes the loop
// so the new interval takes effect on the next timer reset.
func (s *Scheduler) SetReportInterval(d time.Duration) {
	s.cfg.SetScanInterval(d)
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
}

// LastRun returns when the last tick completed.
func (s *Scheduler) LastRun() time.Time { return s.lastRun }
