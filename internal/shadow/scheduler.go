package shadow

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// ReportSink receives the weekly shield report
type ReportSink interface {
	SendShieldReport(ctx context.Context, report *models.ShieldReport) error
}

// Scheduler runs the daily mark-to-market and the weekly shield report
// on cron schedules in the exchange timezone
type Scheduler struct {
	tracker *Tracker
	sink    ReportSink
	cfg     *config.ShadowConfig
	cron    *cron.Cron
}

// NewScheduler creates new shadow scheduler
func NewScheduler(tracker *Tracker, sink ReportSink, cfg *config.ShadowConfig, loc *time.Location) *Scheduler {
	return &Scheduler{
		tracker: tracker,
		sink:    sink,
		cfg:     cfg,
		cron:    cron.New(cron.WithLocation(loc)),
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.MarkSchedule, func() { s.runMarks(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.ReportSchedule, func() { s.runReport(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	logger.Info("🚀 Shadow scheduler started",
		zap.String("mark_schedule", s.cfg.MarkSchedule),
		zap.String("report_schedule", s.cfg.ReportSchedule),
	)

	return nil
}

// Stop halts the cron loop and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("shadow scheduler stopped")
}

func (s *Scheduler) runMarks(ctx context.Context) {
	updated, closed, err := s.tracker.UpdateAll(ctx)
	if err != nil {
		logger.Error("shadow mark run failed", zap.Error(err))
		return
	}

	logger.Info("📊 shadow mark run finished",
		zap.Int("updated", updated),
		zap.Int("closed", closed),
	)
}

func (s *Scheduler) runReport(ctx context.Context) {
	report, err := s.tracker.ShieldReport(ctx, s.cfg.ReportDays)
	if err != nil {
		logger.Error("shield report generation failed", zap.Error(err))
		return
	}

	logger.Info("📊 shield report generated",
		zap.Int("rejected", report.RejectedCount),
		zap.Int("defensive_wins", report.DefensiveWins),
		zap.String("total_avoided_loss", report.TotalAvoidedLoss.StringFixed(2)),
	)

	if s.sink == nil {
		return
	}
	if err := s.sink.SendShieldReport(ctx, report); err != nil {
		logger.Error("failed to send shield report", zap.Error(err))
	}
}
