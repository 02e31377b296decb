package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db"
	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrSweepInProgress is returned by RunOnce while another sweep is running.
var ErrSweepInProgress = errors.New("sweep already in progress")

// cronParser supports standard 5-field cron and descriptors like "@every 1h".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// Checker runs one config. *Runner satisfies it.
type Checker interface {
	Check(ctx context.Context, cfg db.RunnableConfig) Result
}

// SweepSummary counts the outcomes of one sweep.
type SweepSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Sweeper checks every active config on a cron schedule.
type Sweeper struct {
	db       *gorm.DB
	checker  Checker
	expr     string
	schedule cronlib.Schedule
	now      func() time.Time
	logger   *zap.Logger

	running atomic.Bool

	mu     sync.Mutex
	cron   *cronlib.Cron
	cancel context.CancelFunc
}

// NewSweeper creates a Sweeper for the given cron expression.
func NewSweeper(database *gorm.DB, checker Checker, expr string, logger *zap.Logger) (*Sweeper, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		db:       database,
		checker:  checker,
		expr:     expr,
		schedule: schedule,
		now:      time.Now,
		logger:   logger.Named("sweep"),
	}, nil
}

// Start schedules sweeps until Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cronlib.New(cronlib.WithLocation(time.UTC))
	c.Schedule(s.schedule, cronlib.FuncJob(func() {
		if _, err := s.RunOnce(runCtx); err != nil {
			s.logger.Warn("sweep tick dropped", zap.Error(err))
		}
	}))
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.logger.Info("sweeper started",
		zap.String("schedule", s.expr),
		zap.Time("next_run", s.schedule.Next(s.now().UTC())),
	)
	return nil
}

// Stop prevents new sweeps and waits for a running one, up to ctx's deadline.
// In-flight upstream calls are cancelled when ctx expires first.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	defer cancel()

	done := c.Stop()
	select {
	case <-done.Done():
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce checks all active configs sequentially, then purges expired
// sessions. A failing config does not stop the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepSummary{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	start := s.now()
	var summary SweepSummary

	configs, err := db.ListRunnableConfigs(s.db.WithContext(ctx))
	if err != nil {
		return summary, fmt.Errorf("load monitor configs: %w", err)
	}
	summary.Total = len(configs)
	s.logger.Info("sweep started", zap.Int("configs", len(configs)))

	for _, cfg := range configs {
		if ctx.Err() != nil {
			break
		}
		res := s.checker.Check(ctx, cfg)
		switch {
		case res.Skipped:
			summary.Skipped++
		case res.Succeeded && res.Err == nil:
			summary.Succeeded++
		default:
			summary.Failed++
		}
	}

	purged, err := db.DeleteExpiredSessions(s.db.WithContext(context.WithoutCancel(ctx)), s.now())
	if err != nil {
		s.logger.Warn("failed to purge expired sessions", zap.Error(err))
	}

	s.logger.Info("sweep finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int64("sessions_purged", purged),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return summary, ctx.Err()
}
