// Package monitor runs metric checks for monitor configs, on demand and on
// a schedule.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db/models"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/upstream"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// TokenRefresher trades a refresh token for an access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// MetricsFetcher loads a script's execution metrics.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context, accessToken, scriptID string) (*upstream.ScriptMetrics, error)
}

// Notifier delivers metrics to a webhook.
type Notifier interface {
	SendWebhook(ctx context.Context, url string, n upstream.Notification) error
}

// Result describes one Check.
type Result struct {
	// Skipped is set when the owner has no refresh token; nothing was written.
	Skipped bool
	// Succeeded is set when metrics were fetched. Delivery is reported on Log.
	Succeeded bool
	Log       *models.MonitorLog
	// Err is set when the log row could not be written.
	Err error
}

// Runner executes one monitoring cycle for a config.
type Runner struct {
	db        *gorm.DB
	refresher TokenRefresher
	fetcher   MetricsFetcher
	notifier  Notifier
	now       func() time.Time
	logger    *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(database *gorm.DB, refresher TokenRefresher, fetcher MetricsFetcher, notifier Notifier, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		db:        database,
		refresher: refresher,
		fetcher:   fetcher,
		notifier:  notifier,
		now:       time.Now,
		logger:    logger.Named("runner"),
	}
}

// Check refreshes the owner's token, fetches metrics, posts them to the
// webhook and appends exactly one log row. Configs whose owner has no refresh
// token are skipped without a row.
func (r *Runner) Check(ctx context.Context, cfg db.RunnableConfig) Result {
	log := r.logger.With(
		zap.String("config_id", cfg.ID),
		zap.String("user_id", cfg.UserID),
		zap.String("script_id", cfg.ScriptID),
	)

	if cfg.RefreshToken == "" {
		log.Info("no refresh token, skipping")
		return Result{Skipped: true}
	}

	entry := &models.MonitorLog{
		ID:             uuid.NewString(),
		ConfigID:       cfg.ID,
		DeliveryStatus: models.DeliveryNotAttempted,
	}

	metrics, err := r.collect(ctx, cfg)
	if err != nil {
		if upstream.IsPermanentRefreshError(err) {
			log.Warn("refresh grant rejected, user must sign in again", zap.Error(err))
		} else {
			log.Warn("monitoring failed", zap.Error(err))
		}
		entry.ErrorDetails = fmt.Sprintf("Monitoring error: %v", err)
		return r.finish(ctx, log, entry, false)
	}

	notification := upstream.Notification{ScriptID: cfg.ScriptID, Data: metrics}
	if err := r.notifier.SendWebhook(ctx, cfg.WebhookURL, notification); err != nil {
		log.Warn("webhook delivery failed", zap.Error(err))
		entry.DeliveryStatus = models.DeliveryFailed
	} else {
		entry.DeliveryStatus = models.DeliveryDelivered
	}

	details, err := json.Marshal(struct {
		Data *upstream.ScriptMetrics `json:"data"`
	}{Data: metrics})
	if err != nil {
		details = []byte(`{"data":null}`)
	}
	entry.ErrorDetails = string(details)
	return r.finish(ctx, log, entry, true)
}

func (r *Runner) collect(ctx context.Context, cfg db.RunnableConfig) (*upstream.ScriptMetrics, error) {
	token, err := r.refresher.Refresh(ctx, cfg.RefreshToken)
	if err != nil {
		return nil, err
	}
	return r.fetcher.FetchMetrics(ctx, token.AccessToken, cfg.ScriptID)
}

func (r *Runner) finish(ctx context.Context, log *zap.Logger, entry *models.MonitorLog, succeeded bool) Result {
	entry.CheckTime = r.now().UTC()
	// The row is written even when the caller has gone away.
	if err := db.AppendLog(r.db.WithContext(context.WithoutCancel(ctx)), entry); err != nil {
		log.Error("failed to write monitor log", zap.Error(err))
		return Result{Succeeded: succeeded, Err: fmt.Errorf("append monitor log: %w", err)}
	}
	log.Info("check finished",
		zap.Bool("succeeded", succeeded),
		zap.String("delivery", entry.DeliveryStatus),
	)
	return Result{Succeeded: succeeded, Log: entry}
}
