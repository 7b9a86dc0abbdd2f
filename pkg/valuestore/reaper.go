// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package valuestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/pkg/observability"
)

// Reaper metric names.
const (
	MetricReapedQValues      = "valuestore.reaper.q_values_deleted"
	MetricReapedTrajectories = "valuestore.reaper.trajectories_deleted"
	MetricReaperFailures     = "valuestore.reaper.failures"
)

// DefaultCleanupSchedule runs the reaper hourly.
const DefaultCleanupSchedule = "@every 1h"

// Cleaner is the subset of Store the reaper needs.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (CleanupResult, error)
}

// ReaperConfig configures a Reaper.
type ReaperConfig struct {
	// Schedule is a standard 5-field cron spec or descriptor such as "@every 1h".
	Schedule string
	// Timeout bounds one reaping pass. Zero means 5 minutes.
	Timeout time.Duration
	Tracer  observability.Tracer
	Logger  *zap.Logger
}

// Reaper physically deletes expired rows on a cron schedule, off the hot
// path. Reads already filter expired rows, so a late pass only costs space.
type Reaper struct {
	store    Cleaner
	schedule string
	timeout  time.Duration
	tracer   observability.Tracer
	logger   *zap.Logger

	mu      sync.Mutex
	engine  *cron.Cron
	running bool
	// serializes passes between the schedule and RunOnce
	passMu sync.Mutex
}

// NewReaper validates the schedule and returns a stopped Reaper.
func NewReaper(store Cleaner, cfg ReaperConfig) (*Reaper, error) {
	if store == nil {
		return nil, fmt.Errorf("reaper requires a store")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultCleanupSchedule
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Reaper{
		store:    store,
		schedule: cfg.Schedule,
		timeout:  cfg.Timeout,
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
	}, nil
}

// Start registers the schedule and starts the cron engine. Passes that would
// overlap a running pass are skipped.
func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("reaper already started")
	}

	logger := cronLogger{r.logger}
	engine := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := engine.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		// failures are logged and counted inside RunOnce
		_, _ = r.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	engine.Start()

	r.engine = engine
	r.running = true
	r.logger.Info("Expired-row reaper started", zap.String("schedule", r.schedule))
	return nil
}

// Stop halts the schedule and waits for a running pass or ctx, whichever
// comes first.
func (r *Reaper) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	engine := r.engine
	r.running = false
	r.engine = nil
	r.mu.Unlock()

	select {
	case <-engine.Stop().Done():
		r.logger.Info("Expired-row reaper stopped")
	case <-ctx.Done():
		r.logger.Warn("Reaper shutdown timed out with a pass still running")
	}
}

// RunOnce performs one reaping pass now.
func (r *Reaper) RunOnce(ctx context.Context) (CleanupResult, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	ctx, span := r.tracer.StartSpan(ctx, "valuestore.reaper.run")
	defer r.tracer.EndSpan(span)

	start := time.Now()
	res, err := r.store.CleanupExpired(ctx)
	span.SetAttribute(observability.AttrRowsAffected, res.Total())

	if res.QValues > 0 {
		r.tracer.RecordMetric(MetricReapedQValues, float64(res.QValues), nil)
	}
	if res.Trajectories > 0 {
		r.tracer.RecordMetric(MetricReapedTrajectories, float64(res.Trajectories), nil)
	}
	if err != nil {
		span.RecordError(err)
		r.tracer.RecordMetric(MetricReaperFailures, 1, nil)
		r.logger.Error("Expired-row cleanup failed",
			zap.Int64("q_values_deleted", res.QValues),
			zap.Int64("trajectories_deleted", res.Trajectories),
			zap.Error(err))
		return res, err
	}

	r.logger.Debug("Expired-row cleanup completed",
		zap.Int64("q_values_deleted", res.QValues),
		zap.Int64("trajectories_deleted", res.Trajectories),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
