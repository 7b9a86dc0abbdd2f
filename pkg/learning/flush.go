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
package learning

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/types"
)

const retryInitialInterval = 50 * time.Millisecond

// Start launches the background flush worker. Once started, ReportOutcome
// hands due flushes to the worker instead of running them inline. Calling
// Start on a running learner is a no-op.
func (l *Learner) Start(ctx context.Context) error {
	l.workerMu.Lock()
	defer l.workerMu.Unlock()
	if l.started {
		return nil
	}

	l.stopChan = make(chan struct{})
	l.started = true
	l.wg.Add(1)
	go l.flushLoop(context.WithoutCancel(ctx))

	l.logger.Debug("Flush worker started", zap.Int("flush_every", l.cfg.FlushEvery))
	return nil
}

// Stop halts the worker and performs a final flush. Writes that still
// cannot be stored stay pending and are reported through the error.
func (l *Learner) Stop(ctx context.Context) error {
	l.workerMu.Lock()
	if l.started {
		close(l.stopChan)
		l.started = false
		l.workerMu.Unlock()
		l.wg.Wait()
	} else {
		l.workerMu.Unlock()
	}
	return l.Flush(ctx)
}

func (l *Learner) flushLoop(ctx context.Context) {
	defer l.wg.Done()

	var tick <-chan time.Time
	if l.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(l.cfg.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-l.flushCh:
			_ = l.Flush(ctx)
		case <-tick:
			if l.hasPending() {
				_ = l.Flush(ctx)
			}
		case <-l.stopChan:
			return
		}
	}
}

func (l *Learner) requestFlush(ctx context.Context) {
	l.workerMu.Lock()
	started := l.started
	l.workerMu.Unlock()

	if started {
		select {
		case l.flushCh <- struct{}{}:
		default:
			// a flush is already queued
		}
		return
	}
	// one attempt per write without backoff; failures stay queued for the
	// next flush
	_ = l.flush(ctx, 1)
}

func (l *Learner) hasPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) > 0 || len(l.pendingTrajectories) > 0
}

// PendingWrites is the number of queued Q-value and trajectory writes.
func (l *Learner) PendingWrites() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) + len(l.pendingTrajectories)
}

// Flush writes every queued update, trajectory and the learning counters to
// the store. Transient failures are merged back into the queue: a key
// updated again since the snapshot keeps its newer value and adds the
// failed visit count. Constraint violations can never succeed and are
// dropped with an error log.
func (l *Learner) Flush(ctx context.Context) error {
	return l.flush(ctx, l.cfg.maxRetries())
}

func (l *Learner) flush(ctx context.Context, attempts uint) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	ctx, span := l.tracer.StartSpan(ctx, "learning.flush")
	defer l.tracer.EndSpan(span)
	span.SetAttribute(observability.AttrAgentID, l.agentID)

	l.mu.Lock()
	writes := make([]*types.QValueWrite, 0, len(l.pending))
	for _, w := range l.pending {
		writes = append(writes, w)
	}
	l.pending = make(map[writeKey]*types.QValueWrite)
	trajectories := l.pendingTrajectories
	l.pendingTrajectories = nil
	l.updatesSinceFlush = 0
	l.mu.Unlock()

	sort.Slice(writes, func(i, j int) bool {
		if writes[i].StateHash != writes[j].StateHash {
			return writes[i].StateHash < writes[j].StateHash
		}
		return writes[i].ActionHash < writes[j].ActionHash
	})

	var (
		failedWrites []*types.QValueWrite
		failedTrajs  []*types.Trajectory
		firstErr     error
		flushed      int
	)
	labels := map[string]string{observability.AttrAgentType: string(l.agentType)}

	for _, w := range writes {
		err := l.retry(ctx, attempts, func(ctx context.Context) error {
			_, err := l.store.UpsertQValue(ctx, *w)
			return err
		})
		switch {
		case err == nil:
			flushed++
		case errors.Is(err, types.ErrConstraintViolation):
			l.drop(labels, "q-value", err,
				zap.String("state_hash", w.StateHash),
				zap.String("action_hash", w.ActionHash))
		default:
			failedWrites = append(failedWrites, w)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for _, t := range trajectories {
		err := l.retry(ctx, attempts, func(ctx context.Context) error {
			return l.store.AppendTrajectory(ctx, t)
		})
		switch {
		case err == nil:
			flushed++
		case errors.Is(err, types.ErrConstraintViolation):
			l.drop(labels, "trajectory", err, zap.String("trajectory_id", t.ID))
		default:
			failedTrajs = append(failedTrajs, t)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	l.flushedWrites.Add(int64(flushed))
	if flushed > 0 {
		l.tracer.RecordMetric(MetricFlushedWrites, float64(flushed), labels)
	}
	failed := len(failedWrites) + len(failedTrajs)
	if failed > 0 {
		l.flushFailures.Add(1)
	}

	l.mu.Lock()
	for _, w := range failedWrites {
		key := writeKey{stateHash: w.StateHash, actionHash: w.ActionHash}
		if newer, ok := l.pending[key]; ok {
			newer.Visits += w.Visits
			continue
		}
		l.pending[key] = w
	}
	l.pendingTrajectories = append(failedTrajs, l.pendingTrajectories...)
	if failed == 0 {
		l.stats.LastFlushAt = l.now()
	}
	state := l.stateLocked()
	l.mu.Unlock()

	err := l.retry(ctx, attempts, func(ctx context.Context) error {
		return l.store.SaveAgentState(ctx, state)
	})
	if err != nil {
		if errors.Is(err, types.ErrConstraintViolation) {
			l.logger.Error("Agent state rejected by store", zap.Error(err))
		} else if firstErr == nil {
			firstErr = err
			l.flushFailures.Add(1)
		}
	}

	span.SetAttribute("flushed", flushed)
	span.SetAttribute("requeued", failed)
	if firstErr != nil {
		l.tracer.RecordMetric(MetricFlushFailures, 1, labels)
		span.RecordError(firstErr)
		l.logger.Warn("Flush incomplete, updates kept in memory",
			zap.Int("flushed", flushed),
			zap.Int("requeued", failed),
			zap.Int64("flush_failures", l.flushFailures.Load()),
			zap.Error(firstErr))
		return firstErr
	}

	l.logger.Debug("Flushed updates", zap.Int("flushed", flushed))
	return nil
}

func (l *Learner) drop(labels map[string]string, kind string, err error, fields ...zap.Field) {
	l.droppedWrites.Add(1)
	l.tracer.RecordMetric(MetricDroppedWrites, 1, labels)
	l.logger.Error("Dropping "+kind+" write rejected by store",
		append(fields, zap.Error(err))...)
}

// retry runs op up to attempts times with a per-call timeout and exponential
// backoff. Constraint violations stop the retries immediately.
func (l *Learner) retry(ctx context.Context, attempts uint, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = l.cfg.StoreTimeout

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
		defer cancel()
		err := op(callCtx)
		if errors.Is(err, types.ErrConstraintViolation) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
	return err
}
