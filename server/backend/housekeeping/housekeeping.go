/*
 * Copyright 2026 The CodeSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package housekeeping

import (
	"context"
	"time"

	"github.com/codesync-team/codesync/server/backend/background"
	"github.com/codesync-team/codesync/server/backend/pipeline"
	"github.com/codesync-team/codesync/server/logging"
)

// Enqueuer queues pipeline jobs.
type Enqueuer interface {
	Enqueue(
		ctx context.Context,
		jobType pipeline.JobType,
		roomID string,
		payload any,
		priority int,
	) (pipeline.Job, error)
}

// Housekeeping is the housekeeping service. It periodically queues a cleanup
// job that evicts idle rooms and a job that samples statistics.
type Housekeeping struct {
	enqueuer   Enqueuer
	background *background.Background

	interval        time.Duration
	metricsInterval time.Duration
	roomIdleTimeout time.Duration

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// New creates a new housekeeping instance.
func New(
	conf *Config,
	enqueuer Enqueuer,
	bg *background.Background,
) (*Housekeeping, error) {
	interval, err := conf.ParseInterval()
	if err != nil {
		return nil, err
	}
	metricsInterval, err := conf.ParseMetricsInterval()
	if err != nil {
		return nil, err
	}
	roomIdleTimeout, err := conf.ParseRoomIdleTimeout()
	if err != nil {
		return nil, err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	return &Housekeeping{
		enqueuer:   enqueuer,
		background: bg,

		interval:        interval,
		metricsInterval: metricsInterval,
		roomIdleTimeout: roomIdleTimeout,

		ctx:        ctx,
		cancelFunc: cancelFunc,
	}, nil
}

// Start starts the housekeeping service.
func (h *Housekeeping) Start() error {
	h.background.AttachGoroutine(func(ctx context.Context) {
		h.run(ctx, h.interval, pipeline.Cleanup, pipeline.CleanupPayload{
			IdleTimeout: h.roomIdleTimeout.String(),
		})
	}, "housekeeping.cleanup")

	h.background.AttachGoroutine(func(ctx context.Context) {
		h.run(ctx, h.metricsInterval, pipeline.CollectMetrics, nil)
	}, "housekeeping.metrics")

	return nil
}

// Stop stops the housekeeping service.
func (h *Housekeeping) Stop() error {
	h.cancelFunc()

	return nil
}

// RoomIdleTimeout returns how long a room stays live without activity.
func (h *Housekeeping) RoomIdleTimeout() time.Duration {
	return h.roomIdleTimeout
}

// run queues a job of the given type every interval.
func (h *Housekeeping) run(
	ctx context.Context,
	interval time.Duration,
	jobType pipeline.JobType,
	payload any,
) {
	for {
		select {
		case <-time.After(interval):
		case <-h.ctx.Done():
			return
		case <-ctx.Done():
			return
		}

		if _, err := h.enqueuer.Enqueue(ctx, jobType, "", payload, 0); err != nil {
			logging.From(ctx).Errorf("HSKP: enqueue %s: %v", jobType, err)
			continue
		}
		logging.From(ctx).Debugf("HSKP: enqueued %s", jobType)
	}
}
