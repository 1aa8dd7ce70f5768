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

// Package background manages the goroutines that the backend runs on its
// own: the bus receive loops, the pipeline dispatchers and lanes, and the
// housekeeping scheduler.
package background

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/codesync-team/codesync/server/logging"
	"github.com/codesync-team/codesync/server/profiling/prometheus"
)

type routineID int32

func (c *routineID) next() string {
	next := atomic.AddInt32((*int32)(c), 1)
	return "b" + strconv.Itoa(int(next))
}

// Background is responsible for managing background routines.
type Background struct {
	// ctx is cancelled when the background service is closed.
	ctx    context.Context
	cancel context.CancelFunc

	// wgMu blocks concurrent WaitGroup mutation while closing.
	wgMu   sync.RWMutex
	closed bool

	// wg is used to wait for the goroutines to exit when closing.
	wg sync.WaitGroup

	routineID routineID
	running   atomic.Int32

	metrics *prometheus.Metrics
}

// New creates a new background service.
func New(metrics *prometheus.Metrics) *Background {
	ctx, cancel := context.WithCancel(context.Background())
	return &Background{
		ctx:     ctx,
		cancel:  cancel,
		metrics: metrics,
	}
}

// AttachGoroutine runs f on a new goroutine and tracks it. The context given
// to f carries a named logger and is cancelled by Close. It returns false if
// the service is already closed.
func (b *Background) AttachGoroutine(
	f func(ctx context.Context),
	taskType string,
) bool {
	b.wgMu.RLock()
	defer b.wgMu.RUnlock()
	if b.closed {
		logging.DefaultLogger().Warnf("background has closed; skipping %s", taskType)
		return false
	}

	b.wg.Add(1)
	b.running.Add(1)
	routineLogger := logging.New(b.routineID.next(), logging.NewField("task", taskType))
	if b.metrics != nil {
		b.metrics.AddBackgroundGoroutines(taskType)
	}
	go func() {
		defer func() {
			b.running.Add(-1)
			if b.metrics != nil {
				b.metrics.RemoveBackgroundGoroutines(taskType)
			}
			b.wg.Done()
		}()
		f(logging.With(b.ctx, routineLogger))
	}()
	return true
}

// Len returns the number of running goroutines.
func (b *Background) Len() int {
	return int(b.running.Load())
}

// Close cancels the context of every goroutine and waits for them to exit.
func (b *Background) Close() {
	b.wgMu.Lock()
	if b.closed {
		b.wgMu.Unlock()
		return
	}
	b.closed = true
	b.cancel()
	b.wgMu.Unlock()

	b.wg.Wait()
}
