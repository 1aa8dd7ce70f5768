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

package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesync-team/codesync/server/backend/pipeline"
	"github.com/codesync-team/codesync/server/profiling/prometheus"
)

func testConfig() *pipeline.Config {
	conf := pipeline.DefaultConfig()
	conf.LaneTimeout = "1s"
	for _, tc := range []*pipeline.TypeConfig{&conf.Operations, &conf.Rooms, &conf.Cleanup, &conf.Metrics} {
		tc.Backoff.Delay = "5ms"
		tc.Timeout = "1s"
	}
	return conf
}

func newPipeline(t *testing.T, conf *pipeline.Config) *pipeline.Pipeline {
	t.Helper()

	metrics, err := prometheus.NewMetrics()
	require.NoError(t, err)
	p, err := pipeline.New(conf, pipeline.NewMemoryQueue(), metrics)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, p.Close(ctx))
	})
	return p
}

type indexPayload struct {
	Index int `json:"index"`
}

func TestPipeline(t *testing.T) {
	ctx := context.Background()

	t.Run("jobs of a room run in order test", func(t *testing.T) {
		p := newPipeline(t, testConfig())

		var mu sync.Mutex
		var order []int
		p.Register(pipeline.ApplyOperation, func(ctx context.Context, job pipeline.Job) error {
			var payload indexPayload
			if err := job.Decode(&payload); err != nil {
				return err
			}
			mu.Lock()
			order = append(order, payload.Index)
			mu.Unlock()
			return nil
		})
		require.NoError(t, p.Start())

		const count = 50
		var expected []int
		for i := 0; i < count; i++ {
			_, err := p.Enqueue(ctx, pipeline.ApplyOperation, "room-1", indexPayload{Index: i}, 0)
			require.NoError(t, err)
			expected = append(expected, i)
		}

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(order) == count
		}, 3*time.Second, 10*time.Millisecond)
		assert.Equal(t, expected, order)

		stats, err := p.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats[pipeline.ApplyOperation].Waiting)
		assert.Equal(t, 50, stats[pipeline.ApplyOperation].Completed)
	})

	t.Run("retry until success test", func(t *testing.T) {
		p := newPipeline(t, testConfig())

		done := make(chan pipeline.Job, 1)
		p.Register(pipeline.ApplyOperation, func(ctx context.Context, job pipeline.Job) error {
			if job.Attempts < 3 {
				return errors.New("not yet")
			}
			done <- job
			return nil
		})
		require.NoError(t, p.Start())

		_, err := p.Enqueue(ctx, pipeline.ApplyOperation, "room-1", nil, 0)
		require.NoError(t, err)

		select {
		case job := <-done:
			assert.Equal(t, 3, job.Attempts)
		case <-time.After(3 * time.Second):
			assert.Fail(t, "job was not retried")
		}
	})

	t.Run("exhausted job test", func(t *testing.T) {
		p := newPipeline(t, testConfig())

		exhausted := make(chan pipeline.Job, 1)
		p.Register(pipeline.RoomMembershipChanged, func(ctx context.Context, job pipeline.Job) error {
			return errors.New("always")
		})
		p.OnExhausted(func(ctx context.Context, job pipeline.Job, err error) {
			exhausted <- job
		})
		require.NoError(t, p.Start())

		_, err := p.Enqueue(ctx, pipeline.RoomMembershipChanged, "room-1", nil, 0)
		require.NoError(t, err)

		select {
		case job := <-exhausted:
			assert.Equal(t, 2, job.Attempts)
			assert.Equal(t, "always", job.LastError)
		case <-time.After(3 * time.Second):
			assert.Fail(t, "job was not exhausted")
		}

		failed, err := p.FailedJobs(pipeline.RoomMembershipChanged)
		require.NoError(t, err)
		assert.Len(t, failed, 1)
		assert.Equal(t, pipeline.StateFailed, failed[0].State)
	})

	t.Run("unrecoverable and panic test", func(t *testing.T) {
		p := newPipeline(t, testConfig())

		p.Register(pipeline.ApplyOperation, func(ctx context.Context, job pipeline.Job) error {
			if job.RoomID == "panic" {
				panic("boom")
			}
			return pipeline.Unrecoverable(errors.New("malformed"))
		})
		require.NoError(t, p.Start())

		_, err := p.Enqueue(ctx, pipeline.ApplyOperation, "bad", nil, 0)
		require.NoError(t, err)
		_, err = p.Enqueue(ctx, pipeline.ApplyOperation, "panic", nil, 0)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			failed, err := p.FailedJobs(pipeline.ApplyOperation)
			return err == nil && len(failed) == 2
		}, 3*time.Second, 10*time.Millisecond)

		failed, err := p.FailedJobs(pipeline.ApplyOperation)
		require.NoError(t, err)
		for _, job := range failed {
			if job.RoomID == "bad" {
				assert.Equal(t, 1, job.Attempts)
			} else {
				assert.Contains(t, job.LastError, "boom")
				assert.Equal(t, 3, job.Attempts)
			}
		}
	})

	t.Run("priority order test", func(t *testing.T) {
		conf := testConfig()
		conf.Operations.Concurrency = 1
		p := newPipeline(t, conf)

		var mu sync.Mutex
		var rooms []string
		p.Register(pipeline.ApplyOperation, func(ctx context.Context, job pipeline.Job) error {
			mu.Lock()
			rooms = append(rooms, job.RoomID)
			mu.Unlock()
			return nil
		})

		p.Pause()
		require.NoError(t, p.Start())
		_, err := p.Enqueue(ctx, pipeline.ApplyOperation, "low", nil, 1)
		require.NoError(t, err)
		_, err = p.Enqueue(ctx, pipeline.ApplyOperation, "high", nil, 20)
		require.NoError(t, err)
		p.Resume()

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(rooms) == 2
		}, 3*time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"high", "low"}, rooms)
	})

	t.Run("busy room does not hold up other lanes test", func(t *testing.T) {
		conf := testConfig()
		conf.Operations.Concurrency = 4
		conf.LaneBufferSize = 1
		conf.LaneTimeout = "5s"
		p := newPipeline(t, conf)

		var mu sync.Mutex
		var busy []int
		idle := make(chan time.Time, 1)
		p.Register(pipeline.ApplyOperation, func(ctx context.Context, job pipeline.Job) error {
			if job.RoomID != "busy" {
				idle <- time.Now()
				return nil
			}

			var payload indexPayload
			if err := job.Decode(&payload); err != nil {
				return err
			}
			time.Sleep(300 * time.Millisecond)
			mu.Lock()
			busy = append(busy, payload.Index)
			mu.Unlock()
			return nil
		})
		require.NoError(t, p.Start())

		// "busy" and "room-0" are sharded onto different lanes.
		var expected []int
		for i := 0; i < 8; i++ {
			_, err := p.Enqueue(ctx, pipeline.ApplyOperation, "busy", indexPayload{Index: i}, 0)
			require.NoError(t, err)
			expected = append(expected, i)
		}
		time.Sleep(50 * time.Millisecond)

		stats, err := p.Stats(ctx)
		require.NoError(t, err)
		assert.Positive(t, stats[pipeline.ApplyOperation].Waiting)

		enqueuedAt := time.Now()
		_, err = p.Enqueue(ctx, pipeline.ApplyOperation, "room-0", nil, 0)
		require.NoError(t, err)

		select {
		case ranAt := <-idle:
			assert.Less(t, ranAt.Sub(enqueuedAt), 250*time.Millisecond)
		case <-time.After(3 * time.Second):
			assert.Fail(t, "job of an idle lane did not run")
		}

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(busy) == len(expected)
		}, 5*time.Second, 20*time.Millisecond)
		mu.Lock()
		assert.Equal(t, expected, busy)
		mu.Unlock()
	})

	t.Run("parked jobs go back to the queue test", func(t *testing.T) {
		conf := testConfig()
		conf.Operations.Concurrency = 1
		conf.LaneBufferSize = 1
		conf.LaneTimeout = "100ms"
		p := newPipeline(t, conf)

		release := make(chan struct{})
		var mu sync.Mutex
		var order []int
		p.Register(pipeline.ApplyOperation, func(ctx context.Context, job pipeline.Job) error {
			<-release
			var payload indexPayload
			if err := job.Decode(&payload); err != nil {
				return err
			}
			mu.Lock()
			order = append(order, payload.Index)
			mu.Unlock()
			return nil
		})
		require.NoError(t, p.Start())

		for i := 0; i < 5; i++ {
			_, err := p.Enqueue(ctx, pipeline.ApplyOperation, "room-1", indexPayload{Index: i}, 0)
			require.NoError(t, err)
		}

		// Parked jobs cycle through the queue while the lane is blocked.
		time.Sleep(350 * time.Millisecond)
		close(release)

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(order) == 5
		}, 3*time.Second, 10*time.Millisecond)
		mu.Lock()
		assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
		mu.Unlock()
	})

	t.Run("queue full test", func(t *testing.T) {
		conf := testConfig()
		conf.MaxPending = 1
		p := newPipeline(t, conf)

		_, err := p.Enqueue(ctx, pipeline.Cleanup, "", nil, 0)
		require.NoError(t, err)
		_, err = p.Enqueue(ctx, pipeline.Cleanup, "", nil, 0)
		assert.ErrorIs(t, err, pipeline.ErrQueueFull)

		_, err = p.Enqueue(ctx, "unknown", "", nil, 0)
		assert.ErrorIs(t, err, pipeline.ErrUnknownJobType)
	})

	t.Run("close test", func(t *testing.T) {
		p := newPipeline(t, testConfig())

		started := make(chan struct{})
		release := make(chan struct{})
		var finished sync.WaitGroup
		finished.Add(1)
		p.Register(pipeline.Cleanup, func(ctx context.Context, job pipeline.Job) error {
			close(started)
			<-release
			finished.Done()
			return nil
		})
		require.NoError(t, p.Start())

		_, err := p.Enqueue(ctx, pipeline.Cleanup, "", nil, 0)
		require.NoError(t, err)
		<-started

		closed := make(chan error, 1)
		go func() {
			closed <- p.Close(ctx)
		}()
		close(release)

		assert.NoError(t, <-closed)
		finished.Wait()

		_, err = p.Enqueue(ctx, pipeline.Cleanup, "", nil, 0)
		assert.ErrorIs(t, err, pipeline.ErrPipelineClosed)
	})
}
