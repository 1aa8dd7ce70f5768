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

package backend_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/server/backend"
	"github.com/codesync-team/codesync/server/backend/housekeeping"
	"github.com/codesync-team/codesync/server/backend/pipeline"
	"github.com/codesync-team/codesync/server/backend/pubsub"
	"github.com/codesync-team/codesync/server/backend/sync"
	"github.com/codesync-team/codesync/server/profiling/prometheus"
)

const waitTimeout = 5 * time.Second

func newBackend(t *testing.T, redisConf *backend.RedisConfig) *backend.Backend {
	t.Helper()

	metrics, err := prometheus.NewMetrics()
	require.NoError(t, err)

	pipelineConf := pipeline.DefaultConfig()
	for _, tc := range []*pipeline.TypeConfig{
		&pipelineConf.Operations, &pipelineConf.Rooms, &pipelineConf.Cleanup, &pipelineConf.Metrics,
	} {
		tc.Backoff.Delay = "5ms"
	}

	be, err := backend.New(
		&backend.Config{
			Hostname:            "test-host",
			SnapshotSaveTimeout: "1s",
			PresenceTTL:         "1m",
		},
		sync.DefaultConfig(),
		pipelineConf,
		&housekeeping.Config{
			Interval:        "1h",
			MetricsInterval: "1h",
			RoomIdleTimeout: "1h",
		},
		redisConf,
		nil,
		nil,
		metrics,
	)
	require.NoError(t, err)
	require.NoError(t, be.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		assert.NoError(t, be.Shutdown(ctx))
	})
	return be
}

func receive(t *testing.T, sub *pubsub.Subscription, eventType types.RoomEventType, v any) {
	t.Helper()

	timeout := time.After(waitTimeout)
	for {
		select {
		case event := <-sub.Events():
			if event.Type != eventType {
				continue
			}
			require.NoError(t, pubsub.DecodePayload(event, v))
			return
		case <-timeout:
			t.Fatalf("no %s event in %s", eventType, waitTimeout)
		}
	}
}

func TestBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("apply operation and broadcast test", func(t *testing.T) {
		be := newBackend(t, nil)
		sub, err := be.Bus.Subscribe(ctx, "room-1", "observer")
		require.NoError(t, err)

		_, err = be.Pipeline.Enqueue(ctx, pipeline.ApplyOperation, "room-1", pipeline.ApplyOperationPayload{
			RoomID:       "room-1",
			EditorID:     "alice",
			ConnectionID: "conn-1",
			Operation:    types.NewInsert(0, "hello"),
		}, 0)
		require.NoError(t, err)

		var applied types.OperationApplied
		receive(t, sub, types.OperationAppliedEvent, &applied)
		assert.Equal(t, int64(1), applied.Version)
		assert.Equal(t, "hello", applied.Content)
		assert.Equal(t, "alice", applied.AuthorID)
		assert.Equal(t, "conn-1", applied.ConnectionID)
		assert.False(t, applied.Reset)

		assert.Eventually(t, func() bool {
			snapshot, err := be.DB.FindSnapshot(ctx, "room-1")
			return err == nil && snapshot.Version == 1 && snapshot.Content == "hello"
		}, waitTimeout, 10*time.Millisecond)
	})

	t.Run("membership broadcast test", func(t *testing.T) {
		be := newBackend(t, nil)
		sub, err := be.Bus.Subscribe(ctx, "room-1", "observer")
		require.NoError(t, err)

		for _, editor := range []string{"alice", "bob"} {
			_, err = be.Pipeline.Enqueue(ctx, pipeline.RoomMembershipChanged, "room-1", pipeline.MembershipPayload{
				RoomID:       "room-1",
				EditorID:     editor,
				ConnectionID: "conn-" + editor,
				Joined:       true,
			}, 0)
			require.NoError(t, err)

			var changed types.MembershipChanged
			receive(t, sub, types.UserJoinedEvent, &changed)
			assert.Equal(t, editor, changed.EditorID)
		}

		_, err = be.Pipeline.Enqueue(ctx, pipeline.RoomMembershipChanged, "room-1", pipeline.MembershipPayload{
			RoomID:       "room-1",
			EditorID:     "alice",
			ConnectionID: "conn-alice",
		}, 0)
		require.NoError(t, err)

		var changed types.MembershipChanged
		receive(t, sub, types.UserLeftEvent, &changed)
		assert.Equal(t, "alice", changed.EditorID)
		assert.Equal(t, []string{"bob"}, changed.Editors)
	})

	t.Run("cleanup resets evicted rooms test", func(t *testing.T) {
		be := newBackend(t, nil)
		sub, err := be.Bus.Subscribe(ctx, "room-1", "observer")
		require.NoError(t, err)

		_, err = be.Pipeline.Enqueue(ctx, pipeline.ApplyOperation, "room-1", pipeline.ApplyOperationPayload{
			RoomID:    "room-1",
			EditorID:  "alice",
			Operation: types.NewInsert(0, "hello"),
		}, 0)
		require.NoError(t, err)
		var applied types.OperationApplied
		receive(t, sub, types.OperationAppliedEvent, &applied)

		_, err = be.Pipeline.Enqueue(ctx, pipeline.Cleanup, "", pipeline.CleanupPayload{IdleTimeout: "0s"}, 0)
		require.NoError(t, err)

		var reset types.Snapshot
		receive(t, sub, types.RoomResetEvent, &reset)
		assert.Equal(t, "hello", reset.Content)
		assert.Equal(t, int64(0), reset.Version)
		assert.Equal(t, 0, be.Coordinator.Stats().Rooms)

		// The room comes back from its saved snapshot and reports the reset.
		_, err = be.Pipeline.Enqueue(ctx, pipeline.ApplyOperation, "room-1", pipeline.ApplyOperationPayload{
			RoomID:    "room-1",
			EditorID:  "bob",
			Operation: types.NewInsert(5, " world"),
		}, 0)
		require.NoError(t, err)

		receive(t, sub, types.OperationAppliedEvent, &applied)
		assert.True(t, applied.Reset)
		assert.Equal(t, int64(1), applied.Version)
		assert.Equal(t, "hello world", applied.Content)
	})

	t.Run("invalid operation fails without retry test", func(t *testing.T) {
		be := newBackend(t, nil)

		job, err := be.Pipeline.Enqueue(ctx, pipeline.ApplyOperation, "room-1", pipeline.ApplyOperationPayload{
			RoomID:    "room-1",
			EditorID:  "alice",
			Operation: types.Operation{Type: types.Delete, Position: -1, Length: 1},
		}, 0)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			failed, err := be.Pipeline.FailedJobs(pipeline.ApplyOperation)
			return err == nil && len(failed) == 1 && failed[0].ID == job.ID && failed[0].Attempts == 1
		}, waitTimeout, 10*time.Millisecond)

		_, err = be.Coordinator.Snapshot("room-1")
		assert.ErrorIs(t, err, sync.ErrRoomNotFound)
	})

	t.Run("collect metrics test", func(t *testing.T) {
		be := newBackend(t, nil)

		_, err := be.Pipeline.Enqueue(ctx, pipeline.CollectMetrics, "", nil, 0)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			stats, err := be.Pipeline.Stats(ctx)
			return err == nil && stats[pipeline.CollectMetrics].Completed == 1
		}, waitTimeout, 10*time.Millisecond)
	})
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	t.Run("presence and queue in redis test", func(t *testing.T) {
		be := newBackend(t, &backend.RedisConfig{URL: "redis://" + mr.Addr()})

		_, err := be.Pipeline.Enqueue(ctx, pipeline.RoomMembershipChanged, "room-1", pipeline.MembershipPayload{
			RoomID:       "room-1",
			EditorID:     "alice",
			ConnectionID: "conn-alice",
			Joined:       true,
		}, 0)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			return mr.Exists("room:room-1:users")
		}, waitTimeout, 10*time.Millisecond)

		editors, err := be.Presence.Editors(ctx, "room-1")
		require.NoError(t, err)
		require.Len(t, editors, 1)
		assert.Equal(t, "alice", editors[0].EditorID)
	})
}
