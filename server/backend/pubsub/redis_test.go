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

package pubsub_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/server/backend/pubsub"
)

func newRedisBus(t *testing.T, mr *miniredis.Miniredis, instance string) *pubsub.Redis {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := pubsub.NewRedis(instance, client)
	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
		assert.NoError(t, client.Close())
	})
	return bus
}

func waitSubscribed(t *testing.T, mr *miniredis.Miniredis, channel string, count int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == count
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRedis(t *testing.T) {
	ctx := context.Background()

	t.Run("cross instance delivery test", func(t *testing.T) {
		mr := miniredis.RunT(t)
		busA := newRedisBus(t, mr, "a")
		busB := newRedisBus(t, mr, "b")

		subA, err := busA.Subscribe(ctx, "r1", "hub")
		assert.NoError(t, err)
		subB, err := busB.Subscribe(ctx, "r1", "hub")
		assert.NoError(t, err)
		waitSubscribed(t, mr, "room:r1", 2)

		applied := types.OperationApplied{Operation: types.NewInsert(0, "x"), Version: 1, Content: "x"}
		assert.NoError(t, busA.Publish(ctx, "r1", types.OperationAppliedEvent, applied))

		for _, sub := range []*pubsub.Subscription{subA, subB} {
			event := receive(t, sub)
			assert.Equal(t, "a", event.Instance)
			assert.Equal(t, "r1", event.RoomID)

			var decoded types.OperationApplied
			assert.NoError(t, pubsub.DecodePayload(event, &decoded))
			assert.Equal(t, "x", decoded.Content)
		}
		assert.True(t, busA.Healthy())
		assert.NoError(t, busA.Check(ctx))
	})

	t.Run("one channel subscription per room test", func(t *testing.T) {
		mr := miniredis.RunT(t)
		bus := newRedisBus(t, mr, "a")

		first, err := bus.Subscribe(ctx, "r1", "x")
		assert.NoError(t, err)
		second, err := bus.Subscribe(ctx, "r1", "y")
		assert.NoError(t, err)
		waitSubscribed(t, mr, "room:r1", 1)

		bus.Unsubscribe(ctx, "r1", first)
		waitSubscribed(t, mr, "room:r1", 1)

		bus.Unsubscribe(ctx, "r1", second)
		waitSubscribed(t, mr, "room:r1", 0)
	})

	t.Run("degraded local delivery test", func(t *testing.T) {
		mr := miniredis.RunT(t)
		bus := newRedisBus(t, mr, "a")

		sub, err := bus.Subscribe(ctx, "r1", "hub")
		assert.NoError(t, err)
		waitSubscribed(t, mr, "room:r1", 1)

		mr.SetError("LOADING redis is unavailable")
		err = bus.Publish(ctx, "r1", types.UserJoinedEvent, types.MembershipChanged{EditorID: "alice"})
		assert.ErrorIs(t, err, pubsub.ErrBusUnavailable)
		assert.False(t, bus.Healthy())
		assert.Error(t, bus.LastError())
		assert.ErrorIs(t, bus.Check(ctx), pubsub.ErrBusUnavailable)

		event := receive(t, sub)
		assert.Equal(t, types.UserJoinedEvent, event.Type)

		mr.SetError("")
		assert.NoError(t, bus.Check(ctx))
		assert.True(t, bus.Healthy())
	})
}
