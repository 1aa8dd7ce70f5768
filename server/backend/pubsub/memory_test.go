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

	"github.com/stretchr/testify/assert"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/server/backend/pubsub"
)

func receive(t *testing.T, sub *pubsub.Subscription) types.RoomEvent {
	t.Helper()

	select {
	case event := <-sub.Events():
		return event
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for an event")
		return types.RoomEvent{}
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("publish subscribe test", func(t *testing.T) {
		bus := pubsub.NewMemory("i1")
		defer func() { assert.NoError(t, bus.Close()) }()

		subA, err := bus.Subscribe(ctx, "r1", "a")
		assert.NoError(t, err)
		subB, err := bus.Subscribe(ctx, "r1", "b")
		assert.NoError(t, err)
		other, err := bus.Subscribe(ctx, "r2", "c")
		assert.NoError(t, err)

		applied := types.OperationApplied{
			Operation: types.NewInsert(0, "a"),
			Version:   1,
			Content:   "a",
			AuthorID:  "alice",
		}
		assert.NoError(t, bus.Publish(ctx, "r1", types.OperationAppliedEvent, applied))

		for _, sub := range []*pubsub.Subscription{subA, subB} {
			event := receive(t, sub)
			assert.Equal(t, types.OperationAppliedEvent, event.Type)
			assert.Equal(t, "r1", event.RoomID)
			assert.Equal(t, "i1", event.Instance)

			var decoded types.OperationApplied
			assert.NoError(t, pubsub.DecodePayload(event, &decoded))
			assert.Equal(t, int64(1), decoded.Version)
			assert.Equal(t, "alice", decoded.AuthorID)
		}

		select {
		case <-other.Events():
			t.Fatal("subscriber of another room should not receive the event")
		default:
		}
	})

	t.Run("unsubscribe closes the subscription test", func(t *testing.T) {
		bus := pubsub.NewMemory("i1")
		defer func() { assert.NoError(t, bus.Close()) }()

		sub, err := bus.Subscribe(ctx, "r1", "a")
		assert.NoError(t, err)
		bus.Unsubscribe(ctx, "r1", sub)

		_, ok := <-sub.Events()
		assert.False(t, ok)
		assert.False(t, sub.Publish(types.RoomEvent{}))
		assert.NoError(t, bus.Publish(ctx, "r1", types.UserLeftEvent, types.MembershipChanged{}))
	})

	t.Run("closed bus test", func(t *testing.T) {
		bus := pubsub.NewMemory("i1")
		sub, err := bus.Subscribe(ctx, "r1", "a")
		assert.NoError(t, err)
		assert.NoError(t, bus.Check(ctx))

		assert.NoError(t, bus.Close())
		assert.NoError(t, bus.Close())

		_, ok := <-sub.Events()
		assert.False(t, ok)
		assert.ErrorIs(t, bus.Publish(ctx, "r1", types.UserJoinedEvent, nil), pubsub.ErrBusClosed)
		assert.ErrorIs(t, bus.Check(ctx), pubsub.ErrBusClosed)
		_, err = bus.Subscribe(ctx, "r1", "a")
		assert.ErrorIs(t, err, pubsub.ErrBusClosed)
	})

	t.Run("slow subscriber does not block others test", func(t *testing.T) {
		bus := pubsub.NewMemory("i1")
		defer func() { assert.NoError(t, bus.Close()) }()

		slow, err := bus.Subscribe(ctx, "r1", "slow")
		assert.NoError(t, err)
		fast, err := bus.Subscribe(ctx, "r1", "fast")
		assert.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 70; i++ {
				receive(t, fast)
			}
		}()

		for i := 0; i < 70; i++ {
			assert.NoError(t, bus.Publish(ctx, "r1", types.UserJoinedEvent, types.MembershipChanged{EditorID: "e"}))
		}
		<-done

		assert.Len(t, slow.Events(), cap(slow.Events()))
	})
}
