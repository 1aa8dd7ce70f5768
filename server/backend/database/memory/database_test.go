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

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/server/backend/database"
	"github.com/codesync-team/codesync/server/backend/database/memory"
)

func TestDB(t *testing.T) {
	ctx := context.Background()
	db, err := memory.New()
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, db.Close())
	}()

	t.Run("save and find snapshot test", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, db.SaveSnapshot(ctx, &types.Snapshot{
			RoomID:       "room-1",
			Content:      "hello",
			Version:      3,
			LastModified: now,
		}))

		snapshot, err := db.FindSnapshot(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, "hello", snapshot.Content)
		assert.Equal(t, int64(3), snapshot.Version)

		_, err = db.FindSnapshot(ctx, "room-2")
		assert.ErrorIs(t, err, database.ErrSnapshotNotFound)
	})

	t.Run("stale snapshot is ignored test", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, db.SaveSnapshot(ctx, &types.Snapshot{
			RoomID: "room-3", Content: "newer", Version: 2, LastModified: now,
		}))
		require.NoError(t, db.SaveSnapshot(ctx, &types.Snapshot{
			RoomID: "room-3", Content: "older", Version: 1, LastModified: now.Add(-time.Second),
		}))

		snapshot, err := db.FindSnapshot(ctx, "room-3")
		require.NoError(t, err)
		assert.Equal(t, "newer", snapshot.Content)

		// a reset room restarts its version but is still newer
		require.NoError(t, db.SaveSnapshot(ctx, &types.Snapshot{
			RoomID: "room-3", Content: "reset", Version: 1, LastModified: now.Add(time.Second),
		}))
		snapshot, err = db.FindSnapshot(ctx, "room-3")
		require.NoError(t, err)
		assert.Equal(t, "reset", snapshot.Content)
	})

	t.Run("delete snapshot test", func(t *testing.T) {
		require.NoError(t, db.SaveSnapshot(ctx, &types.Snapshot{
			RoomID: "room-4", Content: "bye", LastModified: time.Now(),
		}))
		require.NoError(t, db.DeleteSnapshot(ctx, "room-4"))

		_, err := db.FindSnapshot(ctx, "room-4")
		assert.ErrorIs(t, err, database.ErrSnapshotNotFound)
		assert.NoError(t, db.DeleteSnapshot(ctx, "room-4"))
	})
}
