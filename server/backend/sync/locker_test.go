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

package sync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesync-team/codesync/server/backend/sync"
)

func TestLocker(t *testing.T) {
	t.Run("locker test", func(t *testing.T) {
		manager := sync.NewLockerManager()
		locker := manager.Locker(sync.RoomKey("room-1"))

		require.NoError(t, locker.Lock(context.Background()))
		assert.ErrorIs(t, locker.TryLock(), sync.ErrAlreadyLocked)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, manager.Locker(sync.RoomKey("room-1")).Lock(ctx), context.DeadlineExceeded)

		assert.NoError(t, manager.Locker(sync.RoomKey("room-2")).TryLock())
		require.NoError(t, locker.Unlock())
		assert.NoError(t, locker.TryLock())
	})

	t.Run("key test", func(t *testing.T) {
		assert.Equal(t, "room/abc", sync.RoomKey("abc").String())
		assert.Equal(t, "cleanup", sync.NewKey("cleanup").String())
	})
}
