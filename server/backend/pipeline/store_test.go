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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesync-team/codesync/server/backend/pipeline"
)

func TestStore(t *testing.T) {
	t.Run("retention test", func(t *testing.T) {
		conf := pipeline.DefaultConfig()
		store, err := pipeline.NewStore(conf)
		require.NoError(t, err)

		var jobs []pipeline.Job
		for i := 0; i < conf.Cleanup.KeepCompleted+2; i++ {
			job, err := pipeline.NewJob(pipeline.Cleanup, "", nil, 0)
			require.NoError(t, err)
			require.NoError(t, store.Complete(job))
			jobs = append(jobs, job)
		}

		count, err := store.Count(pipeline.Cleanup, pipeline.StateCompleted)
		require.NoError(t, err)
		assert.Equal(t, conf.Cleanup.KeepCompleted, count)

		_, found, err := store.FindJob(jobs[0].ID)
		require.NoError(t, err)
		assert.False(t, found)

		last := jobs[len(jobs)-1]
		kept, found, err := store.FindJob(last.ID)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, pipeline.StateCompleted, kept.State)

		listed, err := store.List(pipeline.Cleanup, pipeline.StateCompleted)
		require.NoError(t, err)
		assert.Equal(t, last.ID, listed[0].ID)
	})

	t.Run("states are kept apart test", func(t *testing.T) {
		store, err := pipeline.NewStore(pipeline.DefaultConfig())
		require.NoError(t, err)

		job, err := pipeline.NewJob(pipeline.ApplyOperation, "room-1", nil, 10)
		require.NoError(t, err)
		require.NoError(t, store.Fail(job))

		completed, err := store.Count(pipeline.ApplyOperation, pipeline.StateCompleted)
		require.NoError(t, err)
		assert.Equal(t, 0, completed)

		failed, err := store.List(pipeline.ApplyOperation, pipeline.StateFailed)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "room-1", failed[0].RoomID)
	})
}
