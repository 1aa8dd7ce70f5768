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

package background_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codesync-team/codesync/server/backend/background"
	"github.com/codesync-team/codesync/server/logging"
	"github.com/codesync-team/codesync/server/profiling/prometheus"
)

func TestBackground(t *testing.T) {
	t.Run("attach and close test", func(t *testing.T) {
		metrics, err := prometheus.NewMetrics()
		assert.NoError(t, err)
		bg := background.New(metrics)

		started := make(chan struct{})
		stopped := make(chan struct{})
		assert.True(t, bg.AttachGoroutine(func(ctx context.Context) {
			assert.NotNil(t, logging.From(ctx))
			close(started)
			<-ctx.Done()
			close(stopped)
		}, "test"))

		<-started
		assert.Equal(t, 1, bg.Len())

		bg.Close()
		select {
		case <-stopped:
		case <-time.After(3 * time.Second):
			t.Fatal("goroutine should have stopped")
		}
		assert.Equal(t, 0, bg.Len())
	})

	t.Run("attach after close test", func(t *testing.T) {
		bg := background.New(nil)
		bg.Close()
		bg.Close()

		assert.False(t, bg.AttachGoroutine(func(ctx context.Context) {
			t.Error("should not run")
		}, "test"))
	})
}
