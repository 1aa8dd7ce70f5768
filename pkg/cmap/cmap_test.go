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

package cmap_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codesync-team/codesync/pkg/cmap"
)

func TestMap(t *testing.T) {
	t.Run("set and get test", func(t *testing.T) {
		m := cmap.New[string, int]()

		m.Set("a", 1)
		v, exists := m.Get("a")
		assert.True(t, exists)
		assert.Equal(t, 1, v)

		v, exists = m.Get("b")
		assert.False(t, exists)
		assert.Equal(t, 0, v)
	})

	t.Run("upsert test", func(t *testing.T) {
		m := cmap.New[string, int]()
		inc := func(val int, exists bool) int {
			if exists {
				return val + 1
			}
			return 1
		}

		assert.Equal(t, 1, m.Upsert("a", inc))
		assert.Equal(t, 2, m.Upsert("a", inc))
	})

	t.Run("get or insert test", func(t *testing.T) {
		m := cmap.New[string, *int]()
		calls := 0
		create := func() *int {
			calls++
			v := 7
			return &v
		}

		first, created := m.GetOrInsert("a", create)
		assert.True(t, created)
		second, created := m.GetOrInsert("a", create)
		assert.False(t, created)
		assert.Same(t, first, second)
		assert.Equal(t, 1, calls)
	})

	t.Run("delete test", func(t *testing.T) {
		m := cmap.New[string, int]()

		m.Set("a", 1)
		assert.False(t, m.Delete("a", func(val int, exists bool) bool {
			return val > 1
		}))
		assert.True(t, m.Has("a"))

		assert.True(t, m.Delete("a", func(val int, exists bool) bool {
			assert.Equal(t, 1, val)
			return exists
		}))
		assert.False(t, m.Has("a"))

		m.Set("b", 2)
		v, ok := m.Remove("b")
		assert.True(t, ok)
		assert.Equal(t, 2, v)
		_, ok = m.Remove("b")
		assert.False(t, ok)
	})

	t.Run("keys values and range test", func(t *testing.T) {
		m := cmap.New[string, int]()
		for i := 0; i < 100; i++ {
			m.Set(fmt.Sprintf("room-%d", i), i)
		}

		assert.Equal(t, 100, m.Len())
		assert.Len(t, m.Keys(), 100)
		assert.Len(t, m.Values(), 100)

		visited := 0
		m.Range(func(_ string, _ int) bool {
			visited++
			return visited < 10
		})
		assert.Equal(t, 10, visited)
	})

	t.Run("concurrent upsert test", func(t *testing.T) {
		m := cmap.New[string, int]()

		var wg sync.WaitGroup
		for i := 0; i < 1000; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				m.Upsert(fmt.Sprintf("room-%d", i%10), func(val int, _ bool) int {
					return val + 1
				})
			}(i)
		}
		wg.Wait()

		total := 0
		for _, v := range m.Values() {
			total += v
		}
		assert.Equal(t, 10, m.Len())
		assert.Equal(t, 1000, total)
	})
}
