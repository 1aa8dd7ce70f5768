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

package ot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/pkg/ot"
)

func TestTransform(t *testing.T) {
	t.Run("insert against insert test", func(t *testing.T) {
		before := types.NewInsert(2, "xy")
		after := types.NewInsert(8, "z")

		assert.Equal(t, 2, ot.Transform(types.NewInsert(2, "a"), after).Position)
		assert.Equal(t, 10, ot.Transform(after, before).Position)

		// the committed insert keeps its place on a tie
		assert.Equal(t, 4, ot.Transform(types.NewInsert(2, "a"), before).Position)
	})

	t.Run("insert against delete test", func(t *testing.T) {
		del := types.NewDelete(3, 4)

		assert.Equal(t, 1, ot.Transform(types.NewInsert(1, "a"), del).Position)
		assert.Equal(t, 3, ot.Transform(types.NewInsert(3, "a"), del).Position)
		assert.Equal(t, 3, ot.Transform(types.NewInsert(5, "a"), del).Position)
		assert.Equal(t, 3, ot.Transform(types.NewInsert(7, "a"), del).Position)
		assert.Equal(t, 6, ot.Transform(types.NewInsert(10, "a"), del).Position)
	})

	t.Run("delete against insert test", func(t *testing.T) {
		ins := types.NewInsert(4, "abc")

		assert.Equal(t, 2, ot.Transform(types.NewDelete(2, 1), ins).Position)
		assert.Equal(t, 7, ot.Transform(types.NewDelete(4, 1), ins).Position)
		assert.Equal(t, 9, ot.Transform(types.NewDelete(6, 1), ins).Position)
	})

	t.Run("delete against disjoint delete test", func(t *testing.T) {
		committed := types.NewDelete(5, 2)

		before := ot.Transform(types.NewDelete(1, 3), committed)
		assert.Equal(t, 1, before.Position)
		assert.Equal(t, 3, before.Length)

		after := ot.Transform(types.NewDelete(8, 2), committed)
		assert.Equal(t, 6, after.Position)
		assert.Equal(t, 2, after.Length)

		adjacent := ot.Transform(types.NewDelete(7, 1), committed)
		assert.Equal(t, 5, adjacent.Position)
		assert.Equal(t, 1, adjacent.Length)
	})

	t.Run("overlapping delete test", func(t *testing.T) {
		content := "abcdef"
		first := types.NewDelete(1, 3)
		second := types.NewDelete(2, 3)

		content = ot.Apply(content, first)
		assert.Equal(t, "aef", content)

		second = ot.Transform(second, first)
		assert.Equal(t, 1, second.Position)
		assert.Equal(t, 1, second.Length)
		assert.Equal(t, "af", ot.Apply(content, second))
	})

	t.Run("delete covering a committed delete test", func(t *testing.T) {
		content := "abcdef"
		committed := types.NewDelete(2, 1)
		outer := types.NewDelete(1, 4)

		content = ot.Apply(content, committed)
		outer = ot.Transform(outer, committed)
		assert.Equal(t, 1, outer.Position)
		assert.Equal(t, 3, outer.Length)
		assert.Equal(t, "af", ot.Apply(content, outer))
	})

	t.Run("fully covered delete becomes no-op test", func(t *testing.T) {
		inner := ot.Transform(types.NewDelete(2, 2), types.NewDelete(1, 4))
		assert.True(t, inner.IsNoop())
		assert.Equal(t, "ab", ot.Apply("ab", inner))

		same := ot.Transform(types.NewDelete(1, 3), types.NewDelete(1, 3))
		assert.True(t, same.IsNoop())
	})

	t.Run("transform does not modify arguments test", func(t *testing.T) {
		op := types.NewInsert(5, "a")
		committed := types.NewInsert(0, "bb")

		transformed := ot.Transform(op, committed)
		assert.Equal(t, 5, op.Position)
		assert.Equal(t, 0, committed.Position)
		assert.Equal(t, 7, transformed.Position)
		assert.Equal(t, op.ID, transformed.ID)
	})

	t.Run("fold in version order test", func(t *testing.T) {
		op := types.NewInsert(3, "!")
		committed := []types.Operation{
			types.NewInsert(0, "ab"),
			types.NewDelete(0, 1),
		}

		assert.Equal(t, 4, ot.TransformAll(op, committed).Position)
		assert.Equal(t, op, ot.TransformAll(op, nil))
	})

	t.Run("scenario test", func(t *testing.T) {
		hello := types.NewInsert(0, "hello")
		world := types.NewInsert(0, "world")

		content := ot.Apply("", hello)
		world = ot.Transform(world, hello)
		assert.Equal(t, 5, world.Position)
		assert.Equal(t, "helloworld", ot.Apply(content, world))
	})
}

func TestConvergence(t *testing.T) {
	converge := func(t *testing.T, base string, x, y types.Operation) {
		xy := ot.Apply(ot.Apply(base, x), ot.Transform(y, x))
		yx := ot.Apply(ot.Apply(base, y), ot.Transform(x, y))
		assert.Equal(t, xy, yx, "%s / %s on %q", x, y, base)
	}

	t.Run("inserts at different positions test", func(t *testing.T) {
		converge(t, "0123456789", types.NewInsert(2, "ab"), types.NewInsert(7, "XYZ"))
		converge(t, "0123456789", types.NewInsert(0, "ab"), types.NewInsert(10, "XYZ"))
	})

	t.Run("insert and delete test", func(t *testing.T) {
		converge(t, "0123456789", types.NewInsert(1, "ab"), types.NewDelete(4, 3))
		converge(t, "0123456789", types.NewInsert(9, "ab"), types.NewDelete(2, 3))
	})

	t.Run("deletes test", func(t *testing.T) {
		converge(t, "0123456789", types.NewDelete(1, 2), types.NewDelete(6, 3))
		converge(t, "0123456789", types.NewDelete(1, 4), types.NewDelete(3, 4))
		converge(t, "0123456789", types.NewDelete(0, 10), types.NewDelete(3, 2))
	})
}
