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

func TestApply(t *testing.T) {
	t.Run("insert test", func(t *testing.T) {
		assert.Equal(t, "hello", ot.Apply("", types.NewInsert(0, "hello")))
		assert.Equal(t, "heyllo", ot.Apply("hello", types.NewInsert(2, "y")))
		assert.Equal(t, "hello!", ot.Apply("hello", types.NewInsert(5, "!")))
	})

	t.Run("delete test", func(t *testing.T) {
		assert.Equal(t, "hlo", ot.Apply("hello", types.NewDelete(1, 2)))
		assert.Equal(t, "", ot.Apply("hello", types.NewDelete(0, 5)))
	})

	t.Run("out of range positions are clamped test", func(t *testing.T) {
		assert.Equal(t, "hello!", ot.Apply("hello", types.NewInsert(42, "!")))
		assert.Equal(t, "!hello", ot.Apply("hello", types.NewInsert(-3, "!")))
		assert.Equal(t, "he", ot.Apply("hello", types.NewDelete(2, 100)))
		assert.Equal(t, "hello", ot.Apply("hello", types.NewDelete(9, 2)))
	})

	t.Run("code points test", func(t *testing.T) {
		assert.Equal(t, "👋🙂", ot.Apply("👋🌍🙂", types.NewDelete(1, 1)))
		assert.Equal(t, "한글a", ot.Apply("한a", types.NewInsert(1, "글")))
	})

	t.Run("no-op test", func(t *testing.T) {
		assert.Equal(t, "hello", ot.Apply("hello", types.NewDelete(1, 0)))
		assert.Equal(t, "hello", ot.Apply("hello", types.NewInsert(1, "")))
		assert.Equal(t, "hello", ot.ApplyAll("hello", nil))
	})

	t.Run("clamp test", func(t *testing.T) {
		op := ot.Clamp(types.NewDelete(3, 10), 5)
		assert.Equal(t, 3, op.Position)
		assert.Equal(t, 2, op.Length)

		op = ot.Clamp(types.NewInsert(9, "x"), 5)
		assert.Equal(t, 5, op.Position)
		assert.Equal(t, 1, op.Length)

		op = ot.Clamp(types.NewDelete(7, 1), 5)
		assert.Equal(t, 5, op.Position)
		assert.True(t, op.IsNoop())
	})
}
