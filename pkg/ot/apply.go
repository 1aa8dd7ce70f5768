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

package ot

import (
	"fmt"

	"github.com/codesync-team/codesync/api/types"
)

// Apply applies op to content and returns the new content. Positions and
// lengths out of the range of content are clamped instead of rejected, since
// an operation may race against a very recent commit.
func Apply(content string, op types.Operation) string {
	if op.IsNoop() && op.Type == types.Delete {
		return content
	}

	runes := []rune(content)
	pos := clamp(op.Position, 0, len(runes))

	switch op.Type {
	case types.Insert:
		if op.Content == "" {
			return content
		}
		inserted := []rune(op.Content)
		result := make([]rune, 0, len(runes)+len(inserted))
		result = append(result, runes[:pos]...)
		result = append(result, inserted...)
		result = append(result, runes[pos:]...)
		return string(result)
	case types.Delete:
		end := clamp(pos+op.Length, pos, len(runes))
		result := make([]rune, 0, len(runes)-(end-pos))
		result = append(result, runes[:pos]...)
		result = append(result, runes[end:]...)
		return string(result)
	}

	panic(fmt.Sprintf("apply: unsupported type %s", op.Type))
}

// ApplyAll applies ops to content in order.
func ApplyAll(content string, ops []types.Operation) string {
	for _, op := range ops {
		content = Apply(content, op)
	}
	return content
}

// Clamp returns op with its position clamped to a document of the given
// length and, for a Delete, its length clamped to what remains after the
// position. The clamped operation is what gets committed, so that replaying
// the log reproduces the document exactly.
func Clamp(op types.Operation, length int) types.Operation {
	op.Position = clamp(op.Position, 0, length)
	if op.Type == types.Delete {
		op.Length = clamp(op.Length, 0, length-op.Position)
	}
	return op
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
