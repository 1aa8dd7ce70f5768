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

// Package ot implements the operational transformation engine of CodeSync:
// the minimal differ that turns whole-buffer edits into operations, the
// pairwise transform that rebases an operation onto a concurrent one, and the
// applier that splices operations into a document. Every offset is a code
// point offset.
package ot

import (
	"github.com/codesync-team/codesync/api/types"
)

// Diff converts a whole-buffer replacement of oldText by newText into at most
// two operations: a Delete of the differing middle of oldText followed by an
// Insert of the differing middle of newText. Identical texts produce no
// operations. The returned operations have neither an author nor a version.
func Diff(oldText, newText string) []types.Operation {
	if oldText == newText {
		return nil
	}

	o, n := []rune(oldText), []rune(newText)
	prefix := commonPrefix(o, n)
	suffix := commonSuffix(o[prefix:], n[prefix:])

	var ops []types.Operation
	if removed := len(o) - prefix - suffix; removed > 0 {
		ops = append(ops, types.NewDelete(prefix, removed))
	}
	if inserted := n[prefix : len(n)-suffix]; len(inserted) > 0 {
		ops = append(ops, types.NewInsert(prefix, string(inserted)))
	}
	return ops
}

func commonPrefix(a, b []rune) int {
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	return i
}

// commonSuffix is measured on the tails that remain after the common prefix,
// so prefix and suffix never overlap in either text.
func commonSuffix(a, b []rune) int {
	i := 0
	for i < len(a) && i < len(b) && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}
