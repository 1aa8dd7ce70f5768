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

// Transform rewrites op, which is not committed yet, as if the committed and
// concurrent op `applied` had been applied to the document first. The result
// is a new value; neither argument is modified.
//
// When both operations insert at the same position, the committed insert
// keeps its place and op is shifted after it.
func Transform(op, applied types.Operation) types.Operation {
	switch op.Type {
	case types.Insert:
		switch applied.Type {
		case types.Insert:
			return insertInsert(op, applied)
		case types.Delete:
			return insertDelete(op, applied)
		}
	case types.Delete:
		switch applied.Type {
		case types.Insert:
			return deleteInsert(op, applied)
		case types.Delete:
			return deleteDelete(op, applied)
		}
	}

	panic(fmt.Sprintf("transform: unsupported pair %s/%s", op.Type, applied.Type))
}

// TransformAll folds Transform over the given committed operations, which
// must be in increasing version order.
func TransformAll(op types.Operation, applied []types.Operation) types.Operation {
	for _, a := range applied {
		op = Transform(op, a)
	}
	return op
}

func insertInsert(op, applied types.Operation) types.Operation {
	if op.Position < applied.Position {
		return op
	}
	op.Position += applied.Length
	return op
}

func insertDelete(op, applied types.Operation) types.Operation {
	switch {
	case op.Position <= applied.Position:
	case op.Position > applied.End():
		op.Position -= applied.Length
	default:
		op.Position = applied.Position
	}
	return op
}

func deleteInsert(op, applied types.Operation) types.Operation {
	if op.Position < applied.Position {
		return op
	}
	op.Position += applied.Length
	return op
}

// deleteDelete drops the part of op's range that applied already removed.
// A fully covered delete becomes a zero-length delete that is still
// committed.
func deleteDelete(op, applied types.Operation) types.Operation {
	s1, e1 := op.Position, op.End()
	s2, e2 := applied.Position, applied.End()

	switch {
	case e1 <= s2:
		return op
	case s1 >= e2:
		op.Position -= applied.Length
		return op
	}

	overlap := min(e1, e2) - max(s1, s2)
	op.Position = min(s1, s2)
	op.Length = max(op.Length-overlap, 0)
	return op
}
