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

package rooms

import (
	"time"

	"github.com/codesync-team/codesync/api/types"
)

// Log is the bounded, version-ordered history of the most recently committed
// operations of a room. It is a ring buffer: appending to a full log evicts
// the oldest operation.
type Log struct {
	ops   []types.Operation
	start int
	size  int
}

// NewLog creates a new Log that keeps at most capacity operations.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{ops: make([]types.Operation, capacity)}
}

// Cap returns the capacity of this log.
func (l *Log) Cap() int {
	return len(l.ops)
}

// Len returns the number of operations in this log.
func (l *Log) Len() int {
	return l.size
}

// at returns the i-th oldest operation.
func (l *Log) at(i int) types.Operation {
	return l.ops[(l.start+i)%len(l.ops)]
}

// Append appends a committed operation. The versions of appended operations
// must be strictly increasing.
func (l *Log) Append(op types.Operation) {
	if l.size < len(l.ops) {
		l.ops[(l.start+l.size)%len(l.ops)] = op
		l.size++
		return
	}

	l.ops[l.start] = op
	l.start = (l.start + 1) % len(l.ops)
}

// OldestVersion returns the version of the oldest operation in this log, or
// 0 if the log is empty.
func (l *Log) OldestVersion() int64 {
	if l.size == 0 {
		return 0
	}
	return l.at(0).Version
}

// Since returns the operations with a version greater than the given one in
// version order. It returns false if some of those operations were already
// evicted, i.e. the caller cannot catch up by replaying the log.
func (l *Log) Since(version int64) ([]types.Operation, bool) {
	if l.size == 0 {
		return nil, true
	}
	if version+1 < l.OldestVersion() {
		return nil, false
	}

	var ops []types.Operation
	for i := 0; i < l.size; i++ {
		if op := l.at(i); op.Version > version {
			ops = append(ops, op)
		}
	}
	return ops, true
}

// Concurrent returns the operations that are concurrent to op: those created
// by another author no earlier than window before op was created, and not
// yet seen by that author according to op.BaseVersion. The operations are in
// version order.
func (l *Log) Concurrent(op types.Operation, window time.Duration) []types.Operation {
	threshold := op.CreatedAt.Add(-window)

	var ops []types.Operation
	for i := 0; i < l.size; i++ {
		logged := l.at(i)
		if logged.AuthorID == op.AuthorID || logged.Version <= op.BaseVersion {
			continue
		}
		if logged.CreatedAt.Before(threshold) {
			continue
		}
		ops = append(ops, logged)
	}
	return ops
}

// Recent returns at most limit of the newest operations in version order.
// A non-positive limit returns the whole log.
func (l *Log) Recent(limit int) []types.Operation {
	if limit <= 0 || limit > l.size {
		limit = l.size
	}

	ops := make([]types.Operation, 0, limit)
	for i := l.size - limit; i < l.size; i++ {
		ops = append(ops, l.at(i))
	}
	return ops
}
