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
	"sync"
	"sync/atomic"
	"time"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/pkg/ot"
)

// DocumentState is the current content and version of a room.
type DocumentState struct {
	Content      string
	Version      int64
	LastModified time.Time
}

// Room holds the state and the log of one room. Commit mutates a room and
// must only be called by the owner of the room's critical section; every
// other method returns a copy and is safe to call from anywhere.
type Room struct {
	id string

	mu    sync.RWMutex
	state DocumentState
	log   *Log

	// reset is set when the room was re-initialized after an eviction and is
	// cleared by the first commit that reports it.
	reset bool

	// lastActivity is the unix nano time of the last commit or join.
	lastActivity atomic.Int64
}

func newRoom(id string, content string, logCapacity int, now time.Time) *Room {
	r := &Room{
		id:    id,
		state: DocumentState{Content: content, LastModified: now},
		log:   NewLog(logCapacity),
	}
	r.lastActivity.Store(now.UnixNano())
	return r
}

// ID returns the id of this room.
func (r *Room) ID() string {
	return r.id
}

// State returns a copy of the current state of this room.
func (r *Room) State() DocumentState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state
}

// Snapshot returns the current content and version of this room.
func (r *Room) Snapshot() types.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return types.Snapshot{
		RoomID:       r.id,
		Content:      r.state.Content,
		Version:      r.state.Version,
		LastModified: r.state.LastModified,
	}
}

// Concurrent returns the logged operations concurrent to op.
func (r *Room) Concurrent(op types.Operation, window time.Duration) []types.Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.log.Concurrent(op, window)
}

// Commit applies an already transformed op, assigns it the next version and
// appends it to the log. It returns the committed operation.
func (r *Room) Commit(op types.Operation, now time.Time) types.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()

	op = ot.Clamp(op, len([]rune(r.state.Content)))
	r.state.Content = ot.Apply(r.state.Content, op)
	r.state.Version++
	r.state.LastModified = now

	op.Version = r.state.Version
	r.log.Append(op)
	r.lastActivity.Store(now.UnixNano())
	return op
}

// Since returns the committed operations after the given version. See
// Log.Since.
func (r *Room) Since(version int64) ([]types.Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.log.Since(version)
}

// Recent returns at most limit of the newest committed operations.
func (r *Room) Recent(limit int) []types.Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.log.Recent(limit)
}

// LogLen returns the number of operations in the log of this room.
func (r *Room) LogLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.log.Len()
}

// Touch records activity on this room without committing.
func (r *Room) Touch(now time.Time) {
	r.lastActivity.Store(now.UnixNano())
}

// LastActivity returns the time of the last commit or join.
func (r *Room) LastActivity() time.Time {
	return time.Unix(0, r.lastActivity.Load())
}

// TakeReset reports whether this room was re-initialized after an eviction
// and clears the flag.
func (r *Room) TakeReset() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reset := r.reset
	r.reset = false
	return reset
}
