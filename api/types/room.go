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

package types

import (
	"time"
)

// Snapshot is the full content of a room's document at a version. Joining
// participants receive a snapshot instead of replaying operations.
type Snapshot struct {
	RoomID       string    `json:"roomId" bson:"room_id"`
	Content      string    `json:"content" bson:"content"`
	Version      int64     `json:"version" bson:"version"`
	LastModified time.Time `json:"lastModified" bson:"last_modified"`
}

// CatchUp is the answer to a reconnecting participant that last saw
// LastKnownVersion.
type CatchUp struct {
	RoomID string `json:"roomId"`

	// Operations are the committed operations with a version greater than the
	// last known version, in version order.
	Operations []Operation `json:"operations"`

	// Version is the current version of the room.
	Version int64 `json:"version"`

	// Content is the current content of the room.
	Content string `json:"content"`

	// Reset is true when the participant cannot catch up by replaying
	// operations: the room was reset to a lower version, or the requested
	// operations fell out of the bounded log. The participant must replace its
	// buffer with Content.
	Reset bool `json:"reset"`
}

// CommitResult is what the coordinator hands off for broadcast after a
// commit.
type CommitResult struct {
	RoomID string `json:"roomId"`

	// Operation is the committed, transformed operation.
	Operation Operation `json:"operation"`

	// Version is the version assigned to Operation.
	Version int64 `json:"version"`

	// Content is the content of the room after Operation was applied.
	Content string `json:"content"`

	// Reset is true when the room had been evicted and was re-initialized by
	// this commit. Participants must resynchronize.
	Reset bool `json:"reset,omitempty"`

	// Concurrent is the number of concurrent operations the incoming
	// operation was transformed against.
	Concurrent int `json:"concurrent,omitempty"`
}

// RoomStats is a sample of the rooms owned by this process.
type RoomStats struct {
	Rooms          int     `json:"rooms"`
	Operations     int     `json:"operations"`
	AverageLogSize float64 `json:"averageLogSize"`
}
