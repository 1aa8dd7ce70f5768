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
	"encoding/json"
	"time"
)

// RoomEventType represents the type of an event delivered to the
// participants of a room through the distribution bus.
type RoomEventType string

const (
	// OperationAppliedEvent is an event indicating that an operation was
	// committed to the room.
	OperationAppliedEvent RoomEventType = "operation_applied"

	// RoomResetEvent is an event indicating that the room was re-initialized
	// and participants must resynchronize with a full snapshot.
	RoomResetEvent RoomEventType = "room_reset"

	// UserJoinedEvent is an event that occurs when an editor joins the room.
	UserJoinedEvent RoomEventType = "user_joined"

	// UserLeftEvent is an event that occurs when an editor leaves the room.
	UserLeftEvent RoomEventType = "user_left"
)

// RoomEvent is the envelope published on the distribution bus.
type RoomEvent struct {
	// Type is the type of the event.
	Type RoomEventType `json:"event"`

	// RoomID is the room that the event occurred in.
	RoomID string `json:"roomId"`

	// Instance is the ID of the server process that published the event.
	Instance string `json:"instance"`

	// Payload is the event-specific body.
	Payload json.RawMessage `json:"payload"`

	// PublishedAt is the time the event was published.
	PublishedAt time.Time `json:"publishedAt"`
}

// OperationApplied is the payload of OperationAppliedEvent.
type OperationApplied struct {
	Operation Operation `json:"operation"`
	Version   int64     `json:"version"`
	Content   string    `json:"content"`

	// AuthorID is the editor the operation originated from.
	AuthorID string `json:"authorId"`

	// ConnectionID is the connection the operation originated from. Best
	// effort: it lets instances skip echoing a commit to its origin.
	ConnectionID string `json:"connectionId,omitempty"`

	// Reset mirrors CommitResult.Reset.
	Reset bool `json:"reset,omitempty"`
}

// MembershipChanged is the payload of UserJoinedEvent and UserLeftEvent.
type MembershipChanged struct {
	EditorID     string   `json:"editorId"`
	ConnectionID string   `json:"connectionId,omitempty"`
	Editors      []string `json:"editors"`
}
