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

// Package events defines the events that the synchronization core emits to
// external collaborators such as persistence, analytics and alerting.
package events

// CoreEventType represents the type of an event emitted by the core.
type CoreEventType string

const (
	// OperationCommittedEvent is an event indicating that an operation was
	// committed to a room and a new version was assigned.
	OperationCommittedEvent CoreEventType = "operation_committed"

	// RoomEvictedEvent is an event indicating that an idle room was evicted
	// and its state was reclaimed.
	RoomEvictedEvent CoreEventType = "room_evicted"

	// PipelineJobFailedEvent is an event indicating that a pipeline job
	// exhausted its retries and was moved to the failed set.
	PipelineJobFailedEvent CoreEventType = "pipeline_job_failed"
)

// String returns the string representation of the event type.
func (t CoreEventType) String() string {
	return string(t)
}
