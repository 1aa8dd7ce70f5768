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

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/codesync-team/codesync/api/types"
)

// JobType represents the type of a Job. Every type has its own queue, worker
// lanes and retry policy.
type JobType string

const (
	// ApplyOperation commits one operation to a room.
	ApplyOperation JobType = "applyOperation"

	// RoomMembershipChanged records that an editor joined or left a room.
	RoomMembershipChanged JobType = "roomMembershipChanged"

	// Cleanup evicts idle rooms.
	Cleanup JobType = "cleanup"

	// CollectMetrics samples room and pipeline statistics.
	CollectMetrics JobType = "collectMetrics"
)

// JobTypes are all job types in the order they are reported.
var JobTypes = []JobType{ApplyOperation, RoomMembershipChanged, Cleanup, CollectMetrics}

// JobState represents where a job is in its lifecycle.
type JobState string

const (
	// StateCompleted is the state of a job whose handler succeeded.
	StateCompleted JobState = "completed"

	// StateFailed is the state of a job that exhausted its attempts.
	StateFailed JobState = "failed"
)

// Job is the unit of work of the pipeline. It is serialized as JSON into
// durable queues.
type Job struct {
	ID     string  `json:"id"`
	Type   JobType `json:"type"`
	RoomID string  `json:"roomId,omitempty"`

	// Payload is the type-specific body of the job.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Priority orders jobs of one type: higher first.
	Priority int `json:"priority"`

	// Attempts is the number of times the handler was invoked.
	Attempts int `json:"attempts"`

	EnqueuedAt time.Time `json:"enqueuedAt"`

	// Seq orders jobs of equal priority in a memory queue.
	Seq uint64 `json:"-"`

	// The fields below are set once the job is finished.
	State      JobState  `json:"state,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
}

// NewJob creates a new job of the given type with an encoded payload.
func NewJob(jobType JobType, roomID string, payload any, priority int) (Job, error) {
	job := Job{
		ID:         xid.New().String(),
		Type:       jobType,
		RoomID:     roomID,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}

	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Job{}, fmt.Errorf("marshal %s payload: %w", jobType, err)
		}
		job.Payload = encoded
	}

	return job, nil
}

// Decode decodes the payload of this job into v. A payload that cannot be
// decoded will never succeed, so the error is unrecoverable.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Unrecoverable(fmt.Errorf("unmarshal %s payload of job %s: %w", j.Type, j.ID, err))
	}
	return nil
}

// String returns a string representation of this job for logging.
func (j Job) String() string {
	return fmt.Sprintf("%s(%s,room=%s,attempts=%d)", j.Type, j.ID, j.RoomID, j.Attempts)
}

// ApplyOperationPayload is the payload of ApplyOperation.
type ApplyOperationPayload struct {
	RoomID       string          `json:"roomId"`
	EditorID     string          `json:"editorId"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Operation    types.Operation `json:"operation"`
}

// MembershipPayload is the payload of RoomMembershipChanged.
type MembershipPayload struct {
	RoomID       string `json:"roomId"`
	EditorID     string `json:"editorId"`
	ConnectionID string `json:"connectionId,omitempty"`
	Joined       bool   `json:"joined"`
}

// CleanupPayload is the payload of Cleanup.
type CleanupPayload struct {
	// IdleTimeout overrides the configured idle timeout of rooms.
	IdleTimeout string `json:"idleTimeout,omitempty"`
}

// unrecoverableError marks an error that retrying cannot fix.
type unrecoverableError struct {
	err error
}

func (e unrecoverableError) Error() string {
	return e.err.Error()
}

func (e unrecoverableError) Unwrap() error {
	return e.err
}

// Unrecoverable wraps err so that the pipeline fails the job without
// retrying it.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return unrecoverableError{err: err}
}

// IsUnrecoverable returns whether err was marked with Unrecoverable.
func IsUnrecoverable(err error) bool {
	var target unrecoverableError
	return errors.As(err, &target)
}
