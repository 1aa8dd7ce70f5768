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

// Package edits provides the entry points of the synchronization core used by
// the transport: submitting edits, joining, leaving and reconnecting.
package edits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codesync-team/codesync/api/types"
	pkgerrors "github.com/codesync-team/codesync/pkg/errors"
	"github.com/codesync-team/codesync/pkg/ot"
	"github.com/codesync-team/codesync/server/backend"
	"github.com/codesync-team/codesync/server/backend/pipeline"
)

// SubmitOperations validates the given operations of an editor and enqueues
// them for commit in order. Nothing is enqueued if one of them is malformed.
func SubmitOperations(
	ctx context.Context,
	be *backend.Backend,
	roomID string,
	editorID string,
	connectionID string,
	ops []types.Operation,
) ([]pipeline.Job, error) {
	if err := validateIDs(roomID, editorID); err != nil {
		return nil, err
	}

	now := time.Now()
	normalized := make([]types.Operation, 0, len(ops))
	for _, op := range ops {
		op = op.Normalize(now).WithAuthor(editorID)
		op.Version = 0
		if err := op.Validate(); err != nil {
			be.Metrics.AddInvalidOperation()
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeInvalidArgument)
		}
		normalized = append(normalized, op)
	}

	jobs := make([]pipeline.Job, 0, len(normalized))
	for _, op := range normalized {
		job, err := be.Pipeline.Enqueue(ctx, pipeline.ApplyOperation, roomID, pipeline.ApplyOperationPayload{
			RoomID:       roomID,
			EditorID:     editorID,
			ConnectionID: connectionID,
			Operation:    op,
		}, 0)
		if err != nil {
			return jobs, enqueueError(err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// SubmitContent turns a whole-buffer edit into operations against base, the
// document as the editor last had it, and enqueues them. The caller tracks
// base per connection: the content it last submitted or received and the
// room version that content reflects.
func SubmitContent(
	ctx context.Context,
	be *backend.Backend,
	roomID string,
	editorID string,
	connectionID string,
	base types.Snapshot,
	content string,
) ([]pipeline.Job, error) {
	if err := validateIDs(roomID, editorID); err != nil {
		return nil, err
	}

	ops := ot.Diff(base.Content, content)
	if len(ops) == 0 {
		return nil, nil
	}
	for i := range ops {
		ops[i].BaseVersion = base.Version
	}
	return SubmitOperations(ctx, be, roomID, editorID, connectionID, ops)
}

// Join returns the snapshot of the room for a joining editor and records the
// membership change.
func Join(
	ctx context.Context,
	be *backend.Backend,
	roomID string,
	editorID string,
	connectionID string,
) (types.Snapshot, error) {
	if err := validateIDs(roomID, editorID); err != nil {
		return types.Snapshot{}, err
	}

	snapshot, err := be.Coordinator.Join(ctx, roomID)
	if err != nil {
		return types.Snapshot{}, err
	}

	if _, err := be.Pipeline.Enqueue(ctx, pipeline.RoomMembershipChanged, roomID, pipeline.MembershipPayload{
		RoomID:       roomID,
		EditorID:     editorID,
		ConnectionID: connectionID,
		Joined:       true,
	}, 0); err != nil {
		return types.Snapshot{}, enqueueError(err)
	}

	return snapshot, nil
}

// Leave records that the given connection left the room.
func Leave(
	ctx context.Context,
	be *backend.Backend,
	roomID string,
	editorID string,
	connectionID string,
) error {
	if err := validateIDs(roomID, editorID); err != nil {
		return err
	}

	if _, err := be.Pipeline.Enqueue(ctx, pipeline.RoomMembershipChanged, roomID, pipeline.MembershipPayload{
		RoomID:       roomID,
		EditorID:     editorID,
		ConnectionID: connectionID,
	}, 0); err != nil {
		return enqueueError(err)
	}

	return nil
}

// Reconnect returns the operations a participant that last saw
// lastKnownVersion missed, or tells it to reset.
func Reconnect(
	ctx context.Context,
	be *backend.Backend,
	roomID string,
	lastKnownVersion int64,
) (types.CatchUp, error) {
	return be.Coordinator.Reconnect(ctx, roomID, lastKnownVersion)
}

func validateIDs(roomID, editorID string) error {
	if roomID == "" {
		return pkgerrors.Wrap(types.ErrInvalidRoomID, pkgerrors.ErrCodeInvalidArgument)
	}
	if editorID == "" {
		return pkgerrors.Wrap(types.ErrInvalidEditorID, pkgerrors.ErrCodeInvalidArgument)
	}
	return nil
}

// enqueueError maps a pipeline error to the status reported to producers.
func enqueueError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrQueueFull):
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeResourceExhausted)
	case errors.Is(err, pipeline.ErrPipelineClosed):
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeFailedPrecondition)
	default:
		return fmt.Errorf("enqueue: %w", err)
	}
}
