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

package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/api/types/events"
	pkgerrors "github.com/codesync-team/codesync/pkg/errors"
	"github.com/codesync-team/codesync/server/backend/messagebroker"
	"github.com/codesync-team/codesync/server/backend/pipeline"
	"github.com/codesync-team/codesync/server/backend/presence"
	"github.com/codesync-team/codesync/server/logging"
)

// applyOperation commits the operation of the given job and broadcasts the
// result. Once the operation is committed the job never fails, otherwise a
// retry would commit it twice.
func (b *Backend) applyOperation(ctx context.Context, job pipeline.Job) error {
	var payload pipeline.ApplyOperationPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	op := payload.Operation
	if payload.EditorID != "" {
		op = op.WithAuthor(payload.EditorID)
	}

	result, err := b.Coordinator.Commit(ctx, payload.RoomID, op)
	if err != nil {
		if pkgerrors.IsClientError(err) {
			return pipeline.Unrecoverable(err)
		}
		return err
	}

	b.publish(ctx, payload.RoomID, types.OperationAppliedEvent, types.OperationApplied{
		Operation:    result.Operation,
		Version:      result.Version,
		Content:      result.Content,
		AuthorID:     result.Operation.AuthorID,
		ConnectionID: payload.ConnectionID,
		Reset:        result.Reset,
	})

	b.persist(result)
	return nil
}

// persist saves the snapshot of the given result and reports the commit to
// the message broker without blocking the room.
func (b *Backend) persist(result types.CommitResult) {
	snapshot := types.Snapshot{
		RoomID:       result.RoomID,
		Content:      result.Content,
		Version:      result.Version,
		LastModified: result.Operation.CreatedAt,
	}
	if lastModified := time.Now(); lastModified.After(snapshot.LastModified) {
		snapshot.LastModified = lastModified
	}

	b.Background.AttachGoroutine(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, b.Config.ParseSnapshotSaveTimeout())
		defer cancel()

		if err := b.DB.SaveSnapshot(ctx, &snapshot); err != nil {
			logging.From(ctx).Warnf("save snapshot of %s@%d: %v", snapshot.RoomID, snapshot.Version, err)
		}

		op := result.Operation
		if err := b.MsgBrokers.Operations().Produce(ctx, messagebroker.OperationCommittedMessage{
			EventType:     events.OperationCommittedEvent,
			RoomID:        result.RoomID,
			OperationID:   op.ID,
			OperationType: string(op.Type),
			Position:      op.Position,
			Length:        op.Length,
			AuthorID:      op.AuthorID,
			Version:       result.Version,
			Timestamp:     time.Now(),
		}); err != nil {
			logging.From(ctx).Warnf("produce %s: %v", events.OperationCommittedEvent, err)
		}
	}, "backend.persist")
}

// changeMembership records a participant joining or leaving a room and
// broadcasts the new participant list.
func (b *Backend) changeMembership(ctx context.Context, job pipeline.Job) error {
	var payload pipeline.MembershipPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	if payload.RoomID == "" || payload.ConnectionID == "" {
		return pipeline.Unrecoverable(fmt.Errorf("membership of %q: %w", payload.RoomID, types.ErrInvalidRoomID))
	}

	eventType := types.UserLeftEvent
	if payload.Joined {
		eventType = types.UserJoinedEvent
		if err := b.Presence.Join(ctx, payload.RoomID, presenceEditor(payload)); err != nil {
			return err
		}
	} else if err := b.Presence.Leave(ctx, payload.RoomID, payload.ConnectionID); err != nil {
		return err
	}

	editors, err := b.Presence.Editors(ctx, payload.RoomID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(editors))
	for _, editor := range editors {
		ids = append(ids, editor.EditorID)
	}

	b.publish(ctx, payload.RoomID, eventType, types.MembershipChanged{
		EditorID:     payload.EditorID,
		ConnectionID: payload.ConnectionID,
		Editors:      ids,
	})
	return nil
}

// cleanup evicts idle rooms. Each evicted room is saved, its participants are
// told to resynchronize and the eviction is reported to the message broker.
func (b *Backend) cleanup(ctx context.Context, job pipeline.Job) error {
	var payload pipeline.CleanupPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	idleTimeout := b.Housekeeping.RoomIdleTimeout()
	if payload.IdleTimeout != "" {
		parsed, err := time.ParseDuration(payload.IdleTimeout)
		if err != nil {
			return pipeline.Unrecoverable(fmt.Errorf("parse idle timeout: %w", err))
		}
		idleTimeout = parsed
	}

	evicted, err := b.Coordinator.EvictIdle(ctx, idleTimeout)
	if err != nil {
		return err
	}

	var errs []error
	for _, snapshot := range evicted {
		snapshot := snapshot
		if err := b.DB.SaveSnapshot(ctx, &snapshot); err != nil {
			errs = append(errs, fmt.Errorf("save snapshot of %s: %w", snapshot.RoomID, err))
		}
		if err := b.Presence.Clear(ctx, snapshot.RoomID); err != nil {
			errs = append(errs, fmt.Errorf("clear presence of %s: %w", snapshot.RoomID, err))
		}

		b.publish(ctx, snapshot.RoomID, types.RoomResetEvent, types.Snapshot{
			RoomID:       snapshot.RoomID,
			Content:      snapshot.Content,
			LastModified: snapshot.LastModified,
		})

		if err := b.MsgBrokers.Rooms().Produce(ctx, messagebroker.RoomEvictedMessage{
			EventType:    events.RoomEvictedEvent,
			RoomID:       snapshot.RoomID,
			Version:      snapshot.Version,
			LastActivity: snapshot.LastModified,
			Timestamp:    time.Now(),
		}); err != nil {
			logging.From(ctx).Warnf("produce %s: %v", events.RoomEvictedEvent, err)
		}
	}

	if len(evicted) > 0 {
		logging.From(ctx).Infof("HSKP: evicted %d rooms idle for %s", len(evicted), idleTimeout)
	}

	// Evictions already happened, so a retry would not save them again.
	if len(errs) > 0 {
		return pipeline.Unrecoverable(errors.Join(errs...))
	}
	return nil
}

// collectMetrics samples the rooms, the pipeline and the bus.
func (b *Backend) collectMetrics(ctx context.Context, _ pipeline.Job) error {
	stats := b.Coordinator.Stats()
	b.Metrics.SetRoomStats(stats.Rooms, stats.Operations)

	counts, err := b.Pipeline.Stats(ctx)
	if err != nil {
		return err
	}
	for jobType, count := range counts {
		b.Metrics.SetPipelineWaitingJobs(string(jobType), count.Waiting)
	}

	busErr := b.Bus.Check(ctx)
	b.Metrics.SetBusHealthy(busErr == nil)
	if busErr != nil {
		logging.From(ctx).Warnf("bus check: %v", busErr)
	}

	logging.From(ctx).Debugf(
		"STAT: rooms: %d, operations: %d, avg log: %.1f",
		stats.Rooms, stats.Operations, stats.AverageLogSize,
	)
	return nil
}

// reportExhausted reports a job that failed for good to the message broker.
func (b *Backend) reportExhausted(ctx context.Context, job pipeline.Job, err error) {
	if produceErr := b.MsgBrokers.Pipeline().Produce(ctx, messagebroker.PipelineJobFailedMessage{
		EventType: events.PipelineJobFailedEvent,
		JobID:     job.ID,
		JobType:   string(job.Type),
		RoomID:    job.RoomID,
		Attempts:  job.Attempts,
		Error:     err.Error(),
		Payload:   job.Payload,
		Timestamp: time.Now(),
	}); produceErr != nil {
		logging.From(ctx).Warnf("produce %s: %v", events.PipelineJobFailedEvent, produceErr)
	}
}

// publish publishes the given event. A failure to reach other processes is
// logged and counted but does not fail the caller: local subscribers already
// received the event.
func (b *Backend) publish(ctx context.Context, roomID string, eventType types.RoomEventType, payload any) {
	if err := b.Bus.Publish(ctx, roomID, eventType, payload); err != nil {
		b.Metrics.AddBusPublishFailure()
		logging.From(ctx).Warnf("publish %s to %s: %v", eventType, roomID, err)
	}
}

func presenceEditor(payload pipeline.MembershipPayload) presence.Editor {
	return presence.Editor{
		EditorID:     payload.EditorID,
		ConnectionID: payload.ConnectionID,
		JoinedAt:     time.Now(),
	}
}
