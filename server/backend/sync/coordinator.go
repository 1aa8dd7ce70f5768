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

// Package sync provides the synchronization coordinator. The coordinator is
// the only writer of the rooms owned by this process: it serializes the
// commits of each room, transforms incoming operations against concurrent
// ones and assigns versions.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codesync-team/codesync/api/types"
	pkgerrors "github.com/codesync-team/codesync/pkg/errors"
	"github.com/codesync-team/codesync/pkg/ot"
	"github.com/codesync-team/codesync/server/backend/database"
	"github.com/codesync-team/codesync/server/backend/rooms"
	"github.com/codesync-team/codesync/server/logging"
	"github.com/codesync-team/codesync/server/profiling/prometheus"
)

var (
	// ErrRoomNotFound is returned when the room is not live on this process.
	ErrRoomNotFound = pkgerrors.NotFound("room not found").WithCode("ErrRoomNotFound")
)

// Coordinator owns the rooms of this process.
type Coordinator struct {
	registry *rooms.Registry
	lockers  *LockerManager
	database database.Database
	metrics  *prometheus.Metrics
	logger   logging.Logger

	window      time.Duration
	seedTimeout time.Duration

	// now is replaced in tests.
	now func() time.Time
}

// NewCoordinator creates a new Coordinator. Rooms created lazily are seeded
// from the given database, which may be nil.
func NewCoordinator(
	conf *Config,
	db database.Database,
	metrics *prometheus.Metrics,
) (*Coordinator, error) {
	parsed, err := conf.parse()
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		registry:    rooms.NewRegistry(conf.LogCapacity, parsed.tombstoneTTL),
		lockers:     NewLockerManager(),
		database:    db,
		metrics:     metrics,
		logger:      logging.New("coordinator"),
		window:      parsed.window,
		seedTimeout: parsed.seedTimeout,
		now:         time.Now,
	}, nil
}

// SetClock replaces the clock of this coordinator.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Commit transforms the given operation against the concurrent operations of
// other authors, applies it to the room and assigns it the next version. A
// malformed operation is rejected before the room is touched.
func (c *Coordinator) Commit(
	ctx context.Context,
	roomID string,
	op types.Operation,
) (types.CommitResult, error) {
	start := time.Now()
	if roomID == "" {
		return types.CommitResult{}, pkgerrors.Wrap(types.ErrInvalidRoomID, pkgerrors.ErrCodeInvalidArgument)
	}

	op = op.Normalize(c.now())
	if err := op.Validate(); err != nil {
		c.metrics.AddInvalidOperation()
		return types.CommitResult{}, pkgerrors.Wrap(err, pkgerrors.ErrCodeInvalidArgument)
	}

	locker := c.lockers.Locker(RoomKey(roomID))
	if err := locker.Lock(ctx); err != nil {
		return types.CommitResult{}, fmt.Errorf("lock %s: %w", roomID, err)
	}
	defer func() {
		if err := locker.Unlock(); err != nil {
			c.logger.Error(err)
		}
	}()

	room := c.room(ctx, roomID)
	reset := room.TakeReset()
	if reset {
		c.metrics.AddRoomReset()
		c.logger.Infof("room %s was reset after eviction", roomID)
	}

	concurrent := room.Concurrent(op, c.window)
	if len(concurrent) > 1 {
		c.metrics.AddTransformAmbiguity()
		c.logger.Warnf(
			"transform ambiguity: %s against %d concurrent operations in %s",
			op, len(concurrent), roomID,
		)
	}

	committed := room.Commit(ot.TransformAll(op, concurrent), c.now())
	state := room.State()
	c.metrics.ObserveCommit(time.Since(start).Seconds(), len(concurrent))

	return types.CommitResult{
		RoomID:     roomID,
		Operation:  committed,
		Version:    committed.Version,
		Content:    state.Content,
		Reset:      reset,
		Concurrent: len(concurrent),
	}, nil
}

// Join returns the snapshot of the given room for a joining participant,
// creating the room if needed.
func (c *Coordinator) Join(ctx context.Context, roomID string) (types.Snapshot, error) {
	if roomID == "" {
		return types.Snapshot{}, pkgerrors.Wrap(types.ErrInvalidRoomID, pkgerrors.ErrCodeInvalidArgument)
	}

	locker := c.lockers.Locker(RoomKey(roomID))
	if err := locker.Lock(ctx); err != nil {
		return types.Snapshot{}, fmt.Errorf("lock %s: %w", roomID, err)
	}
	defer func() {
		if err := locker.Unlock(); err != nil {
			c.logger.Error(err)
		}
	}()

	room := c.room(ctx, roomID)
	room.Touch(c.now())
	return room.Snapshot(), nil
}

// Reconnect returns what a participant that last saw lastKnownVersion needs
// to catch up. The participant is told to reset when the room restarted at a
// lower version or the operations it missed left the log.
func (c *Coordinator) Reconnect(
	ctx context.Context,
	roomID string,
	lastKnownVersion int64,
) (types.CatchUp, error) {
	if roomID == "" {
		return types.CatchUp{}, pkgerrors.Wrap(types.ErrInvalidRoomID, pkgerrors.ErrCodeInvalidArgument)
	}
	if lastKnownVersion < 0 {
		return types.CatchUp{}, pkgerrors.InvalidArgument(
			fmt.Sprintf("negative version %d", lastKnownVersion),
		).WithCode("ErrInvalidVersion")
	}

	locker := c.lockers.Locker(RoomKey(roomID))
	if err := locker.Lock(ctx); err != nil {
		return types.CatchUp{}, fmt.Errorf("lock %s: %w", roomID, err)
	}
	defer func() {
		if err := locker.Unlock(); err != nil {
			c.logger.Error(err)
		}
	}()

	room := c.room(ctx, roomID)
	room.Touch(c.now())
	state := room.State()

	catchUp := types.CatchUp{
		RoomID:     roomID,
		Operations: []types.Operation{},
		Version:    state.Version,
		Content:    state.Content,
	}
	if lastKnownVersion > state.Version {
		catchUp.Reset = true
		return catchUp, nil
	}

	ops, ok := room.Since(lastKnownVersion)
	if !ok {
		catchUp.Reset = true
		return catchUp, nil
	}
	if len(ops) > 0 {
		catchUp.Operations = ops
	}
	return catchUp, nil
}

// Snapshot returns the snapshot of the given room if it is live.
func (c *Coordinator) Snapshot(roomID string) (types.Snapshot, error) {
	room, ok := c.registry.Get(roomID)
	if !ok {
		return types.Snapshot{}, fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	return room.Snapshot(), nil
}

// History returns at most limit of the newest committed operations of the
// given room, oldest first.
func (c *Coordinator) History(roomID string, limit int) ([]types.Operation, error) {
	room, ok := c.registry.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	return room.Recent(limit), nil
}

// Evict evicts the given room and returns its last snapshot.
func (c *Coordinator) Evict(ctx context.Context, roomID string) (types.Snapshot, error) {
	locker := c.lockers.Locker(RoomKey(roomID))
	if err := locker.Lock(ctx); err != nil {
		return types.Snapshot{}, fmt.Errorf("lock %s: %w", roomID, err)
	}
	defer func() {
		if err := locker.Unlock(); err != nil {
			c.logger.Error(err)
		}
	}()

	room, ok := c.registry.Get(roomID)
	if !ok {
		return types.Snapshot{}, fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}

	snapshot := room.Snapshot()
	c.registry.Evict(roomID, c.now())
	return snapshot, nil
}

// EvictIdle evicts the rooms without activity for longer than idleTimeout
// and forgets old evictions. It returns the last snapshots of the evicted
// rooms.
func (c *Coordinator) EvictIdle(ctx context.Context, idleTimeout time.Duration) ([]types.Snapshot, error) {
	now := c.now()
	before := now.Add(-idleTimeout)

	var evicted []types.Snapshot
	for _, roomID := range c.registry.IdleRooms(before) {
		snapshot, ok, err := c.evictIfIdle(ctx, roomID, before)
		if err != nil {
			return evicted, err
		}
		if ok {
			evicted = append(evicted, snapshot)
		}
	}

	if pruned := c.registry.PruneTombstones(now); pruned > 0 {
		c.logger.Debugf("pruned %d tombstones", pruned)
	}
	if len(evicted) > 0 {
		c.metrics.AddRoomsEvicted(len(evicted))
	}
	return evicted, nil
}

// evictIfIdle evicts the given room if it is still idle under its lock.
func (c *Coordinator) evictIfIdle(
	ctx context.Context,
	roomID string,
	before time.Time,
) (types.Snapshot, bool, error) {
	locker := c.lockers.Locker(RoomKey(roomID))
	if err := locker.Lock(ctx); err != nil {
		return types.Snapshot{}, false, fmt.Errorf("lock %s: %w", roomID, err)
	}
	defer func() {
		if err := locker.Unlock(); err != nil {
			c.logger.Error(err)
		}
	}()

	room, ok := c.registry.Get(roomID)
	if !ok || !room.LastActivity().Before(before) {
		return types.Snapshot{}, false, nil
	}

	snapshot := room.Snapshot()
	c.registry.Evict(roomID, c.now())
	return snapshot, true, nil
}

// Stats samples the rooms of this coordinator.
func (c *Coordinator) Stats() types.RoomStats {
	return c.registry.Stats()
}

// RoomIDs returns the ids of the live rooms.
func (c *Coordinator) RoomIDs() []string {
	return c.registry.IDs()
}

// room returns the given room, creating it from its stored snapshot if
// needed. The caller must hold the lock of the room.
func (c *Coordinator) room(ctx context.Context, roomID string) *rooms.Room {
	if room, ok := c.registry.Get(roomID); ok {
		return room
	}

	if c.registry.WasEvicted(roomID) {
		c.logger.Infof("reopen evicted room %s, versions restart", roomID)
	}
	room, _ := c.registry.GetOrCreate(roomID, c.seed(ctx, roomID), c.now())
	return room
}

// seed returns the stored content of the given room, or an empty content if
// there is none.
func (c *Coordinator) seed(ctx context.Context, roomID string) string {
	if c.database == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, c.seedTimeout)
	defer cancel()

	snapshot, err := c.database.FindSnapshot(ctx, roomID)
	if errors.Is(err, database.ErrSnapshotNotFound) {
		return ""
	}
	if err != nil {
		c.logger.Warnf("seed %s: %v", roomID, err)
		return ""
	}
	return snapshot.Content
}
