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

// Package rooms provides the state of the rooms owned by this process: the
// current document of every room, its bounded operation log and the registry
// that creates rooms lazily and evicts idle ones.
package rooms

import (
	"time"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/pkg/cmap"
)

// Registry is the explicit registry of rooms. A room is created on first use
// and evicted after an idle period. Eviction leaves a tombstone behind so
// that a room recreated later is known to have been reset.
type Registry struct {
	logCapacity  int
	tombstoneTTL time.Duration

	rooms      *cmap.Map[string, *Room]
	tombstones *cmap.Map[string, time.Time]
}

// NewRegistry creates a new Registry whose rooms keep at most logCapacity
// operations. Tombstones are kept for tombstoneTTL.
func NewRegistry(logCapacity int, tombstoneTTL time.Duration) *Registry {
	return &Registry{
		logCapacity:  logCapacity,
		tombstoneTTL: tombstoneTTL,
		rooms:        cmap.New[string, *Room](),
		tombstones:   cmap.New[string, time.Time](),
	}
}

// Get returns the room of the given id if it exists.
func (r *Registry) Get(roomID string) (*Room, bool) {
	return r.rooms.Get(roomID)
}

// GetOrCreate returns the room of the given id, creating it at version 0 with
// the given seed content if it does not exist. created reports whether the
// room was created by this call. A room created after its eviction is marked
// as reset.
func (r *Registry) GetOrCreate(roomID string, seed string, now time.Time) (room *Room, created bool) {
	return r.rooms.GetOrInsert(roomID, func() *Room {
		room := newRoom(roomID, seed, r.logCapacity, now)
		if _, evicted := r.tombstones.Remove(roomID); evicted {
			room.reset = true
		}
		return room
	})
}

// Evict removes the room of the given id. It returns false if the room does
// not exist.
func (r *Registry) Evict(roomID string, now time.Time) bool {
	if _, ok := r.rooms.Remove(roomID); !ok {
		return false
	}

	r.tombstones.Set(roomID, now)
	return true
}

// WasEvicted returns whether the room of the given id was evicted and not
// recreated since.
func (r *Registry) WasEvicted(roomID string) bool {
	return r.tombstones.Has(roomID)
}

// IdleRooms returns the ids of the rooms without activity since before.
func (r *Registry) IdleRooms(before time.Time) []string {
	var ids []string
	r.rooms.Range(func(id string, room *Room) bool {
		if room.LastActivity().Before(before) {
			ids = append(ids, id)
		}
		return true
	})
	return ids
}

// PruneTombstones forgets evictions older than the tombstone TTL and returns
// the number of forgotten tombstones.
func (r *Registry) PruneTombstones(now time.Time) int {
	pruned := 0
	for _, id := range r.tombstones.Keys() {
		if r.tombstones.Delete(id, func(evictedAt time.Time, exists bool) bool {
			return exists && now.Sub(evictedAt) > r.tombstoneTTL
		}) {
			pruned++
		}
	}
	return pruned
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	return r.rooms.Len()
}

// IDs returns the ids of the live rooms.
func (r *Registry) IDs() []string {
	return r.rooms.Keys()
}

// Stats samples the rooms of this registry.
func (r *Registry) Stats() types.RoomStats {
	stats := types.RoomStats{}
	for _, room := range r.rooms.Values() {
		stats.Rooms++
		stats.Operations += room.LogLen()
	}
	if stats.Rooms > 0 {
		stats.AverageLogSize = float64(stats.Operations) / float64(stats.Rooms)
	}
	return stats
}
