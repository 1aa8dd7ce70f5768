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

// Package presence keeps track of the editors connected to each room.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codesync-team/codesync/pkg/cmap"
)

// Editor is an editor connected to a room through one connection.
type Editor struct {
	EditorID     string    `json:"editorId"`
	ConnectionID string    `json:"connectionId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Store records who is in which room.
type Store interface {
	// Join records that the given editor joined the room.
	Join(ctx context.Context, roomID string, editor Editor) error

	// Leave records that the given connection left the room.
	Leave(ctx context.Context, roomID, connectionID string) error

	// Editors returns the editors of the given room ordered by join time.
	Editors(ctx context.Context, roomID string) ([]Editor, error)

	// Clear forgets every editor of the given room.
	Clear(ctx context.Context, roomID string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	rooms *cmap.Map[string, *roomEditors]
}

type roomEditors struct {
	mu      sync.Mutex
	editors map[string]Editor
}

// NewMemoryStore creates a new instance of MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: cmap.New[string, *roomEditors](),
	}
}

// Join records that the given editor joined the room.
func (s *MemoryStore) Join(_ context.Context, roomID string, editor Editor) error {
	s.rooms.Upsert(roomID, func(room *roomEditors, exists bool) *roomEditors {
		if !exists {
			room = &roomEditors{editors: make(map[string]Editor)}
		}

		room.mu.Lock()
		defer room.mu.Unlock()
		room.editors[editor.ConnectionID] = editor
		return room
	})
	return nil
}

// Leave records that the given connection left the room.
func (s *MemoryStore) Leave(_ context.Context, roomID, connectionID string) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil
	}

	room.mu.Lock()
	delete(room.editors, connectionID)
	empty := len(room.editors) == 0
	room.mu.Unlock()

	if empty {
		s.rooms.Delete(roomID, func(room *roomEditors, exists bool) bool {
			if !exists {
				return false
			}
			room.mu.Lock()
			defer room.mu.Unlock()
			return len(room.editors) == 0
		})
	}
	return nil
}

// Editors returns the editors of the given room ordered by join time.
func (s *MemoryStore) Editors(_ context.Context, roomID string) ([]Editor, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, nil
	}

	room.mu.Lock()
	editors := make([]Editor, 0, len(room.editors))
	for _, editor := range room.editors {
		editors = append(editors, editor)
	}
	room.mu.Unlock()

	sortEditors(editors)
	return editors, nil
}

// Clear forgets every editor of the given room.
func (s *MemoryStore) Clear(_ context.Context, roomID string) error {
	s.rooms.Remove(roomID)
	return nil
}

func sortEditors(editors []Editor) {
	sort.Slice(editors, func(i, j int) bool {
		if !editors[i].JoinedAt.Equal(editors[j].JoinedAt) {
			return editors[i].JoinedAt.Before(editors[j].JoinedAt)
		}
		return editors[i].ConnectionID < editors[j].ConnectionID
	})
}
