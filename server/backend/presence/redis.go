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

package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by one Redis hash per room, keyed by
// connection id.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a new RedisStore. The hash of a room expires ttl
// after its last join.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// Join records that the given editor joined the room.
func (s *RedisStore) Join(ctx context.Context, roomID string, editor Editor) error {
	encoded, err := json.Marshal(editor)
	if err != nil {
		return fmt.Errorf("marshal editor %s: %w", editor.EditorID, err)
	}

	key := usersKey(roomID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, editor.ConnectionID, encoded)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("join %s to %s: %w", editor.EditorID, roomID, err)
	}
	return nil
}

// Leave records that the given connection left the room.
func (s *RedisStore) Leave(ctx context.Context, roomID, connectionID string) error {
	if err := s.client.HDel(ctx, usersKey(roomID), connectionID).Err(); err != nil {
		return fmt.Errorf("leave %s from %s: %w", connectionID, roomID, err)
	}
	return nil
}

// Editors returns the editors of the given room ordered by join time.
func (s *RedisStore) Editors(ctx context.Context, roomID string) ([]Editor, error) {
	fields, err := s.client.HGetAll(ctx, usersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get editors of %s: %w", roomID, err)
	}

	editors := make([]Editor, 0, len(fields))
	for connectionID, value := range fields {
		var editor Editor
		if err := json.Unmarshal([]byte(value), &editor); err != nil {
			return nil, fmt.Errorf("unmarshal editor %s of %s: %w", connectionID, roomID, err)
		}
		editors = append(editors, editor)
	}

	sortEditors(editors)
	return editors, nil
}

// Clear forgets every editor of the given room.
func (s *RedisStore) Clear(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, usersKey(roomID)).Err(); err != nil {
		return fmt.Errorf("clear editors of %s: %w", roomID, err)
	}
	return nil
}

func usersKey(roomID string) string {
	return "room:" + roomID + ":users"
}
