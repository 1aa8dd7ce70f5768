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

// Package database provides the snapshot store of rooms. The store lets a
// room that was created after a restart or an eviction start from the last
// known content of its document.
package database

import (
	"context"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/pkg/errors"
)

var (
	// ErrSnapshotNotFound is returned when the snapshot could not be found.
	ErrSnapshotNotFound = errors.NotFound("snapshot not found").WithCode("ErrSnapshotNotFound")
)

// Database represents database which reads or saves room snapshots.
type Database interface {
	// Close all resources of this database.
	Close() error

	// SaveSnapshot stores the given snapshot of its room. A snapshot older
	// than the stored one, by LastModified, is ignored.
	SaveSnapshot(ctx context.Context, snapshot *types.Snapshot) error

	// FindSnapshot returns the stored snapshot of the given room.
	FindSnapshot(ctx context.Context, roomID string) (*types.Snapshot, error)

	// DeleteSnapshot removes the stored snapshot of the given room.
	DeleteSnapshot(ctx context.Context, roomID string) error
}
