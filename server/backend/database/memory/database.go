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

// Package memory implements the database interface using in-memory database.
package memory

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-memdb"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/server/backend/database"
)

// DB is an in-memory database for testing or temporarily.
type DB struct {
	db *memdb.MemDB
}

// New returns a new in-memory database.
func New() (*DB, error) {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	return &DB{
		db: memDB,
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return nil
}

// SaveSnapshot stores the given snapshot of its room.
func (d *DB) SaveSnapshot(_ context.Context, snapshot *types.Snapshot) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblSnapshots, "id", snapshot.RoomID)
	if err != nil {
		return fmt.Errorf("find snapshot of %s: %w", snapshot.RoomID, err)
	}
	if raw != nil && raw.(*types.Snapshot).LastModified.After(snapshot.LastModified) {
		return nil
	}

	stored := *snapshot
	if err := txn.Insert(tblSnapshots, &stored); err != nil {
		return fmt.Errorf("insert snapshot of %s: %w", snapshot.RoomID, err)
	}

	txn.Commit()
	return nil
}

// FindSnapshot returns the stored snapshot of the given room.
func (d *DB) FindSnapshot(_ context.Context, roomID string) (*types.Snapshot, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblSnapshots, "id", roomID)
	if err != nil {
		return nil, fmt.Errorf("find snapshot of %s: %w", roomID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s: %w", roomID, database.ErrSnapshotNotFound)
	}

	snapshot := *raw.(*types.Snapshot)
	return &snapshot, nil
}

// DeleteSnapshot removes the stored snapshot of the given room.
func (d *DB) DeleteSnapshot(_ context.Context, roomID string) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tblSnapshots, "id", roomID); err != nil {
		return fmt.Errorf("delete snapshot of %s: %w", roomID, err)
	}

	txn.Commit()
	return nil
}
