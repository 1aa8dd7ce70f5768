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

// Package mongo implements database interfaces using MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/server/backend/database"
	"github.com/codesync-team/codesync/server/logging"
)

// Client is a client that connects to Mongo DB and reads or saves room
// snapshots.
type Client struct {
	config *Config
	client *mongo.Client
}

// Dial creates an instance of Client and dials the given MongoDB.
func Dial(conf *Config) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.ParseConnectionTimeout())
	defer cancel()

	clientOptions := options.Client().ApplyURI(conf.ConnectionURI)

	if conf.MonitoringEnabled {
		threshold, err := time.ParseDuration(conf.MonitoringSlowQueryThreshold)
		if err != nil {
			return nil, fmt.Errorf("parse slow query threshold: %w", err)
		}

		monitor := NewQueryMonitor(&MonitorConfig{
			Enabled:            conf.MonitoringEnabled,
			SlowQueryThreshold: threshold,
		})

		clientOptions.SetMonitor(monitor.CreateCommandMonitor())
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(ctx, conf.ParsePingTimeout())
	defer cancelPing()

	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	if err := ensureIndexes(ctx, client.Database(conf.Database)); err != nil {
		return nil, err
	}

	logging.DefaultLogger().Infof("MongoDB connected, URI: %s, DB: %s", conf.ConnectionURI, conf.Database)

	return &Client{
		config: conf,
		client: client,
	}, nil
}

// Close all resources of this client.
func (c *Client) Close() error {
	if err := c.client.Disconnect(context.Background()); err != nil {
		return fmt.Errorf("close mongo client: %w", err)
	}

	return nil
}

// SaveSnapshot stores the given snapshot of its room. The update only
// matches a stored snapshot that is not newer, so a stale snapshot collides
// with the existing _id and is ignored.
func (c *Client) SaveSnapshot(ctx context.Context, snapshot *types.Snapshot) error {
	_, err := c.collection(ColSnapshots).UpdateOne(ctx, bson.M{
		"_id":           snapshot.RoomID,
		"last_modified": bson.M{"$lte": snapshot.LastModified},
	}, bson.M{
		"$set": bson.M{
			"content":       snapshot.Content,
			"version":       snapshot.Version,
			"last_modified": snapshot.LastModified,
		},
	}, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("save snapshot of %s: %w", snapshot.RoomID, err)
	}

	return nil
}

// FindSnapshot returns the stored snapshot of the given room.
func (c *Client) FindSnapshot(ctx context.Context, roomID string) (*types.Snapshot, error) {
	result := c.collection(ColSnapshots).FindOne(ctx, bson.M{"_id": roomID})

	var record snapshotRecord
	if err := result.Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", roomID, database.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("find snapshot of %s: %w", roomID, err)
	}

	return &types.Snapshot{
		RoomID:       record.RoomID,
		Content:      record.Content,
		Version:      record.Version,
		LastModified: record.LastModified,
	}, nil
}

// DeleteSnapshot removes the stored snapshot of the given room.
func (c *Client) DeleteSnapshot(ctx context.Context, roomID string) error {
	if _, err := c.collection(ColSnapshots).DeleteOne(ctx, bson.M{"_id": roomID}); err != nil {
		return fmt.Errorf("delete snapshot of %s: %w", roomID, err)
	}

	return nil
}

func (c *Client) collection(name string) *mongo.Collection {
	return c.client.Database(c.config.Database).Collection(name)
}

// snapshotRecord is the stored form of a snapshot.
type snapshotRecord struct {
	RoomID       string    `bson:"_id"`
	Content      string    `bson:"content"`
	Version      int64     `bson:"version"`
	LastModified time.Time `bson:"last_modified"`
}
