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

// Package backend provides the backend implementation of CodeSync. This
// package is responsible for assembling the coordinator, the bus, the job
// pipeline and the stores required to run a CodeSync server.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/codesync-team/codesync/server/backend/background"
	"github.com/codesync-team/codesync/server/backend/database"
	memdb "github.com/codesync-team/codesync/server/backend/database/memory"
	"github.com/codesync-team/codesync/server/backend/database/mongo"
	"github.com/codesync-team/codesync/server/backend/housekeeping"
	"github.com/codesync-team/codesync/server/backend/messagebroker"
	"github.com/codesync-team/codesync/server/backend/pipeline"
	"github.com/codesync-team/codesync/server/backend/presence"
	"github.com/codesync-team/codesync/server/backend/pubsub"
	"github.com/codesync-team/codesync/server/backend/sync"
	"github.com/codesync-team/codesync/server/logging"
	"github.com/codesync-team/codesync/server/profiling/prometheus"
)

// Backend manages CodeSync's backend such as the Coordinator, the Bus and
// the Pipeline.
type Backend struct {
	Config *Config

	// Coordinator owns the rooms of this process.
	Coordinator *sync.Coordinator
	// Bus is used to publish/subscribe room events across processes.
	Bus pubsub.Bus
	// Pipeline queues and runs operation and room jobs.
	Pipeline *pipeline.Pipeline
	// Presence records who is in which room.
	Presence presence.Store

	// Background is used to manage background tasks.
	Background *background.Background
	// Housekeeping is used to schedule recurring jobs.
	Housekeeping *housekeeping.Housekeeping

	// Metrics is used to expose metrics.
	Metrics *prometheus.Metrics
	// DB is the snapshot database.
	DB database.Database
	// MsgBrokers are the producers of external events.
	MsgBrokers *messagebroker.Brokers

	queue pipeline.Queue
	redis redis.UniversalClient
}

// New creates a new instance of Backend.
func New(
	conf *Config,
	syncConf *sync.Config,
	pipelineConf *pipeline.Config,
	housekeepingConf *housekeeping.Config,
	redisConf *RedisConfig,
	mongoConf *mongo.Config,
	kafkaConf *messagebroker.Config,
	metrics *prometheus.Metrics,
) (*Backend, error) {
	// 01. Use the hostname of the current machine if none was given.
	if conf.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("os.Hostname: %w", err)
		}
		conf.Hostname = hostname
	}

	// 02. Create the snapshot database. If the MongoDB configuration is
	// given, create a MongoDB instance. Otherwise, create a memory database.
	var db database.Database
	var err error
	if mongoConf != nil {
		db, err = mongo.Dial(mongoConf)
		if err != nil {
			return nil, err
		}
	} else {
		db, err = memdb.New()
		if err != nil {
			return nil, err
		}
	}

	// 03. Create the bus, the job queue and the presence store. Redis backs
	// all of them if it is configured.
	var client redis.UniversalClient
	var bus pubsub.Bus
	var queue pipeline.Queue
	var presenceStore presence.Store
	if redisConf != nil {
		redisClient, err := redisConf.NewClient()
		if err != nil {
			return nil, err
		}
		client = redisClient
		bus = pubsub.NewRedis(conf.Hostname, client)
		queue = pipeline.NewRedisQueue(client, "codesync:"+conf.Hostname)
		presenceStore = presence.NewRedisStore(client, conf.ParsePresenceTTL())
	} else {
		bus = pubsub.NewMemory(conf.Hostname)
		queue = pipeline.NewMemoryQueue()
		presenceStore = presence.NewMemoryStore()
	}

	// 04. Create the coordinator and the pipeline.
	coordinator, err := sync.NewCoordinator(syncConf, db, metrics)
	if err != nil {
		return nil, err
	}
	jobs, err := pipeline.New(pipelineConf, queue, metrics)
	if err != nil {
		return nil, err
	}

	// 05. Create the background task manager, the message brokers and the
	// housekeeping instance.
	bg := background.New(metrics)
	brokers := messagebroker.Ensure(kafkaConf)
	housekeeper, err := housekeeping.New(housekeepingConf, jobs, bg)
	if err != nil {
		return nil, err
	}

	be := &Backend{
		Config: conf,

		Coordinator: coordinator,
		Bus:         bus,
		Pipeline:    jobs,
		Presence:    presenceStore,

		Background:   bg,
		Housekeeping: housekeeper,

		Metrics:    metrics,
		DB:         db,
		MsgBrokers: brokers,

		queue: queue,
		redis: client,
	}

	// 06. Register the job handlers.
	jobs.Register(pipeline.ApplyOperation, be.applyOperation)
	jobs.Register(pipeline.RoomMembershipChanged, be.changeMembership)
	jobs.Register(pipeline.Cleanup, be.cleanup)
	jobs.Register(pipeline.CollectMetrics, be.collectMetrics)
	jobs.OnExhausted(be.reportExhausted)

	dbInfo := "memory"
	if mongoConf != nil {
		dbInfo = mongoConf.ConnectionURI
	}
	busInfo := "memory"
	if redisConf != nil {
		busInfo = redisConf.URL
	}
	logging.DefaultLogger().Infof("backend created: db: %s, bus: %s", dbInfo, busInfo)

	return be, nil
}

// Start starts the backend.
func (b *Backend) Start() error {
	if err := b.Pipeline.Start(); err != nil {
		return err
	}

	if err := b.Housekeeping.Start(); err != nil {
		return err
	}

	logging.DefaultLogger().Infof("backend started")
	return nil
}

// Shutdown closes all resources of this instance. It lets the pipeline
// finish the jobs it holds until the given context is done.
func (b *Backend) Shutdown(ctx context.Context) error {
	var errs []error

	if err := b.Housekeeping.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := b.Pipeline.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	b.Background.Close()

	if err := b.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.Bus.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.MsgBrokers.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logging.DefaultLogger().Infof("backend stopped")
	return nil
}
