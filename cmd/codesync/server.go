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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codesync-team/codesync/server"
	"github.com/codesync-team/codesync/server/backend"
	"github.com/codesync-team/codesync/server/backend/database/mongo"
	"github.com/codesync-team/codesync/server/backend/messagebroker"
	"github.com/codesync-team/codesync/server/logging"
)

var (
	gracefulTimeout = 10 * time.Second
)

var (
	flagConfPath  string
	flagLogLevel  string
	flagLogFormat string

	transportPingInterval time.Duration
	transportWriteTimeout time.Duration

	housekeepingInterval        time.Duration
	housekeepingMetricsInterval time.Duration
	roomIdleTimeout             time.Duration

	snapshotSaveTimeout time.Duration
	presenceTTL         time.Duration

	concurrencyWindow time.Duration
	tombstoneTTL      time.Duration
	seedTimeout       time.Duration

	redisURL string

	mongoConnectionURI     string
	mongoConnectionTimeout time.Duration
	mongoDatabase          string
	mongoPingTimeout       time.Duration

	kafkaAddresses string

	conf = server.NewConfig()
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server [options]",
		Short: "Start CodeSync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf.Transport.PingInterval = transportPingInterval.String()
			conf.Transport.WriteTimeout = transportWriteTimeout.String()

			conf.Housekeeping.Interval = housekeepingInterval.String()
			conf.Housekeeping.MetricsInterval = housekeepingMetricsInterval.String()
			conf.Housekeeping.RoomIdleTimeout = roomIdleTimeout.String()

			conf.Backend.SnapshotSaveTimeout = snapshotSaveTimeout.String()
			conf.Backend.PresenceTTL = presenceTTL.String()

			conf.Sync.ConcurrencyWindow = concurrencyWindow.String()
			conf.Sync.TombstoneTTL = tombstoneTTL.String()
			conf.Sync.SeedTimeout = seedTimeout.String()

			if redisURL != "" {
				conf.Redis = &backend.RedisConfig{URL: redisURL}
			}

			if mongoConnectionURI != "" {
				conf.Mongo = &mongo.Config{
					ConnectionURI:     mongoConnectionURI,
					ConnectionTimeout: mongoConnectionTimeout.String(),
					Database:          mongoDatabase,
					PingTimeout:       mongoPingTimeout.String(),
				}
			}

			if kafkaAddresses != "" {
				conf.Kafka = &messagebroker.Config{
					Addresses:       kafkaAddresses,
					OperationsTopic: server.DefaultKafkaOperationsTopic,
					RoomsTopic:      server.DefaultKafkaRoomsTopic,
					PipelineTopic:   server.DefaultKafkaPipelineTopic,
					WriteTimeout:    server.DefaultKafkaWriteTimeout.String(),
				}
			}

			// If config file is given, command-line arguments will be overwritten.
			if flagConfPath != "" {
				parsed, err := server.NewConfigFromFile(flagConfPath)
				if err != nil {
					return err
				}
				conf = parsed
			}

			if err := logging.SetLogLevel(flagLogLevel); err != nil {
				return err
			}
			if err := logging.SetLogFormat(flagLogFormat); err != nil {
				return err
			}

			r, err := server.New(conf)
			if err != nil {
				return err
			}

			if err := r.Start(); err != nil {
				return err
			}

			if code := handleSignal(r); code != 0 {
				return fmt.Errorf("exit code: %d", code)
			}

			return nil
		},
	}
}

func handleSignal(r *server.CodeSync) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var sig os.Signal
	select {
	case s := <-sigCh:
		sig = s
	case <-r.ShutdownCh():
		// codesync is already shutdown
		return 0
	}

	graceful := false
	if sig == syscall.SIGINT || sig == syscall.SIGTERM {
		graceful = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()

	gracefulCh := make(chan struct{})
	go func() {
		if err := r.Shutdown(ctx, graceful); err != nil {
			return
		}
		close(gracefulCh)
	}()

	select {
	case <-sigCh:
		return 1
	case <-ctx.Done():
		return 1
	case <-gracefulCh:
		return 0
	}
}

func init() {
	cmd := newServerCmd()
	cmd.Flags().StringVarP(
		&flagConfPath,
		"config",
		"c",
		"",
		"Config path",
	)
	cmd.Flags().StringVarP(
		&flagLogLevel,
		"log-level",
		"l",
		"info",
		"Log level: debug, info, warn, error, panic, fatal",
	)
	cmd.Flags().StringVar(
		&flagLogFormat,
		"log-format",
		"console",
		"Log format: console, json",
	)
	cmd.Flags().IntVar(
		&conf.Transport.Port,
		"port",
		server.DefaultTransportPort,
		"WebSocket and HTTP port",
	)
	cmd.Flags().DurationVar(
		&transportPingInterval,
		"ping-interval",
		server.DefaultTransportPingInterval,
		"Interval of pings sent to idle connections.",
	)
	cmd.Flags().DurationVar(
		&transportWriteTimeout,
		"write-timeout",
		server.DefaultTransportWriteTimeout,
		"Deadline of a single frame write.",
	)
	cmd.Flags().IntVar(
		&conf.Transport.SendBufferSize,
		"send-buffer-size",
		server.DefaultTransportSendBufferSize,
		"Frames buffered per connection before a slow connection is dropped.",
	)
	cmd.Flags().Int64Var(
		&conf.Transport.MaxMessageBytes,
		"max-message-bytes",
		server.DefaultTransportMaxMessageBytes,
		"Maximum frame size in bytes the server will accept.",
	)
	cmd.Flags().IntVar(
		&conf.Profiling.Port,
		"profiling-port",
		server.DefaultProfilingPort,
		"Profiling port",
	)
	cmd.Flags().BoolVar(
		&conf.Profiling.EnablePprof,
		"enable-pprof",
		false,
		"Enable runtime profiling data via HTTP server.",
	)
	cmd.Flags().DurationVar(
		&housekeepingInterval,
		"housekeeping-interval",
		server.DefaultHousekeepingInterval,
		"housekeeping interval between cleanup runs",
	)
	cmd.Flags().DurationVar(
		&housekeepingMetricsInterval,
		"housekeeping-metrics-interval",
		server.DefaultHousekeepingMetricsInterval,
		"interval between metrics collection runs",
	)
	cmd.Flags().DurationVar(
		&roomIdleTimeout,
		"room-idle-timeout",
		server.DefaultRoomIdleTimeout,
		"Rooms without activity for this long are evicted by cleanup.",
	)
	cmd.Flags().DurationVar(
		&snapshotSaveTimeout,
		"snapshot-save-timeout",
		server.DefaultSnapshotSaveTimeout,
		"Deadline of a room snapshot save after a commit.",
	)
	cmd.Flags().DurationVar(
		&presenceTTL,
		"presence-ttl",
		server.DefaultPresenceTTL,
		"How long the editors of a room are remembered in Redis.",
	)
	cmd.Flags().DurationVar(
		&concurrencyWindow,
		"concurrency-window",
		server.DefaultConcurrencyWindow,
		"Operations within this window of each other are transformed as concurrent.",
	)
	cmd.Flags().IntVar(
		&conf.Sync.LogCapacity,
		"log-capacity",
		server.DefaultLogCapacity,
		"Number of recent operations kept per room.",
	)
	cmd.Flags().DurationVar(
		&tombstoneTTL,
		"tombstone-ttl",
		server.DefaultTombstoneTTL,
		"How long deleted rooms are remembered.",
	)
	cmd.Flags().DurationVar(
		&seedTimeout,
		"seed-timeout",
		server.DefaultSeedTimeout,
		"Deadline of loading a room snapshot when a room is first joined.",
	)
	cmd.Flags().IntVar(
		&conf.Pipeline.Operations.Concurrency,
		"operations-concurrency",
		conf.Pipeline.Operations.Concurrency,
		"Number of operation jobs processed at the same time.",
	)
	cmd.Flags().IntVar(
		&conf.Pipeline.MaxPending,
		"max-pending-jobs",
		conf.Pipeline.MaxPending,
		"Maximum number of waiting jobs before submissions are rejected.",
	)
	cmd.Flags().StringVar(
		&redisURL,
		"redis-url",
		"",
		"Redis URL, e.g. redis://localhost:6379/0. Rooms are shared across servers when set.",
	)
	cmd.Flags().StringVar(
		&mongoConnectionURI,
		"mongo-connection-uri",
		"",
		"MongoDB's connection URI",
	)
	cmd.Flags().DurationVar(
		&mongoConnectionTimeout,
		"mongo-connection-timeout",
		server.DefaultMongoConnectionTimeout,
		"Mongo DB's connection timeout",
	)
	cmd.Flags().StringVar(
		&mongoDatabase,
		"mongo-database",
		server.DefaultMongoDatabase,
		"CodeSync's database name in MongoDB",
	)
	cmd.Flags().DurationVar(
		&mongoPingTimeout,
		"mongo-ping-timeout",
		server.DefaultMongoPingTimeout,
		"Mongo DB's ping timeout",
	)
	cmd.Flags().StringVar(
		&kafkaAddresses,
		"kafka-addresses",
		"",
		"Comma-separated Kafka brokers. Commit and room events are produced when set.",
	)
	cmd.Flags().StringVar(
		&conf.Backend.Hostname,
		"hostname",
		server.DefaultHostname,
		"CodeSync Server Hostname",
	)

	rootCmd.AddCommand(cmd)
}
