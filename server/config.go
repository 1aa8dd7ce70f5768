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

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codesync-team/codesync/server/backend"
	"github.com/codesync-team/codesync/server/backend/database/mongo"
	"github.com/codesync-team/codesync/server/backend/housekeeping"
	"github.com/codesync-team/codesync/server/backend/messagebroker"
	"github.com/codesync-team/codesync/server/backend/pipeline"
	"github.com/codesync-team/codesync/server/backend/sync"
	"github.com/codesync-team/codesync/server/profiling"
	"github.com/codesync-team/codesync/server/transport"
)

// Below are the values of the default values of CodeSync config.
const (
	DefaultTransportPort            = 8080
	DefaultTransportPingInterval    = 30 * time.Second
	DefaultTransportWriteTimeout    = 10 * time.Second
	DefaultTransportSendBufferSize  = 256
	DefaultTransportMaxMessageBytes = 1 << 20

	DefaultProfilingPort = 8081

	DefaultHousekeepingInterval        = time.Hour
	DefaultHousekeepingMetricsInterval = 5 * time.Minute
	DefaultRoomIdleTimeout             = 24 * time.Hour

	DefaultHostname            = ""
	DefaultSnapshotSaveTimeout = 5 * time.Second
	DefaultPresenceTTL         = 24 * time.Hour

	DefaultConcurrencyWindow = 5 * time.Second
	DefaultLogCapacity       = 1000
	DefaultTombstoneTTL      = 72 * time.Hour
	DefaultSeedTimeout       = 3 * time.Second

	DefaultMongoConnectionURI                = "mongodb://localhost:27017"
	DefaultMongoConnectionTimeout            = 5 * time.Second
	DefaultMongoPingTimeout                  = 5 * time.Second
	DefaultMongoDatabase                     = "codesync"
	DefaultMongoMonitoringSlowQueryThreshold = 100 * time.Millisecond

	DefaultKafkaOperationsTopic = "codesync-operations"
	DefaultKafkaRoomsTopic      = "codesync-rooms"
	DefaultKafkaPipelineTopic   = "codesync-pipeline"
	DefaultKafkaWriteTimeout    = 5 * time.Second
)

// Config is the configuration for creating a CodeSync instance.
type Config struct {
	Transport    *transport.Config     `yaml:"Transport"`
	Profiling    *profiling.Config     `yaml:"Profiling"`
	Housekeeping *housekeeping.Config  `yaml:"Housekeeping"`
	Backend      *backend.Config       `yaml:"Backend"`
	Sync         *sync.Config          `yaml:"Sync"`
	Pipeline     *pipeline.Config      `yaml:"Pipeline"`
	Redis        *backend.RedisConfig  `yaml:"Redis"`
	Mongo        *mongo.Config         `yaml:"Mongo"`
	Kafka        *messagebroker.Config `yaml:"Kafka"`
}

// NewConfig returns a Config struct that contains reasonable defaults
// for most of the configurations.
func NewConfig() *Config {
	return newConfig(DefaultTransportPort, DefaultProfilingPort)
}

// NewConfigFromFile returns a Config struct for the given conf file.
func NewConfigFromFile(path string) (*Config, error) {
	conf := &Config{}
	bytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err = yaml.Unmarshal(bytes, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}

	conf.ensureDefaultValue()
	return conf, nil
}

// TransportAddr returns the address of the transport.
func (c *Config) TransportAddr() string {
	return fmt.Sprintf("localhost:%d", c.Transport.Port)
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if err := c.Transport.Validate(); err != nil {
		return err
	}

	if c.Profiling != nil {
		if err := c.Profiling.Validate(); err != nil {
			return err
		}
	}

	if err := c.Housekeeping.Validate(); err != nil {
		return err
	}

	if err := c.Backend.Validate(); err != nil {
		return err
	}

	if err := c.Sync.Validate(); err != nil {
		return err
	}

	if err := c.Pipeline.Validate(); err != nil {
		return err
	}

	if c.Redis != nil {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}

	if c.Mongo != nil {
		if err := c.Mongo.Validate(); err != nil {
			return err
		}
	}

	if c.Kafka != nil {
		if err := c.Kafka.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ensureDefaultValue sets the value of the option to which the default value
// should be applied when the user does not input it.
func (c *Config) ensureDefaultValue() {
	defaults := NewConfig()

	if c.Transport == nil {
		c.Transport = defaults.Transport
	}
	if c.Transport.Port == 0 {
		c.Transport.Port = DefaultTransportPort
	}
	if c.Transport.PingInterval == "" {
		c.Transport.PingInterval = DefaultTransportPingInterval.String()
	}
	if c.Transport.WriteTimeout == "" {
		c.Transport.WriteTimeout = DefaultTransportWriteTimeout.String()
	}
	if c.Transport.SendBufferSize == 0 {
		c.Transport.SendBufferSize = DefaultTransportSendBufferSize
	}
	if c.Transport.MaxMessageBytes == 0 {
		c.Transport.MaxMessageBytes = DefaultTransportMaxMessageBytes
	}

	if c.Profiling != nil && c.Profiling.Port == 0 {
		c.Profiling.Port = DefaultProfilingPort
	}

	if c.Housekeeping == nil {
		c.Housekeeping = defaults.Housekeeping
	}
	if c.Housekeeping.Interval == "" {
		c.Housekeeping.Interval = DefaultHousekeepingInterval.String()
	}
	if c.Housekeeping.MetricsInterval == "" {
		c.Housekeeping.MetricsInterval = DefaultHousekeepingMetricsInterval.String()
	}
	if c.Housekeeping.RoomIdleTimeout == "" {
		c.Housekeeping.RoomIdleTimeout = DefaultRoomIdleTimeout.String()
	}

	if c.Backend == nil {
		c.Backend = defaults.Backend
	}
	if c.Backend.SnapshotSaveTimeout == "" {
		c.Backend.SnapshotSaveTimeout = DefaultSnapshotSaveTimeout.String()
	}
	if c.Backend.PresenceTTL == "" {
		c.Backend.PresenceTTL = DefaultPresenceTTL.String()
	}

	if c.Sync == nil {
		c.Sync = defaults.Sync
	}
	if c.Sync.ConcurrencyWindow == "" {
		c.Sync.ConcurrencyWindow = DefaultConcurrencyWindow.String()
	}
	if c.Sync.LogCapacity == 0 {
		c.Sync.LogCapacity = DefaultLogCapacity
	}
	if c.Sync.TombstoneTTL == "" {
		c.Sync.TombstoneTTL = DefaultTombstoneTTL.String()
	}
	if c.Sync.SeedTimeout == "" {
		c.Sync.SeedTimeout = DefaultSeedTimeout.String()
	}

	if c.Pipeline == nil {
		c.Pipeline = defaults.Pipeline
	}
	c.Pipeline.EnsureDefaultValue(defaults.Pipeline)

	if c.Mongo != nil {
		if c.Mongo.ConnectionURI == "" {
			c.Mongo.ConnectionURI = DefaultMongoConnectionURI
		}

		if c.Mongo.ConnectionTimeout == "" {
			c.Mongo.ConnectionTimeout = DefaultMongoConnectionTimeout.String()
		}

		if c.Mongo.Database == "" {
			c.Mongo.Database = DefaultMongoDatabase
		}

		if c.Mongo.PingTimeout == "" {
			c.Mongo.PingTimeout = DefaultMongoPingTimeout.String()
		}

		if c.Mongo.MonitoringEnabled {
			if c.Mongo.MonitoringSlowQueryThreshold == "" {
				c.Mongo.MonitoringSlowQueryThreshold = DefaultMongoMonitoringSlowQueryThreshold.String()
			}
		}
	}

	if c.Kafka != nil && c.Kafka.Addresses != "" {
		if c.Kafka.OperationsTopic == "" {
			c.Kafka.OperationsTopic = DefaultKafkaOperationsTopic
		}
		if c.Kafka.RoomsTopic == "" {
			c.Kafka.RoomsTopic = DefaultKafkaRoomsTopic
		}
		if c.Kafka.PipelineTopic == "" {
			c.Kafka.PipelineTopic = DefaultKafkaPipelineTopic
		}
		if c.Kafka.WriteTimeout == "" {
			c.Kafka.WriteTimeout = DefaultKafkaWriteTimeout.String()
		}
	}
}

func newConfig(port int, profilingPort int) *Config {
	return &Config{
		Transport: &transport.Config{
			Port:            port,
			PingInterval:    DefaultTransportPingInterval.String(),
			WriteTimeout:    DefaultTransportWriteTimeout.String(),
			SendBufferSize:  DefaultTransportSendBufferSize,
			MaxMessageBytes: DefaultTransportMaxMessageBytes,
		},
		Profiling: &profiling.Config{
			Port: profilingPort,
		},
		Housekeeping: &housekeeping.Config{
			Interval:        DefaultHousekeepingInterval.String(),
			MetricsInterval: DefaultHousekeepingMetricsInterval.String(),
			RoomIdleTimeout: DefaultRoomIdleTimeout.String(),
		},
		Backend: &backend.Config{
			Hostname:            DefaultHostname,
			SnapshotSaveTimeout: DefaultSnapshotSaveTimeout.String(),
			PresenceTTL:         DefaultPresenceTTL.String(),
		},
		Sync: &sync.Config{
			ConcurrencyWindow: DefaultConcurrencyWindow.String(),
			LogCapacity:       DefaultLogCapacity,
			TombstoneTTL:      DefaultTombstoneTTL.String(),
			SeedTimeout:       DefaultSeedTimeout.String(),
		},
		Pipeline: pipeline.DefaultConfig(),
	}
}
