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

package backend

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the configuration for creating a Backend instance.
type Config struct {
	// Hostname is the name of this server process. It identifies the
	// process on the bus and namespaces its durable queues.
	Hostname string `yaml:"Hostname"`

	// SnapshotSaveTimeout bounds the save of a room snapshot after a commit.
	SnapshotSaveTimeout string `yaml:"SnapshotSaveTimeout"`

	// PresenceTTL is how long the editors of a room are remembered by the
	// Redis presence store without a new join.
	PresenceTTL string `yaml:"PresenceTTL"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.SnapshotSaveTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--snapshot-save-timeout" flag: %w`,
			c.SnapshotSaveTimeout,
			err,
		)
	}

	if _, err := time.ParseDuration(c.PresenceTTL); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--presence-ttl" flag: %w`,
			c.PresenceTTL,
			err,
		)
	}

	return nil
}

// ParseSnapshotSaveTimeout returns the snapshot save timeout.
func (c *Config) ParseSnapshotSaveTimeout() time.Duration {
	result, err := time.ParseDuration(c.SnapshotSaveTimeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse snapshot save timeout:", err)
		os.Exit(1)
	}

	return result
}

// ParsePresenceTTL returns the presence TTL.
func (c *Config) ParsePresenceTTL() time.Duration {
	result, err := time.ParseDuration(c.PresenceTTL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse presence ttl:", err)
		os.Exit(1)
	}

	return result
}

// RedisConfig is the configuration of the Redis server shared by the bus,
// the job queue and the presence store.
type RedisConfig struct {
	// URL is the address of Redis, e.g. redis://localhost:6379/0.
	URL string `yaml:"URL"`
}

// Validate validates this config.
func (c *RedisConfig) Validate() error {
	if _, err := redis.ParseURL(c.URL); err != nil {
		return fmt.Errorf(`invalid argument "%s" for "--redis-url" flag: %w`, c.URL, err)
	}

	return nil
}

// NewClient creates a client of the configured Redis.
func (c *RedisConfig) NewClient() (*redis.Client, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return redis.NewClient(opts), nil
}
