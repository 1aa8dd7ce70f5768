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

// Package housekeeping is the package for housekeeping service. It schedules
// the recurring jobs that reclaim idle rooms and sample statistics.
package housekeeping

import (
	"fmt"
	"time"
)

// Config is the configuration for the housekeeping service.
type Config struct {
	// Interval is the time between cleanup runs.
	Interval string `yaml:"Interval"`

	// MetricsInterval is the time between statistics samples.
	MetricsInterval string `yaml:"MetricsInterval"`

	// RoomIdleTimeout is how long a room stays live without activity.
	RoomIdleTimeout string `yaml:"RoomIdleTimeout"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Interval); err != nil {
		return fmt.Errorf(
			`invalid argument %s for "--housekeeping-interval" flag: %w`,
			c.Interval,
			err,
		)
	}

	if _, err := time.ParseDuration(c.MetricsInterval); err != nil {
		return fmt.Errorf(
			`invalid argument %s for "--housekeeping-metrics-interval" flag: %w`,
			c.MetricsInterval,
			err,
		)
	}

	if _, err := time.ParseDuration(c.RoomIdleTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument %s for "--room-idle-timeout" flag: %w`,
			c.RoomIdleTimeout,
			err,
		)
	}

	return nil
}

// ParseInterval parses the interval.
func (c *Config) ParseInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("parse interval %s: %w", c.Interval, err)
	}

	return interval, nil
}

// ParseMetricsInterval parses the metrics interval.
func (c *Config) ParseMetricsInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.MetricsInterval)
	if err != nil {
		return 0, fmt.Errorf("parse metrics interval %s: %w", c.MetricsInterval, err)
	}

	return interval, nil
}

// ParseRoomIdleTimeout parses the room idle timeout.
func (c *Config) ParseRoomIdleTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.RoomIdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse room idle timeout %s: %w", c.RoomIdleTimeout, err)
	}

	return timeout, nil
}
