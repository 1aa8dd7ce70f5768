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

package sync

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidLogCapacity is returned when the log capacity is not positive.
	ErrInvalidLogCapacity = errors.New("log capacity must be positive")
)

// Config is the configuration of the Coordinator.
type Config struct {
	// ConcurrencyWindow is how far back in time a committed operation of
	// another author counts as concurrent with an incoming one.
	ConcurrencyWindow string `yaml:"ConcurrencyWindow"`

	// LogCapacity is the number of committed operations kept per room.
	LogCapacity int `yaml:"LogCapacity"`

	// TombstoneTTL is how long an evicted room is remembered, so that its
	// recreation is reported as a reset.
	TombstoneTTL string `yaml:"TombstoneTTL"`

	// SeedTimeout bounds the lookup of the stored snapshot of a new room.
	SeedTimeout string `yaml:"SeedTimeout"`
}

// DefaultConfig returns the default configuration of the Coordinator.
func DefaultConfig() *Config {
	return &Config{
		ConcurrencyWindow: "5s",
		LogCapacity:       1000,
		TombstoneTTL:      "72h",
		SeedTimeout:       "3s",
	}
}

// Validate validates this config.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.ConcurrencyWindow); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--concurrency-window" flag: %w`,
			c.ConcurrencyWindow,
			err,
		)
	}

	if c.LogCapacity <= 0 {
		return fmt.Errorf(
			`invalid argument "%d" for "--room-log-capacity" flag: %w`,
			c.LogCapacity,
			ErrInvalidLogCapacity,
		)
	}

	if _, err := time.ParseDuration(c.TombstoneTTL); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--room-tombstone-ttl" flag: %w`,
			c.TombstoneTTL,
			err,
		)
	}

	if _, err := time.ParseDuration(c.SeedTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--room-seed-timeout" flag: %w`,
			c.SeedTimeout,
			err,
		)
	}

	return nil
}

type durations struct {
	window       time.Duration
	tombstoneTTL time.Duration
	seedTimeout  time.Duration
}

func (c *Config) parse() (durations, error) {
	if err := c.Validate(); err != nil {
		return durations{}, err
	}

	window, _ := time.ParseDuration(c.ConcurrencyWindow)
	tombstoneTTL, _ := time.ParseDuration(c.TombstoneTTL)
	seedTimeout, _ := time.ParseDuration(c.SeedTimeout)
	return durations{
		window:       window,
		tombstoneTTL: tombstoneTTL,
		seedTimeout:  seedTimeout,
	}, nil
}
