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

package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	// BackoffFixed waits the same delay before every retry.
	BackoffFixed = "fixed"

	// BackoffExponential doubles the delay before every retry.
	BackoffExponential = "exponential"
)

var (
	// ErrInvalidBackoffType is returned when the backoff type is unknown.
	ErrInvalidBackoffType = errors.New("invalid backoff type")

	// ErrInvalidTypeConfig is returned when a job type config is out of range.
	ErrInvalidTypeConfig = errors.New("invalid job type config")
)

// Config is the configuration of the pipeline.
type Config struct {
	// MaxPending is the number of waiting jobs of one type above which
	// Enqueue rejects new jobs.
	MaxPending int `yaml:"MaxPending"`

	// LaneBufferSize is the number of jobs a worker lane holds. Jobs for a
	// full lane are parked by the dispatcher without holding up other lanes.
	LaneBufferSize int `yaml:"LaneBufferSize"`

	// LaneTimeout is how long jobs stay parked for a full lane before they
	// go back to the queue.
	LaneTimeout string `yaml:"LaneTimeout"`

	Operations TypeConfig `yaml:"Operations"`
	Rooms      TypeConfig `yaml:"Rooms"`
	Cleanup    TypeConfig `yaml:"Cleanup"`
	Metrics    TypeConfig `yaml:"Metrics"`
}

// TypeConfig is the configuration of one job type.
type TypeConfig struct {
	// Concurrency is the number of worker lanes. Jobs of one room always run
	// on the same lane.
	Concurrency int `yaml:"Concurrency"`

	// Attempts is the maximum number of handler invocations of a job.
	Attempts int `yaml:"Attempts"`

	Backoff BackoffConfig `yaml:"Backoff"`

	// Timeout bounds one handler invocation.
	Timeout string `yaml:"Timeout"`

	// Priority is the default priority of the jobs of this type.
	Priority int `yaml:"Priority"`

	// KeepCompleted and KeepFailed are the numbers of finished jobs kept
	// for inspection.
	KeepCompleted int `yaml:"KeepCompleted"`
	KeepFailed    int `yaml:"KeepFailed"`
}

// BackoffConfig is the retry delay policy of a job type.
type BackoffConfig struct {
	Type  string `yaml:"Type"`
	Delay string `yaml:"Delay"`
}

// DefaultConfig returns the default configuration of the pipeline.
func DefaultConfig() *Config {
	return &Config{
		MaxPending:     10000,
		LaneBufferSize: 64,
		LaneTimeout:    "5s",
		Operations: TypeConfig{
			Concurrency:   10,
			Attempts:      3,
			Backoff:       BackoffConfig{Type: BackoffExponential, Delay: "2s"},
			Timeout:       "10s",
			Priority:      10,
			KeepCompleted: 100,
			KeepFailed:    50,
		},
		Rooms: TypeConfig{
			Concurrency:   5,
			Attempts:      2,
			Backoff:       BackoffConfig{Type: BackoffFixed, Delay: "1s"},
			Timeout:       "10s",
			Priority:      5,
			KeepCompleted: 50,
			KeepFailed:    25,
		},
		Cleanup: TypeConfig{
			Concurrency:   1,
			Attempts:      1,
			Backoff:       BackoffConfig{Type: BackoffFixed, Delay: "1s"},
			Timeout:       "1m",
			Priority:      1,
			KeepCompleted: 10,
			KeepFailed:    10,
		},
		Metrics: TypeConfig{
			Concurrency:   1,
			Attempts:      1,
			Backoff:       BackoffConfig{Type: BackoffFixed, Delay: "1s"},
			Timeout:       "1m",
			Priority:      1,
			KeepCompleted: 20,
			KeepFailed:    5,
		},
	}
}

// EnsureDefaultValue fills the fields left empty by a config file with the
// values of defaults.
func (c *Config) EnsureDefaultValue(defaults *Config) {
	if c.MaxPending == 0 {
		c.MaxPending = defaults.MaxPending
	}
	if c.LaneBufferSize == 0 {
		c.LaneBufferSize = defaults.LaneBufferSize
	}
	if c.LaneTimeout == "" {
		c.LaneTimeout = defaults.LaneTimeout
	}

	c.Operations.ensureDefaultValue(defaults.Operations)
	c.Rooms.ensureDefaultValue(defaults.Rooms)
	c.Cleanup.ensureDefaultValue(defaults.Cleanup)
	c.Metrics.ensureDefaultValue(defaults.Metrics)
}

func (c *TypeConfig) ensureDefaultValue(defaults TypeConfig) {
	if c.Concurrency == 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.Attempts == 0 {
		c.Attempts = defaults.Attempts
	}
	if c.Backoff.Type == "" {
		c.Backoff.Type = defaults.Backoff.Type
	}
	if c.Backoff.Delay == "" {
		c.Backoff.Delay = defaults.Backoff.Delay
	}
	if c.Timeout == "" {
		c.Timeout = defaults.Timeout
	}
	if c.Priority == 0 {
		c.Priority = defaults.Priority
	}
	if c.KeepCompleted == 0 {
		c.KeepCompleted = defaults.KeepCompleted
	}
	if c.KeepFailed == 0 {
		c.KeepFailed = defaults.KeepFailed
	}
}

// TypeConfig returns the configuration of the given job type.
func (c *Config) TypeConfig(jobType JobType) (TypeConfig, bool) {
	switch jobType {
	case ApplyOperation:
		return c.Operations, true
	case RoomMembershipChanged:
		return c.Rooms, true
	case Cleanup:
		return c.Cleanup, true
	case CollectMetrics:
		return c.Metrics, true
	default:
		return TypeConfig{}, false
	}
}

// Validate validates this config.
func (c *Config) Validate() error {
	if c.MaxPending <= 0 {
		return fmt.Errorf(`invalid argument %d for "--pipeline-max-pending" flag`, c.MaxPending)
	}
	if c.LaneBufferSize <= 0 {
		return fmt.Errorf(`invalid argument %d for "--pipeline-lane-buffer-size" flag`, c.LaneBufferSize)
	}
	if _, err := time.ParseDuration(c.LaneTimeout); err != nil {
		return fmt.Errorf(`invalid argument %s for "--pipeline-lane-timeout" flag: %w`, c.LaneTimeout, err)
	}

	for _, jobType := range JobTypes {
		tc, _ := c.TypeConfig(jobType)
		if err := tc.Validate(); err != nil {
			return fmt.Errorf("%s: %w", jobType, err)
		}
	}
	return nil
}

// ParseLaneTimeout parses the lane timeout.
func (c *Config) ParseLaneTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.LaneTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse lane timeout %s: %w", c.LaneTimeout, err)
	}
	return timeout, nil
}

// Validate validates this config.
func (c *TypeConfig) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency %d: %w", c.Concurrency, ErrInvalidTypeConfig)
	}
	if c.Attempts <= 0 {
		return fmt.Errorf("attempts %d: %w", c.Attempts, ErrInvalidTypeConfig)
	}
	if c.KeepCompleted < 0 || c.KeepFailed < 0 {
		return fmt.Errorf("retention %d/%d: %w", c.KeepCompleted, c.KeepFailed, ErrInvalidTypeConfig)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("timeout %s: %w", c.Timeout, err)
	}
	return c.Backoff.Validate()
}

// ParseTimeout parses the handler timeout.
func (c *TypeConfig) ParseTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parse timeout %s: %w", c.Timeout, err)
	}
	return timeout, nil
}

// Validate validates this config.
func (c *BackoffConfig) Validate() error {
	if c.Type != BackoffFixed && c.Type != BackoffExponential {
		return fmt.Errorf("%s: %w", c.Type, ErrInvalidBackoffType)
	}
	if _, err := time.ParseDuration(c.Delay); err != nil {
		return fmt.Errorf("backoff delay %s: %w", c.Delay, err)
	}
	return nil
}

// NewBackOff creates the retry delay policy of this config. Exponential
// delays start at Delay and double without jitter, so that a job with three
// attempts waits Delay and then twice Delay.
func (c *BackoffConfig) NewBackOff() (backoff.BackOff, error) {
	delay, err := time.ParseDuration(c.Delay)
	if err != nil {
		return nil, fmt.Errorf("parse backoff delay %s: %w", c.Delay, err)
	}

	switch c.Type {
	case BackoffFixed:
		return backoff.NewConstantBackOff(delay), nil
	case BackoffExponential:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = delay
		b.RandomizationFactor = 0
		b.Multiplier = 2
		b.MaxInterval = 64 * delay
		b.MaxElapsedTime = 0
		b.Reset()
		return b, nil
	default:
		return nil, fmt.Errorf("%s: %w", c.Type, ErrInvalidBackoffType)
	}
}
