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

package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPort occurs when the port in the config is invalid.
	ErrInvalidPort = errors.New("invalid port number for transport server")
	// ErrInvalidSendBufferSize occurs when the send buffer size is not positive.
	ErrInvalidSendBufferSize = errors.New("invalid send buffer size for transport server")
	// ErrInvalidMaxMessageBytes occurs when the message limit is not positive.
	ErrInvalidMaxMessageBytes = errors.New("invalid max message bytes for transport server")
)

// Config is the configuration for creating a Server instance.
type Config struct {
	// Port is the port number of the WebSocket and HTTP endpoints.
	Port int `yaml:"Port"`

	// PingInterval is the time between pings to a participant. A participant
	// that answers neither a ping nor sends a frame for twice this interval
	// is disconnected.
	PingInterval string `yaml:"PingInterval"`

	// WriteTimeout bounds each write to a participant.
	WriteTimeout string `yaml:"WriteTimeout"`

	// SendBufferSize is the number of frames queued for a participant. A
	// participant that falls further behind is disconnected.
	SendBufferSize int `yaml:"SendBufferSize"`

	// MaxMessageBytes is the largest frame accepted from a participant.
	MaxMessageBytes int64 `yaml:"MaxMessageBytes"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	if c.Port < 1 || 65535 < c.Port {
		return fmt.Errorf("must be between 1 and 65535, given %d: %w", c.Port, ErrInvalidPort)
	}

	if _, err := time.ParseDuration(c.PingInterval); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--transport-ping-interval" flag: %w`,
			c.PingInterval,
			err,
		)
	}

	if _, err := time.ParseDuration(c.WriteTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--transport-write-timeout" flag: %w`,
			c.WriteTimeout,
			err,
		)
	}

	if c.SendBufferSize <= 0 {
		return fmt.Errorf("given %d: %w", c.SendBufferSize, ErrInvalidSendBufferSize)
	}

	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("given %d: %w", c.MaxMessageBytes, ErrInvalidMaxMessageBytes)
	}

	return nil
}

type durations struct {
	pingInterval time.Duration
	writeTimeout time.Duration
}

func (c *Config) parse() (durations, error) {
	pingInterval, err := time.ParseDuration(c.PingInterval)
	if err != nil {
		return durations{}, fmt.Errorf("parse ping interval: %w", err)
	}
	writeTimeout, err := time.ParseDuration(c.WriteTimeout)
	if err != nil {
		return durations{}, fmt.Errorf("parse write timeout: %w", err)
	}

	return durations{
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
	}, nil
}
