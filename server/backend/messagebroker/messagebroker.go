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

// Package messagebroker emits the events of the synchronization core to
// external collaborators through a message broker.
package messagebroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codesync-team/codesync/api/types/events"
	"github.com/codesync-team/codesync/server/logging"
)

// Message represents a message that can be sent to the message broker.
type Message interface {
	// Key returns the partition key of the message.
	Key() string

	Marshal() ([]byte, error)
}

// OperationCommittedMessage represents a message for a committed operation.
type OperationCommittedMessage struct {
	EventType     events.CoreEventType `json:"event_type"`
	RoomID        string               `json:"room_id"`
	OperationID   string               `json:"operation_id"`
	OperationType string               `json:"operation_type"`
	Position      int                  `json:"position"`
	Length        int                  `json:"length"`
	AuthorID      string               `json:"author_id"`
	Version       int64                `json:"version"`
	Timestamp     time.Time            `json:"timestamp"`
}

// RoomEvictedMessage represents a message for an evicted room.
type RoomEvictedMessage struct {
	EventType    events.CoreEventType `json:"event_type"`
	RoomID       string               `json:"room_id"`
	Version      int64                `json:"version"`
	LastActivity time.Time            `json:"last_activity"`
	Timestamp    time.Time            `json:"timestamp"`
}

// PipelineJobFailedMessage represents a message for a pipeline job that
// exhausted its attempts.
type PipelineJobFailedMessage struct {
	EventType events.CoreEventType `json:"event_type"`
	JobID     string               `json:"job_id"`
	JobType   string               `json:"job_type"`
	RoomID    string               `json:"room_id,omitempty"`
	Attempts  int                  `json:"attempts"`
	Error     string               `json:"error"`
	Payload   json.RawMessage      `json:"payload,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Key returns the room of the operation.
func (m OperationCommittedMessage) Key() string {
	return m.RoomID
}

// Marshal marshals the operation committed message to JSON.
func (m OperationCommittedMessage) Marshal() ([]byte, error) {
	return marshal(m)
}

// Key returns the evicted room.
func (m RoomEvictedMessage) Key() string {
	return m.RoomID
}

// Marshal marshals the room evicted message to JSON.
func (m RoomEvictedMessage) Marshal() ([]byte, error) {
	return marshal(m)
}

// Key returns the job type.
func (m PipelineJobFailedMessage) Key() string {
	return m.JobType
}

// Marshal marshals the pipeline job failed message to JSON.
func (m PipelineJobFailedMessage) Marshal() ([]byte, error) {
	return marshal(m)
}

func marshal(m any) ([]byte, error) {
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	return encoded, nil
}

// Brokers manages message brokers for different event types.
type Brokers struct {
	operations Broker
	rooms      Broker
	pipeline   Broker
}

// Operations returns the broker for operation events.
func (b *Brokers) Operations() Broker {
	return b.operations
}

// Rooms returns the broker for room events.
func (b *Brokers) Rooms() Broker {
	return b.rooms
}

// Pipeline returns the broker for pipeline events.
func (b *Brokers) Pipeline() Broker {
	return b.pipeline
}

// NewBrokers creates a new Brokers instance with the given brokers.
func NewBrokers(operations, rooms, pipeline Broker) *Brokers {
	return &Brokers{
		operations: operations,
		rooms:      rooms,
		pipeline:   pipeline,
	}
}

// Close closes every broker.
func (b *Brokers) Close() error {
	return errors.Join(
		b.operations.Close(),
		b.rooms.Close(),
		b.pipeline.Close(),
	)
}

// Broker is an interface for the message broker.
type Broker interface {
	Produce(ctx context.Context, msg Message) error
	Close() error
}

// Ensure creates a message broker based on the given configuration.
// If the configuration is nil or invalid, it returns a Brokers instance with
// DummyBroker for all fields, allowing callers to use the brokers without nil checks.
func Ensure(kafkaConf *Config) *Brokers {
	dummy := &DummyBroker{}
	brokers := NewBrokers(dummy, dummy, dummy)

	if kafkaConf == nil {
		return brokers
	}

	if err := kafkaConf.Validate(); err != nil {
		logging.DefaultLogger().Warnf("invalid kafka configuration: %v", err)
		return brokers
	}

	topics := []string{
		kafkaConf.OperationsTopic,
		kafkaConf.RoomsTopic,
		kafkaConf.PipelineTopic,
	}

	logging.DefaultLogger().Infof(
		"connecting to kafka: %s, topics: %s",
		kafkaConf.Addresses,
		strings.Join(topics, ","),
	)

	if kafkaConf.OperationsTopic != "" {
		brokers.operations = newKafkaBroker(kafkaConf, kafkaConf.OperationsTopic)
	}
	if kafkaConf.RoomsTopic != "" {
		brokers.rooms = newKafkaBroker(kafkaConf, kafkaConf.RoomsTopic)
	}
	if kafkaConf.PipelineTopic != "" {
		brokers.pipeline = newKafkaBroker(kafkaConf, kafkaConf.PipelineTopic)
	}

	return brokers
}
