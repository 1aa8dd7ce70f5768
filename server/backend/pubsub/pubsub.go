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

// Package pubsub provides the distribution bus: the fan-out of room events
// to every server process that holds participants of the room.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codesync-team/codesync/api/types"
)

var (
	// ErrBusUnavailable is returned when an event could not be published to
	// other processes. The event was still delivered to local subscribers.
	ErrBusUnavailable = errors.New("bus unavailable")

	// ErrBusClosed is returned when the bus is used after Close.
	ErrBusClosed = errors.New("bus closed")
)

// Bus publishes room events to the subscribers of a room in every process.
type Bus interface {
	// Publish publishes an event with the given payload to the room.
	Publish(ctx context.Context, roomID string, eventType types.RoomEventType, payload any) error

	// Subscribe subscribes the given subscriber to the events of the room.
	Subscribe(ctx context.Context, roomID string, subscriber string) (*Subscription, error)

	// Unsubscribe cancels the given subscription.
	Unsubscribe(ctx context.Context, roomID string, sub *Subscription)

	// Check returns an error if the bus cannot reach other processes.
	Check(ctx context.Context) error

	// Close closes the bus.
	Close() error
}

// NewEvent creates an event envelope published by the given instance.
func NewEvent(
	instance string,
	roomID string,
	eventType types.RoomEventType,
	payload any,
) (types.RoomEvent, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return types.RoomEvent{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return types.RoomEvent{
		Type:        eventType,
		RoomID:      roomID,
		Instance:    instance,
		Payload:     encoded,
		PublishedAt: time.Now(),
	}, nil
}

// DecodePayload decodes the payload of the given event into v.
func DecodePayload(event types.RoomEvent, v any) error {
	if err := json.Unmarshal(event.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", event.Type, err)
	}
	return nil
}

// channelName returns the name of the channel that carries the events of
// the given room.
func channelName(roomID string) string {
	return "room:" + roomID
}
