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

package pubsub

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/server/logging"
)

// Memory is the in-process implementation of Bus, used for a single server.
type Memory struct {
	instance string
	hub      *localHub
	closed   atomic.Bool
}

// NewMemory creates an instance of Memory.
func NewMemory(instance string) *Memory {
	return &Memory{
		instance: instance,
		hub:      newLocalHub(),
	}
}

// Publish publishes the given event to the local subscribers of the room.
func (m *Memory) Publish(
	ctx context.Context,
	roomID string,
	eventType types.RoomEventType,
	payload any,
) error {
	if m.closed.Load() {
		return ErrBusClosed
	}

	event, err := NewEvent(m.instance, roomID, eventType, payload)
	if err != nil {
		return err
	}

	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(`Publish(%s,%s)`, roomID, eventType)
	}

	for _, subscriber := range m.hub.deliver(event) {
		logging.From(ctx).Infof("Publish(%s,%s) to %s timeout or closed", roomID, eventType, subscriber)
	}
	return nil
}

// Subscribe subscribes to the events of the given room.
func (m *Memory) Subscribe(ctx context.Context, roomID string, subscriber string) (*Subscription, error) {
	if m.closed.Load() {
		return nil, ErrBusClosed
	}

	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(`Subscribe(%s,%s)`, roomID, subscriber)
	}

	sub := NewSubscription(subscriber)
	m.hub.add(roomID, sub)
	return sub, nil
}

// Unsubscribe cancels the given subscription.
func (m *Memory) Unsubscribe(ctx context.Context, roomID string, sub *Subscription) {
	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(`Unsubscribe(%s,%s)`, roomID, sub.Subscriber())
	}

	m.hub.remove(roomID, sub)
}

// Check always succeeds: there are no other processes to reach.
func (m *Memory) Check(_ context.Context) error {
	if m.closed.Load() {
		return ErrBusClosed
	}
	return nil
}

// Close closes every subscription.
func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.hub.close()
	return nil
}
