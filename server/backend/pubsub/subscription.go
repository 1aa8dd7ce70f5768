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
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/pkg/cmap"
)

const (
	// publishTimeout is the timeout for delivering an event to one
	// subscription.
	publishTimeout = 100 * time.Millisecond

	// eventBufferSize is the buffer size of a subscription.
	eventBufferSize = 64
)

// Subscription represents a subscription of a subscriber to the events of a
// room.
type Subscription struct {
	id         string
	subscriber string
	mu         sync.Mutex
	closed     bool
	events     chan types.RoomEvent
}

// NewSubscription creates a new instance of Subscription.
func NewSubscription(subscriber string) *Subscription {
	return &Subscription{
		id:         xid.New().String(),
		subscriber: subscriber,
		events:     make(chan types.RoomEvent, eventBufferSize),
	}
}

// ID returns the id of this subscription.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the event channel of this subscription. It is closed when
// the subscription is cancelled.
func (s *Subscription) Events() <-chan types.RoomEvent {
	return s.events
}

// Subscriber returns the subscriber of this subscription.
func (s *Subscription) Subscriber() string {
	return s.subscriber
}

// Close closes all resources of this Subscription.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// Publish delivers the given event to the subscriber. It returns false if
// the subscription is closed or the subscriber did not keep up.
func (s *Subscription) Publish(event types.RoomEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- event:
		return true
	case <-time.After(publishTimeout):
		return false
	}
}

// Subscriptions is the set of local subscriptions of one room.
type Subscriptions struct {
	roomID      string
	internalMap *cmap.Map[string, *Subscription]
}

func newSubscriptions(roomID string) *Subscriptions {
	return &Subscriptions{
		roomID:      roomID,
		internalMap: cmap.New[string, *Subscription](),
	}
}

// Set adds the given subscription.
func (s *Subscriptions) Set(sub *Subscription) {
	s.internalMap.Set(sub.ID(), sub)
}

// Delete deletes and closes the subscription of the given id.
func (s *Subscriptions) Delete(id string) {
	s.internalMap.Delete(id, func(sub *Subscription, exists bool) bool {
		if exists {
			sub.Close()
		}
		return exists
	})
}

// Len returns the number of subscriptions.
func (s *Subscriptions) Len() int {
	return s.internalMap.Len()
}

// Publish delivers the given event to every subscription and returns the
// subscribers that missed it.
func (s *Subscriptions) Publish(event types.RoomEvent) []string {
	var missed []string
	for _, sub := range s.internalMap.Values() {
		if !sub.Publish(event) {
			missed = append(missed, sub.Subscriber())
		}
	}
	return missed
}

// Close closes every subscription.
func (s *Subscriptions) Close() {
	for _, sub := range s.internalMap.Values() {
		sub.Close()
	}
}

// localHub keeps the subscriptions of this process per room. Both bus
// implementations deliver events through it.
type localHub struct {
	rooms *cmap.Map[string, *Subscriptions]
}

func newLocalHub() *localHub {
	return &localHub{rooms: cmap.New[string, *Subscriptions]()}
}

// add adds a subscription and reports whether it is the first one of the
// room in this process.
func (h *localHub) add(roomID string, sub *Subscription) bool {
	first := false
	h.rooms.Upsert(roomID, func(subs *Subscriptions, exists bool) *Subscriptions {
		if !exists {
			subs = newSubscriptions(roomID)
			first = true
		}
		subs.Set(sub)
		return subs
	})
	return first
}

// remove removes a subscription and reports whether it was the last one of
// the room in this process.
func (h *localHub) remove(roomID string, sub *Subscription) bool {
	sub.Close()

	subs, ok := h.rooms.Get(roomID)
	if !ok {
		return false
	}
	subs.Delete(sub.ID())

	return h.rooms.Delete(roomID, func(subs *Subscriptions, exists bool) bool {
		return exists && subs.Len() == 0
	})
}

// deliver delivers the given event to the local subscriptions of its room.
func (h *localHub) deliver(event types.RoomEvent) []string {
	subs, ok := h.rooms.Get(event.RoomID)
	if !ok {
		return nil
	}
	return subs.Publish(event)
}

// roomIDs returns the ids of the rooms with local subscriptions.
func (h *localHub) roomIDs() []string {
	return h.rooms.Keys()
}

// close closes every subscription.
func (h *localHub) close() {
	for _, subs := range h.rooms.Values() {
		subs.Close()
	}
}
