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
	"context"
	"sync"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/pkg/cmap"
	"github.com/codesync-team/codesync/server/backend/pubsub"
	"github.com/codesync-team/codesync/server/logging"
)

// hub relays the bus events of one room to the participants connected to
// this process.
type hub struct {
	roomID string
	sub    *pubsub.Subscription
	logger logging.Logger

	mu    sync.RWMutex
	conns map[string]*conn
}

func newHub(roomID string) *hub {
	return &hub{
		roomID: roomID,
		logger: logging.New("hub", logging.NewField("room", roomID)),
		conns:  make(map[string]*conn),
	}
}

func (h *hub) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c.id] = c
}

// remove removes the given connection and returns the number of remaining
// connections.
func (h *hub) remove(c *conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, c.id)
	return len(h.conns)
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.conns)
}

func (h *hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.conns {
		c.close()
	}
}

// run relays events until the subscription is closed.
func (h *hub) run() {
	for event := range h.sub.Events() {
		h.relay(event)
	}
}

func (h *hub) relay(event types.RoomEvent) {
	switch event.Type {
	case types.OperationAppliedEvent:
		var applied types.OperationApplied
		if err := pubsub.DecodePayload(event, &applied); err != nil {
			h.logger.Warn(err)
			return
		}
		if applied.Reset {
			h.broadcast(func(*conn) ServerFrame {
				return resyncFrame(applied.Content, applied.Version)
			})
			return
		}

		op := applied.Operation
		h.broadcast(func(c *conn) ServerFrame {
			if c.id == applied.ConnectionID {
				return ServerFrame{Type: FrameAck, OperationID: op.ID, Version: applied.Version}
			}
			return ServerFrame{
				Type:      FrameOperation,
				Operation: &op,
				Version:   applied.Version,
				Content:   applied.Content,
				Author:    applied.AuthorID,
			}
		})
	case types.RoomResetEvent:
		var snapshot types.Snapshot
		if err := pubsub.DecodePayload(event, &snapshot); err != nil {
			h.logger.Warn(err)
			return
		}
		h.broadcast(func(*conn) ServerFrame {
			return resyncFrame(snapshot.Content, snapshot.Version)
		})
	case types.UserJoinedEvent, types.UserLeftEvent:
		var changed types.MembershipChanged
		if err := pubsub.DecodePayload(event, &changed); err != nil {
			h.logger.Warn(err)
			return
		}
		h.broadcast(func(*conn) ServerFrame {
			return ServerFrame{Type: FrameParticipants, Editors: changed.Editors}
		})
	default:
		h.logger.Debugf("skip %s event", event.Type)
	}
}

func (h *hub) broadcast(frameOf func(c *conn) ServerFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.conns {
		c.deliver(frameOf(c))
	}
}

// hubs holds the hubs of the rooms with participants on this process.
type hubs struct {
	bus  pubsub.Bus
	name string
	m    *cmap.Map[string, *hub]
}

func newHubs(bus pubsub.Bus, name string) *hubs {
	return &hubs{
		bus:  bus,
		name: name,
		m:    cmap.New[string, *hub](),
	}
}

// attach adds the given connection to the hub of its room. The first
// connection of a room subscribes this process to the room's events.
func (hs *hubs) attach(ctx context.Context, c *conn) error {
	var subErr error
	hs.m.Upsert(c.roomID, func(h *hub, exists bool) *hub {
		if !exists {
			h = newHub(c.roomID)
			sub, err := hs.bus.Subscribe(ctx, c.roomID, hs.name)
			if err != nil {
				subErr = err
				return h
			}
			h.sub = sub
			go h.run()
		}
		h.add(c)
		return h
	})

	if subErr != nil {
		hs.m.Delete(c.roomID, func(h *hub, exists bool) bool {
			return exists && h.sub == nil
		})
		return subErr
	}
	return nil
}

// detach removes the given connection from the hub of its room. The last
// connection of a room unsubscribes this process from the room's events.
func (hs *hubs) detach(ctx context.Context, c *conn) {
	hs.m.Delete(c.roomID, func(h *hub, exists bool) bool {
		if !exists || h.remove(c) > 0 {
			return false
		}
		if h.sub != nil {
			hs.bus.Unsubscribe(ctx, c.roomID, h.sub)
		}
		return true
	})
}

// closeAll closes every connection of every room.
func (hs *hubs) closeAll() {
	hs.m.Range(func(_ string, h *hub) bool {
		h.closeAll()
		return true
	})
}

// len returns the number of connections on this process.
func (hs *hubs) len() int {
	count := 0
	hs.m.Range(func(_ string, h *hub) bool {
		count += h.len()
		return true
	})
	return count
}
