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
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/server/logging"
)

// Redis is the implementation of Bus on Redis pub/sub. Events of a room are
// published on the channel "room:{id}", and this process subscribes to the
// channel while it holds at least one local subscription of the room.
//
// When Redis cannot be reached, events published by this process are still
// delivered to its local subscribers and the bus reports itself unhealthy
// until a publish or a check succeeds again.
type Redis struct {
	instance string
	client   redis.UniversalClient
	logger   logging.Logger
	hub      *localHub

	mu       sync.Mutex
	pubSub   *redis.PubSub
	receive  sync.Once
	done     chan struct{}
	healthy  atomic.Bool
	lastErr  atomic.Value
	isClosed atomic.Bool
}

// NewRedis creates an instance of Redis on the given client.
func NewRedis(instance string, client redis.UniversalClient) *Redis {
	r := &Redis{
		instance: instance,
		client:   client,
		logger:   logging.New("bus"),
		hub:      newLocalHub(),
		done:     make(chan struct{}),
	}
	r.pubSub = client.Subscribe(context.Background())
	r.healthy.Store(true)
	return r
}

// Publish publishes the given event on the channel of the room.
func (r *Redis) Publish(
	ctx context.Context,
	roomID string,
	eventType types.RoomEventType,
	payload any,
) error {
	if r.isClosed.Load() {
		return ErrBusClosed
	}

	event, err := NewEvent(r.instance, roomID, eventType, payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(`Publish(%s,%s)`, roomID, eventType)
	}

	if err := r.client.Publish(ctx, channelName(roomID), encoded).Err(); err != nil {
		r.markUnhealthy(err)
		r.logger.Warnf("publish %s to room %s, delivering locally: %v", eventType, roomID, err)
		r.hub.deliver(event)
		return fmt.Errorf("publish %s to room %s: %w: %s", eventType, roomID, ErrBusUnavailable, err)
	}

	r.healthy.Store(true)
	return nil
}

// Subscribe subscribes to the events of the given room. The first local
// subscription of a room subscribes this process to the room's channel.
func (r *Redis) Subscribe(ctx context.Context, roomID string, subscriber string) (*Subscription, error) {
	if r.isClosed.Load() {
		return nil, ErrBusClosed
	}

	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(`Subscribe(%s,%s)`, roomID, subscriber)
	}

	sub := NewSubscription(subscriber)
	if !r.hub.add(roomID, sub) {
		return sub, nil
	}

	r.mu.Lock()
	err := r.pubSub.Subscribe(ctx, channelName(roomID))
	r.mu.Unlock()
	if err != nil {
		// Local delivery keeps working for events published by this process.
		r.markUnhealthy(err)
		r.logger.Warnf("subscribe to room %s: %v", roomID, err)
	}

	r.receive.Do(func() {
		go r.receiveLoop()
	})
	return sub, nil
}

// Unsubscribe cancels the given subscription. The last local subscription
// of a room unsubscribes this process from the room's channel.
func (r *Redis) Unsubscribe(ctx context.Context, roomID string, sub *Subscription) {
	if logging.Enabled(zap.DebugLevel) {
		logging.From(ctx).Debugf(`Unsubscribe(%s,%s)`, roomID, sub.Subscriber())
	}

	if !r.hub.remove(roomID, sub) || r.isClosed.Load() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pubSub.Unsubscribe(ctx, channelName(roomID)); err != nil {
		r.logger.Warnf("unsubscribe from room %s: %v", roomID, err)
	}
}

func (r *Redis) receiveLoop() {
	defer close(r.done)

	for msg := range r.pubSub.Channel() {
		var event types.RoomEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			r.logger.Warnf("decode event on %s: %v", msg.Channel, err)
			continue
		}
		if event.RoomID == "" {
			event.RoomID = strings.TrimPrefix(msg.Channel, "room:")
		}

		for _, subscriber := range r.hub.deliver(event) {
			r.logger.Infof("deliver %s of room %s to %s timeout or closed", event.Type, event.RoomID, subscriber)
		}
	}
}

// Check pings Redis and updates the health of this bus.
func (r *Redis) Check(ctx context.Context) error {
	if r.isClosed.Load() {
		return ErrBusClosed
	}

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.markUnhealthy(err)
		return fmt.Errorf("ping redis: %w: %s", ErrBusUnavailable, err)
	}

	if !r.healthy.Load() {
		r.resubscribe(ctx)
	}
	r.healthy.Store(true)
	return nil
}

// Healthy returns whether the last interaction with Redis succeeded.
func (r *Redis) Healthy() bool {
	return r.healthy.Load()
}

// LastError returns the last error observed while talking to Redis.
func (r *Redis) LastError() error {
	if err, ok := r.lastErr.Load().(error); ok {
		return err
	}
	return nil
}

func (r *Redis) markUnhealthy(err error) {
	r.healthy.Store(false)
	r.lastErr.Store(err)
}

// resubscribe subscribes again to the channels of every room with local
// subscriptions, in case a subscription failed while Redis was down.
func (r *Redis) resubscribe(ctx context.Context) {
	var channels []string
	for _, roomID := range r.hub.roomIDs() {
		channels = append(channels, channelName(roomID))
	}
	if len(channels) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pubSub.Subscribe(ctx, channels...); err != nil {
		r.logger.Warnf("resubscribe %d rooms: %v", len(channels), err)
	}
}

// Close closes the subscription connection and every local subscription.
// The client is owned by the caller.
func (r *Redis) Close() error {
	if r.isClosed.Swap(true) {
		return nil
	}

	r.hub.close()
	if err := r.pubSub.Close(); err != nil {
		return fmt.Errorf("close redis pubsub: %w", err)
	}

	started := true
	r.receive.Do(func() { started = false })
	if started {
		<-r.done
	}
	return nil
}
