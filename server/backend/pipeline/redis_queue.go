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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// popTimeout bounds one blocking pop so that Close is noticed.
	popTimeout = time.Second

	// priorityWeight separates priorities in a score. It is larger than any
	// unix millisecond timestamp.
	priorityWeight = 1e13
)

// RedisQueue is a Queue backed by Redis sorted sets, one per job type. The
// score of a job orders it by priority, then by its enqueue time.
type RedisQueue struct {
	client    redis.UniversalClient
	namespace string
	closed    atomic.Bool
}

// NewRedisQueue creates a new RedisQueue. Keys are prefixed with the given
// namespace.
func NewRedisQueue(client redis.UniversalClient, namespace string) *RedisQueue {
	return &RedisQueue{
		client:    client,
		namespace: namespace,
	}
}

// Push adds the given job to the sorted set of its type.
func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	if err := q.client.ZAdd(ctx, q.key(job.Type), redis.Z{
		Score:  score(job),
		Member: encoded,
	}).Err(); err != nil {
		return fmt.Errorf("push job %s: %w", job.ID, err)
	}

	return nil
}

// Pop removes the job with the lowest score of the given type.
func (q *RedisQueue) Pop(ctx context.Context, jobType JobType) (Job, error) {
	for {
		if q.closed.Load() {
			return Job{}, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		result, err := q.client.BZPopMin(ctx, popTimeout, q.key(jobType)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("pop %s job: %w", jobType, err)
		}

		member, ok := result.Member.(string)
		if !ok {
			return Job{}, fmt.Errorf("pop %s job: unexpected member %T", jobType, result.Member)
		}

		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			return Job{}, fmt.Errorf("unmarshal %s job: %w", jobType, err)
		}
		return job, nil
	}
}

// Len returns the number of waiting jobs of the given type.
func (q *RedisQueue) Len(ctx context.Context, jobType JobType) (int, error) {
	count, err := q.client.ZCard(ctx, q.key(jobType)).Result()
	if err != nil {
		return 0, fmt.Errorf("count %s jobs: %w", jobType, err)
	}
	return int(count), nil
}

// Close closes the queue. The client is owned by the caller.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}

func (q *RedisQueue) key(jobType JobType) string {
	return fmt.Sprintf("%s:jobs:%s", q.namespace, jobType)
}

func score(job Job) float64 {
	return -float64(job.Priority)*priorityWeight + float64(job.EnqueuedAt.UnixMilli())
}
