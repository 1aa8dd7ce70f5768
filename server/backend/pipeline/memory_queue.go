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
	"container/heap"
	"context"
	"sync"
)

// MemoryQueue is an in-process Queue. Waiting jobs are lost when the process
// exits.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[JobType]*jobHeap
	notify map[JobType]chan struct{}
	seq    uint64

	closed chan struct{}
	once   sync.Once
}

// NewMemoryQueue creates a new instance of MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		queues: make(map[JobType]*jobHeap),
		notify: make(map[JobType]chan struct{}),
		closed: make(chan struct{}),
	}
}

// Push adds the given job to the queue of its type.
func (q *MemoryQueue) Push(_ context.Context, job Job) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	q.mu.Lock()
	if job.Seq == 0 {
		q.seq++
		job.Seq = q.seq
	}
	heap.Push(q.queueOf(job.Type), job)
	notify := q.notifyOf(job.Type)
	q.mu.Unlock()

	signal(notify)
	return nil
}

// Pop removes the next job of the given type.
func (q *MemoryQueue) Pop(ctx context.Context, jobType JobType) (Job, error) {
	for {
		q.mu.Lock()
		queue := q.queueOf(jobType)
		notify := q.notifyOf(jobType)
		if queue.Len() > 0 {
			job := heap.Pop(queue).(Job)
			remaining := queue.Len()
			q.mu.Unlock()

			if remaining > 0 {
				signal(notify)
			}
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-notify:
		case <-q.closed:
			return Job{}, ErrQueueClosed
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
}

// Len returns the number of waiting jobs of the given type.
func (q *MemoryQueue) Len(_ context.Context, jobType JobType) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.queueOf(jobType).Len(), nil
}

// Close closes the queue.
func (q *MemoryQueue) Close() error {
	q.once.Do(func() {
		close(q.closed)
	})
	return nil
}

// queueOf returns the heap of the given type. The caller must hold mu.
func (q *MemoryQueue) queueOf(jobType JobType) *jobHeap {
	queue, ok := q.queues[jobType]
	if !ok {
		queue = &jobHeap{}
		q.queues[jobType] = queue
	}
	return queue
}

// notifyOf returns the wake-up channel of the given type. The caller must
// hold mu.
func (q *MemoryQueue) notifyOf(jobType JobType) chan struct{} {
	notify, ok := q.notify[jobType]
	if !ok {
		notify = make(chan struct{}, 1)
		q.notify[jobType] = notify
	}
	return notify
}

func signal(notify chan struct{}) {
	select {
	case notify <- struct{}{}:
	default:
	}
}

// jobHeap implements heap.Interface. Higher priority comes first, then lower
// sequence.
type jobHeap []Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(Job))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = Job{}
	*h = old[:n-1]
	return job
}
