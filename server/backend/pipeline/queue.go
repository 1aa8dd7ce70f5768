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
	"errors"
)

var (
	// ErrQueueClosed is returned when a queue is used after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// Queue holds the waiting jobs of the pipeline. Jobs of one type are popped
// in priority order, then in the order they were first pushed. A job pushed
// again keeps its original place among jobs of the same priority.
type Queue interface {
	// Push adds the given job to the queue of its type.
	Push(ctx context.Context, job Job) error

	// Pop removes the next job of the given type. It blocks until a job is
	// available or the context is done.
	Pop(ctx context.Context, jobType JobType) (Job, error)

	// Len returns the number of waiting jobs of the given type.
	Len(ctx context.Context, jobType JobType) (int, error)

	// Close closes the queue. Blocked Pop calls return ErrQueueClosed.
	Close() error
}
