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

// Package pipeline provides the job pipeline that processes operations and
// room events. Jobs are queued per type, retried with backoff and handed to
// worker lanes so that the jobs of one room are handled one at a time in
// queue order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/codesync-team/codesync/server/logging"
	"github.com/codesync-team/codesync/server/profiling/prometheus"
)

var (
	// ErrQueueFull is returned when too many jobs of a type are waiting.
	ErrQueueFull = errors.New("queue full")

	// ErrUnknownJobType is returned when a job type has no configuration or
	// no handler.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrPipelineClosed is returned when the pipeline is used after Close.
	ErrPipelineClosed = errors.New("pipeline closed")
)

// Handler processes one job. Returning an error wrapped with Unrecoverable
// fails the job without retrying it.
type Handler func(ctx context.Context, job Job) error

// ExhaustedHook is called when a job has failed for good.
type ExhaustedHook func(ctx context.Context, job Job, err error)

// JobCounts are the numbers of jobs of one type in each state.
type JobCounts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Pipeline dispatches queued jobs to their handlers.
type Pipeline struct {
	conf        *Config
	laneTimeout time.Duration
	queue       Queue
	store       *Store
	metrics     *prometheus.Metrics
	logger      logging.Logger

	handlers    map[JobType]Handler
	active      map[JobType]*atomic.Int64
	parked      map[JobType]*atomic.Int64
	onExhausted ExhaustedHook

	pauseMu sync.Mutex
	resumed chan struct{}

	started  atomic.Bool
	closed   atomic.Bool
	closing  chan struct{}
	draining chan struct{}
	popCtx   context.Context
	cancel   context.CancelFunc

	dispatchers sync.WaitGroup
	lanes       sync.WaitGroup
}

// New creates a new pipeline over the given queue.
func New(conf *Config, queue Queue, metrics *prometheus.Metrics) (*Pipeline, error) {
	laneTimeout, err := conf.ParseLaneTimeout()
	if err != nil {
		return nil, err
	}

	store, err := NewStore(conf)
	if err != nil {
		return nil, err
	}

	active := make(map[JobType]*atomic.Int64)
	parked := make(map[JobType]*atomic.Int64)
	for _, jobType := range JobTypes {
		active[jobType] = &atomic.Int64{}
		parked[jobType] = &atomic.Int64{}
	}

	resumed := make(chan struct{})
	close(resumed)

	popCtx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		conf:        conf,
		laneTimeout: laneTimeout,
		queue:       queue,
		store:       store,
		metrics:     metrics,
		logger:      logging.New("pipeline"),
		handlers:    make(map[JobType]Handler),
		active:      active,
		parked:      parked,
		resumed:     resumed,
		closing:     make(chan struct{}),
		draining:    make(chan struct{}),
		popCtx:      popCtx,
		cancel:      cancel,
	}, nil
}

// Register registers the handler of the given job type. It must be called
// before Start.
func (p *Pipeline) Register(jobType JobType, handler Handler) {
	p.handlers[jobType] = handler
}

// OnExhausted sets the hook called when a job has failed for good. It must be
// called before Start.
func (p *Pipeline) OnExhausted(hook ExhaustedHook) {
	p.onExhausted = hook
}

// Start starts a dispatcher and the worker lanes of every registered type.
func (p *Pipeline) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}

	for _, jobType := range JobTypes {
		handler, ok := p.handlers[jobType]
		if !ok {
			continue
		}
		tc, _ := p.conf.TypeConfig(jobType)
		timeout, err := tc.ParseTimeout()
		if err != nil {
			return err
		}

		freed := make(chan struct{}, 1)
		lanes := make([]chan Job, tc.Concurrency)
		for i := range lanes {
			lanes[i] = make(chan Job, p.conf.LaneBufferSize)
			p.lanes.Add(1)
			go p.runLane(lanes[i], freed, handler, tc, timeout)
		}

		popped := make(chan Job)
		p.dispatchers.Add(2)
		go p.pop(jobType, popped)
		go p.dispatch(jobType, lanes, popped, freed)
	}

	return nil
}

// Enqueue queues a job of the given type. A priority of zero means the
// default priority of the type.
func (p *Pipeline) Enqueue(
	ctx context.Context,
	jobType JobType,
	roomID string,
	payload any,
	priority int,
) (Job, error) {
	if p.closed.Load() {
		return Job{}, ErrPipelineClosed
	}

	tc, ok := p.conf.TypeConfig(jobType)
	if !ok {
		return Job{}, fmt.Errorf("enqueue %s: %w", jobType, ErrUnknownJobType)
	}
	if priority == 0 {
		priority = tc.Priority
	}

	waiting, err := p.waiting(ctx, jobType)
	if err != nil {
		return Job{}, err
	}
	if waiting >= p.conf.MaxPending {
		p.metrics.AddPipelineJob(string(jobType), prometheus.JobRejected)
		return Job{}, fmt.Errorf("enqueue %s with %d waiting: %w", jobType, waiting, ErrQueueFull)
	}

	job, err := NewJob(jobType, roomID, payload, priority)
	if err != nil {
		return Job{}, err
	}
	if err := p.queue.Push(ctx, job); err != nil {
		return Job{}, err
	}

	return job, nil
}

// Stats returns the job counts of every type.
func (p *Pipeline) Stats(ctx context.Context) (map[JobType]JobCounts, error) {
	stats := make(map[JobType]JobCounts)
	for _, jobType := range JobTypes {
		waiting, err := p.waiting(ctx, jobType)
		if err != nil {
			return nil, err
		}
		completed, err := p.store.Count(jobType, StateCompleted)
		if err != nil {
			return nil, err
		}
		failed, err := p.store.Count(jobType, StateFailed)
		if err != nil {
			return nil, err
		}

		stats[jobType] = JobCounts{
			Waiting:   waiting,
			Active:    int(p.active[jobType].Load()),
			Completed: completed,
			Failed:    failed,
		}
	}
	return stats, nil
}

// waiting returns the number of jobs of the given type that are queued or
// parked for a full lane.
func (p *Pipeline) waiting(ctx context.Context, jobType JobType) (int, error) {
	queued, err := p.queue.Len(ctx, jobType)
	if err != nil {
		return 0, err
	}
	return queued + int(p.parked[jobType].Load()), nil
}

// FailedJobs returns the kept failed jobs of the given type, newest first.
func (p *Pipeline) FailedJobs(jobType JobType) ([]Job, error) {
	return p.store.List(jobType, StateFailed)
}

// Pause stops dispatching new jobs. Jobs already handed to a lane still run.
func (p *Pipeline) Pause() {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()

	select {
	case <-p.resumed:
		p.resumed = make(chan struct{})
	default:
	}
}

// Resume resumes dispatching jobs.
func (p *Pipeline) Resume() {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()

	select {
	case <-p.resumed:
	default:
		close(p.resumed)
	}
}

// Close stops dispatching, lets the lanes finish the jobs they hold and waits
// for them until the given context is done. Jobs still waiting for a retry
// are pushed back to the queue.
func (p *Pipeline) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(p.closing)
	p.cancel()
	p.dispatchers.Wait()
	close(p.draining)

	done := make(chan struct{})
	go func() {
		p.lanes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain pipeline: %w", ctx.Err())
	}
}

// waitResumed blocks while the pipeline is paused. It returns false if the
// pipeline is closing.
func (p *Pipeline) waitResumed() bool {
	select {
	case <-p.resumedCh():
		return true
	case <-p.closing:
		return false
	}
}

func (p *Pipeline) resumedCh() <-chan struct{} {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()

	return p.resumed
}

// pop pops jobs of the given type and passes them to the dispatcher.
func (p *Pipeline) pop(jobType JobType, popped chan<- Job) {
	defer p.dispatchers.Done()

	for {
		if !p.waitResumed() {
			return
		}

		job, err := p.queue.Pop(p.popCtx, jobType)
		if err != nil {
			if p.closed.Load() || errors.Is(err, ErrQueueClosed) {
				return
			}
			p.logger.Errorf("pop %s job: %v", jobType, err)
			select {
			case <-time.After(p.laneTimeout):
			case <-p.closing:
				return
			}
			continue
		}

		select {
		case popped <- job:
		case <-p.closing:
			p.requeue(job)
			return
		}
	}
}

// parkedJob is a job waiting for room in its lane.
type parkedJob struct {
	job   Job
	since time.Time
}

// dispatch hands popped jobs to the lane of their room. A job whose lane is
// full is parked behind the earlier parked jobs of that lane, so a busy room
// never holds up the rooms of other lanes. Parked jobs go back to the queue
// when the head of their lane waited longer than the lane timeout.
func (p *Pipeline) dispatch(jobType JobType, lanes []chan Job, popped <-chan Job, freed <-chan struct{}) {
	defer p.dispatchers.Done()

	parked := make([][]parkedJob, len(lanes))
	for {
		var resumed <-chan struct{}
		if p.isPaused() {
			resumed = p.resumedCh()
		} else {
			p.flush(lanes, parked)
		}
		p.expire(parked)
		p.parked[jobType].Store(int64(countParked(parked)))

		var expiry <-chan time.Time
		if oldest, ok := oldestParked(parked); ok {
			expiry = time.After(p.laneTimeout - time.Since(oldest))
		}

		select {
		case job := <-popped:
			i := laneIndex(job.RoomID, len(lanes))
			parked[i] = append(parked[i], parkedJob{job: job, since: time.Now()})
		case <-freed:
		case <-expiry:
		case <-resumed:
		case <-p.closing:
			for i := range parked {
				for _, pj := range parked[i] {
					p.requeue(pj.job)
				}
			}
			p.parked[jobType].Store(0)
			return
		}
	}
}

// flush moves parked jobs into their lanes in order while the lanes have room.
func (p *Pipeline) flush(lanes []chan Job, parked [][]parkedJob) {
	for i, lane := range lanes {
	fill:
		for len(parked[i]) > 0 {
			select {
			case lane <- parked[i][0].job:
				parked[i] = parked[i][1:]
			default:
				break fill
			}
		}
	}
}

// expire requeues the parked jobs of every lane whose oldest parked job
// waited longer than the lane timeout. The whole lane is requeued so that
// the jobs of a room keep their order.
func (p *Pipeline) expire(parked [][]parkedJob) {
	for i, jobs := range parked {
		if len(jobs) == 0 || time.Since(jobs[0].since) < p.laneTimeout {
			continue
		}
		p.logger.Warnf("lane %d is full for %s, requeue %d jobs", i, p.laneTimeout, len(jobs))
		for _, pj := range jobs {
			p.requeue(pj.job)
		}
		parked[i] = nil
	}
}

func (p *Pipeline) isPaused() bool {
	select {
	case <-p.resumedCh():
		return false
	default:
		return true
	}
}

func countParked(parked [][]parkedJob) int {
	count := 0
	for _, jobs := range parked {
		count += len(jobs)
	}
	return count
}

func oldestParked(parked [][]parkedJob) (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, jobs := range parked {
		if len(jobs) == 0 {
			continue
		}
		if !found || jobs[0].since.Before(oldest) {
			oldest = jobs[0].since
			found = true
		}
	}
	return oldest, found
}

// runLane processes the jobs handed to one lane until the pipeline drains.
func (p *Pipeline) runLane(
	lane chan Job,
	freed chan<- struct{},
	handler Handler,
	tc TypeConfig,
	timeout time.Duration,
) {
	defer p.lanes.Done()

	for {
		select {
		case job := <-lane:
			select {
			case freed <- struct{}{}:
			default:
			}
			p.process(job, handler, tc, timeout)
		case <-p.draining:
			for {
				select {
				case job := <-lane:
					p.process(job, handler, tc, timeout)
				default:
					return
				}
			}
		}
	}
}

// process runs the handler of the given job until it succeeds or its
// attempts are exhausted.
func (p *Pipeline) process(job Job, handler Handler, tc TypeConfig, timeout time.Duration) {
	b, err := tc.Backoff.NewBackOff()
	if err != nil {
		p.exhaust(job, err)
		return
	}

	for {
		job.Attempts++
		err := p.invoke(job, handler, timeout)
		if err == nil {
			job.FinishedAt = time.Now()
			if err := p.store.Complete(job); err != nil {
				p.logger.Errorf("record %s: %v", job, err)
			}
			p.metrics.AddPipelineJob(string(job.Type), prometheus.JobCompleted)
			return
		}
		job.LastError = err.Error()

		if IsUnrecoverable(err) || job.Attempts >= tc.Attempts {
			p.exhaust(job, err)
			return
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			p.exhaust(job, err)
			return
		}

		p.metrics.AddPipelineJob(string(job.Type), prometheus.JobRetried)
		p.logger.Warnf("retry %s in %s: %v", job, delay, err)

		select {
		case <-time.After(delay):
		case <-p.closing:
			p.requeue(job)
			return
		}
	}
}

// invoke runs the handler once, converting a panic into an error.
func (p *Pipeline) invoke(job Job, handler Handler, timeout time.Duration) (err error) {
	active := p.active[job.Type]
	active.Add(1)
	start := time.Now()
	defer func() {
		active.Add(-1)
		p.metrics.ObservePipelineJobSeconds(string(job.Type), time.Since(start).Seconds())
	}()

	logger := p.logger.With("job", job.ID, "type", string(job.Type), "room", job.RoomID)
	ctx, cancel := context.WithTimeout(logging.With(context.Background(), logger), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", job.Type, r)
		}
	}()

	return handler(ctx, job)
}

// exhaust records the given job as failed for good.
func (p *Pipeline) exhaust(job Job, err error) {
	job.FinishedAt = time.Now()
	job.LastError = err.Error()
	if err := p.store.Fail(job); err != nil {
		p.logger.Errorf("record %s: %v", job, err)
	}
	p.metrics.AddPipelineJob(string(job.Type), prometheus.JobFailed)
	p.logger.Errorf("%s failed: %v, payload: %s", job, err, string(job.Payload))

	if p.onExhausted != nil {
		p.onExhausted(context.Background(), job, err)
	}
}

// requeue pushes the given job back to the queue. It keeps its place among
// the jobs of the same priority.
func (p *Pipeline) requeue(job Job) {
	if err := p.queue.Push(context.Background(), job); err != nil {
		p.logger.Errorf("requeue %s: %v", job, err)
		return
	}
	p.metrics.AddPipelineJob(string(job.Type), prometheus.JobRequeued)
}

// laneIndex returns the lane of the given room.
func laneIndex(roomID string, lanes int) int {
	if roomID == "" || lanes <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return int(h.Sum32() % uint32(lanes))
}
