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

// Package prometheus provides a Prometheus metrics exporter.
package prometheus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/codesync-team/codesync/internal/version"
)

const (
	namespace      = "codesync"
	taskTypeLabel  = "task_type"
	jobTypeLabel   = "job_type"
	resultLabel    = "result"
	frameTypeLabel = "frame_type"
	codeLabel      = "code"
)

// Job results recorded by the pipeline.
const (
	JobCompleted = "completed"
	JobRetried   = "retried"
	JobFailed    = "failed"
	JobRequeued  = "requeued"
	JobRejected  = "rejected"
)

// Metrics manages the metric information that CodeSync is trying to measure.
type Metrics struct {
	registry *prometheus.Registry

	serverVersion *prometheus.GaugeVec

	commitsTotal            prometheus.Counter
	commitSeconds           prometheus.Histogram
	concurrentOperations    prometheus.Histogram
	transformAmbiguityTotal prometheus.Counter
	invalidOperationsTotal  prometheus.Counter
	roomResetsTotal         prometheus.Counter

	roomsActive       prometheus.Gauge
	roomLogOperations prometheus.Gauge
	roomsEvictedTotal prometheus.Counter

	busPublishFailuresTotal prometheus.Counter
	busHealthy              prometheus.Gauge

	pipelineJobsTotal   *prometheus.CounterVec
	pipelineJobSeconds  *prometheus.HistogramVec
	pipelineWaitingJobs *prometheus.GaugeVec

	backgroundGoroutinesTotal *prometheus.GaugeVec

	connectionsActive prometheus.Gauge
	framesTotal       *prometheus.CounterVec
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	factory := promauto.With(reg)
	metrics := &Metrics{
		registry: reg,
		serverVersion: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "version",
			Help:      "Which version is running. 1 for 'server_version' label with current version.",
		}, []string{"server_version"}),
		commitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "commits_total",
			Help:      "The total count of committed operations.",
		}),
		commitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "commit_seconds",
			Help:      "The time spent in the critical section of a room per commit.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		concurrentOperations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "concurrent_operations",
			Help:      "The number of concurrent operations an incoming operation was transformed against.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		transformAmbiguityTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "transform_ambiguity_total",
			Help:      "The total count of commits transformed against more than one concurrent operation.",
		}),
		invalidOperationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "invalid_operations_total",
			Help:      "The total count of rejected malformed operations.",
		}),
		roomResetsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "room_resets_total",
			Help:      "The total count of rooms re-initialized after their eviction.",
		}),
		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "active",
			Help:      "The number of rooms owned by this process.",
		}),
		roomLogOperations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "log_operations",
			Help:      "The number of operations kept in the logs of all rooms.",
		}),
		roomsEvictedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "evicted_total",
			Help:      "The total count of evicted idle rooms.",
		}),
		busPublishFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "publish_failures_total",
			Help:      "The total count of events that could not reach other processes.",
		}),
		busHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "healthy",
			Help:      "1 if the bus reached other processes on its last use, 0 otherwise.",
		}),
		pipelineJobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "jobs_total",
			Help:      "The total count of pipeline job outcomes.",
		}, []string{jobTypeLabel, resultLabel}),
		pipelineJobSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "job_seconds",
			Help:      "The time from the enqueueing of a job to its completion.",
		}, []string{jobTypeLabel}),
		pipelineWaitingJobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "waiting_jobs",
			Help:      "The number of jobs waiting in the queue, sampled by collectMetrics.",
		}, []string{jobTypeLabel}),
		backgroundGoroutinesTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "background",
			Name:      "goroutines_total",
			Help:      "The total number of goroutines attached by the backend.",
		}, []string{taskTypeLabel}),
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connections",
			Help:      "The number of connected participants.",
		}),
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "The total count of handled client frames by type and error code.",
		}, []string{frameTypeLabel, codeLabel}),
	}

	metrics.serverVersion.With(prometheus.Labels{
		"server_version": version.Version,
	}).Set(1)

	return metrics, nil
}

// ObserveCommit records a commit, its duration and the number of concurrent
// operations it was transformed against.
func (m *Metrics) ObserveCommit(seconds float64, concurrent int) {
	m.commitsTotal.Inc()
	m.commitSeconds.Observe(seconds)
	m.concurrentOperations.Observe(float64(concurrent))
}

// AddTransformAmbiguity records a commit with more than one concurrent
// operation in its window.
func (m *Metrics) AddTransformAmbiguity() {
	m.transformAmbiguityTotal.Inc()
}

// AddInvalidOperation records a rejected malformed operation.
func (m *Metrics) AddInvalidOperation() {
	m.invalidOperationsTotal.Inc()
}

// AddRoomReset records a room re-initialized after its eviction.
func (m *Metrics) AddRoomReset() {
	m.roomResetsTotal.Inc()
}

// AddRoomsEvicted records evicted idle rooms.
func (m *Metrics) AddRoomsEvicted(count int) {
	m.roomsEvictedTotal.Add(float64(count))
}

// SetRoomStats sets the sampled number of rooms and logged operations.
func (m *Metrics) SetRoomStats(rooms, operations int) {
	m.roomsActive.Set(float64(rooms))
	m.roomLogOperations.Set(float64(operations))
}

// AddBusPublishFailure records an event that could not reach other processes.
func (m *Metrics) AddBusPublishFailure() {
	m.busPublishFailuresTotal.Inc()
	m.busHealthy.Set(0)
}

// SetBusHealthy sets the health of the bus.
func (m *Metrics) SetBusHealthy(healthy bool) {
	if healthy {
		m.busHealthy.Set(1)
		return
	}
	m.busHealthy.Set(0)
}

// AddPipelineJob records an outcome of a job of the given type.
func (m *Metrics) AddPipelineJob(jobType, result string) {
	m.pipelineJobsTotal.With(prometheus.Labels{
		jobTypeLabel: jobType,
		resultLabel:  result,
	}).Inc()
}

// ObservePipelineJobSeconds records the time from enqueueing to completion.
func (m *Metrics) ObservePipelineJobSeconds(jobType string, seconds float64) {
	m.pipelineJobSeconds.With(prometheus.Labels{
		jobTypeLabel: jobType,
	}).Observe(seconds)
}

// SetPipelineWaitingJobs sets the sampled number of waiting jobs.
func (m *Metrics) SetPipelineWaitingJobs(jobType string, count int) {
	m.pipelineWaitingJobs.With(prometheus.Labels{
		jobTypeLabel: jobType,
	}).Set(float64(count))
}

// AddBackgroundGoroutines adds the number of goroutines attached by the
// backend.
func (m *Metrics) AddBackgroundGoroutines(taskType string) {
	m.backgroundGoroutinesTotal.With(prometheus.Labels{
		taskTypeLabel: taskType,
	}).Inc()
}

// RemoveBackgroundGoroutines removes the number of goroutines attached by the
// backend.
func (m *Metrics) RemoveBackgroundGoroutines(taskType string) {
	m.backgroundGoroutinesTotal.With(prometheus.Labels{
		taskTypeLabel: taskType,
	}).Dec()
}

// AddConnection records a connected participant.
func (m *Metrics) AddConnection() {
	m.connectionsActive.Inc()
}

// RemoveConnection records a disconnected participant.
func (m *Metrics) RemoveConnection() {
	m.connectionsActive.Dec()
}

// AddFrame records a handled client frame with the code of its outcome.
func (m *Metrics) AddFrame(frameType, code string) {
	m.framesTotal.With(prometheus.Labels{
		frameTypeLabel: frameType,
		codeLabel:      code,
	}).Inc()
}

// Registry returns the registry of this metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
