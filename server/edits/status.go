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

package edits

import (
	"context"
	"sort"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/server/backend"
	"github.com/codesync-team/codesync/server/backend/pipeline"
)

const (
	// StatusHealthy means every check passed.
	StatusHealthy = "healthy"

	// StatusDegraded means the server works with reduced guarantees, e.g.
	// events only reach the participants of this process.
	StatusDegraded = "degraded"
)

// Check is the outcome of one health check.
type Check struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health is the health of this server.
type Health struct {
	Status string           `json:"status"`
	Checks map[string]Check `json:"checks"`
}

// Status is a sample of the rooms and the pipeline of this server.
type Status struct {
	Hostname string                                  `json:"hostname"`
	Rooms    types.RoomStats                         `json:"rooms"`
	RoomIDs  []string                                `json:"roomIds,omitempty"`
	Jobs     map[pipeline.JobType]pipeline.JobCounts `json:"jobs"`
	Health   Health                                  `json:"health"`
}

// CheckHealth checks the dependencies of this server.
func CheckHealth(ctx context.Context, be *backend.Backend) Health {
	health := Health{
		Status: StatusHealthy,
		Checks: map[string]Check{},
	}

	check := func(name string, err error) {
		if err != nil {
			health.Status = StatusDegraded
			health.Checks[name] = Check{Status: StatusDegraded, Error: err.Error()}
			return
		}
		health.Checks[name] = Check{Status: StatusHealthy}
	}

	check("bus", be.Bus.Check(ctx))
	_, err := be.Pipeline.Stats(ctx)
	check("pipeline", err)

	return health
}

// GetStatus samples the rooms and the pipeline of this server.
func GetStatus(ctx context.Context, be *backend.Backend) (*Status, error) {
	jobs, err := be.Pipeline.Stats(ctx)
	if err != nil {
		return nil, err
	}

	roomIDs := be.Coordinator.RoomIDs()
	sort.Strings(roomIDs)

	return &Status{
		Hostname: be.Config.Hostname,
		Rooms:    be.Coordinator.Stats(),
		RoomIDs:  roomIDs,
		Jobs:     jobs,
		Health:   CheckHealth(ctx, be),
	}, nil
}
