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

// Package server provides the CodeSync server which is the main entry point
// of the CodeSync system. The server is responsible for starting the
// transport server, the profiling server and the backend.
package server

import (
	"context"
	gosync "sync"

	"github.com/codesync-team/codesync/server/backend"
	"github.com/codesync-team/codesync/server/logging"
	"github.com/codesync-team/codesync/server/profiling"
	"github.com/codesync-team/codesync/server/profiling/prometheus"
	"github.com/codesync-team/codesync/server/transport"
)

// CodeSync is a server of CodeSync.
// The server receives edits from participants, commits them to rooms in
// order and propagates them to the other participants of the rooms.
type CodeSync struct {
	lock gosync.Mutex

	conf            *Config
	backend         *backend.Backend
	transportServer *transport.Server
	profilingServer *profiling.Server

	shutdown   bool
	shutdownCh chan struct{}
}

// New creates a new instance of CodeSync.
func New(conf *Config) (*CodeSync, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	metrics, err := prometheus.NewMetrics()
	if err != nil {
		return nil, err
	}

	be, err := backend.New(
		conf.Backend,
		conf.Sync,
		conf.Pipeline,
		conf.Housekeeping,
		conf.Redis,
		conf.Mongo,
		conf.Kafka,
		metrics,
	)
	if err != nil {
		return nil, err
	}

	transportServer, err := transport.NewServer(conf.Transport, be)
	if err != nil {
		return nil, err
	}

	var profilingServer *profiling.Server
	if conf.Profiling != nil {
		profilingServer = profiling.NewServer(conf.Profiling, metrics)
	}

	return &CodeSync{
		conf:            conf,
		backend:         be,
		transportServer: transportServer,
		profilingServer: profilingServer,
		shutdownCh:      make(chan struct{}),
	}, nil
}

// Start starts the server by opening the transport port.
func (r *CodeSync) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.backend.Start(); err != nil {
		return err
	}

	if r.profilingServer != nil {
		if err := r.profilingServer.Start(); err != nil {
			return err
		}
	}

	return r.transportServer.Start()
}

// Shutdown shuts down this CodeSync server. A graceful shutdown lets the
// pipeline finish its jobs until the given context is done.
func (r *CodeSync) Shutdown(ctx context.Context, graceful bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.shutdown {
		return nil
	}

	r.transportServer.Shutdown(ctx, graceful)
	if r.profilingServer != nil {
		r.profilingServer.Shutdown(ctx, graceful)
	}

	if !graceful {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		cancel()
	}
	if err := r.backend.Shutdown(ctx); err != nil {
		logging.DefaultLogger().Warnf("backend shutdown: %v", err)
		close(r.shutdownCh)
		r.shutdown = true
		return err
	}

	close(r.shutdownCh)
	r.shutdown = true
	return nil
}

// ShutdownCh returns the shutdown channel.
func (r *CodeSync) ShutdownCh() <-chan struct{} {
	return r.shutdownCh
}

// TransportAddr returns the address of the transport.
func (r *CodeSync) TransportAddr() string {
	return r.conf.TransportAddr()
}
