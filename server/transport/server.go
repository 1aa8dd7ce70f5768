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

// Package transport provides the WebSocket endpoint participants edit rooms
// through, and the HTTP endpoints reporting the health and the status of the
// server.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/codesync-team/codesync/api/types"
	pkgerrors "github.com/codesync-team/codesync/pkg/errors"
	"github.com/codesync-team/codesync/pkg/ot"
	"github.com/codesync-team/codesync/server/backend"
	"github.com/codesync-team/codesync/server/edits"
	"github.com/codesync-team/codesync/server/logging"
)

// frameJoin is the frame type under which joins are logged and counted.
const frameJoin = "join"

// errLeave ends the read loop of a participant that left.
var errLeave = errors.New("leave")

// Server serves the participants of the rooms owned by this process.
type Server struct {
	conf       *Config
	durations  durations
	be         *backend.Backend
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hubs       *hubs
	logger     logging.Logger
}

// NewServer creates a new instance of Server.
func NewServer(conf *Config, be *backend.Backend) (*Server, error) {
	d, err := conf.parse()
	if err != nil {
		return nil, err
	}

	s := &Server{
		conf:      conf,
		durations: d,
		be:        be,
		router:    mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hubs:   newHubs(be.Bus, "transport@"+be.Config.Hostname),
		logger: logging.New("transport"),
	}

	s.router.HandleFunc("/rooms/{roomID}/ws", s.serveRoom).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.serveHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.serveStatus).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", conf.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the handler of this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts this server by opening the transport port.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen transport on %d: %w", s.conf.Port, err)
	}

	go func() {
		s.logger.Infof("serving transport on %d", s.conf.Port)
		if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("HTTP server Serve: %v", err)
		}
	}()
	return nil
}

// Shutdown stops accepting participants and disconnects the connected ones.
func (s *Server) Shutdown(ctx context.Context, graceful bool) {
	if graceful {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Errorf("HTTP server Shutdown: %v", err)
		}
	} else if err := s.httpServer.Close(); err != nil {
		s.logger.Errorf("HTTP server Close: %v", err)
	}

	// Hijacked connections are not tracked by the HTTP server.
	s.hubs.closeAll()
}

// Connections returns the number of connected participants.
func (s *Server) Connections() int {
	return s.hubs.len()
}

func (s *Server) serveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	editorID := r.URL.Query().Get("editor")
	if editorID == "" {
		http.Error(w, "editor is required", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugf("upgrade %s: %v", roomID, err)
		return
	}

	c := newConn(uuid.NewString(), roomID, editorID, ws, s.conf.SendBufferSize, s.durations)
	ctx := logging.With(r.Context(), c.logger)
	s.be.Metrics.AddConnection()
	defer s.be.Metrics.RemoveConnection()

	if err := s.join(ctx, c); err != nil {
		c.close()
		return
	}
	go c.writePump()

	defer func() {
		s.hubs.detach(ctx, c)
		c.close()

		leaveCtx, cancel := context.WithTimeout(context.Background(), s.durations.writeTimeout)
		defer cancel()
		if err := edits.Leave(leaveCtx, s.be, roomID, editorID, c.id); err != nil {
			c.logger.Warnf("leave: %v", err)
		}
	}()

	s.readLoop(ctx, c)
}

// join attaches the connection to its room and queues the snapshot of the
// room as its first frame.
func (s *Server) join(ctx context.Context, c *conn) error {
	start := time.Now()
	if err := s.hubs.attach(ctx, c); err != nil {
		s.reject(c, start, pkgerrors.Wrap(err, pkgerrors.ErrCodeUnavailable))
		return err
	}

	snapshot, err := edits.Join(ctx, s.be, c.roomID, c.editorID, c.id)
	if err != nil {
		s.hubs.detach(ctx, c)
		s.reject(c, start, err)
		return err
	}

	c.start(snapshot)
	s.recordFrame(c, frameJoin, start, nil)
	return nil
}

// reject writes an error frame to a connection that never started.
func (s *Server) reject(c *conn, start time.Time, err error) {
	s.recordFrame(c, frameJoin, start, err)

	if err := c.ws.SetWriteDeadline(time.Now().Add(s.durations.writeTimeout)); err == nil {
		_ = c.ws.WriteJSON(errorFrame(codeOf(err), err.Error()))
	}
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	c.ws.SetReadLimit(s.conf.MaxMessageBytes)
	c.ws.SetPongHandler(func(string) error {
		return c.keepAlive()
	})
	if err := c.keepAlive(); err != nil {
		return
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debugf("read: %v", err)
			}
			return
		}
		if err := c.keepAlive(); err != nil {
			return
		}

		start := time.Now()
		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			err = pkgerrors.InvalidArgument(fmt.Sprintf("malformed frame: %v", err))
			s.recordFrame(c, "unknown", start, err)
			c.deliver(errorFrame(codeOf(err), err.Error()))
			continue
		}

		err = s.handleFrame(ctx, c, frame)
		if errors.Is(err, errLeave) {
			s.recordFrame(c, frame.Type, start, nil)
			return
		}
		s.recordFrame(c, frame.Type, start, err)
		if err != nil {
			c.deliver(errorFrame(codeOf(err), err.Error()))
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, c *conn, frame ClientFrame) error {
	switch frame.Type {
	case FrameEdit:
		if frame.Content != nil {
			content := *frame.Content
			return c.submit(func(base types.Snapshot) (types.Snapshot, error) {
				jobs, err := edits.SubmitContent(ctx, s.be, c.roomID, c.editorID, c.id, base, content)
				if err != nil {
					ops := ot.Diff(base.Content, content)
					base.Content = ot.ApplyAll(base.Content, ops[:len(jobs)])
					return base, err
				}
				base.Content = content
				return base, nil
			})
		}
		if len(frame.Operations) == 0 {
			return pkgerrors.InvalidArgument("edit without content or operations")
		}
		return c.submit(func(base types.Snapshot) (types.Snapshot, error) {
			ops := make([]types.Operation, len(frame.Operations))
			for i, op := range frame.Operations {
				if op.BaseVersion == 0 {
					op.BaseVersion = base.Version
				}
				ops[i] = op
			}
			jobs, err := edits.SubmitOperations(ctx, s.be, c.roomID, c.editorID, c.id, ops)
			base.Content = ot.ApplyAll(base.Content, ops[:len(jobs)])
			return base, err
		})
	case FrameReconnect:
		catchUp, err := edits.Reconnect(ctx, s.be, c.roomID, frame.Version)
		if err != nil {
			return err
		}
		c.deliver(catchUpFrame(catchUp))
		return nil
	case FrameLeave:
		return errLeave
	default:
		return pkgerrors.InvalidArgument(fmt.Sprintf("unknown frame type %q", frame.Type))
	}
}

func (s *Server) recordFrame(c *conn, frameType string, start time.Time, err error) {
	code := "ok"
	if err != nil {
		code = codeOf(err)
	}
	s.be.Metrics.AddFrame(frameType, code)
	logging.LogFrame(c.logger, frameType, c.roomID, time.Since(start), err)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, edits.CheckHealth(r.Context(), s.be))
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	status, err := edits.GetStatus(r.Context(), s.be)
	if err != nil {
		s.logger.Errorf("status: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorFrame(codeOf(err), err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.DefaultLogger().Warnf("write response: %v", err)
	}
}

// codeOf returns the error code of err sent to participants.
func codeOf(err error) string {
	if status := pkgerrors.StatusOf(err); status != 0 {
		return status.String()
	}
	return pkgerrors.ErrCodeInternal.String()
}
