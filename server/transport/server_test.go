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

package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesync-team/codesync/server/backend"
	"github.com/codesync-team/codesync/server/backend/housekeeping"
	"github.com/codesync-team/codesync/server/backend/pipeline"
	"github.com/codesync-team/codesync/server/backend/sync"
	"github.com/codesync-team/codesync/server/edits"
	"github.com/codesync-team/codesync/server/profiling/prometheus"
	"github.com/codesync-team/codesync/server/transport"
)

const waitTimeout = 5 * time.Second

func testConfig() *transport.Config {
	return &transport.Config{
		Port:            11101,
		PingInterval:    "1s",
		WriteTimeout:    "1s",
		SendBufferSize:  64,
		MaxMessageBytes: 1 << 20,
	}
}

func newServer(t *testing.T) (*transport.Server, *httptest.Server) {
	t.Helper()

	metrics, err := prometheus.NewMetrics()
	require.NoError(t, err)

	be, err := backend.New(
		&backend.Config{
			Hostname:            "transport-test",
			SnapshotSaveTimeout: "1s",
			PresenceTTL:         "1m",
		},
		sync.DefaultConfig(),
		pipeline.DefaultConfig(),
		&housekeeping.Config{
			Interval:        "1h",
			MetricsInterval: "1h",
			RoomIdleTimeout: "1h",
		},
		nil,
		nil,
		nil,
		metrics,
	)
	require.NoError(t, err)
	require.NoError(t, be.Start())

	s, err := transport.NewServer(testConfig(), be)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		s.Shutdown(ctx, true)
		srv.Close()
		assert.NoError(t, be.Shutdown(ctx))
	})
	return s, srv
}

func dial(t *testing.T, srv *httptest.Server, roomID, editorID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + roomID + "/ws?editor=" + editorID
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	t.Cleanup(func() {
		_ = ws.Close()
	})
	return ws
}

// readFrame reads frames until one of the given type arrives.
func readFrame(t *testing.T, ws *websocket.Conn, frameType string) transport.ServerFrame {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(waitTimeout)))
	for {
		var frame transport.ServerFrame
		require.NoError(t, ws.ReadJSON(&frame))
		if frame.Type == frameType {
			return frame
		}
	}
}

func send(t *testing.T, ws *websocket.Conn, frame any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(frame))
}

func editFrame(content string) transport.ClientFrame {
	return transport.ClientFrame{Type: transport.FrameEdit, Content: &content}
}

func TestRoom(t *testing.T) {
	t.Run("join receives snapshot test", func(t *testing.T) {
		_, srv := newServer(t)
		alice := dial(t, srv, "room-1", "alice")

		require.NoError(t, alice.SetReadDeadline(time.Now().Add(waitTimeout)))
		var frame transport.ServerFrame
		require.NoError(t, alice.ReadJSON(&frame))
		assert.Equal(t, transport.FrameSnapshot, frame.Type)
		assert.Equal(t, "", frame.Content)
		assert.Equal(t, int64(0), frame.Version)
	})

	t.Run("edit is acked to origin and relayed to others test", func(t *testing.T) {
		_, srv := newServer(t)
		alice := dial(t, srv, "room-1", "alice")
		readFrame(t, alice, transport.FrameSnapshot)
		bob := dial(t, srv, "room-1", "bob")
		readFrame(t, bob, transport.FrameSnapshot)

		send(t, alice, editFrame("hello"))

		ack := readFrame(t, alice, transport.FrameAck)
		assert.Equal(t, int64(1), ack.Version)
		assert.NotEmpty(t, ack.OperationID)

		op := readFrame(t, bob, transport.FrameOperation)
		assert.Equal(t, int64(1), op.Version)
		assert.Equal(t, "hello", op.Content)
		assert.Equal(t, "alice", op.Author)
		require.NotNil(t, op.Operation)
		assert.Equal(t, ack.OperationID, op.Operation.ID)
	})

	t.Run("late joiner starts from snapshot test", func(t *testing.T) {
		_, srv := newServer(t)
		alice := dial(t, srv, "room-1", "alice")
		readFrame(t, alice, transport.FrameSnapshot)

		send(t, alice, editFrame("hello"))
		readFrame(t, alice, transport.FrameAck)

		bob := dial(t, srv, "room-1", "bob")
		snapshot := readFrame(t, bob, transport.FrameSnapshot)
		assert.Equal(t, "hello", snapshot.Content)
		assert.Equal(t, int64(1), snapshot.Version)
	})

	t.Run("edits sent before their ack test", func(t *testing.T) {
		_, srv := newServer(t)
		alice := dial(t, srv, "room-1", "alice")
		readFrame(t, alice, transport.FrameSnapshot)

		send(t, alice, editFrame("a"))
		send(t, alice, editFrame("ab"))
		readFrame(t, alice, transport.FrameAck)
		ack := readFrame(t, alice, transport.FrameAck)
		assert.Equal(t, int64(2), ack.Version)

		bob := dial(t, srv, "room-1", "bob")
		snapshot := readFrame(t, bob, transport.FrameSnapshot)
		assert.Equal(t, "ab", snapshot.Content)
		assert.Equal(t, int64(2), snapshot.Version)
	})

	t.Run("edit on top of relayed operation test", func(t *testing.T) {
		_, srv := newServer(t)
		alice := dial(t, srv, "room-1", "alice")
		readFrame(t, alice, transport.FrameSnapshot)
		bob := dial(t, srv, "room-1", "bob")
		readFrame(t, bob, transport.FrameSnapshot)

		send(t, bob, editFrame("abc"))
		readFrame(t, bob, transport.FrameAck)
		op := readFrame(t, alice, transport.FrameOperation)
		assert.Equal(t, "abc", op.Content)

		send(t, alice, editFrame("Xabc"))
		readFrame(t, alice, transport.FrameAck)
		op = readFrame(t, bob, transport.FrameOperation)
		assert.Equal(t, int64(2), op.Version)
		assert.Equal(t, "Xabc", op.Content)
	})

	t.Run("participants test", func(t *testing.T) {
		_, srv := newServer(t)
		alice := dial(t, srv, "room-1", "alice")
		readFrame(t, alice, transport.FrameSnapshot)
		dial(t, srv, "room-1", "bob")

		for {
			frame := readFrame(t, alice, transport.FrameParticipants)
			if len(frame.Editors) == 2 {
				assert.Equal(t, []string{"alice", "bob"}, frame.Editors)
				break
			}
		}
	})

	t.Run("reconnect test", func(t *testing.T) {
		_, srv := newServer(t)
		alice := dial(t, srv, "room-1", "alice")
		readFrame(t, alice, transport.FrameSnapshot)

		send(t, alice, editFrame("hello"))
		readFrame(t, alice, transport.FrameAck)
		send(t, alice, editFrame("hello world"))
		readFrame(t, alice, transport.FrameAck)

		send(t, alice, transport.ClientFrame{Type: transport.FrameReconnect, Version: 1})
		catchUp := readFrame(t, alice, transport.FrameCatchUp)
		assert.False(t, catchUp.Reset)
		assert.Equal(t, int64(2), catchUp.Version)
		assert.Equal(t, "hello world", catchUp.Content)
		require.Len(t, catchUp.Operations, 1)
		assert.Equal(t, " world", catchUp.Operations[0].Content)
	})

	t.Run("invalid frames test", func(t *testing.T) {
		_, srv := newServer(t)
		alice := dial(t, srv, "room-1", "alice")
		readFrame(t, alice, transport.FrameSnapshot)

		require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{bad")))
		frame := readFrame(t, alice, transport.FrameError)
		assert.Equal(t, "invalid_argument", frame.Code)

		send(t, alice, transport.ClientFrame{Type: transport.FrameEdit})
		frame = readFrame(t, alice, transport.FrameError)
		assert.Equal(t, "invalid_argument", frame.Code)

		send(t, alice, transport.ClientFrame{Type: "shout"})
		frame = readFrame(t, alice, transport.FrameError)
		assert.Equal(t, "invalid_argument", frame.Code)

		send(t, alice, transport.ClientFrame{Type: transport.FrameReconnect, Version: -1})
		frame = readFrame(t, alice, transport.FrameError)
		assert.Equal(t, "invalid_argument", frame.Code)
	})

	t.Run("missing editor test", func(t *testing.T) {
		_, srv := newServer(t)

		resp, err := http.Get(srv.URL + "/rooms/room-1/ws")
		require.NoError(t, err)
		defer func() { assert.NoError(t, resp.Body.Close()) }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("shutdown disconnects participants test", func(t *testing.T) {
		s, srv := newServer(t)
		alice := dial(t, srv, "room-1", "alice")
		readFrame(t, alice, transport.FrameSnapshot)
		assert.Eventually(t, func() bool {
			return s.Connections() == 1
		}, waitTimeout, 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		s.Shutdown(ctx, true)

		require.NoError(t, alice.SetReadDeadline(time.Now().Add(waitTimeout)))
		for {
			if _, _, err := alice.ReadMessage(); err != nil {
				break
			}
		}
		assert.Eventually(t, func() bool {
			return s.Connections() == 0
		}, waitTimeout, 10*time.Millisecond)
	})
}

func TestHTTP(t *testing.T) {
	t.Run("health test", func(t *testing.T) {
		_, srv := newServer(t)

		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer func() { assert.NoError(t, resp.Body.Close()) }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var health edits.Health
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		assert.Equal(t, edits.StatusHealthy, health.Status)
	})

	t.Run("status test", func(t *testing.T) {
		_, srv := newServer(t)
		alice := dial(t, srv, "room-1", "alice")
		readFrame(t, alice, transport.FrameSnapshot)

		resp, err := http.Get(srv.URL + "/status")
		require.NoError(t, err)
		defer func() { assert.NoError(t, resp.Body.Close()) }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var status edits.Status
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.Equal(t, "transport-test", status.Hostname)
		assert.Equal(t, 1, status.Rooms.Rooms)
		assert.Equal(t, []string{"room-1"}, status.RoomIDs)
	})
}
