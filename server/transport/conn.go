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

package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codesync-team/codesync/api/types"
	"github.com/codesync-team/codesync/pkg/ot"
	"github.com/codesync-team/codesync/server/logging"
)

// conn is one participant connected to a room.
type conn struct {
	id       string
	roomID   string
	editorID string

	ws     *websocket.Conn
	send   chan ServerFrame
	logger logging.Logger

	pingInterval time.Duration
	writeTimeout time.Duration

	// Frames delivered before the participant received its snapshot are
	// held in pending. view is the document as the participant has it: the
	// buffer it last sent with the operations relayed to it since, and the
	// room version it has seen. Whole-buffer edits are diffed against it.
	mu      sync.Mutex
	ready   bool
	closed  bool
	pending []ServerFrame
	view    types.Snapshot

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(
	id, roomID, editorID string,
	ws *websocket.Conn,
	bufferSize int,
	d durations,
) *conn {
	return &conn{
		id:       id,
		roomID:   roomID,
		editorID: editorID,
		ws:       ws,
		send:     make(chan ServerFrame, bufferSize),
		logger: logging.New("conn",
			logging.NewField("room", roomID),
			logging.NewField("editor", editorID),
			logging.NewField("conn", id),
		),
		pingInterval: d.pingInterval,
		writeTimeout: d.writeTimeout,
		done:         make(chan struct{}),
	}
}

// start queues the snapshot as the first frame, followed by the frames held
// since the connection was attached that the snapshot does not cover.
func (c *conn) start(snapshot types.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.view = snapshot
	c.enqueueLocked(snapshotFrame(snapshot))
	for _, frame := range c.pending {
		if (frame.Type == FrameOperation || frame.Type == FrameAck) && frame.Version <= snapshot.Version {
			continue
		}
		c.observeLocked(frame)
		c.enqueueLocked(frame)
	}
	c.pending = nil
	c.ready = true
}

// deliver queues the given frame without blocking.
func (c *conn) deliver(frame ServerFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		c.pending = append(c.pending, frame)
		return
	}
	c.observeLocked(frame)
	c.enqueueLocked(frame)
}

// observeLocked advances the view of the participant past the given frame.
func (c *conn) observeLocked(frame ServerFrame) {
	switch frame.Type {
	case FrameOperation:
		if frame.Operation == nil || frame.Version <= c.view.Version {
			return
		}
		c.view.Content = ot.Apply(c.view.Content, *frame.Operation)
		c.view.Version = frame.Version
	case FrameAck:
		if frame.Version > c.view.Version {
			c.view.Version = frame.Version
		}
	case FrameSnapshot, FrameResync:
		c.view.Content = frame.Content
		c.view.Version = frame.Version
	case FrameCatchUp:
		if frame.Reset {
			c.view.Content = frame.Content
			c.view.Version = frame.Version
			return
		}
		for _, op := range frame.Operations {
			if op.Version <= c.view.Version {
				continue
			}
			c.view.Content = ot.Apply(c.view.Content, op)
			c.view.Version = op.Version
		}
		if frame.Version > c.view.Version {
			c.view.Version = frame.Version
		}
	}
}

// submit passes the view of the participant to the given edit and advances
// the view past the operations the edit managed to enqueue. The view stays
// locked during the edit so that no relayed operation is lost in between.
func (c *conn) submit(edit func(base types.Snapshot) (types.Snapshot, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	view, err := edit(c.view)
	c.view = view
	return err
}

func (c *conn) enqueueLocked(frame ServerFrame) {
	if c.closed {
		return
	}

	select {
	case c.send <- frame:
	default:
		c.logger.Warnf("send buffer full, dropping %s frame and disconnecting", frame.Type)
		c.closed = true
		go c.close()
	}
}

// writePump writes queued frames and pings to the participant until the
// connection is closed.
func (c *conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.ws.WriteJSON(frame); err != nil {
				c.logger.Debugf("write %s frame: %v", frame.Type, err)
				c.close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debugf("ping: %v", err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// keepAlive extends the read deadline of the connection.
func (c *conn) keepAlive() error {
	return c.ws.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
}

// close closes the connection. It is safe to call more than once.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.done)
		if err := c.ws.Close(); err != nil {
			c.logger.Debugf("close: %v", err)
		}
	})
}
