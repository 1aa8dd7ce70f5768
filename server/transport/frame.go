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
	"github.com/codesync-team/codesync/api/types"
)

// Frame types sent by participants.
const (
	FrameEdit      = "edit"
	FrameReconnect = "reconnect"
	FrameLeave     = "leave"
)

// Frame types sent to participants.
const (
	FrameSnapshot     = "snapshot"
	FrameOperation    = "operation"
	FrameAck          = "ack"
	FrameCatchUp      = "catchup"
	FrameResync       = "resync"
	FrameParticipants = "participants"
	FrameError        = "error"
)

// ClientFrame is a frame sent by a participant.
type ClientFrame struct {
	Type string `json:"type"`

	// Content is the whole buffer of an edit. It takes precedence over
	// Operations.
	Content *string `json:"content,omitempty"`

	// Operations are the explicit operations of an edit.
	Operations []types.Operation `json:"operations,omitempty"`

	// Version is the last version a reconnecting participant saw.
	Version int64 `json:"version,omitempty"`
}

// ServerFrame is a frame sent to a participant.
type ServerFrame struct {
	Type string `json:"type"`

	Content     string            `json:"content,omitempty"`
	Version     int64             `json:"version"`
	Operation   *types.Operation  `json:"operation,omitempty"`
	OperationID string            `json:"operationId,omitempty"`
	Author      string            `json:"author,omitempty"`
	Operations  []types.Operation `json:"operations,omitempty"`
	Reset       bool              `json:"reset,omitempty"`
	Editors     []string          `json:"editors,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func snapshotFrame(snapshot types.Snapshot) ServerFrame {
	return ServerFrame{Type: FrameSnapshot, Content: snapshot.Content, Version: snapshot.Version}
}

func resyncFrame(content string, version int64) ServerFrame {
	return ServerFrame{Type: FrameResync, Content: content, Version: version}
}

func catchUpFrame(catchUp types.CatchUp) ServerFrame {
	return ServerFrame{
		Type:       FrameCatchUp,
		Content:    catchUp.Content,
		Version:    catchUp.Version,
		Operations: catchUp.Operations,
		Reset:      catchUp.Reset,
	}
}

func errorFrame(code, message string) ServerFrame {
	return ServerFrame{Type: FrameError, Code: code, Message: message}
}
