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

// Package types provides the types shared by the synchronization core, the
// transport layer and the external collaborators that consume its events.
package types

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"
)

// OpType represents the kind of an Operation.
type OpType string

const (
	// Insert inserts Content at Position.
	Insert OpType = "insert"

	// Delete removes Length code points starting at Position.
	Delete OpType = "delete"
)

// Operation is one atomic edit of a room's document. Positions and lengths
// are measured in Unicode code points.
//
// Operation is a value: transforming or committing an operation produces a
// new value and never mutates the one held by the caller.
type Operation struct {
	// ID is the time-ordered identifier of this operation.
	ID string `json:"id"`

	// Type is the kind of this operation.
	Type OpType `json:"type" validate:"required,oneof=insert delete"`

	// Position is the code point offset into the document at creation time.
	Position int `json:"position" validate:"gte=0"`

	// Content is the inserted text. Only used by Insert.
	Content string `json:"content,omitempty" validate:"required_if=Type insert"`

	// Length is the number of code points removed by Delete or inserted by
	// Insert.
	Length int `json:"length" validate:"gte=0,required_if=Type delete"`

	// AuthorID is the editor that produced this operation.
	AuthorID string `json:"authorId" validate:"required"`

	// CreatedAt is the producer-side timestamp. It only bounds the concurrency
	// window of transforms and never decides the order of operations.
	CreatedAt time.Time `json:"createdAt"`

	// Version is assigned by the coordinator at commit time. Zero means the
	// operation has not been committed yet.
	Version int64 `json:"version,omitempty"`

	// BaseVersion is the room version the author had seen when it produced
	// this operation. Committed operations up to it are already reflected in
	// Position and are never transformed against.
	BaseVersion int64 `json:"baseVersion,omitempty" validate:"gte=0"`
}

// NewOperationID returns a new time-ordered operation ID.
func NewOperationID() string {
	return xid.New().String()
}

// NewInsert creates an Insert of the given content at the given position.
func NewInsert(position int, content string) Operation {
	return Operation{
		ID:        NewOperationID(),
		Type:      Insert,
		Position:  position,
		Content:   content,
		Length:    utf8.RuneCountInString(content),
		CreatedAt: time.Now(),
	}
}

// NewDelete creates a Delete of length code points at the given position.
func NewDelete(position, length int) Operation {
	return Operation{
		ID:        NewOperationID(),
		Type:      Delete,
		Position:  position,
		Length:    length,
		CreatedAt: time.Now(),
	}
}

// Validate returns ErrInvalidOperation if a required field of this operation
// is missing or out of range.
func (op Operation) Validate() error {
	return validateStruct(&op)
}

// Normalize fills the fields that producers may omit: the ID, the creation
// time and the derived length of an Insert.
func (op Operation) Normalize(now time.Time) Operation {
	if op.ID == "" {
		op.ID = NewOperationID()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	if op.Type == Insert {
		op.Length = utf8.RuneCountInString(op.Content)
	}
	return op
}

// WithAuthor returns a copy of this operation authored by the given editor.
func (op Operation) WithAuthor(authorID string) Operation {
	op.AuthorID = authorID
	return op
}

// End returns the offset right after the range this operation covers.
func (op Operation) End() int {
	return op.Position + op.Length
}

// IsNoop returns whether applying this operation leaves a document unchanged.
// A no-op is still committed so that versions stay contiguous.
func (op Operation) IsNoop() bool {
	return op.Length <= 0
}

// IsCommitted returns whether a version was assigned to this operation.
func (op Operation) IsCommitted() bool {
	return op.Version > 0
}

// String returns a string representation of this operation for logging.
func (op Operation) String() string {
	switch op.Type {
	case Insert:
		return fmt.Sprintf("insert(%d,%q)@%d", op.Position, op.Content, op.Version)
	case Delete:
		return fmt.Sprintf("delete(%d,%d)@%d", op.Position, op.Length, op.Version)
	default:
		return fmt.Sprintf("unknown(%s)", op.Type)
	}
}
