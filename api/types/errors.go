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

package types

import (
	"errors"
)

var (
	// ErrInvalidOperation is returned when an operation misses a required
	// field or carries an out-of-range value.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrInvalidRoomID is returned when the given room ID is empty.
	ErrInvalidRoomID = errors.New("invalid room ID")

	// ErrInvalidEditorID is returned when the given editor ID is empty.
	ErrInvalidEditorID = errors.New("invalid editor ID")
)
