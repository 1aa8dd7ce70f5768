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

package logging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	errs "github.com/codesync-team/codesync/pkg/errors"
)

func TestFrameLevel(t *testing.T) {
	t.Run("frame level test", func(t *testing.T) {
		assert.Equal(t, zapcore.DebugLevel, frameLevel(nil))
		assert.Equal(t, zapcore.DebugLevel, frameLevel(fmt.Errorf("read: %w", context.Canceled)))
		assert.Equal(t, zapcore.InfoLevel, frameLevel(errs.InvalidArgument("bad")))
		assert.Equal(t, zapcore.WarnLevel, frameLevel(errs.ResourceExhausted("full")))
		assert.Equal(t, zapcore.ErrorLevel, frameLevel(errs.Unavailable("bus")))
		assert.Equal(t, zapcore.WarnLevel, frameLevel(errors.New("plain")))
	})
}

func TestLogging(t *testing.T) {
	t.Run("set log level test", func(t *testing.T) {
		assert.NoError(t, SetLogLevel("warn"))
		assert.False(t, Enabled(zapcore.InfoLevel))
		assert.True(t, Enabled(zapcore.ErrorLevel))

		assert.Error(t, SetLogLevel("verbose"))
		assert.NoError(t, SetLogLevel("info"))
	})

	t.Run("set log format test", func(t *testing.T) {
		assert.NoError(t, SetLogFormat("JSON"))
		assert.NotNil(t, New("json"))
		assert.Error(t, SetLogFormat("xml"))
		assert.NoError(t, SetLogFormat("console"))
	})

	t.Run("context logger test", func(t *testing.T) {
		logger := New("room", NewField("room", "r1"))
		ctx := With(context.Background(), logger)
		assert.Same(t, logger, From(ctx))
		assert.Same(t, DefaultLogger(), From(context.Background()))
	})
}
