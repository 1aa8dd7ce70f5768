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
	"time"

	"go.uber.org/zap/zapcore"

	errs "github.com/codesync-team/codesync/pkg/errors"
)

// frameLevel determines the level of a frame failure from its status.
// Producer mistakes are expected and stay quiet; dependency failures are
// errors.
func frameLevel(err error) zapcore.Level {
	if err == nil || errors.Is(err, context.Canceled) {
		return zapcore.DebugLevel
	}

	switch errs.StatusOf(err) {
	case errs.ErrCodeInvalidArgument, errs.ErrCodeNotFound:
		return zapcore.InfoLevel
	case errs.ErrCodeResourceExhausted, errs.ErrCodeFailedPrecondition:
		return zapcore.WarnLevel
	case errs.ErrCodeInternal, errs.ErrCodeUnavailable:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// LogFrame logs the handling of one WebSocket frame at a level matching its
// outcome.
func LogFrame(logger Logger, frameType string, roomID string, duration time.Duration, err error) {
	const template = "FRAME: %q room=%s %s => %v"

	switch frameLevel(err) {
	case zapcore.DebugLevel:
		logger.Debugf(template, frameType, roomID, duration, err)
	case zapcore.InfoLevel:
		logger.Infof(template, frameType, roomID, duration, err)
	case zapcore.ErrorLevel:
		logger.Errorf(template, frameType, roomID, duration, err)
	default:
		logger.Warnf(template, frameType, roomID, duration, err)
	}
}
