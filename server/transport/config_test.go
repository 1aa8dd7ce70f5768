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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codesync-team/codesync/server/transport"
)

func TestConfig(t *testing.T) {
	t.Run("validate test", func(t *testing.T) {
		conf := testConfig()
		assert.NoError(t, conf.Validate())

		conf.Port = 0
		assert.ErrorIs(t, conf.Validate(), transport.ErrInvalidPort)

		conf = testConfig()
		conf.PingInterval = "1 hour"
		assert.Error(t, conf.Validate())

		conf = testConfig()
		conf.SendBufferSize = 0
		assert.ErrorIs(t, conf.Validate(), transport.ErrInvalidSendBufferSize)

		conf = testConfig()
		conf.MaxMessageBytes = -1
		assert.ErrorIs(t, conf.Validate(), transport.ErrInvalidMaxMessageBytes)
	})
}
