// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package dispatch

import (
	"fmt"
	"time"

	"github.com/uber/windlass/utils/timeutil"

	"github.com/c2h5oh/datasize"
)

// Config defines the configuration for per-peer message dispatch.
type Config struct {

	// RequestTimeout is how long an outstanding block request may stay
	// unanswered before the slot sweep reclaims the block and snubs the
	// peer.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxUploadSpeedLimit is the upload budget in bytes per second,
	// checked against the session-wide upload speed reported by peer
	// storage. Zero means unlimited. While the observed upload speed is at
	// or above the limit, queued piece payloads are held back unsent.
	MaxUploadSpeedLimit uint64 `yaml:"max_upload_speed_limit"`
}

func (c Config) applyDefaults() Config {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	// Guard against timeouts shorter than a single slot sweep interval.
	c.RequestTimeout = timeutil.MaxDuration(c.RequestTimeout, time.Second)
	return c
}

func (c Config) String() string {
	limit := "unlimited"
	if c.MaxUploadSpeedLimit > 0 {
		limit = fmt.Sprintf("%s/sec", datasize.ByteSize(c.MaxUploadSpeedLimit).HR())
	}
	return fmt.Sprintf(
		"Config(request_timeout=%s, max_upload_speed_limit=%s)",
		c.RequestTimeout, limit)
}
