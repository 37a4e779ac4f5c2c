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
package conn

import (
	"time"

	"github.com/uber/windlass/lib/torrent/scheduler/conn/bandwidth"
	"github.com/uber/windlass/utils/backoff"
)

// Config is the configuration for individual live connections.
type Config struct {

	// ConnectTimeout is the timeout for dialing a remote peer.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// HandshakeTimeout is the timeout for writing and reading connections
	// during handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// WriteTimeout bounds a single send attempt on an established
	// connection. A send which hits this deadline is treated as a partial
	// write and resumed on the next attempt, not as a failure.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ObfuscateHandshake selects the obfuscated handshake when initiating
	// connections to remote peers.
	ObfuscateHandshake bool `yaml:"obfuscate_handshake"`

	// DialRetry paces repeated dial attempts against a single peer before
	// the initiate command gives up on it.
	DialRetry backoff.Config `yaml:"dial_retry"`

	Bandwidth bandwidth.Config `yaml:"bandwidth"`
}

func (c Config) applyDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 100 * time.Millisecond
	}
	if c.DialRetry.RetryTimeout == 0 {
		c.DialRetry.RetryTimeout = 15 * time.Second
	}
	return c
}
