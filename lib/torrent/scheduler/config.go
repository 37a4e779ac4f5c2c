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
package scheduler

import (
	"time"

	"github.com/uber/windlass/lib/torrent/scheduler/conn"
	"github.com/uber/windlass/lib/torrent/scheduler/dispatch"
)

// Config defines per-peer interaction configuration.
type Config struct {

	// SendInterval is the cadence at which the interaction drains its
	// dispatcher queue.
	SendInterval time.Duration `yaml:"send_interval"`

	// SlotSweepInterval is the cadence at which outstanding request slots
	// are checked for staleness and timeout.
	SlotSweepInterval time.Duration `yaml:"slot_sweep_interval"`

	// CommandQueueSize bounds the engine command queue.
	CommandQueueSize int `yaml:"command_queue_size"`

	Conn conn.Config `yaml:"conn"`

	Dispatch dispatch.Config `yaml:"dispatch"`
}

func (c Config) applyDefaults() Config {
	if c.SendInterval == 0 {
		c.SendInterval = 100 * time.Millisecond
	}
	if c.SlotSweepInterval == 0 {
		c.SlotSweepInterval = time.Second
	}
	if c.CommandQueueSize == 0 {
		c.CommandQueueSize = 1000
	}
	return c
}
