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
	"github.com/uber/windlass/lib/torrent/scheduler/conn"

	"go.uber.org/zap"
)

// CommandQueue is a bounded FIFO of engine commands. Connection and
// handshake commands are pushed by initiators and drained by the engine
// loop on its turn.
type CommandQueue struct {
	commands chan conn.Command
	logger   *zap.SugaredLogger
}

// NewCommandQueue creates a CommandQueue holding at most size commands.
func NewCommandQueue(size int, logger *zap.SugaredLogger) *CommandQueue {
	if size <= 0 {
		size = 1000
	}
	return &CommandQueue{
		commands: make(chan conn.Command, size),
		logger:   logger,
	}
}

// Push enqueues c. If the queue is full the command is dropped; command
// producers are responsible for rescheduling on their own cadence.
func (q *CommandQueue) Push(c conn.Command) {
	select {
	case q.commands <- c:
	default:
		q.logger.With("command", c).Warn("Command queue full, dropping command")
	}
}

// Poll removes and returns the oldest command, or nil if the queue is
// empty.
func (q *CommandQueue) Poll() conn.Command {
	select {
	case c := <-q.commands:
		return c
	default:
		return nil
	}
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	return len(q.commands)
}
