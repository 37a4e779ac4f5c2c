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
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCommand struct {
	name     string
	executed bool
}

func (c *fakeCommand) String() string { return c.name }

func (c *fakeCommand) Execute() error {
	c.executed = true
	return nil
}

func TestCommandQueueFIFO(t *testing.T) {
	require := require.New(t)

	q := NewCommandQueue(10, zap.NewNop().Sugar())
	require.Equal(0, q.Len())
	require.Nil(q.Poll())

	c1 := &fakeCommand{name: "c1"}
	c2 := &fakeCommand{name: "c2"}
	q.Push(c1)
	q.Push(c2)
	require.Equal(2, q.Len())

	require.Equal(c1, q.Poll())
	require.Equal(c2, q.Poll())
	require.Nil(q.Poll())
}

func TestCommandQueueDropsWhenFull(t *testing.T) {
	require := require.New(t)

	q := NewCommandQueue(1, zap.NewNop().Sugar())

	q.Push(&fakeCommand{name: "c1"})
	q.Push(&fakeCommand{name: "c2"})

	require.Equal(1, q.Len())
	require.Equal("c1", q.Poll().String())
	require.Nil(q.Poll())
}
