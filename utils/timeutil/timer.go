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
package timeutil

import (
	"sync"
	"time"
)

// Timer is a one-shot timer which can be started and cancelled multiple
// times, but fires at most once. Useful for deferring some
// event which may be aborted, e.g. an idle connection timeout.
type Timer struct {
	C <-chan time.Time

	d  time.Duration
	c  chan time.Time
	mu sync.Mutex
	t  *time.Timer
}

// NewTimer creates a new Timer which fires after d once started.
func NewTimer(d time.Duration) *Timer {
	c := make(chan time.Time, 1)
	return &Timer{C: c, d: d, c: c}
}

// Start arms the timer. Returns false if the timer is already armed or
// has already fired.
func (t *Timer) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		return false
	}
	t.t = time.AfterFunc(t.d, func() {
		t.c <- time.Now()
	})
	return true
}

// Cancel disarms the timer. Returns false if the timer was never armed
// or has already fired. After a successful Cancel, the timer may be
// started again.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t == nil {
		return false
	}
	stopped := t.t.Stop()
	if stopped {
		t.t = nil
	}
	return stopped
}
