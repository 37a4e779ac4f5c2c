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
package core

import (
	"fmt"

	"go.uber.org/atomic"
)

// Peer is the handle for a single remote peer, shared between the session
// and the per-peer interaction. The flags are written from the interaction's
// goroutine and read by the swarm manager, hence atomic.
type Peer struct {
	ID   PeerID
	IP   string
	Port int

	snubbing *atomic.Bool
	choking  *atomic.Bool
}

// NewPeer creates a new Peer.
func NewPeer(id PeerID, ip string, port int) *Peer {
	return &Peer{
		ID:       id,
		IP:       ip,
		Port:     port,
		snubbing: atomic.NewBool(false),
		choking:  atomic.NewBool(true),
	}
}

// Addr returns the "ip:port" address of p.
func (p *Peer) Addr() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

func (p *Peer) String() string {
	return fmt.Sprintf("Peer(%s@%s)", p.ID, p.Addr())
}

// Snubbing returns true if p has been marked unresponsive.
func (p *Peer) Snubbing() bool {
	return p.snubbing.Load()
}

// SetSnubbing marks p as unresponsive (or clears the mark). Snubbed peers
// are eligible for demotion by the swarm manager.
func (p *Peer) SetSnubbing(b bool) {
	p.snubbing.Store(b)
}

// Choking returns true if we are choking p.
func (p *Peer) Choking() bool {
	return p.choking.Load()
}

// SetChoking sets the choking flag.
func (p *Peer) SetChoking(b bool) {
	p.choking.Store(b)
}
