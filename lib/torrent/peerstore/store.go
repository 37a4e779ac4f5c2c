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
package peerstore

import (
	"errors"
	"sync"
	"time"

	"github.com/uber/windlass/core"

	"github.com/andres-erbsen/clock"
	"golang.org/x/sync/syncmap"
)

// ErrNoPeersAvailable is returned by Checkout when every known peer is
// already checked out.
var ErrNoPeersAvailable = errors.New("no peers available")

// speedWindow is the length of the fixed sampling window over which
// transfer speeds are averaged. Speeds are recomputed each time a window
// elapses and hold steady in between.
const speedWindow = 5 * time.Second

// Store tracks the peers of a single torrent session and aggregates their
// transfer counters. Peer handles are checked out by connection commands
// and returned when the connection attempt is aborted or the interaction
// terminates.
type Store struct {
	clk clock.Clock

	peers syncmap.Map // core.PeerID -> *entry

	mu          sync.Mutex // Protects the rate sampling state below.
	uploaded    uint64
	downloaded  uint64
	windowStart time.Time
	windowUp    uint64
	windowDown  uint64
	uploadRate  uint64
	downRate    uint64
}

type entry struct {
	peer       *core.Peer
	checkedOut bool
}

// New creates a new Store.
func New(clk clock.Clock) *Store {
	return &Store{clk: clk, windowStart: clk.Now()}
}

// Add registers a peer with the store. No-op if the peer is already known.
func (s *Store) Add(p *core.Peer) {
	s.peers.LoadOrStore(p.ID, &entry{peer: p})
}

// Get returns the peer registered under id, or nil.
func (s *Store) Get(id core.PeerID) *core.Peer {
	v, ok := s.peers.Load(id)
	if !ok {
		return nil
	}
	return v.(*entry).peer
}

// Checkout hands out an available peer for a connection attempt. The peer
// stays registered but cannot be checked out again until returned.
func (s *Store) Checkout() (*core.Peer, error) {
	var p *core.Peer
	s.peers.Range(func(k, v interface{}) bool {
		e := v.(*entry)
		s.mu.Lock()
		defer s.mu.Unlock()
		if !e.checkedOut {
			e.checkedOut = true
			p = e.peer
			return false
		}
		return true
	})
	if p == nil {
		return nil, ErrNoPeersAvailable
	}
	return p, nil
}

// Return gives a checked-out peer back to the store, making it available
// for future connection attempts.
func (s *Store) Return(p *core.Peer) {
	v, ok := s.peers.Load(p.ID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v.(*entry).checkedOut = false
}

// HasAvailable returns true if at least one peer can be checked out.
func (s *Store) HasAvailable() bool {
	available := false
	s.peers.Range(func(k, v interface{}) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !v.(*entry).checkedOut {
			available = true
			return false
		}
		return true
	})
	return available
}

// RecordUpload accounts n bytes uploaded across the session.
func (s *Store) RecordUpload(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded += n
	s.windowUp += n
	s.maybeRotateWindow()
}

// RecordDownload accounts n bytes downloaded across the session.
func (s *Store) RecordDownload(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloaded += n
	s.windowDown += n
	s.maybeRotateWindow()
}

// TransferStat returns a snapshot of session-wide transfer totals and
// speeds. Speeds are averaged over the most recent complete sampling
// window.
func (s *Store) TransferStat() core.TransferStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeRotateWindow()
	return core.TransferStat{
		UploadSpeed:   s.uploadRate,
		DownloadSpeed: s.downRate,
		Uploaded:      s.uploaded,
		Downloaded:    s.downloaded,
	}
}

// maybeRotateWindow folds the current sampling window into the rate
// estimates once it has elapsed. Callers must hold mu.
func (s *Store) maybeRotateWindow() {
	elapsed := s.clk.Now().Sub(s.windowStart)
	if elapsed < speedWindow {
		return
	}
	secs := uint64(elapsed / time.Second)
	s.uploadRate = s.windowUp / secs
	s.downRate = s.windowDown / secs
	s.windowUp = 0
	s.windowDown = 0
	s.windowStart = s.clk.Now()
}
