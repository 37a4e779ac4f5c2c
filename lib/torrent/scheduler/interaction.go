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
	"fmt"
	"net"
	"sync"

	"github.com/uber/windlass/core"
	"github.com/uber/windlass/lib/torrent/peerstore"
	"github.com/uber/windlass/lib/torrent/scheduler/conn"
	"github.com/uber/windlass/lib/torrent/scheduler/dispatch"
	"github.com/uber/windlass/lib/torrent/storage"

	"github.com/andres-erbsen/clock"
	"github.com/satori/go.uuid"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// PeerInteraction owns the full lifetime of one established peer
// session: the socket, the message factory bound to it, and exactly one
// dispatcher. All dispatcher advancement happens on the interaction's
// single goroutine, which is what makes the dispatcher's lock-free
// design sound.
type PeerInteraction struct {
	config     Config
	stats      tally.Scope
	clk        clock.Clock
	cuid       string
	peer       *core.Peer
	peers      *peerstore.Store
	nc         net.Conn
	factory    *conn.WireFactory
	dispatcher *dispatch.Dispatcher
	logger     *zap.SugaredLogger

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewPeerInteraction creates a PeerInteraction over the handshaked
// socket nc. The peer must have been checked out of peers; it is
// returned on teardown.
func NewPeerInteraction(
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	peer *core.Peer,
	peers *peerstore.Store,
	pieceStorage storage.PieceStorage,
	torrent *core.MetaInfo,
	nc net.Conn,
	logger *zap.SugaredLogger) (*PeerInteraction, error) {

	config = config.applyDefaults()
	cuid := uuid.NewV4().String()

	writer := conn.NewWriter(nc, config.Conn.WriteTimeout)
	factory := conn.NewWireFactory(writer, nil, func(n int) {
		peers.RecordUpload(uint64(n))
	})

	d, err := dispatch.New(
		config.Dispatch, stats, clk, peer, peers, pieceStorage, factory,
		torrent, cuid, logger)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %s", err)
	}

	return &PeerInteraction{
		config:     config,
		stats:      stats.Tagged(map[string]string{"module": "scheduler"}),
		clk:        clk,
		cuid:       cuid,
		peer:       peer,
		peers:      peers,
		nc:         nc,
		factory:    factory,
		dispatcher: d,
		logger:     logger,
	}, nil
}

func (i *PeerInteraction) String() string {
	return fmt.Sprintf("PeerInteraction(%s)", i.peer)
}

// CUID returns the interaction's log correlation id.
func (i *PeerInteraction) CUID() string {
	return i.cuid
}

// Dispatcher returns the interaction's dispatcher.
func (i *PeerInteraction) Dispatcher() *dispatch.Dispatcher {
	return i.dispatcher
}

// Factory returns the wire message factory bound to the peer socket.
func (i *PeerInteraction) Factory() *conn.WireFactory {
	return i.factory
}

// Start launches the interaction loop. The loop serializes all
// dispatcher advancement until Stop is called or a fatal send error
// tears the session down.
func (i *PeerInteraction) Start() {
	if i.done != nil {
		return
	}
	i.done = make(chan struct{})
	i.wg.Add(1)
	go i.loop()
}

// Stop terminates the interaction and blocks until its loop has exited.
// Idempotent.
func (i *PeerInteraction) Stop() {
	if i.done == nil {
		return
	}
	i.stopOnce.Do(func() { close(i.done) })
	i.wg.Wait()
}

// Tick runs one slot sweep followed by one send pass. Exposed for
// engines which drive interactions from their own loop instead of
// Start.
func (i *PeerInteraction) Tick() error {
	i.dispatcher.CheckRequestSlots()
	return i.dispatcher.SendMessages()
}

func (i *PeerInteraction) loop() {
	defer i.wg.Done()
	defer i.teardown()

	sendTicker := i.clk.Ticker(i.config.SendInterval)
	defer sendTicker.Stop()
	sweepTicker := i.clk.Ticker(i.config.SlotSweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-sweepTicker.C:
			i.dispatcher.CheckRequestSlots()
		case <-sendTicker.C:
			if err := i.dispatcher.SendMessages(); err != nil {
				i.log().Errorf("Fatal send error, closing peer session: %s", err)
				i.stats.Counter("session_failures").Inc(1)
				i.stopOnce.Do(func() { close(i.done) })
				return
			}
		case <-i.done:
			return
		}
	}
}

// teardown closes the socket and returns the peer to the store for
// later selection.
func (i *PeerInteraction) teardown() {
	i.log().Info("Peer interaction teardown")
	i.nc.Close()
	i.peers.Return(i.peer)
}

func (i *PeerInteraction) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "cuid", i.cuid, "remote_peer", i.peer)
	return i.logger.With(keysAndValues...)
}
