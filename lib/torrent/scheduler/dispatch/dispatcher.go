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
	"errors"
	"fmt"

	"github.com/uber/windlass/core"
	"github.com/uber/windlass/lib/torrent/scheduler/conn"
	"github.com/uber/windlass/lib/torrent/storage"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// PeerStorage provides the session-wide transfer statistics the upload
// gate samples.
type PeerStorage interface {
	TransferStat() core.TransferStat
}

// Dispatcher queues outbound wire messages toward a single remote peer
// and tracks the peer's outstanding block requests. It owns its queue and
// slot table exclusively; collaborator handles are shared with the
// session and outlive the dispatcher.
//
// A dispatcher is advanced only by the owning interaction's goroutine:
// SendMessages and CheckRequestSlots must never run concurrently with
// each other or with themselves, which the per-peer serialization of the
// event loop guarantees. No internal locking is performed.
type Dispatcher struct {
	config       Config
	stats        tally.Scope
	clk          clock.Clock
	cuid         string
	peer         *core.Peer
	peerStorage  PeerStorage
	pieceStorage storage.PieceStorage
	factory      conn.Factory
	torrent      *core.MetaInfo
	logger       *zap.SugaredLogger

	queue []conn.Message
	slots []RequestSlot
}

// New creates a new Dispatcher for peer. Fails fast if any collaborator
// handle is missing.
func New(
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	peer *core.Peer,
	peerStorage PeerStorage,
	pieceStorage storage.PieceStorage,
	factory conn.Factory,
	torrent *core.MetaInfo,
	cuid string,
	logger *zap.SugaredLogger) (*Dispatcher, error) {

	config = config.applyDefaults()

	switch {
	case peer == nil:
		return nil, errors.New("no peer configured")
	case peerStorage == nil:
		return nil, errors.New("no peer storage configured")
	case pieceStorage == nil:
		return nil, errors.New("no piece storage configured")
	case factory == nil:
		return nil, errors.New("no message factory configured")
	case torrent == nil:
		return nil, errors.New("no torrent context configured")
	}

	stats = stats.Tagged(map[string]string{
		"module": "dispatch",
	})

	return &Dispatcher{
		config:       config,
		stats:        stats,
		clk:          clk,
		cuid:         cuid,
		peer:         peer,
		peerStorage:  peerStorage,
		pieceStorage: pieceStorage,
		factory:      factory,
		torrent:      torrent,
		logger:       logger,
	}, nil
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("Dispatcher(%s, hash=%s)", d.peer, d.torrent.InfoHash())
}

// Enqueue appends msg to the outbound queue. The message's OnQueued hook
// runs exactly once, before the message becomes visible to iteration.
func (d *Dispatcher) Enqueue(msg conn.Message) {
	msg.OnQueued()
	d.queue = append(d.queue, msg)
}

// NumQueuedMessages returns the current queue length.
func (d *Dispatcher) NumQueuedMessages() int {
	return len(d.queue)
}

// IsSendingInProgress returns true if a partial write is pending on this
// peer, i.e. the head-of-queue message has started but not finished
// transmission.
func (d *Dispatcher) IsSendingInProgress() bool {
	return len(d.queue) > 0 && d.queue[0].SendingInProgress()
}

// SendMessages drains the queue under the upload rate discipline:
//
//   - A head message with a pending partial write is resumed and the pass
//     stops, whatever the outcome. Nothing may interleave with it on the
//     socket.
//   - While the peer is over its upload budget, piece payloads are
//     skipped unsent but stay queued for re-evaluation on the next pass.
//     Control messages are never throttled.
//   - A message which remains in progress after its send stays at the
//     head and stops the pass; fully sent messages are removed.
//
// The upload speed is sampled once per call. A non-nil error is fatal to
// the peer session and leaves the failed message at the head.
func (d *Dispatcher) SendMessages() error {
	budgetExceeded := overUploadBudget(
		d.config.MaxUploadSpeedLimit, d.peerStorage.TransferStat().UploadSpeed)

	var retained []conn.Message
	for i := 0; i < len(d.queue); i++ {
		m := d.queue[i]
		if m.SendingInProgress() {
			err := m.Send()
			d.queue = append(retained, d.queue[i:]...)
			if err != nil {
				return d.fatal(m, err)
			}
			return nil
		}
		if m.Uploading() && budgetExceeded {
			d.stats.Counter("uploads_throttled").Inc(1)
			retained = append(retained, m)
			continue
		}
		if err := m.Send(); err != nil {
			d.queue = append(retained, d.queue[i:]...)
			return d.fatal(m, err)
		}
		if m.SendingInProgress() {
			d.stats.Counter("partial_writes").Inc(1)
			d.queue = append(retained, d.queue[i:]...)
			return nil
		}
		d.stats.Counter("messages_sent").Inc(1)
	}
	d.queue = retained
	return nil
}

// DoCancelSendingPieceAction broadcasts a piece cancellation to every
// queued message. Handlers only mutate their own message state; a
// cancelled payload is discarded by a later send pass, never here, so the
// queue length is unchanged.
func (d *Dispatcher) DoCancelSendingPieceAction(index, begin, length int) {
	e := conn.CancelSendingPieceEvent{Index: index, Begin: begin, Length: length}
	for _, m := range d.queue {
		m.HandleEvent(e)
	}
}

// AddOutstandingRequest registers slot as in-flight.
func (d *Dispatcher) AddOutstandingRequest(slot RequestSlot) {
	d.slots = append(d.slots, slot)
}

// RemoveOutstandingRequest deletes the first slot matching slot's
// (index, begin, length) triple.
func (d *Dispatcher) RemoveOutstandingRequest(slot RequestSlot) {
	for i, s := range d.slots {
		if s.matches(slot.Index, slot.Begin, slot.Length) {
			d.slots = append(d.slots[:i], d.slots[i+1:]...)
			return
		}
	}
}

// IsOutstandingRequest returns true if some slot matches index and begin.
// Block length is fixed by the protocol, so the membership test ignores
// it.
func (d *Dispatcher) IsOutstandingRequest(index, begin int) bool {
	for _, s := range d.slots {
		if s.Index == index && s.Begin == begin {
			return true
		}
	}
	return false
}

// GetOutstandingRequest returns the slot matching the full triple, or
// NullSlot. Keeping length in the lookup lets callers handling reject
// responses verify the remote peer's claim.
func (d *Dispatcher) GetOutstandingRequest(index, begin, length int) RequestSlot {
	for _, s := range d.slots {
		if s.matches(index, begin, length) {
			return s
		}
	}
	return NullSlot
}

// CountOutstandingRequest returns the number of in-flight slots.
func (d *Dispatcher) CountOutstandingRequest() int {
	return len(d.slots)
}

// CheckRequestSlots sweeps the slot table once, in insertion order:
//
//   - A slot whose piece is gone, or whose block has since completed, is
//     obsolete and dropped. If the block completed with the piece still
//     present, a cancel message is queued toward the peer.
//   - A slot older than the request timeout is dropped, its block is
//     reverted to missing-unused, and the peer is marked snubbing.
//   - Everything else is kept.
//
// Removals never skip subsequent slots, and snubbing does not short-cut
// the rest of the sweep.
func (d *Dispatcher) CheckRequestSlots() {
	now := d.clk.Now()

	var kept []RequestSlot
	for _, s := range d.slots {
		piece := d.pieceStorage.GetPiece(s.Index)
		if piece == nil || piece.IsBlockCompleted(s.BlockIndex) {
			if piece != nil {
				d.log("slot", s).Info("Block completed, cancelling request")
				d.Enqueue(d.factory.NewCancelMessage(s.Index, s.Begin, s.Length))
				d.stats.Counter("cancels_sent").Inc(1)
			} else {
				d.log("slot", s).Info("Dropping request for missing piece")
			}
			d.stats.Counter("stale_requests").Inc(1)
			continue
		}
		if now.Sub(s.DispatchedAt) > d.config.RequestTimeout {
			d.log("slot", s).Info("Request timed out, snubbing peer")
			piece.CancelBlock(s.BlockIndex)
			d.peer.SetSnubbing(true)
			d.stats.Counter("request_timeouts").Inc(1)
			continue
		}
		kept = append(kept, s)
	}
	d.slots = kept
}

func (d *Dispatcher) fatal(m conn.Message, err error) error {
	d.stats.Counter("send_failures").Inc(1)
	d.log("message", m).Errorf("Fatal error sending message: %s", err)
	return fmt.Errorf("send %s: %s", m, err)
}

func (d *Dispatcher) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "cuid", d.cuid, "remote_peer", d.peer)
	return d.logger.With(keysAndValues...)
}
