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
	"testing"
	"time"

	"github.com/uber/windlass/core"
	"github.com/uber/windlass/lib/torrent/scheduler/conn"
	"github.com/uber/windlass/lib/torrent/storage"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// fakeMessage is a scriptable conn.Message which records dispatcher
// interactions.
type fakeMessage struct {
	sendingInProgress bool
	uploading         bool

	// partialWrite makes Send latch sendingInProgress, as a short write
	// does.
	partialWrite bool

	onQueuedCalls  int
	sendCalls      int
	cancelObserved bool
	sendErr        error
}

func (m *fakeMessage) String() string { return "fakeMessage" }

func (m *fakeMessage) OnQueued() { m.onQueuedCalls++ }

func (m *fakeMessage) Send() error {
	m.sendCalls++
	if m.partialWrite {
		m.sendingInProgress = true
	}
	return m.sendErr
}

func (m *fakeMessage) SendingInProgress() bool { return m.sendingInProgress }

func (m *fakeMessage) Uploading() bool { return m.uploading }

func (m *fakeMessage) HandleEvent(e conn.Event) {
	if _, ok := e.(conn.CancelSendingPieceEvent); ok {
		m.cancelObserved = true
	}
}

// fakeCancelMessage is what the fake factory hands back, recording the
// requested triple.
type fakeCancelMessage struct {
	fakeMessage

	index  int
	begin  int
	length int
}

type fakeFactory struct {
	cancels []*fakeCancelMessage
}

func (f *fakeFactory) NewCancelMessage(index, begin, length int) conn.Message {
	m := &fakeCancelMessage{index: index, begin: begin, length: length}
	f.cancels = append(f.cancels, m)
	return m
}

type fakePeerStorage struct {
	stat core.TransferStat
}

func (s *fakePeerStorage) TransferStat() core.TransferStat { return s.stat }

type fakePieceStorage struct {
	piece *storage.Piece
}

func (s *fakePieceStorage) GetPiece(index int) *storage.Piece { return s.piece }

func (s *fakePieceStorage) NumPieces() int { return 1 }

const pieceLength = 16 * 1024

type dispatcherMocks struct {
	clk          *clock.Mock
	peer         *core.Peer
	peerStorage  *fakePeerStorage
	pieceStorage *fakePieceStorage
	factory      *fakeFactory
	torrent      *core.MetaInfo
}

func newDispatcherMocks() *dispatcherMocks {
	return &dispatcherMocks{
		clk:          clock.NewMock(),
		peer:         core.PeerFixture(),
		peerStorage:  &fakePeerStorage{},
		pieceStorage: &fakePieceStorage{},
		factory:      &fakeFactory{},
		torrent:      core.SizedBlobFixture(4*pieceLength, pieceLength).MetaInfo,
	}
}

func (m *dispatcherMocks) newDispatcher(config Config) *Dispatcher {
	d, err := New(
		config,
		tally.NoopScope,
		m.clk,
		m.peer,
		m.peerStorage,
		m.pieceStorage,
		m.factory,
		m.torrent,
		"cuid1",
		zap.NewNop().Sugar())
	if err != nil {
		panic(err)
	}
	return d
}

func TestNewFailsFastOnMissingCollaborators(t *testing.T) {
	mocks := newDispatcherMocks()

	_, err := New(
		Config{}, tally.NoopScope, mocks.clk, mocks.peer, nil,
		mocks.pieceStorage, mocks.factory, mocks.torrent, "cuid1",
		zap.NewNop().Sugar())
	require.Error(t, err)

	_, err = New(
		Config{}, tally.NoopScope, mocks.clk, mocks.peer, mocks.peerStorage,
		mocks.pieceStorage, nil, mocks.torrent, "cuid1",
		zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestEnqueueCallsOnQueuedExactlyOnce(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	msg := &fakeMessage{}
	require.Equal(0, msg.onQueuedCalls)

	d.Enqueue(msg)

	require.Equal(1, msg.onQueuedCalls)
	require.Equal(1, d.NumQueuedMessages())
}

func TestSendMessagesDrainsQueue(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	msg1 := &fakeMessage{}
	msg2 := &fakeMessage{}
	d.Enqueue(msg1)
	d.Enqueue(msg2)

	require.NoError(d.SendMessages())

	require.Equal(1, msg1.sendCalls)
	require.Equal(1, msg2.sendCalls)
	require.Equal(0, d.NumQueuedMessages())
}

func TestSendMessagesUnderUploadLimit(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{MaxUploadSpeedLimit: 100})

	mocks.peerStorage.stat = core.TransferStat{UploadSpeed: 99}

	msg1 := &fakeMessage{uploading: true}
	msg2 := &fakeMessage{uploading: true}
	d.Enqueue(msg1)
	d.Enqueue(msg2)

	require.NoError(d.SendMessages())

	require.Equal(1, msg1.sendCalls)
	require.Equal(1, msg2.sendCalls)
	require.Equal(0, d.NumQueuedMessages())
}

func TestSendMessagesOverUploadLimit(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{MaxUploadSpeedLimit: 100})

	mocks.peerStorage.stat = core.TransferStat{UploadSpeed: 150}

	msg1 := &fakeMessage{uploading: true}
	msg2 := &fakeMessage{uploading: true}
	msg3 := &fakeMessage{}
	d.Enqueue(msg1)
	d.Enqueue(msg2)
	d.Enqueue(msg3)

	require.NoError(d.SendMessages())

	// Uploads over budget are skipped without send but stay queued for the
	// next pass; control messages pass through the gate.
	require.Equal(0, msg1.sendCalls)
	require.Equal(0, msg2.sendCalls)
	require.Equal(1, msg3.sendCalls)
	require.Equal(2, d.NumQueuedMessages())
}

func TestSendMessagesZeroLimitMeansUnlimited(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	mocks.peerStorage.stat = core.TransferStat{UploadSpeed: 1 << 40}

	msg := &fakeMessage{uploading: true}
	d.Enqueue(msg)

	require.NoError(d.SendMessages())

	require.Equal(1, msg.sendCalls)
	require.Equal(0, d.NumQueuedMessages())
}

func TestSendMessagesStickyHead(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	msg1 := &fakeMessage{}
	msg2 := &fakeMessage{sendingInProgress: true}
	msg3 := &fakeMessage{}
	d.Enqueue(msg1)
	d.Enqueue(msg2)
	d.Enqueue(msg3)

	require.NoError(d.SendMessages())

	// The partial write is resumed and stops the pass; nothing behind it
	// is attempted.
	require.Equal(1, msg1.sendCalls)
	require.Equal(1, msg2.sendCalls)
	require.Equal(0, msg3.sendCalls)
	require.Equal(2, d.NumQueuedMessages())
	require.True(d.IsSendingInProgress())
}

func TestSendMessagesStopsWhenSendLeavesPartialWrite(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	msg1 := &fakeMessage{}
	msg2 := &fakeMessage{}
	d.Enqueue(msg1)
	d.Enqueue(msg2)

	// msg1's send only partially writes.
	msg1.sendErr = nil
	msg1.partialWrite = true

	require.NoError(d.SendMessages())

	require.Equal(1, msg1.sendCalls)
	require.Equal(0, msg2.sendCalls)
	require.Equal(2, d.NumQueuedMessages())

	// Across passes the partial write is retried first.
	msg1.partialWrite = false
	msg1.sendingInProgress = false
	require.NoError(d.SendMessages())
	require.Equal(2, msg1.sendCalls)
	require.Equal(1, msg2.sendCalls)
	require.Equal(0, d.NumQueuedMessages())
}

func TestSendMessagesFatalErrorSurfaces(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	msg1 := &fakeMessage{sendErr: errors.New("socket closed")}
	msg2 := &fakeMessage{}
	d.Enqueue(msg1)
	d.Enqueue(msg2)

	require.Error(d.SendMessages())
	require.Equal(0, msg2.sendCalls)
	require.Equal(2, d.NumQueuedMessages())
}

func TestDoCancelSendingPieceActionBroadcasts(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	msg1 := &fakeMessage{}
	msg2 := &fakeMessage{}
	d.Enqueue(msg1)
	d.Enqueue(msg2)

	d.DoCancelSendingPieceAction(0, 0, 0)

	require.True(msg1.cancelObserved)
	require.True(msg2.cancelObserved)

	// Broadcast never removes queued messages.
	require.Equal(2, d.NumQueuedMessages())
}

func TestCheckRequestSlotsKeepsFreshSlot(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{RequestTimeout: 60 * time.Second})

	piece := storage.NewPiece(0, pieceLength)
	i, ok := piece.MissingUnusedBlockIndex()
	require.True(ok)
	require.Equal(0, i)
	mocks.pieceStorage.piece = piece

	d.AddOutstandingRequest(NewRequestSlot(mocks.clk, 0, 0, pieceLength, 0, piece))

	d.CheckRequestSlots()

	require.Equal(0, d.NumQueuedMessages())
	require.Equal(1, d.CountOutstandingRequest())
	require.False(mocks.peer.Snubbing())
}

func TestCheckRequestSlotsTimeout(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{RequestTimeout: 60 * time.Second})

	piece := storage.NewPiece(0, pieceLength)
	i, ok := piece.MissingUnusedBlockIndex()
	require.True(ok)
	require.Equal(0, i)
	mocks.pieceStorage.piece = piece

	d.AddOutstandingRequest(NewRequestSlot(mocks.clk, 0, 0, pieceLength, 0, piece))

	mocks.clk.Add(61 * time.Second)

	d.CheckRequestSlots()

	require.Equal(0, d.NumQueuedMessages())
	require.Equal(0, d.CountOutstandingRequest())
	require.False(piece.IsBlockUsed(0))
	require.True(mocks.peer.Snubbing())
}

func TestCheckRequestSlotsCompletedBlock(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{RequestTimeout: 60 * time.Second})

	piece := storage.NewPiece(0, pieceLength)
	piece.CompleteBlock(0)
	mocks.pieceStorage.piece = piece

	d.AddOutstandingRequest(NewRequestSlot(mocks.clk, 0, 0, pieceLength, 0, piece))

	d.CheckRequestSlots()

	require.Equal(1, d.NumQueuedMessages())
	require.Equal(0, d.CountOutstandingRequest())
	require.False(mocks.peer.Snubbing())

	require.Len(mocks.factory.cancels, 1)
	cancel := mocks.factory.cancels[0]
	require.Equal(0, cancel.index)
	require.Equal(0, cancel.begin)
	require.Equal(pieceLength, cancel.length)
	require.Equal(1, cancel.onQueuedCalls)
}

func TestCheckRequestSlotsMissingPiece(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{RequestTimeout: 60 * time.Second})

	// No piece registered in storage.
	d.AddOutstandingRequest(NewRequestSlot(mocks.clk, 0, 0, pieceLength, 0, nil))

	d.CheckRequestSlots()

	// The slot is dropped without enqueueing a cancel or snubbing.
	require.Equal(0, d.NumQueuedMessages())
	require.Equal(0, d.CountOutstandingRequest())
	require.Empty(mocks.factory.cancels)
	require.False(mocks.peer.Snubbing())
}

func TestCheckRequestSlotsTimeoutAppliesToLaterSlots(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{RequestTimeout: 60 * time.Second})

	piece := storage.NewPiece(0, 2*pieceLength)
	for j := 0; j < 2; j++ {
		i, ok := piece.MissingUnusedBlockIndex()
		require.True(ok)
		require.Equal(j, i)
	}
	mocks.pieceStorage.piece = piece

	d.AddOutstandingRequest(NewRequestSlot(mocks.clk, 0, 0, pieceLength, 0, piece))
	d.AddOutstandingRequest(NewRequestSlot(mocks.clk, 0, pieceLength, pieceLength, 1, piece))

	mocks.clk.Add(61 * time.Second)

	// Snubbing on the first timed-out slot does not short-cut the sweep.
	d.CheckRequestSlots()

	require.Equal(0, d.CountOutstandingRequest())
	require.False(piece.IsBlockUsed(0))
	require.False(piece.IsBlockUsed(1))
	require.True(mocks.peer.Snubbing())
}

func TestIsSendingInProgress(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	require.False(d.IsSendingInProgress())

	msg := &fakeMessage{}
	d.Enqueue(msg)
	require.False(d.IsSendingInProgress())

	msg.sendingInProgress = true
	require.True(d.IsSendingInProgress())
}

func TestCountOutstandingRequest(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	d.AddOutstandingRequest(NewRequestSlot(mocks.clk, 0, 0, pieceLength, 0, nil))
	require.Equal(1, d.CountOutstandingRequest())
}

func TestIsOutstandingRequestMatchesByIndexAndBegin(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	d.AddOutstandingRequest(NewRequestSlot(mocks.clk, 0, 0, pieceLength, 0, nil))

	require.True(d.IsOutstandingRequest(0, 0))
	require.False(d.IsOutstandingRequest(0, 1))
	require.False(d.IsOutstandingRequest(1, 0))
	require.False(d.IsOutstandingRequest(1, 1))
}

func TestGetOutstandingRequestMatchesFullTriple(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	d.AddOutstandingRequest(NewRequestSlot(mocks.clk, 1, 1024, 16*1024, 10, nil))

	s := d.GetOutstandingRequest(1, 1024, 16*1024)
	require.False(s.IsNull())
	require.Equal(10, s.BlockIndex)

	require.True(d.GetOutstandingRequest(1, 1024, 17*1024).IsNull())
	require.True(d.GetOutstandingRequest(1, 2*1024, 16*1024).IsNull())
	require.True(d.GetOutstandingRequest(2, 1024, 16*1024).IsNull())
}

func TestRemoveOutstandingRequest(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	d.AddOutstandingRequest(NewRequestSlot(mocks.clk, 1, 1024, 16*1024, 10, nil))

	s := d.GetOutstandingRequest(1, 1024, 16*1024)
	require.False(s.IsNull())

	d.RemoveOutstandingRequest(s)

	require.True(d.GetOutstandingRequest(1, 1024, 16*1024).IsNull())
	require.Equal(0, d.CountOutstandingRequest())
}

func TestRemoveOutstandingRequestDeletesFirstMatchOnly(t *testing.T) {
	require := require.New(t)

	mocks := newDispatcherMocks()
	d := mocks.newDispatcher(Config{})

	s1 := NewRequestSlot(mocks.clk, 0, 0, pieceLength, 0, nil)
	s2 := NewRequestSlot(mocks.clk, 0, 0, pieceLength, 0, nil)
	d.AddOutstandingRequest(s1)
	d.AddOutstandingRequest(s2)

	d.RemoveOutstandingRequest(s1)
	require.Equal(1, d.CountOutstandingRequest())
	require.True(d.IsOutstandingRequest(0, 0))
}
