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
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/uber/windlass/lib/torrent/scheduler/conn/bandwidth"
)

// Event is broadcast by the dispatcher to every queued message. Handlers
// mutate their own message state only; they must never touch the queue.
type Event interface{}

// CancelSendingPieceEvent announces that transmission of the given block
// should be abandoned. Queued piece messages matching the triple mark
// themselves dropped and complete trivially on their next send.
type CancelSendingPieceEvent struct {
	Index  int
	Begin  int
	Length int
}

// Message is the capability set the dispatcher requires of an outbound
// wire message.
type Message interface {
	fmt.Stringer

	// OnQueued is invoked exactly once, before the message becomes visible
	// in the dispatcher queue.
	OnQueued()

	// Send attempts transmission. A transient partial write leaves
	// SendingInProgress true and returns nil; the next Send resumes
	// byte-exact where the previous one stopped. A non-nil error is fatal
	// to the peer session.
	Send() error

	// SendingInProgress returns true if a prior Send partially wrote the
	// message to the socket.
	SendingInProgress() bool

	// Uploading returns true if the message carries a piece payload.
	Uploading() bool

	// HandleEvent receives events broadcast by the dispatcher.
	HandleEvent(Event)
}

// PieceCarrier is implemented by messages carrying a block payload,
// exposing the triple consulted by cancel matching.
type PieceCarrier interface {
	Message

	Index() int
	Begin() int
	BlockLength() int
}

// Factory constructs wire messages bound to a single peer connection.
// It is the dispatcher's source of cancel messages.
type Factory interface {
	NewCancelMessage(index, begin, length int) Message
}

// MessageID enumerates the BitTorrent wire message ids.
type MessageID uint8

// Standard wire message ids.
const (
	IDChoke         MessageID = 0
	IDUnchoke       MessageID = 1
	IDInterested    MessageID = 2
	IDNotInterested MessageID = 3
	IDHave          MessageID = 4
	IDBitfield      MessageID = 5
	IDRequest       MessageID = 6
	IDPiece         MessageID = 7
	IDCancel        MessageID = 8
)

// idKeepAlive labels the id-less keep-alive frame in logs and errors.
const idKeepAlive MessageID = 0xff

func (id MessageID) String() string {
	switch id {
	case IDChoke:
		return "choke"
	case IDUnchoke:
		return "unchoke"
	case IDInterested:
		return "interested"
	case IDNotInterested:
		return "not_interested"
	case IDHave:
		return "have"
	case IDBitfield:
		return "bitfield"
	case IDRequest:
		return "request"
	case IDPiece:
		return "piece"
	case IDCancel:
		return "cancel"
	case idKeepAlive:
		return "keepalive"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// Writer performs deadline-bounded writes on a peer socket. Deadline
// expiry is how non-blocking partial writes are modelled: the caller
// records how far it got and resumes later.
type Writer struct {
	nc      net.Conn
	timeout time.Duration
}

// NewWriter creates a Writer around nc with the given per-attempt timeout.
func NewWriter(nc net.Conn, timeout time.Duration) *Writer {
	return &Writer{nc, timeout}
}

func (w *Writer) write(b []byte) (int, error) {
	// NOTE: The net package evaluates deadlines against the system clock,
	// so no clock interface here.
	if err := w.nc.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return 0, err
	}
	return w.nc.Write(b)
}

// frame encodes a length-prefixed wire frame: <len:4><id:1><payload>.
func frame(id MessageID, payload []byte) []byte {
	b := make([]byte, 4+1+len(payload))
	binary.BigEndian.PutUint32(b, uint32(1+len(payload)))
	b[4] = byte(id)
	copy(b[5:], payload)
	return b
}

func indexPayload(index int) []byte {
	p := make([]byte, 4)
	binary.BigEndian.PutUint32(p, uint32(index))
	return p
}

func triplePayload(index, begin, length int) []byte {
	p := make([]byte, 12)
	binary.BigEndian.PutUint32(p[0:4], uint32(index))
	binary.BigEndian.PutUint32(p[4:8], uint32(begin))
	binary.BigEndian.PutUint32(p[8:12], uint32(length))
	return p
}

// wireMessage is the common implementation of every outbound frame.
type wireMessage struct {
	id         MessageID
	frame      []byte
	offset     int
	w          *Writer
	inProgress bool
	queued     bool
}

func newWireMessage(w *Writer, id MessageID, payload []byte) *wireMessage {
	return &wireMessage{id: id, frame: frame(id, payload), w: w}
}

func (m *wireMessage) String() string {
	return fmt.Sprintf("Message(%s)", m.id)
}

func (m *wireMessage) OnQueued() {
	m.queued = true
}

func (m *wireMessage) SendingInProgress() bool {
	return m.inProgress
}

func (m *wireMessage) Uploading() bool {
	return false
}

func (m *wireMessage) HandleEvent(Event) {}

func (m *wireMessage) Send() error {
	return m.writeFrame()
}

// writeFrame pushes the remainder of the frame to the socket. Deadline
// expiry latches inProgress; any other error is fatal.
func (m *wireMessage) writeFrame() error {
	n, err := m.w.write(m.frame[m.offset:])
	m.offset += n
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			m.inProgress = m.offset < len(m.frame)
			return nil
		}
		return fmt.Errorf("write %s: %s", m.id, err)
	}
	m.inProgress = false
	return nil
}

func (m *wireMessage) sent() bool {
	return m.offset == len(m.frame) && m.offset > 0
}

// keepAliveMessage is a bare length-zero frame.
type keepAliveMessage struct {
	wireMessage
}

func (m *keepAliveMessage) String() string {
	return "Message(keepalive)"
}

// pieceMessage carries one block of piece payload. It is the only
// uploading message, and the only one which reacts to cancel events.
type pieceMessage struct {
	wireMessage
	index       int
	begin       int
	blockLength int

	limiter  *bandwidth.Limiter
	onSent   func(nbytes int)
	reserved bool
	dropped  bool
}

func (m *pieceMessage) String() string {
	return fmt.Sprintf("Message(piece, index=%d, begin=%d)", m.index, m.begin)
}

func (m *pieceMessage) Uploading() bool {
	return true
}

func (m *pieceMessage) Index() int {
	return m.index
}

func (m *pieceMessage) Begin() int {
	return m.begin
}

func (m *pieceMessage) BlockLength() int {
	return m.blockLength
}

func (m *pieceMessage) HandleEvent(e Event) {
	cancel, ok := e.(CancelSendingPieceEvent)
	if !ok {
		return
	}
	if cancel.Index == m.index && cancel.Begin == m.begin && cancel.Length == m.blockLength {
		m.dropped = true
	}
}

func (m *pieceMessage) Send() error {
	if m.dropped && m.offset == 0 {
		// Cancelled before any byte hit the wire: complete trivially. Once
		// transmission has started the frame must finish to preserve
		// framing, cancelled or not.
		m.inProgress = false
		return nil
	}
	if m.limiter != nil && !m.reserved {
		if err := m.limiter.ReserveEgress(int64(m.blockLength)); err != nil {
			return fmt.Errorf("egress bandwidth: %s", err)
		}
		m.reserved = true
	}
	if err := m.writeFrame(); err != nil {
		return err
	}
	if m.sent() && m.onSent != nil {
		m.onSent(m.blockLength)
		m.onSent = nil
	}
	return nil
}

// WireFactory builds outbound messages bound to a single peer socket.
type WireFactory struct {
	w       *Writer
	limiter *bandwidth.Limiter
	onPiece func(nbytes int)
}

// NewWireFactory creates a WireFactory writing through w. onPiece, if
// non-nil, is invoked with the block length of every fully sent piece
// message.
func NewWireFactory(w *Writer, limiter *bandwidth.Limiter, onPiece func(nbytes int)) *WireFactory {
	return &WireFactory{w, limiter, onPiece}
}

// NewKeepAliveMessage returns a keep-alive frame.
func (f *WireFactory) NewKeepAliveMessage() Message {
	m := &keepAliveMessage{}
	m.id = idKeepAlive
	m.frame = make([]byte, 4)
	m.w = f.w
	return m
}

// NewChokeMessage returns a choke message.
func (f *WireFactory) NewChokeMessage() Message {
	return newWireMessage(f.w, IDChoke, nil)
}

// NewUnchokeMessage returns an unchoke message.
func (f *WireFactory) NewUnchokeMessage() Message {
	return newWireMessage(f.w, IDUnchoke, nil)
}

// NewInterestedMessage returns an interested message.
func (f *WireFactory) NewInterestedMessage() Message {
	return newWireMessage(f.w, IDInterested, nil)
}

// NewNotInterestedMessage returns a not-interested message.
func (f *WireFactory) NewNotInterestedMessage() Message {
	return newWireMessage(f.w, IDNotInterested, nil)
}

// NewHaveMessage returns a have message for the given piece.
func (f *WireFactory) NewHaveMessage(index int) Message {
	return newWireMessage(f.w, IDHave, indexPayload(index))
}

// NewRequestMessage returns a request message for the given block.
func (f *WireFactory) NewRequestMessage(index, begin, length int) Message {
	return newWireMessage(f.w, IDRequest, triplePayload(index, begin, length))
}

// NewCancelMessage returns a cancel message for the given block.
func (f *WireFactory) NewCancelMessage(index, begin, length int) Message {
	return newWireMessage(f.w, IDCancel, triplePayload(index, begin, length))
}

// NewPieceMessage returns a piece message carrying block, beginning at
// begin within piece index.
func (f *WireFactory) NewPieceMessage(index, begin int, block []byte) Message {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	copy(payload[8:], block)

	m := &pieceMessage{
		index:       index,
		begin:       begin,
		blockLength: len(block),
		limiter:     f.limiter,
		onSent:      f.onPiece,
	}
	m.id = IDPiece
	m.frame = frame(IDPiece, payload)
	m.w = f.w
	return m
}
