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
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/uber/windlass/core"
)

const protocolName = "BitTorrent protocol"

const numReservedBytes = 8

// handshake is the fixed-size frame exchanged immediately after a peer
// connection is opened: <pstrlen><pstr><reserved:8><infohash:20><peerid:20>.
type handshake struct {
	infoHash core.InfoHash
	peerID   core.PeerID
}

func (h *handshake) marshal() []byte {
	b := make([]byte, 1+len(protocolName)+numReservedBytes+20+20)
	b[0] = byte(len(protocolName))
	offset := 1
	offset += copy(b[offset:], protocolName)
	offset += numReservedBytes
	offset += copy(b[offset:], h.infoHash.Bytes())
	copy(b[offset:], h.peerID[:])
	return b
}

func readHandshake(r io.Reader) (*handshake, error) {
	var pstrlen [1]byte
	if _, err := io.ReadFull(r, pstrlen[:]); err != nil {
		return nil, fmt.Errorf("read pstrlen: %s", err)
	}
	if int(pstrlen[0]) != len(protocolName) {
		return nil, errors.New("unexpected protocol string length")
	}
	rest := make([]byte, int(pstrlen[0])+numReservedBytes+40)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("read handshake: %s", err)
	}
	if string(rest[:len(protocolName)]) != protocolName {
		return nil, errors.New("protocol string mismatch")
	}
	var h handshake
	offset := len(protocolName) + numReservedBytes
	copy(h.infoHash[:], rest[offset:offset+20])
	copy(h.peerID[:], rest[offset+20:])
	return &h, nil
}

// Handshaker performs the plain peer wire handshake.
type Handshaker struct {
	config      Config
	localPeerID core.PeerID
}

// NewHandshaker creates a new Handshaker.
func NewHandshaker(config Config, localPeerID core.PeerID) *Handshaker {
	return &Handshaker{config.applyDefaults(), localPeerID}
}

// Initialize performs the initiator side of the handshake on nc for the
// torrent identified by infoHash. Verifies that the remote peer answers
// with the same infohash and, when expectedPeerID is non-zero, the
// expected peer id.
func (h *Handshaker) Initialize(
	nc net.Conn, infoHash core.InfoHash, expectedPeerID core.PeerID) error {

	// NOTE: The net package evaluates deadlines against the system clock,
	// so no clock interface here.
	if err := nc.SetDeadline(time.Now().Add(h.config.HandshakeTimeout)); err != nil {
		return fmt.Errorf("set deadline: %s", err)
	}
	defer nc.SetDeadline(time.Time{})

	hs := &handshake{infoHash: infoHash, peerID: h.localPeerID}
	if _, err := nc.Write(hs.marshal()); err != nil {
		return fmt.Errorf("send handshake: %s", err)
	}
	remote, err := readHandshake(nc)
	if err != nil {
		return fmt.Errorf("read handshake: %s", err)
	}
	if remote.infoHash != infoHash {
		return errors.New("infohash mismatch")
	}
	if expectedPeerID != (core.PeerID{}) && remote.peerID != expectedPeerID {
		return errors.New("unexpected peer id")
	}
	return nil
}
