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
	"fmt"
	"time"

	"github.com/uber/windlass/lib/torrent/storage"

	"github.com/andres-erbsen/clock"
)

// RequestSlot records one in-flight block request to the remote peer,
// awaiting its piece response. Slots are matched by the (index, begin,
// length) triple; block length is fixed by the protocol except for the
// final block of a piece.
type RequestSlot struct {
	Index        int
	Begin        int
	Length       int
	BlockIndex   int
	DispatchedAt time.Time

	// Piece optionally pins the piece this slot belongs to. May be nil for
	// slots constructed before the piece is resolved.
	Piece *storage.Piece
}

// NullSlot is the sentinel returned by slot lookup on a miss. A genuine
// slot always has a positive length.
var NullSlot = RequestSlot{}

// NewRequestSlot creates a RequestSlot dispatched at the clock's current
// time.
func NewRequestSlot(
	clk clock.Clock, index, begin, length, blockIndex int, piece *storage.Piece) RequestSlot {

	return RequestSlot{
		Index:        index,
		Begin:        begin,
		Length:       length,
		BlockIndex:   blockIndex,
		DispatchedAt: clk.Now(),
		Piece:        piece,
	}
}

// IsNull returns true if s is the null sentinel.
func (s RequestSlot) IsNull() bool {
	return s.Length == 0
}

// matches returns true if s matches the full (index, begin, length)
// triple.
func (s RequestSlot) matches(index, begin, length int) bool {
	return s.Index == index && s.Begin == begin && s.Length == length
}

func (s RequestSlot) String() string {
	return fmt.Sprintf("RequestSlot(index=%d, begin=%d, length=%d)", s.Index, s.Begin, s.Length)
}
