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
package storage

import (
	"fmt"
	"sync"

	"github.com/uber/windlass/utils/memsize"

	"github.com/willf/bitset"
)

// BlockSize is the fixed request granularity within a piece. Every block
// except possibly the final one of a piece has exactly this length.
const BlockSize = 16 * memsize.KB

// Piece tracks the download state of a single piece, broken up into
// BlockSize blocks. Each block is in one of three states: missing-unused,
// in-flight, or completed. Pieces are shared between the session and the
// per-peer interactions, so all state transitions hold an internal lock.
type Piece struct {
	index  int
	length int64

	mu        sync.Mutex
	used      *bitset.BitSet
	completed *bitset.BitSet
}

// NewPiece creates a new Piece of given length with all blocks
// missing-unused.
func NewPiece(index int, length int64) *Piece {
	n := uint(numBlocks(length))
	return &Piece{
		index:     index,
		length:    length,
		used:      bitset.New(n),
		completed: bitset.New(n),
	}
}

func numBlocks(length int64) int {
	return int((length + int64(BlockSize) - 1) / int64(BlockSize))
}

// Index returns the piece index.
func (p *Piece) Index() int {
	return p.index
}

// Length returns the piece length in bytes.
func (p *Piece) Length() int64 {
	return p.length
}

// NumBlocks returns the number of blocks in p.
func (p *Piece) NumBlocks() int {
	return numBlocks(p.length)
}

// BlockLength returns the length of block i in bytes. The final block of a
// piece may be shorter than BlockSize.
func (p *Piece) BlockLength(i int) int64 {
	if i < 0 || i >= p.NumBlocks() {
		return 0
	}
	if i == p.NumBlocks()-1 {
		return p.length - int64(BlockSize)*int64(i)
	}
	return int64(BlockSize)
}

func (p *Piece) String() string {
	return fmt.Sprintf("Piece(%d)", p.index)
}

// MissingUnusedBlockIndex reserves the first missing-unused block of p,
// transitioning it to in-flight. Returns false if no block is available.
func (p *Piece) MissingUnusedBlockIndex() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.NumBlocks(); i++ {
		if !p.used.Test(uint(i)) && !p.completed.Test(uint(i)) {
			p.used.Set(uint(i))
			return i, true
		}
	}
	return 0, false
}

// CancelBlock reverts block i from in-flight back to missing-unused.
// No-op if the block is already completed.
func (p *Piece) CancelBlock(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.completed.Test(uint(i)) {
		return
	}
	p.used.Clear(uint(i))
}

// CompleteBlock marks block i as completed.
func (p *Piece) CompleteBlock(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.used.Clear(uint(i))
	p.completed.Set(uint(i))
}

// IsBlockUsed returns true if block i is in-flight.
func (p *Piece) IsBlockUsed(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.used.Test(uint(i))
}

// IsBlockCompleted returns true if block i is completed.
func (p *Piece) IsBlockCompleted(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.completed.Test(uint(i))
}

// NumCompletedBlocks returns the number of completed blocks.
func (p *Piece) NumCompletedBlocks() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return int(p.completed.Count())
}

// Complete returns true if every block of p is completed.
func (p *Piece) Complete() bool {
	return p.NumCompletedBlocks() == p.NumBlocks()
}
