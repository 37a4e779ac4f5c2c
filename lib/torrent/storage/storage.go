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
	"github.com/uber/windlass/core"
)

// PieceStorage provides access to the pieces of a torrent being downloaded.
// Implementations are shared between the session and every per-peer
// interaction of the torrent.
type PieceStorage interface {
	// GetPiece returns the piece at index, or nil if no such piece exists.
	GetPiece(index int) *Piece
	// NumPieces returns the total number of pieces.
	NumPieces() int
}

// TorrentPieces is an in-memory PieceStorage derived from torrent metainfo.
type TorrentPieces struct {
	mi     *core.MetaInfo
	pieces []*Piece
}

// NewTorrentPieces creates a TorrentPieces for every piece of mi.
func NewTorrentPieces(mi *core.MetaInfo) *TorrentPieces {
	pieces := make([]*Piece, mi.NumPieces())
	for i := range pieces {
		pieces[i] = NewPiece(i, mi.GetPieceLength(i))
	}
	return &TorrentPieces{mi, pieces}
}

// GetPiece returns the piece at index, or nil if index is out of bounds.
func (t *TorrentPieces) GetPiece(index int) *Piece {
	if index < 0 || index >= len(t.pieces) {
		return nil
	}
	return t.pieces[index]
}

// NumPieces returns the total number of pieces.
func (t *TorrentPieces) NumPieces() int {
	return len(t.pieces)
}

// InfoHash returns the torrent infohash.
func (t *TorrentPieces) InfoHash() core.InfoHash {
	return t.mi.InfoHash()
}
