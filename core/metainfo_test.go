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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetaInfoGetPieceLength(t *testing.T) {
	tests := []struct {
		desc        string
		size        uint64
		pieceLength uint64
		i           int
		expected    int64
	}{
		{"first piece", 10, 3, 0, 3},
		{"smaller last piece", 10, 3, 3, 1},
		{"same size last piece", 8, 2, 3, 2},
		{"middle piece", 10, 3, 1, 3},
		{"outside bounds", 10, 3, 4, 0},
		{"negative", 10, 3, -1, 0},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			blob := SizedBlobFixture(test.size, test.pieceLength)
			require.Equal(t, test.expected, blob.MetaInfo.GetPieceLength(test.i))
		})
	}
}

func TestMetaInfoGeometry(t *testing.T) {
	require := require.New(t)

	blob := SizedBlobFixture(10, 3)
	mi := blob.MetaInfo

	require.Equal(int64(10), mi.Length())
	require.Equal(int64(3), mi.PieceLength())
	require.Equal(4, mi.NumPieces())
}

func TestMetaInfoInfoHashDeterministic(t *testing.T) {
	require := require.New(t)

	blob := NewBlobFixture()

	mi, err := NewMetaInfo(blob.Digest, bytes.NewReader(blob.Content), blob.MetaInfo.PieceLength())
	require.NoError(err)

	// The same content and piece geometry always hash to the same torrent.
	require.Equal(blob.MetaInfo.InfoHash(), mi.InfoHash())

	// A different piece geometry yields a different torrent.
	mi2, err := NewMetaInfo(blob.Digest, bytes.NewReader(blob.Content), blob.MetaInfo.PieceLength()*2)
	require.NoError(err)
	require.NotEqual(blob.MetaInfo.InfoHash(), mi2.InfoHash())
}

func TestNewMetaInfoInvalidPieceLength(t *testing.T) {
	blob := NewBlobFixture()

	_, err := NewMetaInfo(blob.Digest, bytes.NewReader(blob.Content), 0)
	require.Error(t, err)
}
