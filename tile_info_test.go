package obu

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4tthewde/obu/internal/bitstream"
)

func roundTripTileInfo(t *testing.T, seq *SequenceHeader, miCols, miRows int, info TileInfo) TileInfo {
	t.Helper()
	w := bitstream.NewWriter(64)
	require.NoError(t, WriteTileInfo(w, seq, miCols, miRows, info))
	w.TrailingBits()
	got, err := ReadTileInfo(bitstream.NewReader(w.Bytes()), seq, miCols, miRows)
	require.NoError(t, err)
	return got
}

func assertStarts(t *testing.T, starts []int, count, extent int) {
	t.Helper()
	require.Len(t, starts, count+1)
	assert.Equal(t, 0, starts[0])
	assert.Equal(t, extent, starts[count])
	for i := 1; i < len(starts); i++ {
		assert.Less(t, starts[i-1], starts[i], "starts %v", starts)
	}
}

func TestUniformTileInfo(t *testing.T) {
	seq := NewSequenceHeader(4096, 2304)
	for _, superblocks := range []int{1, 2, 3, 5, 8, 17, 33, 64, 65, 100} {
		miCols := superblocks*16 - 2
		miRows := superblocks*16 - 2
		b := TileLimits(seq, miCols, miRows)
		require.Equal(t, superblocks, b.SuperblockColumns)

		for columnsLog2 := b.MinColumnsLog2; columnsLog2 <= b.MaxColumnsLog2; columnsLog2++ {
			for rowsLog2 := b.minRowsLog2(columnsLog2); rowsLog2 <= b.MaxRowsLog2; rowsLog2++ {
				t.Run(fmt.Sprintf("%d_%d_%d", superblocks, columnsLog2, rowsLog2), func(t *testing.T) {
					info, err := UniformTileInfo(seq, miCols, miRows, columnsLog2, rowsLog2)
					require.NoError(t, err)
					assert.Equal(t, columnsLog2, info.ColumnsLog2)
					assert.Equal(t, rowsLog2, info.RowsLog2)
					assert.LessOrEqual(t, info.Columns, 1<<columnsLog2)
					assert.LessOrEqual(t, info.Rows, 1<<rowsLog2)
					assertStarts(t, info.ColumnStarts, info.Columns, miCols)
					assertStarts(t, info.RowStarts, info.Rows, miRows)

					got := roundTripTileInfo(t, seq, miCols, miRows, info)
					if diff := cmp.Diff(info, got); diff != "" {
						t.Errorf("tile info mismatch (-want +got):\n%s", diff)
					}
				})
			}
		}
	}
}

func TestUniformTileInfoRaisesToMinimum(t *testing.T) {
	seq := NewSequenceHeader(8192, 64)
	// 8192 pixels is 128 superblocks, twice the widest tile.
	info, err := UniformTileInfo(seq, 2048, 16, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, info.ColumnsLog2)
	assert.Equal(t, 2, info.Columns)
	assert.Equal(t, []int{0, 1024, 2048}, info.ColumnStarts)

	_, err = UniformTileInfo(seq, 2048, 16, 0, 3)
	assert.True(t, errors.Is(err, ErrBounds))
}

func TestSingleTileHasNoTileBits(t *testing.T) {
	seq := NewSequenceHeader(64, 64)
	info, err := UniformTileInfo(seq, 16, 16, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, info.TileCount())
	assert.Equal(t, 0, info.TileBits())
	assert.Equal(t, 0, info.TileSizeBytes)

	w := bitstream.NewWriter(4)
	require.NoError(t, WriteTileInfo(w, seq, 16, 16, info))
	// Only uniform_tile_spacing_flag; both increments have no range.
	assert.Equal(t, 1, w.Position())
}

func TestExplicitTileInfoRoundTrip(t *testing.T) {
	seq := NewSequenceHeader(632, 320)
	info := TileInfo{
		ColumnsLog2:         2,
		RowsLog2:            1,
		Columns:             3,
		Rows:                2,
		ColumnStarts:        []int{0, 48, 96, 158},
		RowStarts:           []int{0, 32, 80},
		ContextUpdateTileID: 5,
		TileSizeBytes:       2,
	}
	got := roundTripTileInfo(t, seq, 158, 80, info)
	if diff := cmp.Diff(info, got); diff != "" {
		t.Errorf("tile info mismatch (-want +got):\n%s", diff)
	}
}

func TestExplicitTileInfoMaximumColumns(t *testing.T) {
	seq := NewSequenceHeader(4096, 64)
	info := TileInfo{ColumnsLog2: 6, Columns: 64, Rows: 1, RowStarts: []int{0, 16}, TileSizeBytes: 1}
	for i := 0; i < 64; i++ {
		info.ColumnStarts = append(info.ColumnStarts, i*16)
	}
	info.ColumnStarts = append(info.ColumnStarts, 1024)

	got := roundTripTileInfo(t, seq, 1024, 16, info)
	assert.Equal(t, 64, got.Columns)
	assert.Equal(t, info.ColumnStarts, got.ColumnStarts)
}

func TestReadTileInfoRejectsTooManyColumns(t *testing.T) {
	seq := NewSequenceHeader(4160, 64)
	w := bitstream.NewWriter(16)
	require.NoError(t, writeFlag(w, false, "uniform_tile_spacing_flag"))
	for start := 0; start < 65; start++ {
		require.NoError(t, writeNonSymmetric(w, 0, min(65-start, 64), "width_in_sbs_minus_1"))
	}
	// The single row is coded as ns(1), which takes no bits.
	w.TrailingBits()

	_, err := ReadTileInfo(bitstream.NewReader(w.Bytes()), seq, 1040, 16)
	assert.True(t, errors.Is(err, ErrBounds), "got %v", err)
}

func TestExplicitTileInfoMaximumRows(t *testing.T) {
	seq := NewSequenceHeader(64, 4096)
	info := TileInfo{Columns: 1, ColumnStarts: []int{0, 16}, RowsLog2: 6, Rows: 64, TileSizeBytes: 1}
	for i := 0; i < 64; i++ {
		info.RowStarts = append(info.RowStarts, i*16)
	}
	info.RowStarts = append(info.RowStarts, 1024)

	got := roundTripTileInfo(t, seq, 16, 1024, info)
	assert.Equal(t, 64, got.Rows)
	assert.Equal(t, info.RowStarts, got.RowStarts)
}

func TestReadTileInfoRejectsTooManyRows(t *testing.T) {
	seq := NewSequenceHeader(64, 4160)
	w := bitstream.NewWriter(16)
	require.NoError(t, writeFlag(w, false, "uniform_tile_spacing_flag"))
	require.NoError(t, writeNonSymmetric(w, 0, 1, "width_in_sbs_minus_1"))
	for start := 0; start < 65; start++ {
		require.NoError(t, writeNonSymmetric(w, 0, 65-start, "height_in_sbs_minus_1"))
	}
	w.TrailingBits()

	_, err := ReadTileInfo(bitstream.NewReader(w.Bytes()), seq, 16, 1040)
	assert.True(t, errors.Is(err, ErrBounds), "got %v", err)
}

func TestTileInfoContextOutOfRange(t *testing.T) {
	seq := NewSequenceHeader(192, 64)

	w := bitstream.NewWriter(4)
	require.NoError(t, writeFlag(w, true, "uniform_tile_spacing_flag"))
	require.NoError(t, writeFlag(w, true, "increment_tile_cols_log2"))
	require.NoError(t, writeFlag(w, true, "increment_tile_cols_log2"))
	// Three columns of one superblock, so id 3 names no tile.
	require.NoError(t, writeBits(w, 3, 2, "context_update_tile_id"))
	require.NoError(t, writeBits(w, 0, 2, "tile_size_bytes_minus_1"))
	w.TrailingBits()

	_, err := ReadTileInfo(bitstream.NewReader(w.Bytes()), seq, 48, 16)
	assert.True(t, errors.Is(err, ErrBounds), "got %v", err)

	info, err := UniformTileInfo(seq, 48, 16, 2, 0)
	require.NoError(t, err)
	require.Equal(t, 3, info.Columns)
	info.ContextUpdateTileID = 3
	assert.True(t, errors.Is(WriteTileInfo(bitstream.NewWriter(4), seq, 48, 16, info), ErrBounds))
}

func TestWriteTileInfoRejectsInconsistentGrid(t *testing.T) {
	seq := NewSequenceHeader(640, 320)
	info, err := UniformTileInfo(seq, 160, 80, 1, 0)
	require.NoError(t, err)

	bad := info
	bad.ColumnStarts = []int{0, 32, 160}
	assert.True(t, errors.Is(WriteTileInfo(bitstream.NewWriter(8), seq, 160, 80, bad), ErrBounds))

	bad = info
	bad.UniformSpacing = false
	bad.ColumnStarts = []int{0, 40, 160}
	bad.ColumnsLog2 = 1
	assert.True(t, errors.Is(WriteTileInfo(bitstream.NewWriter(8), seq, 160, 80, bad), ErrBounds))

	bad = info
	bad.Columns = 3
	assert.True(t, errors.Is(WriteTileInfo(bitstream.NewWriter(8), seq, 160, 80, bad), ErrBounds))
}
