package obu

import (
	"slices"

	"github.com/m4tthewde/obu/internal/bitstream"
)

// TileBounds are the limits a frame's size places on its tile grid.
type TileBounds struct {
	SuperblockColumns int
	SuperblockRows    int
	// SuperblockShift converts superblock units to mode info units.
	SuperblockShift int
	MaxTileWidth    int
	MaxTileArea     int
	MinColumnsLog2  int
	MaxColumnsLog2  int
	MaxRowsLog2     int
	MinTilesLog2    int
}

// TileLimits computes the tile grid bounds for a frame of miCols x miRows mode info units.
func TileLimits(seq *SequenceHeader, miCols, miRows int) TileBounds {
	shift := 4
	if seq.Use128x128Superblock {
		shift = 5
	}
	size := shift + 2

	b := TileBounds{
		SuperblockColumns: ceilShift(miCols, shift),
		SuperblockRows:    ceilShift(miRows, shift),
		SuperblockShift:   shift,
		MaxTileWidth:      MaxTileWidth >> size,
		MaxTileArea:       MaxTileArea >> (2 * size),
	}
	b.MinColumnsLog2 = tileLog2(b.MaxTileWidth, b.SuperblockColumns)
	b.MaxColumnsLog2 = tileLog2(1, min(b.SuperblockColumns, MaxTileColumns))
	b.MaxRowsLog2 = tileLog2(1, min(b.SuperblockRows, MaxTileRows))
	b.MinTilesLog2 = max(b.MinColumnsLog2, tileLog2(b.MaxTileArea, b.SuperblockColumns*b.SuperblockRows))
	return b
}

func (b TileBounds) minRowsLog2(columnsLog2 int) int {
	return max(b.MinTilesLog2-columnsLog2, 0)
}

// TileInfo is tile_info(). Start arrays are in mode info units and hold one entry per tile plus
// the frame extent.
type TileInfo struct {
	UniformSpacing      bool
	ColumnsLog2         int
	RowsLog2            int
	Columns             int
	Rows                int
	ColumnStarts        []int
	RowStarts           []int
	ContextUpdateTileID int
	TileSizeBytes       int
}

// TileCount is NumTiles.
func (t *TileInfo) TileCount() int {
	return t.Columns * t.Rows
}

// TileBits is the width of tg_start and tg_end in a tile group.
func (t *TileInfo) TileBits() int {
	return t.ColumnsLog2 + t.RowsLog2
}

func uniformStarts(superblocks, log2, shift, extent int) []int {
	size := ceilShift(superblocks, log2)
	starts := make([]int, 0, (1<<log2)+1)
	for start := 0; start < superblocks; start += size {
		starts = append(starts, start<<shift)
	}
	return append(starts, extent)
}

// UniformTileInfo builds a uniformly spaced grid with the requested log2 tile counts, raised to
// the minimum the frame size requires.
func UniformTileInfo(seq *SequenceHeader, miCols, miRows, columnsLog2, rowsLog2 int) (TileInfo, error) {
	b := TileLimits(seq, miCols, miRows)
	t := TileInfo{UniformSpacing: true, TileSizeBytes: 4}

	t.ColumnsLog2 = max(columnsLog2, b.MinColumnsLog2)
	if t.ColumnsLog2 > b.MaxColumnsLog2 {
		return TileInfo{}, boundsf("tile columns log2 %d exceeds maximum %d", t.ColumnsLog2, b.MaxColumnsLog2)
	}
	t.RowsLog2 = max(rowsLog2, b.minRowsLog2(t.ColumnsLog2))
	if t.RowsLog2 > b.MaxRowsLog2 {
		return TileInfo{}, boundsf("tile rows log2 %d exceeds maximum %d", t.RowsLog2, b.MaxRowsLog2)
	}
	t.ColumnStarts = uniformStarts(b.SuperblockColumns, t.ColumnsLog2, b.SuperblockShift, miCols)
	t.RowStarts = uniformStarts(b.SuperblockRows, t.RowsLog2, b.SuperblockShift, miRows)
	t.Columns = len(t.ColumnStarts) - 1
	t.Rows = len(t.RowStarts) - 1
	if t.TileBits() == 0 {
		t.TileSizeBytes = 0
	}
	return t, nil
}

func readIncrements(r *bitstream.Reader, log2, maximum int, name string) (int, error) {
	for log2 < maximum {
		increment, err := readFlag(r, name)
		if err != nil {
			return 0, err
		}
		if !increment {
			break
		}
		log2++
	}
	return log2, nil
}

// readExplicitSizes reads ns coded tile sizes until they cover superblocks and returns the starts
// together with the largest size seen.
func readExplicitSizes(r *bitstream.Reader, superblocks, maxSize, shift, extent int, name string) ([]int, int, error) {
	var starts []int
	widest := 0
	start := 0
	for start < superblocks {
		starts = append(starts, start<<shift)
		if len(starts) > MaxTileColumns+1 {
			return nil, 0, boundsf("%s: more than %d tiles", name, MaxTileColumns)
		}
		size, err := readNonSymmetric(r, min(superblocks-start, maxSize), name)
		if err != nil {
			return nil, 0, err
		}
		size++
		widest = max(widest, size)
		start += size
	}
	if start != superblocks {
		return nil, 0, boundsf("%s: tile sizes sum to %d superblocks, frame has %d", name, start, superblocks)
	}
	return append(starts, extent), widest, nil
}

func explicitMaxTileHeight(b TileBounds, widest int) int {
	area := b.SuperblockColumns * b.SuperblockRows
	if b.MinTilesLog2 > 0 {
		area >>= b.MinTilesLog2 + 1
	}
	return max(area/widest, 1)
}

// ReadTileInfo parses tile_info() for a frame of miCols x miRows mode info units.
func ReadTileInfo(r *bitstream.Reader, seq *SequenceHeader, miCols, miRows int) (TileInfo, error) {
	b := TileLimits(seq, miCols, miRows)
	var t TileInfo
	var err error

	if t.UniformSpacing, err = readFlag(r, "uniform_tile_spacing_flag"); err != nil {
		return TileInfo{}, err
	}
	if t.UniformSpacing {
		if t.ColumnsLog2, err = readIncrements(r, b.MinColumnsLog2, b.MaxColumnsLog2, "increment_tile_cols_log2"); err != nil {
			return TileInfo{}, err
		}
		width := ceilShift(b.SuperblockColumns, t.ColumnsLog2)
		if width > b.MaxTileWidth {
			return TileInfo{}, boundsf("tile width %d superblocks exceeds maximum %d", width, b.MaxTileWidth)
		}
		t.ColumnStarts = uniformStarts(b.SuperblockColumns, t.ColumnsLog2, b.SuperblockShift, miCols)

		if t.RowsLog2, err = readIncrements(r, b.minRowsLog2(t.ColumnsLog2), b.MaxRowsLog2, "increment_tile_rows_log2"); err != nil {
			return TileInfo{}, err
		}
		t.RowStarts = uniformStarts(b.SuperblockRows, t.RowsLog2, b.SuperblockShift, miRows)
		t.Columns = len(t.ColumnStarts) - 1
		t.Rows = len(t.RowStarts) - 1
	} else {
		var widest int
		t.ColumnStarts, widest, err = readExplicitSizes(r, b.SuperblockColumns, b.MaxTileWidth, b.SuperblockShift, miCols, "width_in_sbs_minus_1")
		if err != nil {
			return TileInfo{}, err
		}
		t.Columns = len(t.ColumnStarts) - 1
		t.ColumnsLog2 = tileLog2(1, t.Columns)

		t.RowStarts, _, err = readExplicitSizes(r, b.SuperblockRows, explicitMaxTileHeight(b, widest), b.SuperblockShift, miRows, "height_in_sbs_minus_1")
		if err != nil {
			return TileInfo{}, err
		}
		t.Rows = len(t.RowStarts) - 1
		t.RowsLog2 = tileLog2(1, t.Rows)
	}

	if t.Columns > MaxTileColumns || t.Rows > MaxTileRows {
		return TileInfo{}, boundsf("tile grid %dx%d exceeds %dx%d", t.Columns, t.Rows, MaxTileColumns, MaxTileRows)
	}

	if t.TileBits() > 0 {
		if t.ContextUpdateTileID, err = readBits(r, t.TileBits(), "context_update_tile_id"); err != nil {
			return TileInfo{}, err
		}
		if t.ContextUpdateTileID >= t.TileCount() {
			return TileInfo{}, boundsf("context update tile id %d outside %d tiles", t.ContextUpdateTileID, t.TileCount())
		}
		if t.TileSizeBytes, err = readBits(r, 2, "tile_size_bytes_minus_1"); err != nil {
			return TileInfo{}, err
		}
		t.TileSizeBytes++
	}
	return t, nil
}

// superblockSizes turns mode info starts back into per-tile sizes in superblocks.
func superblockSizes(starts []int, shift, superblocks, extent int, name string) ([]int, error) {
	if len(starts) < 2 || starts[0] != 0 || starts[len(starts)-1] != extent {
		return nil, boundsf("%s: starts must run from 0 to %d", name, extent)
	}
	sizes := make([]int, 0, len(starts)-1)
	for i := 0; i < len(starts)-1; i++ {
		if starts[i]&((1<<shift)-1) != 0 {
			return nil, boundsf("%s: start %d is not superblock aligned", name, starts[i])
		}
		end := superblocks
		if i+1 < len(starts)-1 {
			end = starts[i+1] >> shift
		}
		size := end - starts[i]>>shift
		if size <= 0 {
			return nil, boundsf("%s: starts are not strictly increasing", name)
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}

func writeExplicitSizes(w *bitstream.Writer, sizes []int, superblocks, maxSize int, name string) error {
	start := 0
	for _, size := range sizes {
		if err := writeNonSymmetric(w, size-1, min(superblocks-start, maxSize), name); err != nil {
			return err
		}
		start += size
	}
	return nil
}

func writeIncrements(w *bitstream.Writer, log2, minimum, maximum int, name string) error {
	if log2 < minimum || log2 > maximum {
		return boundsf("%s: log2 %d outside [%d, %d]", name, log2, minimum, maximum)
	}
	for v := minimum; v < maximum; v++ {
		if err := writeFlag(w, v < log2, name); err != nil {
			return err
		}
		if v >= log2 {
			break
		}
	}
	return nil
}

// WriteTileInfo writes tile_info(). The grid must be consistent with the frame size.
func WriteTileInfo(w *bitstream.Writer, seq *SequenceHeader, miCols, miRows int, t TileInfo) error {
	b := TileLimits(seq, miCols, miRows)
	if t.Columns != len(t.ColumnStarts)-1 || t.Rows != len(t.RowStarts)-1 {
		return boundsf("tile counts %dx%d do not match start arrays", t.Columns, t.Rows)
	}
	if t.Columns > MaxTileColumns || t.Rows > MaxTileRows {
		return boundsf("tile grid %dx%d exceeds %dx%d", t.Columns, t.Rows, MaxTileColumns, MaxTileRows)
	}
	if err := writeFlag(w, t.UniformSpacing, "uniform_tile_spacing_flag"); err != nil {
		return err
	}

	if t.UniformSpacing {
		if !slices.Equal(t.ColumnStarts, uniformStarts(b.SuperblockColumns, t.ColumnsLog2, b.SuperblockShift, miCols)) ||
			!slices.Equal(t.RowStarts, uniformStarts(b.SuperblockRows, t.RowsLog2, b.SuperblockShift, miRows)) {
			return boundsf("uniform tile starts do not match log2 counts %d/%d", t.ColumnsLog2, t.RowsLog2)
		}
		if err := writeIncrements(w, t.ColumnsLog2, b.MinColumnsLog2, b.MaxColumnsLog2, "increment_tile_cols_log2"); err != nil {
			return err
		}
		if err := writeIncrements(w, t.RowsLog2, b.minRowsLog2(t.ColumnsLog2), b.MaxRowsLog2, "increment_tile_rows_log2"); err != nil {
			return err
		}
	} else {
		widths, err := superblockSizes(t.ColumnStarts, b.SuperblockShift, b.SuperblockColumns, miCols, "column starts")
		if err != nil {
			return err
		}
		heights, err := superblockSizes(t.RowStarts, b.SuperblockShift, b.SuperblockRows, miRows, "row starts")
		if err != nil {
			return err
		}
		if t.ColumnsLog2 != tileLog2(1, t.Columns) || t.RowsLog2 != tileLog2(1, t.Rows) {
			return boundsf("explicit tile log2 counts %d/%d do not match %dx%d tiles", t.ColumnsLog2, t.RowsLog2, t.Columns, t.Rows)
		}
		if err := writeExplicitSizes(w, widths, b.SuperblockColumns, b.MaxTileWidth, "width_in_sbs_minus_1"); err != nil {
			return err
		}
		widest := slices.Max(widths)
		if err := writeExplicitSizes(w, heights, b.SuperblockRows, explicitMaxTileHeight(b, widest), "height_in_sbs_minus_1"); err != nil {
			return err
		}
	}

	if t.TileBits() > 0 {
		if t.ContextUpdateTileID >= t.TileCount() {
			return boundsf("context update tile id %d outside %d tiles", t.ContextUpdateTileID, t.TileCount())
		}
		if err := writeBits(w, t.ContextUpdateTileID, t.TileBits(), "context_update_tile_id"); err != nil {
			return err
		}
		if err := writeBits(w, t.TileSizeBytes-1, 2, "tile_size_bytes_minus_1"); err != nil {
			return err
		}
	}
	return nil
}
