package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/m4tthewde/obu"
)

// tileRecorder notes the tiles handed over by the decoder without reconstructing them.
type tileRecorder struct {
	tiles  []obu.Tile
	frames int
	cdef   int
	lr     int
}

func (t *tileRecorder) DecodeTile(tile obu.Tile) error {
	t.tiles = append(t.tiles, tile)
	return nil
}

func (t *tileRecorder) FinishDecodeTiles(applyCDEF, applyLoopRestoration bool) error {
	t.frames++
	if applyCDEF {
		t.cdef++
	}
	if applyLoopRestoration {
		t.lr++
	}
	return nil
}

func renderOBUs(result obu.DecoderResult) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Type", "Header", "Payload", "Temporal", "Spatial"})
	for i, h := range result.OBUs {
		t.AppendRow(table.Row{i, h.Type, h.Size, h.PayloadSize, h.TemporalID, h.SpatialID})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d temporal units", result.TemporalUnitCount)})
	return t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func renderHeaders(s *obu.Session) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Value"})
	seq := s.SequenceHeader
	if seq == nil {
		t.AppendRow(table.Row{"sequence header", "none"})
		return t.Render()
	}
	c := &seq.ColorConfig
	t.AppendRows([]table.Row{
		{"profile", seq.Profile},
		{"level", seq.OperatingPoints[0].LevelIndex},
		{"tier", seq.OperatingPoints[0].Tier},
		{"max size", fmt.Sprintf("%dx%d", seq.MaxFrameWidth, seq.MaxFrameHeight)},
		{"superblock", fmt.Sprintf("%dx%d", 1<<seq.SuperblockSizeLog2(), 1<<seq.SuperblockSizeLog2())},
		{"bit depth", c.BitDepth},
		{"format", c.Format()},
		{"full range", yesNo(c.FullColorRange)},
		{"film grain", yesNo(seq.FilmGrainParamsPresent)},
	})

	if f := s.FrameHeader; f != nil {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"frame type", f.FrameType},
			{"frame size", fmt.Sprintf("%dx%d", f.FrameSize.FrameWidth, f.FrameSize.FrameHeight)},
			{"upscaled width", f.FrameSize.UpscaledWidth},
			{"render size", fmt.Sprintf("%dx%d", f.FrameSize.RenderWidth, f.FrameSize.RenderHeight)},
			{"tiles", fmt.Sprintf("%dx%d", f.TileInfo.Columns, f.TileInfo.Rows)},
			{"base q index", f.Quantization.BaseQIndex},
			{"lossless", yesNo(f.CodedLossless)},
			{"loop filter", yesNo(f.ApplyLoopFilter())},
			{"cdef", yesNo(f.ApplyCDEF())},
			{"loop restoration", yesNo(f.ApplyLoopRestoration())},
		})
	}
	return t.Render()
}

func renderTiles(r *tileRecorder) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Tile", "Row", "Column", "Bytes"})
	for _, tile := range r.tiles {
		t.AppendRow(table.Row{tile.Index, tile.Row, tile.Column, len(tile.Data)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d frames", r.frames), fmt.Sprintf("%d cdef", r.cdef), fmt.Sprintf("%d lr", r.lr)})
	return t.Render()
}
