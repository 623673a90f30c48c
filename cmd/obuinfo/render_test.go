package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/m4tthewde/obu"
)

type singleTile []byte

func (s singleTile) WriteTile(int) ([]byte, error) {
	return s, nil
}

func encodedStream(t *testing.T, annexB bool) []byte {
	t.Helper()
	seq := obu.NewSequenceHeader(64, 64)
	frame, err := obu.NewKeyFrameHeader(seq)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, obu.NewEncoder(obu.WithAnnexB(annexB)).Encode(&buf, seq, frame, singleTile{1, 2, 3}))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	for _, annexB := range []bool{false, true} {
		out, err := inspect(encodedStream(t, annexB), annexB, zap.NewNop())
		require.NoError(t, err)

		assert.Contains(t, out, "OBU_TEMPORAL_DELIMITER")
		assert.Contains(t, out, "OBU_SEQUENCE_HEADER")
		assert.Contains(t, out, "OBU_TILE_GROUP")
		assert.Contains(t, out, "YUV420")
		assert.Contains(t, out, "KEY_FRAME")
		// Footers render upper case.
		assert.Contains(t, strings.ToLower(out), "1 temporal units")
		assert.Contains(t, strings.ToLower(out), "1 frames")
		assert.Contains(t, strings.ToLower(out), "0 cdef")
		assert.Contains(t, strings.ToLower(out), "0 lr")
		assert.Contains(t, out, "tier")
	}
}

func TestInspectCountsCDEFFrames(t *testing.T) {
	seq := obu.NewSequenceHeader(64, 64)
	frame, err := obu.NewKeyFrameHeader(seq)
	require.NoError(t, err)
	frame.Quantization.BaseQIndex = 60
	frame.CDEF.YPrimary[0] = 5
	require.NoError(t, frame.Resolve(seq))
	require.True(t, frame.ApplyCDEF())

	var buf bytes.Buffer
	require.NoError(t, obu.NewEncoder().Encode(&buf, seq, frame, singleTile{1, 2, 3}))
	out, err := inspect(buf.Bytes(), false, zap.NewNop())
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "1 cdef")
	assert.Contains(t, strings.ToLower(out), "0 lr")
}

func TestInspectReportsPartialOutput(t *testing.T) {
	// A temporal delimiter followed by an OBU with its forbidden bit set.
	out, err := inspect([]byte{0x12, 0x00, 0x92, 0x00}, false, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding stream")
	assert.Contains(t, out, "OBU_TEMPORAL_DELIMITER")
	assert.Contains(t, out, "none")
}
