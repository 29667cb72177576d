package engine

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBlockHeaderSurvivesRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		framesPerBlock := rapid.IntRange(1, 16).Draw(t, "framesPerBlock")
		channels := rapid.IntRange(1, 12).Draw(t, "channels")
		counter := uint16(rapid.IntRange(0, 0xffff).Draw(t, "counter"))

		raw := make([]byte, blockLen(framesPerBlock, channels))
		blk := newBlockView(raw)
		blk.setHeader(obHeaderMagic)
		blk.setFrames(counter)

		assert.Equal(t, obHeaderMagic, blk.header())
		assert.Equal(t, counter, blk.frames())
	})
}

func TestDecodeEncodeSampleRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Keep inside [-1, 1) so the int32 scaling round-trips without the
		// inherent ~1-ULP rounding blowing up into a visible difference.
		f := float32(rapid.Float64Range(-0.999, 0.999).Draw(t, "f"))

		raw := make([]byte, obBytesPerSample)
		v := encodeSample(f)
		binary.BigEndian.PutUint32(raw, uint32(v))

		got := decodeSample(raw)
		assert.InDelta(t, float64(f), float64(got), 1e-3)
	})
}

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		framesPerBlock := rapid.IntRange(1, 8).Draw(t, "framesPerBlock")
		channels := rapid.IntRange(1, 6).Draw(t, "channels")
		n := framesPerBlock * channels

		src := make([]float32, n)
		for i := range src {
			src[i] = float32(rapid.Float64Range(-0.999, 0.999).Draw(t, "sample"))
		}

		raw := make([]byte, blockLen(framesPerBlock, channels))
		blk := newBlockView(raw)
		encodeBlockFrom(blk, framesPerBlock, channels, src)

		dst := make([]float32, n)
		decodeBlockInto(blk, framesPerBlock, channels, dst)

		for i := range src {
			assert.InDelta(t, float64(src[i]), float64(dst[i]), 1e-3)
		}
	})
}

func TestBytesToFrameBytes(t *testing.T) {
	assert.Equal(t, 0, BytesToFrameBytes(3, 4))
	assert.Equal(t, 8, BytesToFrameBytes(11, 4))
	assert.Equal(t, 0, BytesToFrameBytes(10, 0))
}

func TestFloatsToBytesRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 32).Draw(t, "n")
		src := make([]float32, n)
		for i := range src {
			src[i] = float32(rapid.Float64Range(-10, 10).Draw(t, "v"))
		}
		raw := make([]byte, n*4)
		floatsToBytes(raw, src)

		dst := make([]float32, n)
		bytesToFloats(dst, raw)

		require.Equal(t, len(src), len(dst))
		for i := range src {
			assert.Equal(t, src[i], dst[i])
		}
	})
}
