package engine

import (
	"encoding/binary"
	"math"
)

// Wire-format constants for the device's packed audio blocks. These mirror
// the fixed layout of struct ow_engine_usb_blk in engine.c: a 16-bit
// header, a 16-bit running block counter, fixed padding, then interleaved
// 32-bit big-endian samples.
const (
	obHeaderMagic    uint16 = 0x07ff
	obPaddingSize           = 8
	obBytesPerSample        = 4
	blockHeaderSize         = 2 + 2 + obPaddingSize // header + frames + padding
)

// blockView is a length-parameterized view over one raw USB audio block.
// It never transmutes the wire buffer into a typed record that embeds the
// samples: the header fields are read/written at explicit byte offsets and
// the sample region is addressed as a plain byte slice, per the spec's
// "Raw big-endian blocks with flexible array members" design note.
type blockView struct {
	raw []byte
}

func newBlockView(raw []byte) blockView {
	return blockView{raw: raw}
}

func (b blockView) header() uint16 {
	return binary.BigEndian.Uint16(b.raw[0:2])
}

func (b blockView) setHeader(v uint16) {
	binary.BigEndian.PutUint16(b.raw[0:2], v)
}

func (b blockView) frames() uint16 {
	return binary.BigEndian.Uint16(b.raw[2:4])
}

func (b blockView) setFrames(v uint16) {
	binary.BigEndian.PutUint16(b.raw[2:4], v)
}

// data returns the raw sample bytes following the header and padding:
// framesPerBlock * channels 32-bit big-endian signed integers, interleaved
// per frame.
func (b blockView) data() []byte {
	return b.raw[blockHeaderSize:]
}

// blockLen returns the total wire size of one block carrying
// framesPerBlock frames of the given channel count.
func blockLen(framesPerBlock, channels int) int {
	return blockHeaderSize + framesPerBlock*channels*obBytesPerSample
}

// decodeSample converts one big-endian int32 wire sample into a host
// float in [-1, 1], matching `hv / (float) INT_MAX` in engine.c (INT_MAX
// rounds to 2^31 as a float32, so both extremes decode to exactly ±1).
func decodeSample(raw []byte) float32 {
	hv := int32(binary.BigEndian.Uint32(raw))
	return float32(hv) / float32(int32Max)
}

// encodeSample converts one host float sample into a big-endian int32 wire
// sample, matching `htobe32((int32_t) (*f * INT_MAX))` in engine.c.
func encodeSample(f float32) int32 {
	return int32(f * float32(int32Max))
}

const int32Max = 1<<31 - 1

// decodeBlockInto reads framesPerBlock frames of `channels` interleaved
// big-endian int32 samples out of blk's data region into dst (host-native
// float32, interleaved), starting at dst[0].
func decodeBlockInto(blk blockView, framesPerBlock, channels int, dst []float32) {
	raw := blk.data()
	n := framesPerBlock * channels
	for i := 0; i < n; i++ {
		dst[i] = decodeSample(raw[i*obBytesPerSample : i*obBytesPerSample+obBytesPerSample])
	}
}

// encodeBlockFrom writes framesPerBlock frames of `channels` interleaved
// host-native float32 samples from src into blk's data region as
// big-endian int32 samples.
func encodeBlockFrom(blk blockView, framesPerBlock, channels int, src []float32) {
	raw := blk.data()
	n := framesPerBlock * channels
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint32(raw[i*obBytesPerSample:i*obBytesPerSample+obBytesPerSample], uint32(encodeSample(src[i])))
	}
}

// floatsToBytes and bytesToFloats move samples across the host ring
// boundary. The ring carries plain in-process float32 data (not a wire
// format), so these use the machine's native byte order rather than the
// fixed big-endian layout used above for USB blocks.
func floatsToBytes(dst []byte, src []float32) {
	for i, f := range src {
		binary.NativeEndian.PutUint32(dst[i*4:i*4+4], math.Float32bits(f))
	}
}

func bytesToFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.NativeEndian.Uint32(src[i*4 : i*4+4]))
	}
}
