package hdrhistogram

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/klauspost/compress/flate"
)

// V2 payload header layout (spec.md §4.7, §6): 40 bytes, big-endian,
// followed by a zig-zag LEB128 varint counts stream.
const (
	v2HeaderLength = 40

	v2UncompressedCookieBase = 0x1C849303
	v2CompressedCookieBase   = 0x1C849304
)

// Word-size nibble is carried in bits 4-7 of the cookie, above the base
// constant's own low nibble, so the two never collide when combined with
// OR (spec.md §6 gives the combination as OR; bits 0-3 are reserved for
// the base constant's identity, not the word size).
func wordSizeNibble(width counterWidth) uint32 {
	switch width {
	case Width16:
		return 2 << 4
	case Width32:
		return 4 << 4
	default:
		return 8 << 4
	}
}

func widthFromNibble(nibble uint32) (counterWidth, bool) {
	switch nibble >> 4 {
	case 2:
		return Width16, true
	case 4:
		return Width32, true
	case 8:
		return Width64, true
	default:
		return 0, false
	}
}

// Encode serializes h into the V2 binary payload format (spec.md §4.7):
// a 40-byte header describing geometry followed by a zig-zag LEB128
// varint counts stream with runs of zero counters coalesced.
func Encode(h *Histogram) ([]byte, error) {
	payload := encodeCountsStream(h)

	header := make([]byte, v2HeaderLength)
	cookie := uint32(v2UncompressedCookieBase) | wordSizeNibble(h.counts.width())
	binary.BigEndian.PutUint32(header[0:4], cookie)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[8:12], uint32(h.NormalizingIndexOffset()))
	binary.BigEndian.PutUint32(header[12:16], uint32(h.significantFigures))
	binary.BigEndian.PutUint64(header[16:24], uint64(h.lowestTrackableValue))
	binary.BigEndian.PutUint64(header[24:32], uint64(h.highestTrackableValue))
	binary.BigEndian.PutUint64(header[32:40], math.Float64bits(1.0))

	return append(header, payload...), nil
}

// EncodeCompressed serializes h into the V2 compressed wrapper: a
// compressed cookie, the deflated payload's length, and the deflated
// payload itself (spec.md §4.7).
func EncodeCompressed(h *Histogram) ([]byte, error) {
	raw, err := Encode(h)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	compressed := buf.Bytes()
	out := make([]byte, 8, 8+len(compressed))
	cookie := uint32(v2CompressedCookieBase) | wordSizeNibble(h.counts.width())
	binary.BigEndian.PutUint32(out[0:4], cookie)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(compressed)))
	out = append(out, compressed...)
	return out, nil
}

// Decode parses a V2 uncompressed payload produced by Encode, returning a
// freshly constructed Histogram with the decoded geometry and counts.
func Decode(data []byte) (*Histogram, error) {
	if len(data) < v2HeaderLength {
		return nil, wrapCodecError("payload too short: %d bytes", len(data))
	}

	cookie := binary.BigEndian.Uint32(data[0:4])
	if cookie&^uint32(0xF0) != v2UncompressedCookieBase {
		return nil, wrapCodecError("unrecognized cookie %#x", cookie)
	}
	width, ok := widthFromNibble(cookie & 0xF0)
	if !ok {
		return nil, wrapCodecError("unrecognized word size in cookie %#x", cookie)
	}

	payloadLength := binary.BigEndian.Uint32(data[4:8])
	normalizingIndexOffset := int32(binary.BigEndian.Uint32(data[8:12]))
	significantDigits := int(binary.BigEndian.Uint32(data[12:16]))
	lowest := int64(binary.BigEndian.Uint64(data[16:24]))
	highest := int64(binary.BigEndian.Uint64(data[24:32]))

	if v2HeaderLength+int(payloadLength) > len(data) {
		return nil, wrapCodecError("truncated payload: declared %d bytes, have %d", payloadLength, len(data)-v2HeaderLength)
	}

	h, err := New(lowest, highest, significantDigits, WithCounterWidth(width))
	if err != nil {
		return nil, err
	}

	if err := decodeCountsStream(h, data[v2HeaderLength:v2HeaderLength+int(payloadLength)]); err != nil {
		return nil, err
	}
	_ = normalizingIndexOffset // plain Histogram always normalizes at 0; see NormalizingIndexOffset.
	return h, nil
}

// DecodeCompressed inflates and parses a V2 compressed payload produced by
// EncodeCompressed.
func DecodeCompressed(data []byte) (*Histogram, error) {
	if len(data) < 8 {
		return nil, wrapCodecError("compressed payload too short: %d bytes", len(data))
	}
	cookie := binary.BigEndian.Uint32(data[0:4])
	if cookie&^uint32(0xF0) != v2CompressedCookieBase {
		return nil, wrapCodecError("unrecognized compressed cookie %#x", cookie)
	}
	compressedLength := binary.BigEndian.Uint32(data[4:8])
	if 8+int(compressedLength) > len(data) {
		return nil, wrapCodecError("truncated compressed payload: declared %d bytes, have %d", compressedLength, len(data)-8)
	}

	r := flate.NewReader(bytes.NewReader(data[8 : 8+int(compressedLength)]))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapCodecError("inflate failed: %v", err)
	}
	return Decode(raw)
}

// encodeCountsStream walks the histogram's counts array in index order,
// coalescing runs of zero counters into a single negative-run varint
// (spec.md §4.7).
func encodeCountsStream(h *Histogram) []byte {
	var buf []byte
	zeroRun := int64(0)
	for i := int64(0); i < h.countsArrayLength; i++ {
		c := h.rawCountAt(i)
		if c == 0 {
			zeroRun++
			continue
		}
		if zeroRun > 0 {
			buf = putVarint(buf, -zeroRun)
			zeroRun = 0
		}
		buf = putVarint(buf, c)
	}
	if zeroRun > 0 {
		buf = putVarint(buf, -zeroRun)
	}
	return buf
}

// decodeCountsStream expands a varint counts stream into h's counts array,
// bounded by h.countsArrayLength (spec.md §4.7).
func decodeCountsStream(h *Histogram, stream []byte) error {
	idx := int64(0)
	off := 0
	for off < len(stream) {
		n, next, ok := getVarint(stream, off)
		if !ok {
			return wrapCodecError("malformed varint at offset %d", off)
		}
		off = next

		if n < 0 {
			idx += -n
			if idx > h.countsArrayLength {
				return wrapCodecError("zero run overruns counts array: index %d, length %d", idx, h.countsArrayLength)
			}
			continue
		}
		if idx >= h.countsArrayLength {
			return wrapCodecError("counts stream overruns counts array: index %d, length %d", idx, h.countsArrayLength)
		}
		if err := h.rawAddCountAt(idx, n); err != nil {
			return err
		}
		idx++
	}
	return nil
}
