package mdp

import "bytes"

var syncMarker = []byte{SyncByte, SyncByte}

// ExtractFrames scans an accumulating byte buffer for complete packets.
// It returns the frames found, in order, plus the number of bytes the
// caller can discard: everything up to and including the last complete
// frame. Trailing partial data is left for the next call.
//
// The search cursor advances only one byte past each accepted marker, not
// past the whole frame. A stray 0x5A5A inside a payload can therefore never
// make the scanner skip a real packet that starts inside what a spurious
// marker would have claimed; the first framing that fits wins.
//
// Running out of bytes while reading a length field or a declared frame is
// not an error, it just means wait for more input.
func ExtractFrames(buf []byte) (frames [][]byte, consumed int) {
	index := 0
	for {
		rel := bytes.Index(buf[index:], syncMarker)
		if rel < 0 {
			break
		}
		index += rel

		sizeAt := index + idxSize
		if sizeAt >= len(buf) {
			break // length byte not arrived yet
		}

		size := int(buf[sizeAt])
		if index+size > len(buf) {
			break // declared frame extends past available data
		}

		frames = append(frames, buf[index:index+size])
		if end := index + size; end > consumed {
			consumed = end
		}
		index++
	}
	return frames, consumed
}
