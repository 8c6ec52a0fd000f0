package mdp

import (
	"bytes"
	"testing"
)

func TestExtractFramesEmpty(t *testing.T) {
	frames, consumed := ExtractFrames(nil)
	if len(frames) != 0 || consumed != 0 {
		t.Fatalf("got %d frames, consumed %d, want 0/0", len(frames), consumed)
	}
}

func TestExtractFramesSinglePacket(t *testing.T) {
	frame := Heartbeat()
	frames, consumed := ExtractFrames(frame)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], frame) {
		t.Errorf("frame mismatch: % X", frames[0])
	}
	if consumed != len(frame) {
		t.Errorf("consumed %d, want %d", consumed, len(frame))
	}
}

func TestExtractFramesBackToBack(t *testing.T) {
	a := Heartbeat()
	b := SetChannel(3)
	buf := append(append([]byte{}, a...), b...)

	frames, consumed := ExtractFrames(buf)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], a) || !bytes.Equal(frames[1], b) {
		t.Errorf("frames mismatch: % X / % X", frames[0], frames[1])
	}
	if consumed != len(buf) {
		t.Errorf("consumed %d, want %d", consumed, len(buf))
	}
}

func TestExtractFramesLeadingGarbage(t *testing.T) {
	frame := GetAddresses()
	buf := append([]byte{0x00, 0x13, 0x5A, 0x42}, frame...)

	frames, consumed := ExtractFrames(buf)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], frame) {
		t.Errorf("frame mismatch: % X", frames[0])
	}
	if consumed != len(buf) {
		t.Errorf("consumed %d, want %d", consumed, len(buf))
	}
}

func TestExtractFramesMarkerWithoutLength(t *testing.T) {
	// Marker present but the length byte has not arrived yet.
	buf := []byte{SyncByte, SyncByte, PackHeartbeat}
	frames, consumed := ExtractFrames(buf)
	if len(frames) != 0 {
		t.Fatalf("got %d frames, want 0", len(frames))
	}
	if consumed != 0 {
		t.Errorf("consumed %d, want 0 (partial data must be retained)", consumed)
	}
}

func TestExtractFramesDeclaredSizeBeyondBuffer(t *testing.T) {
	frame := Heartbeat()
	buf := frame[:len(frame)-1] // last byte still in flight
	buf[idxSize] = byte(len(frame))

	frames, consumed := ExtractFrames(buf)
	if len(frames) != 0 || consumed != 0 {
		t.Fatalf("got %d frames, consumed %d, want 0/0", len(frames), consumed)
	}
}

func TestExtractFramesSpuriousMarkerInPayload(t *testing.T) {
	// A payload containing the sync marker followed by a tiny bogus size.
	// The scanner accepts the outer framing first, then also offers the
	// inner candidate; validation rejects the short one later.
	payload := []byte{SyncByte, SyncByte, 0x00, 0x02}
	outer, err := Encode(PackWave, 0, payload)
	if err != nil {
		t.Fatal(err)
	}

	frames, consumed := ExtractFrames(outer)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], outer) {
		t.Errorf("first frame should be the outer packet, got % X", frames[0])
	}
	if len(frames[1]) != 2 {
		t.Errorf("inner candidate should be 2 bytes, got %d", len(frames[1]))
	}
	if _, err := ParsePacket(frames[1]); err == nil {
		t.Error("inner candidate should fail validation")
	}
	if consumed != len(outer) {
		t.Errorf("consumed %d, want %d", consumed, len(outer))
	}
}

func TestExtractFramesPartialSecondPacket(t *testing.T) {
	a := Heartbeat()
	b := SetChannel(1)
	buf := append(append([]byte{}, a...), b[:4]...)

	frames, consumed := ExtractFrames(buf)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if consumed != len(a) {
		t.Errorf("consumed %d, want %d (second packet incomplete)", consumed, len(a))
	}
}
