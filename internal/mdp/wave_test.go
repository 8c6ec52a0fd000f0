package mdp

import (
	"encoding/binary"
	"testing"
)

// waveGroups builds a wave payload: ten groups sharing one timestamp, with
// every point carrying the same raw voltage/current.
func waveGroups(pointsPerGroup int, timestamp uint32, rawVolt, rawCurr uint16) []byte {
	groupSize := waveTimestampBytes + pointsPerGroup*wavePointBytes
	payload := make([]byte, 0, waveGroupCount*groupSize)
	for g := 0; g < waveGroupCount; g++ {
		group := make([]byte, groupSize)
		binary.LittleEndian.PutUint32(group[0:4], timestamp)
		for j := 0; j < pointsPerGroup; j++ {
			binary.LittleEndian.PutUint16(group[4+j*4:], rawVolt)
			binary.LittleEndian.PutUint16(group[6+j*4:], rawCurr)
		}
		payload = append(payload, group...)
	}
	return payload
}

func TestWaveTwoPointsPerGroup(t *testing.T) {
	b := NewWaveBuffer()
	payload := waveGroups(2, 100, 5000, 250)
	if len(payload) != waveTwoPointSize-HeaderSize {
		t.Fatalf("payload %d bytes, want %d", len(payload), waveTwoPointSize-HeaderSize)
	}

	b.Consume(payload, waveTwoPointSize)

	if b.Len() != 20 {
		t.Fatalf("len = %d, want 20", b.Len())
	}
	if len(b.Current) != len(b.Voltage) {
		t.Fatalf("series out of lockstep: %d vs %d", len(b.Voltage), len(b.Current))
	}
	// timestamp 100, two points per group: delta = 100/2/10 = 5.
	for i, s := range b.Voltage {
		wantTime := float64(i * 5)
		if s.Time != wantTime {
			t.Fatalf("sample %d time = %v, want %v", i, s.Time, wantTime)
		}
		if s.Value != 5.0 {
			t.Fatalf("sample %d voltage = %v, want 5.0", i, s.Value)
		}
		if b.Current[i].Time != wantTime || b.Current[i].Value != 0.25 {
			t.Fatalf("sample %d current = %+v", i, b.Current[i])
		}
	}
}

func TestWaveFourPointsPerGroup(t *testing.T) {
	b := NewWaveBuffer()
	payload := waveGroups(4, 400, 12000, 3000)

	b.Consume(payload, byte(HeaderSize+len(payload))) // 206

	if b.Len() != 40 {
		t.Fatalf("len = %d, want 40", b.Len())
	}
	// timestamp 400, four points per group: delta = 400/4/10 = 10.
	if got := b.Voltage[39].Time; got != 390 {
		t.Errorf("last sample time = %v, want 390", got)
	}
	if b.Voltage[0].Value != 12.0 || b.Current[0].Value != 3.0 {
		t.Errorf("first sample = %v V / %v A", b.Voltage[0].Value, b.Current[0].Value)
	}
}

func TestWaveResetRewindsCursor(t *testing.T) {
	b := NewWaveBuffer()
	b.Consume(waveGroups(2, 100, 1000, 100), waveTwoPointSize)
	if b.Len() != 20 {
		t.Fatalf("len = %d, want 20", b.Len())
	}

	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("len after reset = %d, want 0", b.Len())
	}

	b.Consume(waveGroups(2, 100, 1000, 100), waveTwoPointSize)
	if b.Len() != 20 {
		t.Fatalf("len = %d, want 20", b.Len())
	}
	if b.Voltage[0].Time != -100 {
		t.Errorf("first sample time = %v, want -100 after reset", b.Voltage[0].Time)
	}
}

func TestWaveWrapOverwritesFromLeftEdge(t *testing.T) {
	b := NewWaveBuffer()
	b.SetMaxTime(150)

	// First burst fills 0..190 in steps of 10, wrapping once cursor time
	// passes 150 mid-way through.
	b.Consume(waveGroups(2, 200, 1000, 100), waveTwoPointSize)

	// Cursor wrapped to -50 during the burst; the wrapped points overwrite
	// from index 0 without dropping any sample.
	if b.Voltage[0].Time != -50 {
		t.Errorf("first sample time = %v, want -50", b.Voltage[0].Time)
	}
	if len(b.Voltage) != len(b.Current) {
		t.Errorf("series out of lockstep: %d vs %d", len(b.Voltage), len(b.Current))
	}
	for i := 1; i < b.Len(); i++ {
		if b.Voltage[i].Time <= b.Voltage[i-1].Time {
			t.Fatalf("times not increasing at %d: %v then %v", i, b.Voltage[i-1].Time, b.Voltage[i].Time)
		}
	}
}

func TestWaveOverwritePrunesStaleSamples(t *testing.T) {
	b := NewWaveBuffer()
	b.Voltage = []WaveSample{{0, 1}, {1, 1}, {2, 1}, {3, 1}, {4, 1}}
	b.Current = []WaveSample{{0, 2}, {1, 2}, {2, 2}, {3, 2}, {4, 2}}
	b.cursorIndex = 1
	b.cursorTime = 3.5

	b.put(9, 8)

	wantTimes := []float64{0, 3.5, 4}
	if len(b.Voltage) != len(wantTimes) || len(b.Current) != len(wantTimes) {
		t.Fatalf("len = %d/%d, want %d", len(b.Voltage), len(b.Current), len(wantTimes))
	}
	for i, want := range wantTimes {
		if b.Voltage[i].Time != want || b.Current[i].Time != want {
			t.Errorf("sample %d time = %v/%v, want %v", i, b.Voltage[i].Time, b.Current[i].Time, want)
		}
	}
	if b.Voltage[1].Value != 9 || b.Current[1].Value != 8 {
		t.Errorf("overwritten sample = %v/%v, want 9/8", b.Voltage[1].Value, b.Current[1].Value)
	}
}

func TestWaveTruncatedPayload(t *testing.T) {
	b := NewWaveBuffer()
	payload := waveGroups(2, 100, 1000, 100)[:30] // 2.5 groups
	b.Consume(payload, waveTwoPointSize)
	if b.Len() != 4 {
		t.Errorf("len = %d, want 4 (two complete groups)", b.Len())
	}
}
