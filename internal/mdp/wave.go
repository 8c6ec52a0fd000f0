package mdp

import "encoding/binary"

// WaveSample is one point of a waveform series.
type WaveSample struct {
	Time  float64 `json:"t"`
	Value float64 `json:"v"`
}

// DefaultWaveMaxTime is the default time index at which the buffer wraps.
const DefaultWaveMaxTime = 4000

// WaveBuffer accumulates the two waveform series the device streams for
// the current channel. Voltage and Current always stay in lockstep: same
// length, identical time indices.
//
// The device sends overlapping, rolling windows. Instead of a ring buffer
// the original tool keeps a cursor into a flat series: past the end it
// appends, inside it overwrites and then prunes any immediately-following
// samples whose time is now stale. When the cursor time reaches MaxTime the
// cursor wraps to the left edge so the trace redraws left to right forever
// without growing. That algorithm is kept as-is, with the cursor state as
// explicit fields rather than function statics.
type WaveBuffer struct {
	Voltage []WaveSample
	Current []WaveSample

	maxTime      float64
	cursorTime   float64
	cursorIndex  int
	resetPending bool
}

// NewWaveBuffer returns an empty buffer wrapping at DefaultWaveMaxTime.
func NewWaveBuffer() *WaveBuffer {
	return &WaveBuffer{maxTime: DefaultWaveMaxTime}
}

// SetMaxTime adjusts the wrap point (the visible time range).
func (b *WaveBuffer) SetMaxTime(max float64) {
	b.maxTime = max
}

// MaxTime returns the current wrap point.
func (b *WaveBuffer) MaxTime() float64 {
	return b.maxTime
}

// Len returns the number of samples per series.
func (b *WaveBuffer) Len() int {
	return len(b.Voltage)
}

// Reset clears both series and schedules the cursor rewind; the cursor
// itself is re-seeded on the next Consume, matching the original's
// clean-then-redraw behavior.
func (b *WaveBuffer) Reset() {
	b.Voltage = b.Voltage[:0]
	b.Current = b.Current[:0]
	b.resetPending = true
}

// Consume ingests one wave packet's payload. packetSize is the packet's
// declared total size; it selects the point density (126-byte packets carry
// two points per group, anything else four).
func (b *WaveBuffer) Consume(payload []byte, packetSize byte) {
	if b.resetPending {
		b.Voltage = b.Voltage[:0]
		b.Current = b.Current[:0]
		b.cursorTime = -100
		b.cursorIndex = 0
		b.resetPending = false
	}

	pointsPerGroup := 4
	if packetSize == waveTwoPointSize {
		pointsPerGroup = 2
	}
	groupSize := waveTimestampBytes + pointsPerGroup*wavePointBytes

	for g := 0; g < waveGroupCount; g++ {
		off := g * groupSize
		if off+groupSize > len(payload) {
			return // truncated payload, keep what we have
		}
		group := payload[off : off+groupSize]

		// The 32-bit timestamp spans the whole group; split it into a
		// per-point time delta.
		delta := float64(binary.LittleEndian.Uint32(group[:waveTimestampBytes]))
		delta /= float64(pointsPerGroup)
		delta /= 10

		for j := 0; j < pointsPerGroup; j++ {
			if b.cursorTime >= b.maxTime {
				// Wrap to the left edge and keep drawing.
				b.cursorTime = -50
				b.cursorIndex = 0
			}

			p := group[waveTimestampBytes+j*wavePointBytes:]
			volts := float64(binary.LittleEndian.Uint16(p[0:2])) / 1000
			amps := float64(binary.LittleEndian.Uint16(p[2:4])) / 1000

			b.put(volts, amps)
			b.cursorIndex++
			b.cursorTime += delta
		}
	}
}

// put stores one point at the cursor: append past the end, otherwise
// overwrite and drop following samples the moved timeline made stale.
func (b *WaveBuffer) put(volts, amps float64) {
	if b.cursorIndex >= len(b.Voltage) {
		b.Voltage = append(b.Voltage, WaveSample{Time: b.cursorTime, Value: volts})
		b.Current = append(b.Current, WaveSample{Time: b.cursorTime, Value: amps})
		return
	}

	b.Voltage[b.cursorIndex] = WaveSample{Time: b.cursorTime, Value: volts}
	b.Current[b.cursorIndex] = WaveSample{Time: b.cursorTime, Value: amps}

	next := b.cursorIndex + 1
	for next < len(b.Voltage) && b.Voltage[next].Time < b.cursorTime {
		b.Voltage = append(b.Voltage[:next], b.Voltage[next+1:]...)
		b.Current = append(b.Current[:next], b.Current[next+1:]...)
	}
}
