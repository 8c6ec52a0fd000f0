package mdp

import "fmt"

// Frame structure constants. Every packet, in both directions, starts with
// the same 6-byte header followed by the payload:
//
//	[0x5A][0x5A][type][total_size][channel][checksum][payload...]
//
// total_size counts the header, so a well-formed packet always satisfies
// total_size == HeaderSize + len(payload). Multi-byte payload fields are
// little-endian.
const (
	// SyncByte is repeated twice at the start of every packet.
	SyncByte = 0x5A

	// Header byte offsets.
	idxSync0    = 0
	idxSync1    = 1
	idxType     = 2
	idxSize     = 3
	idxChannel  = 4
	idxChecksum = 5

	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 6
)

// NumChannels is the number of output/load slots on the instrument.
const NumChannels = 6

// BroadcastChannel is the channel byte used for commands that are not
// addressed to a specific slot.
const BroadcastChannel = 0xEE

// Packet type bytes. The device only ever sends the first five plus Err240;
// the rest are host-to-device commands. The enumeration is contiguous and
// the adjacency is part of the wire contract.
const (
	PackSynthesize     = 0x11 // periodic 6-channel telemetry snapshot
	PackWave           = 0x12 // waveform sample burst for the current channel
	PackAddr           = 0x13 // radio address + frequency for all channels
	PackUpdatCh        = 0x14 // device-driven channel hint
	PackMachine        = 0x15 // machine class (with/without display)
	PackSetIsOutput    = 0x16
	PackGetAddr        = 0x17
	PackSetAddr        = 0x18
	PackSetCh          = 0x19
	PackSetV           = 0x1A
	PackSetI           = 0x1B
	PackSetAllAddr     = 0x1C
	PackStartAutoMatch = 0x1D
	PackStopAutoMatch  = 0x1E
	PackResetToDfu     = 0x1F
	PackRGB            = 0x20
	PackGetMachine     = 0x21
	PackHeartbeat      = 0x22
	PackErr240         = 0x23 // 240 module fault report
)

// Synthesize payload layout: six consecutive blocks of synBlockSize bytes,
// one per channel, in channel order.
const (
	synNo        = 0 // device-reported channel tag
	synOutVoltL  = 1 // output voltage, mV
	synOutVoltH  = 2
	synOutCurrL  = 3 // output current, mA
	synOutCurrH  = 4
	synInVoltL   = 5 // input voltage, mV
	synInVoltH   = 6
	synInCurrL   = 7 // input current, mA
	synInCurrH   = 8
	synSetVoltL  = 9 // configured voltage, mV
	synSetVoltH  = 10
	synSetCurrL  = 11 // configured current, mA
	synSetCurrH  = 12
	synTempL     = 13 // temperature, 0.1 degC units
	synTempH     = 14
	synOnline    = 15
	synType      = 16
	synLock      = 17
	synCCorCV    = 18
	synIsOutput  = 19
	synColor1    = 20 // RGB565 low byte
	synColor2    = 21 // RGB565 high byte
	synColor3    = 22 // unused third color byte
	synError     = 23
	synPad       = 24
	synBlockSize = 25
)

// Addr payload layout: six consecutive 6-byte blocks. The five address
// bytes arrive in reverse order; the sixth byte is the frequency offset
// above BaseFrequencyMHz.
const (
	addrBlockSize    = 6
	addrBytesPerChan = 5
)

// BaseFrequencyMHz is added to the wire frequency offset.
const BaseFrequencyMHz = 2400

// MachineWithDisplayCode is the machine-class payload byte reported by
// units with an LCD (M01). Anything else means no display (M02).
const MachineWithDisplayCode = 0x10

// Wave packets always carry ten groups. A 126-byte packet packs two sample
// points per group, any other size packs four.
const (
	waveGroupCount     = 10
	waveTwoPointSize   = 126
	waveTimestampBytes = 4
	wavePointBytes     = 4 // voltage u16 + current u16
)

// Packet is one validated inbound packet, decoded from a frame slice.
type Packet struct {
	Type     byte
	Size     byte
	Channel  byte
	Checksum byte
	Payload  []byte
}

// xorChecksum folds the payload with XOR; this is the only integrity check
// the protocol has.
func xorChecksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// ParsePacket splits a complete frame (as produced by ExtractFrames) into a
// Packet and verifies its checksum. The frame must contain at least the
// full header and exactly the declared number of bytes.
func ParsePacket(frame []byte) (*Packet, error) {
	if len(frame) < HeaderSize {
		return nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	if frame[idxSync0] != SyncByte || frame[idxSync1] != SyncByte {
		return nil, fmt.Errorf("bad sync marker: % X", frame[:2])
	}
	p := &Packet{
		Type:     frame[idxType],
		Size:     frame[idxSize],
		Channel:  frame[idxChannel],
		Checksum: frame[idxChecksum],
		Payload:  frame[HeaderSize:],
	}
	if int(p.Size) != len(frame) {
		return nil, fmt.Errorf("declared size %d does not match frame length %d", p.Size, len(frame))
	}
	if got := xorChecksum(p.Payload); got != p.Checksum {
		return nil, fmt.Errorf("checksum mismatch: got 0x%02X, want 0x%02X", got, p.Checksum)
	}
	return p, nil
}
