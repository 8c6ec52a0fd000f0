package mdp

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when a payload cannot fit the one-byte
// total-size field (payload + 6-byte header > 255).
var ErrPayloadTooLarge = errors.New("payload too large for size byte")

// maxPayloadSize is the largest payload the size byte can describe.
const maxPayloadSize = 0xFF - HeaderSize

// Encode builds a complete outbound packet: sync marker, type, total size,
// channel, XOR checksum over the payload, then the payload itself.
func Encode(packType, channel byte, payload []byte) ([]byte, error) {
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("encode 0x%02X: %w (%d bytes)", packType, ErrPayloadTooLarge, len(payload))
	}
	frame := make([]byte, HeaderSize, HeaderSize+len(payload))
	frame[idxSync0] = SyncByte
	frame[idxSync1] = SyncByte
	frame[idxType] = packType
	frame[idxSize] = byte(HeaderSize + len(payload))
	frame[idxChannel] = channel
	frame[idxChecksum] = xorChecksum(payload)
	return append(frame, payload...), nil
}

// mustEncode is for fixed-size command builders whose payloads are known to
// fit; a failure here is a programming error.
func mustEncode(packType, channel byte, payload []byte) []byte {
	frame, err := Encode(packType, channel, payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// Heartbeat builds the periodic keep-alive command.
func Heartbeat() []byte {
	return mustEncode(PackHeartbeat, BroadcastChannel, nil)
}

// GetAddresses asks the device to report every channel's radio address.
func GetAddresses() []byte {
	return mustEncode(PackGetAddr, BroadcastChannel, nil)
}

// GetMachineType asks the device to report its machine class.
func GetMachineType() []byte {
	return mustEncode(PackGetMachine, BroadcastChannel, nil)
}

// SetChannel builds the command selecting ch as the current channel.
func SetChannel(ch int) []byte {
	return mustEncode(PackSetCh, byte(ch), nil)
}

// SetVoltage builds the set-voltage command. The wire layout carries both
// the voltage and current targets in millivolts/milliamps.
func SetVoltage(ch int, millivolts, milliamps uint16) []byte {
	return mustEncode(PackSetV, byte(ch), setTargetPayload(millivolts, milliamps))
}

// SetCurrent builds the set-current command; the payload layout is
// identical to SetVoltage, only the type byte differs.
func SetCurrent(ch int, millivolts, milliamps uint16) []byte {
	return mustEncode(PackSetI, byte(ch), setTargetPayload(millivolts, milliamps))
}

func setTargetPayload(millivolts, milliamps uint16) []byte {
	return []byte{
		byte(millivolts), byte(millivolts >> 8),
		byte(milliamps), byte(milliamps >> 8),
	}
}

// SetAddress builds the command programming one channel's radio address
// and frequency. The address goes out in natural order; the frequency is
// encoded as an offset above the 2400 MHz base.
func SetAddress(ch int, address [5]byte, freqMHz uint16) []byte {
	return mustEncode(PackSetAddr, byte(ch), addressPayload(address, freqMHz))
}

// SetAllAddresses programs all six channels in one command; addresses and
// frequencies are concatenated per-channel blocks in channel order.
func SetAllAddresses(addresses [NumChannels][5]byte, freqsMHz [NumChannels]uint16) []byte {
	payload := make([]byte, 0, NumChannels*addrBlockSize)
	for i := 0; i < NumChannels; i++ {
		payload = append(payload, addressPayload(addresses[i], freqsMHz[i])...)
	}
	return mustEncode(PackSetAllAddr, BroadcastChannel, payload)
}

func addressPayload(address [5]byte, freqMHz uint16) []byte {
	return []byte{
		address[0], address[1], address[2], address[3], address[4],
		byte(freqMHz - BaseFrequencyMHz),
	}
}

// SetOutput builds the command switching a channel's output on or off.
func SetOutput(ch int, on bool) []byte {
	return mustEncode(PackSetIsOutput, byte(ch), []byte{boolByte(on)})
}

// StartAutoMatch puts the device into auto-match mode.
func StartAutoMatch() []byte {
	return mustEncode(PackStartAutoMatch, BroadcastChannel, nil)
}

// StopAutoMatch leaves auto-match mode.
func StopAutoMatch() []byte {
	return mustEncode(PackStopAutoMatch, BroadcastChannel, nil)
}

// ResetToDFU reboots the device into its firmware-update mode.
func ResetToDFU() []byte {
	return mustEncode(PackResetToDfu, BroadcastChannel, nil)
}

// SetRGB switches the indicator LED blinking on or off.
func SetRGB(on bool) []byte {
	return mustEncode(PackRGB, BroadcastChannel, []byte{boolByte(on)})
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
