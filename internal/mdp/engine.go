package mdp

import (
	"fmt"
	"log"
)

// Stats counts what the engine has seen since construction.
type Stats struct {
	BytesConsumed   uint64 `json:"bytesConsumed"`
	FramesFound     uint64 `json:"framesFound"`
	PacketsDecoded  uint64 `json:"packetsDecoded"`
	PacketsRejected uint64 `json:"packetsRejected"`
	UnknownPackets  uint64 `json:"unknownPackets"`
	WavePackets     uint64 `json:"wavePackets"`
	EventsEmitted   uint64 `json:"eventsEmitted"`
}

// Engine is the protocol state machine for one MDP-M01/M02 instrument:
// it frames the inbound byte stream, validates and dispatches packets into
// the six channel records and the wave buffer, and builds outbound command
// packets from pending channel state.
//
// The engine is strictly single-owner. Nothing in it locks; callers that
// feed it from multiple goroutines must serialize access themselves (the
// device session does exactly that).
type Engine struct {
	Channels [NumChannels]Channel

	currentChannel int
	suppressCount  int
	machineClass   MachineClass

	wavePaused bool
	ignoreWave bool // no synthesize packet seen yet
	wave       *WaveBuffer

	pending []byte
	stats   Stats
}

// NewEngine returns an engine with six zeroed channel records. Wave packets
// are ignored until the first synthesize packet arrives.
func NewEngine() *Engine {
	e := &Engine{
		ignoreWave: true,
		wave:       NewWaveBuffer(),
	}
	for i := range e.Channels {
		e.Channels[i] = newChannel()
	}
	return e
}

// CurrentChannel returns the channel the instrument is currently reporting
// waveform data for.
func (e *Engine) CurrentChannel() int { return e.currentChannel }

// MachineClass returns the instrument-wide hardware variant, if known.
func (e *Engine) MachineClass() MachineClass { return e.machineClass }

// Wave returns the engine's waveform buffer.
func (e *Engine) Wave() *WaveBuffer { return e.wave }

// Stats returns a copy of the engine's counters.
func (e *Engine) Stats() Stats { return e.stats }

// SetWavePaused pauses or resumes waveform ingestion; packets arriving
// while paused are dropped, not buffered.
func (e *Engine) SetWavePaused(paused bool) { e.wavePaused = paused }

// WavePaused reports whether waveform ingestion is paused.
func (e *Engine) WavePaused() bool { return e.wavePaused }

// StopWave discards waveform data until the next synthesize packet proves
// the device is still talking to us.
func (e *Engine) StopWave() { e.ignoreWave = true }

// CleanWave clears both waveform series and rewinds the cursor.
func (e *Engine) CleanWave() { e.wave.Reset() }

// ArmChannelSwitchSuppress sets the debounce counter consumed by synthesize
// decoding. The engine never arms this itself; when and how much to arm is
// application policy.
func (e *Engine) ArmChannelSwitchSuppress(n int) { e.suppressCount = n }

// ChannelSwitchSuppress returns the remaining debounce count.
func (e *Engine) ChannelSwitchSuppress() int { return e.suppressCount }

// Feed appends raw transport bytes to the engine's buffer, decodes every
// complete packet currently available and returns the notifications they
// produced, in order. Incomplete trailing data is retained for the next
// call. Packets that fail validation are dropped with a diagnostic; they
// never mutate state.
func (e *Engine) Feed(data []byte) []Event {
	e.pending = append(e.pending, data...)

	frames, consumed := ExtractFrames(e.pending)
	e.stats.BytesConsumed += uint64(consumed)
	e.stats.FramesFound += uint64(len(frames))

	var events []Event
	for _, frame := range frames {
		pkt, err := ParsePacket(frame)
		if err != nil {
			e.stats.PacketsRejected++
			log.Printf("[mdp] dropping packet: %v", err)
			continue
		}
		events = append(events, e.dispatch(pkt)...)
	}

	// Compact only after the frames (which alias e.pending) are done with.
	n := copy(e.pending, e.pending[consumed:])
	e.pending = e.pending[:n]

	e.stats.EventsEmitted += uint64(len(events))
	return events
}

func (e *Engine) dispatch(pkt *Packet) []Event {
	switch pkt.Type {
	case PackSynthesize:
		events, err := e.decodeSynthesize(pkt)
		if err != nil {
			log.Printf("[mdp] synthesize: %v", err)
			return nil
		}
		e.stats.PacketsDecoded++
		e.ignoreWave = false
		return events

	case PackWave:
		e.stats.PacketsDecoded++
		if e.wavePaused || e.ignoreWave {
			return nil
		}
		e.decodeWave(pkt)
		return nil

	case PackAddr:
		events, err := e.decodeAddresses(pkt)
		if err != nil {
			log.Printf("[mdp] addr: %v", err)
			return nil
		}
		e.stats.PacketsDecoded++
		return events

	case PackUpdatCh:
		if len(pkt.Payload) < 1 {
			log.Printf("[mdp] updat-ch: empty payload")
			return nil
		}
		e.stats.PacketsDecoded++
		return []Event{{Type: EventUIChannel, Channel: int(pkt.Payload[0])}}

	case PackMachine:
		if len(pkt.Payload) < 1 {
			log.Printf("[mdp] machine: empty payload")
			return nil
		}
		e.stats.PacketsDecoded++
		if pkt.Payload[0] == MachineWithDisplayCode {
			e.machineClass = ClassWithDisplay
		} else {
			e.machineClass = ClassWithoutDisplay
		}
		return []Event{{Type: EventMachineClass, Class: e.machineClass}}

	case PackErr240:
		e.stats.PacketsDecoded++
		return []Event{{Type: EventErr240}}
	}

	e.stats.UnknownPackets++
	log.Printf("[mdp] unknown packet type 0x%02X (%d bytes)", pkt.Type, len(pkt.Payload))
	return nil
}

// decodeSynthesize updates all six channel records from one telemetry
// snapshot. The packet's channel byte doubles as the device's current
// channel; a mismatch either moves our channel or burns one debounce count
// if a local switch was just requested.
func (e *Engine) decodeSynthesize(pkt *Packet) ([]Event, error) {
	if len(pkt.Payload) < NumChannels*synBlockSize {
		return nil, fmt.Errorf("payload %d bytes, want %d", len(pkt.Payload), NumChannels*synBlockSize)
	}

	var events []Event
	if int(pkt.Channel) != e.currentChannel {
		if e.suppressCount == 0 {
			e.currentChannel = int(pkt.Channel)
			events = append(events, Event{Type: EventChannelChanged, Channel: e.currentChannel})
		} else {
			e.suppressCount--
		}
	}

	errFlag := false
	for i := 0; i < NumChannels; i++ {
		block := pkt.Payload[i*synBlockSize : (i+1)*synBlockSize]
		c := &e.Channels[i]

		c.No = int(block[synNo])

		c.OutVoltage = float64(u16(block[synOutVoltL], block[synOutVoltH]))
		c.OutCurrent = float64(u16(block[synOutCurrL], block[synOutCurrH]))
		c.OutPower = c.OutVoltage * c.OutCurrent / 1000

		c.InVoltage = float64(u16(block[synInVoltL], block[synInVoltH]))
		c.InCurrent = float64(u16(block[synInCurrL], block[synInCurrH]))
		c.InPower = c.InVoltage * c.InCurrent / 1000

		c.SetVoltage = float64(u16(block[synSetVoltL], block[synSetVoltH]))
		c.SetCurrent = float64(u16(block[synSetCurrL], block[synSetCurrH]))
		c.SetPower = c.SetVoltage * c.SetCurrent / 1000

		c.Temperature = float64(u16(block[synTempL], block[synTempH])) / 10

		online := block[synOnline] == 1
		if c.Online != online {
			c.OnlineChanged = true
		}
		c.Online = online

		locked := block[synLock] == 1
		if c.Locked != locked {
			c.LockChanged = true
		}
		c.Locked = locked

		newType := decodeMachineType(block[synType])
		if c.Type != newType {
			c.TypeChanged = true
		}
		c.Type = newType

		mode := decodeMode(c.Type, c.Mode, block[synCCorCV], block[synIsOutput])
		if c.Mode != mode {
			c.ModeChanged = true
		}
		c.Mode = mode

		color := ColorFromRGB565(u16(block[synColor1], block[synColor2]))
		if c.Color != color {
			c.ColorChanged = true
		}
		c.Color = color

		c.OutputOn = block[synIsOutput] != 0

		if block[synError] == 1 {
			errFlag = true
		}
	}

	events = append(events, Event{Type: EventErrorFlag, ErrFlag: errFlag})
	return events, nil
}

func decodeMachineType(raw byte) MachineType {
	switch raw {
	case 1:
		return MachineP905
	case 2:
		return MachineP906
	case 3:
		return MachineL1060
	}
	return MachineNode
}

// decodeMode derives the operating mode. The electronic load reports its
// off state through the is-output byte, the supplies fold it into the mode
// code. An unrecognized code keeps the previous mode.
func decodeMode(typ MachineType, prev OutputMode, raw, isOutput byte) OutputMode {
	if typ == MachineL1060 {
		if isOutput == 0 {
			return ModeOff
		}
		switch raw {
		case 0:
			return ModeCC
		case 1:
			return ModeCV
		case 2:
			return ModeCR
		case 3:
			return ModeCP
		}
		return prev
	}
	switch raw {
	case 0:
		return ModeOff
	case 1:
		return ModeCC
	case 2:
		return ModeCV
	case 3:
		return ModeOn
	}
	return prev
}

// decodeWave forwards the payload to the wave buffer unless it belongs to
// a channel we are not looking at.
func (e *Engine) decodeWave(pkt *Packet) {
	if int(pkt.Channel) != e.currentChannel {
		return
	}
	e.stats.WavePackets++
	e.wave.Consume(pkt.Payload, pkt.Size)
}

// decodeAddresses refreshes every channel's radio address. The five
// address bytes arrive in reverse transmission order.
func (e *Engine) decodeAddresses(pkt *Packet) ([]Event, error) {
	if len(pkt.Payload) < NumChannels*addrBlockSize {
		return nil, fmt.Errorf("payload %d bytes, want %d", len(pkt.Payload), NumChannels*addrBlockSize)
	}

	for i := 0; i < NumChannels; i++ {
		block := pkt.Payload[i*addrBlockSize : (i+1)*addrBlockSize]
		c := &e.Channels[i]

		for j := 0; j < addrBytesPerChan; j++ {
			c.Address[addrBytesPerChan-1-j] = block[j]
		}
		c.Frequency = BaseFrequencyMHz + uint16(block[5])
		c.AddressValid = true
		c.recomputeAddressEmpty()
	}

	return []Event{{Type: EventAddressesUpdated}}, nil
}

func u16(lo, hi byte) uint16 {
	return uint16(lo) | uint16(hi)<<8
}

// SelectChannel requests a local channel switch. The set-channel command
// goes out twice (the device occasionally misses a single one) and the
// engine adopts the channel immediately without consuming the debounce
// counter. The returned frames must be written to the transport in order.
func (e *Engine) SelectChannel(ch int) ([][]byte, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	frame := SetChannel(ch)
	e.currentChannel = ch
	return [][]byte{frame, frame}, nil
}

// VoltageCommand encodes the pending voltage/current targets for ch as a
// set-voltage command and clears the dirty flag.
func (e *Engine) VoltageCommand(ch int) ([]byte, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	c := &e.Channels[ch]
	frame := SetVoltage(ch, c.PendingSetVoltage, c.PendingSetCurrent)
	c.PendingSetDirty = false
	return frame, nil
}

// CurrentCommand is VoltageCommand's twin for the set-current packet type;
// the wire layout is identical.
func (e *Engine) CurrentCommand(ch int) ([]byte, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	c := &e.Channels[ch]
	frame := SetCurrent(ch, c.PendingSetVoltage, c.PendingSetCurrent)
	c.PendingSetDirty = false
	return frame, nil
}

// AddressCommand encodes the pending address/frequency for ch and clears
// the dirty flag.
func (e *Engine) AddressCommand(ch int) ([]byte, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	c := &e.Channels[ch]
	frame := SetAddress(ch, c.PendingAddress, c.PendingFrequency)
	c.PendingAddressDirty = false
	return frame, nil
}

// AllAddressesCommand encodes every channel's pending address in one
// command and clears all six dirty flags.
func (e *Engine) AllAddressesCommand() []byte {
	var addrs [NumChannels][5]byte
	var freqs [NumChannels]uint16
	for i := range e.Channels {
		addrs[i] = e.Channels[i].PendingAddress
		freqs[i] = e.Channels[i].PendingFrequency
		e.Channels[i].PendingAddressDirty = false
	}
	return SetAllAddresses(addrs, freqs)
}

// OutputCommand encodes the pending output state for ch and clears the
// dirty flag.
func (e *Engine) OutputCommand(ch int) ([]byte, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	c := &e.Channels[ch]
	frame := SetOutput(ch, c.PendingOutputOn)
	c.PendingOutputDirty = false
	return frame, nil
}

func checkChannel(ch int) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("channel %d out of range 0..%d", ch, NumChannels-1)
	}
	return nil
}
