package device

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mblsha/miniware-mdp-m01/internal/mdp"
)

// Session owns the protocol engine for one instrument connection. A single
// goroutine reads the provider and feeds the engine; everything else goes
// through the session's mutex, which keeps the lock-free engine safe.
type Session struct {
	prov Provider
	cfg  SessionConfig

	mu  sync.Mutex
	eng *mdp.Engine

	onEvent func(mdp.Event)
}

// SessionConfig tunes the session loop.
type SessionConfig struct {
	// HeartbeatInterval is how often the keep-alive command goes out.
	// The firmware drops the link after a few silent seconds.
	HeartbeatInterval time.Duration
	// SwitchSuppress is how many stale synthesize packets to tolerate after
	// a local channel switch before trusting the device's channel byte again.
	SwitchSuppress int
	// WaveMaxTime overrides the waveform window span when positive.
	WaveMaxTime float64
}

// Snapshot is a point-in-time copy of the instrument state for JSON
// consumers.
type Snapshot struct {
	Connected      bool                         `json:"connected"`
	Provider       string                       `json:"provider"`
	CurrentChannel int                          `json:"currentChannel"`
	MachineClass   string                       `json:"machineClass"`
	Channels       [mdp.NumChannels]mdp.Channel `json:"channels"`
	Stats          mdp.Stats                    `json:"stats"`
	Stamp          int64                        `json:"stamp"` // Unix ms
}

// WaveSnapshot is a copy of the waveform series.
type WaveSnapshot struct {
	Channel int              `json:"channel"`
	Paused  bool             `json:"paused"`
	Voltage []mdp.WaveSample `json:"voltage"`
	Current []mdp.WaveSample `json:"current"`
}

// NewSession wraps a connected (or connecting) provider.
func NewSession(prov Provider, cfg SessionConfig) *Session {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 2 * time.Second
	}
	if cfg.SwitchSuppress <= 0 {
		cfg.SwitchSuppress = 2
	}
	s := &Session{
		prov: prov,
		cfg:  cfg,
		eng:  mdp.NewEngine(),
	}
	if cfg.WaveMaxTime > 0 {
		s.eng.Wave().SetMaxTime(cfg.WaveMaxTime)
	}
	return s
}

// OnEvent registers a callback for engine notifications. Must be set before
// Run; the callback fires on the read goroutine and must not block.
func (s *Session) OnEvent(fn func(mdp.Event)) { s.onEvent = fn }

// Run drives the read loop and heartbeat until ctx is cancelled. It returns
// once the provider is closed or the context is done.
func (s *Session) Run(ctx context.Context) error {
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	// Startup queries so the UI has addresses and the hardware variant
	// before the first user action.
	s.writeFrames(mdp.GetMachineType(), mdp.GetAddresses())

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			<-readDone
			return ctx.Err()
		case <-readDone:
			return nil
		case <-heartbeat.C:
			if s.prov.IsConnected() {
				s.writeFrames(mdp.Heartbeat())
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context) {
	buf := make([]byte, 1024)
	for {
		if ctx.Err() != nil {
			return
		}
		if !s.prov.IsConnected() {
			// Provider still connecting (or reconnecting); don't spin.
			time.Sleep(200 * time.Millisecond)
			continue
		}

		n, err := s.prov.Read(buf)
		if err != nil {
			log.Printf("[session] read: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}

		s.mu.Lock()
		events := s.eng.Feed(buf[:n])
		s.mu.Unlock()

		if s.onEvent != nil {
			for _, ev := range events {
				s.onEvent(ev)
			}
		}
	}
}

// writeFrames sends frames to the provider in order, logging failures.
func (s *Session) writeFrames(frames ...[]byte) {
	for _, frame := range frames {
		if _, err := s.prov.Write(frame); err != nil {
			log.Printf("[session] write: %v", err)
			return
		}
	}
}

// Snapshot copies the current instrument state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Connected:      s.prov.IsConnected(),
		Provider:       s.prov.Name(),
		CurrentChannel: s.eng.CurrentChannel(),
		MachineClass:   s.eng.MachineClass().String(),
		Channels:       s.eng.Channels,
		Stats:          s.eng.Stats(),
		Stamp:          time.Now().UnixMilli(),
	}
}

// WaveSnapshot copies the waveform series for the current channel.
func (s *Session) WaveSnapshot() WaveSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.eng.Wave()
	snap := WaveSnapshot{
		Channel: s.eng.CurrentChannel(),
		Paused:  s.eng.WavePaused(),
		Voltage: append([]mdp.WaveSample(nil), w.Voltage...),
		Current: append([]mdp.WaveSample(nil), w.Current...),
	}
	return snap
}

// Stats copies the engine counters.
func (s *Session) Stats() mdp.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Stats()
}

// SelectChannel switches the instrument to ch. The command goes out twice,
// the local state flips immediately and the debounce counter is armed so
// stale telemetry doesn't flip it back.
func (s *Session) SelectChannel(ch int) error {
	s.mu.Lock()
	frames, err := s.eng.SelectChannel(ch)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.eng.ArmChannelSwitchSuppress(s.cfg.SwitchSuppress)
	s.eng.StopWave()
	s.eng.CleanWave()
	s.mu.Unlock()

	s.writeFrames(frames...)
	return nil
}

// SetVoltage programs the voltage/current targets for ch.
func (s *Session) SetVoltage(ch int, millivolts, milliamps uint16) error {
	return s.sendTarget(ch, millivolts, milliamps, (*mdp.Engine).VoltageCommand)
}

// SetCurrent programs the current limit for ch; the wire layout matches
// SetVoltage.
func (s *Session) SetCurrent(ch int, millivolts, milliamps uint16) error {
	return s.sendTarget(ch, millivolts, milliamps, (*mdp.Engine).CurrentCommand)
}

func (s *Session) sendTarget(ch int, millivolts, milliamps uint16, build func(*mdp.Engine, int) ([]byte, error)) error {
	s.mu.Lock()
	if ch < 0 || ch >= mdp.NumChannels {
		s.mu.Unlock()
		return fmt.Errorf("channel %d out of range", ch)
	}
	c := &s.eng.Channels[ch]
	c.PendingSetVoltage = millivolts
	c.PendingSetCurrent = milliamps
	c.PendingSetDirty = true
	frame, err := build(s.eng, ch)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.writeFrames(frame)
	return nil
}

// SetOutput switches a channel's output stage.
func (s *Session) SetOutput(ch int, on bool) error {
	s.mu.Lock()
	if ch < 0 || ch >= mdp.NumChannels {
		s.mu.Unlock()
		return fmt.Errorf("channel %d out of range", ch)
	}
	c := &s.eng.Channels[ch]
	c.PendingOutputOn = on
	c.PendingOutputDirty = true
	frame, err := s.eng.OutputCommand(ch)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.writeFrames(frame)
	return nil
}

// SetAddress programs one channel's radio address and frequency.
func (s *Session) SetAddress(ch int, address [5]byte, freqMHz uint16) error {
	s.mu.Lock()
	if ch < 0 || ch >= mdp.NumChannels {
		s.mu.Unlock()
		return fmt.Errorf("channel %d out of range", ch)
	}
	c := &s.eng.Channels[ch]
	c.PendingAddress = address
	c.PendingFrequency = freqMHz
	c.PendingAddressDirty = true
	frame, err := s.eng.AddressCommand(ch)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.writeFrames(frame)

	// Ask for the full table back so the UI reflects what the device kept.
	s.writeFrames(mdp.GetAddresses())
	return nil
}

// RequestAddresses asks the instrument for its address table.
func (s *Session) RequestAddresses() error {
	s.writeFrames(mdp.GetAddresses())
	return nil
}

// RequestMachineType asks the instrument for its hardware variant.
func (s *Session) RequestMachineType() error {
	s.writeFrames(mdp.GetMachineType())
	return nil
}

// SetWavePaused pauses or resumes waveform capture.
func (s *Session) SetWavePaused(paused bool) {
	s.mu.Lock()
	s.eng.SetWavePaused(paused)
	s.mu.Unlock()
}

// ClearWave empties the waveform buffer.
func (s *Session) ClearWave() {
	s.mu.Lock()
	s.eng.CleanWave()
	s.mu.Unlock()
}

// SetRGB toggles the base unit's indicator LED blinking.
func (s *Session) SetRGB(on bool) error {
	s.writeFrames(mdp.SetRGB(on))
	return nil
}

// StartAutoMatch puts the instrument into auto-match pairing mode.
func (s *Session) StartAutoMatch() error {
	s.writeFrames(mdp.StartAutoMatch())
	return nil
}

// StopAutoMatch leaves auto-match pairing mode.
func (s *Session) StopAutoMatch() error {
	s.writeFrames(mdp.StopAutoMatch())
	return nil
}

// ResetToDFU reboots the instrument into firmware-update mode.
func (s *Session) ResetToDFU() error {
	s.writeFrames(mdp.ResetToDFU())
	return nil
}
