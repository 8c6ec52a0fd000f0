package device

import (
	"context"
	"testing"
	"time"
)

func startSession(t *testing.T) (*Session, context.CancelFunc) {
	t.Helper()
	d := NewDemo()
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}
	s := NewSession(d, SessionConfig{HeartbeatInterval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		d.Close()
	})
	return s, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSessionSnapshotFillsFromStream(t *testing.T) {
	s, _ := startSession(t)

	// The startup query replies arrive before the first telemetry packet, so
	// wait for the telemetry itself rather than any decoded packet.
	waitFor(t, func() bool { return s.Snapshot().Channels[0].Online })

	snap := s.Snapshot()
	if !snap.Connected {
		t.Error("snapshot should report connected")
	}
	if snap.Stamp == 0 {
		t.Error("snapshot stamp missing")
	}
}

func TestSessionStartupQueries(t *testing.T) {
	s, _ := startSession(t)

	// Run sends machine-type and address queries up front; the demo
	// instrument answers both.
	waitFor(t, func() bool {
		snap := s.Snapshot()
		return snap.MachineClass == "with-display" && snap.Channels[0].AddressValid
	})
}

func TestSessionSelectChannel(t *testing.T) {
	s, _ := startSession(t)
	waitFor(t, func() bool { return s.Stats().PacketsDecoded > 0 })

	if err := s.SelectChannel(2); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().CurrentChannel; got != 2 {
		t.Fatalf("current channel = %d, want 2 immediately after select", got)
	}

	// The demo device honors the switch, so the channel must stay put once
	// the debounce counter drains.
	waitFor(t, func() bool { return s.Stats().WavePackets > 0 })
	if got := s.Snapshot().CurrentChannel; got != 2 {
		t.Errorf("current channel drifted to %d", got)
	}

	if err := s.SelectChannel(9); err == nil {
		t.Error("channel 9 should be rejected")
	}
}

func TestSessionSetVoltageRoundTrip(t *testing.T) {
	s, _ := startSession(t)
	waitFor(t, func() bool { return s.Stats().PacketsDecoded > 0 })

	if err := s.SetVoltage(0, 7500, 1250); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		c := s.Snapshot().Channels[0]
		return c.SetVoltage == 7500 && c.SetCurrent == 1250
	})
}

func TestSessionWaveSnapshot(t *testing.T) {
	s, _ := startSession(t)
	waitFor(t, func() bool { return s.Stats().WavePackets > 0 })

	snap := s.WaveSnapshot()
	if len(snap.Voltage) == 0 || len(snap.Voltage) != len(snap.Current) {
		t.Fatalf("wave snapshot %d/%d samples", len(snap.Voltage), len(snap.Current))
	}

	s.SetWavePaused(true)
	if !s.WaveSnapshot().Paused {
		t.Error("pause flag not reflected")
	}

	s.ClearWave()
	if got := len(s.WaveSnapshot().Voltage); got != 0 {
		t.Errorf("wave has %d samples after clear", got)
	}
}
