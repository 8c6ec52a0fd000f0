package device

import (
	"testing"
	"time"

	"github.com/mblsha/miniware-mdp-m01/internal/mdp"
)

// drain reads the demo provider into an engine until the condition holds or
// the deadline passes.
func drain(t *testing.T, d *Demo, eng *mdp.Engine, cond func() bool) {
	t.Helper()
	buf := make([]byte, 1024)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := d.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		eng.Feed(buf[:n])
		if cond() {
			return
		}
	}
	t.Fatal("condition not met before deadline")
}

func TestDemoStreamsDecodablePackets(t *testing.T) {
	d := NewDemo()
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	eng := mdp.NewEngine()
	drain(t, d, eng, func() bool { return eng.Stats().PacketsDecoded >= 2 })

	if eng.Stats().PacketsRejected != 0 {
		t.Errorf("rejected packets = %d", eng.Stats().PacketsRejected)
	}
	c := &eng.Channels[0]
	if !c.Online || c.Type != mdp.MachineP906 {
		t.Errorf("channel 0 = online %v type %v, want online P906", c.Online, c.Type)
	}
	if eng.Channels[4].Online {
		t.Error("channel 4 ships empty, should be offline")
	}
}

func TestDemoAppliesVoltageCommand(t *testing.T) {
	d := NewDemo()
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if _, err := d.Write(mdp.SetVoltage(1, 4200, 800)); err != nil {
		t.Fatal(err)
	}

	eng := mdp.NewEngine()
	drain(t, d, eng, func() bool { return eng.Channels[1].SetVoltage == 4200 })
	if eng.Channels[1].SetCurrent != 800 {
		t.Errorf("set current = %v, want 800", eng.Channels[1].SetCurrent)
	}
}

func TestDemoAnswersAddressQuery(t *testing.T) {
	d := NewDemo()
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if _, err := d.Write(mdp.GetAddresses()); err != nil {
		t.Fatal(err)
	}

	eng := mdp.NewEngine()
	drain(t, d, eng, func() bool { return eng.Channels[0].AddressValid })

	c := &eng.Channels[0]
	if c.Address != [5]byte{0xC1, 0x10, 0x22, 0x33, 0x44} {
		t.Errorf("address = % X", c.Address)
	}
	if c.Frequency != 2433 {
		t.Errorf("frequency = %d, want 2433", c.Frequency)
	}
}

func TestDemoAnswersMachineQuery(t *testing.T) {
	d := NewDemo()
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if _, err := d.Write(mdp.GetMachineType()); err != nil {
		t.Fatal(err)
	}

	eng := mdp.NewEngine()
	drain(t, d, eng, func() bool { return eng.MachineClass() != mdp.ClassUnknown })
	if eng.MachineClass() != mdp.ClassWithDisplay {
		t.Errorf("class = %v, want with-display", eng.MachineClass())
	}
}

func TestDemoHandlesFragmentedWrites(t *testing.T) {
	d := NewDemo()
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	frame := mdp.SetOutput(0, false)
	if _, err := d.Write(frame[:3]); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Write(frame[3:]); err != nil {
		t.Fatal(err)
	}

	eng := mdp.NewEngine()
	drain(t, d, eng, func() bool { return eng.Stats().PacketsDecoded >= 2 && !eng.Channels[0].OutputOn })
}
