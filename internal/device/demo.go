package device

import (
	"encoding/binary"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/mblsha/miniware-mdp-m01/internal/mdp"
)

// Demo fakes an MDP base unit for development without hardware. It speaks
// the real wire protocol: Read returns encoded synthesize, wave, address and
// machine-type packets, and Write accepts the same command frames the serial
// instrument would.
type Demo struct {
	mu      sync.Mutex
	running bool
	t       float64 // virtual time accumulator
	tick    time.Time

	current int
	chans   [mdp.NumChannels]demoChannel
	outbox  []byte
	cmdBuf  []byte
}

type demoChannel struct {
	online   bool
	machine  byte
	setV     uint16 // mV
	setI     uint16 // mA
	outputOn bool
	locked   bool
	color    uint16
	address  [5]byte
	freqOff  byte
}

// demoTick paces Read at roughly the rate real hardware streams packets.
const demoTick = 50 * time.Millisecond

// NewDemo creates a demo provider with three populated channel slots.
func NewDemo() *Demo {
	d := &Demo{}
	d.chans[0] = demoChannel{
		online: true, machine: 2, // P906
		setV: 5000, setI: 2000, outputOn: true,
		color:   0xF800,
		address: [5]byte{0xC1, 0x10, 0x22, 0x33, 0x44},
		freqOff: 33,
	}
	d.chans[1] = demoChannel{
		online: true, machine: 1, // P905
		setV: 3300, setI: 500,
		color:   0x07E0,
		address: [5]byte{0xC2, 0x10, 0x22, 0x33, 0x44},
		freqOff: 61,
	}
	d.chans[2] = demoChannel{
		online: true, machine: 3, // L1060 load
		setV: 12000, setI: 1000, outputOn: true,
		color:   0x001F,
		address: [5]byte{0xC3, 0x10, 0x22, 0x33, 0x44},
		freqOff: 11,
	}
	return d
}

func (d *Demo) Name() string { return "Demo (simulated)" }

func (d *Demo) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	d.tick = time.Now()
	return nil
}

func (d *Demo) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

func (d *Demo) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Read paces itself to demoTick, generating one synthesize packet and one
// wave packet per tick plus any queued command replies.
func (d *Demo) Read(p []byte) (int, error) {
	d.mu.Lock()
	if len(d.outbox) == 0 {
		wait := demoTick - time.Since(d.tick)
		d.mu.Unlock()
		if wait > 0 {
			time.Sleep(wait)
		}
		d.mu.Lock()
		d.tick = time.Now()
		d.generate()
	}

	n := copy(p, d.outbox)
	d.outbox = d.outbox[n:]
	d.mu.Unlock()
	return n, nil
}

// Write consumes command frames and reacts like the firmware would. Partial
// frames are buffered until the rest arrives.
func (d *Demo) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cmdBuf = append(d.cmdBuf, p...)
	frames, consumed := mdp.ExtractFrames(d.cmdBuf)
	for _, frame := range frames {
		pkt, err := mdp.ParsePacket(frame)
		if err != nil {
			continue
		}
		d.handleCommand(pkt)
	}
	n := copy(d.cmdBuf, d.cmdBuf[consumed:])
	d.cmdBuf = d.cmdBuf[:n]

	return len(p), nil
}

func (d *Demo) handleCommand(pkt *mdp.Packet) {
	switch pkt.Type {
	case mdp.PackHeartbeat:
		// Keep-alive, nothing to do.

	case mdp.PackSetCh:
		if int(pkt.Channel) < mdp.NumChannels {
			d.current = int(pkt.Channel)
		}

	case mdp.PackSetV, mdp.PackSetI:
		if int(pkt.Channel) < mdp.NumChannels && len(pkt.Payload) >= 4 {
			c := &d.chans[pkt.Channel]
			c.setV = binary.LittleEndian.Uint16(pkt.Payload[0:2])
			c.setI = binary.LittleEndian.Uint16(pkt.Payload[2:4])
		}

	case mdp.PackSetIsOutput:
		if int(pkt.Channel) < mdp.NumChannels && len(pkt.Payload) >= 1 {
			d.chans[pkt.Channel].outputOn = pkt.Payload[0] == 1
		}

	case mdp.PackSetAddr:
		if int(pkt.Channel) < mdp.NumChannels && len(pkt.Payload) >= 6 {
			c := &d.chans[pkt.Channel]
			copy(c.address[:], pkt.Payload[:5])
			c.freqOff = pkt.Payload[5]
		}

	case mdp.PackSetAllAddr:
		for i := 0; i < mdp.NumChannels && (i+1)*6 <= len(pkt.Payload); i++ {
			c := &d.chans[i]
			copy(c.address[:], pkt.Payload[i*6:i*6+5])
			c.freqOff = pkt.Payload[i*6+5]
		}

	case mdp.PackGetAddr:
		d.queueAddresses()

	case mdp.PackGetMachine:
		d.queueMachineType()

	case mdp.PackResetToDfu:
		log.Printf("[demo] ignoring reset-to-DFU request")

	default:
		// RGB, auto-match and friends have no observable effect here.
	}
}

// generate appends one tick's worth of telemetry to the outbox.
func (d *Demo) generate() {
	d.t += demoTick.Seconds()
	d.outbox = append(d.outbox, d.synthesizePacket()...)
	d.outbox = append(d.outbox, d.wavePacket()...)
}

func (d *Demo) synthesizePacket() []byte {
	payload := make([]byte, mdp.NumChannels*25)
	for i := range d.chans {
		d.fillSynBlock(payload[i*25:(i+1)*25], i)
	}
	frame, err := mdp.Encode(mdp.PackSynthesize, byte(d.current), payload)
	if err != nil {
		panic(err)
	}
	return frame
}

func (d *Demo) fillSynBlock(b []byte, i int) {
	c := &d.chans[i]
	b[0] = byte(i)

	outV, outI := d.measured(c)
	inV := uint16(24000 + rand.Intn(200))
	inI := uint16(0)
	if c.outputOn && c.online {
		inI = uint16(uint32(outV) * uint32(outI) / uint32(inV))
	}

	binary.LittleEndian.PutUint16(b[1:3], outV)
	binary.LittleEndian.PutUint16(b[3:5], outI)
	binary.LittleEndian.PutUint16(b[5:7], inV)
	binary.LittleEndian.PutUint16(b[7:9], inI)
	binary.LittleEndian.PutUint16(b[9:11], c.setV)
	binary.LittleEndian.PutUint16(b[11:13], c.setI)

	temp := uint16(250 + 20*i)
	if c.outputOn {
		temp += uint16(50 + rand.Intn(30))
	}
	binary.LittleEndian.PutUint16(b[13:15], temp)

	if c.online {
		b[15] = 1
	}
	b[16] = c.machine
	if c.locked {
		b[17] = 1
	}
	b[18] = d.modeCode(c)
	if c.outputOn {
		b[19] = 1
	}
	binary.LittleEndian.PutUint16(b[20:22], c.color)
	b[23] = 0 // no error
}

// measured derives plausible output readings from the configured targets.
func (d *Demo) measured(c *demoChannel) (outV, outI uint16) {
	if !c.online || !c.outputOn {
		return 0, 0
	}
	ripple := math.Sin(d.t*3) * 10
	outV = uint16(float64(c.setV) + ripple)
	outI = uint16(float64(c.setI) * (0.6 + 0.3*math.Sin(d.t*0.7)*math.Sin(d.t*0.7)))
	return outV, outI
}

func (d *Demo) modeCode(c *demoChannel) byte {
	if c.machine == 3 {
		return 0 // load in CC
	}
	if !c.outputOn {
		return 0
	}
	return 2 // supply in CV
}

// wavePacket emits ten groups of two points for the current channel; the
// shared timestamp of 100 units gives a 5 ms point spacing.
func (d *Demo) wavePacket() []byte {
	const pointsPerGroup = 2

	payload := make([]byte, 0, 10*(4+pointsPerGroup*4))
	c := &d.chans[d.current]
	outV, outI := d.measured(c)

	for g := 0; g < 10; g++ {
		group := make([]byte, 4+pointsPerGroup*4)
		binary.LittleEndian.PutUint32(group[0:4], 100)
		for j := 0; j < pointsPerGroup; j++ {
			binary.LittleEndian.PutUint16(group[4+j*4:], jitter(outV))
			binary.LittleEndian.PutUint16(group[6+j*4:], jitter(outI))
		}
		payload = append(payload, group...)
	}

	frame, err := mdp.Encode(mdp.PackWave, byte(d.current), payload)
	if err != nil {
		panic(err)
	}
	return frame
}

func jitter(v uint16) uint16 {
	if v == 0 {
		return 0
	}
	return v - 2 + uint16(rand.Intn(5))
}

func (d *Demo) queueAddresses() {
	payload := make([]byte, 0, mdp.NumChannels*6)
	for i := range d.chans {
		c := &d.chans[i]
		// Address bytes go out in reverse order, like the radio sends them.
		for j := 4; j >= 0; j-- {
			payload = append(payload, c.address[j])
		}
		payload = append(payload, c.freqOff)
	}
	frame, err := mdp.Encode(mdp.PackAddr, 0, payload)
	if err != nil {
		panic(err)
	}
	d.outbox = append(d.outbox, frame...)
}

func (d *Demo) queueMachineType() {
	frame, err := mdp.Encode(mdp.PackMachine, 0, []byte{mdp.MachineWithDisplayCode})
	if err != nil {
		panic(err)
	}
	d.outbox = append(d.outbox, frame...)
}
