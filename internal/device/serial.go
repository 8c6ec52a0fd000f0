package device

import (
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial talks to an MDP-M01/M02 base unit over its USB serial port.
//
// The instrument streams unsolicited synthesize and wave packets as soon as
// the port is open, so unlike a polled device there is no handshake command.
// Connect verifies the link by watching for the 0x5A 0x5A sync marker in the
// first moments of traffic.
type Serial struct {
	portPath string
	baudRate int

	mu        sync.Mutex
	port      serial.Port
	connected bool
}

// SerialConfig holds connection configuration for the serial provider.
type SerialConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

const (
	// readTimeout bounds a single Read; the session loop polls continuously.
	readTimeout = 200 * time.Millisecond
	// probeWindow is how long Connect watches for the sync marker.
	probeWindow = 3 * time.Second
)

// NewSerial creates a serial provider for the given port.
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	return &Serial{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
	}
}

func (s *Serial) Name() string { return "MDP serial" }

// Connect opens the port and waits for evidence of the packet stream.
func (s *Serial) Connect() error {
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.portPath, mode)
	if err != nil {
		return fmt.Errorf("serial: failed to open %s: %w", s.portPath, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("serial: failed to set timeout: %w", err)
	}

	log.Printf("[serial] opened %s at %d baud", s.portPath, s.baudRate)
	port.ResetInputBuffer()

	if err := waitForSync(port, s.portPath); err != nil {
		port.Close()
		return err
	}

	s.mu.Lock()
	s.port = port
	s.connected = true
	s.mu.Unlock()

	log.Printf("[serial] instrument stream detected on %s", s.portPath)
	return nil
}

// waitForSync reads until two consecutive 0x5A bytes appear or the probe
// window elapses. A silent port usually means the wrong device node.
func waitForSync(port serial.Port, path string) error {
	deadline := time.Now().Add(probeWindow)
	buf := make([]byte, 64)
	var prev byte

	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil && n == 0 {
			return fmt.Errorf("serial: probe read on %s: %w", path, err)
		}
		for _, b := range buf[:n] {
			if prev == 0x5A && b == 0x5A {
				return nil
			}
			prev = b
		}
	}
	return fmt.Errorf("serial: no packet stream on %s within %v", path, probeWindow)
}

func (s *Serial) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}

func (s *Serial) Read(p []byte) (int, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return 0, fmt.Errorf("serial: not connected")
	}
	return port.Read(p)
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return 0, fmt.Errorf("serial: not connected")
	}
	return s.port.Write(p)
}
