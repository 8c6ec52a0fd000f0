package device

// Provider is the transport behind one MDP instrument. The serial
// implementation talks to real hardware; the demo implementation fakes an
// instrument for development without one.
type Provider interface {
	// Name returns the human-readable name of this transport.
	Name() string
	// Connect opens the underlying transport.
	Connect() error
	// Close cleanly shuts the transport down.
	Close() error
	// IsConnected returns whether the provider has an active connection.
	IsConnected() bool

	// Read fills p with raw protocol bytes. A timeout with no data returns
	// (0, nil); the caller decides how long to keep polling. Frames may be
	// split or coalesced arbitrarily.
	Read(p []byte) (int, error)
	// Write sends one or more complete command frames to the instrument.
	Write(p []byte) (int, error)
}
