package mdp

// MachineType identifies what is plugged into a channel slot.
type MachineType int

const (
	MachineNode  MachineType = 0 // empty slot / no module
	MachineP905  MachineType = 1
	MachineP906  MachineType = 2
	MachineL1060 MachineType = 3 // electronic load
)

func (t MachineType) String() string {
	switch t {
	case MachineNode:
		return "node"
	case MachineP905:
		return "P905"
	case MachineP906:
		return "P906"
	case MachineL1060:
		return "L1060"
	}
	return "unknown"
}

// OutputMode is the channel's operating mode, derived from the machine type
// and two raw status bytes of the synthesize block.
type OutputMode int

const (
	ModeOff OutputMode = 0
	ModeCC  OutputMode = 1
	ModeCV  OutputMode = 2
	ModeCR  OutputMode = 3
	ModeCP  OutputMode = 4
	ModeOn  OutputMode = 5
)

func (m OutputMode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeCC:
		return "CC"
	case ModeCV:
		return "CV"
	case ModeCR:
		return "CR"
	case ModeCP:
		return "CP"
	case ModeOn:
		return "on"
	}
	return "unknown"
}

// MachineClass is the instrument-wide hardware variant.
type MachineClass int

const (
	ClassUnknown MachineClass = iota
	ClassWithDisplay
	ClassWithoutDisplay
)

func (c MachineClass) String() string {
	switch c {
	case ClassWithDisplay:
		return "with-display"
	case ClassWithoutDisplay:
		return "without-display"
	}
	return "unknown"
}

// Channel is the state record for one of the six slots. All measured and
// configured values stay in device units: millivolts, milliamps, milliwatts
// (power = V*I/1000). Temperature is in degrees C.
//
// The *Changed flags are set by the decoder whenever the corresponding value
// differs from the previous packet; consumers poll them and are responsible
// for clearing them once acted on. The Pending* fields plus their dirty
// flags travel the other way: the application fills them in, the matching
// command builder encodes and clears them.
type Channel struct {
	No int `json:"no"` // device-reported channel tag

	// Measured.
	OutVoltage float64 `json:"outVoltage"` // mV
	OutCurrent float64 `json:"outCurrent"` // mA
	OutPower   float64 `json:"outPower"`   // mW
	InVoltage  float64 `json:"inVoltage"`
	InCurrent  float64 `json:"inCurrent"`
	InPower    float64 `json:"inPower"`

	// Configured, as echoed back by the device.
	SetVoltage float64 `json:"setVoltage"`
	SetCurrent float64 `json:"setCurrent"`
	SetPower   float64 `json:"setPower"`

	Temperature float64 `json:"temperature"` // degrees C

	Online        bool `json:"online"`
	OnlineChanged bool `json:"onlineChanged"`
	Locked        bool `json:"locked"`
	LockChanged   bool `json:"lockChanged"`

	Type        MachineType `json:"type"`
	TypeChanged bool        `json:"typeChanged"`

	Mode        OutputMode `json:"mode"`
	ModeChanged bool       `json:"modeChanged"`

	Color        RGB  `json:"color"`
	ColorChanged bool `json:"colorChanged"`

	OutputOn bool `json:"outputOn"`

	// Radio address, natural byte order, plus its 2.4 GHz band frequency.
	Address      [addrBytesPerChan]byte `json:"address"`
	Frequency    uint16                 `json:"frequency"`    // MHz
	AddressEmpty bool                   `json:"addressEmpty"` // true iff all five address bytes are zero
	AddressValid bool                   `json:"addressValid"` // set once any address packet has been seen

	// Outbound state waiting to be encoded.
	PendingAddress      [addrBytesPerChan]byte `json:"-"`
	PendingFrequency    uint16                 `json:"-"` // MHz
	PendingAddressDirty bool                   `json:"-"`
	PendingSetVoltage   uint16                 `json:"-"` // mV
	PendingSetCurrent   uint16                 `json:"-"` // mA
	PendingSetDirty     bool                   `json:"-"`
	PendingOutputOn     bool                   `json:"-"`
	PendingOutputDirty  bool                   `json:"-"`
}

// recomputeAddressEmpty refreshes AddressEmpty from the raw address bytes.
func (c *Channel) recomputeAddressEmpty() {
	for _, b := range c.Address {
		if b != 0 {
			c.AddressEmpty = false
			return
		}
	}
	c.AddressEmpty = true
}

func newChannel() Channel {
	return Channel{
		Frequency:        BaseFrequencyMHz,
		PendingFrequency: BaseFrequencyMHz,
		AddressEmpty:     true,
	}
}
