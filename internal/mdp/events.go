package mdp

// EventType enumerates the discrete notifications the decoder can emit.
// They replace the original firmware tool's UI signals: delivery is
// synchronous, ordered and at-most-once per packet, as a slice returned
// from Feed.
type EventType int

const (
	// EventChannelChanged fires when a synthesize packet moves the current
	// channel. Channel carries the new value.
	EventChannelChanged EventType = iota

	// EventUIChannel is the device's authoritative channel hint from an
	// UpdatCh packet. It does not itself move the current channel.
	EventUIChannel

	// EventAddressesUpdated fires after an address packet has refreshed all
	// six channel records.
	EventAddressesUpdated

	// EventMachineClass fires when a machine-class packet arrives. Class
	// carries the decoded value.
	EventMachineClass

	// EventErr240 reports a 240 module fault packet.
	EventErr240

	// EventErrorFlag fires once per synthesize packet; ErrFlag is true if
	// any of the six channels reported an error byte.
	EventErrorFlag
)

func (t EventType) String() string {
	switch t {
	case EventChannelChanged:
		return "channel-changed"
	case EventUIChannel:
		return "ui-channel"
	case EventAddressesUpdated:
		return "addresses-updated"
	case EventMachineClass:
		return "machine-class"
	case EventErr240:
		return "err-240"
	case EventErrorFlag:
		return "error-flag"
	}
	return "unknown"
}

// Event is one decoded notification.
type Event struct {
	Type    EventType
	Channel int          // EventChannelChanged, EventUIChannel
	Class   MachineClass // EventMachineClass
	ErrFlag bool         // EventErrorFlag
}
