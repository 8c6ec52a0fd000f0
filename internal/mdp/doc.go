// Package mdp implements the serial protocol of the Miniware MDP-M01/M02
// six-channel bench power system.
//
// The package is transport-agnostic: an Engine consumes raw bytes from
// whatever carries the serial link and returns decoded events, while the
// command builders produce complete frames ready to write back.
//
// # Wire format
//
// Every packet is length-prefixed with a single-byte XOR checksum:
//
//	[0x5A][0x5A][type][total_size][channel][checksum][payload...]
//
// The device periodically pushes a telemetry snapshot for all six channels
// (synthesize), a high-rate voltage/current sample burst for the selected
// channel (wave), and the channel radio addresses on request. The host side
// sends channel/voltage/current/output commands plus a heartbeat.
//
// # Usage
//
//	engine := mdp.NewEngine()
//	for {
//		n, _ := port.Read(buf)
//		for _, ev := range engine.Feed(buf[:n]) {
//			// react to channel switches, faults, ...
//		}
//	}
//	port.Write(mdp.Heartbeat())
//
// Engine is not safe for concurrent use; serialize Feed and the command
// builders through a single owner.
package mdp
