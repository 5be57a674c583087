package events

import "strings"

// Register bits reported by the link controller.
const (
	irConflict uint8 = 0x80
	irUnreach  uint8 = 0x40
	irPPPTerm  uint8 = 0x20

	ir2WOL uint8 = 0x01

	slirTimeout uint8 = 0x04
	slirARP     uint8 = 0x02
	slirPing    uint8 = 0x01
)

// Interrupts is the decoded form of a SysEthIf interrupt word.
// It is used for diagnostics only.
type Interrupts struct {
	Conflict      bool // IP address conflict
	Unreachable   bool // destination unreachable
	PPPTerminated bool // PPPoE session closed
	WakeOnLAN     bool // magic packet received
	Timeout       bool // ARP or ping request timed out
	ARP           bool // ARP reply received
	Ping          bool // ping reply received
}

// PackInterrupts packs the three interrupt registers into one word.
// Byte 0 holds IR, byte 1 holds IR2 and byte 2 holds SLIR.
func PackInterrupts(ir, ir2, slir uint8) uint32 {
	return uint32(ir) | uint32(ir2)<<8 | uint32(slir)<<16
}

// DecodeInterrupts unpacks a word built by PackInterrupts.
func DecodeInterrupts(word uint32) Interrupts {
	ir := uint8(word)
	ir2 := uint8(word >> 8)
	slir := uint8(word >> 16)
	return Interrupts{
		Conflict:      ir&irConflict != 0,
		Unreachable:   ir&irUnreach != 0,
		PPPTerminated: ir&irPPPTerm != 0,
		WakeOnLAN:     ir2&ir2WOL != 0,
		Timeout:       slir&slirTimeout != 0,
		ARP:           slir&slirARP != 0,
		Ping:          slir&slirPing != 0,
	}
}

// Pack encodes the flags back into an interrupt word.
func (i Interrupts) Pack() uint32 {
	var ir, ir2, slir uint8
	set := func(reg *uint8, on bool, bit uint8) {
		if on {
			*reg |= bit
		}
	}
	set(&ir, i.Conflict, irConflict)
	set(&ir, i.Unreachable, irUnreach)
	set(&ir, i.PPPTerminated, irPPPTerm)
	set(&ir2, i.WakeOnLAN, ir2WOL)
	set(&slir, i.Timeout, slirTimeout)
	set(&slir, i.ARP, slirARP)
	set(&slir, i.Ping, slirPing)
	return PackInterrupts(ir, ir2, slir)
}

// Any reports whether any flag is set.
func (i Interrupts) Any() bool {
	return i.Conflict || i.Unreachable || i.PPPTerminated || i.WakeOnLAN || i.Timeout || i.ARP || i.Ping
}

// String lists the set flags separated by '|'.
func (i Interrupts) String() string {
	var flags []string
	add := func(set bool, name string) {
		if set {
			flags = append(flags, name)
		}
	}
	add(i.Conflict, "conflict")
	add(i.Unreachable, "unreachable")
	add(i.PPPTerminated, "ppp_terminated")
	add(i.WakeOnLAN, "wol")
	add(i.Timeout, "timeout")
	add(i.ARP, "arp")
	add(i.Ping, "ping")
	if len(flags) == 0 {
		return "none"
	}
	return strings.Join(flags, "|")
}
