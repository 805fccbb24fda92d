// Package joypad implements the 0xFF00 button matrix: two 4-bit groups
// (direction keys and action buttons) multiplexed onto the low nibble by
// the two select bits, with buttons reading active-low.
package joypad

import "github.com/dmgcore/gbcore/internal/interrupt"

// Button identifies one of the eight physical buttons.
type Button int

const (
	ButtonRight Button = iota
	ButtonLeft
	ButtonUp
	ButtonDown
	ButtonA
	ButtonB
	ButtonSelect
	ButtonStart
)

// Buttons is a snapshot of all eight button states, true meaning pressed.
// Hosts build one of these from their input source and hand it to Set.
type Buttons struct {
	Right, Left, Up, Down bool
	A, B, Select, Start   bool
}

// Joypad holds the direction and action button groups and the P14/P15
// select lines written to 0xFF00. Both groups are active-low: a clear
// bit means pressed.
type Joypad struct {
	ic *interrupt.Controller

	dpad    byte // low nibble: Right,Left,Up,Down -> bits 0-3
	buttons byte // low nibble: A,B,Select,Start   -> bits 0-3
	selects byte // bits 4-5 as last written; 0 selects that group
}

func New(ic *interrupt.Controller) *Joypad {
	return &Joypad{ic: ic, dpad: 0x0F, buttons: 0x0F}
}

// Read returns the current value of 0xFF00. Bits 6-7 always read 1.
// When both groups are selected the two nibbles are wired-ANDed, matching
// real hardware; when neither is selected the nibble reads all 1s.
func (j *Joypad) Read() byte {
	switch j.selects & 0x30 {
	case 0x00:
		return 0xC0 | j.selects | (j.dpad & j.buttons)
	case 0x10:
		return 0xC0 | j.selects | j.buttons
	case 0x20:
		return 0xC0 | j.selects | j.dpad
	default:
		return 0xC0 | j.selects | 0x0F
	}
}

// Write updates the select lines. Only bits 4-5 are writeable.
func (j *Joypad) Write(value byte) {
	j.selects = value & 0x30
}

// Set applies a full button snapshot, raising the Joypad interrupt if any
// selected line transitions from released (1) to pressed (0).
func (j *Joypad) Set(b Buttons) {
	before := j.Read()

	j.dpad = nibble(!b.Right, !b.Left, !b.Up, !b.Down)
	j.buttons = nibble(!b.A, !b.B, !b.Select, !b.Start)

	after := j.Read()
	// A falling line is a bit that was 1 in the selected-group read and is
	// now 0.
	if before&^after&0x0F != 0 {
		j.ic.Request(interrupt.BitJoypad)
	}
}

func nibble(bit0, bit1, bit2, bit3 bool) byte {
	var v byte
	if bit0 {
		v |= 1 << 0
	}
	if bit1 {
		v |= 1 << 1
	}
	if bit2 {
		v |= 1 << 2
	}
	if bit3 {
		v |= 1 << 3
	}
	return v
}
