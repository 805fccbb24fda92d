// Package bus implements the memory bus that wires the CPU to every
// other peripheral: address decoding over the canonical DMG memory map,
// work/high RAM, echo RAM, OAM-DMA and PPU-mode access locks, and the
// single Tick that advances the timer, PPU, APU, and DMA engine in
// lockstep for every T-cycle the CPU spends on a memory access.
package bus

import (
	"io"

	"github.com/dmgcore/gbcore/internal/apu"
	"github.com/dmgcore/gbcore/internal/cart"
	"github.com/dmgcore/gbcore/internal/dma"
	"github.com/dmgcore/gbcore/internal/interrupt"
	"github.com/dmgcore/gbcore/internal/joypad"
	"github.com/dmgcore/gbcore/internal/ppu"
	"github.com/dmgcore/gbcore/internal/timer"
)

// Bus owns work RAM, high RAM, and the interrupt controller directly,
// and routes every other address to the peripheral that owns it.
type Bus struct {
	ic *interrupt.Controller

	cart cart.Cartridge
	ppu  *ppu.PPU
	apu  *apu.APU
	tmr  *timer.Timer
	pad  *joypad.Joypad
	dma  *dma.Controller

	wram [0x2000]byte // 0xC000-0xDFFF (0xE000-0xFDFF echoes 0xC000-0xDDFF)
	hram [0x7F]byte   // 0xFF80-0xFFFE

	serialData   byte
	serialCtrl   byte
	serialOut    io.Writer
	serialActive bool
	serialRemain int

	bootROM    []byte // when set, overlays 0x0000-0x00FF until disabled
	bootActive bool
}

// New builds a Bus for the given ROM image. An invalid or absent header
// (common in test fixtures and headless CPU test ROMs) is treated as a
// ROM-only cartridge rather than failing construction; LoadCartridge in
// the orchestrator package is the place real load errors surface.
func New(rom []byte) *Bus {
	ic := interrupt.New()
	c, _, err := cart.New(rom)
	if err != nil {
		c = cart.NewROMOnly(rom)
	}
	b := &Bus{
		ic:  ic,
		cart: c,
		ppu: ppu.New(ic),
		apu: apu.New(44100),
		tmr: timer.New(ic),
		pad: joypad.New(ic),
	}
	b.dma = dma.New(dmaBus{b})
	return b
}

// dmaBus adapts Bus to the narrow interface the DMA controller needs: a
// plain memory read for the source and a direct OAM write that bypasses
// the PPU-mode access lock CPU writes are subject to.
type dmaBus struct{ b *Bus }

// Read goes through readUnlocked, not the CPU-facing Read: the DMA
// engine is itself the thing holding the bus locked for the CPU, so its
// own source reads must bypass that lock instead of seeing every byte
// come back as 0xFF.
func (d dmaBus) Read(addr uint16) byte      { return d.b.readUnlocked(addr) }
func (d dmaBus) WriteOAM(index int, v byte) { d.b.ppu.WriteOAMRaw(index, v) }

// PPU, APU, Cartridge, and Interrupts expose the owned peripherals for
// the orchestrator and host layers (framebuffer/audio pull, save RAM,
// IE/IF inspection).
func (b *Bus) PPU() *ppu.PPU                    { return b.ppu }
func (b *Bus) APU() *apu.APU                    { return b.apu }
func (b *Bus) Cartridge() cart.Cartridge        { return b.cart }
func (b *Bus) Interrupts() *interrupt.Controller { return b.ic }

// SetBootROM installs a 256-byte boot ROM overlay at 0x0000-0x00FF; it
// is removed the moment the game writes to 0xFF50.
func (b *Bus) SetBootROM(boot []byte) {
	if len(boot) < 0x100 {
		return
	}
	b.bootROM = make([]byte, 0x100)
	copy(b.bootROM, boot[:0x100])
	b.bootActive = true
}

// SetSerialWriter connects an io.Writer to receive bytes written to the
// serial port. Real link-cable multiplayer is out of scope; this
// one-sided stub, which completes an internal-clock transfer after the
// 8-bit shift duration, exists so test ROMs (Blargg's
// suite) that report results over serial can be driven headlessly.
func (b *Bus) SetSerialWriter(w io.Writer) { b.serialOut = w }

// SetButtons forwards a button snapshot to the joypad.
func (b *Bus) SetButtons(state joypad.Buttons) { b.pad.Set(state) }

// NextPending, WakesHalt, and Ack let the CPU drive interrupt dispatch
// through the interrupt.Controller's own priority-resolution API instead
// of re-deriving IE/IF priority logic against raw register reads.
func (b *Bus) NextPending() (bit int, ok bool) { return b.ic.NextPending() }
func (b *Bus) WakesHalt() bool                 { return b.ic.WakesHalt() }
func (b *Bus) Ack(bit int)                     { b.ic.Ack(bit) }

// Tick advances every peripheral by tcycles T-cycles, in the fixed
// sub-step order: timer, PPU, APU (clocked by the timer's DIV bit 5),
// DMA, then the serial port.
func (b *Bus) Tick(tcycles int) {
	for i := 0; i < tcycles; i++ {
		b.tmr.Tick(1)
		b.ppu.Tick(1)
		b.apu.Tick(b.tmr.DivBit5())
		b.dma.Tick(1)
		b.tickSerial()
	}
}

// tickSerial advances a pending internal-clock transfer by one T-cycle,
// completing it once the full 8-bit shift duration has elapsed.
func (b *Bus) tickSerial() {
	if !b.serialActive {
		return
	}
	b.serialRemain--
	if b.serialRemain <= 0 {
		b.completeSerialTransfer()
	}
}

func (b *Bus) Read(addr uint16) byte {
	if b.dma.Active() && !(addr >= 0xFF80 && addr <= 0xFFFE) {
		return 0xFF
	}
	return b.readUnlocked(addr)
}

func (b *Bus) readUnlocked(addr uint16) byte {
	switch {
	case addr <= 0x00FF && b.bootActive:
		return b.bootROM[addr]
	case addr <= 0x7FFF:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0xE000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF
	case addr == 0xFF00:
		return b.pad.Read()
	case addr == 0xFF01:
		return b.serialData
	case addr == 0xFF02:
		return 0x7E | b.serialCtrl
	case addr >= 0xFF04 && addr <= 0xFF07:
		return b.tmr.Read(addr)
	case addr == 0xFF0F:
		return b.ic.ReadIF()
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma.SourceBank()
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF50:
		if b.bootActive {
			return 0x00
		}
		return 0x01
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFFFF:
		return b.ic.ReadIE()
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	if b.dma.Active() && !(addr >= 0xFF80 && addr <= 0xFFFE) {
		return
	}
	switch {
	case addr <= 0x7FFF:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wram[addr-0xE000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// discarded
	case addr == 0xFF00:
		b.pad.Write(value)
	case addr == 0xFF01:
		b.serialData = value
	case addr == 0xFF02:
		b.serialCtrl = value & 0x81
		b.tryStartSerialTransfer()
	case addr >= 0xFF04 && addr <= 0xFF07:
		b.tmr.Write(addr, value)
	case addr == 0xFF0F:
		b.ic.WriteIF(value)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.dma.Start(value)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF50:
		if value != 0 {
			b.bootActive = false
		}
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFFFF:
		b.ic.WriteIE(value)
	}
}

// serialTransferTCycles is the time an 8-bit shift takes on the internal
// clock: 512 T-cycles per bit at the standard (non-double-speed) rate.
const serialTransferTCycles = 8 * 512

// tryStartSerialTransfer implements the single-player simplification:
// with no link cable attached, a transfer started with the internal
// clock (bit 0 set) runs for the same duration a real 8-bit shift would
// take and then completes on its own, handing the byte to the configured
// writer and raising the serial interrupt. External-clock transfers
// (waiting on a partner that will never arrive) are left pending,
// matching real hardware with nothing plugged in.
func (b *Bus) tryStartSerialTransfer() {
	if b.serialCtrl&0x81 != 0x81 {
		return
	}
	b.serialActive = true
	b.serialRemain = serialTransferTCycles
}

// completeSerialTransfer finishes a transfer whose shift duration has
// elapsed: it hands the byte to the configured writer, clears SC bit 7,
// and raises the Serial interrupt.
func (b *Bus) completeSerialTransfer() {
	b.serialActive = false
	if b.serialOut != nil {
		b.serialOut.Write([]byte{b.serialData})
	}
	b.serialCtrl &^= 0x80
	b.ic.Request(interrupt.BitSerial)
}
