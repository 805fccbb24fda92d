// Package ppu implements the DMG picture processing unit: the
// OAMSearch/PixelTransfer/HBlank/VBlank scanline state machine, its
// VRAM/OAM memory and registers, and the background/window/sprite pixel
// pipeline that composes a 160x144 frame of 2-bit shades.
package ppu

import "github.com/dmgcore/gbcore/internal/interrupt"

const (
	ScreenWidth  = 160
	ScreenHeight = 144

	dotsPerLine   = 456
	vblankStartY  = 144
	linesPerFrame = 154

	oamSearchDots   = 80
	minTransferDots = 172
	maxTransferDots = 289
)

// Mode is the PPU's current scanline mode, mirrored in STAT bits 0-1.
type Mode byte

const (
	ModeHBlank   Mode = 0
	ModeVBlank   Mode = 1
	ModeOAM      Mode = 2
	ModeTransfer Mode = 3
)

// PPU owns VRAM, OAM, the LCDC/STAT/scroll/palette registers, and the
// per-frame pixel buffer.
type PPU struct {
	ic *interrupt.Controller

	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F

	lcdc, stat, scy, scx, ly, lyc, bgp, obp0, obp1, wy, wx byte

	dot            int
	statLine       bool // previous STAT interrupt-source OR, for rising-edge detection
	winLineCounter byte
	frameDone      bool

	fifo        fifo
	lineSprites []spriteEntry

	frame [ScreenHeight][ScreenWidth]byte // 2-bit shade, 0 (lightest) .. 3 (darkest)
}

func New(ic *interrupt.Controller) *PPU {
	return &PPU{ic: ic}
}

// Mode returns the PPU's current scanline mode.
func (p *PPU) Mode() Mode { return Mode(p.stat & 0x03) }

// LY returns the current scanline number.
func (p *PPU) LY() byte { return p.ly }

// Frame returns the most recently completed frame's pixel buffer. Each
// entry is a 2-bit shade index already resolved through BGP/OBP0/OBP1;
// the host maps shades 0-3 to its own four-color ramp.
func (p *PPU) Frame() *[ScreenHeight][ScreenWidth]byte { return &p.frame }

// FrameReady reports whether a VBlank boundary was crossed since the
// last call, and clears the flag.
func (p *PPU) FrameReady() bool {
	r := p.frameDone
	p.frameDone = false
	return r
}

// CPURead serves CPU reads of VRAM, OAM, and the LCD registers.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.Mode() == ModeTransfer {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if m := p.Mode(); m == ModeOAM || m == ModeTransfer {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite serves CPU writes to VRAM, OAM, and the LCD registers.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.Mode() == ModeTransfer {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if m := p.Mode(); m == ModeOAM || m == ModeTransfer {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		p.writeLCDC(value)
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		// Writes reset the counter, matching real hardware.
		p.ly = 0
		p.dot = 0
		p.winLineCounter = 0
	case addr == 0xFF45:
		p.lyc = value
		p.checkSTATLine()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

func (p *PPU) writeLCDC(value byte) {
	prevOn := p.lcdc&0x80 != 0
	p.lcdc = value
	nowOn := p.lcdc&0x80 != 0
	if prevOn && !nowOn {
		p.ly = 0
		p.dot = 0
		p.setMode(ModeHBlank)
	} else if !prevOn && nowOn {
		p.ly = 0
		p.dot = 0
		p.winLineCounter = 0
		p.setMode(ModeOAM)
		p.beginOAMSearch()
	}
}

// WriteOAMRaw is used by the DMA controller, which is not subject to the
// CPU's mode-based OAM access lock.
func (p *PPU) WriteOAMRaw(index int, value byte) {
	if index >= 0 && index < len(p.oam) {
		p.oam[index] = value
	}
}

// readVRAM is the fetcher's unrestricted view of VRAM.
func (p *PPU) readVRAM(addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	return p.vram[addr-0x8000]
}

// Tick advances the PPU by tcycles T-cycles (1 T-cycle = 1 dot).
func (p *PPU) Tick(tcycles int) {
	if p.lcdc&0x80 == 0 {
		return
	}
	for i := 0; i < tcycles; i++ {
		p.tickOneDot()
	}
}

func (p *PPU) tickOneDot() {
	p.dot++
	if p.dot < dotsPerLine {
		if p.ly < vblankStartY {
			switch {
			case p.dot == oamSearchDots:
				p.setMode(ModeTransfer)
				p.renderLine()
			case p.dot == oamSearchDots+p.transferDots():
				p.setMode(ModeHBlank)
			}
		}
		return
	}

	p.dot = 0
	p.ly++
	if p.ly == vblankStartY {
		p.setMode(ModeVBlank)
		p.ic.Request(interrupt.BitVBlank)
		p.frameDone = true
	} else if p.ly >= linesPerFrame {
		p.ly = 0
		p.winLineCounter = 0
	}

	if p.ly < vblankStartY {
		p.setMode(ModeOAM)
		p.beginOAMSearch()
		p.advanceWindowLineCounter()
	}
	p.checkSTATLine()
}

func (p *PPU) setMode(m Mode) {
	p.stat = (p.stat &^ 0x03) | byte(m)
	p.checkSTATLine()
}

// statSourceActive is the OR of enabled STAT sources (mode 0/1/2 and
// LY==LYC); the LCDSTAT interrupt fires only on this signal's rising
// edge.
func (p *PPU) statSourceActive() bool {
	if p.ly == p.lyc && p.stat&(1<<6) != 0 {
		return true
	}
	switch p.Mode() {
	case ModeHBlank:
		return p.stat&(1<<3) != 0
	case ModeVBlank:
		return p.stat&(1<<4) != 0
	case ModeOAM:
		return p.stat&(1<<5) != 0
	}
	return false
}

func (p *PPU) checkSTATLine() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
	} else {
		p.stat &^= 1 << 2
	}
	active := p.statSourceActive()
	if active && !p.statLine {
		p.ic.Request(interrupt.BitLCDSTAT)
	}
	p.statLine = active
}

func (p *PPU) advanceWindowLineCounter() {
	visible := p.lcdc&0x20 != 0 && p.lcdc&0x01 != 0 && p.ly >= p.wy && p.wx <= 166
	if !visible {
		return
	}
	if p.ly == p.wy {
		p.winLineCounter = 0
	} else {
		p.winLineCounter++
	}
}

// transferDots returns this line's mode-3 duration: a fixed base plus the
// SCX fine-scroll discard and a penalty per sprite found during OAM
// search, the two documented sources of PixelTransfer length variance.
func (p *PPU) transferDots() int {
	d := minTransferDots + int(p.scx&7) + 6*len(p.lineSprites)
	if d > maxTransferDots {
		d = maxTransferDots
	}
	return d
}
