package ppu

import "sort"

// spriteEntry is one of the up to 10 OAM entries selected for a scanline
// during OAMSearch.
type spriteEntry struct {
	Y, X, Tile, Attr byte
	OAMIndex         int
}

const maxSpritesPerLine = 10

// beginOAMSearch scans all 40 OAM entries and selects up to 10 whose Y
// range contains the upcoming line, sorted by X (ties broken by OAM
// index) so sprite composition can apply draw priority by simple
// first-write-wins.
func (p *PPU) beginOAMSearch() {
	height := 8
	if p.lcdc&0x04 != 0 {
		height = 16
	}
	ly := int(p.ly)

	var found []spriteEntry
	for i := 0; i < 40 && len(found) < maxSpritesPerLine; i++ {
		base := i * 4
		y := int(p.oam[base]) - 16
		if ly < y || ly >= y+height {
			continue
		}
		found = append(found, spriteEntry{
			Y:        p.oam[base],
			X:        p.oam[base+1],
			Tile:     p.oam[base+2],
			Attr:     p.oam[base+3],
			OAMIndex: i,
		})
	}
	sort.SliceStable(found, func(a, b int) bool {
		if found[a].X != found[b].X {
			return found[a].X < found[b].X
		}
		return found[a].OAMIndex < found[b].OAMIndex
	})
	p.lineSprites = found
}

// spritePixel is the composed per-column sprite contribution for one
// scanline.
type spritePixel struct {
	colorIdx   byte // 1-3; 0 means transparent and is never stored
	palette    byte // 0 -> OBP0, 1 -> OBP1
	bgPriority bool // true: hidden behind a non-zero BG/window pixel
}

// composeSpriteLine produces, for one scanline, the sprite pixel (if
// any) that wins at each of the 160 columns. Earlier entries in sprites
// (already X/OAM-index ordered) take priority on overlap.
func composeSpriteLine(mem vramReader, sprites []spriteEntry, ly int, doubleHeight bool) [160]*spritePixel {
	var out [160]*spritePixel
	height := 8
	if doubleHeight {
		height = 16
	}

	for _, s := range sprites {
		yflip := s.Attr&0x40 != 0
		xflip := s.Attr&0x20 != 0
		palette := byte(0)
		if s.Attr&0x10 != 0 {
			palette = 1
		}
		bgPriority := s.Attr&0x80 != 0

		row := ly - (int(s.Y) - 16)
		if yflip {
			row = height - 1 - row
		}
		tile := s.Tile
		if doubleHeight {
			tile &^= 0x01
			if row >= 8 {
				tile |= 0x01
				row -= 8
			}
		}
		base := 0x8000 + uint16(tile)*16 + uint16(row)*2
		lo := mem.Read(base)
		hi := mem.Read(base + 1)

		for col := 0; col < 8; col++ {
			screenX := int(s.X) - 8 + col
			if screenX < 0 || screenX >= 160 {
				continue
			}
			if out[screenX] != nil {
				continue // an earlier (higher-priority) sprite already owns this column
			}
			bit := byte(col)
			if !xflip {
				bit = 7 - byte(col)
			}
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if ci == 0 {
				continue
			}
			out[screenX] = &spritePixel{colorIdx: ci, palette: palette, bgPriority: bgPriority}
		}
	}
	return out
}
