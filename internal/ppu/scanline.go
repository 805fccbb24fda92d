package ppu

// renderBGScanlineUsingFetcher renders 160 background color indices for
// one scanline, discarding the first scx&7 pixels of the leftmost tile
// per spec and wrapping the tile map at 32 columns.
func renderBGScanlineUsingFetcher(mem vramReader, mapBase uint16, tileData8000 bool, scx, scy, ly byte) [160]byte {
	var out [160]byte

	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapRow := (bgY >> 3) & 31

	tileCol := uint16(scx>>3) & 31
	discard := int(scx & 7)

	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(tileData8000, fineY)
	f.Fetch(mapBase + mapRow*32 + tileCol)
	for i := 0; i < discard; i++ {
		_, _ = q.Pop()
	}

	for x := 0; x < 160; x++ {
		if q.Len() == 0 {
			tileCol = (tileCol + 1) & 31
			f.Fetch(mapBase + mapRow*32 + tileCol)
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}
