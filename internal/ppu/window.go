package ppu

// renderWindowScanlineUsingFetcher renders 160 window color indices for
// one scanline. Pixels before startX (WX-7, clamped to 0) are left 0;
// the window always starts at tile map column 0 and never scrolls.
func renderWindowScanlineUsingFetcher(mem vramReader, mapBase uint16, tileData8000 bool, startX int, fineY byte) [160]byte {
	var out [160]byte
	if startX >= 160 {
		return out
	}
	if startX < 0 {
		startX = 0
	}

	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(tileData8000, fineY)

	tileCol := uint16(0)
	f.Fetch(mapBase + tileCol)
	for x := startX; x < 160; x++ {
		if q.Len() == 0 {
			tileCol++
			f.Fetch(mapBase + tileCol)
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}
