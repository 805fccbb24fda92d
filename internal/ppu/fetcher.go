package ppu

// vramReader abstracts the fetcher's view of tile data so it can be
// exercised against a synthetic map in tests as well as the PPU's own
// VRAM.
type vramReader interface {
	Read(addr uint16) byte
}

// fifo is a ring buffer of 2-bit color indices, sized for a couple of
// tiles' worth of pixels.
type fifo struct {
	buf  [32]byte
	head int
	tail int
	size int
}

func (q *fifo) Clear()   { q.head, q.tail, q.size = 0, 0, 0 }
func (q *fifo) Len() int { return q.size }

func (q *fifo) Push(ci byte) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[q.tail] = ci & 0x03
	q.tail = (q.tail + 1) % len(q.buf)
	q.size++
	return true
}

func (q *fifo) Pop() (byte, bool) {
	if q.size == 0 {
		return 0, false
	}
	v := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v, true
}

// bgFetcher runs the tile fetch steps (get-tile, get-low, get-high, push)
// for one 8-pixel tile row, shared by the background and window
// renderers.
type bgFetcher struct {
	mem          vramReader
	fifo         *fifo
	tileData8000 bool
	fineY        byte
}

func newBGFetcher(mem vramReader, f *fifo) *bgFetcher { return &bgFetcher{mem: mem, fifo: f} }

// Configure sets up later Fetch calls: tileData8000 picks the addressing
// mode, and fineY is the row within the tile (0-7).
func (fch *bgFetcher) Configure(tileData8000 bool, fineY byte) {
	fch.tileData8000 = tileData8000
	fch.fineY = fineY & 7
}

// Fetch reads a tile index at tileIndexAddr, the two bitplane bytes for
// the configured row, and pushes the resulting 8 color indices.
func (fch *bgFetcher) Fetch(tileIndexAddr uint16) {
	tileNum := fch.mem.Read(tileIndexAddr)
	var base uint16
	if fch.tileData8000 {
		base = 0x8000 + uint16(tileNum)*16 + uint16(fch.fineY)*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fch.fineY)*2
	}
	lo := fch.mem.Read(base)
	hi := fch.mem.Read(base + 1)
	for px := 0; px < 8; px++ {
		bit := 7 - byte(px)
		ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
		_ = fch.fifo.Push(ci)
	}
}
