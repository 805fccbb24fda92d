package cart

// Cartridge is the interface the bus uses for ROM/RAM banking. Addresses
// are CPU addresses; implementations never panic on an out-of-range
// address — they follow the hardware-faithful policy of spec §7 and
// return 0xFF / ignore the write.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000-0x7FFF) and external RAM
	// (0xA000-0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000-0x7FFF) and external RAM
	// writes (0xA000-0xBFFF).
	Write(addr uint16, value byte)
}

// BatteryBacked is implemented by cartridges that carry external RAM worth
// persisting between sessions.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// New picks an implementation based on the ROM header. It returns the
// parse error from ParseHeader unchanged (ErrInvalidHeader or
// ErrUnsupportedMapper) so the host can surface it, per spec §7: load-time
// failures are the only cartridge errors that escape the core.
func New(rom []byte) (Cartridge, *Header, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, h, err
	}
	switch h.MapperKind {
	case MapperROMOnly:
		return NewROMOnly(rom), h, nil
	case MapperMBC1:
		return NewMBC1(rom, h.ROMBanks, h.RAMSizeBytes), h, nil
	default:
		return nil, h, &ErrUnsupportedMapper{CartType: h.CartType}
	}
}
