package cart

import "testing"

func TestMBC1_ROMBanking(t *testing.T) {
	// 128KiB ROM -> 8 banks of 0x4000; tag each bank's first byte.
	rom := make([]byte, 128*1024)
	for bank := 0; bank < 8; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC1(rom, 8, 0)

	if got := m.Read(0x0000); got != 0x00 {
		t.Fatalf("bank0 read got %02X want 00", got)
	}
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("switchable bank defaults to 1, got %02X", got)
	}

	m.Write(0x2000, 0x03)
	if got := m.Read(0x4000); got != 0x03 {
		t.Fatalf("bank3 read got %02X want 03", got)
	}

	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap failed: got %02X", got)
	}
}

func TestMBC1_ROMBanking_MasksBeyondCartSize(t *testing.T) {
	// Only 4 real banks (64KiB); selecting bank 6 should mirror to bank 2
	// (6 & (4-1) == 2) instead of reading out of bounds.
	rom := make([]byte, 64*1024)
	for bank := 0; bank < 4; bank++ {
		rom[bank*0x4000] = byte(0x10 + bank)
	}
	m := NewMBC1(rom, 4, 0)

	m.Write(0x2000, 0x06)
	if got := m.Read(0x4000); got != 0x12 {
		t.Fatalf("masked bank6 read got %02X want %02X (bank2)", got, 0x12)
	}
}

func TestMBC1_RAMGating(t *testing.T) {
	rom := make([]byte, 32*1024)
	m := NewMBC1(rom, 2, 8*1024)

	// RAM disabled by default: reads as 0xFF, writes ignored.
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("disabled RAM read got %02X want FF", got)
	}
	m.Write(0xA000, 0x42)
	m.Write(0x0000, 0x0A) // enable
	if got := m.Read(0xA000); got == 0x42 {
		t.Fatalf("write while disabled should not have taken effect")
	}

	m.Write(0xA000, 0x42)
	if got := m.Read(0xA000); got != 0x42 {
		t.Fatalf("RAM RW after enable got %02X want 42", got)
	}

	m.Write(0x0000, 0x00) // disable again
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("disabled RAM read got %02X want FF", got)
	}
}

func TestMBC1_RAMBanking_Mode1(t *testing.T) {
	rom := make([]byte, 128*1024)
	m := NewMBC1(rom, 8, 32*1024)

	m.Write(0x0000, 0x0A) // enable RAM
	m.Write(0x6000, 0x01) // mode 1: RAM banking
	m.Write(0x4000, 0x02) // select RAM bank 2

	m.Write(0xA000, 0x77)
	if got := m.Read(0xA000); got != 0x77 {
		t.Fatalf("RAM bank2 RW failed: got %02X", got)
	}

	// A different RAM bank must not see bank 2's data.
	m.Write(0x4000, 0x01)
	if got := m.Read(0xA000); got == 0x77 {
		t.Fatalf("RAM bank1 unexpectedly aliases bank2's data")
	}
}

func TestMBC1_SaveLoadRAM(t *testing.T) {
	rom := make([]byte, 32*1024)
	m := NewMBC1(rom, 2, 8*1024)
	m.Write(0x0000, 0x0A)
	m.Write(0xA000, 0x99)

	saved := m.SaveRAM()
	if len(saved) != 8*1024 || saved[0] != 0x99 {
		t.Fatalf("SaveRAM unexpected contents: len=%d first=%02X", len(saved), saved[0])
	}

	m2 := NewMBC1(rom, 2, 8*1024)
	m2.Write(0x0000, 0x0A)
	m2.LoadRAM(saved)
	if got := m2.Read(0xA000); got != 0x99 {
		t.Fatalf("LoadRAM did not restore contents: got %02X", got)
	}
}

func TestMBC1_RAMDisabled_NoRAM(t *testing.T) {
	rom := make([]byte, 32*1024)
	m := NewMBC1(rom, 2, 0) // cart type with no external RAM
	m.Write(0x0000, 0x0A)
	m.Write(0xA000, 0x55)
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("cartridge with no RAM should always read FF, got %02X", got)
	}
	if saved := m.SaveRAM(); saved != nil {
		t.Fatalf("SaveRAM on RAM-less cart should be nil, got %v", saved)
	}
}
