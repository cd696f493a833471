package cart

import "testing"

// buildROM makes a synthetic ROM image with a valid header checksum and an
// optional backup driver marker at a 4-byte boundary.
func buildROM(title, marker string, size int) []byte {
	rom := make([]byte, size)
	copy(rom[0xA0:0xAC], title)
	copy(rom[0xAC:0xB0], "ATST")
	copy(rom[0xB0:0xB2], "01")
	rom[0xB2] = 0x96

	var sum byte
	for addr := 0xA0; addr <= 0xBC; addr++ {
		sum += rom[addr]
	}
	rom[0xBD] = byte(-(0x19 + sum))

	if marker != "" {
		copy(rom[0x100:], marker)
	}
	return rom
}

func TestParseHeader(t *testing.T) {
	rom := buildROM("TESTGAME", "SRAM_V113", 4096)
	h, err := ParseHeader(rom)
	if err != nil {
		t.Fatalf("ParseHeader error: %v", err)
	}
	if h.Title != "TESTGAME" {
		t.Fatalf("title = %q, want TESTGAME", h.Title)
	}
	if h.GameCode != "ATST" || h.FixedByte != 0x96 {
		t.Fatalf("header fields wrong: %+v", h)
	}
	if !HeaderChecksumOK(rom) {
		t.Fatalf("checksum rejected on a valid header")
	}
	if h.Backup != BackupSRAM {
		t.Fatalf("backup = %v, want SRAM", h.Backup)
	}
}

func TestDetectBackup(t *testing.T) {
	cases := []struct {
		marker string
		want   BackupKind
	}{
		{"", BackupNone},
		{"SRAM_V113", BackupSRAM},
		{"FLASH_V120", BackupFlash64K},
		{"FLASH512_V130", BackupFlash64K},
		{"FLASH1M_V102", BackupFlash128K},
		{"EEPROM_V124", BackupEEPROM},
	}
	for _, c := range cases {
		rom := buildROM("X", c.marker, 4096)
		if got := DetectBackup(rom); got != c.want {
			t.Fatalf("marker %q detected as %v, want %v", c.marker, got, c.want)
		}
	}
}

func TestReadROMOpenBus(t *testing.T) {
	c, err := Load(buildROM("X", "", 512))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	c.ROM[0x1FF] = 0xAB
	if got := c.ReadROM(0x1FF); got != 0xAB {
		t.Fatalf("in-range read = %#02x, want 0xab", got)
	}
	// out of range: byte lanes of uint16(offset/2)
	for _, off := range []uint32{0x20000, 0x12346, 0x1FFFFF2} {
		half := uint16(off / 2)
		if got := c.ReadROM(off); got != byte(half) {
			t.Fatalf("out-of-range read at %#x = %#02x, want %#02x", off, got, byte(half))
		}
		odd := off | 1
		half = uint16(odd / 2)
		if got := c.ReadROM(odd); got != byte(half>>8) {
			t.Fatalf("out-of-range odd read at %#x = %#02x, want %#02x", odd, got, byte(half>>8))
		}
	}
}

func TestSRAMRoundTrip(t *testing.T) {
	s := newSRAM()
	if s.Read(0) != 0xFF {
		t.Fatalf("fresh SRAM not erased")
	}
	s.Write(0x1234, 0x5A)
	if s.Read(0x1234) != 0x5A {
		t.Fatalf("SRAM readback failed")
	}
	if s.Read(0x1234+sramSize) != 0x5A {
		t.Fatalf("SRAM not mirrored")
	}
}

func TestFlashCommandSequence(t *testing.T) {
	f := newFlash(64 * 1024)

	cmd := func(v byte) {
		f.Write(0x5555, 0xAA)
		f.Write(0x2AAA, 0x55)
		f.Write(0x5555, v)
	}

	cmd(0x90) // enter ID mode
	if f.Read(0) != 0xBF || f.Read(1) != 0xD4 {
		t.Fatalf("chip ID = %#02x %#02x, want SST", f.Read(0), f.Read(1))
	}
	cmd(0xF0)

	cmd(0xA0) // program one byte
	f.Write(0x100, 0x3C)
	if f.Read(0x100) != 0x3C {
		t.Fatalf("programmed byte = %#02x, want 0x3c", f.Read(0x100))
	}

	cmd(0x80)
	f.Write(0x5555, 0xAA)
	f.Write(0x2AAA, 0x55)
	f.Write(0x100&0xF000, 0x30) // sector erase
	if f.Read(0x100) != 0xFF {
		t.Fatalf("sector erase did not restore 0xFF")
	}
}

func TestFlashBankSwitch(t *testing.T) {
	f := newFlash(128 * 1024)

	cmd := func(v byte) {
		f.Write(0x5555, 0xAA)
		f.Write(0x2AAA, 0x55)
		f.Write(0x5555, v)
	}

	cmd(0xA0)
	f.Write(0x10, 0x11)
	cmd(0xB0)
	f.Write(0, 1) // bank 1
	cmd(0xA0)
	f.Write(0x10, 0x22)
	if f.Read(0x10) != 0x22 {
		t.Fatalf("bank 1 readback = %#02x", f.Read(0x10))
	}
	cmd(0xB0)
	f.Write(0, 0)
	if f.Read(0x10) != 0x11 {
		t.Fatalf("bank 0 readback = %#02x", f.Read(0x10))
	}
}

func TestEEPROMReadWrite(t *testing.T) {
	e := newEEPROM()
	e.SizeHint(81) // 14-bit addresses

	sendBits := func(v uint64, n int) {
		for i := n - 1; i >= 0; i-- {
			e.Write(0, byte(v>>uint(i))&1)
		}
	}

	// write request: 10, 14-bit address 3, 64 data bits, stop
	sendBits(0b10, 2)
	sendBits(3, 14)
	sendBits(0x0123456789ABCDEF, 64)
	sendBits(0, 1)

	// read request: 11, address 3, stop
	sendBits(0b11, 2)
	sendBits(3, 14)
	sendBits(0, 1)

	var got uint64
	for i := 0; i < 4; i++ {
		e.Read(0) // dummy bits
	}
	for i := 0; i < 64; i++ {
		got = got<<1 | uint64(e.Read(0)&1)
	}
	if got != 0x0123456789ABCDEF {
		t.Fatalf("EEPROM readback = %#016x", got)
	}
}
