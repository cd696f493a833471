package cart

import "bytes"

// BackupKind identifies the save hardware a cartridge carries.
type BackupKind int

const (
	BackupNone BackupKind = iota
	BackupSRAM
	BackupFlash64K
	BackupFlash128K
	BackupEEPROM
)

func (k BackupKind) String() string {
	switch k {
	case BackupSRAM:
		return "SRAM 32K"
	case BackupFlash64K:
		return "Flash 64K"
	case BackupFlash128K:
		return "Flash 128K"
	case BackupEEPROM:
		return "EEPROM"
	default:
		return "none"
	}
}

// Backup is the interface the bus needs for the save-data region.
// Implementations are byte-addressed; EEPROM serializes through bit 0.
type Backup interface {
	Read(off uint32) byte
	Write(off uint32, v byte)
	// Data/LoadData serialize the raw save contents for .sav files.
	Data() []byte
	LoadData(data []byte)
}

// backup ID strings commercial ROMs embed on 4-byte boundaries
var backupIDs = []struct {
	id   string
	kind BackupKind
}{
	{"EEPROM_V", BackupEEPROM},
	{"SRAM_V", BackupSRAM},
	{"FLASH1M_V", BackupFlash128K},
	{"FLASH512_V", BackupFlash64K},
	{"FLASH_V", BackupFlash64K},
}

// DetectBackup scans the ROM for the library version strings the official
// save drivers embed. Returns BackupNone when no marker is found.
func DetectBackup(rom []byte) BackupKind {
	for _, c := range backupIDs {
		pat := []byte(c.id)
		for off := 0; off+len(pat) <= len(rom); off += 4 {
			if bytes.Equal(rom[off:off+len(pat)], pat) {
				return c.kind
			}
		}
	}
	return BackupNone
}

// NewBackup builds the device for a detected kind. BackupNone yields nil.
func NewBackup(kind BackupKind) Backup {
	switch kind {
	case BackupSRAM:
		return newSRAM()
	case BackupFlash64K:
		return newFlash(64 * 1024)
	case BackupFlash128K:
		return newFlash(128 * 1024)
	case BackupEEPROM:
		return newEEPROM()
	default:
		return nil
	}
}

const sramSize = 32 * 1024

// sram is plain battery-backed RAM, 8-bit bus only.
type sram struct {
	mem [sramSize]byte
}

func newSRAM() *sram {
	s := &sram{}
	for i := range s.mem {
		s.mem[i] = 0xFF
	}
	return s
}

func (s *sram) Read(off uint32) byte     { return s.mem[off%sramSize] }
func (s *sram) Write(off uint32, v byte) { s.mem[off%sramSize] = v }

func (s *sram) Data() []byte {
	out := make([]byte, sramSize)
	copy(out, s.mem[:])
	return out
}

func (s *sram) LoadData(data []byte) { copy(s.mem[:], data) }
