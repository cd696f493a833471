package cart

import (
	"errors"
	"strings"
)

const headerSize = 0xC0

type Header struct {
	Title          string // 0xA0–0xAB (trimmed ASCII)
	GameCode       string // 0xAC–0xAF
	MakerCode      string // 0xB0–0xB1
	FixedByte      byte   // 0xB2, must be 0x96
	UnitCode       byte   // 0xB3
	DeviceType     byte   // 0xB4
	SoftwareVer    byte   // 0xBC
	HeaderChecksum byte   // 0xBD

	// Decoded helpers (for logs)
	Backup    BackupKind
	BackupStr string
}

func ParseHeader(rom []byte) (*Header, error) {
	if len(rom) < headerSize {
		return nil, errors.New("ROM too small to contain header")
	}

	h := &Header{
		Title:          strings.TrimRight(string(rom[0xA0:0xAC]), "\x00"),
		GameCode:       strings.TrimRight(string(rom[0xAC:0xB0]), "\x00"),
		MakerCode:      strings.TrimRight(string(rom[0xB0:0xB2]), "\x00"),
		FixedByte:      rom[0xB2],
		UnitCode:       rom[0xB3],
		DeviceType:     rom[0xB4],
		SoftwareVer:    rom[0xBC],
		HeaderChecksum: rom[0xBD],
	}

	h.Backup = DetectBackup(rom)
	h.BackupStr = h.Backup.String()

	return h, nil
}

// HeaderChecksumOK verifies the complement checksum over 0xA0–0xBC. Some
// homebrew ships without one, so callers treat a mismatch as a warning only.
func HeaderChecksumOK(rom []byte) bool {
	if len(rom) < headerSize {
		return false
	}
	var sum byte
	for addr := 0xA0; addr <= 0xBC; addr++ {
		sum += rom[addr]
	}
	return byte(-(0x19 + sum)) == rom[0xBD]
}
