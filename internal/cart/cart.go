package cart

import (
	"fmt"
	"os"
)

const romLimit = 32 * 1024 * 1024

// Cartridge is a loaded game pak: the ROM image plus whatever save device
// its driver strings advertise.
type Cartridge struct {
	ROM    []byte
	Header *Header
	Backup Backup
}

// Load parses the ROM image and attaches the detected backup device.
func Load(rom []byte) (*Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, fmt.Errorf("cart: %w", err)
	}
	if len(rom) > romLimit {
		return nil, fmt.Errorf("cart: ROM is %d bytes, limit is %d", len(rom), romLimit)
	}
	return &Cartridge{ROM: rom, Header: h, Backup: NewBackup(h.Backup)}, nil
}

// LoadFile reads and loads a ROM image from disk.
func LoadFile(path string) (*Cartridge, error) {
	rom, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cart: %w", err)
	}
	return Load(rom)
}

// ReadROM returns the byte at the given pak offset. Reads past the end of
// the image return the address-derived pattern the unconnected bus yields
// on hardware.
func (c *Cartridge) ReadROM(off uint32) byte {
	if int(off) < len(c.ROM) {
		return c.ROM[off]
	}
	half := uint16(off / 2)
	if off&1 != 0 {
		return byte(half >> 8)
	}
	return byte(half)
}

// LoadSave restores backup contents from a .sav file. A missing file is
// not an error.
func (c *Cartridge) LoadSave(path string) error {
	if c.Backup == nil || path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cart: %w", err)
	}
	c.Backup.LoadData(data)
	return nil
}

// WriteSave persists backup contents to a .sav file.
func (c *Cartridge) WriteSave(path string) error {
	if c.Backup == nil || path == "" {
		return nil
	}
	if err := os.WriteFile(path, c.Backup.Data(), 0o644); err != nil {
		return fmt.Errorf("cart: %w", err)
	}
	return nil
}
