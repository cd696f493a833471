package cart

// flash emulates the NOR flash save chips. Commands arrive as magic write
// sequences to 0x5555/0x2AAA; the 128K part adds a bank-switch command
// because only 64K is visible at a time.
type flash struct {
	mem  []byte
	bank uint32

	seq     int  // 0 = idle, 1 = got 0xAA, 2 = got 0x55
	idMode  bool // chip identification active
	erase   bool // erase command armed
	program bool // next write stores a byte
	banksel bool // next write to 0 selects the bank
}

func newFlash(size int) *flash {
	f := &flash{mem: make([]byte, size)}
	for i := range f.mem {
		f.mem[i] = 0xFF
	}
	return f
}

func (f *flash) chipID() [2]byte {
	if len(f.mem) > 64*1024 {
		return [2]byte{0xC2, 0x09} // Macronix 128K
	}
	return [2]byte{0xBF, 0xD4} // SST 64K
}

func (f *flash) Read(off uint32) byte {
	off &= 0xFFFF
	if f.idMode && off < 2 {
		return f.chipID()[off]
	}
	return f.mem[f.bank+off]
}

func (f *flash) Write(off uint32, v byte) {
	off &= 0xFFFF
	if f.program {
		f.mem[f.bank+off] &= v // flash can only clear bits until erased
		f.program = false
		return
	}
	if f.banksel && off == 0 {
		f.bank = uint32(v&1) * 64 * 1024
		if f.bank >= uint32(len(f.mem)) {
			f.bank = 0
		}
		f.banksel = false
		return
	}

	switch {
	case f.seq == 0 && off == 0x5555 && v == 0xAA:
		f.seq = 1
	case f.seq == 1 && off == 0x2AAA && v == 0x55:
		f.seq = 2
	case f.seq == 2:
		f.seq = 0
		f.command(off, v)
	default:
		f.seq = 0
	}
}

func (f *flash) command(off uint32, v byte) {
	if f.erase {
		f.erase = false
		switch {
		case off == 0x5555 && v == 0x10: // chip erase
			for i := range f.mem {
				f.mem[i] = 0xFF
			}
		case v == 0x30: // 4K sector erase
			base := f.bank + off&0xF000
			for i := uint32(0); i < 0x1000; i++ {
				f.mem[base+i] = 0xFF
			}
		}
		return
	}
	if off != 0x5555 {
		return
	}
	switch v {
	case 0x90:
		f.idMode = true
	case 0xF0:
		f.idMode = false
	case 0x80:
		f.erase = true
	case 0xA0:
		f.program = true
	case 0xB0:
		if len(f.mem) > 64*1024 {
			f.banksel = true
		}
	}
}

func (f *flash) Data() []byte {
	out := make([]byte, len(f.mem))
	copy(out, f.mem)
	return out
}

func (f *flash) LoadData(data []byte) { copy(f.mem, data) }
