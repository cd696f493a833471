package cart

// EEPROM emulates the serial save chip. The CPU talks to it over bit 0 of
// 16-bit accesses to the top of the cartridge space, normally via DMA:
// a request is 2 mode bits, an address, and for writes 64 data bits plus a
// stop bit. Address width (6 bits for the 512-byte part, 14 bits for 8K)
// is fixed by the first transfer length, see SizeHint.
type EEPROM struct {
	mem      []byte
	addrBits int

	state   eepromState
	bits    uint64
	nbits   int
	addr    uint32
	readBuf uint64
	readN   int
}

type eepromState int

const (
	eepromIdle eepromState = iota
	eepromMode
	eepromAddrRead
	eepromAddrWrite
	eepromData
	eepromStop
)

func newEEPROM() *EEPROM {
	e := &EEPROM{mem: make([]byte, 8*1024), addrBits: 14}
	for i := range e.mem {
		e.mem[i] = 0xFF
	}
	return e
}

// SizeHint fixes the address width from a DMA transfer length: 9 or 73
// units means the 512-byte part, 17 or 81 the 8K part. The DMA engine
// calls this before streaming a request.
func (e *EEPROM) SizeHint(units int) {
	switch units {
	case 9, 73:
		e.addrBits = 6
	case 17, 81:
		e.addrBits = 14
	}
}

func (e *EEPROM) Write(_ uint32, v byte) {
	bit := uint64(v & 1)
	switch e.state {
	case eepromIdle:
		if bit == 1 {
			e.state = eepromMode
		}
	case eepromMode:
		e.bits, e.nbits = 0, 0
		if bit == 1 {
			e.state = eepromAddrRead
		} else {
			e.state = eepromAddrWrite
		}
	case eepromAddrRead, eepromAddrWrite:
		e.bits = e.bits<<1 | bit
		e.nbits++
		if e.nbits == e.addrBits {
			e.addr = uint32(e.bits) * 8 % uint32(len(e.mem))
			if e.state == eepromAddrRead {
				e.latchRead()
				e.state = eepromStop
			} else {
				e.bits, e.nbits = 0, 0
				e.state = eepromData
			}
		}
	case eepromData:
		e.bits = e.bits<<1 | bit
		e.nbits++
		if e.nbits == 64 {
			for i := 0; i < 8; i++ {
				e.mem[e.addr+uint32(i)] = byte(e.bits >> (56 - 8*i))
			}
			e.state = eepromStop
		}
	case eepromStop:
		e.state = eepromIdle
	}
}

func (e *EEPROM) latchRead() {
	e.readBuf = 0
	for i := 0; i < 8; i++ {
		e.readBuf = e.readBuf<<8 | uint64(e.mem[e.addr+uint32(i)])
	}
	e.readN = 68 // 4 dummy bits, then 64 data bits MSB first
}

func (e *EEPROM) Read(_ uint32) byte {
	if e.readN == 0 {
		return 1 // ready flag
	}
	e.readN--
	if e.readN >= 64 {
		return 0
	}
	return byte(e.readBuf>>uint(e.readN)) & 1
}

func (e *EEPROM) Data() []byte {
	out := make([]byte, len(e.mem))
	copy(out, e.mem)
	return out
}

func (e *EEPROM) LoadData(data []byte) { copy(e.mem, data) }
