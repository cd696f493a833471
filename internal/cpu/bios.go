package cpu

// High-level emulation of the BIOS calls games lean on most, used when no
// BIOS image is loaded. With an image present SWI vectors into it instead.

func (c *CPU) hleSyscall(num uint32) {
	switch num {
	case 0x01: // RegisterRamReset
		c.ramReset(c.r[0])
	case 0x02: // Halt
		c.halted = true
	case 0x04, 0x05: // IntrWait / VBlankIntrWait
		// approximated as a plain halt; the wake condition is the same
		c.halted = true
	case 0x06: // Div
		c.div()
	case 0x07: // DivArm, operands swapped
		c.r[0], c.r[1] = c.r[1], c.r[0]
		c.div()
	case 0x0B: // CpuSet
		c.cpuSet(false)
	case 0x0C: // CpuFastSet
		c.cpuSet(true)
	default:
		// unimplemented calls return without effect
	}
}

func (c *CPU) ramReset(flags uint32) {
	if flags&1 != 0 { // clear EWRAM
		for a := uint32(0x02000000); a < 0x02040000; a += 4 {
			c.bus.Write32(a, 0)
		}
	}
	if flags&2 != 0 { // clear IWRAM below the stacks
		for a := uint32(0x03000000); a < 0x03007E00; a += 4 {
			c.bus.Write32(a, 0)
		}
	}
}

func (c *CPU) div() {
	num := int32(c.r[0])
	den := int32(c.r[1])
	if den == 0 {
		// hardware BIOS quirk: returns +/-1 with remainder = numerator
		q := int32(1)
		if num < 0 {
			q = -1
		}
		c.r[0] = uint32(q)
		c.r[1] = uint32(num)
		c.r[3] = 1
		return
	}
	q := num / den
	c.r[0] = uint32(q)
	c.r[1] = uint32(num % den)
	if q < 0 {
		q = -q
	}
	c.r[3] = uint32(q)
}

func (c *CPU) cpuSet(fast bool) {
	src := c.r[0]
	dst := c.r[1]
	ctl := c.r[2]
	count := ctl & 0x1FFFFF
	fill := ctl&(1<<24) != 0
	word := fast || ctl&(1<<26) != 0

	if word {
		var v uint32
		if fill {
			v = c.bus.Read32(src)
		}
		for i := uint32(0); i < count; i++ {
			if !fill {
				v = c.bus.Read32(src)
				src += 4
			}
			c.bus.Write32(dst, v)
			dst += 4
		}
		return
	}
	var v uint16
	if fill {
		v = c.bus.Read16(src)
	}
	for i := uint32(0); i < count; i++ {
		if !fill {
			v = c.bus.Read16(src)
			src += 2
		}
		c.bus.Write16(dst, v)
		dst += 2
	}
}
