package cpu

// Thumb instruction set, dispatched on the top bits.

func (c *CPU) execThumb(op uint16) {
	switch op >> 12 {
	case 0x0, 0x1:
		if op>>11&3 == 3 {
			c.thumbAddSub(op)
		} else {
			c.thumbMoveShifted(op)
		}
	case 0x2, 0x3:
		c.thumbImmOp(op)
	case 0x4:
		switch {
		case op>>10&3 == 0:
			c.thumbALU(op)
		case op>>10&3 == 1:
			c.thumbHiReg(op)
		default:
			c.thumbPCLoad(op)
		}
	case 0x5:
		if op&(1<<9) == 0 {
			c.thumbLoadStoreReg(op)
		} else {
			c.thumbLoadStoreSigned(op)
		}
	case 0x6, 0x7:
		c.thumbLoadStoreImm(op)
	case 0x8:
		c.thumbLoadStoreHalf(op)
	case 0x9:
		c.thumbSPLoad(op)
	case 0xA:
		c.thumbLoadAddress(op)
	case 0xB:
		switch {
		case op>>8&0xF == 0:
			c.thumbAdjustSP(op)
		case op>>9&3 == 2:
			c.thumbPushPop(op)
		default:
			c.enterUndefined()
		}
	case 0xC:
		c.thumbMultiple(op)
	case 0xD:
		if op>>8&0xF == 0xF {
			c.enterSWI(uint32(op & 0xFF))
		} else {
			c.thumbCondBranch(op)
		}
	case 0xE:
		if op&(1<<11) != 0 {
			c.enterUndefined() // BLX prefix, not ARMv4T
			return
		}
		off := int32(op&0x7FF) << 21 >> 20
		c.branchTo(c.reg(15) + uint32(off))
	default:
		c.thumbLongBranch(op)
	}
}

func (c *CPU) thumbMoveShifted(op uint16) {
	typ := uint32(op >> 11 & 3)
	imm := uint32(op >> 6 & 0x1F)
	rs := int(op >> 3 & 7)
	rd := int(op & 7)
	res, carry := c.shift(c.reg(rs), typ, imm, false)
	c.r[rd] = res
	c.setNZ(res)
	c.setC(carry)
}

func (c *CPU) thumbAddSub(op uint16) {
	rd := int(op & 7)
	a := c.reg(int(op >> 3 & 7))
	var b uint32
	if op&(1<<10) != 0 {
		b = uint32(op >> 6 & 7)
	} else {
		b = c.reg(int(op >> 6 & 7))
	}
	if op&(1<<9) != 0 {
		c.r[rd] = c.subWithFlags(a, b, 1)
	} else {
		c.r[rd] = c.addWithFlags(a, b, 0)
	}
}

func (c *CPU) thumbImmOp(op uint16) {
	rd := int(op >> 8 & 7)
	imm := uint32(op & 0xFF)
	switch op >> 11 & 3 {
	case 0: // MOV
		c.r[rd] = imm
		c.setNZ(imm)
	case 1: // CMP
		c.subWithFlags(c.reg(rd), imm, 1)
	case 2: // ADD
		c.r[rd] = c.addWithFlags(c.reg(rd), imm, 0)
	default: // SUB
		c.r[rd] = c.subWithFlags(c.reg(rd), imm, 1)
	}
}

func (c *CPU) thumbALU(op uint16) {
	rd := int(op & 7)
	rs := int(op >> 3 & 7)
	a, b := c.reg(rd), c.reg(rs)

	switch op >> 6 & 0xF {
	case 0x0: // AND
		c.r[rd] = a & b
		c.setNZ(c.r[rd])
	case 0x1: // EOR
		c.r[rd] = a ^ b
		c.setNZ(c.r[rd])
	case 0x2: // LSL
		res, carry := c.shiftReg(a, 0, b&0xFF)
		c.r[rd] = res
		c.setNZ(res)
		c.setC(carry)
		c.cyc++
	case 0x3: // LSR
		res, carry := c.shiftReg(a, 1, b&0xFF)
		c.r[rd] = res
		c.setNZ(res)
		c.setC(carry)
		c.cyc++
	case 0x4: // ASR
		res, carry := c.shiftReg(a, 2, b&0xFF)
		c.r[rd] = res
		c.setNZ(res)
		c.setC(carry)
		c.cyc++
	case 0x5: // ADC
		c.r[rd] = c.addWithFlags(a, b, c.carry())
	case 0x6: // SBC
		c.r[rd] = c.subWithFlags(a, b, c.carry())
	case 0x7: // ROR
		res, carry := c.shiftReg(a, 3, b&0xFF)
		c.r[rd] = res
		c.setNZ(res)
		c.setC(carry)
		c.cyc++
	case 0x8: // TST
		c.setNZ(a & b)
	case 0x9: // NEG
		c.r[rd] = c.subWithFlags(0, b, 1)
	case 0xA: // CMP
		c.subWithFlags(a, b, 1)
	case 0xB: // CMN
		c.addWithFlags(a, b, 0)
	case 0xC: // ORR
		c.r[rd] = a | b
		c.setNZ(c.r[rd])
	case 0xD: // MUL
		c.r[rd] = a * b
		c.setNZ(c.r[rd])
		c.cyc += mulCycles(a)
	case 0xE: // BIC
		c.r[rd] = a &^ b
		c.setNZ(c.r[rd])
	default: // MVN
		c.r[rd] = ^b
		c.setNZ(c.r[rd])
	}
}

func (c *CPU) thumbHiReg(op uint16) {
	rd := int(op&7) | int(op>>4&8)
	rs := int(op>>3&7) | int(op>>3&8)
	switch op >> 8 & 3 {
	case 0: // ADD
		c.setReg(rd, c.reg(rd)+c.reg(rs))
	case 1: // CMP
		c.subWithFlags(c.reg(rd), c.reg(rs), 1)
	case 2: // MOV
		c.setReg(rd, c.reg(rs))
	default: // BX
		target := c.reg(rs)
		if target&1 == 0 {
			c.cpsr &^= FlagT
		}
		c.branchTo(target)
	}
}

func (c *CPU) thumbPCLoad(op uint16) {
	rd := int(op >> 8 & 7)
	addr := c.reg(15)&^3 + uint32(op&0xFF)*4
	c.r[rd] = c.read32(addr)
	c.cyc++
}

func (c *CPU) thumbLoadStoreReg(op uint16) {
	addr := c.reg(int(op>>3&7)) + c.reg(int(op>>6&7))
	rd := int(op & 7)
	switch op >> 10 & 3 {
	case 0: // STR
		c.write32(addr&^3, c.reg(rd))
	case 1: // STRB
		c.write8(addr, byte(c.reg(rd)))
	case 2: // LDR
		c.r[rd] = c.read32(addr)
		c.cyc++
	default: // LDRB
		c.r[rd] = c.read8(addr)
		c.cyc++
	}
}

func (c *CPU) thumbLoadStoreSigned(op uint16) {
	addr := c.reg(int(op>>3&7)) + c.reg(int(op>>6&7))
	rd := int(op & 7)
	switch op >> 10 & 3 {
	case 0: // STRH
		c.write16(addr&^1, uint16(c.reg(rd)))
	case 1: // LDRSB
		c.r[rd] = uint32(int32(int8(c.read8(addr))))
		c.cyc++
	case 2: // LDRH
		c.r[rd] = c.read16(addr &^ 1)
		c.cyc++
	default: // LDRSH
		c.r[rd] = uint32(int32(int16(c.read16(addr &^ 1))))
		c.cyc++
	}
}

func (c *CPU) thumbLoadStoreImm(op uint16) {
	rd := int(op & 7)
	rb := int(op >> 3 & 7)
	imm := uint32(op >> 6 & 0x1F)
	byteOp := op&(1<<12) != 0
	load := op&(1<<11) != 0

	if byteOp {
		addr := c.reg(rb) + imm
		if load {
			c.r[rd] = c.read8(addr)
			c.cyc++
		} else {
			c.write8(addr, byte(c.reg(rd)))
		}
		return
	}
	addr := c.reg(rb) + imm*4
	if load {
		c.r[rd] = c.read32(addr)
		c.cyc++
	} else {
		c.write32(addr&^3, c.reg(rd))
	}
}

func (c *CPU) thumbLoadStoreHalf(op uint16) {
	rd := int(op & 7)
	addr := c.reg(int(op>>3&7)) + uint32(op>>6&0x1F)*2
	if op&(1<<11) != 0 {
		c.r[rd] = c.read16(addr &^ 1)
		c.cyc++
	} else {
		c.write16(addr&^1, uint16(c.reg(rd)))
	}
}

func (c *CPU) thumbSPLoad(op uint16) {
	rd := int(op >> 8 & 7)
	addr := c.reg(13) + uint32(op&0xFF)*4
	if op&(1<<11) != 0 {
		c.r[rd] = c.read32(addr)
		c.cyc++
	} else {
		c.write32(addr&^3, c.reg(rd))
	}
}

func (c *CPU) thumbLoadAddress(op uint16) {
	rd := int(op >> 8 & 7)
	off := uint32(op&0xFF) * 4
	if op&(1<<11) != 0 {
		c.r[rd] = c.reg(13) + off
	} else {
		c.r[rd] = c.reg(15)&^3 + off
	}
}

func (c *CPU) thumbAdjustSP(op uint16) {
	off := uint32(op&0x7F) * 4
	if op&(1<<7) != 0 {
		c.r[13] -= off
	} else {
		c.r[13] += off
	}
}

func (c *CPU) thumbPushPop(op uint16) {
	load := op&(1<<11) != 0
	extra := op&(1<<8) != 0 // LR on push, PC on pop

	if load {
		addr := c.r[13]
		for i := 0; i < 8; i++ {
			if op&(1<<i) != 0 {
				c.r[i] = c.read32(addr)
				addr += 4
			}
		}
		if extra {
			c.branchTo(c.read32(addr) &^ 1)
			addr += 4
		}
		c.r[13] = addr
		c.cyc++
		return
	}

	n := 0
	for i := 0; i < 8; i++ {
		if op&(1<<i) != 0 {
			n++
		}
	}
	if extra {
		n++
	}
	addr := c.r[13] - uint32(n)*4
	c.r[13] = addr
	for i := 0; i < 8; i++ {
		if op&(1<<i) != 0 {
			c.write32(addr, c.r[i])
			addr += 4
		}
	}
	if extra {
		c.write32(addr, c.r[14])
	}
}

func (c *CPU) thumbMultiple(op uint16) {
	rb := int(op >> 8 & 7)
	load := op&(1<<11) != 0
	addr := c.r[rb]

	if op&0xFF == 0 { // empty list: transfer PC, base steps 0x40
		if load {
			c.branchTo(c.read32(addr))
		} else {
			c.write32(addr, c.reg(15)+2)
		}
		c.r[rb] = addr + 0x40
		return
	}

	baseInList := op&(1<<rb) != 0
	first := true
	for i := 0; i < 8; i++ {
		if op&(1<<i) == 0 {
			continue
		}
		if load {
			c.r[i] = c.read32(addr)
		} else {
			c.write32(addr, c.r[i])
			if first {
				// writeback settles after the first store
				c.r[rb] = c.finalMultipleBase(op, c.r[rb])
			}
		}
		first = false
		addr += 4
	}
	if load {
		c.cyc++
		if !baseInList {
			c.r[rb] = addr
		}
	}
}

func (c *CPU) finalMultipleBase(op uint16, base uint32) uint32 {
	n := uint32(0)
	for i := 0; i < 8; i++ {
		if op&(1<<i) != 0 {
			n++
		}
	}
	return base + n*4
}

func (c *CPU) thumbCondBranch(op uint16) {
	if !c.cond(uint32(op >> 8 & 0xF)) {
		return
	}
	off := int32(int8(op&0xFF)) * 2
	c.branchTo(c.reg(15) + uint32(off))
}

// thumbLongBranch is the two-instruction BL pair: the first half stages
// the high offset in LR, the second jumps and leaves the return address.
func (c *CPU) thumbLongBranch(op uint16) {
	off := uint32(op & 0x7FF)
	if op&(1<<11) == 0 {
		c.r[14] = c.reg(15) + signExtend(off, 11)<<12
		return
	}
	ret := c.r[15] | 1 // next instruction, Thumb bit set
	c.branchTo(c.r[14] + off<<1)
	c.r[14] = ret
}

func signExtend(v uint32, bits uint) uint32 {
	return uint32(int32(v<<(32-bits)) >> (32 - bits))
}
