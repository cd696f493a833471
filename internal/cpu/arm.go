package cpu

// ARM instruction set. Decode order matters: the multiply, swap and
// halfword-transfer encodings live inside the data-processing space and
// must be picked off first.

func (c *CPU) execARM(op uint32) {
	switch {
	case op&0x0FFFFFF0 == 0x012FFF10:
		c.armBX(op)
	case op&0x0FC000F0 == 0x00000090:
		c.armMultiply(op)
	case op&0x0F8000F0 == 0x00800090:
		c.armMultiplyLong(op)
	case op&0x0FB00FF0 == 0x01000090:
		c.armSwap(op)
	case op&0x0E000090 == 0x00000090 && op&0x60 != 0:
		c.armHalfword(op)
	case op&0x0FBF0FFF == 0x010F0000:
		c.armMRS(op)
	case op&0x0FB0FFF0 == 0x0120F000:
		c.armMSR(op, c.reg(int(op&0xF)))
	case op&0x0FB0F000 == 0x0320F000:
		imm := op & 0xFF
		rot := (op >> 8 & 0xF) * 2
		c.armMSR(op, imm>>rot|imm<<(32-rot))
	case op>>26&3 == 0:
		c.armDataProcessing(op)
	case op>>26&3 == 1:
		c.armSingleTransfer(op)
	case op>>25&7 == 4:
		c.armBlockTransfer(op)
	case op>>25&7 == 5:
		c.armBranch(op)
	case op>>24&0xF == 0xF:
		c.enterSWI(op & 0xFFFFFF >> 16)
	default:
		c.enterUndefined()
	}
}

func (c *CPU) armBX(op uint32) {
	target := c.reg(int(op & 0xF))
	if target&1 != 0 {
		c.cpsr |= FlagT
	} else {
		c.cpsr &^= FlagT
	}
	c.branchTo(target)
}

func (c *CPU) armBranch(op uint32) {
	off := op & 0x00FFFFFF
	if off&0x00800000 != 0 {
		off |= 0xFF000000
	}
	if op&(1<<24) != 0 {
		c.r[14] = c.r[15] // address of the following instruction
	}
	c.branchTo(c.reg(15) + off<<2)
}

// barrel shifter. regAmount selects register-specified shift semantics
// (amount 0 leaves the value and carry untouched).
func (c *CPU) shift(v uint32, typ, amount uint32, regAmount bool) (uint32, bool) {
	carry := c.cpsr&FlagC != 0
	if regAmount && amount == 0 {
		return v, carry
	}
	switch typ {
	case 0: // LSL
		if amount == 0 {
			return v, carry
		}
		if amount >= 32 {
			return 0, amount == 32 && v&1 != 0
		}
		return v << amount, v&(1<<(32-amount)) != 0
	case 1: // LSR
		if amount == 0 && !regAmount {
			amount = 32
		}
		if amount >= 32 {
			return 0, amount == 32 && v&(1<<31) != 0
		}
		return v >> amount, v&(1<<(amount-1)) != 0
	case 2: // ASR
		if amount == 0 && !regAmount {
			amount = 32
		}
		if amount >= 32 {
			s := uint32(int32(v) >> 31)
			return s, s&1 != 0
		}
		return uint32(int32(v) >> amount), v&(1<<(amount-1)) != 0
	default: // ROR, or RRX when the immediate amount is 0
		if amount == 0 && !regAmount {
			out := v >> 1
			if carry {
				out |= 1 << 31
			}
			return out, v&1 != 0
		}
		amount &= 31
		if amount == 0 {
			return v, v&(1<<31) != 0
		}
		return v>>amount | v<<(32-amount), v&(1<<(amount-1)) != 0
	}
}

// operand2 resolves the data-processing second operand and shifter carry.
func (c *CPU) operand2(op uint32) (uint32, bool) {
	if op&(1<<25) != 0 {
		imm := op & 0xFF
		rot := (op >> 8 & 0xF) * 2
		v := imm>>rot | imm<<(32-rot)
		if rot == 0 {
			return v, c.cpsr&FlagC != 0
		}
		return v, v&(1<<31) != 0
	}
	rm := int(op & 0xF)
	typ := op >> 5 & 3
	if op&(1<<4) != 0 {
		// register amount; reading Rm after the internal cycle sees PC+12,
		// modeled as the plain prefetch value
		amount := c.reg(int(op>>8&0xF)) & 0xFF
		c.cyc++
		return c.shiftReg(c.reg(rm), typ, amount)
	}
	return c.shift(c.reg(rm), typ, op>>7&0x1F, false)
}

func (c *CPU) shiftReg(v uint32, typ, amount uint32) (uint32, bool) {
	return c.shift(v, typ, amount, true)
}

func (c *CPU) armDataProcessing(op uint32) {
	opcode := op >> 21 & 0xF
	setFlags := op&(1<<20) != 0
	rn := int(op >> 16 & 0xF)
	rd := int(op >> 12 & 0xF)

	op2, shCarry := c.operand2(op)
	a := c.reg(rn)

	// TST/TEQ/CMP/CMN without S are the PSR transfer encodings, already
	// dispatched; here the S bit is implied set for them.
	var res uint32
	writeback := true
	logical := false
	switch opcode {
	case 0x0: // AND
		res, logical = a&op2, true
	case 0x1: // EOR
		res, logical = a^op2, true
	case 0x2: // SUB
		if setFlags {
			res = c.subWithFlags(a, op2, 1)
		} else {
			res = a - op2
		}
	case 0x3: // RSB
		if setFlags {
			res = c.subWithFlags(op2, a, 1)
		} else {
			res = op2 - a
		}
	case 0x4: // ADD
		if setFlags {
			res = c.addWithFlags(a, op2, 0)
		} else {
			res = a + op2
		}
	case 0x5: // ADC
		if setFlags {
			res = c.addWithFlags(a, op2, c.carry())
		} else {
			res = a + op2 + c.carry()
		}
	case 0x6: // SBC
		if setFlags {
			res = c.subWithFlags(a, op2, c.carry())
		} else {
			res = a - op2 - (1 - c.carry())
		}
	case 0x7: // RSC
		if setFlags {
			res = c.subWithFlags(op2, a, c.carry())
		} else {
			res = op2 - a - (1 - c.carry())
		}
	case 0x8: // TST
		res, logical, writeback = a&op2, true, false
	case 0x9: // TEQ
		res, logical, writeback = a^op2, true, false
	case 0xA: // CMP
		c.subWithFlags(a, op2, 1)
		writeback = false
	case 0xB: // CMN
		c.addWithFlags(a, op2, 0)
		writeback = false
	case 0xC: // ORR
		res, logical = a|op2, true
	case 0xD: // MOV
		res, logical = op2, true
	case 0xE: // BIC
		res, logical = a&^op2, true
	default: // MVN
		res, logical = ^op2, true
	}

	if logical && (setFlags || !writeback) {
		c.setNZ(res)
		c.setC(shCarry)
	}
	if writeback {
		if rd == 15 && setFlags {
			// exception return: restore CPSR before the branch so the
			// target alignment matches the restored T bit
			c.restoreCPSR()
		}
		c.setReg(rd, res)
	}
}

// restoreCPSR moves SPSR into CPSR, switching banks.
func (c *CPU) restoreCPSR() {
	sp := c.spsr
	c.setMode(sp & 0x1F)
	c.cpsr = sp
}

func (c *CPU) armMRS(op uint32) {
	rd := int(op >> 12 & 0xF)
	if op&(1<<22) != 0 {
		c.setReg(rd, c.spsr)
	} else {
		c.setReg(rd, c.cpsr)
	}
}

func (c *CPU) armMSR(op uint32, val uint32) {
	var mask uint32
	if op&(1<<16) != 0 {
		mask |= 0x000000FF
	}
	if op&(1<<19) != 0 {
		mask |= 0xF0000000
	}
	if op&(1<<22) != 0 {
		c.spsr = c.spsr&^mask | val&mask
		return
	}
	if c.cpsr&0x1F == ModeUser {
		mask &= 0xF0000000 // user mode cannot touch control bits
	}
	if mask&0xFF != 0 {
		c.setMode(val & 0x1F)
	}
	c.cpsr = c.cpsr&^mask | val&mask
}

func (c *CPU) armMultiply(op uint32) {
	rd := int(op >> 16 & 0xF)
	rn := int(op >> 12 & 0xF)
	rs := int(op >> 8 & 0xF)
	rm := int(op & 0xF)

	rsv := c.reg(rs)
	res := c.reg(rm) * rsv
	if op&(1<<21) != 0 {
		res += c.reg(rn)
		c.cyc++
	}
	c.r[rd] = res
	c.cyc += mulCycles(rsv)
	if op&(1<<20) != 0 {
		c.setNZ(res)
	}
}

func (c *CPU) armMultiplyLong(op uint32) {
	rdHi := int(op >> 16 & 0xF)
	rdLo := int(op >> 12 & 0xF)
	rs := c.reg(int(op >> 8 & 0xF))
	rm := c.reg(int(op & 0xF))

	var res uint64
	if op&(1<<22) != 0 { // signed
		res = uint64(int64(int32(rm)) * int64(int32(rs)))
	} else {
		res = uint64(rm) * uint64(rs)
	}
	if op&(1<<21) != 0 { // accumulate
		res += uint64(c.r[rdHi])<<32 | uint64(c.r[rdLo])
		c.cyc++
	}
	c.r[rdLo] = uint32(res)
	c.r[rdHi] = uint32(res >> 32)
	c.cyc += mulCycles(rs) + 1
	if op&(1<<20) != 0 {
		c.cpsr &^= FlagN | FlagZ
		if res == 0 {
			c.cpsr |= FlagZ
		}
		if res&(1<<63) != 0 {
			c.cpsr |= FlagN
		}
	}
}

// mulCycles is the early-termination cost of the multiplier array.
func mulCycles(rs uint32) int {
	switch {
	case rs&0xFFFFFF00 == 0 || rs&0xFFFFFF00 == 0xFFFFFF00:
		return 1
	case rs&0xFFFF0000 == 0 || rs&0xFFFF0000 == 0xFFFF0000:
		return 2
	case rs&0xFF000000 == 0 || rs&0xFF000000 == 0xFF000000:
		return 3
	default:
		return 4
	}
}

func (c *CPU) armSwap(op uint32) {
	rn := c.reg(int(op >> 16 & 0xF))
	rd := int(op >> 12 & 0xF)
	rm := c.reg(int(op & 0xF))
	if op&(1<<22) != 0 {
		old := c.read8(rn)
		c.write8(rn, byte(rm))
		c.setReg(rd, old)
	} else {
		old := c.read32(rn)
		c.write32(rn, rm)
		c.setReg(rd, old)
	}
	c.cyc++
}

func (c *CPU) armHalfword(op uint32) {
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	writeback := op&(1<<21) != 0 || !pre
	load := op&(1<<20) != 0
	rn := int(op >> 16 & 0xF)
	rd := int(op >> 12 & 0xF)

	var off uint32
	if op&(1<<22) != 0 {
		off = op>>4&0xF0 | op&0xF
	} else {
		off = c.reg(int(op & 0xF))
	}
	if !up {
		off = -off
	}

	addr := c.reg(rn)
	if pre {
		addr += off
	}

	switch {
	case load && op>>5&3 == 1: // LDRH
		c.setReg(rd, c.read16(addr&^1))
	case load && op>>5&3 == 2: // LDRSB
		c.setReg(rd, uint32(int32(int8(c.read8(addr)))))
	case load: // LDRSH
		c.setReg(rd, uint32(int32(int16(c.read16(addr&^1)))))
	default: // STRH
		c.write16(addr&^1, uint16(c.reg(rd)))
	}

	if !pre {
		addr += off
	}
	if writeback && !(load && rd == rn) {
		c.r[rn] = addr
	}
}

func (c *CPU) armSingleTransfer(op uint32) {
	if op&(1<<25) != 0 && op&(1<<4) != 0 {
		c.enterUndefined()
		return
	}
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	byteOp := op&(1<<22) != 0
	writeback := op&(1<<21) != 0 || !pre
	load := op&(1<<20) != 0
	rn := int(op >> 16 & 0xF)
	rd := int(op >> 12 & 0xF)

	var off uint32
	if op&(1<<25) != 0 {
		off, _ = c.shift(c.reg(int(op&0xF)), op>>5&3, op>>7&0x1F, false)
	} else {
		off = op & 0xFFF
	}
	if !up {
		off = -off
	}

	addr := c.reg(rn)
	if pre {
		addr += off
	}

	if load {
		var v uint32
		if byteOp {
			v = c.read8(addr)
		} else {
			v = c.read32(addr)
		}
		c.cyc++ // load-use internal cycle
		if !pre {
			addr += off
		}
		if writeback && rd != rn {
			c.r[rn] = addr
		}
		c.setReg(rd, v)
		return
	}

	v := c.reg(rd)
	if rd == 15 {
		v += 4 // stores see PC+12
	}
	if byteOp {
		c.write8(addr, byte(v))
	} else {
		c.write32(addr&^3, v)
	}
	if !pre {
		addr += off
	}
	if writeback {
		c.r[rn] = addr
	}
}

func (c *CPU) armBlockTransfer(op uint32) {
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	sbit := op&(1<<22) != 0
	writeback := op&(1<<21) != 0
	load := op&(1<<20) != 0
	rn := int(op >> 16 & 0xF)
	list := op & 0xFFFF

	n := 0
	for i := 0; i < 16; i++ {
		if list&(1<<i) != 0 {
			n++
		}
	}
	if n == 0 { // empty list transfers R15 and steps the base by 0x40
		list = 1 << 15
		n = 16
	}

	base := c.r[rn]
	var start uint32
	if up {
		start = base
		if pre {
			start += 4
		}
	} else {
		start = base - uint32(n)*4
		if !pre {
			start += 4
		}
	}

	// user-bank transfer without R15 in the list
	userBank := sbit && (!load || list&(1<<15) == 0)

	var final uint32
	if up {
		final = base + uint32(n)*4
	} else {
		final = base - uint32(n)*4
	}

	addr := start &^ 3
	first := true
	for i := 0; i < 16; i++ {
		if list&(1<<i) == 0 {
			continue
		}
		if load {
			v := c.read32(addr)
			if userBank {
				c.setUserReg(i, v)
			} else if i == 15 {
				if sbit {
					c.restoreCPSR()
				}
				c.branchTo(v)
			} else {
				c.r[i] = v
			}
		} else {
			var v uint32
			if userBank {
				v = c.userReg(i)
			} else {
				v = c.reg(i)
			}
			if i == 15 {
				v += 4
			}
			c.write32(addr, v)
		}
		// base writeback lands after the first store, so a stored base
		// writes its old value only in the first slot
		if first && writeback && !load {
			c.r[rn] = final
		}
		first = false
		addr += 4
	}
	if writeback && load && list&(1<<rn) == 0 {
		c.r[rn] = final
	}
	if load {
		c.cyc++
	}
}

// userReg and setUserReg access the user bank regardless of mode, for the
// S-bit forms of LDM/STM.
func (c *CPU) userReg(i int) uint32 {
	mode := c.cpsr & 0x1F
	bank := bankIndex(mode)
	if bank == bankUser {
		return c.reg(i)
	}
	switch {
	case i == 13 || i == 14:
		return c.banked[bankUser][i-13]
	case i >= 8 && i <= 12 && bank == bankFiq:
		return c.fiqHi[i-8]
	default:
		return c.reg(i)
	}
}

func (c *CPU) setUserReg(i int, v uint32) {
	mode := c.cpsr & 0x1F
	bank := bankIndex(mode)
	if bank == bankUser {
		c.r[i] = v
		return
	}
	switch {
	case i == 13 || i == 14:
		c.banked[bankUser][i-13] = v
	case i >= 8 && i <= 12 && bank == bankFiq:
		c.fiqHi[i-8] = v
	default:
		c.r[i] = v
	}
}
