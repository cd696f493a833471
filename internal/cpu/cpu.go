// Package cpu implements the ARM7TDMI core: the banked register file, both
// instruction sets, exception entry, and the halt state. Step executes one
// instruction and returns its cycle cost including memory wait-states.
package cpu

import (
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/irq"
)

// CPSR flag bits.
const (
	FlagN uint32 = 1 << 31
	FlagZ uint32 = 1 << 30
	FlagC uint32 = 1 << 29
	FlagV uint32 = 1 << 28
	FlagI uint32 = 1 << 7
	FlagF uint32 = 1 << 6
	FlagT uint32 = 1 << 5
)

// Processor modes, CPSR bits 0-4.
const (
	ModeUser uint32 = 0x10
	ModeFIQ  uint32 = 0x11
	ModeIRQ  uint32 = 0x12
	ModeSVC  uint32 = 0x13
	ModeABT  uint32 = 0x17
	ModeUND  uint32 = 0x1B
	ModeSys  uint32 = 0x1F
)

// Exception vectors.
const (
	VecReset uint32 = 0x00
	VecUndef uint32 = 0x04
	VecSWI   uint32 = 0x08
	VecIRQ   uint32 = 0x18
)

// CyclesCondSkip is the cost of an instruction whose condition fails; the
// instruction has no other effect.
const CyclesCondSkip = 1

const traceDepth = 64

// register banks; user and system share one
const (
	bankUser = iota
	bankFiq
	bankIrq
	bankSvc
	bankAbt
	bankUnd
	numBanks
)

type CPU struct {
	r    [16]uint32
	cpsr uint32
	spsr uint32 // active mode's saved PSR; unused in user/system

	banked [numBanks][2]uint32 // r13, r14 per bank
	fiqHi  [5]uint32           // r8-r12 while outside FIQ, or user's while in it
	spsrs  [numBanks]uint32

	halted bool

	// recent executed PCs, a ring the debugger reads newest-first
	trace    [traceDepth]uint32
	traceLen int
	tracePos int

	cyc int // accumulator for the instruction in flight

	bus *bus.Bus
	irq *irq.Controller
}

func New(b *bus.Bus, ic *irq.Controller) *CPU {
	c := &CPU{bus: b, irq: ic}
	c.Reset()
	return c
}

// Reset puts the core in supervisor mode at the reset vector. Without a
// BIOS image the boot stub state is applied instead: stacks set up the way
// the BIOS leaves them and execution starting at the pak entry point.
func (c *CPU) Reset() {
	c.r = [16]uint32{}
	c.cpsr = ModeSVC | FlagI | FlagF
	c.halted = false
	if c.bus.HasBIOS() {
		c.r[15] = VecReset
		return
	}
	// boot stub: stacks as the BIOS leaves them, entry at the pak vector
	c.banked[bankIrq][0] = 0x03007FA0
	c.r[13] = 0x03007FE0 // SVC stack, saved on the mode switch below
	c.setMode(ModeSys)
	c.r[13] = 0x03007F00
	c.cpsr &^= FlagI | FlagF
	c.r[15] = 0x08000000
}

func bankIndex(mode uint32) int {
	switch mode {
	case ModeFIQ:
		return bankFiq
	case ModeIRQ:
		return bankIrq
	case ModeSVC:
		return bankSvc
	case ModeABT:
		return bankAbt
	case ModeUND:
		return bankUnd
	default:
		return bankUser
	}
}

// setMode switches the register bank and mode bits.
func (c *CPU) setMode(mode uint32) {
	old := bankIndex(c.cpsr & 0x1F)
	next := bankIndex(mode)
	if old != next {
		c.banked[old][0], c.banked[old][1] = c.r[13], c.r[14]
		c.spsrs[old] = c.spsr
		if old == bankFiq || next == bankFiq {
			for i := 0; i < 5; i++ {
				c.fiqHi[i], c.r[8+i] = c.r[8+i], c.fiqHi[i]
			}
		}
		c.r[13], c.r[14] = c.banked[next][0], c.banked[next][1]
		c.spsr = c.spsrs[next]
	}
	c.cpsr = c.cpsr&^0x1F | mode&0x1F
}

func (c *CPU) thumb() bool { return c.cpsr&FlagT != 0 }

// reg reads a register with PC prefetch semantics: R15 yields the address
// of the executing instruction plus 8 (ARM) or plus 4 (Thumb).
func (c *CPU) reg(i int) uint32 {
	if i == 15 {
		if c.thumb() {
			return c.r[15] + 2
		}
		return c.r[15] + 4
	}
	return c.r[i]
}

// setReg writes a register; a write to R15 is a branch and realigns PC.
func (c *CPU) setReg(i int, v uint32) {
	if i == 15 {
		c.branchTo(v)
		return
	}
	c.r[i] = v
}

func (c *CPU) branchTo(addr uint32) {
	if c.thumb() {
		addr &^= 1
	} else {
		addr &^= 3
	}
	c.r[15] = addr
	c.cyc += 2 // pipeline refill
}

// memory helpers fold wait-states into the running cost

func (c *CPU) read8(addr uint32) uint32 {
	c.cyc += 1 + bus.Waits(addr, 1)
	return uint32(c.bus.Read8(addr))
}

func (c *CPU) read16(addr uint32) uint32 {
	c.cyc += 1 + bus.Waits(addr, 2)
	return uint32(c.bus.Read16(addr))
}

func (c *CPU) read32(addr uint32) uint32 {
	c.cyc += 1 + bus.Waits(addr, 4)
	v := c.bus.Read32(addr)
	// unaligned word loads rotate
	if rot := (addr & 3) * 8; rot != 0 {
		v = v>>rot | v<<(32-rot)
	}
	return v
}

func (c *CPU) write8(addr uint32, v byte) {
	c.cyc += 1 + bus.Waits(addr, 1)
	c.bus.Write8(addr, v)
}

func (c *CPU) write16(addr uint32, v uint16) {
	c.cyc += 1 + bus.Waits(addr, 2)
	c.bus.Write16(addr, v)
}

func (c *CPU) write32(addr uint32, v uint32) {
	c.cyc += 1 + bus.Waits(addr, 4)
	c.bus.Write32(addr, v)
}

// Step executes one instruction (or one idle cycle while halted) and
// returns the cycle cost.
func (c *CPU) Step() int {
	if c.halted {
		if !c.irq.Wake() {
			return 1
		}
		c.halted = false
	}
	if c.irq.Pending() && c.cpsr&FlagI == 0 {
		c.enterIRQ()
		return 3
	}

	c.cyc = 0
	pc := c.r[15]
	entry := pc
	if c.thumb() {
		entry |= 1 // bit 0 marks Thumb
	}
	c.trace[c.tracePos] = entry
	c.tracePos = (c.tracePos + 1) % traceDepth
	if c.traceLen < traceDepth {
		c.traceLen++
	}

	if c.thumb() {
		op := uint16(c.read16(pc))
		c.r[15] = pc + 2
		c.execThumb(op)
	} else {
		op := c.read32(pc)
		c.r[15] = pc + 4
		if !c.cond(op >> 28) {
			return CyclesCondSkip
		}
		c.execARM(op)
	}
	return c.cyc
}

// Halt parks the core until an enabled interrupt is raised. Wired to
// HALTCNT writes and the Halt system call.
func (c *CPU) Halt() { c.halted = true }

// Halted reports the halt state, for tests and the debugger.
func (c *CPU) Halted() bool { return c.halted }

func (c *CPU) cond(cc uint32) bool {
	n := c.cpsr&FlagN != 0
	z := c.cpsr&FlagZ != 0
	cy := c.cpsr&FlagC != 0
	v := c.cpsr&FlagV != 0
	switch cc {
	case 0x0:
		return z
	case 0x1:
		return !z
	case 0x2:
		return cy
	case 0x3:
		return !cy
	case 0x4:
		return n
	case 0x5:
		return !n
	case 0x6:
		return v
	case 0x7:
		return !v
	case 0x8:
		return cy && !z
	case 0x9:
		return !cy || z
	case 0xA:
		return n == v
	case 0xB:
		return n != v
	case 0xC:
		return !z && n == v
	case 0xD:
		return z || n != v
	case 0xE:
		return true
	default:
		return false // 0xF is unpredictable, treated as never
	}
}

// exception switches mode, saves state and vectors. retAddr is what the
// handler's return sequence expects in LR.
func (c *CPU) exception(vector, mode, retAddr uint32) {
	old := c.cpsr
	c.setMode(mode)
	c.spsr = old
	c.r[14] = retAddr
	c.cpsr &^= FlagT
	c.cpsr |= FlagI
	if mode == ModeFIQ {
		c.cpsr |= FlagF
	}
	c.r[15] = vector
}

func (c *CPU) enterIRQ() {
	// LR_irq is the interrupted instruction + 4; SUBS PC, LR, #4 returns
	c.exception(VecIRQ, ModeIRQ, c.r[15]+4)
}

func (c *CPU) enterUndefined() {
	c.exception(VecUndef, ModeUND, c.r[15])
}

func (c *CPU) enterSWI(comment uint32) {
	if c.bus.HasBIOS() {
		c.exception(VecSWI, ModeSVC, c.r[15])
		return
	}
	c.hleSyscall(comment)
}

// Flag helpers.

func (c *CPU) setNZ(v uint32) {
	c.cpsr &^= FlagN | FlagZ
	if v == 0 {
		c.cpsr |= FlagZ
	}
	if v&(1<<31) != 0 {
		c.cpsr |= FlagN
	}
}

func (c *CPU) setC(b bool) {
	if b {
		c.cpsr |= FlagC
	} else {
		c.cpsr &^= FlagC
	}
}

func (c *CPU) setV(b bool) {
	if b {
		c.cpsr |= FlagV
	} else {
		c.cpsr &^= FlagV
	}
}

func (c *CPU) carry() uint32 {
	if c.cpsr&FlagC != 0 {
		return 1
	}
	return 0
}

// addWithFlags computes a+b+ci and sets all four flags.
func (c *CPU) addWithFlags(a, b, ci uint32) uint32 {
	r64 := uint64(a) + uint64(b) + uint64(ci)
	r := uint32(r64)
	c.setNZ(r)
	c.setC(r64 > 0xFFFFFFFF)
	c.setV((a^r)&(b^r)&(1<<31) != 0)
	return r
}

// subWithFlags computes a-b-(1-ci) with ARM borrow semantics.
func (c *CPU) subWithFlags(a, b, ci uint32) uint32 {
	return c.addWithFlags(a, ^b, ci)
}

// Snapshot copies the register file for the debugger. R15 holds the
// address of the next instruction to execute.
func (c *CPU) Snapshot() ([16]uint32, uint32) {
	return c.r, c.cpsr
}

// PC returns the address of the next instruction to execute.
func (c *CPU) PC() uint32 { return c.r[15] }

// SetPC points execution at addr, for tests and the reset path.
func (c *CPU) SetPC(addr uint32) { c.r[15] = addr }

// RecentPCs returns the executed-instruction trace, newest first. Bit 0 of
// each entry is set for Thumb instructions.
func (c *CPU) RecentPCs() []uint32 {
	out := make([]uint32, 0, c.traceLen)
	for i := 1; i <= c.traceLen; i++ {
		out = append(out, c.trace[(c.tracePos-i+traceDepth)%traceDepth])
	}
	return out
}
