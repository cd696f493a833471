package cpu

import (
	"encoding/binary"
	"testing"

	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/apu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/irq"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/sched"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/timer"
)

// newTestCPU builds a core with the given ARM words as the pak image.
// Without a BIOS, execution starts at 0x08000000 in system mode.
func newTestCPU(t *testing.T, words []uint32) (*CPU, *irq.Controller) {
	t.Helper()
	rom := make([]byte, 0x4000)
	for i, w := range words {
		binary.LittleEndian.PutUint32(rom[i*4:], w)
	}
	c, err := cart.Load(rom)
	if err != nil {
		t.Fatalf("cart.Load: %v", err)
	}
	ic := irq.New()
	p := ppu.New(func(src int) { ic.Request(src) })
	a := apu.New(48000)
	tm := timer.New(func(src int) { ic.Request(src) }, a.TimerOverflow)
	b := bus.New(nil, c, p, a, tm, ic, sched.New())
	return New(b, ic), ic
}

func step(c *CPU, n int) {
	for i := 0; i < n; i++ {
		c.Step()
	}
}

func TestResetState(t *testing.T) {
	c, _ := newTestCPU(t, nil)
	if c.r[15] != 0x08000000 {
		t.Fatalf("PC = %#08x after reset, want pak entry", c.r[15])
	}
	if c.cpsr&0x1F != ModeSys {
		t.Fatalf("mode = %#02x, want system", c.cpsr&0x1F)
	}
	if c.r[13] != 0x03007F00 {
		t.Fatalf("SP = %#08x, want boot stub value", c.r[13])
	}
	if c.banked[bankIrq][0] != 0x03007FA0 {
		t.Fatalf("IRQ SP = %#08x", c.banked[bankIrq][0])
	}
}

func TestDataProcessingImmediate(t *testing.T) {
	c, _ := newTestCPU(t, []uint32{
		0xE3A00005, // mov r0, #5
		0xE2801003, // add r1, r0, #3
		0xE2502005, // subs r2, r0, #5
	})
	step(c, 3)
	if c.r[0] != 5 || c.r[1] != 8 || c.r[2] != 0 {
		t.Fatalf("r0=%d r1=%d r2=%d", c.r[0], c.r[1], c.r[2])
	}
	if c.cpsr&FlagZ == 0 || c.cpsr&FlagC == 0 {
		t.Fatalf("SUBS to zero should set Z and C, cpsr=%#08x", c.cpsr)
	}
}

func TestPCPrefetch(t *testing.T) {
	c, _ := newTestCPU(t, []uint32{
		0xE1A00000, // nop
		0xE1A0000F, // mov r0, pc
	})
	step(c, 2)
	// second instruction sits at +4; reading PC yields +4+8
	if c.r[0] != 0x0800000C {
		t.Fatalf("r0 = %#08x, want executing address + 8", c.r[0])
	}
}

func TestLoadStore(t *testing.T) {
	c, _ := newTestCPU(t, []uint32{
		0xE3A00403, // mov r0, #0x03000000
		0xE3A0102A, // mov r1, #42
		0xE5801000, // str r1, [r0]
		0xE5902000, // ldr r2, [r0]
		0xE5C01004, // strb r1, [r0, #4]
		0xE5D03004, // ldrb r3, [r0, #4]
	})
	step(c, 6)
	if c.r[2] != 42 || c.r[3] != 42 {
		t.Fatalf("r2=%d r3=%d after round trip", c.r[2], c.r[3])
	}
}

func TestBranchWithLink(t *testing.T) {
	c, _ := newTestCPU(t, []uint32{
		0xEB000001, // bl +4 (target 0x0800000C)
		0xE1A00000, // nop (skipped)
		0xE1A00000, // nop (skipped)
		0xE3A00001, // mov r0, #1
	})
	c.Step()
	if c.r[15] != 0x0800000C {
		t.Fatalf("PC = %#08x after BL", c.r[15])
	}
	if c.r[14] != 0x08000004 {
		t.Fatalf("LR = %#08x, want return address", c.r[14])
	}
	c.Step()
	if c.r[0] != 1 {
		t.Fatalf("branch target not executed")
	}
}

func TestConditionSkipCost(t *testing.T) {
	c, _ := newTestCPU(t, []uint32{
		0x03A00001, // moveq r0, #1 (Z clear: skipped)
	})
	if got := c.Step(); got != CyclesCondSkip {
		t.Fatalf("skipped instruction cost %d cycles, want %d", got, CyclesCondSkip)
	}
	if c.r[0] != 0 {
		t.Fatalf("skipped instruction had side effects")
	}
}

func TestMultiply(t *testing.T) {
	c, _ := newTestCPU(t, []uint32{
		0xE3A00007, // mov r0, #7
		0xE3A01006, // mov r1, #6
		0xE0020091, // mul r2, r1, r0
		0xE0834291, // umull r4, r3, r1, r2 (r3:r4 = r1*r2)
	})
	step(c, 4)
	if c.r[2] != 42 {
		t.Fatalf("mul = %d", c.r[2])
	}
	if c.r[4] != 252 || c.r[3] != 0 {
		t.Fatalf("umull = %d:%d", c.r[3], c.r[4])
	}
}

func TestLDMSTM(t *testing.T) {
	c, _ := newTestCPU(t, []uint32{
		0xE3A00403, // mov r0, #0x03000000
		0xE3A01001, // mov r1, #1
		0xE3A02002, // mov r2, #2
		0xE8A00006, // stmia r0!, {r1, r2}
		0xE3A01000, // mov r1, #0
		0xE3A02000, // mov r2, #0
		0xE2400008, // sub r0, r0, #8
		0xE8900006, // ldmia r0, {r1, r2}
	})
	step(c, 8)
	if c.r[1] != 1 || c.r[2] != 2 {
		t.Fatalf("ldm restored r1=%d r2=%d", c.r[1], c.r[2])
	}
	if c.r[0] != 0x03000000 {
		t.Fatalf("base = %#08x", c.r[0])
	}
}

func TestIRQEntryAndReturn(t *testing.T) {
	c, ic := newTestCPU(t, []uint32{
		0xE1A00000, // nop
		0xE1A00000,
	})
	c.Step()
	ic.WriteReg(irq.RegIE, 1)
	ic.WriteReg(irq.RegIME, 1)
	ic.Request(irq.SrcVBlank)

	pcBefore := c.r[15]
	c.Step() // delivers the interrupt
	if c.cpsr&0x1F != ModeIRQ {
		t.Fatalf("mode = %#02x after IRQ, want IRQ mode", c.cpsr&0x1F)
	}
	if c.r[15] != VecIRQ {
		t.Fatalf("PC = %#08x, want IRQ vector", c.r[15])
	}
	if c.r[14] != pcBefore+4 {
		t.Fatalf("LR = %#08x, want interrupted PC + 4", c.r[14])
	}
	if c.cpsr&FlagI == 0 {
		t.Fatalf("I bit clear inside the handler")
	}
	if c.spsr&0x1F != ModeSys {
		t.Fatalf("SPSR mode = %#02x, want the interrupted mode", c.spsr&0x1F)
	}
	if c.r[13] != 0x03007FA0 {
		t.Fatalf("SP = %#08x, want the IRQ stack", c.r[13])
	}
}

func TestBankedSPSwitch(t *testing.T) {
	c, _ := newTestCPU(t, nil)
	sysSP := c.r[13]
	c.setMode(ModeIRQ)
	if c.r[13] != 0x03007FA0 {
		t.Fatalf("IRQ SP = %#08x", c.r[13])
	}
	c.r[13] = 0x03007F80
	c.setMode(ModeSys)
	if c.r[13] != sysSP {
		t.Fatalf("system SP = %#08x after round trip", c.r[13])
	}
	c.setMode(ModeIRQ)
	if c.r[13] != 0x03007F80 {
		t.Fatalf("IRQ SP lost its value: %#08x", c.r[13])
	}
	c.setMode(ModeSys)
}

func TestThumbBasics(t *testing.T) {
	c, _ := newTestCPU(t, nil)
	// thumb program in IWRAM: movs r0,#5; adds r0,#3; lsls r1, r0, #2
	prog := []uint16{0x2005, 0x3003, 0x0081}
	for i, op := range prog {
		c.bus.Write16(0x03000000+uint32(i)*2, op)
	}
	c.cpsr |= FlagT
	c.r[15] = 0x03000000
	step(c, 3)
	if c.r[0] != 8 {
		t.Fatalf("r0 = %d, want 8", c.r[0])
	}
	if c.r[1] != 32 {
		t.Fatalf("r1 = %d, want 32", c.r[1])
	}
}

func TestThumbPushPop(t *testing.T) {
	c, _ := newTestCPU(t, nil)
	prog := []uint16{
		0x2001, // movs r0, #1
		0x2102, // movs r1, #2
		0xB403, // push {r0, r1}
		0x2000, // movs r0, #0
		0x2100, // movs r1, #0
		0xBC03, // pop {r0, r1}
	}
	for i, op := range prog {
		c.bus.Write16(0x03000000+uint32(i)*2, op)
	}
	c.cpsr |= FlagT
	c.r[15] = 0x03000000
	sp := c.r[13]
	step(c, 6)
	if c.r[0] != 1 || c.r[1] != 2 {
		t.Fatalf("pop restored r0=%d r1=%d", c.r[0], c.r[1])
	}
	if c.r[13] != sp {
		t.Fatalf("SP = %#08x, want balanced stack", c.r[13])
	}
}

func TestThumbBLPair(t *testing.T) {
	c, _ := newTestCPU(t, nil)
	prog := []uint16{
		0xF000, 0xF802, // bl +4 (target 0x03000008)
		0x2001, // movs r0, #1 (skipped)
		0x2002, // movs r0, #2 (skipped)
		0x2003, // movs r0, #3 (target)
	}
	for i, op := range prog {
		c.bus.Write16(0x03000000+uint32(i)*2, op)
	}
	c.cpsr |= FlagT
	c.r[15] = 0x03000000
	step(c, 3)
	if c.r[0] != 3 {
		t.Fatalf("r0 = %d, BL pair did not land on its target", c.r[0])
	}
	if c.r[14] != 0x03000004|1 {
		t.Fatalf("LR = %#08x, want return address with Thumb bit", c.r[14])
	}
}

func TestBXInterworking(t *testing.T) {
	c, _ := newTestCPU(t, []uint32{
		0xE28F0001, // add r0, pc, #1 (thumb target 0x08000009)
		0xE12FFF10, // bx r0
	})
	// thumb code at 0x08000008 would execute next; only check the switch
	step(c, 2)
	if c.cpsr&FlagT == 0 {
		t.Fatalf("T bit clear after BX to an odd address")
	}
	if c.r[15] != 0x08000008 {
		t.Fatalf("PC = %#08x after BX", c.r[15])
	}
}

func TestHLEDiv(t *testing.T) {
	c, _ := newTestCPU(t, []uint32{
		0xE3A0002A, // mov r0, #42
		0xE3A01005, // mov r1, #5
		0xEF060000, // swi 0x06 (Div)
	})
	step(c, 3)
	if c.r[0] != 8 || c.r[1] != 2 || c.r[3] != 8 {
		t.Fatalf("div: q=%d r=%d abs=%d", c.r[0], c.r[1], c.r[3])
	}
}

func TestHaltAndWake(t *testing.T) {
	c, ic := newTestCPU(t, []uint32{
		0xE1A00000, // nop
	})
	c.Halt()
	if got := c.Step(); got != 1 {
		t.Fatalf("halted step cost %d", got)
	}
	if !c.Halted() {
		t.Fatalf("core left halt without an interrupt")
	}
	// pending+enabled wakes even with IME off
	ic.WriteReg(irq.RegIE, 1)
	ic.Request(irq.SrcVBlank)
	c.Step()
	if c.Halted() {
		t.Fatalf("core still halted after wake condition")
	}
}

func TestRecentPCs(t *testing.T) {
	c, _ := newTestCPU(t, []uint32{
		0xE1A00000, 0xE1A00000, 0xE1A00000,
	})
	step(c, 3)
	pcs := c.RecentPCs()
	if len(pcs) != 3 {
		t.Fatalf("trace holds %d entries", len(pcs))
	}
	if pcs[0] != 0x08000008 || pcs[2] != 0x08000000 {
		t.Fatalf("trace order wrong: %#08x ... %#08x", pcs[0], pcs[2])
	}
}

func TestEntryBranch(t *testing.T) {
	// GamePak headers start with a branch over the header block; one step
	// from reset must land on the resolved target.
	c, _ := newTestCPU(t, []uint32{
		0xEA00000E, // b 0x08000040
	})
	n := c.Step()
	if got := c.PC(); got != 0x08000040 {
		t.Fatalf("PC = %08X after entry branch, want 08000040", got)
	}
	if n <= 0 {
		t.Fatalf("entry branch cost %d cycles", n)
	}
}
