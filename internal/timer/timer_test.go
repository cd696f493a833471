package timer

import "testing"

func TestCountUpAndOverflow(t *testing.T) {
	var irqs []int
	tm := New(func(src int) { irqs = append(irqs, src) }, nil)

	tm.WriteReg(RegBase, 0xFFFE)        // reload
	tm.WriteReg(RegBase+2, 0x00C0)      // enable, IRQ, prescale 1
	if got := tm.ReadReg(RegBase); got != 0xFFFE {
		t.Fatalf("counter after enable = %#04x, want reload", got)
	}

	tm.Tick(1)
	if got := tm.ReadReg(RegBase); got != 0xFFFF {
		t.Fatalf("counter = %#04x after one cycle", got)
	}
	tm.Tick(1)
	if got := tm.ReadReg(RegBase); got != 0xFFFE {
		t.Fatalf("counter = %#04x after overflow, want reload", got)
	}
	if len(irqs) != 1 || irqs[0] != srcTimer0 {
		t.Fatalf("irqs = %v, want one timer-0 interrupt", irqs)
	}
}

func TestPrescaler(t *testing.T) {
	tm := New(func(int) {}, nil)
	tm.WriteReg(RegBase+2, 0x0081) // enable, prescale 64
	tm.Tick(63)
	if got := tm.ReadReg(RegBase); got != 0 {
		t.Fatalf("counter = %#04x before 64 cycles elapsed", got)
	}
	tm.Tick(1)
	if got := tm.ReadReg(RegBase); got != 1 {
		t.Fatalf("counter = %#04x after 64 cycles, want 1", got)
	}
}

func TestCascade(t *testing.T) {
	var irqs []int
	tm := New(func(src int) { irqs = append(irqs, src) }, nil)

	tm.WriteReg(RegBase, 0xFF00)   // timer 0 overflows every 256 cycles
	tm.WriteReg(RegBase+2, 0x0080)
	tm.WriteReg(RegBase+4, 0xFFF6) // timer 1 needs 10 overflows
	tm.WriteReg(RegBase+6, 0x00C4) // enable, IRQ, cascade

	tm.Tick(256 * 9)
	if len(irqs) != 0 {
		t.Fatalf("cascade fired early: %v", irqs)
	}
	if got := tm.ReadReg(RegBase + 4); got != 0xFFFF {
		t.Fatalf("timer 1 = %#04x after 9 overflows", got)
	}
	tm.Tick(256)
	if len(irqs) != 1 || irqs[0] != srcTimer0+1 {
		t.Fatalf("irqs = %v, want one timer-1 interrupt", irqs)
	}
}

func TestCascadedTimerIgnoresCycles(t *testing.T) {
	tm := New(func(int) {}, nil)
	tm.WriteReg(RegBase+6, 0x0084) // timer 1 cascade, timer 0 disabled
	tm.Tick(10000)
	if got := tm.ReadReg(RegBase + 4); got != 0 {
		t.Fatalf("cascaded timer advanced on raw cycles: %#04x", got)
	}
}

func TestReloadTakesEffectOnOverflow(t *testing.T) {
	tm := New(func(int) {}, nil)
	tm.WriteReg(RegBase, 0xFFFF)
	tm.WriteReg(RegBase+2, 0x0080)
	tm.WriteReg(RegBase, 0x1234) // new reload, counter unchanged
	if got := tm.ReadReg(RegBase); got != 0xFFFF {
		t.Fatalf("reload write changed the live counter: %#04x", got)
	}
	tm.Tick(1)
	if got := tm.ReadReg(RegBase); got != 0x1234 {
		t.Fatalf("counter = %#04x after overflow, want new reload", got)
	}
}

func TestFifoHook(t *testing.T) {
	var overflows []int
	tm := New(func(int) {}, func(i int) { overflows = append(overflows, i) })
	tm.WriteReg(RegBase, 0xFFFF)
	tm.WriteReg(RegBase+2, 0x0080)
	tm.Tick(1)
	if len(overflows) != 1 || overflows[0] != 0 {
		t.Fatalf("overflow hook calls = %v", overflows)
	}
}
