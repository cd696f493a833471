package irq

import "testing"

func TestRequestSetsPendingBit(t *testing.T) {
	c := New()
	c.Request(SrcTimer1)
	if got := c.ReadReg(RegIF); got != 1<<SrcTimer1 {
		t.Fatalf("IF = %#04x, want %#04x", got, 1<<SrcTimer1)
	}
}

func TestPendingNeedsEnableAndMaster(t *testing.T) {
	c := New()
	c.Request(SrcVBlank)
	if c.Pending() {
		t.Fatal("pending with IE and IME clear")
	}
	c.WriteReg(RegIE, 1<<SrcVBlank)
	if c.Pending() {
		t.Fatal("pending with IME clear")
	}
	c.WriteReg(RegIME, 1)
	if !c.Pending() {
		t.Fatal("not pending with IE, IF and IME all set")
	}
}

func TestIFWriteClearsBits(t *testing.T) {
	c := New()
	c.Request(SrcVBlank)
	c.Request(SrcHBlank)
	c.WriteReg(RegIF, 1<<SrcVBlank)
	if got := c.ReadReg(RegIF); got != 1<<SrcHBlank {
		t.Fatalf("IF = %#04x after acknowledge, want %#04x", got, 1<<SrcHBlank)
	}
}

func TestWakeIgnoresMaster(t *testing.T) {
	c := New()
	c.WriteReg(RegIE, 1<<SrcKeypad)
	if c.Wake() {
		t.Fatal("wake with nothing pending")
	}
	c.Request(SrcKeypad)
	if !c.Wake() {
		t.Fatal("no wake with IE&IF set and IME clear")
	}
	if c.Pending() {
		t.Fatal("deliverable without IME")
	}
}

func TestIEMasksToValidSources(t *testing.T) {
	c := New()
	c.WriteReg(RegIE, 0xFFFF)
	if got := c.ReadReg(RegIE); got != 0x3FFF {
		t.Fatalf("IE = %#04x, want 0x3FFF", got)
	}
}
