package bus

import (
	"testing"

	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/apu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/irq"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/sched"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/timer"
)

func testBus(t *testing.T, rom []byte) *Bus {
	t.Helper()
	if rom == nil {
		rom = make([]byte, 0x200)
	}
	if len(rom) < 0xC0 {
		t.Fatalf("test ROM too small")
	}
	c, err := cart.Load(rom)
	if err != nil {
		t.Fatalf("cart.Load: %v", err)
	}
	ic := irq.New()
	p := ppu.New(func(src int) { ic.Request(src) })
	a := apu.New(48000)
	tm := timer.New(func(src int) { ic.Request(src) }, a.TimerOverflow)
	return New(nil, c, p, a, tm, ic, sched.New())
}

func testROM(marker string) []byte {
	rom := make([]byte, 0x400)
	copy(rom[0xA0:], "BUSTEST")
	if marker != "" {
		copy(rom[0x100:], marker)
	}
	return rom
}

func TestRAMRoundTrip(t *testing.T) {
	b := testBus(t, nil)
	b.Write8(0x02000000, 0x12)
	b.Write16(0x02000010, 0x3456)
	b.Write32(0x02000020, 0x789ABCDE)
	if got := b.Read8(0x02000000); got != 0x12 {
		t.Fatalf("EWRAM byte = %#02x", got)
	}
	if got := b.Read16(0x02000010); got != 0x3456 {
		t.Fatalf("EWRAM halfword = %#04x", got)
	}
	if got := b.Read32(0x02000020); got != 0x789ABCDE {
		t.Fatalf("EWRAM word = %#08x", got)
	}

	b.Write32(0x03000040, 0xCAFEF00D)
	if got := b.Read32(0x03000040); got != 0xCAFEF00D {
		t.Fatalf("IWRAM word = %#08x", got)
	}
	// mirrors
	if got := b.Read32(0x03008040); got != 0xCAFEF00D {
		t.Fatalf("IWRAM mirror = %#08x", got)
	}
}

func TestOpenBus(t *testing.T) {
	b := testBus(t, nil)
	if got := b.Read32(0x01000000); got != OpenBus {
		t.Fatalf("unmapped read = %#08x, want open bus", got)
	}
	b.Write32(0x01000000, 0x1234) // must not crash
	// BIOS absent: reads come back open
	if got := b.Read8(0x00000000); got != byte(OpenBus&0xFF) {
		t.Fatalf("empty BIOS read = %#02x", got)
	}
}

func TestROMRead(t *testing.T) {
	rom := testROM("")
	rom[0x200] = 0x77
	b := testBus(t, rom)
	if got := b.Read8(0x08000200); got != 0x77 {
		t.Fatalf("ROM read = %#02x", got)
	}
	// upper pak mirrors map to the same image
	if got := b.Read8(0x0A000200); got != 0x77 {
		t.Fatalf("ROM mirror read = %#02x", got)
	}
}

func TestIOWriteReadThroughQueue(t *testing.T) {
	b := testBus(t, nil)
	b.Write16(0x04000000, 0x0403) // DISPCNT is timing-owned, write queues
	if got := b.Read16(0x04000000); got != 0x0403 {
		t.Fatalf("DISPCNT readback = %#04x, queue not flushed before read", got)
	}
}

func TestPaletteByteWriteDuplicates(t *testing.T) {
	b := testBus(t, nil)
	b.Write8(0x05000002, 0x5A)
	if got := b.Read16(0x05000002); got != 0x5A5A {
		t.Fatalf("palette halfword = %#04x, want byte duplicated", got)
	}
}

func TestOAMByteWriteIgnored(t *testing.T) {
	b := testBus(t, nil)
	b.Write16(0x07000000, 0x1234)
	b.Write8(0x07000000, 0xFF)
	if got := b.Read16(0x07000000); got != 0x1234 {
		t.Fatalf("OAM halfword = %#04x, byte write should be dropped", got)
	}
}

func TestVRAMMirror(t *testing.T) {
	b := testBus(t, nil)
	b.Write16(0x06010000, 0xBEEF)
	if got := b.Read16(0x06018000); got != 0xBEEF {
		t.Fatalf("VRAM mirror read = %#04x", got)
	}
}

func TestSRAMByteAccess(t *testing.T) {
	b := testBus(t, testROM("SRAM_V113"))
	b.Write8(0x0E000123, 0x42)
	if got := b.Read8(0x0E000123); got != 0x42 {
		t.Fatalf("SRAM readback = %#02x", got)
	}
}

func TestIFWriteClears(t *testing.T) {
	b := testBus(t, nil)
	b.irq.Request(irq.SrcVBlank)
	b.irq.Request(irq.SrcTimer0)
	b.Write16(0x04000000|irq.RegIF, 1<<irq.SrcVBlank)
	if got := b.Read16(0x04000000 | irq.RegIF); got != 1<<irq.SrcTimer0 {
		t.Fatalf("IF = %#04x after write-clear", got)
	}
}

func TestKeypadRead(t *testing.T) {
	b := testBus(t, nil)
	if got := b.Read16(0x04000130); got != 0x03FF {
		t.Fatalf("KEYINPUT idle = %#04x", got)
	}
	b.bridge.SetInput(0x03FE)
	if got := b.Read16(0x04000130); got != 0x03FE {
		t.Fatalf("KEYINPUT = %#04x", got)
	}
}

func TestHaltCallback(t *testing.T) {
	b := testBus(t, nil)
	halted := false
	b.OnHalt(func() { halted = true })
	b.Write8(0x04000301, 0)
	if !halted {
		t.Fatalf("HALTCNT write did not trigger the halt callback")
	}
}

func TestWaits(t *testing.T) {
	cases := []struct {
		addr  uint32
		width int
		want  int
	}{
		{0x03000000, 4, 0},
		{0x02000000, 2, 2},
		{0x02000000, 4, 5},
		{0x08000000, 2, 4},
		{0x08000000, 4, 7},
		{0x0E000000, 1, 4},
		{0x05000000, 4, 1},
	}
	for _, c := range cases {
		if got := Waits(c.addr, c.width); got != c.want {
			t.Fatalf("Waits(%#08x, %d) = %d, want %d", c.addr, c.width, got, c.want)
		}
	}
}

func TestIFByteWriteClearsOnlyThatByte(t *testing.T) {
	b := testBus(t, nil)
	b.irq.Request(irq.SrcVBlank) // bit 0
	b.irq.Request(irq.SrcDMA0)   // bit 8
	b.Write8(0x04000000|irq.RegIF, 1<<irq.SrcVBlank)
	if got := b.Read16(0x04000000 | irq.RegIF); got != 1<<irq.SrcDMA0 {
		t.Fatalf("IF = %#04x after byte ack of bit 0, want %#04x", got, 1<<irq.SrcDMA0)
	}
	b.Write8(0x04000000|irq.RegIF+1, 1)
	if got := b.Read16(0x04000000 | irq.RegIF); got != 0 {
		t.Fatalf("IF = %#04x after byte ack of bit 8", got)
	}
}

func TestTimerReloadByteWrite(t *testing.T) {
	b := testBus(t, nil)
	b.Write16(0x04000000|timer.RegBase, 0x1234)   // reload
	b.Write16(0x04000000|timer.RegBase+2, 0x0080) // enable; counter runs
	b.Read16(0x04000000 | timer.RegBase)          // flush the queue
	b.timers.Tick(100)                            // counter drifts off the reload
	b.Write8(0x04000000|timer.RegBase, 0x56) // low reload byte only
	b.Write16(0x04000000|timer.RegBase+2, 0)
	b.Write16(0x04000000|timer.RegBase+2, 0x0080) // re-enable loads reload
	if got := b.Read16(0x04000000 | timer.RegBase); got != 0x1256 {
		t.Fatalf("counter = %#04x after reload byte write, want 0x1256", got)
	}
}
