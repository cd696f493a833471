package irq

import "sync/atomic"

// Interrupt sources, bit positions in IE/IF.
const (
	SrcVBlank  = 0
	SrcHBlank  = 1
	SrcVCount  = 2
	SrcTimer0  = 3
	SrcTimer1  = 4
	SrcTimer2  = 5
	SrcTimer3  = 6
	SrcSerial  = 7
	SrcDMA0    = 8
	SrcDMA1    = 9
	SrcDMA2    = 10
	SrcDMA3    = 11
	SrcKeypad  = 12
	SrcGamePak = 13
)

// Register offsets within the I/O block.
const (
	RegIE  = 0x200
	RegIF  = 0x202
	RegIME = 0x208
)

// Controller holds the IE/IF/IME block. Register state is mutated only by
// the timing context (queued CPU writes are applied there); the CPU context
// polls the combined deliverable flag through an atomic snapshot so the
// per-step check is a single load.
type Controller struct {
	enable  uint16 // IE
	pending uint16 // IF
	master  bool   // IME bit 0

	deliverable atomic.Bool
	wake        atomic.Bool // IE&IF nonzero, ignores IME; ends halt
}

func New() *Controller {
	return &Controller{}
}

// Request sets the pending flag for the given source. Called by the PPU,
// timers and DMA on the timing context.
func (c *Controller) Request(src int) {
	c.pending |= 1 << uint(src)
	c.publish()
}

// Pending reports whether an enabled interrupt is pending and IME is set.
// Safe to call from the CPU context; the CPU still applies its own I-bit.
func (c *Controller) Pending() bool {
	return c.deliverable.Load()
}

// ReadReg returns the 16-bit register at the given I/O offset.
func (c *Controller) ReadReg(off uint32) uint16 {
	switch off {
	case RegIE:
		return c.enable
	case RegIF:
		return c.pending
	case RegIME:
		if c.master {
			return 1
		}
		return 0
	}
	return 0
}

// WriteReg stores a 16-bit register. Writing IF clears the written bits
// (acknowledge) rather than storing them.
func (c *Controller) WriteReg(off uint32, val uint16) {
	switch off {
	case RegIE:
		c.enable = val & 0x3FFF
	case RegIF:
		c.pending &^= val
	case RegIME:
		c.master = val&1 != 0
	}
	c.publish()
}

// Wake reports whether an enabled interrupt is pending regardless of IME.
// The halt state ends on this condition.
func (c *Controller) Wake() bool {
	return c.wake.Load()
}

func (c *Controller) publish() {
	raised := c.enable&c.pending != 0
	c.deliverable.Store(c.master && raised)
	c.wake.Store(raised)
}
