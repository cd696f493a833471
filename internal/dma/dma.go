// Package dma implements the four transfer channels. Transfers always run
// on the timing goroutine while the CPU is held at a step boundary, which
// mirrors hardware: the CPU loses the bus for the duration of a transfer.
package dma

import (
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/apu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/irq"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/sched"
)

// register offsets relative to the IO base; each channel spans 12 bytes
const (
	RegBase = 0xB0
	RegEnd  = 0xE0
)

// Trigger identifies when a channel starts.
type Trigger int

const (
	TrigImmediate Trigger = iota
	TrigVBlank
	TrigHBlank
	TrigFifoEmpty // channels 1/2 only; "special" on other channels is idle
)

// address stepping modes, CNT_H bits 5-6 (dst) and 7-8 (src)
const (
	addrInc = iota
	addrDec
	addrFixed
	addrIncReload
)

const srcDMA0 = 8 // IF bit of channel 0; channels 1-3 follow

type channel struct {
	sad uint32 // source, 28 bits
	dad uint32 // destination, 28 bits
	cnt uint16 // unit count as written
	ctl uint16

	// latched at enable time
	src   uint32
	dst   uint32
	count int
}

func (c *channel) enabled() bool { return c.ctl&0x8000 != 0 }
func (c *channel) repeat() bool  { return c.ctl&0x0200 != 0 }
func (c *channel) word() bool    { return c.ctl&0x0400 != 0 }

func (c *channel) trigger() Trigger {
	switch c.ctl >> 12 & 3 {
	case 0:
		return TrigImmediate
	case 1:
		return TrigVBlank
	case 2:
		return TrigHBlank
	default:
		return TrigFifoEmpty
	}
}

type Engine struct {
	ch     [4]channel
	bus    *bus.Bus
	irq    *irq.Controller
	apu    *apu.APU
	eeprom *cart.EEPROM // nil unless the pak carries one
	bridge *sched.Bridge
}

func New(b *bus.Bus, ic *irq.Controller, a *apu.APU, ee *cart.EEPROM, br *sched.Bridge) *Engine {
	return &Engine{bus: b, irq: ic, apu: a, eeprom: ee, bridge: br}
}

// ReadReg reads a DMA register. Source, destination and count read back as
// zero like on hardware; only CNT_H is visible.
func (e *Engine) ReadReg(off uint32) uint16 {
	i := int(off-RegBase) / 12
	if (off-RegBase)%12 == 10 {
		return e.ch[i].ctl
	}
	return 0
}

// WriteReg stores a DMA register. Enabling a channel latches its addresses
// and count; an immediate-trigger channel runs at once.
func (e *Engine) WriteReg(off uint32, val uint16) {
	i := int(off-RegBase) / 12
	c := &e.ch[i]
	switch (off - RegBase) % 12 {
	case 0:
		c.sad = c.sad&0xFFFF0000 | uint32(val)
	case 2:
		c.sad = c.sad&0xFFFF | uint32(val&0x0FFF)<<16
	case 4:
		c.dad = c.dad&0xFFFF0000 | uint32(val)
	case 6:
		c.dad = c.dad&0xFFFF | uint32(val&0x0FFF)<<16
	case 8:
		c.cnt = val
	case 10:
		wasOn := c.enabled()
		c.ctl = val
		if !wasOn && c.enabled() {
			e.latch(i)
			if c.trigger() == TrigImmediate {
				e.run(i)
			}
		}
	}
}

func (e *Engine) latch(i int) {
	c := &e.ch[i]
	c.src = c.sad & 0x0FFFFFFF
	c.dst = c.dad & 0x0FFFFFFF
	c.count = e.unitCount(i)
}

// unitCount decodes the transfer length: 0 means the channel maximum
// (0x4000, or 0x10000 on channel 3).
func (e *Engine) unitCount(i int) int {
	max := 0x4000
	if i == 3 {
		max = 0x10000
	}
	n := int(e.ch[i].cnt) & (max - 1)
	if n == 0 {
		n = max
	}
	return n
}

// OnVBlank starts every enabled channel waiting on the VBlank trigger.
// Called by the PPU at line 160.
func (e *Engine) OnVBlank() {
	for i := range e.ch {
		if e.ch[i].enabled() && e.ch[i].trigger() == TrigVBlank {
			e.run(i)
		}
	}
}

// OnHBlank starts every enabled channel waiting on the HBlank trigger.
// Visible lines only.
func (e *Engine) OnHBlank(int) {
	for i := range e.ch {
		if e.ch[i].enabled() && e.ch[i].trigger() == TrigHBlank {
			e.run(i)
		}
	}
}

// PumpFifo services the FIFO-refill trigger for channels 1 and 2; called
// after timer ticks on the timing goroutine.
func (e *Engine) PumpFifo() {
	for i := 1; i <= 2; i++ {
		c := &e.ch[i]
		if !c.enabled() || c.trigger() != TrigFifoEmpty {
			continue
		}
		which := i - 1
		if e.apu == nil || e.apu.FifoRefillable(which) {
			e.run(i)
		}
	}
}

// run executes one transfer for channel i while the CPU is held. Channel
// order in the register file is priority order, and since transfers run to
// completion here, channel 0 can never be preempted.
func (e *Engine) run(i int) {
	e.bridge.HoldCPU(func() { e.transfer(i) })
}

func (e *Engine) transfer(i int) {
	c := &e.ch[i]

	fifoMode := i >= 1 && i <= 2 && c.trigger() == TrigFifoEmpty
	count := c.count
	word := c.word()
	if fifoMode {
		count = 4 // four words per refill burst
		word = true
	}

	if e.eeprom != nil && (c.dst>>24 == 0x0D || c.src>>24 == 0x0D) {
		e.eeprom.SizeHint(count)
	}

	step := uint32(2)
	if word {
		step = 4
	}
	srcCtl := int(c.ctl >> 7 & 3)
	dstCtl := int(c.ctl >> 5 & 3)
	if fifoMode {
		dstCtl = addrFixed
	}

	for n := 0; n < count; n++ {
		if word {
			e.bus.TimingWrite32(c.dst, e.bus.TimingRead32(c.src))
		} else {
			e.bus.TimingWrite16(c.dst, e.bus.TimingRead16(c.src))
		}
		c.src = stepAddr(c.src, srcCtl, step)
		c.dst = stepAddr(c.dst, dstCtl, step)
	}

	if c.ctl&0x4000 != 0 {
		e.irq.Request(srcDMA0 + i)
	}

	if c.repeat() && c.trigger() != TrigImmediate {
		c.count = e.unitCount(i)
		if dstCtl == addrIncReload {
			c.dst = c.dad & 0x0FFFFFFF
		}
	} else {
		c.ctl &^= 0x8000
	}
}

func stepAddr(a uint32, ctl int, step uint32) uint32 {
	switch ctl {
	case addrInc, addrIncReload:
		return a + step
	case addrDec:
		return a - step
	default:
		return a
	}
}
