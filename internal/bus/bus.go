// Package bus implements the memory map and routes CPU accesses to RAM,
// the cartridge and the hardware registers. Accesses to state owned by the
// timing goroutine (display, sound, DMA, timer and interrupt registers plus
// the video memories) never touch it directly from the CPU side: writes are
// queued through the bridge, reads take the timing-state lock and flush the
// queue first so the CPU observes its own stores.
package bus

import (
	"encoding/binary"

	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/apu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/irq"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/sched"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/timer"
)

// OpenBus is the pattern unmapped reads return, replicated per byte lane.
const OpenBus uint32 = 0xFFFFFFFF

const (
	ewramSize = 256 * 1024
	iwramSize = 32 * 1024
	biosLimit = 16 * 1024
)

// IODevice is a 16-bit register block. The DMA engine hangs off the bus
// through this to avoid an import cycle.
type IODevice interface {
	ReadReg(off uint32) uint16
	WriteReg(off uint32, val uint16)
}

type Bus struct {
	bios  []byte
	ewram [ewramSize]byte
	iwram [iwramSize]byte

	cart   *cart.Cartridge
	ppu    *ppu.PPU
	apu    *apu.APU
	timers *timer.Timers
	irq    *irq.Controller
	dma    IODevice

	bridge *sched.Bridge

	waitcnt uint16
	keycnt  uint16
	postflg byte

	onHalt func()
}

func New(bios []byte, c *cart.Cartridge, p *ppu.PPU, a *apu.APU, t *timer.Timers, ic *irq.Controller, br *sched.Bridge) *Bus {
	if len(bios) > biosLimit {
		bios = bios[:biosLimit]
	}
	return &Bus{bios: bios, cart: c, ppu: p, apu: a, timers: t, irq: ic, bridge: br}
}

// SetDMA attaches the DMA register block.
func (b *Bus) SetDMA(d IODevice) { b.dma = d }

// OnHalt registers the callback for HALTCNT writes.
func (b *Bus) OnHalt(fn func()) { b.onHalt = fn }

// HasBIOS reports whether a BIOS image is loaded; without one the CPU
// high-level-emulates the system calls.
func (b *Bus) HasBIOS() bool { return len(b.bios) > 0 }

// Waits returns the wait-state cost of one access; the CPU adds it to the
// base cycle per memory operation.
func Waits(addr uint32, width int) int {
	switch addr >> 24 {
	case 0x02:
		if width == 4 {
			return 5
		}
		return 2
	case 0x05, 0x06:
		if width == 4 {
			return 1
		}
		return 0
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D:
		if width == 4 {
			return 7
		}
		return 4
	case 0x0E, 0x0F:
		return 4
	default:
		return 0
	}
}

// timingOwned reports whether the address belongs to state advanced by the
// timing goroutine.
func (b *Bus) timingOwned(addr uint32) bool {
	switch addr >> 24 {
	case 0x05, 0x06, 0x07:
		return true
	case 0x04:
		off := addr & 0x3FF
		switch {
		case off < 0x58: // display
			return true
		case off >= 0x60 && off < 0xA8: // sound
			return true
		case off >= 0xB0 && off < 0xE0: // DMA
			return true
		case off >= timer.RegBase && off < timer.RegEnd:
			return true
		case off == irq.RegIE || off == irq.RegIF || off == irq.RegIME:
			return true
		}
	}
	return false
}

func (b *Bus) Read8(addr uint32) byte {
	if b.timingOwned(addr) {
		b.bridge.LockRegsCPU()
		defer b.bridge.UnlockRegs()
		b.bridge.DrainWrites(b.Apply)
	}
	return b.load8(addr)
}

func (b *Bus) Read16(addr uint32) uint16 {
	addr &^= 1
	if b.timingOwned(addr) {
		b.bridge.LockRegsCPU()
		defer b.bridge.UnlockRegs()
		b.bridge.DrainWrites(b.Apply)
	}
	return b.load16(addr)
}

func (b *Bus) Read32(addr uint32) uint32 {
	addr &^= 3
	if b.timingOwned(addr) {
		b.bridge.LockRegsCPU()
		defer b.bridge.UnlockRegs()
		b.bridge.DrainWrites(b.Apply)
	}
	return uint32(b.load16(addr)) | uint32(b.load16(addr+2))<<16
}

func (b *Bus) Write8(addr uint32, v byte) {
	if b.timingOwned(addr) {
		b.bridge.QueueWrite(sched.IOWrite{Addr: addr, Width: 1, Val: uint32(v)})
		return
	}
	b.store8(addr, v)
}

func (b *Bus) Write16(addr uint32, v uint16) {
	addr &^= 1
	if b.timingOwned(addr) {
		b.bridge.QueueWrite(sched.IOWrite{Addr: addr, Width: 2, Val: uint32(v)})
		return
	}
	b.store16(addr, v)
}

func (b *Bus) Write32(addr uint32, v uint32) {
	addr &^= 3
	if b.timingOwned(addr) {
		b.bridge.QueueWrite(sched.IOWrite{Addr: addr, Width: 4, Val: v})
		return
	}
	b.store16(addr, uint16(v))
	b.store16(addr+2, uint16(v>>16))
}

// Apply performs one queued write against the real state. Called on the
// timing goroutine with the timing-state lock held, or from the CPU's
// flush-before-read path under the same lock.
func (b *Bus) Apply(w sched.IOWrite) {
	switch w.Width {
	case 1:
		b.store8(w.Addr, byte(w.Val))
	case 2:
		b.store16(w.Addr, uint16(w.Val))
	case 4:
		if w.Addr>>24 == 0x04 {
			off := w.Addr & 0x3FF
			if off == apu.RegFifoA || off == apu.RegFifoB {
				b.apu.WriteFifo(off, w.Val, 4)
				return
			}
		}
		b.store16(w.Addr, uint16(w.Val))
		b.store16(w.Addr+2, uint16(w.Val>>16))
	}
}

// TimingRead16/32 and TimingWrite16/32 give the timing goroutine direct
// access for DMA transfers while the CPU is held, and the debugger direct
// inspection while it is parked.

func (b *Bus) TimingRead16(addr uint32) uint16 { return b.load16(addr &^ 1) }

func (b *Bus) TimingRead32(addr uint32) uint32 {
	addr &^= 3
	return uint32(b.load16(addr)) | uint32(b.load16(addr+2))<<16
}

func (b *Bus) TimingWrite16(addr uint32, v uint16) { b.store16(addr&^1, v) }

func (b *Bus) TimingWrite32(addr uint32, v uint32) {
	addr &^= 3
	b.store16(addr, uint16(v))
	b.store16(addr+2, uint16(v>>16))
}

// TimingRead8 is the byte variant, used by the debugger's memory dump.
func (b *Bus) TimingRead8(addr uint32) byte { return b.load8(addr) }

// load8/16 and store8/16 access the backing state directly. The caller is
// responsible for holding the timing-state lock where it matters.

func (b *Bus) load8(addr uint32) byte {
	switch addr >> 24 {
	case 0x00:
		if int(addr) < len(b.bios) {
			return b.bios[addr]
		}
	case 0x02:
		return b.ewram[addr&(ewramSize-1)]
	case 0x03:
		return b.iwram[addr&(iwramSize-1)]
	case 0x04:
		v := b.ioRead16(addr & 0x3FE)
		return byte(v >> (8 * (addr & 1)))
	case 0x05:
		return b.ppu.Palette()[addr&0x3FF]
	case 0x06:
		return b.ppu.VRAM()[vramOff(addr)]
	case 0x07:
		return b.ppu.OAM()[addr&0x3FF]
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C:
		return b.cart.ReadROM(addr & 0x01FFFFFF)
	case 0x0D:
		if e, ok := b.cart.Backup.(*cart.EEPROM); ok {
			return e.Read(addr & 0xFFFF)
		}
		return b.cart.ReadROM(addr & 0x01FFFFFF)
	case 0x0E, 0x0F:
		if b.cart.Backup != nil {
			return b.cart.Backup.Read(addr & 0xFFFF)
		}
	}
	return byte(OpenBus & 0xFF)
}

func (b *Bus) load16(addr uint32) uint16 {
	addr &^= 1
	return uint16(b.load8(addr)) | uint16(b.load8(addr+1))<<8
}

func (b *Bus) store8(addr uint32, v byte) {
	switch addr >> 24 {
	case 0x02:
		b.ewram[addr&(ewramSize-1)] = v
	case 0x03:
		b.iwram[addr&(iwramSize-1)] = v
	case 0x04:
		b.ioWrite8(addr&0x3FF, v)
	case 0x05:
		// byte writes land in both halves of the halfword
		pal := b.ppu.Palette()
		pal[addr&0x3FE] = v
		pal[addr&0x3FE|1] = v
	case 0x06:
		off := vramOff(addr) &^ 1
		vram := b.ppu.VRAM()
		vram[off] = v
		vram[off+1] = v
	case 0x07:
		// byte writes to OAM are dropped by hardware
	case 0x0D:
		if e, ok := b.cart.Backup.(*cart.EEPROM); ok {
			e.Write(addr&0xFFFF, v)
		}
	case 0x0E, 0x0F:
		if b.cart.Backup != nil {
			b.cart.Backup.Write(addr&0xFFFF, v)
		}
	}
}

func (b *Bus) store16(addr uint32, v uint16) {
	addr &^= 1
	switch addr >> 24 {
	case 0x02:
		binary.LittleEndian.PutUint16(b.ewram[addr&(ewramSize-1):], v)
	case 0x03:
		binary.LittleEndian.PutUint16(b.iwram[addr&(iwramSize-1):], v)
	case 0x04:
		b.ioWrite16(addr&0x3FE, v)
	case 0x05:
		binary.LittleEndian.PutUint16(b.ppu.Palette()[addr&0x3FE:], v)
	case 0x06:
		binary.LittleEndian.PutUint16(b.ppu.VRAM()[vramOff(addr):], v)
	case 0x07:
		binary.LittleEndian.PutUint16(b.ppu.OAM()[addr&0x3FE:], v)
	case 0x0D:
		if e, ok := b.cart.Backup.(*cart.EEPROM); ok {
			e.Write(addr&0xFFFF, byte(v))
		}
	case 0x0E, 0x0F:
		b.store8(addr, byte(v))
	}
}

// vramOff folds the 128K mirror space onto the 96K of VRAM: the upper 32K
// window repeats.
func vramOff(addr uint32) uint32 {
	off := addr & 0x1FFFF
	if off >= ppu.VRAMSize {
		off -= 0x8000
	}
	return off
}

func (b *Bus) ioRead16(off uint32) uint16 {
	switch {
	case off < 0x58:
		return b.ppu.ReadReg(off)
	case off >= 0x60 && off < 0xA8:
		return b.apu.ReadReg(off)
	case off >= 0xB0 && off < 0xE0:
		if b.dma != nil {
			return b.dma.ReadReg(off)
		}
	case off >= timer.RegBase && off < timer.RegEnd:
		return b.timers.ReadReg(off)
	case off == 0x130:
		return b.bridge.Input()
	case off == 0x132:
		return b.keycnt
	case off == irq.RegIE || off == irq.RegIF || off == irq.RegIME:
		return b.irq.ReadReg(off)
	case off == 0x204:
		return b.waitcnt
	case off == 0x300:
		return uint16(b.postflg)
	}
	return 0
}

func (b *Bus) ioWrite16(off uint32, v uint16) {
	switch {
	case off < 0x58:
		b.ppu.WriteReg(off, v)
	case off == apu.RegFifoA || off == apu.RegFifoA+2 || off == apu.RegFifoB || off == apu.RegFifoB+2:
		b.apu.WriteFifo(off&^2, uint32(v), 2)
	case off >= 0x60 && off < 0xA8:
		b.apu.WriteReg(off, v)
	case off >= 0xB0 && off < 0xE0:
		if b.dma != nil {
			b.dma.WriteReg(off, v)
		}
	case off >= timer.RegBase && off < timer.RegEnd:
		b.timers.WriteReg(off, v)
	case off == 0x132:
		b.keycnt = v
	case off == irq.RegIE || off == irq.RegIF || off == irq.RegIME:
		b.irq.WriteReg(off, v)
	case off == 0x204:
		b.waitcnt = v
	case off == 0x300:
		b.postflg = byte(v)
	}
}

func (b *Bus) ioWrite8(off uint32, v byte) {
	if off == 0x301 {
		if b.onHalt != nil {
			b.onHalt()
		}
		return
	}
	if off == 0x300 {
		b.postflg = v
		return
	}
	if off == irq.RegIF || off == irq.RegIF+1 {
		// IF is write-clear: a byte ack must not fold the other byte's
		// pending bits into the acknowledge mask
		mask := uint16(v)
		if off&1 != 0 {
			mask <<= 8
		}
		b.irq.WriteReg(irq.RegIF, mask)
		return
	}
	if off >= timer.RegBase && off < timer.RegEnd && off&2 == 0 {
		// merge into the reload half, not the live counter the register
		// reads back
		cur := b.timers.Reload(int(off-timer.RegBase) / 4)
		if off&1 == 0 {
			cur = cur&0xFF00 | uint16(v)
		} else {
			cur = cur&0x00FF | uint16(v)<<8
		}
		b.timers.WriteReg(off&^1, cur)
		return
	}
	// read-modify-write of the containing register
	cur := b.ioRead16(off &^ 1)
	if off&1 == 0 {
		cur = cur&0xFF00 | uint16(v)
	} else {
		cur = cur&0x00FF | uint16(v)<<8
	}
	b.ioWrite16(off&^1, cur)
}
