package emu

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/apu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/cpu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/debug"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/dma"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/irq"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/sched"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/timer"
)

type Buttons struct {
	A, B, Select, Start   bool
	Right, Left, Up, Down bool
	R, L                  bool
}

// Machine owns the full core: CPU context and timing context, joined by the
// scheduler bridge. Start runs both on their own goroutines; RunFrames drives
// everything on the caller's goroutine for headless use.
type Machine struct {
	cfg    Config
	bridge *sched.Bridge

	cart   *cart.Cartridge
	ic     *irq.Controller
	ppu    *ppu.PPU
	apu    *apu.APU
	timers *timer.Timers
	bus    *bus.Bus
	dma    *dma.Engine
	cpu    *cpu.CPU
	dbg    *debug.Debugger

	romPath string
	frames  atomic.Uint64
	paused  atomic.Bool
	wg      sync.WaitGroup
}

func New(cfg Config) *Machine {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	return &Machine{cfg: cfg}
}

// LoadCartridge wires the whole core around a ROM image. bios may be nil;
// without it the CPU boots straight into the pak with HLE syscalls.
func (m *Machine) LoadCartridge(rom, bios []byte) error {
	c, err := cart.Load(rom)
	if err != nil {
		return err
	}

	br := sched.New()
	ic := irq.New()
	p := ppu.New(func(src int) { ic.Request(src) })
	a := apu.New(m.cfg.SampleRate)
	tm := timer.New(func(src int) { ic.Request(src) }, a.TimerOverflow)
	b := bus.New(bios, c, p, a, tm, ic, br)

	var ee *cart.EEPROM
	if e, ok := c.Backup.(*cart.EEPROM); ok {
		ee = e
	}
	engine := dma.New(b, ic, a, ee, br)
	b.SetDMA(engine)

	core := cpu.New(b, ic)
	b.OnHalt(core.Halt)

	p.OnHBlank(engine.OnHBlank)
	p.OnVBlank(engine.OnVBlank)
	p.OnFrame(func(fb []byte) {
		m.frames.Add(1)
		br.PublishFrame(fb)
	})

	m.bridge = br
	m.cart = c
	m.ic = ic
	m.ppu = p
	m.apu = a
	m.timers = tm
	m.bus = b
	m.dma = engine
	m.cpu = core
	return nil
}

// AttachDebugger builds a debugger bound to this machine's address map and
// switches the CPU loop to the breakpoint-checking variant. Call before
// Start.
func (m *Machine) AttachDebugger() *debug.Debugger {
	m.dbg = debug.New(m.mapped)
	return m.dbg
}

// Start spawns the CPU and timing goroutines.
func (m *Machine) Start() {
	m.wg.Add(2)
	if m.dbg != nil {
		go m.runCPUDebug()
	} else {
		go m.runCPU()
	}
	go m.runTiming()
}

// Stop shuts both goroutines down cooperatively and waits for them.
func (m *Machine) Stop() {
	m.bridge.Stop()
	m.wg.Wait()
}

// SetPaused parks the CPU context at its next step boundary until resumed.
// The timing context drains its remaining lag and stalls with it.
func (m *Machine) SetPaused(on bool) { m.paused.Store(on) }

func (m *Machine) Paused() bool { return m.paused.Load() }

func (m *Machine) pausePoint() {
	if !m.paused.Load() {
		return
	}
	if !m.bridge.Park() {
		return
	}
	for m.paused.Load() && !m.bridge.Stopped() {
		time.Sleep(time.Millisecond)
	}
	m.bridge.Unpark()
}

func (m *Machine) runCPU() {
	defer m.wg.Done()
	for !m.bridge.Stopped() {
		m.pausePoint()
		if !m.bridge.Produce(m.cpu.Step()) {
			return
		}
	}
}

// runCPUDebug is the breakpoint-checking loop variant. The plain loop omits
// the check entirely rather than branching on a disabled flag.
func (m *Machine) runCPUDebug() {
	defer m.wg.Done()
	for !m.bridge.Stopped() {
		m.pausePoint()
		pc := m.cpu.PC()
		if m.dbg.ShouldStop(pc) {
			if !m.bridge.Park() {
				return
			}
			m.dbg.Suspend(debug.Event{PC: pc, Regs: m.CPUSnapshot()})
			m.bridge.Unpark()
		}
		if !m.bridge.Produce(m.cpu.Step()) {
			return
		}
	}
}

func (m *Machine) runTiming() {
	defer m.wg.Done()
	for {
		n := m.bridge.AwaitCycles()
		if n == 0 && m.bridge.Stopped() {
			return
		}
		m.bridge.LockRegsTiming()
		m.bridge.DrainWrites(m.bus.Apply)
		m.ppu.Tick(n)
		m.timers.Tick(n)
		m.apu.Tick(n)
		m.dma.PumpFifo()
		m.bridge.UnlockRegs()
	}
}

// StepInstruction executes one instruction and advances the timing state
// behind it, all on the caller's goroutine. The regs lock is held as the CPU
// context across the advance so queued writes and DMA holds resolve inline.
func (m *Machine) StepInstruction() int {
	cyc := m.cpu.Step()
	m.bridge.LockRegsCPU()
	m.bridge.DrainWrites(m.bus.Apply)
	m.ppu.Tick(cyc)
	m.timers.Tick(cyc)
	m.apu.Tick(cyc)
	m.dma.PumpFifo()
	m.bridge.UnlockRegs()
	return cyc
}

// RunFrames drives the machine single-threaded until n more frames have
// completed.
func (m *Machine) RunFrames(n int) {
	target := m.frames.Load() + uint64(n)
	for m.frames.Load() < target {
		m.StepInstruction()
	}
}

// Frames exposes the completed-frame handoff channel.
func (m *Machine) Frames() <-chan []byte { return m.bridge.Frames() }

// Frame returns the most recently completed frame, RGBA 240x160.
func (m *Machine) Frame() []byte { return m.ppu.Frame() }

// FrameCount reports completed frames since power-on.
func (m *Machine) FrameCount() uint64 { return m.frames.Load() }

// SetButtons publishes an input snapshot. KEYINPUT is active-low.
func (m *Machine) SetButtons(b Buttons) {
	var down uint16
	if b.A {
		down |= 1 << 0
	}
	if b.B {
		down |= 1 << 1
	}
	if b.Select {
		down |= 1 << 2
	}
	if b.Start {
		down |= 1 << 3
	}
	if b.Right {
		down |= 1 << 4
	}
	if b.Left {
		down |= 1 << 5
	}
	if b.Up {
		down |= 1 << 6
	}
	if b.Down {
		down |= 1 << 7
	}
	if b.R {
		down |= 1 << 8
	}
	if b.L {
		down |= 1 << 9
	}
	m.bridge.SetInput(^down & 0x03FF)
}

// PullStereo drains up to max interleaved L,R sample pairs for the audio
// backend.
func (m *Machine) PullStereo(max int) []int16 { return m.apu.PullStereo(max) }

// StereoAvailable reports buffered sample pairs.
func (m *Machine) StereoAvailable() int { return m.apu.StereoAvailable() }

// Header returns the parsed cartridge header.
func (m *Machine) Header() *cart.Header { return m.cart.Header }

// ROMPath remembers the loaded ROM file for save association.
func (m *Machine) ROMPath() string        { return m.romPath }
func (m *Machine) SetROMPath(path string) { m.romPath = path }

// LoadSaveFile restores backup memory from disk; a missing file is fine.
func (m *Machine) LoadSaveFile(path string) error { return m.cart.LoadSave(path) }

// WriteSaveFile persists backup memory to disk.
func (m *Machine) WriteSaveFile(path string) error { return m.cart.WriteSave(path) }

// CPUSnapshot captures the register file for the debugger.
func (m *Machine) CPUSnapshot() debug.Snapshot {
	r, cpsr := m.cpu.Snapshot()
	return debug.Snapshot{R: r, CPSR: cpsr}
}

// Backtrace recovers the call chain at the current suspension point.
func (m *Machine) Backtrace(mode debug.Mode) []debug.Frame {
	return debug.Backtrace(mode, m.CPUSnapshot(), m.bus.TimingRead32)
}

// RecentPCs exposes the execution trace for backtrace printing.
func (m *Machine) RecentPCs() []uint32 { return m.cpu.RecentPCs() }

// ReadWord reads emulated memory for the debug console.
func (m *Machine) ReadWord(addr uint32) uint32 { return m.bus.TimingRead32(addr) }

// mapped reports whether addr decodes to a real memory region; the debugger
// refuses breakpoints outside it.
func (m *Machine) mapped(addr uint32) bool {
	switch addr >> 24 {
	case 0x00:
		return addr < 0x4000
	case 0x02, 0x03, 0x04, 0x05, 0x06, 0x07:
		return true
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D:
		return true
	case 0x0E:
		return true
	}
	return false
}
