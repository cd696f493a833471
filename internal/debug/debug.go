// Package debug provides the optional breakpoint debugger, stack backtraces
// and an ARM/Thumb disassembler. It has no dependency on the emulation core:
// the machine hands it register snapshots and a memory reader.
package debug

import (
	"fmt"
	"sync"
)

// Snapshot is the CPU register file at a suspension point. R[15] is the
// address of the next instruction to execute.
type Snapshot struct {
	R    [16]uint32
	CPSR uint32
}

// Thumb reports whether the snapshot was taken in Thumb state.
func (s Snapshot) Thumb() bool { return s.CPSR&(1<<5) != 0 }

// Event is surfaced when execution reaches a breakpoint, before the
// instruction at PC executes.
type Event struct {
	PC   uint32
	Regs Snapshot
}

// Debugger holds the breakpoint set and the suspend/resume handshake.
// The CPU goroutine calls ShouldStop and Suspend; the console goroutine
// consumes Events and calls Continue or StepOne.
type Debugger struct {
	mu     sync.Mutex
	points map[uint32]struct{}
	step   bool

	mapped func(addr uint32) bool
	events chan Event
	resume chan struct{}
}

// New builds a debugger. mapped reports whether an address decodes to a
// real memory region; a breakpoint outside mapped memory is a programming
// error and panics.
func New(mapped func(addr uint32) bool) *Debugger {
	return &Debugger{
		points: make(map[uint32]struct{}),
		mapped: mapped,
		events: make(chan Event, 1),
		resume: make(chan struct{}),
	}
}

func (d *Debugger) SetBreakpoint(addr uint32) {
	if d.mapped != nil && !d.mapped(addr) {
		panic(fmt.Sprintf("debug: breakpoint at unmapped address %08X", addr))
	}
	d.mu.Lock()
	d.points[addr] = struct{}{}
	d.mu.Unlock()
}

func (d *Debugger) ClearBreakpoint(addr uint32) {
	d.mu.Lock()
	delete(d.points, addr)
	d.mu.Unlock()
}

// ShouldStop is checked before every fetch. A pending single step stops
// unconditionally.
func (d *Debugger) ShouldStop(pc uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.step {
		d.step = false
		return true
	}
	_, ok := d.points[pc]
	return ok
}

// Suspend parks the calling goroutine until Continue or StepOne.
func (d *Debugger) Suspend(ev Event) {
	d.events <- ev
	<-d.resume
}

// Events delivers one Event per suspension.
func (d *Debugger) Events() <-chan Event { return d.events }

// Continue resumes execution until the next breakpoint.
func (d *Debugger) Continue() { d.resume <- struct{}{} }

// StepOne resumes for a single instruction, then stops again.
func (d *Debugger) StepOne() {
	d.mu.Lock()
	d.step = true
	d.mu.Unlock()
	d.resume <- struct{}{}
}
