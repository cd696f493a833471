// Package sched couples the CPU goroutine and the timing goroutine.
//
// The CPU side produces cycles, the timing side consumes them in the same
// order; a single pair of monotonically increasing counters is the
// synchronization token. The CPU may run at most one scanline (MaxLag
// cycles) ahead of the timing side. Writes to timing-owned register state
// travel through a bounded single-producer/single-consumer queue drained at
// advance boundaries, never by direct mutation from the CPU goroutine.
package sched

import (
	"sync"
	"sync/atomic"
)

// MaxLag is the bounded-lag window: one scanline worth of cycles.
const MaxLag = 1232

// writeQueueCap bounds the pending register-write queue. The producer
// blocks when it fills rather than dropping writes.
const writeQueueCap = 8192

// IOWrite is one queued store into timing-owned address space.
type IOWrite struct {
	Addr  uint32
	Width int // 1, 2 or 4 bytes
	Val   uint32
}

// Bridge is the only state both execution contexts may touch. Everything
// hangs off one mutex/cond pair so that "CPU parked" has a single meaning:
// the CPU goroutine is guaranteed not to touch any bus or register state
// until released. A CPU goroutine blocked in any of the waits below counts
// as parked, which is what lets HoldCPU (DMA) and the timing-side register
// lock coexist without deadlock.
type Bridge struct {
	mu   sync.Mutex
	cond *sync.Cond

	produced uint64 // cycles emitted by the CPU context
	consumed uint64 // cycles applied by the timing context

	queue []IOWrite // SPSC register-write queue

	regsBusy  bool   // timing-owned state locked (by either side)
	regsByCPU bool   // the CPU context holds the timing-state lock
	holdReq   bool   // timing context wants the CPU parked (DMA)
	cpuParked bool

	stopped atomic.Bool

	frames chan []byte
	input  atomic.Uint32 // keypad snapshot from the presentation layer
}

func New() *Bridge {
	b := &Bridge{
		queue:  make([]IOWrite, 0, 64),
		frames: make(chan []byte, 1),
	}
	b.cond = sync.NewCond(&b.mu)
	b.input.Store(0x03FF) // all keys released
	return b
}

// Produce records n cycles of CPU progress and blocks while the CPU is more
// than MaxLag ahead of the timing context, or while a hold is requested.
// Returns false once the bridge is stopped.
func (b *Bridge) Produce(n int) bool {
	if n < 0 {
		panic("sched: cycle counter would go backward")
	}
	b.mu.Lock()
	b.produced += uint64(n)
	b.cond.Broadcast()
	for !b.stopped.Load() && (b.produced-b.consumed > MaxLag || b.holdReq) {
		b.parkHere()
	}
	b.cpuParked = false
	b.mu.Unlock()
	return !b.stopped.Load()
}

// parkHere marks the CPU as parked and waits once. Caller holds mu.
func (b *Bridge) parkHere() {
	b.cpuParked = true
	b.cond.Broadcast()
	b.cond.Wait()
}

// Park marks the CPU context as parked without producing cycles: the
// calling goroutine promises not to touch bus or register state until it
// calls Unpark. Used around a debugger suspension and the pause toggle.
// The timing context drains its remaining lag and stalls; a DMA hold
// proceeds against a parked CPU immediately.
func (b *Bridge) Park() bool {
	b.mu.Lock()
	b.cpuParked = true
	b.cond.Broadcast()
	b.mu.Unlock()
	return !b.stopped.Load()
}

// Unpark returns the CPU context to the bus. Waits out an in-flight hold:
// the CPU may not leave the parked state while DMA owns the bus.
func (b *Bridge) Unpark() {
	b.mu.Lock()
	for !b.stopped.Load() && b.holdReq {
		b.cond.Wait()
	}
	b.cpuParked = false
	b.cond.Broadcast()
	b.mu.Unlock()
}

// AwaitCycles blocks until the timing context has cycles to consume, then
// claims and returns them. Returns 0 once the bridge is stopped.
func (b *Bridge) AwaitCycles() int {
	b.mu.Lock()
	for !b.stopped.Load() && b.produced == b.consumed {
		b.cond.Wait()
	}
	n := b.produced - b.consumed
	b.consumed = b.produced
	b.cond.Broadcast()
	b.mu.Unlock()
	if b.stopped.Load() {
		return 0
	}
	return int(n)
}

// LockRegsCPU acquires the timing-state lock on behalf of the CPU context
// (a read of a PPU/timer/IRQ register). While waiting, the CPU counts as
// parked so a concurrent DMA hold cannot deadlock against it.
func (b *Bridge) LockRegsCPU() {
	b.mu.Lock()
	for !b.stopped.Load() && (b.regsBusy || b.holdReq) {
		b.parkHere()
	}
	b.cpuParked = false
	b.regsBusy = true
	b.regsByCPU = true
	b.mu.Unlock()
}

// LockRegsTiming acquires the timing-state lock on behalf of the timing
// context, held across a whole advance chunk.
func (b *Bridge) LockRegsTiming() {
	b.mu.Lock()
	for !b.stopped.Load() && b.regsBusy {
		b.cond.Wait()
	}
	b.regsBusy = true
	b.regsByCPU = false
	b.mu.Unlock()
}

// UnlockRegs releases the timing-state lock.
func (b *Bridge) UnlockRegs() {
	b.mu.Lock()
	b.regsBusy = false
	b.cond.Broadcast()
	b.mu.Unlock()
}

// HoldCPU parks the CPU context at its next step boundary, runs fn while it
// is parked, and releases it. Used for DMA transfers, which halt the CPU on
// hardware. Must be called from the timing context.
func (b *Bridge) HoldCPU(fn func()) {
	b.mu.Lock()
	if b.regsBusy && b.regsByCPU {
		// the CPU context itself triggered this (applying its own queued
		// writes before a read); it is off the bus already, run directly
		b.mu.Unlock()
		fn()
		return
	}
	b.holdReq = true
	b.cond.Broadcast()
	for !b.stopped.Load() && !b.cpuParked {
		b.cond.Wait()
	}
	stopped := b.stopped.Load()
	b.mu.Unlock()

	if !stopped {
		fn()
	}

	b.mu.Lock()
	b.holdReq = false
	b.cond.Broadcast()
	b.mu.Unlock()
}

// QueueWrite appends a register write for the timing context. Blocks if the
// queue is full (the timing side is at most one scanline behind, so this
// resolves quickly).
func (b *Bridge) QueueWrite(w IOWrite) {
	b.mu.Lock()
	for !b.stopped.Load() && len(b.queue) >= writeQueueCap {
		b.parkHere()
	}
	b.cpuParked = false
	b.queue = append(b.queue, w)
	b.mu.Unlock()
}

// DrainWrites applies all queued writes through fn, in order. The timing
// context calls this at every advance boundary; the bus also calls it,
// holding the timing-state lock, before a CPU read of timing-owned state so
// reads observe the CPU's own prior writes.
func (b *Bridge) DrainWrites(fn func(IOWrite)) {
	b.mu.Lock()
	pending := b.queue
	b.queue = make([]IOWrite, 0, 64)
	b.cond.Broadcast()
	b.mu.Unlock()
	for _, w := range pending {
		fn(w)
	}
}

// PublishFrame hands a completed frame buffer to the presentation side
// without blocking: if the consumer has not taken the previous frame yet,
// the new one is dropped (drop-newest).
func (b *Bridge) PublishFrame(fb []byte) {
	select {
	case b.frames <- fb:
	default:
	}
}

// Frames is the presentation-side receive channel.
func (b *Bridge) Frames() <-chan []byte { return b.frames }

// SetInput publishes a keypad snapshot (KEYINPUT encoding, bits low while
// pressed).
func (b *Bridge) SetInput(keys uint16) { b.input.Store(uint32(keys)) }

// Input returns the latest keypad snapshot.
func (b *Bridge) Input() uint16 { return uint16(b.input.Load()) }

// Stop requests cooperative shutdown of both contexts.
func (b *Bridge) Stop() {
	b.stopped.Store(true)
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Stopped reports whether shutdown has been requested.
func (b *Bridge) Stopped() bool { return b.stopped.Load() }

// Cycles returns the total cycles produced so far.
func (b *Bridge) Cycles() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.produced
}

// Lag returns produced minus consumed cycles.
func (b *Bridge) Lag() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.produced - b.consumed)
}
