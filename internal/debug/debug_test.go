package debug

import (
	"strings"
	"testing"
	"time"
)

func TestBreakpointSetAndClear(t *testing.T) {
	d := New(func(addr uint32) bool { return addr < 0x10000000 })
	d.SetBreakpoint(0x08000000)
	if !d.ShouldStop(0x08000000) {
		t.Fatalf("breakpoint not hit")
	}
	if d.ShouldStop(0x08000004) {
		t.Fatalf("stopped at an address with no breakpoint")
	}
	d.ClearBreakpoint(0x08000000)
	if d.ShouldStop(0x08000000) {
		t.Fatalf("cleared breakpoint still hit")
	}
}

func TestUnmappedBreakpointPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("breakpoint on unmapped memory did not panic")
		}
	}()
	d := New(func(addr uint32) bool { return false })
	d.SetBreakpoint(0x12345678)
}

func TestSuspendResume(t *testing.T) {
	d := New(nil)
	d.SetBreakpoint(0x08000000)

	done := make(chan struct{})
	go func() {
		d.Suspend(Event{PC: 0x08000000})
		close(done)
	}()

	select {
	case ev := <-d.Events():
		if ev.PC != 0x08000000 {
			t.Fatalf("event PC = %08X", ev.PC)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event surfaced")
	}

	d.Continue()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Continue did not resume the suspended goroutine")
	}
}

func TestStepOneStopsAgain(t *testing.T) {
	d := New(nil)
	go func() {
		<-d.Events()
		d.StepOne()
	}()
	d.Suspend(Event{PC: 0x08000000})
	if !d.ShouldStop(0x08000004) {
		t.Fatalf("single step did not stop at the next instruction")
	}
	if d.ShouldStop(0x08000008) {
		t.Fatalf("step flag not consumed")
	}
}

func TestDisasmARM(t *testing.T) {
	cases := []struct {
		op   uint32
		pc   uint32
		want string
	}{
		{0xE3A00005, 0, "MOV R0,#0x5"},
		{0xE2801003, 0, "ADD R1,R0,#0x3"},
		{0xE2502005, 0, "SUBS R2,R0,#0x5"},
		{0xE1A01100, 0, "MOV R1,R0,LSL #2"},
		{0xE3500000, 0, "CMP R0,#0x0"},
		{0xE12FFF10, 0, "BX R0"},
		{0xE5901004, 0, "LDR R1,[R0,#0x4]"},
		{0xE92D4010, 0, "STMDB R13!,{R4,R14}"},
		{0xEB000001, 0x08000000, "BL 0x0800000C"},
		{0xEA000001, 0x08000000, "B 0x0800000C"},
		{0x0A000001, 0x08000000, "BEQ 0x0800000C"},
		{0xEF060000, 0, "SWI 0x06"},
		{0xE0020091, 0, "MUL R2,R1,R0"},
		{0xE10F0000, 0, "MRS R0,CPSR"},
	}
	for _, c := range cases {
		if got := DisasmARM(c.op, c.pc); got != c.want {
			t.Errorf("DisasmARM(%08X) = %q, want %q", c.op, got, c.want)
		}
	}
}

func TestDisasmThumb(t *testing.T) {
	cases := []struct {
		op   uint16
		pc   uint32
		want string
	}{
		{0x2005, 0, "MOV R0,#0x05"},
		{0x3003, 0, "ADD R0,#0x03"},
		{0x0081, 0, "LSL R1,R0,#2"},
		{0x1840, 0, "ADD R0,R0,R1"},
		{0x4770, 0, "BX R14"},
		{0xB403, 0, "PUSH {R0,R1}"},
		{0xBC03, 0, "POP {R0,R1}"},
		{0xB500, 0, "PUSH {LR}"},
		{0xDF06, 0, "SWI 0x06"},
		{0xD001, 0x03000000, "BEQ 0x03000006"},
	}
	for _, c := range cases {
		if got := DisasmThumb(c.op, c.pc); got != c.want {
			t.Errorf("DisasmThumb(%04X) = %q, want %q", c.op, got, c.want)
		}
	}
}

func TestBacktraceShallow(t *testing.T) {
	snap := Snapshot{}
	snap.R[14] = 0x08000120
	frames := Backtrace(Shallow, snap, nil)
	if len(frames) != 1 || frames[0].Return != 0x08000120 {
		t.Fatalf("shallow backtrace = %+v", frames)
	}
}

func TestBacktraceResolving(t *testing.T) {
	// fake IWRAM stack with two saved returns and noise between them
	mem := map[uint32]uint32{
		0x03007F00: 0x00000000, // data
		0x03007F04: 0x08000231, // thumb return
		0x03007F08: 0x12345678, // not a code address
		0x03007F0C: 0x08000100, // arm return
	}
	snap := Snapshot{}
	snap.R[13] = 0x03007F00
	snap.R[14] = 0x08000300
	frames := Backtrace(Resolving, snap, func(addr uint32) uint32 { return mem[addr] })
	if len(frames) != 3 {
		t.Fatalf("recovered %d frames, want 3", len(frames))
	}
	if frames[0].Return != 0x08000300 {
		t.Fatalf("frame 0 = %08X, want the live LR", frames[0].Return)
	}
	if frames[1].Return != 0x08000231 || frames[2].Return != 0x08000100 {
		t.Fatalf("frames = %08X, %08X", frames[1].Return, frames[2].Return)
	}
}

func TestReplaceRegisters(t *testing.T) {
	snap := Snapshot{}
	snap.R[1] = 0x42
	snap.R[10] = 0xAA
	got := ReplaceRegisters(snap, "ADD R1,R10,#0x3")
	if !strings.Contains(got, "0x42") || !strings.Contains(got, "0xAA") {
		t.Fatalf("substitution failed: %q", got)
	}
	if strings.Contains(got, "R1") {
		t.Fatalf("register name survived: %q", got)
	}
}
