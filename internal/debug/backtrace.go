package debug

import (
	"fmt"
	"strings"
)

// Mode selects how much work a backtrace does.
type Mode int

const (
	// Shallow reports only the current link register.
	Shallow Mode = iota
	// Resolving walks the stack and recovers one frame per saved return
	// address.
	Resolving
	// Full additionally disassembles each frame's call site with register
	// values substituted in.
	Full
)

// Frame is one recovered call frame.
type Frame struct {
	Return uint32 // saved return address
	SP     uint32 // stack slot it was found in; 0 for the live LR
	Regs   Snapshot
	Asm    string // call-site disassembly, Full mode only
}

// MemReader reads a little-endian word from emulated memory.
type MemReader func(addr uint32) uint32

const maxFrames = 64

// codeAddr reports whether v plausibly points into executable memory.
// Return addresses land in the BIOS or the pak; bit 0 marks Thumb.
func codeAddr(v uint32) bool {
	a := v &^ 1
	if a < 0x4000 && a >= 4 {
		return true
	}
	return a >= 0x08000000 && a < 0x0E000000
}

// stackTop bounds the walk by the region the stack pointer lives in.
func stackTop(sp uint32) uint32 {
	switch {
	case sp >= 0x03000000 && sp < 0x03008000:
		return 0x03008000
	case sp >= 0x02000000 && sp < 0x02040000:
		return 0x02040000
	default:
		return sp + 0x400
	}
}

// Backtrace recovers the call chain from a suspension snapshot. Resolving
// and Full walk from SP toward the stack top, treating every word that
// decodes as a code address as a saved return; the walk ends at the pak
// entry point, the top of the stack region, or the frame cap.
func Backtrace(mode Mode, snap Snapshot, read MemReader) []Frame {
	frames := []Frame{{Return: snap.R[14], Regs: snap}}
	if mode == Shallow {
		return frames
	}

	top := stackTop(snap.R[13])
	for sp := snap.R[13] &^ 3; sp < top && len(frames) < maxFrames; sp += 4 {
		v := read(sp)
		if !codeAddr(v) {
			continue
		}
		f := Frame{Return: v, SP: sp, Regs: snap}
		if mode == Full {
			f.Asm = frameAsm(v, snap, read)
		}
		frames = append(frames, f)
		if v&^1 == 0x08000000 {
			break
		}
	}
	if mode == Full {
		frames[0].Asm = frameAsm(snap.R[14], snap, read)
	}
	return frames
}

// frameAsm disassembles the instruction before the return address, which
// is the call site.
func frameAsm(ret uint32, snap Snapshot, read MemReader) string {
	if ret&1 != 0 {
		pc := ret&^1 - 4
		op := uint16(read(pc&^3) >> ((pc & 2) * 8))
		return ReplaceRegisters(snap, DisasmThumb(op, pc))
	}
	pc := ret - 4
	return ReplaceRegisters(snap, DisasmARM(read(pc), pc))
}

// ReplaceRegisters substitutes current register values for register names
// in a disassembly line.
func ReplaceRegisters(snap Snapshot, s string) string {
	for i := 15; i >= 0; i-- { // R1x before R1
		s = strings.ReplaceAll(s, fmt.Sprintf("R%d", i), fmt.Sprintf("0x%X", snap.R[i]))
	}
	s = strings.ReplaceAll(s, "SP", fmt.Sprintf("0x%X", snap.R[13]))
	s = strings.ReplaceAll(s, "LR", fmt.Sprintf("0x%X", snap.R[14]))
	s = strings.ReplaceAll(s, "PC", fmt.Sprintf("0x%X", snap.R[15]))
	return s
}
