package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/debug"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/emu"
)

// armrunner is an instruction-level exerciser: it steps a ROM for a fixed
// number of instructions, optionally printing a disassembly trace, and dumps
// the final register file. Useful against CPU test ROMs.
func main() {
	romPath := flag.String("rom", "", "path to ROM (.gba)")
	biosPath := flag.String("bios", "", "optional BIOS image")
	steps := flag.Int("steps", 5_000_000, "max instructions to run")
	trace := flag.Bool("trace", false, "print a disassembly line per instruction")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}
	var bios []byte
	if *biosPath != "" {
		if bios, err = os.ReadFile(*biosPath); err != nil {
			log.Fatalf("read bios: %v", err)
		}
	}

	m := emu.New(emu.Config{Trace: *trace})
	if err := m.LoadCartridge(rom, bios); err != nil {
		log.Fatalf("load cart: %v", err)
	}

	start := time.Now()
	cycles := 0
	for i := 0; i < *steps; i++ {
		if *trace {
			printInstruction(m)
		}
		cycles += m.StepInstruction()
	}
	dur := time.Since(start)

	snap := m.CPUSnapshot()
	fmt.Printf("ran %d instructions, %d cycles in %s\n", *steps, cycles, dur.Truncate(time.Millisecond))
	for i := 0; i < 16; i += 4 {
		fmt.Printf("R%-2d %08X  R%-2d %08X  R%-2d %08X  R%-2d %08X\n",
			i, snap.R[i], i+1, snap.R[i+1], i+2, snap.R[i+2], i+3, snap.R[i+3])
	}
	fmt.Printf("CPSR %08X\n", snap.CPSR)
}

func printInstruction(m *emu.Machine) {
	snap := m.CPUSnapshot()
	pc := snap.R[15]
	op := m.ReadWord(pc &^ 3)
	if snap.Thumb() {
		half := uint16(op >> ((pc & 2) * 8))
		fmt.Printf("[%08X]     %04X  %s\n", pc, half, debug.DisasmThumb(half, pc))
	} else {
		fmt.Printf("[%08X] %08X  %s\n", pc, op, debug.DisasmARM(op, pc))
	}
}
