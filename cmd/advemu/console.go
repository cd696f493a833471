package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/pkg/term/termios"

	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/debug"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/emu"
)

// console is the single-key debugger terminal. It owns stdin while a
// breakpoint holds the CPU: c continues, s steps one instruction, r dumps
// registers, b prints a backtrace, t prints the recent execution trace,
// q exits the process.
type console struct {
	m    *emu.Machine
	dbg  *debug.Debugger
	mode debug.Mode

	canAttr    syscall.Termios
	cbreakAttr syscall.Termios
}

func runConsole(m *emu.Machine, dbg *debug.Debugger, mode debug.Mode) {
	c := &console{m: m, dbg: dbg, mode: mode}
	if err := termios.Tcgetattr(os.Stdin.Fd(), &c.canAttr); err != nil {
		fmt.Fprintf(os.Stderr, "debug console: %v\n", err)
		return
	}
	c.cbreakAttr = c.canAttr
	termios.Cfmakecbreak(&c.cbreakAttr)

	for ev := range dbg.Events() {
		c.onBreak(ev)
	}
}

func (c *console) onBreak(ev debug.Event) {
	c.printStop(ev)

	termios.Tcsetattr(os.Stdin.Fd(), termios.TCIFLUSH, &c.cbreakAttr)
	defer termios.Tcsetattr(os.Stdin.Fd(), termios.TCIFLUSH, &c.canAttr)

	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			c.dbg.Continue()
			return
		}
		switch buf[0] {
		case 'c':
			c.dbg.Continue()
			return
		case 's':
			c.dbg.StepOne()
			return
		case 'r':
			c.printRegs(ev.Regs)
		case 'b':
			c.printBacktrace()
		case 't':
			c.printTrace()
		case 'q':
			termios.Tcsetattr(os.Stdin.Fd(), termios.TCIFLUSH, &c.canAttr)
			os.Exit(0)
		case 'h', '?':
			fmt.Println("c continue | s step | r registers | b backtrace | t trace | q quit")
		}
	}
}

func (c *console) printStop(ev debug.Event) {
	op := c.m.ReadWord(ev.PC &^ 3)
	var asm string
	if ev.Regs.Thumb() {
		asm = debug.DisasmThumb(uint16(op>>((ev.PC&2)*8)), ev.PC)
	} else {
		asm = debug.DisasmARM(op, ev.PC)
	}
	if c.mode == debug.Full {
		asm = asm + "   ; " + debug.ReplaceRegisters(ev.Regs, asm)
	}
	fmt.Printf("\nbreak [%08X] %s\n", ev.PC, asm)
}

func (c *console) printRegs(s debug.Snapshot) {
	for i := 0; i < 16; i += 4 {
		fmt.Printf("  R%-2d %08X  R%-2d %08X  R%-2d %08X  R%-2d %08X\n",
			i, s.R[i], i+1, s.R[i+1], i+2, s.R[i+2], i+3, s.R[i+3])
	}
	fmt.Printf("  CPSR %08X\n", s.CPSR)
}

func (c *console) printBacktrace() {
	for i, f := range c.m.Backtrace(c.mode) {
		if f.Asm != "" {
			fmt.Printf("  %2d: %08X  %s\n", i, f.Return, f.Asm)
		} else {
			fmt.Printf("  %2d: %08X\n", i, f.Return)
		}
	}
}

func (c *console) printTrace() {
	for i, pc := range c.m.RecentPCs() {
		op := c.m.ReadWord(pc &^ 3)
		if pc&1 != 0 {
			a := pc &^ 1
			fmt.Printf("  %2d: [%08X]     %04X  %s\n", i, a,
				uint16(op>>((a&2)*8)), debug.DisasmThumb(uint16(op>>((a&2)*8)), a))
		} else {
			fmt.Printf("  %2d: [%08X] %08X  %s\n", i, pc, op, debug.DisasmARM(op, pc))
		}
	}
}
