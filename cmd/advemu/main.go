package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/debug"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/emu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/ui"
)

type CLIFlags struct {
	ROMPath string
	BIOS    string
	Scale   int
	Title   string
	Debug   string // none|debugger|backtrace|full-backtrace
	Breaks  string // comma-separated breakpoint addresses
	SaveRAM bool

	// headless
	Headless bool
	Frames   int
	PNGOut   string
	Expect   string // expected framebuffer CRC32 hex
}

func parseFlags() CLIFlags {
	var f CLIFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gba)")
	flag.StringVar(&f.BIOS, "bios", "", "optional BIOS image; without it syscalls run natively")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "advemu", "window title")
	flag.StringVar(&f.Debug, "debug", "none", "debug mode: none|debugger|backtrace|full-backtrace")
	flag.StringVar(&f.Breaks, "break", "", "breakpoint addresses, comma separated hex")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist backup memory to ROM.sav on exit and load on start")

	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last frame to PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert frame CRC32 (hex)")
	flag.Parse()
	return f
}

func backtraceMode(debugFlag string) (debug.Mode, bool) {
	switch debugFlag {
	case "debugger":
		return debug.Shallow, true
	case "backtrace":
		return debug.Resolving, true
	case "full-backtrace":
		return debug.Full, true
	case "", "none":
		return 0, false
	}
	log.Fatalf("unknown -debug mode %q", debugFlag)
	return 0, false
}

func parseBreaks(s string) []uint32 {
	if s == "" {
		return nil
	}
	var out []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "0x")
		v, err := strconv.ParseUint(part, 16, 32)
		if err != nil {
			log.Fatalf("bad breakpoint %q: %v", part, err)
		}
		out = append(out, uint32(v))
	}
	return out
}

func runHeadless(m *emu.Machine, frames int, pngPath, expectCRC string, threaded bool) error {
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	if threaded {
		// breakpoints need the real CPU goroutine, not the inline stepper
		target := m.FrameCount() + uint64(frames)
		m.Start()
		for m.FrameCount() < target {
			time.Sleep(time.Millisecond)
		}
		m.Stop()
	} else {
		m.RunFrames(frames)
	}
	dur := time.Since(start)

	fb := m.Frame()
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f frame_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, ppu.ScreenW, ppu.ScreenH, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(pix)),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	copy(img.Pix, pix)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

func savePath(romPath string) string {
	if i := strings.LastIndex(romPath, "."); i > 0 {
		return romPath[:i] + ".sav"
	}
	return romPath + ".sav"
}

func main() {
	f := parseFlags()
	if f.ROMPath == "" {
		log.Fatal("-rom is required")
	}
	rom := mustRead(f.ROMPath)
	bios := mustRead(f.BIOS)

	if h, err := cart.ParseHeader(rom); err == nil {
		log.Printf("ROM: %q code=%s backup=%s", h.Title, h.GameCode, h.BackupStr)
	}

	m := emu.New(emu.Config{})
	if err := m.LoadCartridge(rom, bios); err != nil {
		log.Fatalf("load cart: %v", err)
	}
	m.SetROMPath(f.ROMPath)

	var sav string
	if f.SaveRAM {
		sav = savePath(f.ROMPath)
		if err := m.LoadSaveFile(sav); err != nil {
			log.Printf("load save: %v", err)
		}
	}

	mode, debugOn := backtraceMode(f.Debug)
	if debugOn {
		dbg := m.AttachDebugger()
		for _, addr := range parseBreaks(f.Breaks) {
			dbg.SetBreakpoint(addr)
		}
		go runConsole(m, dbg, mode)
	}

	if f.Headless {
		if err := runHeadless(m, f.Frames, f.PNGOut, f.Expect, debugOn); err != nil {
			log.Fatal(err)
		}
		if sav != "" {
			if err := m.WriteSaveFile(sav); err != nil {
				log.Printf("write save: %v", err)
			}
		}
		return
	}

	app := ui.NewApp(ui.Config{Title: f.Title, Scale: f.Scale}, m)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
	if sav != "" {
		if err := m.WriteSaveFile(sav); err != nil {
			log.Printf("write save: %v", err)
		}
	}
}
