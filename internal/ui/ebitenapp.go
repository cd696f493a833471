package ui

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/emu"
	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/ppu"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// App presents a running Machine. Emulation runs on its own goroutines; the
// app only publishes input and pulls completed frames, never blocking on the
// core.
type App struct {
	cfg   Config
	m     *emu.Machine
	tex   *ebiten.Image
	last  []byte
	audio *otoPlayer
	muted bool
}

func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(ppu.ScreenW*cfg.Scale, ppu.ScreenH*cfg.Scale)
	return &App{cfg: cfg, m: m, muted: cfg.Mute}
}

func (a *App) Run() error {
	if p, err := newOtoPlayer(a.m, 48000); err == nil {
		a.audio = p
		a.audio.Play()
	}
	a.m.Start()
	defer a.m.Stop()
	return ebiten.RunGame(a)
}

func (a *App) Update() error {
	var btn emu.Buttons
	if ebiten.IsKeyPressed(ebiten.KeyRight) {
		btn.Right = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyLeft) {
		btn.Left = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyUp) {
		btn.Up = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyDown) {
		btn.Down = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyZ) {
		btn.A = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyX) {
		btn.B = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyA) {
		btn.L = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) {
		btn.R = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyEnter) {
		btn.Start = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		btn.Select = true
	}
	a.m.SetButtons(btn)

	// Pause toggle (P)
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.m.SetPaused(!a.m.Paused())
	}

	// Mute toggle (M)
	if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		a.muted = !a.muted
		if a.audio != nil {
			a.audio.SetMuted(a.muted)
		}
	}

	// Screenshot (F12)
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		_ = a.saveScreenshot()
	}

	// Pull the newest completed frame without waiting for one.
	select {
	case fb := <-a.m.Frames():
		a.last = fb
	default:
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(ppu.ScreenW, ppu.ScreenH)
	}
	if a.last != nil {
		a.tex.WritePixels(a.last)
	}
	screen.DrawImage(a.tex, nil)

	if a.m.Paused() {
		ebitenutil.DebugPrintAt(screen, "PAUSED", 4, 4)
	}
}

func (a *App) Layout(outW, outH int) (int, int) { return ppu.ScreenW, ppu.ScreenH }

func (a *App) saveScreenshot() error {
	fb := a.last
	if fb == nil {
		return nil
	}
	img := &image.RGBA{
		Pix:    make([]byte, len(fb)),
		Stride: 4 * ppu.ScreenW,
		Rect:   image.Rect(0, 0, ppu.ScreenW, ppu.ScreenH),
	}
	copy(img.Pix, fb)
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
