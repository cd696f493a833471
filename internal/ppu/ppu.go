// Package ppu models the display unit: palette/VRAM/OAM, the display
// registers, scanline timing, and the per-line renderer. It runs entirely
// on the timing goroutine; the bus mediates all CPU access.
package ppu

const (
	ScreenW = 240
	ScreenH = 160

	CyclesPerLine = 1232
	HBlankStart   = 1006
	LinesPerFrame = 228
	VBlankLine    = 160

	PaletteSize = 1024
	VRAMSize    = 96 * 1024
	OAMSize     = 1024
)

// register offsets relative to the IO base
const (
	RegDispCnt  = 0x00
	RegDispStat = 0x04
	RegVCount   = 0x06
	RegBG0Cnt   = 0x08
	RegBG0HOfs  = 0x10
	RegWin0H    = 0x40
	RegBldCnt   = 0x50
)

// InterruptRequester requests an IF bit (irq.SrcVBlank and friends).
type InterruptRequester func(src int)

type PPU struct {
	palette [PaletteSize]byte
	vram    [VRAMSize]byte
	oam     [OAMSize]byte

	dispcnt  uint16
	dispstat uint16
	vcount   uint16

	bgcnt  [4]uint16
	bghofs [4]uint16 // write-only, 9 bits used
	bgvofs [4]uint16

	// affine, window and blend registers are stored so software can read
	// back what it wrote; the renderer does not consume them
	affine [16]uint16 // 0x20–0x3E
	win    [8]uint16  // 0x40–0x4E
	blend  [4]uint16  // 0x50–0x56

	dot  int
	line int

	front []byte // RGBA, ScreenW*ScreenH*4
	back  []byte

	req      InterruptRequester
	onHBlank func(line int) // visible lines only, fires at cycle 1006
	onVBlank func()
	onFrame  func(fb []byte)
}

func New(req InterruptRequester) *PPU {
	return &PPU{
		front: make([]byte, ScreenW*ScreenH*4),
		back:  make([]byte, ScreenW*ScreenH*4),
		req:   req,
	}
}

// OnHBlank registers the DMA trigger callback for visible-line HBlank.
func (p *PPU) OnHBlank(fn func(line int)) { p.onHBlank = fn }

// OnVBlank registers the DMA trigger callback for VBlank entry.
func (p *PPU) OnVBlank(fn func()) { p.onVBlank = fn }

// OnFrame registers the completed-frame callback. The slice handed out is
// the retired front buffer; the PPU will not touch it until the next frame
// completes.
func (p *PPU) OnFrame(fn func(fb []byte)) { p.onFrame = fn }

// Palette, VRAM and OAM expose the video memories to the bus. All access
// happens under the timing-state lock.
func (p *PPU) Palette() []byte { return p.palette[:] }
func (p *PPU) VRAM() []byte    { return p.vram[:] }
func (p *PPU) OAM() []byte     { return p.oam[:] }

// ReadReg reads a 16-bit display register at the given IO offset.
func (p *PPU) ReadReg(off uint32) uint16 {
	switch {
	case off == RegDispCnt:
		return p.dispcnt
	case off == RegDispStat:
		return p.dispstat
	case off == RegVCount:
		return p.vcount
	case off >= RegBG0Cnt && off < RegBG0HOfs:
		return p.bgcnt[(off-RegBG0Cnt)/2]
	case off >= 0x20 && off < 0x40:
		return p.affine[(off-0x20)/2]
	case off >= 0x40 && off < 0x50:
		return p.win[(off-0x40)/2]
	case off >= 0x50 && off < 0x58:
		return p.blend[(off-0x50)/2]
	}
	return 0 // BG offsets and beyond are write-only
}

// WriteReg writes a 16-bit display register. The VBlank/HBlank/VCount
// status bits of DISPSTAT are read-only.
func (p *PPU) WriteReg(off uint32, val uint16) {
	switch {
	case off == RegDispCnt:
		p.dispcnt = val
	case off == RegDispStat:
		p.dispstat = (p.dispstat & 0x0007) | (val &^ 0x0007)
	case off >= RegBG0Cnt && off < RegBG0HOfs:
		p.bgcnt[(off-RegBG0Cnt)/2] = val
	case off >= RegBG0HOfs && off < 0x20:
		i := (off - RegBG0HOfs) / 4
		if off&2 == 0 {
			p.bghofs[i] = val & 0x1FF
		} else {
			p.bgvofs[i] = val & 0x1FF
		}
	case off >= 0x20 && off < 0x40:
		p.affine[(off-0x20)/2] = val
	case off >= 0x40 && off < 0x50:
		p.win[(off-0x40)/2] = val
	case off >= 0x50 && off < 0x58:
		p.blend[(off-0x50)/2] = val
	}
}

// Tick advances the scanline state machine by the given number of cycles.
func (p *PPU) Tick(cycles int) {
	for cycles > 0 {
		step := cycles
		if next := p.nextEvent(); step > next {
			step = next
		}
		p.dot += step
		cycles -= step

		if p.dot == HBlankStart {
			p.dispstat |= 0x0002
			if p.line < VBlankLine {
				p.renderLine(p.line)
				if p.onHBlank != nil {
					p.onHBlank(p.line)
				}
			}
			if p.dispstat&0x0010 != 0 {
				p.req(srcHBlank)
			}
		}
		if p.dot == CyclesPerLine {
			p.advanceLine()
		}
	}
}

// nextEvent returns the cycles until the next in-line event boundary.
func (p *PPU) nextEvent() int {
	if p.dot < HBlankStart {
		return HBlankStart - p.dot
	}
	return CyclesPerLine - p.dot
}

// IF source bits, mirrored from the irq package to avoid reaching into it
// from the hot path.
const (
	srcVBlank = 0
	srcHBlank = 1
	srcVCount = 2
)

func (p *PPU) advanceLine() {
	p.dot = 0
	p.dispstat &^= 0x0002
	p.line++
	if p.line == LinesPerFrame {
		p.line = 0
		p.front, p.back = p.back, p.front
		if p.onFrame != nil {
			p.onFrame(p.front)
		}
	}
	p.vcount = uint16(p.line)

	switch {
	case p.line == VBlankLine:
		p.dispstat |= 0x0001
		if p.dispstat&0x0008 != 0 {
			p.req(srcVBlank)
		}
		if p.onVBlank != nil {
			p.onVBlank()
		}
	case p.line == LinesPerFrame-1:
		p.dispstat &^= 0x0001
	}

	if uint16(p.line) == p.dispstat>>8 {
		p.dispstat |= 0x0004
		if p.dispstat&0x0020 != 0 {
			p.req(srcVCount)
		}
	} else {
		p.dispstat &^= 0x0004
	}
}

// Line exposes the current scanline for tests and the debugger.
func (p *PPU) Line() int { return p.line }

// Frame returns the most recently completed frame buffer.
func (p *PPU) Frame() []byte { return p.front }
