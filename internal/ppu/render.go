package ppu

import "encoding/binary"

// The renderer runs once per visible line at HBlank start, compositing the
// enabled backgrounds and sprites into the back buffer. Affine backgrounds
// and affine sprite transforms are out of scope: affine BG layers render as
// disabled and affine sprites draw with an identity transform.

const maxPrio = 0xFF

func (p *PPU) renderLine(y int) {
	row := p.back[y*ScreenW*4 : (y+1)*ScreenW*4]

	if p.dispcnt&0x0080 != 0 { // forced blank
		for x := 0; x < ScreenW; x++ {
			row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = 0xFF, 0xFF, 0xFF, 0xFF
		}
		return
	}

	backdrop := binary.LittleEndian.Uint16(p.palette[0:2])

	var bgColor [ScreenW]uint16
	var bgPrio [ScreenW]int
	for x := range bgColor {
		bgColor[x] = backdrop
		bgPrio[x] = maxPrio
	}

	switch p.dispcnt & 7 {
	case 0:
		for bg := 3; bg >= 0; bg-- {
			p.renderTextBG(bg, y, &bgColor, &bgPrio)
		}
	case 1:
		// BG2 is affine in this mode, rendered as disabled
		p.renderTextBG(1, y, &bgColor, &bgPrio)
		p.renderTextBG(0, y, &bgColor, &bgPrio)
	case 2:
		// both BGs affine, backdrop only
	case 3:
		p.renderBitmap16(y, 0, ScreenW, ScreenH, &bgColor, &bgPrio)
	case 4:
		p.renderBitmap8(y, &bgColor, &bgPrio)
	case 5:
		p.renderBitmap16(y, p.bitmapPage(), 160, 128, &bgColor, &bgPrio)
	}

	var sprColor [ScreenW]uint16
	var sprPrio [ScreenW]int
	for x := range sprPrio {
		sprPrio[x] = maxPrio
	}
	if p.dispcnt&0x1000 != 0 {
		p.renderSprites(y, &sprColor, &sprPrio)
	}

	for x := 0; x < ScreenW; x++ {
		c := bgColor[x]
		if sprPrio[x] != maxPrio && sprPrio[x] <= bgPrio[x] {
			c = sprColor[x]
		}
		r, g, b := rgb555(c)
		row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = r, g, b, 0xFF
	}
}

func rgb555(c uint16) (r, g, b byte) {
	r = byte(c&0x1F) << 3
	g = byte(c>>5&0x1F) << 3
	b = byte(c>>10&0x1F) << 3
	// replicate high bits so white reaches 0xFF
	return r | r>>5, g | g>>5, b | b>>5
}

func (p *PPU) bgEnabled(bg int) bool {
	return p.dispcnt&(0x0100<<uint(bg)) != 0
}

func (p *PPU) renderTextBG(bg, y int, color *[ScreenW]uint16, prio *[ScreenW]int) {
	if !p.bgEnabled(bg) {
		return
	}
	cnt := p.bgcnt[bg]
	bp := int(cnt & 3)
	charBase := uint32(cnt>>2&3) * 16 * 1024
	screenBase := uint32(cnt>>8&0x1F) * 2 * 1024
	size := cnt >> 14
	is8bpp := cnt&0x0080 != 0

	wMask, hMask := uint32(255), uint32(255)
	if size&1 != 0 {
		wMask = 511
	}
	if size&2 != 0 {
		hMask = 511
	}

	yy := (uint32(y) + uint32(p.bgvofs[bg])) & hMask
	for x := 0; x < ScreenW; x++ {
		if bp > prio[x] {
			continue
		}
		xx := (uint32(x) + uint32(p.bghofs[bg])) & wMask

		// screen blocks are 32x32 entries; wide/tall maps append blocks
		block := uint32(0)
		if xx >= 256 {
			block++
		}
		if yy >= 256 {
			block += (wMask + 1) / 256
		}
		entryOff := screenBase + block*0x800 + ((yy&255)>>3*32+(xx&255)>>3)*2
		entry := binary.LittleEndian.Uint16(p.vram[entryOff : entryOff+2])

		tile := uint32(entry & 0x3FF)
		fx, fy := xx&7, yy&7
		if entry&0x0400 != 0 {
			fx = 7 - fx
		}
		if entry&0x0800 != 0 {
			fy = 7 - fy
		}

		var idx uint32
		if is8bpp {
			// char base 3 with a high tile index runs past VRAM; the
			// fetch reads nothing usable, render transparent
			if off := charBase + tile*64 + fy*8 + fx; off < VRAMSize {
				idx = uint32(p.vram[off])
			}
		} else {
			b := p.vram[charBase+tile*32+fy*4+fx/2]
			idx = uint32(b >> (4 * (fx & 1)) & 0xF)
			if idx != 0 {
				idx += uint32(entry>>12) * 16
			}
		}
		if idx == 0 {
			continue
		}
		color[x] = binary.LittleEndian.Uint16(p.palette[idx*2 : idx*2+2])
		prio[x] = bp
	}
}

func (p *PPU) bitmapPage() uint32 {
	if p.dispcnt&0x0010 != 0 {
		return 0xA000
	}
	return 0
}

func (p *PPU) renderBitmap16(y int, base uint32, w, h int, color *[ScreenW]uint16, prio *[ScreenW]int) {
	if !p.bgEnabled(2) || y >= h {
		return
	}
	bp := int(p.bgcnt[2] & 3)
	off := base + uint32(y*w)*2
	for x := 0; x < w; x++ {
		color[x] = binary.LittleEndian.Uint16(p.vram[off+uint32(x)*2:])
		prio[x] = bp
	}
}

func (p *PPU) renderBitmap8(y int, color *[ScreenW]uint16, prio *[ScreenW]int) {
	if !p.bgEnabled(2) {
		return
	}
	bp := int(p.bgcnt[2] & 3)
	off := p.bitmapPage() + uint32(y*ScreenW)
	for x := 0; x < ScreenW; x++ {
		idx := uint32(p.vram[off+uint32(x)])
		if idx == 0 {
			continue
		}
		color[x] = binary.LittleEndian.Uint16(p.palette[idx*2 : idx*2+2])
		prio[x] = bp
	}
}

// sprite dimensions indexed by [shape][size]
var objSizes = [3][4][2]int{
	{{8, 8}, {16, 16}, {32, 32}, {64, 64}},
	{{16, 8}, {32, 8}, {32, 16}, {64, 32}},
	{{8, 16}, {8, 32}, {16, 32}, {32, 64}},
}

func (p *PPU) renderSprites(y int, color *[ScreenW]uint16, prio *[ScreenW]int) {
	objBase := uint32(0x10000)
	mapped1D := p.dispcnt&0x0040 != 0
	bitmapMode := p.dispcnt&7 >= 3

	for i := 0; i < 128; i++ {
		a0 := binary.LittleEndian.Uint16(p.oam[i*8:])
		a1 := binary.LittleEndian.Uint16(p.oam[i*8+2:])
		a2 := binary.LittleEndian.Uint16(p.oam[i*8+4:])

		affine := a0&0x0100 != 0
		if !affine && a0&0x0200 != 0 {
			continue // disable flag
		}
		if a0>>10&3 == 2 {
			continue // object-window mode, not composited
		}
		shape := int(a0 >> 14)
		if shape == 3 {
			continue
		}
		w := objSizes[shape][a1>>14][0]
		h := objSizes[shape][a1>>14][1]

		ry := (y - int(a0&0xFF)) & 0xFF
		if ry >= h {
			continue
		}
		sx := int(a1 & 0x1FF)
		if sx >= ScreenW {
			sx -= 512
		}

		is8bpp := a0&0x2000 != 0
		tile := uint32(a2 & 0x3FF)
		if bitmapMode && tile < 512 {
			continue // tile memory overlaps the bitmap
		}
		bp := int(a2 >> 10 & 3)
		pal := uint32(a2 >> 12)

		if !affine && a1&0x2000 != 0 {
			ry = h - 1 - ry
		}

		// tile units per sprite row in the character region
		stride := uint32(w / 8)
		if is8bpp {
			stride *= 2
			tile &^= 1
		}
		if !mapped1D {
			stride = 32
		}

		for dx := 0; dx < w; dx++ {
			x := sx + dx
			if x < 0 || x >= ScreenW || prio[x] != maxPrio {
				continue
			}
			rx := dx
			if !affine && a1&0x1000 != 0 {
				rx = w - 1 - rx
			}

			tx, ty := uint32(rx)>>3, uint32(ry)>>3
			fx, fy := uint32(rx)&7, uint32(ry)&7
			var idx uint32
			if is8bpp {
				t := tile + ty*stride + tx*2
				// the last 8bpp tile slot spills past the 32K OBJ
				// region; wrap like the hardware address bus
				idx = uint32(p.vram[objBase+(t%1024*32+fy*8+fx)&0x7FFF])
			} else {
				t := tile + ty*stride + tx
				b := p.vram[objBase+t%1024*32+fy*4+fx/2]
				idx = uint32(b >> (4 * (fx & 1)) & 0xF)
				if idx != 0 {
					idx += pal * 16
				}
			}
			if idx == 0 {
				continue
			}
			off := 512 + idx*2 // sprite palette is the upper half
			color[x] = binary.LittleEndian.Uint16(p.palette[off : off+2])
			prio[x] = bp
		}
	}
}
