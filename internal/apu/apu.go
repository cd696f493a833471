// Package apu implements the direct-sound half of the audio unit: the two
// byte FIFOs fed by DMA, the control registers, and a stereo sample ring
// the presentation layer drains. The legacy tone/noise channels are not
// synthesized; their registers are storage only.
package apu

const (
	// register offsets relative to the IO base
	RegSoundCntL = 0x080
	RegSoundCntH = 0x082
	RegSoundCntX = 0x084
	RegSoundBias = 0x088
	RegFifoA     = 0x0A0
	RegFifoB     = 0x0A4

	fifoCap = 32 // bytes per direct-sound FIFO

	// FifoLowWater is the fill level at or below which a FIFO asks its
	// DMA channel for a refill.
	FifoLowWater = 16
)

type fifo struct {
	buf  [fifoCap]byte
	head int
	tail int
	n    int

	sample int8 // most recently popped sample
}

func (f *fifo) push(b byte) {
	if f.n == fifoCap {
		return // overrun, sample dropped
	}
	f.buf[f.head] = b
	f.head = (f.head + 1) % fifoCap
	f.n++
}

func (f *fifo) pop() {
	if f.n == 0 {
		f.sample = 0
		return
	}
	f.sample = int8(f.buf[f.tail])
	f.tail = (f.tail + 1) % fifoCap
	f.n--
}

func (f *fifo) reset() {
	f.head, f.tail, f.n, f.sample = 0, 0, 0, 0
}

type APU struct {
	fifoA fifo
	fifoB fifo

	cntL  uint16
	cntH  uint16
	cntX  uint16
	bias  uint16
	tone  [0x40]byte // legacy channel registers, storage only

	// sample generator: direct-sound bytes resampled to the host rate
	sampleRate      int
	cyclesPerSample float64
	cycAccum        float64

	sL    []int16
	sR    []int16
	sHead int
	sTail int
}

func New(sampleRate int) *APU {
	const cpuHz = 16 * 1024 * 1024
	n := 4096 // power of two
	return &APU{
		sampleRate:      sampleRate,
		cyclesPerSample: float64(cpuHz) / float64(sampleRate),
		cntX:            0x0080, // master enable
		bias:            0x0200,
		sL:              make([]int16, n),
		sR:              make([]int16, n),
	}
}

// ReadReg reads a 16-bit sound register at the given IO offset.
func (a *APU) ReadReg(off uint32) uint16 {
	switch off {
	case RegSoundCntL:
		return a.cntL
	case RegSoundCntH:
		return a.cntH
	case RegSoundCntX:
		return a.cntX
	case RegSoundBias:
		return a.bias
	}
	if off < 0x0A0 {
		i := off & 0x3E
		return uint16(a.tone[i]) | uint16(a.tone[i+1])<<8
	}
	return 0
}

// WriteReg writes a 16-bit sound register. Setting the FIFO reset bits in
// SOUNDCNT_H clears the corresponding FIFO.
func (a *APU) WriteReg(off uint32, val uint16) {
	switch off {
	case RegSoundCntL:
		a.cntL = val
	case RegSoundCntH:
		a.cntH = val &^ 0x8800 // reset bits read back as zero
		if val&0x0800 != 0 {
			a.fifoA.reset()
		}
		if val&0x8000 != 0 {
			a.fifoB.reset()
		}
	case RegSoundCntX:
		a.cntX = (a.cntX &^ 0x0080) | (val & 0x0080)
	case RegSoundBias:
		a.bias = val
	default:
		if off < 0x0A0 {
			i := off & 0x3E
			a.tone[i] = byte(val)
			a.tone[i+1] = byte(val >> 8)
		}
	}
}

// WriteFifo appends the low nbytes of a store to FIFO A or B.
func (a *APU) WriteFifo(off uint32, val uint32, nbytes int) {
	f := &a.fifoA
	if off >= RegFifoB {
		f = &a.fifoB
	}
	for i := 0; i < nbytes; i++ {
		f.push(byte(val >> (8 * i)))
	}
}

// TimerOverflow pops one sample from each FIFO clocked by the overflowing
// timer. SOUNDCNT_H bit 10 selects FIFO A's timer, bit 14 FIFO B's.
func (a *APU) TimerOverflow(timer int) {
	if int(a.cntH>>10&1) == timer {
		a.fifoA.pop()
	}
	if int(a.cntH>>14&1) == timer {
		a.fifoB.pop()
	}
}

// FifoRefillable reports whether the given FIFO (0=A, 1=B) has drained to
// the refill threshold. DMA channels 1 and 2 poll this on their special
// trigger.
func (a *APU) FifoRefillable(which int) bool {
	if which == 0 {
		return a.fifoA.n <= FifoLowWater
	}
	return a.fifoB.n <= FifoLowWater
}

// Tick advances the resampler and emits stereo frames from the current
// FIFO samples.
func (a *APU) Tick(cycles int) {
	if a.cntX&0x0080 == 0 {
		return
	}
	a.cycAccum += float64(cycles)
	for a.cycAccum >= a.cyclesPerSample {
		a.cycAccum -= a.cyclesPerSample
		var l, r int16
		// enable bits: 8/9 = A right/left, 12/13 = B right/left
		sa := int16(a.fifoA.sample) << 6
		sb := int16(a.fifoB.sample) << 6
		if a.cntH&0x0100 != 0 {
			r += sa
		}
		if a.cntH&0x0200 != 0 {
			l += sa
		}
		if a.cntH&0x1000 != 0 {
			r += sb
		}
		if a.cntH&0x2000 != 0 {
			l += sb
		}
		a.pushStereo(l, r)
	}
}

func (a *APU) pushStereo(l, r int16) {
	next := (a.sHead + 1) & (len(a.sL) - 1)
	if next == a.sTail {
		return // drop if full
	}
	a.sL[a.sHead] = l
	a.sR[a.sHead] = r
	a.sHead = next
}

// PullStereo returns up to max stereo frames as an interleaved int16 slice
// [L0,R0,L1,R1,...].
func (a *APU) PullStereo(max int) []int16 {
	if max <= 0 || a.sHead == a.sTail {
		return nil
	}
	count := 0
	for i := a.sTail; i != a.sHead && count < max; i = (i + 1) & (len(a.sL) - 1) {
		count++
	}
	out := make([]int16, 0, count*2)
	for i := 0; i < count; i++ {
		out = append(out, a.sL[a.sTail], a.sR[a.sTail])
		a.sTail = (a.sTail + 1) & (len(a.sL) - 1)
	}
	return out
}

// StereoAvailable returns the number of stereo frames currently buffered.
func (a *APU) StereoAvailable() int {
	if a.sHead >= a.sTail {
		return a.sHead - a.sTail
	}
	return (len(a.sL) - a.sTail) + a.sHead
}
