package ui

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/FabianRolfMatthiasNoll/AdvanceEmulator/internal/emu"
	"github.com/ebitengine/oto/v3"
)

// otoPlayer streams the machine's stereo ring buffer to the sound card.
// oto pulls via Read on its own goroutine; underruns fill with silence so
// playback never stalls emulation.
type otoPlayer struct {
	ctx    *oto.Context
	player *oto.Player
	m      *emu.Machine
	muted  atomic.Bool
}

func newOtoPlayer(m *emu.Machine, sampleRate int) (*otoPlayer, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	p := &otoPlayer{ctx: ctx, m: m}
	p.player = ctx.NewPlayer(p)
	return p, nil
}

func (p *otoPlayer) Play() { p.player.Play() }

func (p *otoPlayer) Close() error { return p.player.Close() }

func (p *otoPlayer) SetMuted(on bool) { p.muted.Store(on) }

func (p *otoPlayer) Read(buf []byte) (int, error) {
	// frames are 4 bytes, stereo int16
	want := len(buf) / 4
	if want == 0 {
		return 0, nil
	}
	if p.muted.Load() {
		clear(buf)
		return len(buf), nil
	}
	samples := p.m.PullStereo(want)
	i := 0
	for j := 0; j+1 < len(samples); j += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(samples[j]))
		binary.LittleEndian.PutUint16(buf[i+2:], uint16(samples[j+1]))
		i += 4
	}
	// pad the rest with silence rather than blocking on the core
	for ; i < want*4; i++ {
		buf[i] = 0
	}
	return want * 4, nil
}
