package apu

import "testing"

func TestFifoPushPop(t *testing.T) {
	a := New(48000)
	a.WriteReg(RegSoundCntH, 0x0000) // FIFO A clocked by timer 0
	a.WriteFifo(RegFifoA, 0x04030201, 4)
	if a.fifoA.n != 4 {
		t.Fatalf("fifo holds %d bytes, want 4", a.fifoA.n)
	}
	for i, want := range []int8{1, 2, 3, 4} {
		a.TimerOverflow(0)
		if a.fifoA.sample != want {
			t.Fatalf("sample %d = %d, want %d", i, a.fifoA.sample, want)
		}
	}
	a.TimerOverflow(0)
	if a.fifoA.sample != 0 {
		t.Fatalf("drained fifo yields %d, want 0", a.fifoA.sample)
	}
}

func TestFifoRefillable(t *testing.T) {
	a := New(48000)
	if !a.FifoRefillable(0) {
		t.Fatalf("empty fifo not refillable")
	}
	for i := 0; i < 8; i++ { // 32 bytes, full
		a.WriteFifo(RegFifoA, 0, 4)
	}
	if a.FifoRefillable(0) {
		t.Fatalf("full fifo reported refillable")
	}
	for i := 0; i < 16; i++ {
		a.TimerOverflow(0)
	}
	if !a.FifoRefillable(0) {
		t.Fatalf("fifo at low-water mark not refillable")
	}
}

func TestFifoReset(t *testing.T) {
	a := New(48000)
	a.WriteFifo(RegFifoB, 0xAABBCCDD, 4)
	a.WriteReg(RegSoundCntH, 0x8000)
	if a.fifoB.n != 0 {
		t.Fatalf("fifo B not cleared by reset bit")
	}
	if a.ReadReg(RegSoundCntH)&0x8000 != 0 {
		t.Fatalf("reset bit stored, should read back zero")
	}
}

func TestTickEmitsSamples(t *testing.T) {
	a := New(48000)
	a.WriteReg(RegSoundCntH, 0x0300) // FIFO A to both sides, timer 0
	a.WriteFifo(RegFifoA, 0x00000040, 4)
	a.TimerOverflow(0)
	a.Tick(16 * 1024 * 1024 / 48000 * 4)
	got := a.PullStereo(4)
	if len(got) == 0 {
		t.Fatalf("no stereo frames after a tick")
	}
	if got[0] != 0x40<<6 || got[1] != 0x40<<6 {
		t.Fatalf("frame = [%d %d], want FIFO sample on both sides", got[0], got[1])
	}
}
