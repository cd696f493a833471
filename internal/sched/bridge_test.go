package sched

import (
	"testing"
	"time"
)

func TestLagBound(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		b.Produce(MaxLag)
		b.Produce(100) // pushes past the window, must block
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("producer ran past the lag window without a consumer")
	case <-time.After(50 * time.Millisecond):
	}

	if n := b.AwaitCycles(); n != MaxLag+100 {
		t.Fatalf("consumed %d cycles, want %d", n, MaxLag+100)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("producer still blocked after cycles were consumed")
	}
	b.Stop()
}

func TestWriteQueueOrder(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.QueueWrite(IOWrite{Addr: uint32(i), Width: 2, Val: uint32(i * 10)})
	}
	var got []IOWrite
	b.DrainWrites(func(w IOWrite) { got = append(got, w) })
	if len(got) != 5 {
		t.Fatalf("drained %d writes, want 5", len(got))
	}
	for i, w := range got {
		if w.Addr != uint32(i) || w.Val != uint32(i*10) {
			t.Fatalf("write %d out of order: %+v", i, w)
		}
	}
	b.DrainWrites(func(IOWrite) { t.Fatalf("queue not empty after drain") })
}

func TestHoldCPURunsWhileParked(t *testing.T) {
	b := New()
	ran := make(chan struct{})
	go func() {
		for b.Produce(8) {
		}
	}()
	go func() {
		for {
			if b.AwaitCycles() == 0 {
				return
			}
			b.HoldCPU(func() { close(ran) })
			b.Stop()
			return
		}
	}()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("hold callback never ran")
	}
}

func TestPublishFrameDropsNewest(t *testing.T) {
	b := New()
	first := []byte{1}
	b.PublishFrame(first)
	b.PublishFrame([]byte{2}) // consumer absent, dropped
	select {
	case fb := <-b.Frames():
		if fb[0] != 1 {
			t.Fatalf("got frame %v, want the first published frame", fb)
		}
	default:
		t.Fatalf("no frame available")
	}
}

func TestInputDefault(t *testing.T) {
	b := New()
	if in := b.Input(); in != 0x03FF {
		t.Fatalf("idle keypad = %#04x, want 0x03ff", in)
	}
	b.SetInput(0x03FE)
	if in := b.Input(); in != 0x03FE {
		t.Fatalf("keypad = %#04x, want 0x03fe", in)
	}
}

func TestParkedCPUAdmitsHold(t *testing.T) {
	b := New()
	resumed := make(chan struct{})
	parked := make(chan struct{})
	go func() {
		b.Park()
		close(parked)
		<-resumed // off the bus until released
		b.Unpark()
	}()
	<-parked

	ran := make(chan struct{})
	go func() {
		b.HoldCPU(func() { close(ran) })
	}()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("hold blocked against a parked CPU")
	}
	close(resumed)
	b.Stop()
}
