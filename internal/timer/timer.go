// Package timer implements the four cascadable 16-bit counters. Each timer
// counts up from its reload value and wraps at 0x10000; an overflow can
// raise an interrupt, clock the next timer in cascade mode, and clock the
// direct-sound FIFOs.
package timer

// register offsets relative to the IO base
const (
	RegBase = 0x100 // TM0CNT_L; each timer occupies 4 bytes
	RegEnd  = 0x110
)

var prescale = [4]int{1, 64, 256, 1024}

// OverflowHook is told which timer overflowed (the APU's FIFO clock).
type OverflowHook func(timer int)

// InterruptRequester requests an IF bit.
type InterruptRequester func(src int)

const srcTimer0 = 3 // IF bit of timer 0; timers 1-3 follow

type channel struct {
	counter uint32 // current count, wraps at 0x10000
	reload  uint16
	control uint16
	sub     int // cycles accumulated toward the next prescaled tick
}

func (c *channel) enabled() bool { return c.control&0x0080 != 0 }
func (c *channel) cascade() bool { return c.control&0x0004 != 0 }

type Timers struct {
	ch  [4]channel
	req InterruptRequester
	ovf OverflowHook
}

func New(req InterruptRequester, ovf OverflowHook) *Timers {
	return &Timers{req: req, ovf: ovf}
}

// ReadReg reads a counter or control register at the given IO offset.
func (t *Timers) ReadReg(off uint32) uint16 {
	i := (off - RegBase) / 4
	if off&2 == 0 {
		return uint16(t.ch[i].counter)
	}
	return t.ch[i].control
}

// WriteReg writes a reload or control register. Writing the counter half
// sets the reload value; the live count is only loaded from it on enable
// or overflow. Enabling a stopped timer reloads it.
func (t *Timers) WriteReg(off uint32, val uint16) {
	c := &t.ch[(off-RegBase)/4]
	if off&2 == 0 {
		c.reload = val
		return
	}
	wasOn := c.enabled()
	c.control = val & 0x00C7
	if !wasOn && c.enabled() {
		c.counter = uint32(c.reload)
		c.sub = 0
	}
}

// Reload returns the reload half of TMxCNT_L. Byte-sized CPU writes merge
// into the reload, never the live count.
func (t *Timers) Reload(i int) uint16 { return t.ch[i].reload }

// Tick advances all enabled timers by the given number of cycles.
func (t *Timers) Tick(cycles int) {
	for i := range t.ch {
		c := &t.ch[i]
		if !c.enabled() || c.cascade() {
			continue
		}
		c.sub += cycles
		step := prescale[c.control&3]
		for c.sub >= step {
			c.sub -= step
			t.increment(i)
		}
	}
}

func (t *Timers) increment(i int) {
	c := &t.ch[i]
	c.counter++
	if c.counter < 0x10000 {
		return
	}
	c.counter = uint32(c.reload)
	if c.control&0x0040 != 0 {
		t.req(srcTimer0 + i)
	}
	if t.ovf != nil && i < 2 {
		t.ovf(i)
	}
	if i < 3 {
		next := &t.ch[i+1]
		if next.enabled() && next.cascade() {
			t.increment(i + 1)
		}
	}
}
