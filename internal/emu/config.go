package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	SampleRate int  // audio output rate, 48000 if zero
	Trace      bool // log executed instructions (armrunner)
}
