package ui

// Config contains window/input/audio related settings.
type Config struct {
	Title string // window title
	Scale int    // integer upscaling factor
	Mute  bool   // start with audio muted
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "advemu"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
}
