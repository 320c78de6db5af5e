package config

// RuntimeConfig is the part of the configuration exposed over HTTP. It
// leaves out the USB identity and logging setup.
type RuntimeConfig struct {
	Mode        string            `json:"Mode"`
	Retry       RetryConfig       `json:"Retry"`
	LED         LEDConfig         `json:"LED"`
	Temperature TemperatureConfig `json:"Temperature"`
}

// Runtime extracts the RuntimeConfig of c.
func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{
		Mode:        c.Mode,
		Retry:       c.Retry,
		LED:         c.LED,
		Temperature: c.Temperature,
	}
}
