// Package platform abstracts the real USB bridge from the simulated one.
package platform

import (
	c "lautenbacher.net/gomcp2210/config"
	"lautenbacher.net/gomcp2210/mcp2210"
)

// Platform provides the transport a session runs on.
type Platform interface {
	// Start opens the bridge (or starts the simulation).
	Start() error

	// Stop releases all platform resources.
	Stop()

	// Transport is valid between Start and Stop.
	Transport() mcp2210.Transport

	// Status describes the platform for log output.
	Status() string
}

// New returns the simulated platform when simulate is set and the USB
// platform otherwise.
func New(conf *c.Config, simulate bool) Platform {
	if simulate {
		return NewSimPlatform(conf, nil)
	}
	return NewUSBPlatform(conf)
}
