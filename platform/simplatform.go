package platform

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	c "lautenbacher.net/gomcp2210/config"
	"lautenbacher.net/gomcp2210/mcp2210"
	"lautenbacher.net/gomcp2210/simulation"
)

const (
	simBaseCelsius = 22.5
	simSwing       = 2.5
	simPeriod      = 2 * time.Minute
)

// SimPlatform runs the session against an in-memory bridge. While started
// the simulated TC77 follows a slow sine around room temperature.
type SimPlatform struct {
	bridge   *simulation.Bridge
	drift    bool
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewSimPlatform wraps bridge. A nil bridge creates a fresh one with a
// drifting temperature and two busy polls per transfer.
func NewSimPlatform(conf *c.Config, bridge *simulation.Bridge) *SimPlatform {
	p := &SimPlatform{bridge: bridge, interval: conf.Temperature.Interval}
	if p.bridge == nil {
		p.bridge = simulation.NewBridge(simulation.WithBusyPolls(2))
		p.drift = true
	}
	return p
}

func (p *SimPlatform) Start() error {
	slog.Info("Using simulated MCP2210")
	if !p.drift {
		return nil
	}
	p.stop = make(chan struct{})
	p.wg.Add(1)
	go p.runTemperatureGen()
	return nil
}

func (p *SimPlatform) Stop() {
	if p.stop != nil {
		close(p.stop)
		p.wg.Wait()
		p.stop = nil
	}
	slog.Debug("Simulated bridge stopped", "status", p.Status())
}

func (p *SimPlatform) Transport() mcp2210.Transport {
	return p.bridge
}

// Bridge returns the simulated device.
func (p *SimPlatform) Bridge() *simulation.Bridge {
	return p.bridge
}

func (p *SimPlatform) Status() string {
	return fmt.Sprintf("simulated, leds %s, tc77 %.4f°C", p.bridge.Expander().Render(), p.bridge.Sensor().Celsius())
}

func (p *SimPlatform) runTemperatureGen() {
	defer p.wg.Done()
	interval := p.interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			phase := 2 * math.Pi * float64(now.Sub(start)) / float64(simPeriod)
			p.bridge.Sensor().Set(simBaseCelsius + simSwing*math.Sin(phase))
		}
	}
}
