package loadgen

import (
	"context"
	"time"

	"github.com/G-Research/chimp/pkg/api"
)

// Cpu duty-cycles one core: within every Window it spins for DutyPercent of the window and sleeps for the rest.
type Cpu struct {
	DutyPercent uint32
	Duration    time.Duration
	Window      time.Duration
	Reporter    Reporter
}

func (c *Cpu) Kind() string {
	return api.KindCpu
}

func (c *Cpu) Run(ctx context.Context) error {
	window := c.Window
	if window <= 0 {
		window = DefaultCpuWindow
	}
	busy := window * time.Duration(c.DutyPercent) / 100
	idle := window - busy
	deadline := time.Now().Add(c.Duration)

	c.Reporter.CpuStarted(c.DutyPercent)
	defer c.Reporter.CpuStopped()

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		Spin(busy)
		if idle > 0 {
			time.Sleep(idle)
		}
		c.Reporter.CpuWindowCompleted(c.DutyPercent)
	}
	return nil
}
