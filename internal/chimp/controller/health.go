package controller

import (
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/chimp/pkg/api"
)

const (
	HealthOk       = "ok"
	HealthDegraded = "degraded"
)

// HealthReport summarises whether the agent can serve experiments.
type HealthReport struct {
	Status       string
	Running      bool
	RunningId    string
	MetricsOk    bool
	InvariantsOk bool
	Problems     []string
}

func (r HealthReport) ToApi() *api.HealthResponse {
	return &api.HealthResponse{
		Status:       r.Status,
		Running:      r.Running,
		RunningId:    r.RunningId,
		MetricsOk:    r.MetricsOk,
		InvariantsOk: r.InvariantsOk,
		Problems:     r.Problems,
	}
}

func (c *Controller) Health() HealthReport {
	report := HealthReport{Status: HealthOk, MetricsOk: true, InvariantsOk: true}
	report.RunningId, report.Running = c.registry.FindRunning()

	if text, err := c.metrics.Encode(); err != nil {
		report.MetricsOk = false
		report.Problems = append(report.Problems, err.Error())
	} else if len(text) == 0 {
		report.MetricsOk = false
		report.Problems = append(report.Problems, "metrics exposition is empty")
	}

	if err := c.registry.CheckInvariants(); err != nil {
		report.InvariantsOk = false
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, violation := range merr.Errors {
				report.Problems = append(report.Problems, violation.Error())
			}
		} else {
			report.Problems = append(report.Problems, err.Error())
		}
	}

	if !report.MetricsOk || !report.InvariantsOk {
		report.Status = HealthDegraded
	}
	return report
}

// Check implements health.Checker.
func (c *Controller) Check() error {
	report := c.Health()
	if report.Status == HealthOk {
		return nil
	}
	return errors.Errorf("controller %s: %s", report.Status, strings.Join(report.Problems, "; "))
}
