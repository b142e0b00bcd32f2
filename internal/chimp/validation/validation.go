// Package validation checks start requests before any state is touched.
package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/G-Research/chimp/internal/common/chimperrors"
	"github.com/G-Research/chimp/internal/common/config"
	"github.com/G-Research/chimp/internal/common/validation"
	"github.com/G-Research/chimp/pkg/api"
)

const (
	MinDutyPercent = 1
	MaxDutyPercent = 100

	bytesPerMegabyte = 1024 * 1024
)

// NewStartRequestValidator returns the validator for start requests. Rules run in order and the
// first failure is returned. maxMemory caps memory experiments, see MemoryLimit; zero disables the cap.
func NewStartRequestValidator(maxMemory config.Bytes) validation.Validator[*api.StartRequest] {
	return validation.NewCompoundValidator[*api.StartRequest](
		experimentIdValidator{},
		durationValidator{},
		kindValidator{},
		paramsValidator{},
		dutyPercentValidator{},
		memoryLimit(maxMemory),
	)
}

// MemoryLimit returns the cap memory experiments are held to: the configured limit, but never more
// than hostTotal, the memory accessible to the kernel. A zero hostTotal means the host size is unknown
// and only the configured limit applies.
func MemoryLimit(configured config.Bytes, hostTotal uint64) config.Bytes {
	if hostTotal == 0 {
		return configured
	}
	host := config.Bytes(math.MaxInt64)
	if hostTotal < math.MaxInt64 {
		host = config.Bytes(hostTotal)
	}
	if configured <= 0 || configured > host {
		return host
	}
	return configured
}

type experimentIdValidator struct{}

func (experimentIdValidator) Validate(req *api.StartRequest) error {
	if strings.TrimSpace(req.ExperimentId) == "" {
		return &chimperrors.ErrInvalidArgument{
			Name:    "experiment_id",
			Value:   req.ExperimentId,
			Message: "must not be blank",
		}
	}
	return nil
}

type durationValidator struct{}

func (durationValidator) Validate(req *api.StartRequest) error {
	if req.DurationSeconds == 0 {
		return &chimperrors.ErrInvalidArgument{
			Name:    "duration_seconds",
			Value:   req.DurationSeconds,
			Message: "must be greater than 0",
		}
	}
	return nil
}

type kindValidator struct{}

func (kindValidator) Validate(req *api.StartRequest) error {
	switch req.Kind {
	case api.KindCpu, api.KindMemory:
		return nil
	default:
		return &chimperrors.ErrInvalidArgument{
			Name:    "kind",
			Value:   req.Kind,
			Message: fmt.Sprintf("must be one of %s, %s", api.KindCpu, api.KindMemory),
		}
	}
}

type paramsValidator struct{}

func (paramsValidator) Validate(req *api.StartRequest) error {
	if req.Params == nil {
		return &chimperrors.ErrInvalidArgument{
			Name:    "params",
			Value:   nil,
			Message: fmt.Sprintf("params are required for kind %s", req.Kind),
		}
	}
	if req.Params.Type != req.Kind {
		return &chimperrors.ErrInvalidArgument{
			Name:    "params.type",
			Value:   req.Params.Type,
			Message: fmt.Sprintf("must match kind %s", req.Kind),
		}
	}
	return nil
}

type dutyPercentValidator struct{}

func (dutyPercentValidator) Validate(req *api.StartRequest) error {
	if req.Kind != api.KindCpu {
		return nil
	}
	duty := req.Params.DutyPercent
	if duty < MinDutyPercent || duty > MaxDutyPercent {
		return &chimperrors.ErrInvalidArgument{
			Name:    "duty_percent",
			Value:   duty,
			Message: fmt.Sprintf("must be in [%d, %d]", MinDutyPercent, MaxDutyPercent),
		}
	}
	return nil
}

func memoryLimit(maxMemory config.Bytes) validation.Validator[*api.StartRequest] {
	return validation.ValidatorFunc[*api.StartRequest](func(req *api.StartRequest) error {
		if req.Kind != api.KindMemory || maxMemory <= 0 {
			return nil
		}
		requested := config.Bytes(int64(req.Params.MemoryMb) * bytesPerMegabyte)
		if requested > maxMemory {
			return &chimperrors.ErrInvalidArgument{
				Name:    "memory_mb",
				Value:   req.Params.MemoryMb,
				Message: fmt.Sprintf("%s exceeds the host limit of %s", requested, maxMemory),
			}
		}
		return nil
	})
}
