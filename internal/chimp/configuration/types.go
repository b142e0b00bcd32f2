package configuration

import (
	"time"

	"github.com/G-Research/chimp/internal/common/config"
	grpcconfig "github.com/G-Research/chimp/internal/common/grpc/configuration"
)

type ChimpConfig struct {
	GrpcPort    uint16
	HttpPort    uint16
	MetricsPort uint16

	Grpc       grpcconfig.GrpcConfig
	Experiment ExperimentConfig
	Metrics    MetricsConfig

	// How long the running experiment and in-flight requests get to wind down on shutdown.
	ShutdownGracePeriod time.Duration
}

type ExperimentConfig struct {
	// Period at which the memory generator touches its buffer.
	MemoryTouchInterval time.Duration
	// Largest memory experiment accepted, never more than the host's memory. Zero means the host's memory.
	MaxMemory config.Bytes
}

type MetricsConfig struct {
	// How often the remaining-seconds gauge is recomputed.
	RefreshInterval time.Duration
}
