package api

// Experiment kinds accepted by the agent.
const (
	KindCpu    = "CPU"
	KindMemory = "MEMORY"
)

// Values of the Status field on non-error responses.
const (
	StatusOk    = "ok"
	StatusError = "error"
)

// StartRequest asks the agent to run a single load experiment.
// Params.Type must match Kind.
type StartRequest struct {
	ExperimentId    string       `json:"experiment_id"`
	Kind            string       `json:"kind"`
	DurationSeconds uint32       `json:"duration_seconds"`
	Params          *StartParams `json:"params,omitempty"`
}

// StartParams carries the kind-specific settings of a StartRequest. Only the field
// matching Type is meaningful.
type StartParams struct {
	Type        string `json:"type"`
	DutyPercent uint32 `json:"duty_percent,omitempty"`
	MemoryMb    uint32 `json:"memory_mb,omitempty"`
}

func CpuParams(dutyPercent uint32) *StartParams {
	return &StartParams{Type: KindCpu, DutyPercent: dutyPercent}
}

func MemoryParams(memoryMb uint32) *StartParams {
	return &StartParams{Type: KindMemory, MemoryMb: memoryMb}
}

type StartResponse struct {
	Status       string `json:"status"`
	ExperimentId string `json:"experiment_id,omitempty"`
	RunId        string `json:"run_id,omitempty"`
	StartedAt    int64  `json:"started_ts_seconds,omitempty"`
	EndsAt       int64  `json:"ends_ts_seconds,omitempty"`
}

type StopRequest struct {
	ExperimentId string `json:"experiment_id"`
}

type StopResponse struct {
	Status string `json:"status"`
}

type StatusRequest struct {
	ExperimentId string `json:"experiment_id"`
}

// ExperimentState is the externally visible snapshot of one experiment.
type ExperimentState struct {
	Running              bool   `json:"running"`
	Kind                 string `json:"kind"`
	TotalDurationSeconds uint32 `json:"total_duration_seconds"`
	RemainingSeconds     uint32 `json:"remaining_seconds"`
	StartedAt            int64  `json:"started_ts_seconds"`
	EndsAt               int64  `json:"ends_ts_seconds"`
}

type MetricsRequest struct{}

type MetricsResponse struct {
	Text string `json:"text"`
}

type HealthRequest struct{}

type HealthResponse struct {
	Status       string   `json:"status"`
	Running      bool     `json:"running"`
	RunningId    string   `json:"running_id,omitempty"`
	MetricsOk    bool     `json:"metrics_ok"`
	InvariantsOk bool     `json:"invariants_ok"`
	Problems     []string `json:"problems,omitempty"`
}

// ErrorResponse is the body returned by the HTTP API for any failed request.
type ErrorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}
