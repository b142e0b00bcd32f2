package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/G-Research/chimp/internal/chimp/controller"
	"github.com/G-Research/chimp/internal/chimp/domain"
	"github.com/G-Research/chimp/internal/common/chimperrors"
	grpcCommon "github.com/G-Research/chimp/internal/common/grpc"
	"github.com/G-Research/chimp/pkg/api"
)

func newAgentClient(t *testing.T, fake ExperimentController) api.AgentClient {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpcCommon.CreateGrpcServer(keepalive.ServerParameters{}, keepalive.EnforcementPolicy{})
	api.RegisterAgentServer(grpcServer, NewAgentServer(fake))
	go func() {
		_ = grpcCommon.Serve(lis, grpcServer)
	}()
	t.Cleanup(grpcServer.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(
		ctx,
		"bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return api.NewAgentClient(conn)
}

func TestAgentServer_Start(t *testing.T) {
	fake := &fakeController{}
	client := newAgentClient(t, fake)

	resp, err := client.Start(context.Background(), &api.StartRequest{
		ExperimentId:    "e1",
		Kind:            api.KindCpu,
		DurationSeconds: 30,
		Params:          api.CpuParams(10),
	})
	require.NoError(t, err)
	assert.Equal(t, &api.StartResponse{
		Status:       api.StatusOk,
		ExperimentId: "e1",
		RunId:        "run-1",
		StartedAt:    100,
		EndsAt:       130,
	}, resp)
	require.Len(t, fake.started, 1)
	assert.Equal(t, uint32(10), fake.started[0].Params.DutyPercent)
}

func TestAgentServer_ErrorCodes(t *testing.T) {
	tests := map[string]struct {
		fake     *fakeController
		call     func(api.AgentClient) error
		code     codes.Code
		contains string
	}{
		"start conflict": {
			fake: &fakeController{startErr: &chimperrors.ErrConflict{Type: "experiment", RunningId: "e1"}},
			call: func(c api.AgentClient) error {
				_, err := c.Start(context.Background(), &api.StartRequest{ExperimentId: "e2"})
				return err
			},
			code:     codes.AlreadyExists,
			contains: "another experiment running: e1",
		},
		"start invalid": {
			fake: &fakeController{startErr: &chimperrors.ErrInvalidArgument{Name: "experiment_id", Value: "", Message: "must not be blank"}},
			call: func(c api.AgentClient) error {
				_, err := c.Start(context.Background(), &api.StartRequest{})
				return err
			},
			code:     codes.InvalidArgument,
			contains: "must not be blank",
		},
		"stop not found": {
			fake: &fakeController{stopErr: &chimperrors.ErrNotFound{Type: "experiment", Value: "e1"}},
			call: func(c api.AgentClient) error {
				_, err := c.Stop(context.Background(), &api.StopRequest{ExperimentId: "e1"})
				return err
			},
			code:     codes.NotFound,
			contains: `experiment "e1" not found`,
		},
		"status not found": {
			fake: &fakeController{statusErr: &chimperrors.ErrNotFound{Type: "experiment", Value: "e3"}},
			call: func(c api.AgentClient) error {
				_, err := c.Status(context.Background(), &api.StatusRequest{ExperimentId: "e3"})
				return err
			},
			code:     codes.NotFound,
			contains: `experiment "e3" not found`,
		},
		"metrics internal": {
			fake: &fakeController{metricsErr: &chimperrors.ErrInternal{Message: "failed to encode metrics", Err: errors.New("boom")}},
			call: func(c api.AgentClient) error {
				_, err := c.Metrics(context.Background(), &api.MetricsRequest{})
				return err
			},
			code:     codes.Internal,
			contains: "failed to encode metrics",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.call(newAgentClient(t, tc.fake))
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tc.code, st.Code())
			assert.Contains(t, st.Message(), tc.contains)
		})
	}
}

func TestAgentServer_Queries(t *testing.T) {
	fake := &fakeController{
		state: domain.ExperimentState{Kind: api.KindMemory, TotalDurationSeconds: 5, StartedAtUnix: 100, EndsAtUnix: 105},
		health: controller.HealthReport{
			Status:       controller.HealthDegraded,
			MetricsOk:    true,
			InvariantsOk: false,
			Problems:     []string{"2 experiments running at once"},
		},
	}
	client := newAgentClient(t, fake)

	state, err := client.Status(context.Background(), &api.StatusRequest{ExperimentId: "m1"})
	require.NoError(t, err)
	assert.False(t, state.Running)
	assert.Equal(t, api.KindMemory, state.Kind)
	assert.Equal(t, int64(105), state.EndsAt)

	stopResp, err := client.Stop(context.Background(), &api.StopRequest{ExperimentId: "m1"})
	require.NoError(t, err)
	assert.Equal(t, api.StatusOk, stopResp.Status)

	metricsResp, err := client.Metrics(context.Background(), &api.MetricsRequest{})
	require.NoError(t, err)
	assert.Equal(t, "agent_experiment_active 0\n", metricsResp.Text)

	healthResp, err := client.Health(context.Background(), &api.HealthRequest{})
	require.NoError(t, err)
	assert.Equal(t, controller.HealthDegraded, healthResp.Status)
	assert.Equal(t, []string{"2 experiments running at once"}, healthResp.Problems)
}
