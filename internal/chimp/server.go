package chimp

import (
	"context"
	"fmt"
	"net"
	"net/http"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/G-Research/chimp/internal/chimp/configuration"
	"github.com/G-Research/chimp/internal/chimp/controller"
	"github.com/G-Research/chimp/internal/chimp/metrics"
	"github.com/G-Research/chimp/internal/chimp/registry"
	"github.com/G-Research/chimp/internal/chimp/server"
	"github.com/G-Research/chimp/internal/common"
	grpcCommon "github.com/G-Research/chimp/internal/common/grpc"
	"github.com/G-Research/chimp/internal/common/health"
	"github.com/G-Research/chimp/internal/common/task"
	"github.com/G-Research/chimp/pkg/api"
)

// Serve runs the agent's gRPC and HTTP servers until ctx is cancelled or one of them fails.
// On the way out the running experiment is stopped and its generator awaited.
func Serve(ctx context.Context, config *configuration.ChimpConfig, healthChecks *health.MultiChecker) error {
	log.Info("Chimp agent starting")
	defer log.Info("Chimp agent shutting down")

	// We call startupCompleteCheck.MarkComplete() when all services have been started.
	startupCompleteCheck := health.NewStartupCompleteChecker()
	healthChecks.Add(startupCompleteCheck)

	// Run all services within an errgroup to propagate errors between services.
	// Defer cancelling the parent context to ensure the errgroup is cancelled on return.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	clk := clock.RealClock{}
	agentMetrics := metrics.New()
	experiments := controller.New(registry.New(clk), agentMetrics, config.Experiment, clk)
	healthChecks.Add(experiments)

	shutdownMetricServer := common.ServeMetrics(config.MetricsPort, agentMetrics.Gatherer())
	defer shutdownMetricServer()

	taskManager := task.NewBackgroundTaskManager("chimp_", prometheus.DefaultRegisterer)
	taskManager.Register(experiments.RefreshGauges, config.Metrics.RefreshInterval, "refresh_gauges")

	grpcServer := grpcCommon.CreateGrpcServer(config.Grpc.KeepaliveParams, config.Grpc.KeepaliveEnforcementPolicy)
	api.RegisterAgentServer(grpcServer, server.NewAgentServer(experiments))
	grpc_prometheus.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.GrpcPort))
	if err != nil {
		return errors.WithStack(err)
	}
	httpListener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.HttpPort))
	if err != nil {
		_ = grpcListener.Close()
		return errors.WithStack(err)
	}
	httpServer := &http.Server{Handler: server.NewHttpHandler(experiments, healthChecks)}

	services := []func() error{
		func() error {
			return grpcCommon.Serve(grpcListener, grpcServer)
		},
		grpcCommon.CreateShutdownHandler(ctx, config.ShutdownGracePeriod, grpcServer),
		func() error {
			log.Infof("Chimp HTTP server listening on %s", httpListener.Addr())
			if err := httpServer.Serve(httpListener); err != http.ErrServerClosed {
				return errors.Wrap(err, "http server failed")
			}
			return nil
		},
		func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
			defer cancel()

			if timedOut := taskManager.StopAll(config.ShutdownGracePeriod); timedOut {
				log.Warn("Background tasks did not stop in time")
			}
			if err := experiments.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("Experiment did not stop in time")
			}
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	// Start all services and wait for the context to be cancelled,
	// which if the parent context is cancelled or if any of the services returns an error.
	// We start all services at the end of the function to ensure all services are ready.
	for _, service := range services {
		g.Go(service)
	}

	startupCompleteCheck.MarkComplete()
	return g.Wait()
}
