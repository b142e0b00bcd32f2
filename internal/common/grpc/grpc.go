package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	_ "google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/G-Research/chimp/internal/common/chimperrors"
	"github.com/G-Research/chimp/internal/common/requestid"
)

// CreateGrpcServer creates a gRPC server (by calling grpc.NewServer) with settings specific to
// this project, and registers interceptors for metrics, request ids, logging, error mapping and
// panic recovery.
func CreateGrpcServer(
	keepaliveParams keepalive.ServerParameters,
	keepaliveEnforcementPolicy keepalive.EnforcementPolicy,
	loggerOpts ...grpc_logrus.Option,
) *grpc.Server {
	grpc_prometheus.EnableHandlingTimeHistogram()

	messageDefault := log.NewEntry(log.StandardLogger())
	tagsExtractor := grpc_ctxtags.WithFieldExtractor(grpc_ctxtags.CodeGenRequestFieldExtractor)

	return grpc.NewServer(
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepaliveEnforcementPolicy),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_prometheus.UnaryServerInterceptor,
			requestid.UnaryServerInterceptor(false),
			grpc_ctxtags.UnaryServerInterceptor(tagsExtractor),
			grpc_logrus.UnaryServerInterceptor(messageDefault, loggerOpts...),
			chimperrors.UnaryServerInterceptor(),
			grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandler(panicRecoveryHandler)),
		)),
	)
}

// Listen binds port and serves grpcServer on it until the server is stopped.
// Returns once the server stops; the error is nil after a graceful stop.
func Listen(port uint16, grpcServer *grpc.Server) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", port)
	}
	return Serve(lis, grpcServer)
}

// Serve is Listen for an already bound listener.
func Serve(lis net.Listener, grpcServer *grpc.Server) error {
	defer log.Infof("Stopping grpc server.")
	log.Infof("Grpc listening on %s", lis.Addr())
	if err := grpcServer.Serve(lis); err != nil {
		return errors.Wrap(err, "failed to serve grpc")
	}
	return nil
}

// CreateShutdownHandler returns a function that shuts down the grpcServer when the context is closed.
// The server is given gracePeriod to perform a graceful showdown and is then forcibly stopped if necessary
func CreateShutdownHandler(ctx context.Context, gracePeriod time.Duration, grpcServer *grpc.Server) func() error {
	return func() error {
		<-ctx.Done()
		go func() {
			time.Sleep(gracePeriod)
			grpcServer.Stop()
		}()
		grpcServer.GracefulStop()
		return nil
	}
}

// This function is called whenever a gRPC handler panics.
func panicRecoveryHandler(p interface{}) (err error) {
	log.Errorf("Request triggered panic with cause %v \n%s", p, string(debug.Stack()))
	return status.Errorf(codes.Internal, "Internal server error caused by %v", p)
}
