package client

import (
	"strings"
	"time"

	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/G-Research/chimp/pkg/api"
)

type ApiConnectionDetails struct {
	AgentUrl   string
	ForceNoTls bool
}

type ConnectionDetails func() *ApiConnectionDetails

func CreateApiConnection(config *ApiConnectionDetails, additionalDialOptions ...grpc.DialOption) (*grpc.ClientConn, error) {
	return CreateApiConnectionWithCallOptions(config, []grpc.CallOption{}, additionalDialOptions...)
}

func CreateApiConnectionWithCallOptions(
	config *ApiConnectionDetails,
	additionalDefaultCallOptions []grpc.CallOption,
	additionalDialOptions ...grpc.DialOption,
) (*grpc.ClientConn, error) {
	retryOpts := []grpc_retry.CallOption{
		grpc_retry.WithBackoff(grpc_retry.BackoffExponential(1 * time.Second)),
		grpc_retry.WithMax(3),
	}

	callOptions := append(additionalDefaultCallOptions, grpc.WaitForReady(true), grpc.CallContentSubtype(api.CodecName))

	defaultCallOptions := grpc.WithDefaultCallOptions(callOptions...)
	unaryInterceptors := grpc.WithChainUnaryInterceptor(grpc_retry.UnaryClientInterceptor(retryOpts...))

	dialOpts := append(additionalDialOptions,
		defaultCallOptions,
		unaryInterceptors,
		transportCredentials(config))

	return grpc.Dial(config.AgentUrl, dialOpts...)
}

func transportCredentials(config *ApiConnectionDetails) grpc.DialOption {
	if !config.ForceNoTls && !isLocal(config.AgentUrl) {
		return grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, ""))
	}
	return grpc.WithTransportCredentials(insecure.NewCredentials())
}

func isLocal(url string) bool {
	return strings.Contains(url, "localhost") || strings.HasPrefix(url, "127.0.0.1")
}
