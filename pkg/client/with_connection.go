package client

import (
	"google.golang.org/grpc"

	"github.com/G-Research/chimp/pkg/api"
)

func WithConnection(apiConnectionDetails *ApiConnectionDetails, action func(*grpc.ClientConn) error) error {
	conn, err := CreateApiConnection(apiConnectionDetails)
	if err != nil {
		return err
	}
	defer conn.Close()
	return action(conn)
}

func WithAgentClient(apiConnectionDetails *ApiConnectionDetails, action func(api.AgentClient) error) error {
	return WithConnection(apiConnectionDetails, func(cc *grpc.ClientConn) error {
		client := api.NewAgentClient(cc)
		return action(client)
	})
}
