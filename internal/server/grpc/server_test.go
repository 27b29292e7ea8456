package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

func TestToStatus(t *testing.T) {
	assert.NoError(t, toStatus(nil))

	err := toStatus(errorbank.Conflict("busy"))
	assert.Equal(t, codes.Aborted, status.Code(err))
	assert.Equal(t, "busy", status.Convert(err).Message())

	assert.Equal(t, codes.Unavailable, status.Code(toStatus(errorbank.StoreUnavailable("down"))))
	assert.Equal(t, codes.NotFound, status.Code(toStatus(errorbank.NotFound("missing"))))
	assert.Equal(t, codes.Internal, status.Code(toStatus(errors.New("boom"))))

	passthrough := status.Error(codes.PermissionDenied, "no")
	assert.Equal(t, passthrough, toStatus(passthrough))
}

func TestUnaryErrorMapper(t *testing.T) {
	mapper := UnaryErrorMapper()
	_, err := mapper(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x"}, func(context.Context, any) (any, error) {
		return nil, errorbank.InvalidInput("bad id")
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_HealthCheck(t *testing.T) {
	healthSrv := NewHealth()
	server := NewServer(zaptest.NewLogger(t), healthSrv)
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
