package connectors

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-agentmesh/internal/agents"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// startServer поднимает AgentServer поверх каталога на in-memory listener.
func startServer(t *testing.T, dir *agents.Directory, opts ...grpc.ServerOption) []grpc.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(opts...)
	NewAgentServer(dir, zap.NewNop()).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	return []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

func serverDirectory(t *testing.T) *agents.Directory {
	t.Helper()
	dir := agents.NewDirectory(zap.NewNop())
	require.NoError(t, dir.Register(domain.AgentDescriptor{ID: "echo-agent"}, agents.HandlerFunc(
		func(_ context.Context, task domain.Task) domain.TaskResult {
			if task.Type != domain.TaskExecute {
				return domain.Failed("Unknown task type: " + task.Type)
			}
			return domain.Succeeded(map[string]interface{}{
				"echo":         task.PayloadString("userRequest"),
				"deliverables": task.Payload["requiredDeliverables"],
			})
		})))
	_, err := dir.Discover(context.Background())
	require.NoError(t, err)
	return dir
}

func TestRemoteAgent_RoundTrip(t *testing.T) {
	dial := startServer(t, serverDirectory(t))

	remote, err := NewRemoteAgent(domain.AgentDescriptor{ID: "echo-agent", Endpoint: "passthrough:///bufnet"}, "", time.Second, zap.NewNop(), dial...)
	require.NoError(t, err)
	defer remote.Close()

	res := remote.Handle(context.Background(), domain.Task{
		Type: domain.TaskExecute,
		Payload: map[string]interface{}{
			"userRequest":          "Do X",
			"requiredDeliverables": []string{"report", "deck"},
			"priority":             3,
		},
	})
	require.True(t, res.Success, res.Error)
	out := res.Result.(map[string]interface{})
	assert.Equal(t, "Do X", out["echo"])
	assert.Equal(t, []interface{}{"report", "deck"}, out["deliverables"])

	res = remote.Handle(context.Background(), domain.Task{Type: "dance"})
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown task type: dance", res.Error)
}

func TestRemoteAgent_UnknownAgentAndEmptyEndpoint(t *testing.T) {
	dial := startServer(t, serverDirectory(t))

	remote, err := NewRemoteAgent(domain.AgentDescriptor{ID: "ghost-agent", Endpoint: "passthrough:///bufnet"}, "", time.Second, zap.NewNop(), dial...)
	require.NoError(t, err)
	defer remote.Close()

	res := remote.Handle(context.Background(), domain.Task{Type: domain.TaskExecute})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "NotFound")

	_, err = NewRemoteAgent(domain.AgentDescriptor{ID: "x"}, "", 0, zap.NewNop())
	assert.Error(t, err)
}

type staticValidator map[string]string

func (v staticValidator) VerifyToken(token string) (*domain.CustomClaims, error) {
	if id, ok := v[token]; ok {
		return &domain.CustomClaims{UserID: id}, nil
	}
	return nil, assert.AnError
}

func TestRemoteAgent_AuthInterceptor(t *testing.T) {
	v := staticValidator{"Bearer good": "user-1"}
	dial := startServer(t, serverDirectory(t), grpc.UnaryInterceptor(auth.UnaryInterceptor(v, zap.NewNop())))
	desc := domain.AgentDescriptor{ID: "echo-agent", Endpoint: "passthrough:///bufnet"}

	anon, err := NewRemoteAgent(desc, "", time.Second, zap.NewNop(), dial...)
	require.NoError(t, err)
	defer anon.Close()
	res := anon.Handle(context.Background(), domain.Task{Type: domain.TaskExecute})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Unauthenticated")

	authed, err := NewRemoteAgent(desc, "good", time.Second, zap.NewNop(), dial...)
	require.NoError(t, err)
	defer authed.Close()
	res = authed.Handle(context.Background(), domain.Task{Type: domain.TaskExecute, Payload: map[string]interface{}{"userRequest": "hi"}})
	assert.True(t, res.Success, res.Error)
}

func TestRegisterRemoteKind_BuildsFromManifest(t *testing.T) {
	dial := startServer(t, serverDirectory(t))

	client := agents.NewDirectory(zap.NewNop(), staticSource{
		{ID: "echo-agent", Kind: string(agents.KindRemote), Endpoint: "passthrough:///bufnet"},
	})
	RegisterRemoteKind(client, "", time.Second, zap.NewNop(), dial...)

	_, err := client.Discover(context.Background())
	require.NoError(t, err)
	res, err := client.Execute(context.Background(), "echo-agent", domain.Task{Type: domain.TaskExecute, Payload: map[string]interface{}{"userRequest": "via manifest"}})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "via manifest", res.Result.(map[string]interface{})["echo"])
}

type staticSource []domain.AgentDescriptor

func (s staticSource) Name() string { return "static" }

func (s staticSource) Discover(context.Context) ([]domain.AgentDescriptor, error) {
	return s, nil
}
