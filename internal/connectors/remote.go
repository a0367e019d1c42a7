package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/spaceai-agentmesh/internal/agents"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultCallTimeout = 60 * time.Second

// RemoteAgent: агент в другом процессе за agentmesh.v1.AgentService.
// Для оркестратора неотличим от локального: тот же Handle.
type RemoteAgent struct {
	id      string
	conn    *grpc.ClientConn
	token   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRemoteAgent. Соединение ленивое: grpc.NewClient не ходит в сеть до первого вызова.
func NewRemoteAgent(desc domain.AgentDescriptor, token string, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*RemoteAgent, error) {
	if desc.Endpoint == "" {
		return nil, fmt.Errorf("connectors: remote agent %s: empty endpoint", desc.ID)
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(desc.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("connectors: dial %s: %w", desc.Endpoint, err)
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &RemoteAgent{
		id:      desc.ID,
		conn:    conn,
		token:   token,
		timeout: timeout,
		logger:  logger.With(zap.String("agent_id", desc.ID), zap.String("endpoint", desc.Endpoint)),
	}, nil
}

func (a *RemoteAgent) Handle(ctx context.Context, task domain.Task) domain.TaskResult {
	// 1. Конверт задачи
	in, err := encodeTask(a.id, task)
	if err != nil {
		return domain.Failed(err.Error())
	}

	// 2. Защитный таймаут на уровне вызова
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if a.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+a.token)
	}

	// 3. Вызов
	out := new(structpb.Struct)
	if err := a.conn.Invoke(ctx, HandleFullMethod, in, out); err != nil {
		a.logger.Warn("remote agent call failed", zap.Error(err))
		return domain.Failed(fmt.Sprintf("remote agent %s call failed: %v", a.id, err))
	}
	return decodeResult(out)
}

func (a *RemoteAgent) Close() error {
	return a.conn.Close()
}

// RegisterRemoteKind учит каталог строить удаленных агентов из манифестов.
func RegisterRemoteKind(dir *agents.Directory, token string, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) {
	dir.RegisterKind(agents.KindRemote, func(desc domain.AgentDescriptor) (agents.Handler, error) {
		return NewRemoteAgent(desc, token, timeout, logger.Named("remote"), opts...)
	})
}
