package connectors

import (
	"context"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName      = "agentmesh.v1.AgentService"
	HandleFullMethod = "/" + ServiceName + "/Handle"
)

// AgentServiceServer: серверная сторона agentmesh.v1.AgentService.
type AgentServiceServer interface {
	Handle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc описан вручную: единственный unary метод, сообщения google.protobuf.Struct.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Handle", Handler: handleHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agentmesh/v1/agent_service.proto",
}

func handleHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServiceServer).Handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: HandleFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServiceServer).Handle(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Executor: каталог агентов с точки зрения транспорта.
type Executor interface {
	Execute(ctx context.Context, id string, task domain.Task) (domain.TaskResult, error)
}

// AgentServer открывает локальных агентов удаленным оркестраторам.
// Через gRPC идет тот же пайплайн, что и внутри процесса.
type AgentServer struct {
	exec   Executor
	logger *zap.Logger
}

func NewAgentServer(exec Executor, logger *zap.Logger) *AgentServer {
	return &AgentServer{exec: exec, logger: logger.Named("grpc")}
}

// Register вешает сервис на gRPC сервер.
func (s *AgentServer) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

func (s *AgentServer) Handle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	// 1. Разбираем конверт
	agentID, task := decodeTask(in)
	if agentID == "" || task.Type == "" {
		return nil, status.Error(codes.InvalidArgument, "agent and type are required")
	}

	// 2. Единый контракт агента
	res, err := s.exec.Execute(ctx, agentID, task)
	if err != nil {
		s.logger.Warn("remote call for unknown agent", zap.String("agent_id", agentID), zap.Error(err))
		return nil, status.Errorf(codes.NotFound, "%v", err)
	}

	// 3. Ответ обратно в Struct
	out, err := encodeResult(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}
