package agents

import (
	"context"
	"errors"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

var (
	// ErrDiscovery: каталог недоступен. Это фатально: "ноль агентов" так не выражается.
	ErrDiscovery = errors.New("agents: AGENT DISCOVERY FAILED")
	// ErrUnknownAgent: id нет в каталоге или для него нет реализации.
	ErrUnknownAgent = errors.New("agents: unknown agent")
)

// Handler единый контракт агента: получить задачу, вернуть результат или ошибку.
// Ошибки исполнения передаются через TaskResult, а не через панику.
type Handler interface {
	Handle(ctx context.Context, task domain.Task) domain.TaskResult
}

// HandlerFunc позволяет использовать обычную функцию как агента.
type HandlerFunc func(ctx context.Context, task domain.Task) domain.TaskResult

func (f HandlerFunc) Handle(ctx context.Context, task domain.Task) domain.TaskResult {
	return f(ctx, task)
}

// Kind: тип реализации агента. Строковый id живет только на границе (discovery, конфиг),
// внутри инстанс строится по Kind через зарегистрированную фабрику.
type Kind string

const (
	KindCoordinator    Kind = "coordinator"
	KindCommunications Kind = "communications"
	KindResearcher     Kind = "researcher"
	KindAnalyst        Kind = "analyst"
	KindCreative       Kind = "creative"
	KindDeveloper      Kind = "developer"
	KindAssistant      Kind = "assistant"
	KindRemote         Kind = "remote" // gRPC агент за пределами процесса
)

// Factory строит инстанс агента по его описанию.
type Factory func(desc domain.AgentDescriptor) (Handler, error)

// Source: откуда берутся описания агентов.
type Source interface {
	Name() string
	Discover(ctx context.Context) ([]domain.AgentDescriptor, error)
}
