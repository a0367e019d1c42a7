package killswitch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-agentmesh/internal/agents"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

func TestManager_LocalBlockUnblock(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, zap.NewNop())
	require.NoError(t, m.Init(ctx, []string{"rogue-agent"}))

	assert.True(t, m.IsBlocked("rogue-agent"))
	assert.False(t, m.IsBlocked("research-agent"))

	require.NoError(t, m.Block(ctx, "research-agent"))
	assert.Equal(t, []string{"research-agent", "rogue-agent"}, m.Blocked())

	require.NoError(t, m.Unblock(ctx, "rogue-agent"))
	assert.False(t, m.IsBlocked("rogue-agent"))

	assert.Error(t, m.Block(ctx, ""))
}

func TestManager_ProcessSignal(t *testing.T) {
	m := NewManager(nil, zap.NewNop())

	m.processSignal("alpha-agent:on")
	assert.True(t, m.IsBlocked("alpha-agent"))

	m.processSignal("alpha-agent:off")
	assert.False(t, m.IsBlocked("alpha-agent"))

	// Мусор не меняет состояние
	m.processSignal("alpha-agent")
	m.processSignal(":on")
	assert.Empty(t, m.Blocked())
}

func TestManager_GatesDirectory(t *testing.T) {
	ctx := context.Background()
	dir := agents.NewDirectory(zap.NewNop())
	require.NoError(t, dir.Register(domain.AgentDescriptor{ID: "alpha-agent"}, agents.HandlerFunc(
		func(context.Context, domain.Task) domain.TaskResult { return domain.Succeeded("ok") })))
	_, err := dir.Discover(ctx)
	require.NoError(t, err)

	m := NewManager(nil, zap.NewNop())
	dir.SetGate(m)

	_, ok := dir.ResolveInstance("alpha-agent")
	assert.True(t, ok)

	require.NoError(t, m.Block(ctx, "alpha-agent"))
	_, ok = dir.ResolveInstance("alpha-agent")
	assert.False(t, ok)
	assert.True(t, dir.IsValid("alpha-agent"), "blocked agent stays in the directory")

	_, err = dir.Execute(ctx, "alpha-agent", domain.Task{Type: domain.TaskExecute})
	assert.True(t, errors.Is(err, agents.ErrUnknownAgent))

	require.NoError(t, m.Unblock(ctx, "alpha-agent"))
	res, err := dir.Execute(ctx, "alpha-agent", domain.Task{Type: domain.TaskExecute})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
