package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *memRecorder) Record(e domain.AuditEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func (r *memRecorder) Entries() []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEntry(nil), r.entries...)
}

type grantRepo struct {
	grants []domain.Grant
	err    error
}

func (r grantRepo) AllGrants(context.Context) ([]domain.Grant, error) {
	return r.grants, r.err
}

func newBridge(t *testing.T, grants ...domain.Grant) (*Bridge, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	src := StaticSource{
		DataIdentity:       {"name": "Ada", "role": "Engineer"},
		DataProjectContext: {"active_projects": "agentmesh"},
	}
	return New(NewPolicy(grants, nil, zap.NewNop()), src, rec, rec, zap.NewNop()), rec
}

func allow(agent, dataType string) domain.Grant {
	return domain.Grant{AgentID: agent, DataType: dataType, Effect: domain.EffectAllow}
}

func TestPolicy_DecideOrder(t *testing.T) {
	p := NewPolicy([]domain.Grant{
		allow("*", "project-context"),
		{AgentID: "rogue-agent", DataType: "project-context", Effect: domain.EffectDeny},
		allow("communications-agent", "*"),
		{AgentID: "empty-agent", DataType: "identity"},
		{AgentID: "*", DataType: "communications-style", Effect: domain.EffectDeny},
	}, nil, zap.NewNop())

	assert.Equal(t, domain.EffectAllow, p.Decide("researcher-agent", "project-context"))
	assert.Equal(t, domain.EffectDeny, p.Decide("rogue-agent", "project-context"))
	assert.Equal(t, domain.EffectAllow, p.Decide("communications-agent", "identity"))
	assert.Equal(t, domain.EffectDeny, p.Decide("researcher-agent", "identity"))
	// *:dataType сильнее agent:*
	assert.Equal(t, domain.EffectDeny, p.Decide("communications-agent", "communications-style"))
	// Пустой эффект трактуется как запрет
	assert.Equal(t, domain.EffectDeny, p.Decide("empty-agent", "identity"))
}

func TestPolicy_RefreshKeepsStaticAndAppliesRepo(t *testing.T) {
	repo := grantRepo{grants: []domain.Grant{allow("researcher-agent", "identity")}}
	p := NewPolicy([]domain.Grant{allow("*", "project-context")}, repo, zap.NewNop())

	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, domain.EffectAllow, p.Decide("researcher-agent", "identity"))
	assert.Equal(t, domain.EffectAllow, p.Decide("any-agent", "project-context"))
	assert.Len(t, p.Grants(), 2)

	p.Upsert(domain.Grant{AgentID: "researcher-agent", DataType: "identity", Effect: domain.EffectDeny})
	assert.Equal(t, domain.EffectDeny, p.Decide("researcher-agent", "identity"))

	failing := NewPolicy(nil, grantRepo{err: errors.New("db down")}, zap.NewNop())
	assert.Error(t, failing.Refresh(context.Background()))
}

type writableRepo struct {
	saved []domain.Grant
	err   error
}

func (r *writableRepo) AllGrants(context.Context) ([]domain.Grant, error) { return r.saved, nil }

func (r *writableRepo) SaveGrant(_ context.Context, g domain.Grant) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, g)
	return nil
}

func TestPolicy_PutPersistsThenApplies(t *testing.T) {
	ctx := context.Background()
	repo := &writableRepo{}
	p := NewPolicy(nil, repo, zap.NewNop())

	require.NoError(t, p.Put(ctx, domain.Grant{AgentID: "analyst-agent", DataType: "identity", Effect: "bogus"}))
	require.Len(t, repo.saved, 1)
	assert.Equal(t, domain.EffectDeny, repo.saved[0].Effect, "unknown effect is normalized to deny")

	require.NoError(t, p.Put(ctx, allow("analyst-agent", "identity")))
	assert.Equal(t, domain.EffectAllow, p.Decide("analyst-agent", "identity"))

	assert.Error(t, p.Put(ctx, domain.Grant{AgentID: "analyst-agent"}))

	repo.err = errors.New("db down")
	assert.Error(t, p.Put(ctx, allow("analyst-agent", "project-context")))
	assert.Equal(t, domain.EffectDeny, p.Decide("analyst-agent", "project-context"), "failed write is not applied")
}

func TestBridge_GrantedRequestReturnsDataAndAudits(t *testing.T) {
	b, rec := newBridge(t, allow("communications-agent", DataIdentity))

	res := b.Handle(context.Background(), domain.Task{
		Type:    TaskGetIdentityData,
		Payload: map[string]interface{}{"requestingAgent": "communications-agent"},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Ada", res.Result.(map[string]string)["name"])

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "granted", entries[0].Action)
	assert.Equal(t, "communications-agent", entries[0].Agent)
	assert.Equal(t, DataIdentity, entries[0].DataType)
	assert.NotEmpty(t, entries[0].Timestamp)
}

func TestBridge_UnknownPairDenied(t *testing.T) {
	b, rec := newBridge(t, allow("communications-agent", DataIdentity))

	res := b.Handle(context.Background(), domain.Task{
		Type:    TaskGetIdentityData,
		Payload: map[string]interface{}{"requestingAgent": "unknown-agent"},
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "access denied")
	assert.Nil(t, res.Result)

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "denied", entries[0].Action)
}

func TestBridge_VerifyAccessAndMissingData(t *testing.T) {
	b, _ := newBridge(t, allow("*", DataCommunicationStyle), allow("master-orchestrator", DataProjectContext))
	ctx := context.Background()

	res := b.Handle(ctx, domain.Task{Type: TaskVerifyAccess, Payload: map[string]interface{}{
		"requestingAgent": "master-orchestrator", "dataType": DataProjectContext,
	}})
	require.True(t, res.Success)
	assert.Equal(t, true, res.Result.(map[string]interface{})["hasAccess"])

	// Доступ есть, данных нет
	res = b.Handle(ctx, domain.Task{Type: TaskGetCommunicationsStyle, Payload: map[string]interface{}{
		"requestingAgent": "researcher-agent",
	}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no data")

	res = b.Handle(ctx, domain.Task{Type: TaskVerifyAccess, Payload: map[string]interface{}{}})
	assert.False(t, res.Success)
}

func TestBridge_AuditLogIsGated(t *testing.T) {
	b, _ := newBridge(t, allow("privacy-guardian-agent", DataAuditLog))
	ctx := context.Background()

	res := b.Handle(ctx, domain.Task{Type: TaskGetAuditLog, Payload: map[string]interface{}{}})
	assert.False(t, res.Success)

	res = b.Handle(ctx, domain.Task{Type: TaskGetAuditLog, Payload: map[string]interface{}{"requestingAgent": "privacy-guardian-agent"}})
	require.True(t, res.Success)
	entries := res.Result.([]domain.AuditEntry)
	// Отказ и само чтение журнала
	require.Len(t, entries, 2)
	assert.Equal(t, "denied", entries[0].Action)
	assert.Equal(t, "granted", entries[1].Action)

	res = b.Handle(ctx, domain.Task{Type: "steal-everything"})
	assert.Equal(t, "Unknown task type: steal-everything", res.Error)
}

type failingSource struct{ err error }

func (f failingSource) Fetch(context.Context, string) (map[string]string, error) { return nil, f.err }

func TestChain_FallsThroughOnlyOnNoData(t *testing.T) {
	ctx := context.Background()
	primary := StaticSource{DataIdentity: {"name": "Primary"}}
	secondary := StaticSource{DataIdentity: {"name": "Secondary"}, DataProjectContext: {"project": "Mesh"}}
	chain := Chain{primary, secondary}

	data, err := chain.Fetch(ctx, DataIdentity)
	require.NoError(t, err)
	assert.Equal(t, "Primary", data["name"])

	data, err = chain.Fetch(ctx, DataProjectContext)
	require.NoError(t, err)
	assert.Equal(t, "Mesh", data["project"])

	_, err = chain.Fetch(ctx, DataCommunicationStyle)
	assert.ErrorIs(t, err, ErrNoData)

	broken := Chain{failingSource{errors.New("redis down")}, secondary}
	_, err = broken.Fetch(ctx, DataIdentity)
	assert.EqualError(t, err, "redis down")
}
