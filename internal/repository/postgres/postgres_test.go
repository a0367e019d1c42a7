package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
	"github.com/xela07ax/spaceai-agentmesh/internal/interaction"
)

// Интеграционные тесты: нужен живой Postgres в AGENTMESH_TEST_DB_URL.
func testRepos(t *testing.T) (*SessionRepo, *AuditRepo, *GrantRepo) {
	t.Helper()
	url := os.Getenv("AGENTMESH_TEST_DB_URL")
	if url == "" {
		t.Skip("AGENTMESH_TEST_DB_URL is not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, infra.DatabaseConfig{URL: url, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE chat_sessions, session_summaries, access_audit, bridge_grants`)
	require.NoError(t, err)
	return NewSessionRepo(pool), NewAuditRepo(pool), NewGrantRepo(pool)
}

func TestSessionRepo_SnapshotAndSummaries(t *testing.T) {
	sessions, _, _ := testRepos(t)
	ctx := context.Background()

	_, err := sessions.LoadSession(ctx, "missing")
	assert.ErrorIs(t, err, interaction.ErrSessionNotFound)

	s := &domain.ChatSession{SessionID: "session_1", UserID: "u", StartTime: time.Now().UTC(), Status: domain.SessionActive}
	require.NoError(t, sessions.SaveSession(ctx, s))
	s.Status = domain.SessionCompleted
	s.FinalResponse = "done"
	require.NoError(t, sessions.SaveSession(ctx, s))

	loaded, err := sessions.LoadSession(ctx, "session_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, loaded.Status)
	assert.Equal(t, "done", loaded.FinalResponse)

	path, size := sessions.Locate(ctx, "session_1")
	assert.Equal(t, "postgres://chat_sessions/session_1", path)
	assert.Positive(t, size)

	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, sessions.AppendSummary(ctx, domain.SessionSummary{
			LogID: "log_" + id, SessionID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	recent, err := sessions.RecentSummaries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].SessionID)
	assert.Equal(t, "b", recent[1].SessionID)
}

func TestAuditRepo_DedupByTimestamp(t *testing.T) {
	_, audit, _ := testRepos(t)
	ctx := context.Background()

	require.NoError(t, audit.WriteBatch(ctx, []domain.AuditEntry{
		{Timestamp: "2026-01-01T00:00:02.000000000Z", Action: "denied", Agent: "b", DataType: "identity"},
		{Timestamp: "2026-01-01T00:00:01.000000000Z", Action: "granted", Agent: "a", DataType: "identity"},
	}))
	require.NoError(t, audit.Save(ctx, []domain.AuditEntry{
		{Timestamp: "2026-01-01T00:00:01.000000000Z", Action: "granted", Agent: "dup", DataType: "identity"},
		{Timestamp: "2026-01-01T00:00:03.000000000Z", Action: "granted", Agent: "c", DataType: "identity"},
	}))

	entries, err := audit.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Agent)
	assert.Equal(t, "c", entries[2].Agent)
}

func TestGrantRepo_CRUD(t *testing.T) {
	_, _, grants := testRepos(t)
	ctx := context.Background()

	require.NoError(t, grants.SaveGrant(ctx, domain.Grant{AgentID: "*", DataType: "project-context", Effect: domain.EffectAllow}))
	require.NoError(t, grants.SaveGrant(ctx, domain.Grant{AgentID: "*", DataType: "project-context", Effect: domain.EffectDeny}))

	all, err := grants.AllGrants(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.EffectDeny, all[0].Effect)

	require.NoError(t, grants.DeleteGrant(ctx, "*", "project-context"))
	assert.Error(t, grants.DeleteGrant(ctx, "*", "project-context"))
}
