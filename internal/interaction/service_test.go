package interaction

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewService(store, "master-orchestrator", zap.NewNop()), store
}

func sequences(sess *domain.ChatSession) []int {
	out := make([]int, 0, len(sess.Interactions))
	for _, in := range sess.Interactions {
		out = append(out, in.SequenceNumber)
	}
	return out
}

func TestSession_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	id := svc.StartSession(ctx, "user-1", "Do X")
	assert.True(t, strings.HasPrefix(id, "session_"))

	// Снимок пишется сразу после старта
	stored, err := store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, stored.Status)
	assert.Equal(t, "Do X", stored.RequestSummary)

	i1, err := svc.LogInteraction(ctx, id, "alpha", "research the market", "Do X", domain.InteractionMeta{})
	require.NoError(t, err)
	i2, err := svc.LogInteraction(ctx, id, "beta", "write the report", "Do X", domain.InteractionMeta{AgentName: "Beta"})
	require.NoError(t, err)
	assert.Equal(t, id+"_interaction_1", i1)

	require.NoError(t, svc.CompleteInteraction(ctx, id, i1, "market data", true, 120))
	require.NoError(t, svc.CompleteInteraction(ctx, id, i2, "boom", false, 30))
	assert.ErrorIs(t, svc.CompleteInteraction(ctx, id, i2, "again", true, 1), ErrInteractionClosed)
	assert.ErrorIs(t, svc.CompleteInteraction(ctx, id, "nope", "x", true, 1), ErrInteractionNotFound)

	sess, err := svc.SessionHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, sequences(sess))
	assert.Equal(t, domain.InteractionCompleted, sess.Interactions[0].Status)
	assert.Equal(t, domain.InteractionFailed, sess.Interactions[1].Status)
	assert.Equal(t, int64(150), sess.TotalExecutionTimeMs)
	assert.Equal(t, domain.OrchestrationSimple, sess.OrchestrationType)
	assert.Equal(t, domain.AgentTypeSpecialist, sess.Interactions[0].AgentType)
	assert.Equal(t, "project-coordinator", sess.Interactions[0].AssignedBy)

	require.NoError(t, svc.CompleteSession(ctx, id, "done", []string{"report"}, nil))

	// Повторное закрытие отклоняется
	assert.ErrorIs(t, svc.CompleteSession(ctx, id, "again", nil, nil), ErrSessionClosed)
	// Запись в закрытую сессию тоже
	_, err = svc.LogInteraction(ctx, id, "gamma", "late", "", domain.InteractionMeta{})
	assert.ErrorIs(t, err, ErrSessionClosed)

	final, err := svc.SessionHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, final.Status)
	require.NotNil(t, final.EndTime)
	assert.Equal(t, []string{"report"}, final.Deliverables)

	recent, err := svc.RecentSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "log_"+id, recent[0].LogID)
	assert.Equal(t, map[string]int{"alpha": 1, "beta": 1}, recent[0].AgentBreakdown)
	assert.Positive(t, recent[0].FileSize)
}

func TestLogInteraction_PlaceholderSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	for i := 0; i < 5; i++ {
		_, err := svc.LogInteraction(ctx, "lost-session", "alpha", "task", "", domain.InteractionMeta{})
		require.NoError(t, err)
	}

	sess, err := svc.SessionHistory(ctx, "lost-session")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, sequences(sess))
	assert.Equal(t, "unknown", sess.UserID)
	assert.Equal(t, "Emergency session", sess.RequestSummary)
	assert.True(t, strings.HasSuffix(sess.ChatID, "_emergency"))
}

func TestLogInteraction_ResumesAfterRestart(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	id := svc.StartSession(ctx, "u", "req")
	for i := 0; i < 3; i++ {
		_, err := svc.LogInteraction(ctx, id, "alpha", "task", "", domain.InteractionMeta{})
		require.NoError(t, err)
	}

	// Новый процесс поверх того же хранилища
	restarted := NewService(store, "master-orchestrator", zap.NewNop())
	next, err := restarted.LogInteraction(ctx, id, "beta", "task", "", domain.InteractionMeta{})
	require.NoError(t, err)
	assert.Equal(t, id+"_interaction_4", next)

	sess, err := restarted.SessionHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, sequences(sess))
}

func TestCompleteInteraction_ComputesElapsed(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	id := svc.StartSession(ctx, "u", "req")
	iid, err := svc.LogInteraction(ctx, id, "alpha", "task", "", domain.InteractionMeta{})
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(1500 * time.Millisecond) }
	require.NoError(t, svc.CompleteInteraction(ctx, id, iid, "ok", true, 0))

	sess, _ := svc.SessionHistory(ctx, id)
	assert.Equal(t, int64(1500), sess.Interactions[0].ExecutionTimeMs)
	assert.Equal(t, int64(1500), sess.TotalExecutionTimeMs)
}

func TestCompleteSession_Unknown(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.CompleteSession(context.Background(), "ghost", "", nil, nil), ErrSessionNotFound)
}

func TestCompleteSession_SnapshotBeforeEviction(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	for i := 0; i < 50; i++ {
		id := svc.StartSession(ctx, "u", "race")

		var (
			wg     sync.WaitGroup
			logErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, logErr = svc.LogInteraction(ctx, id, "alpha", "late task", "", domain.InteractionMeta{})
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.CompleteSession(ctx, id, "done", nil, nil))
		}()
		wg.Wait()

		// Опоздавшее назначение отклоняется и не воскрешает сессию
		stored, err := store.LoadSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionCompleted, stored.Status)
		if logErr != nil {
			assert.ErrorIs(t, logErr, ErrSessionClosed)
			assert.Empty(t, stored.Interactions)
		} else {
			assert.Len(t, stored.Interactions, 1)
		}
		assert.ErrorIs(t, svc.CompleteSession(ctx, id, "again", nil, nil), ErrSessionClosed)
	}
}

func TestOrchestrationType(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	id := svc.StartSession(ctx, "u", "req")

	for _, agent := range []string{"master-orchestrator", "a", "b", "c"} {
		_, err := svc.LogInteraction(ctx, id, agent, "t", "", domain.InteractionMeta{})
		require.NoError(t, err)
	}
	sess, _ := svc.SessionHistory(ctx, id)
	assert.Equal(t, domain.OrchestrationComplex, sess.OrchestrationType)
	assert.True(t, sess.MasterOrchestratorInvolved)
}

func TestSearchAndStats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	done := svc.StartSession(ctx, "u", "first")
	i1, _ := svc.LogInteraction(ctx, done, "researcher-agent", "Research competitors", "", domain.InteractionMeta{Complexity: "complex"})
	require.NoError(t, svc.CompleteInteraction(ctx, done, i1, "three competitors found", true, 10))
	i2, _ := svc.LogInteraction(ctx, done, "communications-agent", "Write summary", "", domain.InteractionMeta{Complexity: "simple"})
	require.NoError(t, svc.CompleteInteraction(ctx, done, i2, "failed", false, 10))
	require.NoError(t, svc.CompleteSession(ctx, done, "ok", nil, nil))

	active := svc.StartSession(ctx, "u", "second")
	_, _ = svc.LogInteraction(ctx, active, "researcher-agent", "Analyze pricing", "", domain.InteractionMeta{})

	found := svc.SearchInteractions(ctx, SearchQuery{Text: "RESEARCH"})
	assert.Len(t, found, 2) // по агенту researcher-agent

	found = svc.SearchInteractions(ctx, SearchQuery{Text: "", Agent: "communications-agent"})
	require.Len(t, found, 1)
	assert.Equal(t, "Write summary", found[0].TaskAssigned)

	stats := svc.Stats(ctx, time.Time{}, time.Time{})
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 3, stats.TotalInteractions)
	assert.Equal(t, 2, stats.TotalAgentsUsed)
	assert.InDelta(t, 1.5, stats.AverageInteractionsPerSession, 1e-9)
	assert.InDelta(t, 100.0/3, stats.SuccessRate, 1e-9)
	require.NotEmpty(t, stats.MostUsedAgents)
	assert.Equal(t, "researcher-agent", stats.MostUsedAgents[0].AgentID)
	assert.Equal(t, 2, stats.MostUsedAgents[0].UsageCount)
	assert.Equal(t, "Research & Analysis", stats.CommonTaskTypes[0].TaskType)
	assert.Equal(t, "moderate", averageComplexity([]string{"complex", "moderate"}))
}

func TestSummaries(t *testing.T) {
	short := "Plan the launch"
	assert.Equal(t, short, summarizeRequest(short))

	long := strings.Repeat("word ", 30)
	assert.Equal(t, strings.Repeat("word ", 11)+"word [Request summary]", summarizeRequest(long))

	task := "one two three four five six seven eight nine ten eleven twelve thirteen " + strings.Repeat("x", 60)
	assert.Equal(t, "one two three four five six seven eight... twelve thirteen "+strings.Repeat("x", 60), summarizeTask(task))

	out := "First sentence here. " + strings.Repeat("Middle part goes on. ", 10) + "Last one"
	assert.Equal(t, "First sentence here. ... Last one.", summarizeOutput(out))

	// Обрезка по границе руны, без битого UTF-8
	cyr := "a" + strings.Repeat("я", 150)
	got := summarizeOutput(cyr)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))

	cyr = "a" + strings.Repeat("ж", 100) + ". b. c."
	got = summarizeOutput(cyr)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 153)

	assert.Equal(t, "Development", categorizeTask("Implement the API"))
	assert.Equal(t, "General", categorizeTask("Say hi"))
	assert.Equal(t, "expert", averageComplexity([]string{"expert", "expert", "complex"}))
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadSession(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
