package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

func entry(ts, agent string) domain.AuditEntry {
	return domain.AuditEntry{Timestamp: ts, Action: "granted", Agent: agent, DataType: "identity"}
}

func timestamps(entries []domain.AuditEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Timestamp)
	}
	return out
}

func TestMerge_UnionSortedWithoutDuplicates(t *testing.T) {
	a := []domain.AuditEntry{
		entry("2025-01-01T10:00:03.000000000Z", "a"),
		entry("2025-01-01T10:00:01.000000000Z", "a"),
	}
	b := []domain.AuditEntry{
		entry("2025-01-01T10:00:01.000000000Z", "b"),
		entry("2025-01-01T10:00:02.000000000Z", "b"),
	}

	merged := Merge(a, b)
	assert.Equal(t, []string{
		"2025-01-01T10:00:01.000000000Z",
		"2025-01-01T10:00:02.000000000Z",
		"2025-01-01T10:00:03.000000000Z",
	}, timestamps(merged))
	// при коллизии остается запись первого набора
	assert.Equal(t, "a", merged[0].Agent)
}

func TestMerge_SortsMixedPrecision(t *testing.T) {
	merged := Merge([]domain.AuditEntry{
		entry("2025-01-01T10:00:05.1Z", "x"),
		entry("2025-01-01T10:00:05.12Z", "y"),
	}, nil)
	assert.Equal(t, []string{"2025-01-01T10:00:05.1Z", "2025-01-01T10:00:05.12Z"}, timestamps(merged))
}

func TestLog_LoadTwiceWithOverlap(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "audit.json"))

	require.NoError(t, store.Save(ctx, []domain.AuditEntry{
		entry("2025-01-01T10:00:01.000000000Z", "disk"),
		entry("2025-01-01T10:00:02.000000000Z", "disk"),
	}))

	l := NewLog(store, 0, zap.NewNop())
	require.NoError(t, l.Load(ctx))

	require.NoError(t, store.Save(ctx, []domain.AuditEntry{
		entry("2025-01-01T10:00:02.000000000Z", "disk"),
		entry("2025-01-01T10:00:03.000000000Z", "disk"),
	}))
	require.NoError(t, l.Load(ctx))

	assert.Equal(t, []string{
		"2025-01-01T10:00:01.000000000Z",
		"2025-01-01T10:00:02.000000000Z",
		"2025-01-01T10:00:03.000000000Z",
	}, timestamps(l.Entries()))
}

func TestLog_SaveConvergesAndTrims(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.json")

	first := NewLog(NewFileStore(path), 3, zap.NewNop())
	second := NewLog(NewFileStore(path), 3, zap.NewNop())

	first.Append(entry("2025-01-01T10:00:01.000000000Z", "first"))
	first.Append(entry("2025-01-01T10:00:03.000000000Z", "first"))
	require.NoError(t, first.Save(ctx))

	second.Append(entry("2025-01-01T10:00:02.000000000Z", "second"))
	second.Append(entry("2025-01-01T10:00:04.000000000Z", "second"))
	require.NoError(t, second.Save(ctx))

	stored, err := NewFileStore(path).Load(ctx)
	require.NoError(t, err)
	// второй инстанс не затер первый, самая старая запись ушла по лимиту
	assert.Equal(t, []string{
		"2025-01-01T10:00:02.000000000Z",
		"2025-01-01T10:00:03.000000000Z",
		"2025-01-01T10:00:04.000000000Z",
	}, timestamps(stored))
}

func TestLog_SameInstantCollision(t *testing.T) {
	ctx := context.Background()
	l := NewLog(NewFileStore(filepath.Join(t.TempDir(), "audit.json")), 0, zap.NewNop())

	l.Append(entry("2025-01-01T10:00:01.000000000Z", "one"))
	l.Append(entry("2025-01-01T10:00:01.000000000Z", "two"))
	require.NoError(t, l.Save(ctx))

	// известное ограничение: ключ, только timestamp
	got := l.Entries()
	require.Len(t, got, 1)
	assert.Equal(t, "one", got[0].Agent)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	entries, err := NewFileStore(filepath.Join(t.TempDir(), "none.json")).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
