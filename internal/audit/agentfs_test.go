package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

type memWriter struct {
	mu      sync.Mutex
	batches [][]domain.AuditEntry
}

func (m *memWriter) WriteBatch(_ context.Context, entries []domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]domain.AuditEntry(nil), entries...))
	return nil
}

func (m *memWriter) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestAgentFS_DrainsOnStop(t *testing.T) {
	w := &memWriter{}
	fs := NewAgentFS(w, 500, time.Hour, nil, zap.NewNop())
	fs.Start()

	for i := 0; i < 250; i++ {
		fs.Record(domain.AuditEntry{Action: "granted", Agent: "researcher-agent", DataType: "identity"})
	}
	fs.Stop()

	assert.Equal(t, 250, w.total())
	for _, b := range w.batches {
		assert.LessOrEqual(t, len(b), batchLimit)
		for _, e := range b {
			assert.NotEmpty(t, e.Timestamp)
		}
	}
}

func TestAgentFS_RecordAfterStopIsDropped(t *testing.T) {
	w := &memWriter{}
	fs := NewAgentFS(w, 10, time.Hour, nil, zap.NewNop())
	fs.Start()
	fs.Stop()
	fs.Stop()

	fs.Record(domain.AuditEntry{Action: "denied"})
	assert.Equal(t, 0, w.total())
}

func TestAgentFS_RecordRacingStop(t *testing.T) {
	for round := 0; round < 20; round++ {
		w := &memWriter{}
		fs := NewAgentFS(w, 64, time.Millisecond, nil, zap.NewNop())
		fs.Start()

		var (
			wg   sync.WaitGroup
			sent atomic.Int64
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					fs.Record(domain.AuditEntry{Action: "granted", Agent: "a"})
					sent.Add(1)
				}
			}()
		}
		// Stop посреди записи: отправка в закрытый канал была бы паникой
		fs.Stop()
		wg.Wait()

		assert.LessOrEqual(t, int64(w.total()), sent.Load())
	}
}
