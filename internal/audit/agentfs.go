package audit

/*
Файл agentfs.go: неблокирующий писатель журнала доступа.

- Non-blocking: записи идут через буферизированный канал, мост данных не ждет диск или БД.
- Batching: накопление в памяти и пакетная запись по таймеру или по достижении лимита пачки.
- Drain Pattern: Stop закрывает канал, воркер вычитывает остаток и делает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

const batchLimit = 100

// BatchWriter определяет, куда физически сохраняются записи (Log поверх файла или Postgres).
type BatchWriter interface {
	WriteBatch(ctx context.Context, entries []domain.AuditEntry) error
}

// Recorder: то, что видят потребители журнала.
type Recorder interface {
	Record(entry domain.AuditEntry)
}

type AgentFS struct {
	ch            chan domain.AuditEntry
	repo          BatchWriter
	logger        *zap.Logger
	flushInterval time.Duration
	fill          prometheus.Gauge
	wg            sync.WaitGroup

	// mu: Record отправляет под RLock, Stop закрывает канал под Lock
	mu     sync.RWMutex
	closed bool
}

// NewAgentFS. fill может быть nil.
func NewAgentFS(repo BatchWriter, bufferSize int, flushInterval time.Duration, fill prometheus.Gauge, logger *zap.Logger) *AgentFS {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &AgentFS{
		ch:            make(chan domain.AuditEntry, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "agentfs")),
		flushInterval: flushInterval,
		fill:          fill,
	}
}

func (fs *AgentFS) Start() {
	fs.wg.Add(1)
	go fs.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (fs *AgentFS) Stop() {
	// Lock дожидается всех Record, уже начавших отправку
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return
	}
	fs.closed = true
	fs.logger.Info("stopping auditor: closing channel and flushing buffer...")
	close(fs.ch)
	fs.mu.Unlock()

	fs.wg.Wait()
	fs.logger.Info("auditor stopped gracefully")
}

// Record ставит запись в очередь. Timestamp фиксируется здесь, а не при flush,
// иначе порядок в журнале отражал бы время записи, а не время доступа.
func (fs *AgentFS) Record(entry domain.AuditEntry) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampLayout)
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.closed {
		fs.logger.Warn("audit entry dropped: auditor is stopping", zap.String("agent", entry.Agent))
		return
	}

	// Load Shedding: при переполнении не блокируем вызывающего
	select {
	case fs.ch <- entry:
		if fs.fill != nil {
			fs.fill.Set(float64(len(fs.ch)))
		}
	default:
		fs.logger.Error("audit_buffer_overflow",
			zap.String("agent", entry.Agent),
			zap.String("data_type", entry.DataType),
			zap.String("action", entry.Action),
		)
	}
}

func (fs *AgentFS) worker() {
	defer fs.wg.Done()

	batch := make([]domain.AuditEntry, 0, batchLimit)
	ticker := time.NewTicker(fs.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст может быть уже закрыт
		if err := fs.repo.WriteBatch(context.Background(), batch); err != nil {
			fs.logger.Error("audit flush failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		if fs.fill != nil {
			fs.fill.Set(float64(len(fs.ch)))
		}
	}

	for {
		select {
		case entry, ok := <-fs.ch:
			if !ok {
				// Канал закрыт в Stop(): остаток уже вычитан, финальный сброс
				flush()
				fs.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, entry)
			if len(batch) >= batchLimit {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
