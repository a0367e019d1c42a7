package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-agentmesh/internal/agents"
	"github.com/xela07ax/spaceai-agentmesh/internal/audit"
	"github.com/xela07ax/spaceai-agentmesh/internal/bridge"
	"github.com/xela07ax/spaceai-agentmesh/internal/capability"
	"github.com/xela07ax/spaceai-agentmesh/internal/collab"
	"github.com/xela07ax/spaceai-agentmesh/internal/completion"
	"github.com/xela07ax/spaceai-agentmesh/internal/connectors"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
	"github.com/xela07ax/spaceai-agentmesh/internal/interaction"
	"github.com/xela07ax/spaceai-agentmesh/internal/killswitch"
	"github.com/xela07ax/spaceai-agentmesh/internal/orchestrator"
	"github.com/xela07ax/spaceai-agentmesh/internal/repository/postgres"
	"go.uber.org/zap"
)

// app собранное ядро. Одна сборка на процесс: serve и одноразовые команды
// работают с одними и теми же компонентами.
type app struct {
	cfg     *infra.Config
	logger  *zap.Logger
	reg     *prometheus.Registry
	metrics *orchestrator.Metrics

	rdb  *redis.Client  // nil без redis.addr
	pool *pgxpool.Pool // nil без database.url

	dir       *agents.Directory
	ks        *killswitch.Manager
	inspector *capability.Inspector
	collab    *collab.Service
	journal   *interaction.Service
	auditLog  *audit.Log
	agentFS   *audit.AgentFS
	policy    *bridge.Policy
	orch      *orchestrator.Orchestrator

	closers []func()
}

func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	// 1. Конфиг и логгер
	cfg, err := infra.LoadConfigFrom(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, reg: prometheus.NewRegistry()}
	a.metrics = orchestrator.NewMetrics(a.reg)
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if err := a.connect(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// connect поднимает внешние ресурсы. Оба опциональны: без них работаем на файлах и в одном процессе.
func (a *app) connect(ctx context.Context) error {
	if a.cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis unreachable: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	if a.cfg.Database.URL != "" {
		pool, err := postgres.NewPool(ctx, a.cfg.Database)
		if err != nil {
			return err
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	// 2. Сервис рассуждений: без ключа ядро работает, но планирование вернет plan-failed
	var llm completion.Service
	anth, err := completion.NewAnthropicService(cfg.Completion, logger)
	switch {
	case errors.Is(err, completion.ErrNotConfigured):
		logger.Warn("completion service is not configured, planning will fail until ANTHROPIC_API_KEY is set")
	case err != nil:
		return err
	default:
		// Оборачиваем в Reliability (Retries, Circuit Breaker, Rate Limit)
		llm = completion.NewReliableService(anth, cfg.Completion, a.metrics.CompletionBreakerState, logger)
	}

	// 3. Каталог агентов
	var sources []agents.Source
	if cfg.Directory.Builtins {
		sources = append(sources, agents.BuiltinSource{})
	}
	if cfg.Directory.ManifestDir != "" {
		sources = append(sources, agents.NewManifestSource(cfg.Directory.ManifestDir))
	}
	a.dir = agents.NewDirectory(logger, sources...)
	agents.RegisterBuiltinKinds(a.dir, llm, logger)
	connectors.RegisterRemoteKind(a.dir, cfg.Directory.RemoteToken, cfg.Directory.RemoteTimeout, logger)

	// 4. Kill-switch
	a.ks = killswitch.NewManager(a.rdb, logger)
	if err := a.ks.Init(ctx, cfg.Directory.Blocked); err != nil {
		return err
	}
	a.dir.SetGate(a.ks)

	// 5. Возможности и сотрудничество
	ledger := collab.NewLedger()
	a.inspector, err = capability.NewInspector(a.dir, ledger, llm, cfg.Capability, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.inspector.Close)
	a.collab = collab.NewService(a.dir, a.inspector, ledger, logger)
	if a.rdb != nil {
		rdb := a.rdb
		a.dir.OnChange(func() {
			if err := capability.PublishInvalidation(context.Background(), rdb, "*"); err != nil {
				logger.Warn("capability invalidation publish failed", zap.Error(err))
			}
		})
	}

	// 6. Журнал взаимодействий
	var store interaction.Store
	switch cfg.Interaction.Store {
	case "postgres":
		if a.pool == nil {
			return fmt.Errorf("interaction.store=postgres requires database.url")
		}
		store = postgres.NewSessionRepo(a.pool)
	default:
		fs, err := interaction.NewFileStore(cfg.Interaction.LogsDir)
		if err != nil {
			return err
		}
		store = fs
	}
	a.journal = interaction.NewService(store, cfg.Directory.SelfID, logger)

	// 7. Аудит доступа: журнал в памяти поверх хранилища, запись через неблокирующий буфер
	var auditStore audit.Store = audit.NewFileStore(cfg.Audit.Path)
	if a.pool != nil {
		auditStore = postgres.NewAuditRepo(a.pool)
	}
	a.auditLog = audit.NewLog(auditStore, cfg.Audit.MaxEntries, logger)
	if err := a.auditLog.Load(ctx); err != nil {
		logger.Warn("audit log not loaded, starting empty", zap.Error(err))
	}
	a.agentFS = audit.NewAgentFS(a.auditLog, cfg.Audit.BufferSize, cfg.Audit.FlushInterval, a.metrics.AuditBufferFill, logger)
	a.agentFS.Start()
	a.closers = append(a.closers, a.agentFS.Stop)

	// 8. Мост данных
	var grants bridge.GrantRepository
	if a.pool != nil {
		grants = postgres.NewGrantRepo(a.pool)
	}
	a.policy = bridge.NewPolicy(cfg.Bridge.Grants, grants, logger)
	if err := a.policy.Refresh(ctx); err != nil {
		return fmt.Errorf("load bridge grants: %w", err)
	}
	var source bridge.Source = bridge.StaticSource(cfg.Bridge.Data)
	if a.rdb != nil {
		a.policy.SetPublisher(a.rdb)
		source = bridge.Chain{bridge.NewRedisSource(a.rdb), source}
	}
	if err := a.dir.Register(bridge.Descriptor(), bridge.New(a.policy, source, a.agentFS, a.auditLog, logger)); err != nil {
		return err
	}

	// 9. Оркестратор регистрируется в своем же каталоге
	a.orch = orchestrator.New(a.dir, llm, a.journal, cfg.Orchestrator, cfg.Directory.SelfID, a.metrics, logger)
	if err := a.dir.Register(orchestrator.Descriptor(cfg.Directory.SelfID), a.orch); err != nil {
		return err
	}

	ids, err := a.dir.Discover(ctx)
	if err != nil {
		return err
	}
	logger.Info("agent directory ready", zap.Int("agents", len(ids)), zap.Strings("blocked", a.ks.Blocked()))
	return nil
}

// close освобождает ресурсы в обратном порядке: сначала дренаж аудита, потом соединения.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
