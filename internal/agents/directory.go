package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

type registration struct {
	desc    domain.AgentDescriptor
	handler Handler
}

// Directory: каталог агентов процесса.
// Держит обнаруженный набор, отображаемые имена и по одному живому инстансу на id.
type Directory struct {
	mu          sync.RWMutex
	discoverMu  sync.Mutex // сериализует обход источников
	sources     []Source
	factories   map[Kind]Factory
	discovered  bool
	order       []string // порядок обнаружения
	descriptors map[string]domain.AgentDescriptor
	names       map[string]string
	instances   map[string]Handler
	registered  map[string]registration // переживают ClearCache
	listeners   []func()
	gate        Gate
	logger      *zap.Logger
}

// Gate: внешний запрет на исполнение (kill-switch). Заблокированный агент
// остается в каталоге, но инстанс для него не выдается.
type Gate interface {
	IsBlocked(agentID string) bool
}

func NewDirectory(logger *zap.Logger, sources ...Source) *Directory {
	return &Directory{
		sources:     sources,
		factories:   make(map[Kind]Factory),
		descriptors: make(map[string]domain.AgentDescriptor),
		names:       make(map[string]string),
		instances:   make(map[string]Handler),
		registered:  make(map[string]registration),
		logger:      logger.Named("directory"),
	}
}

// RegisterKind связывает тип реализации с конструктором.
func (d *Directory) RegisterKind(kind Kind, f Factory) {
	d.mu.Lock()
	d.factories[kind] = f
	d.mu.Unlock()
}

// SetGate подключает kill-switch.
func (d *Directory) SetGate(g Gate) {
	d.mu.Lock()
	d.gate = g
	d.mu.Unlock()
}

// OnChange подписывает слушателя на изменение состава (регистрация, пересканирование).
func (d *Directory) OnChange(fn func()) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Discover возвращает id всех агентов. Результат кэшируется до ClearCache.
// Ошибка любого источника фатальна и оборачивает ErrDiscovery.
func (d *Directory) Discover(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	if d.discovered {
		ids := append([]string(nil), d.order...)
		d.mu.RUnlock()
		return ids, nil
	}
	d.mu.RUnlock()

	d.discoverMu.Lock()
	defer d.discoverMu.Unlock()

	// Пока ждали, другой вызов мог уже всё сделать
	d.mu.RLock()
	if d.discovered {
		ids := append([]string(nil), d.order...)
		d.mu.RUnlock()
		return ids, nil
	}
	d.mu.RUnlock()

	order := make([]string, 0)
	descriptors := make(map[string]domain.AgentDescriptor)
	names := make(map[string]string)

	add := func(desc domain.AgentDescriptor, origin string) {
		if _, dup := descriptors[desc.ID]; dup {
			d.logger.Warn("agent redefined", zap.String("agent_id", desc.ID), zap.String("source", origin))
		} else {
			order = append(order, desc.ID)
		}
		descriptors[desc.ID] = desc
		if desc.Name != "" {
			names[desc.ID] = desc.Name
		}
	}

	// 1. Обход источников
	for _, src := range d.sources {
		found, err := src.Discover(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: source %s: %v. Check file system permissions and project structure", ErrDiscovery, src.Name(), err)
		}
		for _, desc := range found {
			if desc.ID == "" {
				d.logger.Warn("agent without id skipped", zap.String("source", src.Name()))
				continue
			}
			add(desc, src.Name())
		}
	}

	// 2. Агенты, зарегистрированные в рантайме
	d.mu.RLock()
	for _, reg := range d.registered {
		add(reg.desc, "runtime")
	}
	d.mu.RUnlock()

	// 3. Атомарная подмена набора
	d.mu.Lock()
	d.order = order
	d.descriptors = descriptors
	d.names = names
	d.discovered = true
	for id, reg := range d.registered {
		d.instances[id] = reg.handler
	}
	d.mu.Unlock()

	d.logger.Info("agents discovered", zap.Int("count", len(order)), zap.Strings("agents", order))
	return append([]string(nil), order...), nil
}

// ClearCache сбрасывает обнаруженный набор, имена и инстансы.
func (d *Directory) ClearCache() {
	d.mu.Lock()
	d.discovered = false
	d.order = nil
	d.descriptors = make(map[string]domain.AgentDescriptor)
	d.names = make(map[string]string)
	d.instances = make(map[string]Handler)
	d.mu.Unlock()
}

// Refresh: пересканирование с уведомлением слушателей.
func (d *Directory) Refresh(ctx context.Context) error {
	d.ClearCache()
	if _, err := d.Discover(ctx); err != nil {
		return err
	}
	d.notify()
	return nil
}

// Register добавляет агента в рантайме с уже готовым инстансом.
func (d *Directory) Register(desc domain.AgentDescriptor, h Handler) error {
	if desc.ID == "" {
		return fmt.Errorf("agents: register: empty id")
	}
	if h == nil {
		return fmt.Errorf("agents: register %s: nil handler", desc.ID)
	}

	d.mu.Lock()
	d.registered[desc.ID] = registration{desc: desc, handler: h}
	if d.discovered {
		if _, exists := d.descriptors[desc.ID]; !exists {
			d.order = append(d.order, desc.ID)
		}
		d.descriptors[desc.ID] = desc
		if desc.Name != "" {
			d.names[desc.ID] = desc.Name
		}
		d.instances[desc.ID] = h
	}
	d.mu.Unlock()

	d.logger.Info("agent registered", zap.String("agent_id", desc.ID))
	d.notify()
	return nil
}

func (d *Directory) notify() {
	d.mu.RLock()
	listeners := append([]func(){}, d.listeners...)
	d.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// Descriptor: описание агента из текущего набора.
func (d *Directory) Descriptor(id string) (domain.AgentDescriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	desc, ok := d.descriptors[id]
	return desc, ok
}

// Descriptors: все описания в порядке обнаружения.
func (d *Directory) Descriptors(ctx context.Context) ([]domain.AgentDescriptor, error) {
	ids, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.AgentDescriptor, 0, len(ids))
	for _, id := range ids {
		if desc, ok := d.descriptors[id]; ok {
			out = append(out, desc)
		}
	}
	return out, nil
}

// DisplayName: человекочитаемое имя; для неизвестных id механический title-case.
func (d *Directory) DisplayName(id string) string {
	d.mu.RLock()
	name, ok := d.names[id]
	d.mu.RUnlock()
	if ok {
		return name
	}
	return titleCase(id)
}

// IsValid: принадлежность id обнаруженному набору.
func (d *Directory) IsValid(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.descriptors[id]
	return ok
}

// Normalize сводит небрежно записанное имя к каноническому id.
// Результат может оказаться невалидным: вызывающий перепроверяет через IsValid.
func (d *Directory) Normalize(raw string) string {
	d.mu.RLock()
	known := append([]string(nil), d.order...)
	byName := make(map[string]string, len(d.names))
	for _, id := range known {
		name, ok := d.names[id]
		if !ok {
			continue
		}
		if key := cleanName(name); key != "" {
			if _, taken := byName[key]; !taken {
				byName[key] = id
			}
		}
	}
	d.mu.RUnlock()
	return normalizeAgainst(raw, known, byName)
}

// ResolveInstance лениво строит и кэширует один инстанс на id.
// false: у id нет известной реализации или агент заблокирован.
func (d *Directory) ResolveInstance(id string) (Handler, bool) {
	d.mu.RLock()
	if d.gate != nil && d.gate.IsBlocked(id) {
		d.mu.RUnlock()
		d.logger.Warn("intercepted blocked agent", zap.String("agent_id", id))
		return nil, false
	}
	if h, ok := d.instances[id]; ok {
		d.mu.RUnlock()
		return h, true
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check под эксклюзивной блокировкой
	if h, ok := d.instances[id]; ok {
		return h, true
	}

	desc, ok := d.descriptors[id]
	if !ok {
		return nil, false
	}
	factory, ok := d.factories[Kind(desc.Kind)]
	if !ok {
		d.logger.Error("no implementation for agent kind",
			zap.String("agent_id", id), zap.String("kind", desc.Kind))
		return nil, false
	}

	h, err := factory(desc)
	if err != nil {
		d.logger.Error("failed to instantiate agent", zap.String("agent_id", id), zap.Error(err))
		return nil, false
	}

	d.instances[id] = h
	d.logger.Debug("agent instantiated", zap.String("agent_id", id), zap.String("kind", desc.Kind))
	return h, true
}

// Execute: разрешить инстанс и передать ему задачу.
func (d *Directory) Execute(ctx context.Context, id string, task domain.Task) (domain.TaskResult, error) {
	h, ok := d.ResolveInstance(id)
	if !ok {
		return domain.TaskResult{}, fmt.Errorf("%w: %q", ErrUnknownAgent, id)
	}
	return h.Handle(ctx, task), nil
}
