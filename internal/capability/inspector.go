package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xela07ax/spaceai-agentmesh/internal/completion"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrAgentNotFound: агента нет в каталоге.
var ErrAgentNotFound = errors.New("capability: agent not found")

const (
	allCapabilitiesKey     = "all"
	defaultPotential       = 0.8
	bottleneckConfidence   = 0.7
	supportingConfidence   = 0.6
	maxSupportingAgents    = 2
	recentCollaborationCap = 10
)

// Catalog: то, что инспектору нужно от каталога агентов.
type Catalog interface {
	Descriptor(id string) (domain.AgentDescriptor, bool)
	Descriptors(ctx context.Context) ([]domain.AgentDescriptor, error)
	OnChange(fn func())
}

// History: журнал сотрудничества (вспомогательный контекст оценки).
type History interface {
	History(agentID string) []domain.CollaborationEntry
}

// Inspector отвечает на вопрос "может ли агент X сделать Y" и строит сводную матрицу команды.
type Inspector struct {
	catalog Catalog
	history History
	llm     completion.Service
	cnsDir  string
	fanOut  int

	assessments *AssessmentCache
	aggregate   *expirable.LRU[string, []domain.AgentProfile]
	aggMu       sync.Mutex // одна сборка агрегата за раз

	// gen растет на каждом Invalidate. Результат, собранный в старом поколении, в кэш не попадает
	genMu sync.Mutex
	gen   uint64

	now    func() time.Time
	logger *zap.Logger
}

// NewInspector подписывается на изменения каталога: новый агент сбрасывает кэши.
func NewInspector(catalog Catalog, history History, llm completion.Service, cfg infra.CapabilityConfig, logger *zap.Logger) (*Inspector, error) {
	assessments, err := NewAssessmentCache(cfg.AssessCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("capability: assessment cache: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	fanOut := cfg.FanOutLimit
	if fanOut <= 0 {
		fanOut = 8
	}

	in := &Inspector{
		catalog:     catalog,
		history:     history,
		llm:         llm,
		cnsDir:      cfg.CNSDir,
		fanOut:      fanOut,
		assessments: assessments,
		aggregate:   expirable.NewLRU[string, []domain.AgentProfile](1, nil, ttl),
		now:         time.Now,
		logger:      logger.Named("inspector"),
	}
	catalog.OnChange(in.Invalidate)
	return in, nil
}

// Invalidate сбрасывает агрегат и кэш оценок.
func (in *Inspector) Invalidate() {
	in.genMu.Lock()
	in.gen++
	in.aggregate.Purge()
	in.assessments.Clear()
	in.genMu.Unlock()
	in.logger.Debug("capability caches invalidated")
}

func (in *Inspector) generation() uint64 {
	in.genMu.Lock()
	defer in.genMu.Unlock()
	return in.gen
}

// storeIfCurrent выполняет запись в кэш, только если с начала сборки не было Invalidate.
func (in *Inspector) storeIfCurrent(gen uint64, store func()) bool {
	in.genMu.Lock()
	defer in.genMu.Unlock()
	if in.gen != gen {
		return false
	}
	store()
	return true
}

func (in *Inspector) Close() {
	in.assessments.Close()
}

func (in *Inspector) historyOf(agentID string) []domain.CollaborationEntry {
	if in.history == nil {
		return nil
	}
	return in.history.History(agentID)
}

// Analyze: durable анализ, если есть артефакты обучения, иначе синтез из abilities.
func (in *Inspector) Analyze(agentID, requesting string) (domain.CapabilityAnalysis, error) {
	desc, ok := in.catalog.Descriptor(agentID)
	if !ok {
		return domain.CapabilityAnalysis{}, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	if in.cnsDir != "" {
		a, err := loadDurable(in.cnsDir, agentID, in.historyOf(agentID), in.now())
		if err == nil {
			return a, nil
		}
		in.logger.Debug("cns not available, using declared abilities",
			zap.String("agent_id", agentID), zap.String("requesting", requesting), zap.Error(err))
	}
	return synthesize(desc), nil
}

// Assess никогда не возвращает ошибку: любая неудача превращается в отрицательную оценку.
func (in *Inspector) Assess(ctx context.Context, agentID, query, requesting string) domain.CapabilityAssessment {
	if cached, ok := in.assessments.Get(agentID, query); ok {
		return cached
	}

	gen := in.generation()
	a, err := in.assess(ctx, agentID, query, requesting)
	if err != nil {
		in.logger.Warn("capability assessment failed", zap.String("agent_id", agentID), zap.Error(err))
		return errorAssessment(err.Error())
	}

	in.storeIfCurrent(gen, func() { in.assessments.Set(agentID, query, a) })
	return a
}

func (in *Inspector) assess(ctx context.Context, agentID, query, requesting string) (domain.CapabilityAssessment, error) {
	// 1. Агент и его анализ
	desc, ok := in.catalog.Descriptor(agentID)
	if !ok {
		return domain.CapabilityAssessment{}, fmt.Errorf("Agent %s not found", agentID)
	}
	analysis, err := in.Analyze(agentID, requesting)
	if err != nil {
		return domain.CapabilityAssessment{}, err
	}

	// 2. Вспомогательный контекст, каждая часть сама гасит свои ошибки
	ws := in.workspace(agentID)
	recent := in.historyOf(agentID)
	if len(recent) > recentCollaborationCap {
		recent = recent[len(recent)-recentCollaborationCap:]
	}

	// 3. Суждение делегируется сервису рассуждений
	if in.llm == nil {
		return domain.CapabilityAssessment{}, completion.ErrNotConfigured
	}
	reply, err := in.llm.Complete(ctx,
		assessmentPrompt(desc, analysis, ws, recent, query, requesting),
		[]completion.Message{completion.User(fmt.Sprintf("Assess capability: %q", query))},
	)
	if err != nil {
		return domain.CapabilityAssessment{}, err
	}

	// 4. Разбор с дефолтами
	return parseAssessment(reply)
}

func (in *Inspector) workspace(agentID string) workspace {
	if in.cnsDir == "" {
		return workspace{}
	}
	st, err := os.Stat(filepath.Join(in.cnsDir, agentID))
	if err != nil {
		return workspace{}
	}
	return workspace{Present: true, LastModified: st.ModTime().UTC().Format(time.RFC3339)}
}

// AllCapabilities: профили всех агентов, кэшируются до изменения каталога или истечения TTL.
func (in *Inspector) AllCapabilities(ctx context.Context) ([]domain.AgentProfile, error) {
	if v, ok := in.aggregate.Get(allCapabilitiesKey); ok {
		return v, nil
	}

	in.aggMu.Lock()
	defer in.aggMu.Unlock()
	if v, ok := in.aggregate.Get(allCapabilitiesKey); ok {
		return v, nil
	}

	gen := in.generation()
	descs, err := in.catalog.Descriptors(ctx)
	if err != nil {
		return nil, err
	}

	profiles := make([]*domain.AgentProfile, len(descs))
	g := new(errgroup.Group)
	g.SetLimit(in.fanOut)
	for i, d := range descs {
		g.Go(func() error {
			// Ветка сама ловит свою ошибку, соседей не отменяет
			a, err := in.Analyze(d.ID, "system")
			if err != nil {
				in.logger.Warn("agent analysis failed", zap.String("agent_id", d.ID), zap.Error(err))
				return nil
			}
			profiles[i] = &domain.AgentProfile{
				AgentID:                d.ID,
				Name:                   d.Name,
				Analysis:               a,
				CollaborationPotential: defaultPotential,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.AgentProfile, 0, len(profiles))
	for _, p := range profiles {
		if p != nil {
			out = append(out, *p)
		}
	}
	if !in.storeIfCurrent(gen, func() { in.aggregate.Add(allCapabilitiesKey, out) }) {
		in.logger.Debug("catalog changed during aggregate build, result not cached")
	}
	return out, nil
}

// TeamMatrix при полной неудаче отдает пустую матрицу, а не ошибку.
func (in *Inspector) TeamMatrix(ctx context.Context) domain.TeamCapabilityMatrix {
	profiles, err := in.AllCapabilities(ctx)
	if err != nil || len(profiles) == 0 {
		if err != nil {
			in.logger.Error("team capability matrix failed", zap.Error(err))
		}
		return emptyMatrix()
	}

	return domain.TeamCapabilityMatrix{
		Agents:                  profiles,
		Synergies:               synergies(profiles),
		Gaps:                    teamGaps(profiles),
		RecommendedEnhancements: teamEnhancements(profiles),
		OptimalPaths:            optimalPaths(profiles),
	}
}

func emptyMatrix() domain.TeamCapabilityMatrix {
	return domain.TeamCapabilityMatrix{
		Agents:                  []domain.AgentProfile{},
		Synergies:               []domain.TeamSynergy{},
		Gaps:                    []domain.TeamGap{},
		RecommendedEnhancements: []domain.Enhancement{},
		OptimalPaths:            []domain.CollaborationPath{},
	}
}

// ProposeEnhancement: один агент предлагает другому развить навык.
func (in *Inspector) ProposeEnhancement(ctx context.Context, target, requesting string, e domain.CapabilityEnhancement) domain.EnhancementResponse {
	resp, err := in.proposeEnhancement(ctx, target, requesting, e)
	if err != nil {
		in.logger.Warn("enhancement analysis failed", zap.String("agent_id", target), zap.Error(err))
		return errorEnhancement(err.Error())
	}
	return resp
}

func (in *Inspector) proposeEnhancement(ctx context.Context, target, requesting string, e domain.CapabilityEnhancement) (domain.EnhancementResponse, error) {
	targetA, err := in.Analyze(target, requesting)
	if err != nil {
		return domain.EnhancementResponse{}, err
	}
	requestorA, err := in.Analyze(requesting, requesting)
	if err != nil {
		return domain.EnhancementResponse{}, err
	}
	if in.llm == nil {
		return domain.EnhancementResponse{}, completion.ErrNotConfigured
	}

	payload, _ := json.Marshal(e)
	reply, err := in.llm.Complete(ctx,
		enhancementPrompt(targetA, requestorA, e),
		[]completion.Message{completion.User("Analyze enhancement proposal: " + string(payload))},
	)
	if err != nil {
		return domain.EnhancementResponse{}, err
	}
	return parseEnhancement(reply)
}

type agentAssessment struct {
	agentID    string
	assessment domain.CapabilityAssessment
}

// assessMany опрашивает агентов параллельно. Порядок результата совпадает с ids.
func (in *Inspector) assessMany(ctx context.Context, ids []string, task, requesting string) []agentAssessment {
	out := make([]agentAssessment, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(in.fanOut)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = agentAssessment{agentID: id, assessment: in.Assess(ctx, id, task, requesting)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// AssessMultiAgentTask: узкое место, агент, который не может или не уверен (< 0.7).
func (in *Inspector) AssessMultiAgentTask(ctx context.Context, task string, ids []string, requesting string) domain.MultiAgentAssessment {
	results := in.assessMany(ctx, ids, task, requesting)

	out := domain.MultiAgentAssessment{
		Assessments:     make(map[string]domain.CapabilityAssessment, len(results)),
		Bottlenecks:     []string{},
		Recommendations: []string{},
	}
	for _, r := range results {
		out.Assessments[r.agentID] = r.assessment
		if !r.assessment.CanPerform || r.assessment.ConfidenceLevel < bottleneckConfidence {
			out.Bottlenecks = append(out.Bottlenecks, r.agentID)
		}
		for _, s := range r.assessment.CollaborationSuggestions {
			out.Recommendations = append(out.Recommendations, s.Approach)
		}
	}
	out.Feasible = len(out.Bottlenecks) == 0
	return out
}

// SuggestAllocation: основной исполнитель плюс до двух помощников с уверенностью > 0.6.
func (in *Inspector) SuggestAllocation(ctx context.Context, task string) domain.TaskAllocationPlan {
	descs, err := in.catalog.Descriptors(ctx)
	if err != nil || len(descs) == 0 {
		return fallbackAllocation(descs)
	}

	ids := make([]string, len(descs))
	for i, d := range descs {
		ids[i] = d.ID
	}
	results := in.assessMany(ctx, ids, task, "system")
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].assessment.ConfidenceLevel > results[j].assessment.ConfidenceLevel
	})

	primary := results[0]
	supporting := make([]string, 0, maxSupportingAgents)
	for _, r := range results[1:] {
		if len(supporting) == maxSupportingAgents {
			break
		}
		if r.assessment.CanPerform && r.assessment.ConfidenceLevel > supportingConfidence {
			supporting = append(supporting, r.agentID)
		}
	}

	return domain.TaskAllocationPlan{
		PrimaryAgent:     primary.agentID,
		SupportingAgents: supporting,
		Confidence:       primary.assessment.ConfidenceLevel,
		Rationale: fmt.Sprintf("%s has the highest confidence (%.2f); %d supporting agent(s) above %.1f",
			primary.agentID, primary.assessment.ConfidenceLevel, len(supporting), supportingConfidence),
	}
}

func fallbackAllocation(descs []domain.AgentDescriptor) domain.TaskAllocationPlan {
	plan := domain.TaskAllocationPlan{
		PrimaryAgent:     "communications-agent",
		SupportingAgents: []string{},
		Rationale:        "Unable to assess team capabilities",
	}
	for i, d := range descs {
		if i == 0 {
			plan.PrimaryAgent = d.ID
			continue
		}
		if i > maxSupportingAgents {
			break
		}
		plan.SupportingAgents = append(plan.SupportingAgents, d.ID)
	}
	return plan
}
