package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/spaceai-agentmesh/internal/agents"
	"github.com/xela07ax/spaceai-agentmesh/internal/completion"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrPlanCreation: сервис рассуждений не ответил при планировании. Резервный план не строится.
var ErrPlanCreation = errors.New("PLAN CREATION FAILED")

// AgentExecutionError: отказ одного агента в плане. Ловится на границе агента.
type AgentExecutionError struct {
	AgentID string
	Reason  string
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("AGENT EXECUTION FAILED: Agent %q could not complete task. Error: %s", e.AgentID, e.Reason)
}

// Directory: то, что оркестратору нужно от каталога агентов.
type Directory interface {
	Discover(ctx context.Context) ([]string, error)
	Descriptor(id string) (domain.AgentDescriptor, bool)
	DisplayName(id string) string
	IsValid(id string) bool
	Normalize(raw string) string
	ResolveInstance(id string) (agents.Handler, bool)
}

// Recorder: журнал сессий и взаимодействий.
type Recorder interface {
	StartSession(ctx context.Context, userID, request string) string
	LogInteraction(ctx context.Context, sessionID, agentID, task, input string, meta domain.InteractionMeta) (string, error)
	CompleteInteraction(ctx context.Context, sessionID, interactionID, output string, success bool, executionTimeMs int64) error
	CompleteSession(ctx context.Context, sessionID, finalResponse string, deliverables []string, satisfaction *int) error
}

const (
	pitchRequest  = "Provide a brief one-sentence elevator pitch of your primary capabilities and specializations"
	commFailure   = "Communication error - agent may be unavailable"
	digestFanOut  = 8
	defaultDigest = 5 * time.Second
)

// Orchestrator выбирает агентов под запрос через сервис рассуждений
// и исполняет план последовательно, записывая каждое обращение в журнал.
type Orchestrator struct {
	selfID   string
	dir      Directory
	llm      completion.Service
	journal  Recorder
	cfg      infra.OrchestratorConfig
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
	fallback []string
}

func New(dir Directory, llm completion.Service, journal Recorder, cfg infra.OrchestratorConfig, selfID string, metrics *Metrics, logger *zap.Logger) *Orchestrator {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.DigestTimeout <= 0 {
		cfg.DigestTimeout = defaultDigest
	}
	fallback := cfg.FallbackAgents
	if len(fallback) == 0 {
		fallback = []string{"project-coordinator-agent", "communications-agent"}
	}
	return &Orchestrator{
		selfID:   selfID,
		dir:      dir,
		llm:      llm,
		journal:  journal,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.Named("orchestrator"),
		now:      time.Now,
		fallback: append([]string(nil), fallback...),
	}
}

// Descriptor: описание самого оркестратора для регистрации в каталоге.
func Descriptor(selfID string) domain.AgentDescriptor {
	return domain.AgentDescriptor{
		ID:          selfID,
		Name:        "Master Orchestrator",
		Description: "Coordinates specialized agents: plans, delegates and aggregates multi-agent work",
		Abilities:   []string{"Multi-agent planning", "Task delegation", "Result aggregation", "Team capability reporting"},
		Kind:        string(agents.KindCoordinator),
	}
}

// Handle: единый контракт агента для самого оркестратора.
func (o *Orchestrator) Handle(ctx context.Context, task domain.Task) domain.TaskResult {
	o.metrics.TotalRequests.WithLabelValues(task.Type).Inc()

	switch task.Type {
	case domain.TaskOrchestrate, domain.TaskExecute:
		res := o.Orchestrate(ctx, task.Payload)
		if res.Status == domain.OrchestrationPlanFailed {
			return domain.TaskResult{Success: false, Result: res, Error: res.Error}
		}
		return domain.Succeeded(res)
	case domain.TaskPlan:
		plan, err := o.Plan(ctx, task.Payload)
		if err != nil {
			return domain.Failed(err.Error())
		}
		return domain.Succeeded(plan)
	case domain.TaskGetAgentCapabilities:
		digest, err := o.CapabilitiesDigest(ctx)
		if err != nil {
			return domain.Failed(err.Error())
		}
		return domain.Succeeded(digest)
	case domain.TaskCountAgents:
		digest, err := o.CountDigest(ctx)
		if err != nil {
			return domain.Failed(err.Error())
		}
		return domain.Succeeded(digest)
	case domain.TaskElevatorPitch:
		return domain.Succeeded("I coordinate a team of specialized agents and turn one request into a delegated, tracked plan.")
	default:
		return domain.Failed(fmt.Sprintf("Unknown task type: %s", task.Type))
	}
}

// team: все агенты каталога, кроме самого оркестратора.
func (o *Orchestrator) team(ctx context.Context) ([]string, error) {
	ids, err := o.dir.Discover(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != o.selfID {
			out = append(out, id)
		}
	}
	return out, nil
}

// Plan строит план. Ошибка сервиса рассуждений фатальна; пустое извлечение дает резервную пару.
func (o *Orchestrator) Plan(ctx context.Context, payload map[string]interface{}) (*domain.OrchestrationPlan, error) {
	start := o.now()
	team, err := o.team(ctx)
	if err != nil {
		o.metrics.PlanDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		return nil, err
	}

	system := o.systemPrompt(len(team))
	prompt := o.planningPrompt(payload, team)

	if o.llm == nil {
		o.metrics.ErrorTotal.WithLabelValues("plan_failed").Inc()
		return nil, planError(completion.ErrNotConfigured)
	}
	text, err := o.llm.Complete(ctx, system, []completion.Message{completion.User(prompt)})
	if err != nil {
		o.metrics.ErrorTotal.WithLabelValues("plan_failed").Inc()
		o.metrics.PlanDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		o.logger.Error("plan creation failed", zap.Error(err))
		return nil, planError(err)
	}

	plan := withAdvisory(domain.OrchestrationPlan{PlanText: text}, text)
	plan.Agents = o.resolveAgents(ExtractCandidates(text))
	if len(plan.Agents) == 0 {
		o.logger.Warn("no agents extracted from plan, using fallback pair", zap.Strings("fallback", o.fallback))
		plan.Agents = append([]string(nil), o.fallback...)
	}

	o.metrics.PlanDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	o.logger.Info("plan created", zap.Strings("agents", plan.Agents))
	return &plan, nil
}

func planError(cause error) error {
	return fmt.Errorf("%w: Could not generate execution plan. Completion service error: %v. Check API keys and completion service configuration", ErrPlanCreation, cause)
}

// resolveAgents: normalize, dedup, отбросить невалидные и самого себя. Порядок первого появления.
func (o *Orchestrator) resolveAgents(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		id := o.dir.Normalize(c)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if !o.dir.IsValid(id) {
			o.logger.Debug("unknown agent extracted from plan, ignoring", zap.String("candidate", c), zap.String("normalized", id))
			continue
		}
		if id == o.selfID {
			o.logger.Warn("orchestrator cannot coordinate with itself, ignoring", zap.String("agent_id", id))
			continue
		}
		out = append(out, id)
	}
	return out
}

func (o *Orchestrator) systemPrompt(teamSize int) string {
	return fmt.Sprintf(`You are the Master Orchestrator, coordinating a team of specialized AI agents.
Your role is to analyze tasks and determine which agents from your team are best suited to fulfill the request.

CORE PRINCIPLE: Analyze what the task actually requires and select appropriate agents based on their capabilities.

Your execution plans should include:
1. Task analysis - what specific capabilities does this task require?
2. Agent selection - which agents have the needed capabilities?
3. Task decomposition and sequencing
4. Agent assignment and coordination
5. Dependencies and prerequisites
6. Timeline estimates
7. Quality checkpoints
8. Risk mitigation strategies

CRITICAL: You have access to %d specialized agents. Use the ones that match the task requirements.

Return your response as a structured plan that identifies which specific agents should be involved and why.`, teamSize)
}

func (o *Orchestrator) planningPrompt(payload map[string]interface{}, team []string) string {
	details, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		details = []byte("{}")
	}

	var b strings.Builder
	for _, id := range team {
		desc := describe(id)
		if desc == genericDescription {
			if d, ok := o.dir.Descriptor(id); ok && d.Description != "" {
				desc = d.Description
			}
		}
		fmt.Fprintf(&b, "- %s: %s - %s\n", id, o.dir.DisplayName(id), desc)
	}

	return fmt.Sprintf(`# Task Orchestration Request

## Task Details
%s

## Available Agents (%d agents available - DO NOT include %s in the plan)
%s
## Planning Requirements
Create a comprehensive execution plan that:
1. Analyzes what specific capabilities are needed for this task
2. Identifies which agents from the available team have those capabilities
3. Assigns appropriate agents to each subtask based on their actual abilities
4. Breaks down the task into manageable subtasks
5. Identifies dependencies between tasks
6. Provides realistic timeline estimates
7. Includes quality checkpoints and validation steps
8. Considers potential risks and mitigation strategies

## Required Output Format
List the selected agents in exactly this format:

**SELECTED AGENTS:**
- researcher-agent (for information gathering)
- communications-agent (for document creation)

Use the exact agent IDs from the available agents list above. Only select agents that are actually needed for the task.`,
		details, len(team), o.selfID, b.String())
}

// Execute исполняет план по одному агенту в порядке плана.
// Отказ агента фиксируется в сессии и не останавливает остальных.
func (o *Orchestrator) Execute(ctx context.Context, plan *domain.OrchestrationPlan, payload map[string]interface{}) domain.OrchestrationResult {
	// План доводится до конца и после ухода клиента: сессия должна закрыться в хранилище
	ctx = context.WithoutCancel(ctx)
	userRequest := stringOr(payload, "userRequest", "")

	// 1. Сессия на весь запрос
	sessionID := o.journal.StartSession(ctx,
		stringOr(payload, "userId", "unknown"),
		stringOr(payload, "userRequest", "Agent orchestration request"))

	// 2. Собственная management-запись, если включена
	var selfInteraction string
	if o.cfg.TrackSelf {
		input, _ := json.Marshal(payload)
		req := userRequest
		if req == "" {
			req = "Unknown task"
		}
		id, err := o.journal.LogInteraction(ctx, sessionID, o.selfID,
			"Orchestrate multi-agent task: "+req, string(input),
			domain.InteractionMeta{AgentName: "Master Orchestrator", AgentType: domain.AgentTypeManagement, Priority: "high", Complexity: "complex", AssignedBy: "user"})
		if err != nil {
			o.logger.Warn("failed to log orchestrator interaction", zap.Error(err))
		}
		selfInteraction = id
	}

	result := domain.OrchestrationResult{
		SessionID:      sessionID,
		Plan:           plan,
		ExecutedAgents: make([]string, 0, len(plan.Agents)),
	}
	lines := make([]string, 0, len(plan.Agents))

	// 3. Агенты строго последовательно
	input := userRequest
	if input == "" {
		input = "Orchestrated task"
	}
	for _, agentID := range plan.Agents {
		interactionID, err := o.journal.LogInteraction(ctx, sessionID, agentID, agentTask(agentID, userRequest), input,
			domain.InteractionMeta{
				AgentName:  o.dir.DisplayName(agentID),
				AgentType:  domain.AgentTypeSpecialist,
				Priority:   "medium",
				Complexity: "moderate",
				AssignedBy: o.selfID,
			})
		if err != nil {
			o.logger.Warn("failed to log agent interaction", zap.String("agent_id", agentID), zap.Error(err))
		}

		started := o.now()
		output, execErr := o.executeAgent(ctx, agentID, payload, userRequest)
		elapsed := time.Since(started)

		if execErr != nil {
			o.logger.Error("agent execution failed", zap.String("agent_id", agentID), zap.Error(execErr))
			o.metrics.ErrorTotal.WithLabelValues("agent_failed").Inc()
			o.metrics.AgentDuration.WithLabelValues(agentID, "failed").Observe(elapsed.Seconds())
			o.completeInteraction(ctx, sessionID, interactionID, execErr.Error(), false, elapsed)
			result.FailedAgents = append(result.FailedAgents, agentID)
			lines = append(lines, fmt.Sprintf("%s: Failed - %s", agentID, execErr.Error()))
			continue
		}

		o.metrics.AgentDuration.WithLabelValues(agentID, "ok").Observe(elapsed.Seconds())
		o.completeInteraction(ctx, sessionID, interactionID, output, true, elapsed)
		result.ExecutedAgents = append(result.ExecutedAgents, agentID)
		lines = append(lines, fmt.Sprintf("%s: %s", agentID, output))
	}

	// 4. Итог и закрытие сессии
	final := fmt.Sprintf("Executed orchestration plan with %d agents. Results: %s", len(plan.Agents), strings.Join(lines, "; "))
	if selfInteraction != "" {
		if err := o.journal.CompleteInteraction(ctx, sessionID, selfInteraction, final, true, 0); err != nil {
			o.logger.Warn("failed to complete orchestrator interaction", zap.Error(err))
		}
	}
	if err := o.journal.CompleteSession(ctx, sessionID, final, stringList(payload["deliverables"]), nil); err != nil {
		o.logger.Warn("failed to complete session", zap.String("session_id", sessionID), zap.Error(err))
	}

	result.Results = final
	result.Status = domain.OrchestrationCompleted
	if len(result.FailedAgents) > 0 {
		result.Status = domain.OrchestrationPartiallyFailed
	}
	return result
}

func (o *Orchestrator) completeInteraction(ctx context.Context, sessionID, interactionID, output string, success bool, elapsed time.Duration) {
	if interactionID == "" {
		return
	}
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	if err := o.journal.CompleteInteraction(ctx, sessionID, interactionID, output, success, ms); err != nil {
		o.logger.Warn("failed to complete interaction", zap.String("interaction_id", interactionID), zap.Error(err))
	}
}

// executeAgent fail-fast для одного агента. Отказ, если нет инстанса, success=false или пустой результат.
func (o *Orchestrator) executeAgent(ctx context.Context, agentID string, payload map[string]interface{}, userRequest string) (string, error) {
	h, ok := o.dir.ResolveInstance(agentID)
	if !ok {
		o.metrics.ErrorTotal.WithLabelValues("unknown_agent").Inc()
		return "", &AgentExecutionError{AgentID: agentID, Reason: fmt.Sprintf("Agent %q not found or could not be instantiated", agentID)}
	}

	task := domain.Task{
		Type: domain.TaskExecute,
		Payload: map[string]interface{}{
			"task":                 agentTask(agentID, userRequest),
			"userRequest":          userRequest,
			"conversationHistory":  payload["conversationHistory"],
			"personaContext":       payload["personaContext"],
			"requiredDeliverables": payload["deliverables"],
			"priority":             stringOr(payload, "priority", "medium"),
		},
	}

	res := h.Handle(ctx, task)
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "Unknown error"
		}
		return "", &AgentExecutionError{AgentID: agentID, Reason: fmt.Sprintf("Agent %q execution failed: %s", agentID, reason)}
	}
	out := resultText(res.Result)
	if out == "" {
		return "", &AgentExecutionError{AgentID: agentID, Reason: fmt.Sprintf("Agent %q returned empty result", agentID)}
	}
	return out, nil
}

// Orchestrate = Plan + Execute. Ошибка планирования превращается в статус plan-failed.
func (o *Orchestrator) Orchestrate(ctx context.Context, payload map[string]interface{}) domain.OrchestrationResult {
	start := o.now()

	plan, err := o.Plan(ctx, payload)
	if err != nil {
		return domain.OrchestrationResult{
			Status:             domain.OrchestrationPlanFailed,
			ExecutedAgents:     []string{},
			Results:            "Orchestration failed",
			Error:              err.Error(),
			TotalExecutionTime: time.Since(start),
		}
	}

	res := o.Execute(ctx, plan, payload)
	res.TotalExecutionTime = time.Since(start)

	o.logger.Info("orchestration finished",
		zap.String("status", res.Status),
		zap.String("session_id", res.SessionID),
		zap.Strings("executed", res.ExecutedAgents),
		zap.Strings("failed", res.FailedAgents),
		zap.Duration("duration", res.TotalExecutionTime))
	return res
}

// CapabilitiesDigest опрашивает каждого агента с таймаутом.
// На каждого агента ровно одна строка: ответ, первые две способности или заглушка.
func (o *Orchestrator) CapabilitiesDigest(ctx context.Context) (string, error) {
	team, err := o.team(ctx)
	if err != nil {
		return "", err
	}

	pitches := make([]string, len(team))
	g := new(errgroup.Group)
	g.SetLimit(digestFanOut)
	for i, id := range team {
		g.Go(func() error {
			pitches[i] = o.pitch(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	b.WriteString("# Agent Capability Summary Report\n")
	b.WriteString("I've coordinated with our specialized AI agents to collect summaries of their capabilities. Here are the results from our team:\n\n")
	b.WriteString("## Agent Capabilities\n\n")
	for i, id := range team {
		fmt.Fprintf(&b, "**%s:**\n•%s\n", o.dir.DisplayName(id), pitches[i])
	}
	b.WriteString("\n## Execution Notes\n\n")
	if len(team) > 0 {
		fmt.Fprintf(&b, "We successfully gathered capabilities from %d specialized agents.\n", len(team))
	} else {
		b.WriteString("We encountered a technical limitation - no agents were available for direct communication.\n")
	}
	b.WriteString("\nDespite any technical constraints, we've compiled comprehensive capability information from our agent team.")
	return b.String(), nil
}

func (o *Orchestrator) pitch(ctx context.Context, id string) string {
	if h, ok := o.dir.ResolveInstance(id); ok {
		if text, ok := o.askPitch(ctx, h); ok {
			return text
		}
	}

	o.metrics.ErrorTotal.WithLabelValues("digest_fallback").Inc()
	if d, ok := o.dir.Descriptor(id); ok && len(d.Abilities) > 0 {
		n := len(d.Abilities)
		if n > 2 {
			n = 2
		}
		return strings.Join(d.Abilities[:n], " and ")
	}
	return commFailure
}

// askPitch ограничивает ожидание таймаутом даже для агента, который игнорирует ctx.
func (o *Orchestrator) askPitch(ctx context.Context, h agents.Handler) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.DigestTimeout)
	defer cancel()

	done := make(chan domain.TaskResult, 1)
	go func() {
		done <- h.Handle(ctx, domain.Task{
			Type:    domain.TaskElevatorPitch,
			Payload: map[string]interface{}{"userRequest": pitchRequest},
		})
	}()

	select {
	case res := <-done:
		text := resultText(res.Result)
		return text, res.Success && text != ""
	case <-ctx.Done():
		return "", false
	}
}

// CountDigest: число агентов и строка на каждого из статической таблицы описаний.
func (o *Orchestrator) CountDigest(ctx context.Context) (string, error) {
	team, err := o.team(ctx)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(team))
	for _, id := range team {
		lines = append(lines, fmt.Sprintf("• **%s**: %s", o.dir.DisplayName(id), describe(id)))
	}

	return fmt.Sprintf(`# Agent Team Summary

I have **%d specialized agents** available on my team:

%s

Each agent brings unique expertise and can be called upon individually or as part of coordinated multi-agent workflows to handle complex tasks requiring diverse skills.`,
		len(team), strings.Join(lines, "\n")), nil
}

func stringOr(payload map[string]interface{}, key, def string) string {
	if s, ok := payload[key].(string); ok && s != "" {
		return s
	}
	return def
}

func stringList(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// resultText: результат агента в строку; не-строки сериализуются в JSON.
func resultText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
