package interaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound     = errors.New("interaction: session not found")
	ErrSessionClosed       = errors.New("interaction: session already completed")
	ErrInteractionNotFound = errors.New("interaction: interaction not found")
	ErrInteractionClosed   = errors.New("interaction: interaction already finished")
)

const (
	defaultAssignedBy = "project-coordinator"
	statsWindow       = 30 * 24 * time.Hour
	statsSessionScan  = 100
	topAgents         = 10
)

// activeSession: сессия в памяти со своим счетчиком последовательности.
type activeSession struct {
	mu      sync.Mutex
	session *domain.ChatSession
	seq     int
}

// Service: журнал сессий и взаимодействий агентов.
// Активные сессии живут в памяти, каждый шаг сохраняет полный снимок в Store.
type Service struct {
	store          Store
	orchestratorID string

	mu     sync.Mutex
	active map[string]*activeSession

	now    func() time.Time
	logger *zap.Logger
}

// NewService. orchestratorID помечает сессии, где участвовал оркестратор.
func NewService(store Store, orchestratorID string, logger *zap.Logger) *Service {
	return &Service{
		store:          store,
		orchestratorID: orchestratorID,
		active:         make(map[string]*activeSession),
		now:            time.Now,
		logger:         logger.Named("interaction"),
	}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// StartSession создает сессию и сразу сохраняет ее снимок.
func (s *Service) StartSession(ctx context.Context, userID, request string) string {
	now := s.now()
	ms := now.UnixMilli()
	sess := &domain.ChatSession{
		SessionID:         fmt.Sprintf("session_%d_%s", ms, shortID(9)),
		ChatID:            fmt.Sprintf("chat_%d_%s", ms, shortID(6)),
		UserID:            userID,
		StartTime:         now,
		UserRequest:       request,
		RequestSummary:    summarizeRequest(request),
		OrchestrationType: domain.OrchestrationDirect,
		AgentsInvolved:    []string{},
		Status:            domain.SessionActive,
		Deliverables:      []string{},
		Interactions:      []*domain.Interaction{},
	}

	as := &activeSession{session: sess}
	s.mu.Lock()
	s.active[sess.SessionID] = as
	s.mu.Unlock()

	as.mu.Lock()
	s.persist(ctx, sess)
	as.mu.Unlock()

	s.logger.Info("session started",
		zap.String("session_id", sess.SessionID), zap.String("user_id", userID), zap.String("request", sess.RequestSummary))
	return sess.SessionID
}

// acquire ищет сессию в памяти, затем в хранилище (рестарт процесса).
// Если ее нет нигде, создается минимальная сессия-заглушка: логирование принимается всегда.
func (s *Service) acquire(ctx context.Context, sessionID string) (*activeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if as, ok := s.active[sessionID]; ok {
		return as, nil
	}

	stored, err := s.store.LoadSession(ctx, sessionID)
	switch {
	case err == nil && stored.Status != domain.SessionActive:
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	case err == nil:
		as := &activeSession{session: stored, seq: maxSequence(stored)}
		s.active[sessionID] = as
		s.logger.Warn("session restored from store", zap.String("session_id", sessionID), zap.Int("seq", as.seq))
		return as, nil
	case !errors.Is(err, ErrSessionNotFound):
		s.logger.Error("session lookup failed, creating placeholder", zap.String("session_id", sessionID), zap.Error(err))
	}

	now := s.now()
	as := &activeSession{session: &domain.ChatSession{
		SessionID:         sessionID,
		ChatID:            fmt.Sprintf("chat_%d_emergency", now.UnixMilli()),
		UserID:            "unknown",
		StartTime:         now,
		UserRequest:       "Session created for emergency logging",
		RequestSummary:    "Emergency session",
		OrchestrationType: domain.OrchestrationDirect,
		AgentsInvolved:    []string{},
		Status:            domain.SessionActive,
		Deliverables:      []string{},
		Interactions:      []*domain.Interaction{},
	}}
	s.active[sessionID] = as
	s.logger.Warn("session not found, created minimal session for logging", zap.String("session_id", sessionID))
	return as, nil
}

func maxSequence(sess *domain.ChatSession) int {
	seq := 0
	for _, in := range sess.Interactions {
		if in.SequenceNumber > seq {
			seq = in.SequenceNumber
		}
	}
	return seq
}

// LogInteraction регистрирует назначение задачи агенту. Номер последовательности строго растет с 1.
// Ошибка возможна только для уже завершенной сессии.
func (s *Service) LogInteraction(ctx context.Context, sessionID, agentID, task, input string, meta domain.InteractionMeta) (string, error) {
	as, err := s.acquire(ctx, sessionID)
	if err != nil {
		return "", err
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	sess := as.session
	if sess.Status != domain.SessionActive {
		return "", fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}

	meta = withDefaults(meta, agentID)
	as.seq++
	in := &domain.Interaction{
		ID:             fmt.Sprintf("%s_interaction_%d", sessionID, as.seq),
		Timestamp:      s.now(),
		SessionID:      sessionID,
		ChatID:         sess.ChatID,
		SequenceNumber: as.seq,
		AgentID:        agentID,
		AgentName:      meta.AgentName,
		AgentType:      meta.AgentType,
		TaskAssigned:   task,
		TaskSummary:    summarizeTask(task),
		TaskPriority:   meta.Priority,
		TaskComplexity: meta.Complexity,
		InputReceived:  input,
		Status:         domain.InteractionAssigned,
		AssignedBy:     meta.AssignedBy,
	}

	sess.Interactions = append(sess.Interactions, in)
	sess.TotalInteractions++
	if !contains(sess.AgentsInvolved, agentID) {
		sess.AgentsInvolved = append(sess.AgentsInvolved, agentID)
	}
	if n := len(sess.AgentsInvolved); n > 1 {
		sess.OrchestrationType = domain.OrchestrationSimple
		if n > 3 {
			sess.OrchestrationType = domain.OrchestrationComplex
		}
	}
	if agentID == s.orchestratorID {
		sess.MasterOrchestratorInvolved = true
	}

	s.persist(ctx, sess)
	s.logger.Info("agent assigned",
		zap.String("session_id", sessionID), zap.String("agent_id", agentID),
		zap.Int("seq", in.SequenceNumber), zap.String("task", in.TaskSummary))
	return in.ID, nil
}

func withDefaults(m domain.InteractionMeta, agentID string) domain.InteractionMeta {
	if m.AgentName == "" {
		m.AgentName = agentID
	}
	if m.AgentType == "" {
		m.AgentType = domain.AgentTypeSpecialist
	}
	if m.Priority == "" {
		m.Priority = "medium"
	}
	if m.Complexity == "" {
		m.Complexity = "moderate"
	}
	if m.AssignedBy == "" {
		m.AssignedBy = defaultAssignedBy
	}
	return m
}

// CompleteInteraction переводит взаимодействие в completed или failed.
// executionTimeMs == 0, время считается от момента назначения.
func (s *Service) CompleteInteraction(ctx context.Context, sessionID, interactionID, output string, success bool, executionTimeMs int64) error {
	s.mu.Lock()
	as, ok := s.active[sessionID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	var in *domain.Interaction
	for _, candidate := range as.session.Interactions {
		if candidate.ID == interactionID {
			in = candidate
			break
		}
	}
	if in == nil {
		return fmt.Errorf("%w: %s", ErrInteractionNotFound, interactionID)
	}
	if in.Status != domain.InteractionAssigned {
		return fmt.Errorf("%w: %s", ErrInteractionClosed, interactionID)
	}

	if executionTimeMs <= 0 {
		executionTimeMs = s.now().Sub(in.Timestamp).Milliseconds()
	}

	in.OutputProduced = output
	in.OutputSummary = summarizeOutput(output)
	in.ExecutionTimeMs = executionTimeMs
	in.Success = success
	in.Status = domain.InteractionCompleted
	if !success {
		in.Status = domain.InteractionFailed
	}
	as.session.TotalExecutionTimeMs += executionTimeMs

	s.persist(ctx, as.session)
	s.logger.Info("agent interaction finished",
		zap.String("session_id", sessionID), zap.String("agent_id", in.AgentID),
		zap.Bool("success", success), zap.Int64("execution_ms", executionTimeMs))
	return nil
}

// CompleteSession закрывает сессию ровно один раз: повторный вызов возвращает ErrSessionClosed.
func (s *Service) CompleteSession(ctx context.Context, sessionID, finalResponse string, deliverables []string, satisfaction *int) error {
	s.mu.Lock()
	as, ok := s.active[sessionID]
	s.mu.Unlock()

	if !ok {
		stored, err := s.store.LoadSession(ctx, sessionID)
		if err == nil && stored.Status != domain.SessionActive {
			return fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
		}
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	// Статус и итоговый снимок фиксируются до вытеснения из памяти:
	// иначе параллельный LogInteraction поднимет из хранилища еще активную сессию
	as.mu.Lock()
	defer as.mu.Unlock()

	sess := as.session
	if sess.Status != domain.SessionActive {
		return fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}
	end := s.now()
	sess.EndTime = &end
	sess.FinalResponse = finalResponse
	if deliverables == nil {
		deliverables = []string{}
	}
	sess.Deliverables = deliverables
	sess.UserSatisfaction = satisfaction
	sess.Status = domain.SessionCompleted
	s.persist(ctx, sess)

	s.mu.Lock()
	if s.active[sessionID] == as {
		delete(s.active, sessionID)
	}
	s.mu.Unlock()

	path, size := s.store.Locate(ctx, sessionID)
	summary := domain.SessionSummary{
		LogID:             "log_" + sessionID,
		SessionID:         sessionID,
		ChatID:            sess.ChatID,
		CreatedAt:         sess.StartTime,
		TotalInteractions: sess.TotalInteractions,
		SessionDurationMs: sess.TotalExecutionTimeMs,
		AgentBreakdown:    agentBreakdown(sess),
		LogFilePath:       path,
		FileSize:          size,
		Status:            string(domain.SessionCompleted),
	}
	if err := s.store.AppendSummary(ctx, summary); err != nil {
		s.logger.Error("failed to append session summary", zap.String("session_id", sessionID), zap.Error(err))
	}

	s.logger.Info("session completed",
		zap.String("session_id", sessionID),
		zap.Int("interactions", sess.TotalInteractions),
		zap.Duration("duration", end.Sub(sess.StartTime)))
	return nil
}

// persist: ошибки хранилища не прерывают работу, только логируются.
func (s *Service) persist(ctx context.Context, sess *domain.ChatSession) {
	if err := s.store.SaveSession(ctx, sess); err != nil {
		s.logger.Error("failed to write session snapshot", zap.String("session_id", sess.SessionID), zap.Error(err))
	}
}

// SessionHistory: сначала активные сессии, затем хранилище.
func (s *Service) SessionHistory(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	s.mu.Lock()
	as, ok := s.active[sessionID]
	s.mu.Unlock()
	if ok {
		as.mu.Lock()
		defer as.mu.Unlock()
		return cloneSession(as.session), nil
	}
	return s.store.LoadSession(ctx, sessionID)
}

// RecentSessions: итоговые записи, новые первыми.
func (s *Service) RecentSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.RecentSummaries(ctx, limit)
}

func (s *Service) activeSnapshots() []*domain.ChatSession {
	s.mu.Lock()
	list := make([]*activeSession, 0, len(s.active))
	for _, as := range s.active {
		list = append(list, as)
	}
	s.mu.Unlock()

	out := make([]*domain.ChatSession, 0, len(list))
	for _, as := range list {
		as.mu.Lock()
		out = append(out, cloneSession(as.session))
		as.mu.Unlock()
	}
	return out
}

// sessions: активные плюс последние завершенные из журнала итогов.
func (s *Service) sessions(ctx context.Context) []*domain.ChatSession {
	all := s.activeSnapshots()
	seen := make(map[string]bool, len(all))
	for _, sess := range all {
		seen[sess.SessionID] = true
	}

	summaries, err := s.store.RecentSummaries(ctx, statsSessionScan)
	if err != nil {
		s.logger.Warn("recent sessions unavailable", zap.Error(err))
		return all
	}
	for _, sum := range summaries {
		if seen[sum.SessionID] {
			continue
		}
		sess, err := s.store.LoadSession(ctx, sum.SessionID)
		if err != nil {
			continue
		}
		seen[sum.SessionID] = true
		all = append(all, sess)
	}
	return all
}

// SearchQuery: фильтр поиска. Пустые поля не фильтруют.
type SearchQuery struct {
	Text  string
	Agent string
	From  time.Time
	To    time.Time
}

// SearchInteractions ищет подстроку в задаче, итогах и имени агента. Новые первыми.
func (s *Service) SearchInteractions(ctx context.Context, q SearchQuery) []*domain.Interaction {
	needle := strings.ToLower(q.Text)
	out := []*domain.Interaction{}
	for _, sess := range s.sessions(ctx) {
		for _, in := range sess.Interactions {
			if q.Agent != "" && in.AgentID != q.Agent {
				continue
			}
			if !q.From.IsZero() && in.Timestamp.Before(q.From) {
				continue
			}
			if !q.To.IsZero() && in.Timestamp.After(q.To) {
				continue
			}
			hay := strings.ToLower(strings.Join([]string{
				in.TaskAssigned, in.TaskSummary, in.OutputSummary, in.AgentName, in.AgentID,
			}, " "))
			if strings.Contains(hay, needle) {
				out = append(out, in)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func agentBreakdown(sess *domain.ChatSession) map[string]int {
	out := make(map[string]int)
	for _, in := range sess.Interactions {
		out[in.AgentID]++
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func cloneSession(src *domain.ChatSession) *domain.ChatSession {
	dst := *src
	dst.AgentsInvolved = append([]string(nil), src.AgentsInvolved...)
	dst.Deliverables = append([]string(nil), src.Deliverables...)
	dst.Interactions = make([]*domain.Interaction, len(src.Interactions))
	for i, in := range src.Interactions {
		c := *in
		dst.Interactions[i] = &c
	}
	if src.EndTime != nil {
		t := *src.EndTime
		dst.EndTime = &t
	}
	return &dst
}
