package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra/auth"
	"github.com/xela07ax/spaceai-agentmesh/internal/interaction"
	"go.uber.org/zap"
)

const (
	scopeOrchestrate = "orchestrate"
	scopeAdmin       = "admin"

	// requestingAgent по умолчанию для запросов из API
	apiRequester = "api"
)

// requireScope закрывает маршрут правом из токена.
func requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.HasScope(r.Context(), scope) {
				http.Error(w, "Forbidden: missing scope "+scope, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withCaller проставляет userId сессии из токена. В анонимном режиме
// доверяем userId из тела, если он есть.
func withCaller(r *http.Request, payload map[string]interface{}) {
	user := auth.UserIDFromContext(r.Context())
	if _, ok := payload["userId"].(string); ok && user == auth.AnonymousUser {
		return
	}
	payload["userId"] = user
}

func decodePayload(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	if req, _ := payload["userRequest"].(string); strings.TrimSpace(req) == "" {
		http.Error(w, "userRequest is required", http.StatusBadRequest)
		return nil, false
	}
	withCaller(r, payload)
	return payload, true
}

// orchestrate выполняет полный цикл: план, исполнение, журнал.
// POST /v1/orchestrate
func (s *Server) orchestrate(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	res := s.deps.Orchestrator.Orchestrate(r.Context(), payload)
	status := http.StatusOK
	if res.Status == domain.OrchestrationPlanFailed {
		// Сервис рассуждений недоступен: это не ошибка клиента
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

// plan: только план, без исполнения и без сессии.
// POST /v1/plan
func (s *Server) plan(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	plan, err := s.deps.Orchestrator.Plan(r.Context(), payload)
	if err != nil {
		s.logger.Warn("plan failed", zap.Error(err), zap.String("trace_id", TraceIDFromContext(r.Context())))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// GET /v1/agents
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	descs, err := s.deps.Catalog.Descriptors(r.Context())
	if err != nil {
		http.Error(w, "Failed to discover agents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, descs)
}

// GET /v1/agents/count
func (s *Server) countAgents(w http.ResponseWriter, r *http.Request) {
	text, err := s.deps.Orchestrator.CountDigest(r.Context())
	if err != nil {
		http.Error(w, "Failed to count agents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": text})
}

// GET /v1/agents/digest
func (s *Server) digest(w http.ResponseWriter, r *http.Request) {
	text, err := s.deps.Orchestrator.CapabilitiesDigest(r.Context())
	if err != nil {
		http.Error(w, "Failed to build digest: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": text})
}

type assessRequest struct {
	Query           string `json:"query"`
	RequestingAgent string `json:"requestingAgent"`
}

// assess: оценка агентом задачи. Ошибки внутри деградируют в консервативную оценку.
// POST /v1/agents/{id}/assess
func (s *Server) assess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.RequestingAgent == "" {
		req.RequestingAgent = apiRequester
	}
	writeJSON(w, http.StatusOK, s.deps.Inspector.Assess(r.Context(), id, req.Query, req.RequestingAgent))
}

type collaborateRequest struct {
	From string `json:"from"`
	domain.CollaborationRequest
}

// POST /v1/agents/{id}/collaborate
func (s *Server) collaborate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req collaborateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.From == "" {
		req.From = apiRequester
	}
	writeJSON(w, http.StatusOK, s.deps.Collab.Request(r.Context(), req.From, id, req.CollaborationRequest))
}

// POST /v1/agents/{id}/block
func (s *Server) block(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.KillSwitch.Block(r.Context(), id); err != nil {
		s.logger.Error("failed to block agent", zap.String("agent_id", id), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Warn("agent blocked via api", zap.String("agent_id", id), zap.String("by", auth.UserIDFromContext(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/agents/{id}/unblock
func (s *Server) unblock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.KillSwitch.Unblock(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/agents/blocked
func (s *Server) listBlocked(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.KillSwitch.Blocked())
}

// GET /v1/team/matrix
func (s *Server) teamMatrix(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Inspector.TeamMatrix(r.Context()))
}

// GET /v1/team/allocation?task=...
func (s *Server) allocation(w http.ResponseWriter, r *http.Request) {
	task := r.URL.Query().Get("task")
	if strings.TrimSpace(task) == "" {
		http.Error(w, "task is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Inspector.SuggestAllocation(r.Context(), task))
}

// GET /v1/sessions?limit=10
func (s *Server) recentSessions(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	sums, err := s.deps.Journal.RecentSessions(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to fetch sessions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

// GET /v1/sessions/{id}
func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.deps.Journal.SessionHistory(r.Context(), id)
	if errors.Is(err, interaction.ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to retrieve session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// parseRange читает from/to в RFC3339. Пустые значения, нулевое время.
func parseRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
	}
	return
}

// GET /v1/interactions/search?q=...&agent=...&from=...&to=...
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, "from/to must be RFC3339", http.StatusBadRequest)
		return
	}
	q := interaction.SearchQuery{
		Text:  r.URL.Query().Get("q"),
		Agent: r.URL.Query().Get("agent"),
		From:  from,
		To:    to,
	}
	writeJSON(w, http.StatusOK, s.deps.Journal.SearchInteractions(r.Context(), q))
}

// GET /v1/stats?from=...&to=...
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, "from/to must be RFC3339", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Journal.Stats(r.Context(), from, to))
}

// GET /v1/bridge/grants
func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Grants.Grants())
}

// putGrant создает или меняет правило (включая Wildcard '*').
// PUT /v1/bridge/grants
func (s *Server) putGrant(w http.ResponseWriter, r *http.Request) {
	var g domain.Grant
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if g.AgentID == "" || g.DataType == "" {
		http.Error(w, "agent_id and data_type are required", http.StatusBadRequest)
		return
	}
	if err := s.deps.Grants.Put(r.Context(), g); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/audit?agent=...&action=...
func (s *Server) auditLog(w http.ResponseWriter, r *http.Request) {
	agent := r.URL.Query().Get("agent")
	action := r.URL.Query().Get("action")

	out := make([]domain.AuditEntry, 0)
	for _, e := range s.deps.Audit.Entries() {
		if agent != "" && e.Agent != agent {
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}
