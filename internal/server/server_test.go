package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-agentmesh/internal/agents"
	"github.com/xela07ax/spaceai-agentmesh/internal/bridge"
	"github.com/xela07ax/spaceai-agentmesh/internal/completion"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra/auth"
	"github.com/xela07ax/spaceai-agentmesh/internal/interaction"
	"github.com/xela07ax/spaceai-agentmesh/internal/killswitch"
	"github.com/xela07ax/spaceai-agentmesh/internal/orchestrator"
	"go.uber.org/zap"
)

const selfID = "master-orchestrator"

type stubInspector struct{}

func (stubInspector) Assess(_ context.Context, agentID, query, requesting string) domain.CapabilityAssessment {
	return domain.CapabilityAssessment{CanPerform: true, ConfidenceLevel: 0.8, RecommendedApproach: agentID + "/" + requesting + "/" + query}
}

func (stubInspector) TeamMatrix(context.Context) domain.TeamCapabilityMatrix {
	return domain.TeamCapabilityMatrix{}
}

func (stubInspector) SuggestAllocation(_ context.Context, task string) domain.TaskAllocationPlan {
	return domain.TaskAllocationPlan{}
}

type stubCollab struct{ from, to string }

func (c *stubCollab) Request(_ context.Context, from, to string, req domain.CollaborationRequest) domain.CollaborationResponse {
	c.from, c.to = from, to
	return domain.CollaborationResponse{Accepted: req.MinimumConfidence < 0.9, Reason: req.TaskDescription}
}

type stubAudit []domain.AuditEntry

func (a stubAudit) Entries() []domain.AuditEntry { return a }

type tokens map[string]*domain.CustomClaims

func (v tokens) VerifyToken(token string) (*domain.CustomClaims, error) {
	if c, ok := v[strings.TrimPrefix(token, "Bearer ")]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

type fixture struct {
	srv     *Server
	journal *interaction.Service
	ks      *killswitch.Manager
	collab  *stubCollab
}

func newFixture(t *testing.T, llm completion.Service, validator auth.TokenValidator) *fixture {
	t.Helper()
	logger := zap.NewNop()

	dir := agents.NewDirectory(logger)
	store, err := interaction.NewFileStore(t.TempDir())
	require.NoError(t, err)
	journal := interaction.NewService(store, selfID, logger)

	reg := prometheus.NewRegistry()
	metrics := orchestrator.NewMetrics(reg)
	orch := orchestrator.New(dir, llm, journal, infra.OrchestratorConfig{}, selfID, metrics, logger)
	require.NoError(t, dir.Register(orchestrator.Descriptor(selfID), orch))
	for _, id := range []string{"alpha-agent", "beta-agent"} {
		require.NoError(t, dir.Register(domain.AgentDescriptor{ID: id, Abilities: []string{"Thing one"}}, agents.HandlerFunc(
			func(_ context.Context, task domain.Task) domain.TaskResult {
				return domain.Succeeded(id + " did " + task.PayloadString("userRequest"))
			})))
	}

	ks := killswitch.NewManager(nil, logger)
	dir.SetGate(ks)
	collab := &stubCollab{}

	srv := New(Deps{
		Orchestrator: orch,
		Catalog:      dir,
		Inspector:    stubInspector{},
		Collab:       collab,
		Journal:      journal,
		KillSwitch:   ks,
		Grants:       bridge.NewPolicy(nil, nil, logger),
		Audit:        stubAudit{{Timestamp: "t1", Action: "granted", Agent: "alpha-agent"}, {Timestamp: "t2", Action: "denied", Agent: "beta-agent"}},
	}, validator, metrics, reg, logger)

	return &fixture{srv: srv, journal: journal, ks: ks, collab: collab}
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func planReply() completion.Service {
	return completion.Func(func(context.Context, string, []completion.Message) (string, error) {
		return "**SELECTED AGENTS:**\n- alpha-agent\n- beta-agent\n", nil
	})
}

func TestServer_HealthAndTrace(t *testing.T) {
	f := newFixture(t, planReply(), nil)

	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = f.do(t, http.MethodGet, "/health", "", "X-Trace-ID", "trace-42")
	assert.Equal(t, "trace-42", rec.Header().Get("X-Trace-ID"))
}

func TestServer_OrchestrateThenReadSession(t *testing.T) {
	f := newFixture(t, planReply(), nil)

	rec := f.do(t, http.MethodPost, "/v1/orchestrate", `{"userRequest":"Ship it","userId":"u-7"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res domain.OrchestrationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, domain.OrchestrationCompleted, res.Status)
	assert.Equal(t, []string{"alpha-agent", "beta-agent"}, res.ExecutedAgents)
	require.NotEmpty(t, res.SessionID)

	rec = f.do(t, http.MethodGet, "/v1/sessions/"+res.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess domain.ChatSession
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sess))
	assert.Equal(t, "u-7", sess.UserID, "anonymous mode keeps userId from the body")
	require.Len(t, sess.Interactions, 2)
	assert.Equal(t, "alpha-agent", sess.Interactions[0].AgentID)

	rec = f.do(t, http.MethodGet, "/v1/interactions/search?q=ship&agent=beta-agent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found []domain.Interaction
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&found))
	require.Len(t, found, 1)
	assert.Equal(t, "beta-agent", found[0].AgentID)

	rec = f.do(t, http.MethodGet, "/v1/sessions?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sums []domain.SessionSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sums))
	assert.Len(t, sums, 1)
}

func TestServer_OrchestratePlanFailureIsBadGateway(t *testing.T) {
	llm := completion.Func(func(context.Context, string, []completion.Message) (string, error) {
		return "", errors.New("quota exceeded")
	})
	f := newFixture(t, llm, nil)

	rec := f.do(t, http.MethodPost, "/v1/orchestrate", `{"userRequest":"Ship it"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var res domain.OrchestrationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, domain.OrchestrationPlanFailed, res.Status)
	assert.Contains(t, res.Error, "PLAN CREATION FAILED")

	rec = f.do(t, http.MethodPost, "/v1/plan", `{"userRequest":"Ship it"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_RejectsBadInput(t *testing.T) {
	f := newFixture(t, planReply(), nil)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/orchestrate", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/orchestrate", `{"userRequest":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/stats?from=yesterday", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/sessions?limit=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/team/allocation", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/sessions/nope", "").Code)
}

func TestServer_PlanAndDirectoryViews(t *testing.T) {
	f := newFixture(t, planReply(), nil)

	rec := f.do(t, http.MethodPost, "/v1/plan", `{"userRequest":"Ship it"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var plan domain.OrchestrationPlan
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&plan))
	assert.Equal(t, []string{"alpha-agent", "beta-agent"}, plan.Agents)

	rec = f.do(t, http.MethodGet, "/v1/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var descs []domain.AgentDescriptor
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&descs))
	assert.Len(t, descs, 3)

	rec = f.do(t, http.MethodGet, "/v1/agents/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Agent Team Summary")
}

func TestServer_AssessAndCollaborate(t *testing.T) {
	f := newFixture(t, planReply(), nil)

	rec := f.do(t, http.MethodPost, "/v1/agents/alpha-agent/assess", `{"query":"write docs"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var a domain.CapabilityAssessment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&a))
	assert.Equal(t, "alpha-agent/api/write docs", a.RecommendedApproach)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/agents/alpha-agent/assess", `{}`).Code)

	rec = f.do(t, http.MethodPost, "/v1/agents/beta-agent/collaborate",
		`{"from":"alpha-agent","taskDescription":"review","minimumConfidence":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.CollaborationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Accepted)
	assert.Equal(t, "review", resp.Reason)
	assert.Equal(t, "alpha-agent", f.collab.from)
	assert.Equal(t, "beta-agent", f.collab.to)
}

func TestServer_AuthAndScopes(t *testing.T) {
	v := tokens{
		"reader": {UserID: "u-reader", Scopes: map[string]bool{}},
		"runner": {UserID: "u-runner", Scopes: map[string]bool{"orchestrate": true}},
		"root":   {UserID: "u-root", Scopes: map[string]bool{"admin": true}},
	}
	f := newFixture(t, planReply(), v)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code, "health stays public")
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/agents", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/agents", "", "Authorization", "Bearer forged").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/agents", "", "Authorization", "Bearer reader").Code)

	body := `{"userRequest":"Ship it","userId":"spoofed"}`
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/v1/orchestrate", body, "Authorization", "Bearer reader").Code)

	rec := f.do(t, http.MethodPost, "/v1/orchestrate", body, "Authorization", "Bearer runner")
	require.Equal(t, http.StatusOK, rec.Code)
	var res domain.OrchestrationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	sess, err := f.journal.SessionHistory(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "u-runner", sess.UserID, "token identity wins over the body")

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/v1/agents/alpha-agent/block", "", "Authorization", "Bearer runner").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/v1/audit", "", "Authorization", "Bearer runner").Code)
}

func TestServer_KillSwitchStopsExecution(t *testing.T) {
	f := newFixture(t, planReply(), nil)

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/v1/agents/beta-agent/block", "").Code)
	assert.True(t, f.ks.IsBlocked("beta-agent"))

	rec := f.do(t, http.MethodGet, "/v1/agents/blocked", "")
	assert.JSONEq(t, `["beta-agent"]`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/orchestrate", `{"userRequest":"Ship it"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res domain.OrchestrationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, domain.OrchestrationPartiallyFailed, res.Status)
	assert.Equal(t, []string{"beta-agent"}, res.FailedAgents)

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/v1/agents/beta-agent/unblock", "").Code)
	assert.False(t, f.ks.IsBlocked("beta-agent"))
}

func TestServer_GrantsAndAudit(t *testing.T) {
	f := newFixture(t, planReply(), nil)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/v1/bridge/grants", `{"agent_id":"alpha-agent"}`).Code)
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPut, "/v1/bridge/grants",
		`{"agent_id":"alpha-agent","data_type":"identity","effect":"ALLOW"}`).Code)

	rec := f.do(t, http.MethodGet, "/v1/bridge/grants", "")
	var grants []domain.Grant
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&grants))
	require.Len(t, grants, 1)
	assert.Equal(t, domain.EffectAllow, grants[0].Effect)

	rec = f.do(t, http.MethodGet, "/v1/audit?action=denied", "")
	var entries []domain.AuditEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "beta-agent", entries[0].Agent)
}

func TestServer_MetricsUseRoutePatterns(t *testing.T) {
	f := newFixture(t, planReply(), nil)

	f.do(t, http.MethodGet, "/v1/sessions/abc", "")
	f.do(t, http.MethodGet, "/v1/sessions/def", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `agentmesh_http_request_duration_seconds_count{method="GET",route="/v1/sessions/{id}",status="404"} 2`)
	assert.NotContains(t, body, "/v1/sessions/abc")
}
