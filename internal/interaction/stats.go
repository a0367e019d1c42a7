package interaction

import (
	"context"
	"sort"
	"time"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

// Stats: сводка за период. Нулевые границы: последние 30 дней.
func (s *Service) Stats(ctx context.Context, from, to time.Time) domain.InteractionStats {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-statsWindow)
	}

	var (
		sessions     []*domain.ChatSession
		interactions []*domain.Interaction
	)
	for _, sess := range s.sessions(ctx) {
		if sess.StartTime.Before(from) || sess.StartTime.After(to) {
			continue
		}
		sessions = append(sessions, sess)
		interactions = append(interactions, sess.Interactions...)
	}

	type agentKey struct{ id, name string }
	type usage struct{ count, successes int }
	agents := make(map[agentKey]*usage)
	var agentOrder []agentKey

	type taskStat struct {
		count        int
		complexities []string
	}
	tasks := make(map[string]*taskStat)
	var taskOrder []string

	successes := 0
	for _, in := range interactions {
		k := agentKey{in.AgentID, in.AgentName}
		u, ok := agents[k]
		if !ok {
			u = &usage{}
			agents[k] = u
			agentOrder = append(agentOrder, k)
		}
		u.count++
		if in.Success {
			u.successes++
			successes++
		}

		cat := categorizeTask(in.TaskAssigned)
		ts, ok := tasks[cat]
		if !ok {
			ts = &taskStat{}
			tasks[cat] = ts
			taskOrder = append(taskOrder, cat)
		}
		ts.count++
		ts.complexities = append(ts.complexities, in.TaskComplexity)
	}

	out := domain.InteractionStats{
		PeriodStart:       from,
		PeriodEnd:         to,
		TotalSessions:     len(sessions),
		TotalInteractions: len(interactions),
		TotalAgentsUsed:   len(agents),
		MostUsedAgents:    []domain.AgentUsage{},
		CommonTaskTypes:   []domain.TaskUsage{},
	}
	if len(sessions) > 0 {
		var total int64
		for _, sess := range sessions {
			if sess.EndTime != nil {
				total += sess.EndTime.Sub(sess.StartTime).Milliseconds()
			}
		}
		out.AverageSessionDurationMs = float64(total) / float64(len(sessions))
		out.AverageInteractionsPerSession = float64(len(interactions)) / float64(len(sessions))
	}
	if len(interactions) > 0 {
		out.SuccessRate = float64(successes) / float64(len(interactions)) * 100
	}

	for _, k := range agentOrder {
		u := agents[k]
		name := k.name
		if name == "" {
			name = k.id
		}
		out.MostUsedAgents = append(out.MostUsedAgents, domain.AgentUsage{
			AgentID:     k.id,
			AgentName:   name,
			UsageCount:  u.count,
			SuccessRate: float64(u.successes) / float64(u.count) * 100,
		})
	}
	sort.SliceStable(out.MostUsedAgents, func(i, j int) bool {
		return out.MostUsedAgents[i].UsageCount > out.MostUsedAgents[j].UsageCount
	})
	if len(out.MostUsedAgents) > topAgents {
		out.MostUsedAgents = out.MostUsedAgents[:topAgents]
	}

	for _, cat := range taskOrder {
		ts := tasks[cat]
		out.CommonTaskTypes = append(out.CommonTaskTypes, domain.TaskUsage{
			TaskType:          cat,
			Frequency:         ts.count,
			AverageComplexity: averageComplexity(ts.complexities),
		})
	}
	sort.SliceStable(out.CommonTaskTypes, func(i, j int) bool {
		return out.CommonTaskTypes[i].Frequency > out.CommonTaskTypes[j].Frequency
	})
	if len(out.CommonTaskTypes) > topAgents {
		out.CommonTaskTypes = out.CommonTaskTypes[:topAgents]
	}
	return out
}
