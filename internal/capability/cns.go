package capability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

const (
	skillsFile    = "skills.json"
	learningsFile = "learnings.json"
	gapsFile      = "capability-gaps.json"

	readinessWindow   = 30 * 24 * time.Hour
	readinessPerEntry = 0.2
	fallbackLevel     = 7
)

// cnsPath: <cnsDir>/<agentId>/cns
func cnsPath(root, agentID string) string {
	return filepath.Join(root, agentID, "cns")
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// loadDurable собирает анализ из артефактов обучения агента.
// Без skills.json durable-данных нет; learnings и gaps опциональны.
func loadDurable(root, agentID string, history []domain.CollaborationEntry, now time.Time) (domain.CapabilityAnalysis, error) {
	dir := cnsPath(root, agentID)

	var skills []domain.Skill
	if err := readJSON(filepath.Join(dir, skillsFile), &skills); err != nil {
		return domain.CapabilityAnalysis{}, fmt.Errorf("cns skills for %s: %w", agentID, err)
	}

	var learnings []domain.Learning
	_ = readJSON(filepath.Join(dir, learningsFile), &learnings)

	var gaps []domain.CapabilityGap
	_ = readJSON(filepath.Join(dir, gapsFile), &gaps)

	return domain.CapabilityAnalysis{
		AgentID:                 agentID,
		Source:                  domain.AnalysisDurable,
		CurrentCapabilities:     nonNil(skills),
		RecentLearnings:         nonNil(learnings),
		KnowledgeGaps:           nonNil(gaps),
		ConfidenceLevels:        confidence(skills),
		RecommendedEnhancements: improvements(gaps),
		CollaborationReadiness:  readiness(history, now),
	}, nil
}

// synthesize строит анализ из объявленных abilities: каждая способность становится навыком уровня 7.
func synthesize(desc domain.AgentDescriptor) domain.CapabilityAnalysis {
	skills := make([]domain.Skill, 0, len(desc.Abilities))
	for _, ability := range desc.Abilities {
		skills = append(skills, domain.Skill{Name: ability, Level: fallbackLevel, Category: "core"})
	}
	return domain.CapabilityAnalysis{
		AgentID:                 desc.ID,
		Source:                  domain.AnalysisFallback,
		CurrentCapabilities:     skills,
		RecentLearnings:         []domain.Learning{},
		KnowledgeGaps:           []domain.CapabilityGap{},
		ConfidenceLevels:        confidence(skills),
		RecommendedEnhancements: []domain.Enhancement{},
		CollaborationReadiness: domain.CollaborationReadiness{
			Score:       0.8,
			Strengths:   append([]string{}, desc.Abilities...),
			Limitations: []string{},
		},
	}
}

func confidence(skills []domain.Skill) map[string]float64 {
	out := make(map[string]float64, len(skills))
	for _, s := range skills {
		out[s.Name] = s.Level / 10
	}
	return out
}

func improvements(gaps []domain.CapabilityGap) []domain.Enhancement {
	out := make([]domain.Enhancement, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, domain.Enhancement{
			Area:       g.Area,
			Suggestion: fmt.Sprintf("Enhance %s capability through targeted learning", g.Area),
			Priority:   g.Severity,
		})
	}
	return out
}

func readiness(history []domain.CollaborationEntry, now time.Time) domain.CollaborationReadiness {
	cutoff := now.Add(-readinessWindow)
	recent := 0
	for _, e := range history {
		if e.Timestamp.After(cutoff) {
			recent++
		}
	}
	score := float64(recent) * readinessPerEntry
	if score > 1 {
		score = 1
	}
	return domain.CollaborationReadiness{
		Score:       score,
		Strengths:   []string{"Clear communication", "Reliable delivery"},
		Limitations: []string{"Limited cross-domain knowledge"},
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
