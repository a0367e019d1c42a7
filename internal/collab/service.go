package collab

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxAlternatives = 3

var timelines = map[string]time.Duration{
	"1 hour":  time.Hour,
	"2 hours": 2 * time.Hour,
	"4 hours": 4 * time.Hour,
	"1 day":   24 * time.Hour,
	"2 days":  2 * 24 * time.Hour,
	"3 days":  3 * 24 * time.Hour,
	"1 week":  7 * 24 * time.Hour,
}

// timelineDuration: известные формулировки, иначе сутки.
func timelineDuration(timeline string) time.Duration {
	if d, ok := timelines[timeline]; ok {
		return d
	}
	return 24 * time.Hour
}

type Assessor interface {
	Assess(ctx context.Context, agentID, query, requesting string) domain.CapabilityAssessment
}

type Catalog interface {
	Descriptor(id string) (domain.AgentDescriptor, bool)
	Descriptors(ctx context.Context) ([]domain.AgentDescriptor, error)
}

// Service решает, принимает ли агент запрос на сотрудничество.
type Service struct {
	catalog  Catalog
	assessor Assessor
	ledger   *Ledger
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(catalog Catalog, assessor Assessor, ledger *Ledger, logger *zap.Logger) *Service {
	return &Service{
		catalog:  catalog,
		assessor: assessor,
		ledger:   ledger,
		now:      time.Now,
		logger:   logger.Named("collab"),
	}
}

// Request: accepted = canPerform && confidence >= minimumConfidence.
// Ошибок не возвращает, отказ всегда оформлен ответом.
func (s *Service) Request(ctx context.Context, from, to string, req domain.CollaborationRequest) domain.CollaborationResponse {
	if _, ok := s.catalog.Descriptor(to); !ok {
		return domain.CollaborationResponse{
			Accepted:       false,
			Reason:         fmt.Sprintf("Agent %s not found in registry", to),
			Alternatives:   s.alternatives(ctx, req.TaskDescription),
			CapabilityGaps: []domain.PreparationStep{},
		}
	}

	a := s.assessor.Assess(ctx, to, req.TaskDescription, from)
	if a.CanPerform && a.ConfidenceLevel >= req.MinimumConfidence {
		s.ledger.Record(from, to, req.TaskDescription)
		eta := s.now().Add(timelineDuration(req.Timeline))

		s.logger.Info("collaboration accepted",
			zap.String("from", from), zap.String("to", to), zap.Float64("confidence", a.ConfidenceLevel))
		return domain.CollaborationResponse{
			Accepted:            true,
			Reason:              fmt.Sprintf("Agent %s accepts collaboration with %.1f%% confidence", to, a.ConfidenceLevel*100),
			EstimatedCompletion: &eta,
		}
	}

	s.logger.Info("collaboration declined",
		zap.String("from", from), zap.String("to", to), zap.Float64("confidence", a.ConfidenceLevel))
	return domain.CollaborationResponse{
		Accepted:       false,
		Reason:         fmt.Sprintf("Agent %s cannot handle request with required confidence. Current: %.1f%%", to, a.ConfidenceLevel*100),
		Alternatives:   s.alternatives(ctx, req.TaskDescription),
		CapabilityGaps: a.RequiredPreparation,
	}
}

// alternatives: до трех способных агентов, по убыванию уверенности.
func (s *Service) alternatives(ctx context.Context, task string) []domain.AgentDescriptor {
	descs, err := s.catalog.Descriptors(ctx)
	if err != nil {
		s.logger.Warn("alternative collaborators unavailable", zap.Error(err))
		return []domain.AgentDescriptor{}
	}

	scores := make([]float64, len(descs))
	capable := make([]bool, len(descs))
	g := new(errgroup.Group)
	g.SetLimit(8)
	for i, d := range descs {
		g.Go(func() error {
			a := s.assessor.Assess(ctx, d.ID, task, "system")
			scores[i], capable[i] = a.ConfidenceLevel, a.CanPerform
			return nil
		})
	}
	_ = g.Wait()

	idx := make([]int, 0, len(descs))
	for i := range descs {
		if capable[i] {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	out := make([]domain.AgentDescriptor, 0, maxAlternatives)
	for _, i := range idx {
		if len(out) == maxAlternatives {
			break
		}
		out = append(out, descs[i])
	}
	return out
}
