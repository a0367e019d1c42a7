package capability

import (
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

const (
	defaultNumCounters = 1e5
	defaultMaxCost     = 1 << 24
	defaultBufferItems = 64
	defaultAssessTTL   = 2 * time.Minute
)

// AssessmentCache хранит оценки по ключу (agentId, xxhash(query)).
type AssessmentCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewAssessmentCache(ttl time.Duration) (*AssessmentCache, error) {
	if ttl <= 0 {
		ttl = defaultAssessTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &AssessmentCache{cache: c, ttl: ttl}, nil
}

func assessmentKey(agentID, query string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(agentID)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(query)
	return d.Sum64()
}

func (c *AssessmentCache) Get(agentID, query string) (domain.CapabilityAssessment, bool) {
	v, ok := c.cache.Get(assessmentKey(agentID, query))
	if !ok {
		return domain.CapabilityAssessment{}, false
	}
	a, ok := v.(domain.CapabilityAssessment)
	return a, ok
}

func (c *AssessmentCache) Set(agentID, query string, a domain.CapabilityAssessment) {
	cost := int64(len(a.RecommendedApproach) + 256)
	c.cache.SetWithTTL(assessmentKey(agentID, query), a, cost, c.ttl)
	// Запись в ristretto асинхронная: ждем, чтобы следующий Get ее увидел
	c.cache.Wait()
}

func (c *AssessmentCache) Clear() {
	c.cache.Clear()
}

func (c *AssessmentCache) Close() {
	c.cache.Close()
}
