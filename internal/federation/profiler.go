package federation

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QueryProfile represents a single federated query execution.
type QueryProfile struct {
	Query     string        `json:"query"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Rows      int           `json:"rows"`
	Changes   int64         `json:"changes,omitempty"`
	Attached  []string      `json:"attached,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Stats summarizes the recorded profiles.
type Stats struct {
	TotalQueries int    `json:"total_queries"`
	SlowQueries  int    `json:"slow_queries"`
	Failed       int    `json:"failed"`
	AvgDuration  string `json:"avg_duration,omitempty"`
	MinDuration  string `json:"min_duration,omitempty"`
	MaxDuration  string `json:"max_duration,omitempty"`
	Threshold    string `json:"threshold"`
}

// Profiler keeps the most recent federated queries in a bounded buffer and
// logs the slow ones.
type Profiler struct {
	log           *zap.Logger
	slowThreshold time.Duration
	maxSize       int

	mu      sync.RWMutex
	queries []QueryProfile
}

// NewProfiler returns a profiler keeping at most size profiles.
func NewProfiler(log *zap.Logger, slowThreshold time.Duration, size int) *Profiler {
	if size <= 0 {
		size = 1000
	}
	return &Profiler{
		log:           log,
		slowThreshold: slowThreshold,
		maxSize:       size,
		queries:       make([]QueryProfile, 0, min(size, 64)),
	}
}

// Record adds p, evicting the oldest profile when full.
func (p *Profiler) Record(qp QueryProfile) {
	qp.Query = strings.Join(strings.Fields(qp.Query), " ")

	p.mu.Lock()
	if len(p.queries) >= p.maxSize {
		p.queries = p.queries[1:]
	}
	p.queries = append(p.queries, qp)
	p.mu.Unlock()

	if p.slowThreshold > 0 && qp.Duration >= p.slowThreshold {
		p.log.Warn("slow federated query",
			zap.String("sql", qp.Query),
			zap.Duration("duration", qp.Duration),
			zap.Strings("attached", qp.Attached))
	}
}

// Slow returns the recorded queries at or above the threshold.
func (p *Profiler) Slow() []QueryProfile {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var slow []QueryProfile
	for _, q := range p.queries {
		if p.slowThreshold > 0 && q.Duration >= p.slowThreshold {
			slow = append(slow, q)
		}
	}
	return slow
}

// All returns a copy of every recorded profile, oldest first.
func (p *Profiler) All() []QueryProfile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]QueryProfile(nil), p.queries...)
}

// Stats summarizes the recorded profiles.
func (p *Profiler) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Stats{TotalQueries: len(p.queries), Threshold: p.slowThreshold.String()}
	if len(p.queries) == 0 {
		return st
	}

	var total time.Duration
	minDuration, maxDuration := p.queries[0].Duration, p.queries[0].Duration
	for _, q := range p.queries {
		total += q.Duration
		if p.slowThreshold > 0 && q.Duration >= p.slowThreshold {
			st.SlowQueries++
		}
		if q.Error != "" {
			st.Failed++
		}
		minDuration = min(minDuration, q.Duration)
		maxDuration = max(maxDuration, q.Duration)
	}
	st.AvgDuration = (total / time.Duration(len(p.queries))).String()
	st.MinDuration = minDuration.String()
	st.MaxDuration = maxDuration.String()
	return st
}

// Reset clears all recorded queries.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = p.queries[:0]
}
