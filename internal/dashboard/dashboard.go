// Package dashboard aggregates telemetry into the read-only views the web
// UI renders. Nothing here writes.
package dashboard

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/store"
)

const topConcepts = 10

// Service serves dashboard reads.
type Service struct {
	store  *store.Store
	logger *zap.Logger

	now func() time.Time
}

// New creates a dashboard Service.
func New(st *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger, now: time.Now}
}

// ConceptCount is one concept with its tally.
type ConceptCount struct {
	Concept string `json:"concept"`
	Count   int    `json:"count"`
}

// Summary is the dashboard headline view.
type Summary struct {
	TotalDocuments int                `json:"total_documents"`
	ByType         map[string]int     `json:"by_type"`
	TotalConcepts  int                `json:"total_concepts"`
	TopConcepts    []ConceptCount     `json:"top_concepts"`
	Recent         store.RecentCounts `json:"recent"`
	FTSStatus      string             `json:"fts_status"`
	LastIndexed    *time.Time         `json:"last_indexed,omitempty"`
}

// Summary computes the headline aggregates: document totals, concept
// distribution, and seven-day activity.
func (s *Service) Summary() (*Summary, error) {
	total, byType, err := s.store.CountDocuments()
	if err != nil {
		return nil, err
	}
	counts, err := s.store.ConceptCounts("", 0)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.CountRecent(s.now().AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalDocuments: total,
		ByType:         byType,
		TotalConcepts:  len(counts),
		TopConcepts:    topN(counts, topConcepts),
		Recent:         recent,
		FTSStatus:      s.ftsStatus(),
	}
	if last, err := s.store.LastIndexedAt(); err == nil && !last.IsZero() {
		summary.LastIndexed = &last
	}
	return summary, nil
}

func (s *Service) ftsStatus() string {
	status, err := s.store.GetIndexingStatus()
	switch {
	case err != nil:
		return "unknown"
	case status.IsIndexing:
		return "indexing"
	case status.Error != "":
		return "error"
	default:
		return "ok"
	}
}

// Activity returns the recent rows per log table, capped at 20 each.
func (s *Service) Activity(days int) (map[string][]store.ActivityEntry, error) {
	if days <= 0 {
		days = 7
	}
	return s.store.RecentActivity(s.now().AddDate(0, 0, -days))
}

// Growth returns per-day series for a named period.
func (s *Service) Growth(period string) ([]store.GrowthPoint, error) {
	days, ok := map[string]int{"week": 7, "month": 30, "quarter": 90}[period]
	if !ok {
		return nil, oracle.Invalidf("period %q is not one of week, month, quarter", period)
	}
	return s.store.Growth(days)
}

// SessionStats counts activity since a point in time.
func (s *Service) SessionStats(since time.Time) (store.RecentCounts, error) {
	return s.store.CountRecent(since)
}

func topN(counts map[string]int, n int) []ConceptCount {
	out := make([]ConceptCount, 0, len(counts))
	for c, k := range counts {
		out = append(out, ConceptCount{Concept: c, Count: k})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Concept < out[j].Concept
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
