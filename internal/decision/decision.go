// Package decision tracks decision records through an explicit lifecycle.
package decision

import (
	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/store"
)

// transitions is the legal-edge set. closed is terminal.
var transitions = map[store.DecisionStatus][]store.DecisionStatus{
	store.DecisionPending:     {store.DecisionParked, store.DecisionResearching, store.DecisionDecided, store.DecisionClosed},
	store.DecisionParked:      {store.DecisionPending, store.DecisionResearching, store.DecisionDecided, store.DecisionClosed},
	store.DecisionResearching: {store.DecisionPending, store.DecisionParked, store.DecisionDecided, store.DecisionClosed},
	store.DecisionDecided:     {store.DecisionImplemented, store.DecisionClosed},
	store.DecisionImplemented: {store.DecisionClosed},
	store.DecisionClosed:      {},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to store.DecisionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Service manages decisions.
type Service struct {
	store  *store.Store
	logger *zap.Logger
}

// New creates a decision Service.
func New(st *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

// CreateRequest opens a new decision.
type CreateRequest struct {
	Title   string
	Context string
	Options []string
	Project string
	Tags    []string
}

// Create inserts a decision in pending state.
func (s *Service) Create(req CreateRequest) (*store.Decision, error) {
	if req.Title == "" {
		return nil, oracle.Invalidf("title is required")
	}
	id, err := s.store.InsertDecision(&store.Decision{
		Title:   req.Title,
		Status:  store.DecisionPending,
		Context: req.Context,
		Options: req.Options,
		Project: req.Project,
		Tags:    req.Tags,
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetDecision(id)
}

// Get returns one decision.
func (s *Service) Get(id int64) (*store.Decision, error) {
	return s.store.GetDecision(id)
}

// List filters decisions by status and project.
func (s *Service) List(status store.DecisionStatus, project string, limit, offset int) ([]store.Decision, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListDecisions(status, project, limit, offset)
}

// Update edits a decision's free-form fields; status moves only through
// Transition.
func (s *Service) Update(id int64, u store.DecisionUpdate) (*store.Decision, error) {
	if _, err := s.store.GetDecision(id); err != nil {
		return nil, err
	}
	if err := s.store.UpdateDecision(id, u); err != nil {
		return nil, err
	}
	return s.store.GetDecision(id)
}

// Transition moves a decision along a legal edge. Entering decided stamps
// decided_at and decided_by.
func (s *Service) Transition(id int64, to store.DecisionStatus, decidedBy string) (*store.Decision, error) {
	d, err := s.store.GetDecision(id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(d.Status, to) {
		return nil, oracle.Conflictf("cannot transition decision %d from %s to %s", id, d.Status, to)
	}
	if err := s.store.SetDecisionStatus(id, to, decidedBy); err != nil {
		return nil, err
	}
	s.logger.Info("decision transitioned",
		zap.Int64("id", id), zap.String("from", string(d.Status)), zap.String("to", string(to)))
	return s.store.GetDecision(id)
}
