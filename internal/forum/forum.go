// Package forum is the asynchronous question channel: humans (or agents)
// post messages into threads and the oracle answers with a consultation.
package forum

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/consult"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/store"
)

const titleMax = 50

// Service handles thread traffic.
type Service struct {
	store     *store.Store
	consulter *consult.Service
	logger    *zap.Logger
}

// New creates a forum Service.
func New(st *store.Store, consulter *consult.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, consulter: consulter, logger: logger}
}

// MessageRequest is one incoming post. ThreadID zero means a new thread.
type MessageRequest struct {
	Message  string
	ThreadID int64
	Title    string
	Role     string
	Model    string
	Project  string
}

// MessageResponse carries the stored message and, for non-oracle posts, the
// oracle's reply.
type MessageResponse struct {
	Thread  *store.Thread  `json:"thread"`
	Message *store.Message `json:"message"`
	Reply   *store.Message `json:"reply,omitempty"`
}

// HandleMessage appends a message, creating its thread if needed, and lets
// the oracle respond to anything not posted by the oracle itself.
func (s *Service) HandleMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, oracle.Invalidf("message is required")
	}
	role := req.Role
	if role == "" {
		role = "human"
	}

	threadID := req.ThreadID
	if threadID == 0 {
		title := req.Title
		if title == "" {
			title = truncate(req.Message, titleMax)
		}
		id, err := s.store.InsertThread(&store.Thread{
			Title:     title,
			Status:    store.ThreadActive,
			Project:   req.Project,
			CreatedBy: role,
		})
		if err != nil {
			return nil, err
		}
		threadID = id
	} else if _, err := s.store.GetThread(threadID); err != nil {
		return nil, err
	}

	msg := &store.Message{
		ThreadID: threadID,
		Role:     role,
		Content:  req.Message,
		Author:   req.Model,
	}
	msgID, err := s.store.InsertMessage(msg)
	if err != nil {
		return nil, err
	}
	msg.ID = msgID

	resp := &MessageResponse{Message: msg}
	if role != "oracle" {
		reply, err := s.reply(ctx, threadID, req)
		if err != nil {
			// A failed consultation leaves the question standing; the
			// thread stays answerable later.
			s.logger.Warn("oracle reply failed", zap.Int64("thread_id", threadID), zap.Error(err))
		} else {
			resp.Reply = reply
		}
	}

	if err := s.store.TouchThread(threadID); err != nil {
		s.logger.Debug("touching thread failed", zap.Error(err))
	}
	thread, err := s.store.GetThread(threadID)
	if err != nil {
		return nil, err
	}
	resp.Thread = thread
	return resp, nil
}

// reply consults over the thread's recent context and stores the oracle's
// answer.
func (s *Service) reply(ctx context.Context, threadID int64, req MessageRequest) (*store.Message, error) {
	var project *string
	if req.Project != "" {
		project = &req.Project
	}
	consultation, err := s.consulter.Consult(ctx, consult.Request{
		Decision: req.Message,
		Context:  s.recentContext(threadID, req.Message),
		Project:  project,
	})
	if err != nil {
		return nil, err
	}

	principles := len(consultation.Principles)
	patterns := len(consultation.Patterns)
	reply := &store.Message{
		ThreadID:        threadID,
		Role:            "oracle",
		Content:         consultation.Guidance,
		Author:          "oracle",
		PrinciplesFound: &principles,
		PatternsFound:   &patterns,
		SearchQuery:     req.Message,
	}
	id, err := s.store.InsertMessage(reply)
	if err != nil {
		return nil, err
	}
	reply.ID = id
	return reply, nil
}

// recentContext concatenates the last few messages before the current one
// so follow-up questions consult with their thread history.
func (s *Service) recentContext(threadID int64, current string) string {
	msgs, err := s.store.ListMessages(threadID)
	if err != nil {
		return ""
	}
	var parts []string
	for _, m := range msgs {
		if m.Content == current || m.Role == "oracle" {
			continue
		}
		parts = append(parts, m.Content)
	}
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	return strings.Join(parts, " ")
}

// CreateThread opens a thread without an initial message.
func (s *Service) CreateThread(title, project, createdBy string) (*store.Thread, error) {
	if strings.TrimSpace(title) == "" {
		return nil, oracle.Invalidf("title is required")
	}
	id, err := s.store.InsertThread(&store.Thread{
		Title:     title,
		Status:    store.ThreadActive,
		Project:   project,
		CreatedBy: createdBy,
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetThread(id)
}

// Thread returns one thread with all its messages.
func (s *Service) Thread(id int64) (*store.Thread, []store.Message, error) {
	thread, err := s.store.GetThread(id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.store.ListMessages(id)
	if err != nil {
		return nil, nil, err
	}
	return thread, msgs, nil
}

// Threads lists threads filtered by status.
func (s *Service) Threads(status store.ThreadStatus, limit, offset int) ([]store.Thread, error) {
	if status != "" && !store.ValidThreadStatus(status) {
		return nil, oracle.Invalidf("status %q is not one of active, pending, answered, closed", status)
	}
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListThreads(status, limit, offset)
}

// SetStatus moves a thread to any status; every transition is legal.
func (s *Service) SetStatus(id int64, status store.ThreadStatus) (*store.Thread, error) {
	if !store.ValidThreadStatus(status) {
		return nil, oracle.Invalidf("status %q is not one of active, pending, answered, closed", status)
	}
	if err := s.store.SetThreadStatus(id, status); err != nil {
		return nil, err
	}
	return s.store.GetThread(id)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
