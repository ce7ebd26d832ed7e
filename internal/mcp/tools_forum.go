package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/xaxixak/oracle-v2/internal/forum"
	"github.com/xaxixak/oracle-v2/internal/store"
)

// ===== FORUM TOOLS =====

type threadInput struct {
	Message  string `json:"message" jsonschema:"required,The message to post"`
	ThreadID int64  `json:"threadId,omitempty" jsonschema:"Existing thread id; omit to open a new thread"`
	Title    string `json:"title,omitempty" jsonschema:"Title for a new thread (default: first 50 characters of the message)"`
	Role     string `json:"role,omitempty" jsonschema:"Poster role (default: human)"`
	Model    string `json:"model,omitempty" jsonschema:"Model name when the poster is an agent"`
	Project  string `json:"project,omitempty" jsonschema:"Project scope"`
}

type threadsInput struct {
	Status string `json:"status,omitempty" jsonschema:"Filter: active pending answered closed"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum threads (default: 20)"`
	Offset int    `json:"offset,omitempty" jsonschema:"Pagination offset"`
}

type threadsOutput struct {
	Threads []store.Thread `json:"threads" jsonschema:"Threads ordered by latest activity"`
}

type threadReadInput struct {
	ThreadID int64 `json:"threadId" jsonschema:"required,Thread id to read"`
}

type threadReadOutput struct {
	Thread   *store.Thread   `json:"thread"`
	Messages []store.Message `json:"messages" jsonschema:"Messages in chronological order"`
}

type threadUpdateInput struct {
	ThreadID int64  `json:"threadId" jsonschema:"required,Thread id"`
	Status   string `json:"status" jsonschema:"required,New status: active pending answered closed"`
}

type threadUpdateOutput struct {
	Thread *store.Thread `json:"thread"`
}

func (s *Server) registerForumTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_thread",
		Description: "Post a message to the forum. Opens a thread when none is given; non-oracle posts receive a consultation reply.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args threadInput) (*mcp.CallToolResult, *forum.MessageResponse, error) {
		resp, err := s.forumSvc.HandleMessage(ctx, forum.MessageRequest{
			Message:  args.Message,
			ThreadID: args.ThreadID,
			Title:    args.Title,
			Role:     args.Role,
			Model:    args.Model,
			Project:  args.Project,
		})
		observe("oracle_thread", err)
		return nil, resp, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_threads",
		Description: "List forum threads, optionally filtered by status.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args threadsInput) (*mcp.CallToolResult, threadsOutput, error) {
		threads, err := s.forumSvc.Threads(store.ThreadStatus(args.Status), args.Limit, args.Offset)
		observe("oracle_threads", err)
		if err != nil {
			return nil, threadsOutput{}, err
		}
		return nil, threadsOutput{Threads: threads}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_thread_read",
		Description: "Read one thread with all its messages.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args threadReadInput) (*mcp.CallToolResult, threadReadOutput, error) {
		thread, msgs, err := s.forumSvc.Thread(args.ThreadID)
		observe("oracle_thread_read", err)
		if err != nil {
			return nil, threadReadOutput{}, err
		}
		return nil, threadReadOutput{Thread: thread, Messages: msgs}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_thread_update",
		Description: "Move a thread to a new status. Every transition is legal; statuses are dashboard filter tags.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args threadUpdateInput) (*mcp.CallToolResult, threadUpdateOutput, error) {
		thread, err := s.forumSvc.SetStatus(args.ThreadID, store.ThreadStatus(args.Status))
		observe("oracle_thread_update", err)
		if err != nil {
			return nil, threadUpdateOutput{}, err
		}
		return nil, threadUpdateOutput{Thread: thread}, nil
	})
}
