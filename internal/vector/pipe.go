package vector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// rpcRequest and rpcResponse are newline-delimited JSON-RPC 2.0 frames.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// PipeConfig configures the child-process backend.
type PipeConfig struct {
	// Command and Args launch the embedding process.
	Command string
	Args    []string

	// QueryTimeout bounds one similarity query. After it fires the call is
	// abandoned and the pipe is recycled.
	QueryTimeout time.Duration
}

// PipeBackend speaks JSON-RPC over the stdin/stdout of an embedding child
// process. The child may be single-request-at-a-time, so all calls are
// serialized under one mutex. Startup is lazy: the child is spawned on the
// first call, which lets the tool server pre-warm it before stdio handover.
type PipeBackend struct {
	cfg    PipeConfig
	logger *zap.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	nextID int64
}

// NewPipeBackend validates config; the child starts on first use. An empty
// command is allowed and surfaces as ErrUnavailable on the first call, so a
// daemon without an embedding process still serves keyword-only retrieval.
func NewPipeBackend(cfg PipeConfig, logger *zap.Logger) (*PipeBackend, error) {
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipeBackend{cfg: cfg, logger: logger}, nil
}

// start spawns the child. Caller holds mu.
func (b *PipeBackend) start() error {
	if b.cmd != nil {
		return nil
	}
	if b.cfg.Command == "" {
		return fmt.Errorf("%w: no embedding command configured", ErrUnavailable)
	}
	cmd := exec.Command(b.cfg.Command, b.cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s: %v", ErrUnavailable, b.cfg.Command, err)
	}
	b.cmd = cmd
	b.stdin = stdin
	b.stdout = bufio.NewReader(stdout)
	b.logger.Info("vector child started",
		zap.String("command", b.cfg.Command), zap.Int("pid", cmd.Process.Pid))
	return nil
}

// recycle kills the child so the next call respawns it. Caller holds mu.
// Needed after a timeout: an abandoned request leaves the pipe desynced.
func (b *PipeBackend) recycle() {
	if b.cmd == nil {
		return
	}
	b.stdin.Close()
	b.cmd.Process.Kill()
	b.cmd.Wait()
	b.cmd = nil
	b.stdin = nil
	b.stdout = nil
}

// call performs one serialized request/response exchange.
func (b *PipeBackend) call(ctx context.Context, method string, params, result any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.start(); err != nil {
		return err
	}

	b.nextID++
	req := rpcRequest{JSONRPC: "2.0", ID: b.nextID, Method: method, Params: params}
	frame, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}
	frame = append(frame, '\n')
	if _, err := b.stdin.Write(frame); err != nil {
		b.recycle()
		return fmt.Errorf("%w: writing %s: %v", ErrUnavailable, method, err)
	}

	type readResult struct {
		line []byte
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		line, err := b.stdout.ReadBytes('\n')
		ch <- readResult{line, err}
	}()

	select {
	case <-ctx.Done():
		b.recycle()
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, ctx.Err())
	case rr := <-ch:
		if rr.err != nil {
			b.recycle()
			return fmt.Errorf("%w: reading %s response: %v", ErrUnavailable, method, rr.err)
		}
		var resp rpcResponse
		if err := json.Unmarshal(rr.line, &resp); err != nil {
			b.recycle()
			return fmt.Errorf("%w: decoding %s response: %v", ErrUnavailable, method, err)
		}
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decoding %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (b *PipeBackend) EnsureCollection(ctx context.Context, name string) error {
	return b.call(ctx, "ensure_collection", map[string]string{"name": name}, nil)
}

func (b *PipeBackend) Upsert(ctx context.Context, name string, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	params := map[string]any{"name": name, "items": items}
	return b.call(ctx, "upsert", params, nil)
}

func (b *PipeBackend) Query(ctx context.Context, name, text string, k int, where map[string]string) (*QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.QueryTimeout)
	defer cancel()

	params := map[string]any{"name": name, "text": text, "k": k}
	if len(where) > 0 {
		params["where"] = where
	}
	var out QueryResult
	if err := b.call(ctx, "query", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *PipeBackend) CollectionStats(ctx context.Context, name string) (*Stats, error) {
	var out Stats
	if err := b.call(ctx, "stats", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *PipeBackend) DeleteCollection(ctx context.Context, name string) error {
	return b.call(ctx, "delete_collection", map[string]string{"name": name}, nil)
}

// Close terminates the child process.
func (b *PipeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recycle()
	return nil
}
