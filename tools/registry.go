package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/bt-bridge/gemini-live/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// Registry maps tool names to tools. Declarations keep registration order; re-registering a name
// replaces the tool in place.
type Registry struct {
	logger shared.LoggerAdapter

	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

func NewRegistry(logger shared.LoggerAdapter) *Registry {
	if logger == nil {
		logger = shared.NewNopLogger()
	}
	return &Registry{logger: logger, tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return shared.ErrEmptyToolName
	}
	if t.Handler == nil {
		return fmt.Errorf("%w: %s", shared.ErrNoToolHandler, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Declaration)
	}
	return out
}

// Config is the setup frame's tools value: empty when nothing is registered.
func (r *Registry) Config() []DeclarationSet {
	decls := r.Declarations()
	if len(decls) == 0 {
		return []DeclarationSet{}
	}
	return []DeclarationSet{{FunctionDeclarations: decls}}
}

// Execute runs one call. It never fails: unknown tools, handler errors and panics become an
// {"error": ...} response.
func (r *Registry) Execute(ctx context.Context, call FunctionCall) FunctionResponse {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()

	resp := FunctionResponse{ID: call.ID, Name: call.Name}
	if !ok {
		r.logger.Warn("unknown tool called", zap.String("tool", call.Name), zap.String("id", call.ID))
		resp.Response = errorResult("Unknown tool: " + call.Name)
		return resp
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	result, err := r.invoke(ctx, t, args)
	if err != nil {
		r.logger.Error("tool execution failed", &shared.ToolExecutionError{Tool: call.Name, Err: err}, zap.String("id", call.ID))
		resp.Response = errorResult(err.Error())
		return resp
	}
	if result == nil {
		result = Result{}
	}
	r.logger.Debug("tool executed", zap.String("tool", call.Name), zap.String("id", call.ID))
	resp.Response = result
	return resp
}

func (r *Registry) invoke(ctx context.Context, t Tool, args map[string]any) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("%v", rec)
		}
	}()
	return t.Handler(ctx, args)
}

// ExecuteAll runs the calls concurrently and returns the responses in input order.
func (r *Registry) ExecuteAll(ctx context.Context, calls []FunctionCall) ResponseMessage {
	responses := make([]FunctionResponse, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			responses[i] = r.Execute(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return ResponseMessage{ToolResponse: ToolResponse{FunctionResponses: responses}}
}
