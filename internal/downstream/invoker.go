// Package downstream 负责把工作流任务投递给目标智能体的执行端点。
// 对于内置的业务场景(欺诈评分、诊断、升级判定)工作流会在本地计算,
// 其余动作通过 HTTP 转发给目标智能体。
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	xerrors "MCPF-Flow/internal/errors"
)

// Invocation 描述一次下游调用。
type Invocation struct {
	Endpoint string         `json:"-"`
	Action   string         `json:"action"`
	Payload  map[string]any `json:"payload"`
}

// Invoker 把任务投递给目标智能体并取回执行结果。
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (map[string]any, error)
}

const defaultTimeout = 30 * time.Second

// Config 描述 HTTP 调用器的行为参数。
type Config struct {
	Timeout time.Duration
}

// HTTPInvoker 将调用以 JSON 形式 POST 到目标智能体的端点。
type HTTPInvoker struct {
	httpCli *http.Client
}

// NewHTTPInvoker returns an invoker that dispatches over plain HTTP.
func NewHTTPInvoker(cfg Config) *HTTPInvoker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPInvoker{httpCli: &http.Client{Timeout: timeout}}
}

// Invoke 向目标端点投递任务并解析 JSON 响应。
func (h *HTTPInvoker) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	endpoint := strings.TrimSpace(inv.Endpoint)
	if endpoint == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "下游端点不能为空")
	}

	payload, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("编码下游请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构造下游请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求下游智能体失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("读取下游响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下游智能体返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	result := make(map[string]any)
	if len(bytes.TrimSpace(body)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("解析下游响应失败: %w", err)
	}
	return result, nil
}

// StubInvoker 返回预置结果, 用于测试与演示。
type StubInvoker struct {
	mu      sync.RWMutex
	results map[string]map[string]any
	err     error
	calls   []Invocation
}

// NewStubInvoker returns an empty stub.
func NewStubInvoker() *StubInvoker {
	return &StubInvoker{results: make(map[string]map[string]any)}
}

// SetResult 为指定动作登记固定结果。
func (s *StubInvoker) SetResult(action string, result map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[action] = result
}

// Fail 让后续所有调用返回给定错误。
func (s *StubInvoker) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls 返回已记录的调用列表。
func (s *StubInvoker) Calls() []Invocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Invocation, len(s.calls))
	copy(out, s.calls)
	return out
}

// Invoke 记录调用并返回预置结果。
func (s *StubInvoker) Invoke(_ context.Context, inv Invocation) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, inv)
	if s.err != nil {
		return nil, s.err
	}
	if result, ok := s.results[inv.Action]; ok {
		return result, nil
	}
	return map[string]any{}, nil
}

var (
	_ Invoker = (*HTTPInvoker)(nil)
	_ Invoker = (*StubInvoker)(nil)
)
