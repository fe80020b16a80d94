package a2a

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
	"MCPF-Flow/internal/trust"
)

// Checker 查询委托方是否被授权让受托方执行某个动作。
type Checker interface {
	CheckDelegation(ctx context.Context, fromDID, toDID, action string) (trust.DelegationDecision, error)
}

const defaultTimeout = 10 * time.Second

// Config 描述委托检查服务的连接参数。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client 通过 HTTP 访问 A2A 委托检查服务。
type Client struct {
	baseURL string
	httpCli *http.Client
}

// NewClient constructs a delegation checker backed by the remote A2A service.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置委托检查服务地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpCli: &http.Client{Timeout: timeout},
	}, nil
}

type checkRequest struct {
	FromDID string `json:"from_did"`
	ToDID   string `json:"to_did"`
	Action  string `json:"action"`
}

type checkResponse struct {
	Allowed bool                    `json:"allowed"`
	Reason  string                  `json:"reason,omitempty"`
	Policy  *trust.DelegationPolicy `json:"policy,omitempty"`
}

// CheckDelegation 调用远端服务判定委托关系。
func (c *Client) CheckDelegation(ctx context.Context, fromDID, toDID, action string) (trust.DelegationDecision, error) {
	fromDID = strings.TrimSpace(fromDID)
	toDID = strings.TrimSpace(toDID)
	action = strings.TrimSpace(action)
	if fromDID == "" || toDID == "" {
		return trust.DelegationDecision{}, xerrors.New(xerrors.CodeInvalidArgument, "委托双方 DID 不能为空")
	}
	if action == "" {
		return trust.DelegationDecision{}, xerrors.New(xerrors.CodeInvalidArgument, "委托动作不能为空")
	}

	payload, err := json.Marshal(checkRequest{FromDID: fromDID, ToDID: toDID, Action: action})
	if err != nil {
		return trust.DelegationDecision{}, fmt.Errorf("编码委托检查请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/delegations/check", bytes.NewReader(payload))
	if err != nil {
		return trust.DelegationDecision{}, fmt.Errorf("构造委托检查请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return trust.DelegationDecision{}, fmt.Errorf("请求委托检查服务失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return trust.DelegationDecision{}, fmt.Errorf("读取委托检查响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return trust.DelegationDecision{}, fmt.Errorf("委托检查服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed checkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return trust.DelegationDecision{}, fmt.Errorf("解析委托检查响应失败: %w", err)
	}

	decision := trust.DelegationDecision{Allowed: parsed.Allowed, Reason: parsed.Reason}
	if parsed.Policy != nil {
		decision.Policy = *parsed.Policy
	}
	return decision, nil
}

// StaticChecker 基于内存规则表判定委托, 用于本地调试与测试。
type StaticChecker struct {
	mu    sync.RWMutex
	rules map[string]trust.DelegationDecision
}

// NewStaticChecker returns an empty in-memory delegation checker.
func NewStaticChecker() *StaticChecker {
	return &StaticChecker{rules: make(map[string]trust.DelegationDecision)}
}

func ruleKey(fromDID, toDID, action string) string {
	return fromDID + "|" + toDID + "|" + action
}

// Allow 登记一条放行规则并附带策略约束。
func (s *StaticChecker) Allow(fromDID, toDID, action string, policy trust.DelegationPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[ruleKey(fromDID, toDID, action)] = trust.DelegationDecision{Allowed: true, Policy: policy}
}

// Deny 登记一条拒绝规则, reason 会原样透传给调用方。
func (s *StaticChecker) Deny(fromDID, toDID, action, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[ruleKey(fromDID, toDID, action)] = trust.DelegationDecision{Allowed: false, Reason: reason}
}

// CheckDelegation 返回预先登记的判定, 未登记的组合一律拒绝。
func (s *StaticChecker) CheckDelegation(_ context.Context, fromDID, toDID, action string) (trust.DelegationDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if decision, ok := s.rules[ruleKey(fromDID, toDID, action)]; ok {
		return decision, nil
	}
	return trust.DelegationDecision{Allowed: false, Reason: "no delegation rule matches the request"}, nil
}

var (
	_ Checker = (*Client)(nil)
	_ Checker = (*StaticChecker)(nil)
)
