// Package approval 封装人工审批环节。当委托策略要求人工确认时,
// 工作流会在执行下游计算前阻塞等待审批结果。
package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "MCPF-Flow/internal/errors"
)

// Request 描述一次待审批的工作流动作。
type Request struct {
	WorkflowID string            `json:"workflow_id"`
	Action     string            `json:"action"`
	FromAgent  string            `json:"from_agent"`
	ToAgent    string            `json:"to_agent"`
	Context    map[string]string `json:"context,omitempty"`
}

// Decision 表示审批人的最终裁决。
type Decision struct {
	Approved bool   `json:"approved"`
	Approver string `json:"approver,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Approver 定义审批通道, 实现方可以对接工单系统或即时通讯工具。
type Approver interface {
	Approve(ctx context.Context, req Request) (Decision, error)
}

const defaultTimeout = 60 * time.Second

// Config 描述远端审批服务的连接参数。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client 通过 HTTP 将审批请求提交到外部审批服务并同步等待结果。
type Client struct {
	baseURL string
	httpCli *http.Client
}

// NewClient constructs an approver backed by a remote approval service.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置审批服务地址")
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

// Approve 提交审批请求并阻塞等待审批服务的回复。
func (c *Client) Approve(ctx context.Context, req Request) (Decision, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Decision{}, fmt.Errorf("编码审批请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/approvals", bytes.NewReader(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("构造审批请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(httpReq)
	if err != nil {
		return Decision{}, fmt.Errorf("请求审批服务失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Decision{}, fmt.Errorf("读取审批响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("审批服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decision Decision
	if err := json.Unmarshal(body, &decision); err != nil {
		return Decision{}, fmt.Errorf("解析审批响应失败: %w", err)
	}
	return decision, nil
}

// AutoApprover 自动放行全部审批请求, 仅用于演示环境与测试。
type AutoApprover struct {
	Approver string
}

// Approve 直接批准请求, 不与任何外部系统交互。
func (a *AutoApprover) Approve(_ context.Context, _ Request) (Decision, error) {
	approver := a.Approver
	if approver == "" {
		approver = "auto"
	}
	return Decision{Approved: true, Approver: approver, Reason: "auto approved"}, nil
}

// DenyApprover 拒绝全部审批请求, 用于测试审批失败路径。
type DenyApprover struct {
	Reason string
}

// Approve 返回固定的拒绝结果。
func (d *DenyApprover) Approve(_ context.Context, _ Request) (Decision, error) {
	reason := d.Reason
	if reason == "" {
		reason = "denied by policy"
	}
	return Decision{Approved: false, Reason: reason}, nil
}

var (
	_ Approver = (*Client)(nil)
	_ Approver = (*AutoApprover)(nil)
	_ Approver = (*DenyApprover)(nil)
)
