package did

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
	"MCPF-Flow/internal/trust/registry"
)

// Verifier 校验 DID 凭证当前是否有效。
type Verifier interface {
	Verify(ctx context.Context, did string) (bool, error)
}

const defaultTimeout = 10 * time.Second

// Config 描述 DID 校验服务的连接参数。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client 通过 HTTP 访问凭证校验服务。
type Client struct {
	baseURL string
	httpCli *http.Client
}

// NewClient constructs a verifier backed by the remote credential service.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置 DID 校验服务地址")
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

type verifyRequest struct {
	DID string `json:"did"`
}

type verifyResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Verify 调用远端服务校验 DID 凭证状态。
func (c *Client) Verify(ctx context.Context, did string) (bool, error) {
	did = strings.TrimSpace(did)
	if did == "" {
		return false, xerrors.New(xerrors.CodeInvalidArgument, "DID 不能为空")
	}

	payload, err := json.Marshal(verifyRequest{DID: did})
	if err != nil {
		return false, fmt.Errorf("编码校验请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/credentials/verify", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("构造校验请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return false, fmt.Errorf("请求凭证校验服务失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("读取校验响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("凭证校验服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed verifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, fmt.Errorf("解析校验响应失败: %w", err)
	}
	return parsed.Valid, nil
}

// AnchoredVerifier 在远端校验之外叠加链上锚定检查:
// 只有远端判定有效、且链上存在未撤销的锚定记录时才视为通过。
type AnchoredVerifier struct {
	remote Verifier
	reader registry.AnchorReader
}

// NewAnchoredVerifier composes a remote verifier with an on-chain anchor reader.
func NewAnchoredVerifier(remote Verifier, reader registry.AnchorReader) *AnchoredVerifier {
	return &AnchoredVerifier{remote: remote, reader: reader}
}

// Verify 先查询远端服务, 再核对链上锚定状态。
func (v *AnchoredVerifier) Verify(ctx context.Context, did string) (bool, error) {
	valid, err := v.remote.Verify(ctx, did)
	if err != nil {
		return false, err
	}
	if !valid {
		return false, nil
	}
	if v.reader == nil {
		return valid, nil
	}

	anchor, err := v.reader.AnchorOf(ctx, did)
	if err != nil {
		return false, fmt.Errorf("查询 DID 锚定记录失败: %w", err)
	}
	if !anchor.Exists() || anchor.Revoked {
		return false, nil
	}
	return true, nil
}

// StaticVerifier 基于内存表做校验, 主要用于本地调试与测试。
type StaticVerifier struct {
	mu    sync.RWMutex
	valid map[string]bool
}

// NewStaticVerifier returns an empty in-memory verifier.
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{valid: make(map[string]bool)}
}

// Set 记录指定 DID 的校验结果。
func (s *StaticVerifier) Set(did string, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid[did] = valid
}

// Verify 返回预先登记的校验结果, 未登记的 DID 视为无效。
func (s *StaticVerifier) Verify(_ context.Context, did string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valid[strings.TrimSpace(did)], nil
}

var (
	_ Verifier = (*Client)(nil)
	_ Verifier = (*AnchoredVerifier)(nil)
	_ Verifier = (*StaticVerifier)(nil)
)
