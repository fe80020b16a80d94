package ans

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "MCPF-Flow/internal/errors"
	"MCPF-Flow/internal/trust"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 5 * time.Minute
	cachePrefix     = "mcpf:ans:"
)

// Resolver 将逻辑名称解析为智能体身份。
type Resolver interface {
	Resolve(ctx context.Context, logicalName string) (trust.AgentIdentity, error)
}

// CacheConfig 描述可选的 Redis 解析缓存。
// 缓存属于解析服务这一侧的契约，工作流核心本身不做任何缓存。
type CacheConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// Config 描述 ANS 服务的访问方式。
type Config struct {
	BaseURL string
	Timeout time.Duration
	Cache   CacheConfig
}

// Client 通过 HTTP 调用 ANS 名称解析服务。
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *redis.Client
	cacheTTL   time.Duration
}

// NewClient 根据配置创建 ANS 客户端。
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置 ANS 服务地址")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}

	if cfg.Cache.Enabled {
		if strings.TrimSpace(cfg.Cache.Address) == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "启用解析缓存时必须配置 Redis 地址")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Address,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("连接解析缓存 Redis 失败: %w", err)
		}
		client.cache = rdb
		client.cacheTTL = cfg.Cache.TTL
		if client.cacheTTL <= 0 {
			client.cacheTTL = defaultCacheTTL
		}
	}

	return client, nil
}

// Resolve 调用 ANS 服务，将逻辑名称转换为 DID 与端点信息。
func (c *Client) Resolve(ctx context.Context, logicalName string) (trust.AgentIdentity, error) {
	name := strings.TrimSpace(logicalName)
	if name == "" {
		return trust.AgentIdentity{}, xerrors.New(xerrors.CodeInvalidArgument, "智能体名称不能为空")
	}

	if identity, ok := c.cachedIdentity(ctx, name); ok {
		return identity, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/resolve?name=%s", c.baseURL, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return trust.AgentIdentity{}, fmt.Errorf("构建 ANS 请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return trust.AgentIdentity{}, xerrors.Wrap(xerrors.CodeResolutionFailure, err, "请求 ANS 服务失败",
			xerrors.WithMetadata("agent_name", name))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return trust.AgentIdentity{}, xerrors.New(xerrors.CodeNotFound,
			fmt.Sprintf("agent name %q is not registered", name))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return trust.AgentIdentity{}, xerrors.New(xerrors.CodeResolutionFailure,
			fmt.Sprintf("ANS 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			xerrors.WithMetadata("agent_name", name))
	}

	var identity trust.AgentIdentity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return trust.AgentIdentity{}, xerrors.Wrap(xerrors.CodeResolutionFailure, err, "解析 ANS 响应失败")
	}
	if identity.IsZero() {
		return trust.AgentIdentity{}, xerrors.New(xerrors.CodeResolutionFailure,
			fmt.Sprintf("ANS 响应缺少 %q 的 DID", name))
	}
	if identity.Name == "" {
		identity.Name = name
	}

	c.storeIdentity(ctx, name, identity)
	return identity, nil
}

// Close 释放缓存连接。
func (c *Client) Close() error {
	if c == nil || c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

func (c *Client) cachedIdentity(ctx context.Context, name string) (trust.AgentIdentity, bool) {
	if c.cache == nil {
		return trust.AgentIdentity{}, false
	}
	raw, err := c.cache.Get(ctx, cachePrefix+name).Result()
	if err != nil {
		return trust.AgentIdentity{}, false
	}
	var identity trust.AgentIdentity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return trust.AgentIdentity{}, false
	}
	if identity.IsZero() {
		return trust.AgentIdentity{}, false
	}
	return identity, true
}

func (c *Client) storeIdentity(ctx context.Context, name string, identity trust.AgentIdentity) {
	if c.cache == nil {
		return
	}
	encoded, err := json.Marshal(identity)
	if err != nil {
		return
	}
	// 缓存写失败不影响解析结果。
	_ = c.cache.Set(ctx, cachePrefix+name, encoded, c.cacheTTL).Err()
}
