package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnvConfigPath 是指定配置文件路径的环境变量名。
const EnvConfigPath = "MCPF_CONFIG"

// Config 描述 MCPF-Flow 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Trust    TrustConfig    `json:"trust"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Workflow WorkflowConfig `json:"workflow"`
	Auth     AuthConfig     `json:"auth"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// TrustConfig 汇总信任层各协作服务的访问方式。
type TrustConfig struct {
	ANS      ANSConfig      `json:"ans"`
	DID      DIDConfig      `json:"did"`
	A2A      A2AConfig      `json:"a2a"`
	Anchor   AnchorConfig   `json:"anchor"`
	Approval ApprovalConfig `json:"approval"`
}

// ANSConfig 描述名称解析服务与可选的 Redis 解析缓存。
type ANSConfig struct {
	BaseURL        string           `json:"base_url"`
	TimeoutSeconds int              `json:"timeout_seconds"`
	Cache          ResolverCacheCfg `json:"cache"`
}

// ResolverCacheCfg 描述解析缓存使用的 Redis 实例。
type ResolverCacheCfg struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// DIDConfig 描述凭证校验服务的访问方式。
type DIDConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// A2AConfig 描述委托检查服务的访问方式。
type A2AConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// AnchorConfig 描述链上 DID 锚定校验的接入方式。
// ChainConfig 指向多链定义的 YAML 文件; 未提供时回退到单链的
// RPCURL/Contract 组合。留空则完全关闭锚定校验。
type AnchorConfig struct {
	Enabled      bool   `json:"enabled"`
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
	RPCURL       string `json:"rpc_url"`
	Contract     string `json:"contract"`
}

// ApprovalConfig 描述人工审批服务的访问方式。
type ApprovalConfig struct {
	Mode           string `json:"mode"`
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// StorageConfig 统一描述作业存储后端的连接信息。
type StorageConfig struct {
	JobStore JobStoreConfig `json:"job_store"`
}

// JobStoreConfig 支持 memory 与 mysql 两种驱动。
type JobStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述作业队列后端。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisQueueCfg  `json:"redis"`
	RabbitMQ RabbitQueueCfg `json:"rabbitmq"`
}

// RedisQueueCfg 描述 Redis 队列的连接参数。
type RedisQueueCfg struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitQueueCfg 描述 RabbitMQ 队列的连接参数。
type RabbitQueueCfg struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// WorkflowConfig 控制工作流执行的运行时参数。
type WorkflowConfig struct {
	MaxRetries            int    `json:"max_retries"`
	WorkerCount           int    `json:"worker_count"`
	HighRiskCountriesFile string `json:"high_risk_countries_file"`
}

// AuthConfig 控制 API 的身份认证方式。
type AuthConfig struct {
	Mode string        `json:"mode"`
	JWT  JWTConfig     `json:"jwt"`
	Seed []SeedAccount `json:"seed"`
}

// JWTConfig 包含本地 JWT 签发所需的参数。
type JWTConfig struct {
	Secret     string   `json:"secret"`
	Issuer     string   `json:"issuer"`
	Audience   []string `json:"audience"`
	AccessTTL  int64    `json:"access_ttl_seconds"`
	RefreshTTL int64    `json:"refresh_ttl_seconds"`
}

// SeedAccount 定义启动时注入的初始账号。
type SeedAccount struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Disabled    bool     `json:"disabled"`
}

// LoggingConfig 控制结构化日志与审计日志输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// LoadFromEnv 从 MCPF_CONFIG 环境变量指定的路径加载配置。
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return nil, fmt.Errorf("环境变量 %s 未设置", EnvConfigPath)
	}
	return Load(path)
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Trust.ANS.TimeoutSeconds <= 0 {
		c.Trust.ANS.TimeoutSeconds = 10
	}
	if c.Trust.DID.TimeoutSeconds <= 0 {
		c.Trust.DID.TimeoutSeconds = 10
	}
	if c.Trust.A2A.TimeoutSeconds <= 0 {
		c.Trust.A2A.TimeoutSeconds = 10
	}
	if c.Trust.Approval.TimeoutSeconds <= 0 {
		c.Trust.Approval.TimeoutSeconds = 60
	}
	if c.Trust.Approval.Mode == "" {
		c.Trust.Approval.Mode = "remote"
	}
	if c.Trust.Anchor.ChainConfig != "" && !filepath.IsAbs(c.Trust.Anchor.ChainConfig) {
		c.Trust.Anchor.ChainConfig = filepath.Join(baseDir, c.Trust.Anchor.ChainConfig)
	}

	if c.Storage.JobStore.Driver == "" {
		c.Storage.JobStore.Driver = "memory"
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}

	if c.Workflow.MaxRetries <= 0 {
		c.Workflow.MaxRetries = 3
	}
	if c.Workflow.WorkerCount <= 0 {
		c.Workflow.WorkerCount = 4
	}
	if c.Workflow.HighRiskCountriesFile != "" && !filepath.IsAbs(c.Workflow.HighRiskCountriesFile) {
		c.Workflow.HighRiskCountriesFile = filepath.Join(baseDir, c.Workflow.HighRiskCountriesFile)
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.OutputPaths) == 0 {
		c.Logging.OutputPaths = []string{"stdout"}
	}
}
