package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"MCPF-Flow/internal/api"
	"MCPF-Flow/internal/approval"
	"MCPF-Flow/internal/auth"
	"MCPF-Flow/internal/config"
	"MCPF-Flow/internal/downstream"
	"MCPF-Flow/internal/job"
	"MCPF-Flow/internal/observability/metrics"
	"MCPF-Flow/internal/riskdata"
	"MCPF-Flow/internal/trust/a2a"
	"MCPF-Flow/internal/trust/ans"
	"MCPF-Flow/internal/trust/did"
	"MCPF-Flow/internal/trust/registry/provider"
	"MCPF-Flow/internal/workflow"
	"MCPF-Flow/pkg/logger"
)

// main 是 MCPF-Flow 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("mcpfd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = filepath.Join("configs", "mcpf.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	// 作业存储。
	var jobStore job.Store
	switch cfg.Storage.JobStore.Driver {
	case "", "memory":
		jobStore = job.NewMemoryStore()
	case "mysql":
		store, err := job.NewMySQLStore(cfg.Storage.JobStore.DSN)
		if err != nil {
			return err
		}
		jobStore = store
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.JobStore.Driver)
	}
	defer func() {
		if jobStore != nil {
			_ = jobStore.Close()
		}
	}()

	// 作业队列。
	var jobQueue job.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		jobQueue = job.NewMemoryQueue(1024)
	case "redis":
		queue, err := job.NewRedisQueue(job.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Address,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Queue,
		})
		if err != nil {
			return err
		}
		jobQueue = queue
	case "rabbitmq":
		queue, err := job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		jobQueue = queue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
	defer func() {
		if jobQueue != nil {
			if err := jobQueue.Close(); err != nil {
				log.Printf("关闭作业队列失败: %v", err)
			}
		}
	}()

	// 信任层协作服务。
	resolver, err := ans.NewClient(ans.Config{
		BaseURL: cfg.Trust.ANS.BaseURL,
		Timeout: time.Duration(cfg.Trust.ANS.TimeoutSeconds) * time.Second,
		Cache: ans.CacheConfig{
			Enabled:  cfg.Trust.ANS.Cache.Enabled,
			Address:  cfg.Trust.ANS.Cache.Address,
			Password: cfg.Trust.ANS.Cache.Password,
			DB:       cfg.Trust.ANS.Cache.DB,
			TTL:      time.Duration(cfg.Trust.ANS.Cache.TTLSeconds) * time.Second,
		},
	})
	if err != nil {
		return err
	}
	defer resolver.Close()

	remoteVerifier, err := did.NewClient(did.Config{
		BaseURL: cfg.Trust.DID.BaseURL,
		Timeout: time.Duration(cfg.Trust.DID.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	var verifier did.Verifier = remoteVerifier
	if cfg.Trust.Anchor.Enabled {
		anchorRegistry, err := provider.NewRegistry(ctx, cfg.Trust.Anchor)
		if err != nil {
			return err
		}
		defer anchorRegistry.Close()
		reader, err := anchorRegistry.DefaultReader()
		if err != nil {
			return err
		}
		verifier = did.NewAnchoredVerifier(remoteVerifier, reader)
	}

	checker, err := a2a.NewClient(a2a.Config{
		BaseURL: cfg.Trust.A2A.BaseURL,
		Timeout: time.Duration(cfg.Trust.A2A.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	var approver approval.Approver
	switch cfg.Trust.Approval.Mode {
	case "auto":
		approver = &approval.AutoApprover{}
	case "deny":
		approver = &approval.DenyApprover{}
	case "", "remote":
		if cfg.Trust.Approval.BaseURL != "" {
			client, err := approval.NewClient(approval.Config{
				BaseURL: cfg.Trust.Approval.BaseURL,
				Timeout: time.Duration(cfg.Trust.Approval.TimeoutSeconds) * time.Second,
			})
			if err != nil {
				return err
			}
			approver = client
		}
	default:
		return fmt.Errorf("未知的审批模式: %s", cfg.Trust.Approval.Mode)
	}

	risk := riskdata.NewStaticProvider()
	if cfg.Workflow.HighRiskCountriesFile != "" {
		if err := risk.LoadFromFile(cfg.Workflow.HighRiskCountriesFile); err != nil {
			return err
		}
	}

	runnerOpts := []workflow.Option{
		workflow.WithDelegationChecker(checker),
		workflow.WithRiskData(risk),
		workflow.WithInvoker(downstream.NewHTTPInvoker(downstream.Config{})),
	}
	if approver != nil {
		runnerOpts = append(runnerOpts, workflow.WithApprover(approver))
	}
	runner, err := workflow.New(resolver, verifier, runnerOpts...)
	if err != nil {
		return err
	}

	jobService := job.NewService(jobStore, jobQueue, cfg.Workflow.MaxRetries)
	processor := job.NewProcessor(job.NewRunnerExecutor(runner), jobStore, jobQueue, jobQueue,
		job.WithWorkerCount(cfg.Workflow.WorkerCount),
		job.WithProcessorLogger(logger.Named("processor")),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("作业处理器异常退出: %v", err)
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("指标服务异常退出: %v", err)
			}
		}()
	}

	serverOpts := []api.ServerOption{}
	if cfg.Auth.Mode != "" && cfg.Auth.Mode != "disabled" {
		authSvc, err := buildAuthService(ctx, cfg)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, api.WithAuthService(authSvc))
	}

	server := api.NewServer(cfg.Server.Address, jobService, serverOpts...)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildAuthService(ctx context.Context, cfg *config.Config) (*auth.Service, error) {
	seeds := make([]auth.Seed, 0, len(cfg.Auth.Seed))
	for _, seed := range cfg.Auth.Seed {
		seeds = append(seeds, auth.Seed{
			Username:    seed.Username,
			Password:    seed.Password,
			Roles:       seed.Roles,
			Permissions: seed.Permissions,
			Disabled:    seed.Disabled,
		})
	}
	users, err := auth.NewMemoryStore(seeds)
	if err != nil {
		return nil, err
	}
	return auth.NewService(ctx, auth.Config{
		Mode: auth.Mode(cfg.Auth.Mode),
		JWT: auth.JWTOptions{
			Secret:     cfg.Auth.JWT.Secret,
			Issuer:     cfg.Auth.JWT.Issuer,
			Audience:   cfg.Auth.JWT.Audience,
			AccessTTL:  cfg.Auth.JWT.AccessTTL,
			RefreshTTL: cfg.Auth.JWT.RefreshTTL,
		},
	}, users)
}
