package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"MCPF-Flow/internal/config"
	"MCPF-Flow/internal/trust/registry"
	"MCPF-Flow/internal/trust/registry/ethereum"
)

// Registry manages a set of anchor readers keyed by human readable names.
type Registry struct {
	defaultChain string
	readers      map[string]registry.AnchorReader
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg config.AnchorConfig) (*Registry, error) {
	defs, err := registry.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	readers := make(map[string]registry.AnchorReader)
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm":
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:     name,
				RPCURL:   chain.RPCURL,
				Contract: chain.Contract,
				Notes:    chain.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			readers[name] = client
		default:
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
	}

	if len(readers) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := ethereum.NewClient(ctx, ethereum.Config{
			RPCURL:   cfg.RPCURL,
			Contract: cfg.Contract,
		})
		if err != nil {
			return nil, err
		}
		readers["default"] = client
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}

	if len(readers) == 0 {
		return nil, errors.New("未配置任何锚定链的 RPC 端点")
	}

	defaultChain := cfg.DefaultChain
	if defaultChain == "" {
		names := make([]string, 0, len(readers))
		for name := range readers {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := readers[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	return &Registry{defaultChain: defaultChain, readers: readers}, nil
}

// DefaultReader returns the reader configured as default chain.
func (r *Registry) DefaultReader() (registry.AnchorReader, error) {
	if r == nil {
		return nil, errors.New("未初始化的锚定链注册表")
	}
	reader, ok := r.readers[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return reader, nil
}

// Reader returns the anchor reader identified by name.
func (r *Registry) Reader(name string) (registry.AnchorReader, bool) {
	if r == nil {
		return nil, false
	}
	reader, ok := r.readers[name]
	return reader, ok
}

// Close releases all readers managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, reader := range r.readers {
		if reader != nil {
			reader.Close()
		}
		delete(r.readers, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.readers))
	for name := range r.readers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
