package ans

import (
	"context"
	"fmt"
	"sync"

	xerrors "MCPF-Flow/internal/errors"
	"MCPF-Flow/internal/trust"
)

// StaticResolver 以内存表提供名称解析，主要用于测试与离线演示。
type StaticResolver struct {
	mu      sync.RWMutex
	entries map[string]trust.AgentIdentity
}

// NewStaticResolver 创建静态解析器。
func NewStaticResolver(entries map[string]trust.AgentIdentity) *StaticResolver {
	cloned := make(map[string]trust.AgentIdentity, len(entries))
	for name, identity := range entries {
		cloned[name] = identity
	}
	return &StaticResolver{entries: cloned}
}

// Register 注册或覆盖一个名称映射。
func (r *StaticResolver) Register(name string, identity trust.AgentIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]trust.AgentIdentity)
	}
	r.entries[name] = identity
}

// Resolve 实现 Resolver 接口。
func (r *StaticResolver) Resolve(_ context.Context, logicalName string) (trust.AgentIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.entries[logicalName]
	if !ok {
		return trust.AgentIdentity{}, xerrors.New(xerrors.CodeNotFound,
			fmt.Sprintf("agent name %q is not registered", logicalName))
	}
	return identity, nil
}
