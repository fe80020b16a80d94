package trust

import "strings"

// AgentIdentity 描述一次名称解析得到的智能体身份。
// 每次工作流调用都会重新解析，结果不做持久化。
type AgentIdentity struct {
	Name     string `json:"name"`
	DID      string `json:"did"`
	Endpoint string `json:"endpoint"`
}

// IsZero 判断身份是否为空。
func (a AgentIdentity) IsZero() bool {
	return strings.TrimSpace(a.DID) == ""
}

// PolicyConstraints 描述委托策略携带的约束条件。
type PolicyConstraints struct {
	MaxDurationSeconds    int64  `json:"max_duration_seconds,omitempty"`
	Scope                 string `json:"scope,omitempty"`
	RequiresApproval      bool   `json:"requires_approval,omitempty"`
	MaxConcurrent         int    `json:"max_concurrent,omitempty"`
	TimeWindow            string `json:"time_window,omitempty"`
	RequiredCertification string `json:"required_certification,omitempty"`
}

// DelegationPolicy 是委托检查服务返回的策略，调用方只读。
type DelegationPolicy struct {
	ID          string            `json:"id"`
	Constraints PolicyConstraints `json:"constraints"`
}

// DelegationDecision 描述一次委托检查的终态结果，不再变更。
type DelegationDecision struct {
	Allowed bool             `json:"allowed"`
	Reason  string           `json:"reason,omitempty"`
	Policy  DelegationPolicy `json:"policy"`
}
