package workflow

import (
	"time"
)

// Domain 标识工作流所属的业务场景。
type Domain string

const (
	DomainBanking    Domain = "banking"
	DomainHealthcare Domain = "healthcare"
	DomainSupport    Domain = "support"
	DomainCustom     Domain = "custom"
)

// Valid 判断是否为受支持的业务场景。
func (d Domain) Valid() bool {
	switch d {
	case DomainBanking, DomainHealthcare, DomainSupport, DomainCustom:
		return true
	default:
		return false
	}
}

// 工作流终态状态标签。
const (
	StatusCompleted        = "completed"
	StatusEscalated        = "escalated"
	StatusResolvedAtSource = "resolved at source"
)

// 欺诈评分的决策标签。
const (
	DecisionAllow  = "ALLOW"
	DecisionReview = "REVIEW"
	DecisionBlock  = "BLOCK"
)

// Result 是一次工作流调用的不可变结果快照。
// 委托被拒绝时不会产出 Result, 调用方只会收到错误。
type Result struct {
	Domain      Domain         `json:"domain"`
	SourceName  string         `json:"source_name"`
	SourceDID   string         `json:"source_did"`
	TargetName  string         `json:"target_name,omitempty"`
	TargetDID   string         `json:"target_did,omitempty"`
	PolicyID    string         `json:"policy_id,omitempty"`
	Score       float64        `json:"score,omitempty"`
	Decision    string         `json:"decision,omitempty"`
	Response    string         `json:"response,omitempty"`
	Reasoning   []string       `json:"reasoning,omitempty"`
	Status      string         `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Transaction 描述一笔待评分的交易。
type Transaction struct {
	ID                     string  `json:"id"`
	Amount                 float64 `json:"amount"`
	Currency               string  `json:"currency,omitempty"`
	DestinationCountry     string  `json:"destination_country,omitempty"`
	RecentTransactionCount int     `json:"recent_transaction_count,omitempty"`
}

// FraudCheckRequest 是银行场景的工作流输入。
type FraudCheckRequest struct {
	SourceAgent string      `json:"source_agent"`
	TargetAgent string      `json:"target_agent"`
	Transaction Transaction `json:"transaction"`
}

// PatientCase 描述一次影像诊断的患者上下文。
type PatientCase struct {
	PatientID      string         `json:"patient_id"`
	ImagingType    string         `json:"imaging_type,omitempty"`
	Images         []string       `json:"images,omitempty"`
	Symptoms       []string       `json:"symptoms,omitempty"`
	MedicalHistory map[string]any `json:"medical_history,omitempty"`
	// PrivacyLevel 取值 standard 或 sensitive, sensitive 强制进入人工审批。
	PrivacyLevel string `json:"privacy_level,omitempty"`
}

// DiagnosisRequest 是医疗场景的工作流输入。
type DiagnosisRequest struct {
	SourceAgent string      `json:"source_agent"`
	TargetAgent string      `json:"target_agent"`
	Case        PatientCase `json:"case"`
}

// CustomerQuery 描述一条客服工单。
type CustomerQuery struct {
	TicketID   string `json:"ticket_id"`
	Customer   string `json:"customer,omitempty"`
	Question   string `json:"question"`
	Complexity string `json:"complexity,omitempty"`
	// Severity 为 high 时无条件升级, 与应答置信度无关。
	Severity string `json:"severity,omitempty"`
}

// SupportRequest 是客服场景的工作流输入。
type SupportRequest struct {
	SourceAgent string        `json:"source_agent"`
	TargetAgent string        `json:"target_agent"`
	Query       CustomerQuery `json:"query"`
}

// InvokeRequest 把任意动作转发给目标智能体的执行端点。
type InvokeRequest struct {
	SourceAgent string         `json:"source_agent"`
	TargetAgent string         `json:"target_agent"`
	Action      string         `json:"action"`
	Payload     map[string]any `json:"payload,omitempty"`
}
