package workflow

import (
	"context"
	"fmt"
	"strings"

	xerrors "MCPF-Flow/internal/errors"
	"MCPF-Flow/internal/trust"
)

// SeverityHigh 标记必须升级处理的工单。
const SeverityHigh = "high"

// escalationConfidenceThreshold 以下的一线应答触发升级。
const escalationConfidenceThreshold = 0.8

// Responder 是一线客服应答器: 针对工单产出回复与置信度。
type Responder interface {
	Respond(ctx context.Context, query CustomerQuery) (answer string, confidence float64, err error)
}

// StubResponder 按工单复杂度返回固定置信度, 模拟一线机器人。
type StubResponder struct{}

// Respond 返回演示用的固定回复。
func (s *StubResponder) Respond(_ context.Context, query CustomerQuery) (string, float64, error) {
	answer := fmt.Sprintf("Automated response for ticket %s", query.TicketID)
	switch strings.ToLower(strings.TrimSpace(query.Complexity)) {
	case "low":
		return answer, 0.95, nil
	case "high":
		return answer, 0.30, nil
	default:
		return answer, 0.65, nil
	}
}

// HandleQuery 执行客服场景的升级工作流。
// 一线应答置信度不低于 0.8 且工单非高严重级别时, 工单就地解决,
// 不再解析升级目标, 也不触发任何委托步骤。升级条件是 OR 关系:
// 高严重级别即便置信度很高也必须升级。
func (r *Runner) HandleQuery(ctx context.Context, req SupportRequest) (*Result, error) {
	if strings.TrimSpace(req.Query.TicketID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "工单编号不能为空")
	}
	responder := r.responder
	if responder == nil {
		responder = &StubResponder{}
	}

	source, err := r.resolveAgent(ctx, req.SourceAgent, "source")
	if err != nil {
		return nil, err
	}

	answer, confidence, err := responder.Respond(ctx, req.Query)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeDownstreamFailure, err, "一线应答器执行失败",
			xerrors.WithMetadata("ticket_id", req.Query.TicketID))
	}

	highSeverity := strings.EqualFold(strings.TrimSpace(req.Query.Severity), SeverityHigh)
	if confidence >= escalationConfidenceThreshold && !highSeverity {
		result := &Result{
			Domain:      DomainSupport,
			SourceName:  source.Name,
			SourceDID:   source.DID,
			Score:       confidence,
			Response:    answer,
			Reasoning:   []string{"First-line response confidence is sufficient"},
			Status:      StatusResolvedAtSource,
			CompletedAt: r.now(),
		}
		r.auditCompletion(result, ActionEscalate)
		return result, nil
	}

	reasons := make([]string, 0, 2)
	if confidence < escalationConfidenceThreshold {
		reasons = append(reasons, "Low confidence first-line response")
	}
	if highSeverity {
		reasons = append(reasons, "High severity ticket")
	}

	out, err := r.escalate(ctx, source, req, reasons)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// escalate 执行升级路径: 解析升级目标并走完整的委托流程。
func (r *Runner) escalate(ctx context.Context, source trust.AgentIdentity, req SupportRequest, reasons []string) (*Result, error) {
	target, err := r.resolveAgent(ctx, req.TargetAgent, "target")
	if err != nil {
		return nil, err
	}

	decision, err := r.delegate(ctx, source, target, ActionEscalate, false, map[string]string{
		"ticket_id": req.Query.TicketID,
		"severity":  req.Query.Severity,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		Domain:      DomainSupport,
		SourceName:  source.Name,
		SourceDID:   source.DID,
		TargetName:  target.Name,
		TargetDID:   target.DID,
		PolicyID:    decision.Policy.ID,
		Response:    fmt.Sprintf("Ticket %s escalated to %s for supervisor review", req.Query.TicketID, target.Name),
		Reasoning:   reasons,
		Status:      StatusEscalated,
		CompletedAt: r.now(),
	}
	r.auditCompletion(result, ActionEscalate)
	return result, nil
}
