package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"MCPF-Flow/internal/approval"
	"MCPF-Flow/internal/downstream"
	xerrors "MCPF-Flow/internal/errors"
	"MCPF-Flow/internal/riskdata"
	"MCPF-Flow/internal/trust"
	"MCPF-Flow/internal/trust/a2a"
	"MCPF-Flow/internal/trust/ans"
	"MCPF-Flow/internal/trust/did"
	"MCPF-Flow/pkg/logger"
)

// 各业务场景使用的委托动作名称。
const (
	ActionAnalyzeTransaction = "analyze-transaction"
	ActionAnalyzeImaging     = "analyze-imaging"
	ActionEscalate           = "escalate"
)

// Runner 按固定顺序执行委托工作流: 解析双方身份、校验凭证、
// 检查委托策略、按需人工审批, 最后执行领域计算并组装结果。
// 每次调用相互独立, Runner 自身不持有任何跨调用的可变状态,
// 也不在内部做重试; 瞬时故障的重试属于各协作服务自己的契约。
type Runner struct {
	resolver  ans.Resolver
	verifier  did.Verifier
	checker   a2a.Checker
	approver  approval.Approver
	invoker   downstream.Invoker
	risk      riskdata.Provider
	responder Responder
	log       *slog.Logger
	audit     *slog.Logger
	now       func() time.Time
}

// Option 配置 Runner 的可选能力。
type Option func(*Runner)

// WithDelegationChecker 启用委托检查协作方。
// 未配置时, 依赖委托判定的步骤会显式报错而不是静默放行。
func WithDelegationChecker(checker a2a.Checker) Option {
	return func(r *Runner) {
		r.checker = checker
	}
}

// WithApprover 配置人工审批通道。
func WithApprover(approver approval.Approver) Option {
	return func(r *Runner) {
		r.approver = approver
	}
}

// WithInvoker 配置下游智能体调用器。
func WithInvoker(invoker downstream.Invoker) Option {
	return func(r *Runner) {
		r.invoker = invoker
	}
}

// WithRiskData 配置欺诈评分使用的风险参考数据。
func WithRiskData(provider riskdata.Provider) Option {
	return func(r *Runner) {
		r.risk = provider
	}
}

// WithResponder 配置客服场景的一线应答器。
func WithResponder(responder Responder) Option {
	return func(r *Runner) {
		r.responder = responder
	}
}

// WithLogger 覆盖默认日志器。
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithAuditLogger 覆盖默认审计日志器。
func WithAuditLogger(audit *slog.Logger) Option {
	return func(r *Runner) {
		r.audit = audit
	}
}

// WithClock 覆盖完成时间戳的时钟来源, 用于测试。
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// New 创建工作流 Runner。名称解析与凭证校验是硬依赖。
func New(resolver ans.Resolver, verifier did.Verifier, opts ...Option) (*Runner, error) {
	if resolver == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "名称解析器不能为空")
	}
	if verifier == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "凭证校验器不能为空")
	}

	r := &Runner{
		resolver:  resolver,
		verifier:  verifier,
		risk:      riskdata.NewStaticProvider(),
		responder: &StubResponder{},
		log:       logger.Named("workflow"),
		audit:     logger.Audit(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// delegationOutcome 汇总前四个步骤产出的上下文。
type delegationOutcome struct {
	source   trust.AgentIdentity
	target   trust.AgentIdentity
	decision trust.DelegationDecision
}

// establishDelegation 执行步骤 1-4: 解析、校验、委托检查、人工审批。
// forceApproval 为 true 时即便策略未要求也进入审批(如敏感病历)。
// 任何一步失败都立即终止, 不会继续后续步骤。
func (r *Runner) establishDelegation(ctx context.Context, sourceName, targetName, action string, forceApproval bool, approvalContext map[string]string) (delegationOutcome, error) {
	var out delegationOutcome

	source, err := r.resolveAgent(ctx, sourceName, "source")
	if err != nil {
		return out, err
	}
	target, err := r.resolveAgent(ctx, targetName, "target")
	if err != nil {
		return out, err
	}
	out.source = source
	out.target = target

	decision, err := r.delegate(ctx, source, target, action, forceApproval, approvalContext)
	if err != nil {
		return out, err
	}
	out.decision = decision
	return out, nil
}

// delegate 执行步骤 2-4: 凭证校验、委托检查、按需人工审批。
func (r *Runner) delegate(ctx context.Context, source, target trust.AgentIdentity, action string, forceApproval bool, approvalContext map[string]string) (trust.DelegationDecision, error) {
	// 凭证校验是硬门槛: 任一方失败都不得继续到委托检查。
	if err := r.verifyCredentials(ctx, source, target); err != nil {
		return trust.DelegationDecision{}, err
	}

	if r.checker == nil {
		return trust.DelegationDecision{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("action %q requires a delegation checker but none is configured", action))
	}
	decision, err := r.checker.CheckDelegation(ctx, source.DID, target.DID, action)
	if err != nil {
		// 服务不可达是瞬时故障, 与策略拒绝区分开, 允许上层重试。
		return trust.DelegationDecision{}, xerrors.Wrap(xerrors.CodeDelegationCheck, err, "委托检查服务调用失败",
			xerrors.WithMetadata("action", action),
			xerrors.WithMetadata("from_did", source.DID),
			xerrors.WithMetadata("to_did", target.DID))
	}
	if !decision.Allowed {
		r.audit.Warn("delegation denied",
			"action", action,
			"from_did", source.DID,
			"to_did", target.DID,
			"reason", decision.Reason)
		// 拒绝原因必须原样透传给调用方。
		return trust.DelegationDecision{}, xerrors.New(xerrors.CodeDelegationDenied, decision.Reason,
			xerrors.WithMetadata("action", action),
			xerrors.WithMetadata("from_did", source.DID),
			xerrors.WithMetadata("to_did", target.DID))
	}

	if decision.Policy.Constraints.RequiresApproval || forceApproval {
		if err := r.obtainApproval(ctx, action, source, target, approvalContext); err != nil {
			return trust.DelegationDecision{}, err
		}
	}
	return decision, nil
}

func (r *Runner) resolveAgent(ctx context.Context, name, role string) (trust.AgentIdentity, error) {
	identity, err := r.resolver.Resolve(ctx, name)
	if err != nil {
		return trust.AgentIdentity{}, xerrors.Wrap(xerrors.CodeResolutionFailure, err,
			fmt.Sprintf("failed to resolve %s agent %q", role, name),
			xerrors.WithMetadata("agent_name", name),
			xerrors.WithMetadata("agent_role", role))
	}
	return identity, nil
}

func (r *Runner) verifyCredentials(ctx context.Context, source, target trust.AgentIdentity) error {
	for _, agent := range []trust.AgentIdentity{source, target} {
		valid, err := r.verifier.Verify(ctx, agent.DID)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeCredentialFailure, err, "Agent credential verification failed",
				xerrors.WithMetadata("agent_name", agent.Name),
				xerrors.WithMetadata("did", agent.DID))
		}
		if !valid {
			return xerrors.New(xerrors.CodeCredentialFailure, "Agent credential verification failed",
				xerrors.WithMetadata("agent_name", agent.Name),
				xerrors.WithMetadata("did", agent.DID))
		}
	}
	return nil
}

func (r *Runner) obtainApproval(ctx context.Context, action string, source, target trust.AgentIdentity, approvalContext map[string]string) error {
	if r.approver == nil {
		// 审批通道缺失等同于审批被拒, 不允许绕过。
		return xerrors.New(xerrors.CodeApprovalDenied,
			"approval required but no approval channel is configured",
			xerrors.WithMetadata("action", action))
	}

	decision, err := r.approver.Approve(ctx, approval.Request{
		Action:    action,
		FromAgent: source.Name,
		ToAgent:   target.Name,
		Context:   approvalContext,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeApprovalDenied, err, "审批流程执行失败",
			xerrors.WithMetadata("action", action))
	}
	r.audit.Info("approval decision",
		"action", action,
		"from_agent", source.Name,
		"to_agent", target.Name,
		"approved", decision.Approved,
		"approver", decision.Approver)
	if !decision.Approved {
		reason := decision.Reason
		if reason == "" {
			reason = "approval withheld"
		}
		return xerrors.New(xerrors.CodeApprovalDenied, reason,
			xerrors.WithMetadata("action", action),
			xerrors.WithMetadata("approver", decision.Approver))
	}
	return nil
}

// Invoke 把调用方给定的动作转发给目标智能体的执行端点。
// 与内置场景不同, 这里的领域计算完全由远端完成。
func (r *Runner) Invoke(ctx context.Context, req InvokeRequest) (*Result, error) {
	if req.Action == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "动作名称不能为空")
	}
	if r.invoker == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置下游调用器")
	}

	out, err := r.establishDelegation(ctx, req.SourceAgent, req.TargetAgent, req.Action, false, nil)
	if err != nil {
		return nil, err
	}

	response, err := r.invoker.Invoke(ctx, downstream.Invocation{
		Endpoint: out.target.Endpoint,
		Action:   req.Action,
		Payload:  req.Payload,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeDownstreamFailure, err, "下游智能体执行失败",
			xerrors.WithMetadata("action", req.Action),
			xerrors.WithMetadata("endpoint", out.target.Endpoint))
	}

	result := r.buildResult(DomainCustom, out, StatusCompleted)
	result.Output = response
	r.auditCompletion(result, req.Action)
	return result, nil
}

// buildResult 组装结果骨架, 完成时间取自组装时刻而非调用开始时刻。
func (r *Runner) buildResult(domain Domain, out delegationOutcome, status string) *Result {
	return &Result{
		Domain:      domain,
		SourceName:  out.source.Name,
		SourceDID:   out.source.DID,
		TargetName:  out.target.Name,
		TargetDID:   out.target.DID,
		PolicyID:    out.decision.Policy.ID,
		Status:      status,
		CompletedAt: r.now(),
	}
}

func (r *Runner) auditCompletion(result *Result, action string) {
	r.audit.Info("workflow completed",
		"domain", string(result.Domain),
		"action", action,
		"source_did", result.SourceDID,
		"target_did", result.TargetDID,
		"policy_id", result.PolicyID,
		"status", result.Status,
		"decision", result.Decision)
}
