package job

import (
	"context"
	"encoding/json"

	xerrors "MCPF-Flow/internal/errors"
	"MCPF-Flow/internal/workflow"
)

// RunnerExecutor 将作业负载解码为对应场景的请求并交给工作流运行器。
type RunnerExecutor struct {
	runner *workflow.Runner
}

// NewRunnerExecutor 构造基于工作流运行器的执行器。
func NewRunnerExecutor(runner *workflow.Runner) *RunnerExecutor {
	return &RunnerExecutor{runner: runner}
}

// Execute 按作业场景分发到对应的工作流入口。
func (e *RunnerExecutor) Execute(ctx context.Context, job *Job) (*workflow.Result, error) {
	if e == nil || e.runner == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "workflow runner is not configured")
	}
	if job == nil {
		return nil, xerrors.New(CodeJobValidation, "job is nil")
	}

	switch job.Domain {
	case workflow.DomainBanking:
		var req workflow.FraudCheckRequest
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, xerrors.Wrap(CodeJobValidation, err, "failed to decode fraud check payload")
		}
		return e.runner.AnalyzeTransaction(ctx, req)
	case workflow.DomainHealthcare:
		var req workflow.DiagnosisRequest
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, xerrors.Wrap(CodeJobValidation, err, "failed to decode diagnosis payload")
		}
		return e.runner.RunDiagnosis(ctx, req)
	case workflow.DomainSupport:
		var req workflow.SupportRequest
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, xerrors.Wrap(CodeJobValidation, err, "failed to decode support payload")
		}
		return e.runner.HandleQuery(ctx, req)
	case workflow.DomainCustom:
		var req workflow.InvokeRequest
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, xerrors.Wrap(CodeJobValidation, err, "failed to decode invoke payload")
		}
		return e.runner.Invoke(ctx, req)
	default:
		return nil, xerrors.New(CodeJobValidation, "unsupported workflow domain: "+string(job.Domain))
	}
}
