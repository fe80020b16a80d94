package workflow

import (
	"context"
	"fmt"

	xerrors "MCPF-Flow/internal/errors"
	"MCPF-Flow/internal/riskdata"
)

// 欺诈评分结论中使用的人类可读理由。
const (
	reasonHighAmount      = "High transaction amount"
	reasonHighVelocity    = "High transaction velocity"
	reasonHighRiskCountry = "High-risk destination country"
	reasonNormalPattern   = "Transaction matches normal spending pattern"
)

// AnalyzeTransaction 执行银行场景的欺诈检测工作流。
func (r *Runner) AnalyzeTransaction(ctx context.Context, req FraudCheckRequest) (*Result, error) {
	if req.Transaction.Amount < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "交易金额不能为负数")
	}

	out, err := r.establishDelegation(ctx, req.SourceAgent, req.TargetAgent, ActionAnalyzeTransaction, false, map[string]string{
		"transaction_id": req.Transaction.ID,
		"amount":         fmt.Sprintf("%.2f", req.Transaction.Amount),
	})
	if err != nil {
		return nil, err
	}

	score, decision, reasons := scoreTransaction(req.Transaction, r.risk)

	result := r.buildResult(DomainBanking, out, StatusCompleted)
	result.Score = score
	result.Decision = decision
	result.Reasoning = reasons
	r.auditCompletion(result, ActionAnalyzeTransaction)
	return result, nil
}

// scoreTransaction 计算交易的欺诈评分。
// 分数以 0.1 为步长累加, 内部用整数运算, 保证 0.5/0.8 边界的
// 严格大于判断不受浮点误差影响。
func scoreTransaction(tx Transaction, risk riskdata.Provider) (float64, string, []string) {
	tenths := 0
	reasons := make([]string, 0, 4)

	if tx.Amount > 10000 {
		tenths += 3
		reasons = append(reasons, reasonHighAmount)
	}
	if tx.Amount > 50000 {
		tenths += 2
	}
	if tx.RecentTransactionCount > 5 {
		tenths += 2
		reasons = append(reasons, reasonHighVelocity)
	}
	if risk != nil && risk.IsHighRiskCountry(tx.DestinationCountry) {
		tenths += 3
		reasons = append(reasons, reasonHighRiskCountry)
	}

	// 正常模式说明基于钳制前的分数, 且总在各项检查之后判断,
	// 低分触发项可能与它并存。这是沿用下来的既有行为, 不做修正。
	if tenths < 3 {
		reasons = append(reasons, reasonNormalPattern)
	}

	clamped := tenths
	if clamped > 10 {
		clamped = 10
	}

	decision := DecisionAllow
	switch {
	case clamped > 8:
		decision = DecisionBlock
	case clamped > 5:
		decision = DecisionReview
	}

	return float64(clamped) / 10, decision, reasons
}
