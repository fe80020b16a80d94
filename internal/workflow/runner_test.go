package workflow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"MCPF-Flow/internal/approval"
	"MCPF-Flow/internal/downstream"
	xerrors "MCPF-Flow/internal/errors"
	"MCPF-Flow/internal/riskdata"
	"MCPF-Flow/internal/trust"
	"MCPF-Flow/internal/trust/a2a"
	"MCPF-Flow/internal/trust/ans"
	"MCPF-Flow/internal/trust/did"
)

const (
	sourceDID = "did:wba:bank:fraud-detector"
	targetDID = "did:wba:bank:risk-analyzer"
)

type fixture struct {
	resolver *ans.StaticResolver
	verifier *did.StaticVerifier
	checker  *countingChecker
}

// countingChecker wraps the static checker so tests can assert call order.
type countingChecker struct {
	inner *a2a.StaticChecker
	calls int
}

func (c *countingChecker) CheckDelegation(ctx context.Context, fromDID, toDID, action string) (trust.DelegationDecision, error) {
	c.calls++
	return c.inner.CheckDelegation(ctx, fromDID, toDID, action)
}

func newFixture() *fixture {
	resolver := ans.NewStaticResolver(map[string]trust.AgentIdentity{
		"fraud-detector": {Name: "fraud-detector", DID: sourceDID, Endpoint: "https://fraud.bank.example"},
		"risk-analyzer":  {Name: "risk-analyzer", DID: targetDID, Endpoint: "https://risk.bank.example"},
	})

	verifier := did.NewStaticVerifier()
	verifier.Set(sourceDID, true)
	verifier.Set(targetDID, true)

	checker := &countingChecker{inner: a2a.NewStaticChecker()}
	checker.inner.Allow(sourceDID, targetDID, ActionAnalyzeTransaction, trust.DelegationPolicy{ID: "policy-banking-01"})

	return &fixture{resolver: resolver, verifier: verifier, checker: checker}
}

func (f *fixture) runner(t *testing.T, opts ...Option) *Runner {
	t.Helper()
	base := []Option{
		WithDelegationChecker(f.checker),
		WithRiskData(riskdata.NewStaticProvider()),
	}
	runner, err := New(f.resolver, f.verifier, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return runner
}

func bankingRequest(amount float64) FraudCheckRequest {
	return FraudCheckRequest{
		SourceAgent: "fraud-detector",
		TargetAgent: "risk-analyzer",
		Transaction: Transaction{ID: "tx-001", Amount: amount, DestinationCountry: "SG"},
	}
}

func TestAnalyzeTransactionCompletes(t *testing.T) {
	f := newFixture()
	runner := f.runner(t)

	result, err := runner.AnalyzeTransaction(context.Background(), bankingRequest(500))
	if err != nil {
		t.Fatalf("AnalyzeTransaction returned error: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", result.Status, StatusCompleted)
	}
	if result.SourceDID != sourceDID || result.TargetDID != targetDID {
		t.Fatalf("unexpected agent pair: %s -> %s", result.SourceDID, result.TargetDID)
	}
	if result.PolicyID != "policy-banking-01" {
		t.Fatalf("policy id = %s, want policy-banking-01", result.PolicyID)
	}
	if result.Decision != DecisionAllow {
		t.Fatalf("decision = %s, want %s", result.Decision, DecisionAllow)
	}
	if result.CompletedAt.IsZero() {
		t.Fatalf("completion timestamp must be set")
	}
}

func TestAnalyzeTransactionDefaultRiskData(t *testing.T) {
	f := newFixture()
	// 未配置 WithRiskData 时必须回落到内置高风险清单,
	// 高风险目的地的 +0.3 不允许因缺省而消失。
	runner, err := New(f.resolver, f.verifier, WithDelegationChecker(f.checker))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	req := bankingRequest(60000)
	req.Transaction.RecentTransactionCount = 6
	req.Transaction.DestinationCountry = "KP"

	result, err := runner.AnalyzeTransaction(context.Background(), req)
	if err != nil {
		t.Fatalf("AnalyzeTransaction returned error: %v", err)
	}
	if result.Score != 1.0 {
		t.Fatalf("score = %v, want 1.0", result.Score)
	}
	if result.Decision != DecisionBlock {
		t.Fatalf("decision = %s, want %s", result.Decision, DecisionBlock)
	}
	want := []string{reasonHighAmount, reasonHighVelocity, reasonHighRiskCountry}
	if !reflect.DeepEqual(result.Reasoning, want) {
		t.Fatalf("reasons = %v, want %v", result.Reasoning, want)
	}
}

func TestAnalyzeTransactionUnknownAgent(t *testing.T) {
	f := newFixture()
	runner := f.runner(t)

	req := bankingRequest(500)
	req.TargetAgent = "nonexistent-agent"
	_, err := runner.AnalyzeTransaction(context.Background(), req)
	if err == nil {
		t.Fatalf("expected resolution error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeResolutionFailure {
		t.Fatalf("error code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeResolutionFailure)
	}
}

func TestCredentialGateBlocksDelegationCheck(t *testing.T) {
	f := newFixture()
	f.verifier.Set(targetDID, false)
	runner := f.runner(t)

	_, err := runner.AnalyzeTransaction(context.Background(), bankingRequest(500))
	if err == nil {
		t.Fatalf("expected credential error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeCredentialFailure {
		t.Fatalf("error code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeCredentialFailure)
	}
	if !strings.Contains(err.Error(), "Agent credential verification failed") {
		t.Fatalf("error message = %q, want the credential failure message", err.Error())
	}
	if f.checker.calls != 0 {
		t.Fatalf("delegation checker was called %d times after credential failure", f.checker.calls)
	}
}

func TestDelegationDenialReasonVerbatim(t *testing.T) {
	const reason = "Delegation does not permit action: analyze-transaction (outside time window Mon-Fri 09:00-17:00)"

	f := newFixture()
	f.checker.inner.Deny(sourceDID, targetDID, ActionAnalyzeTransaction, reason)
	runner := f.runner(t)

	_, err := runner.AnalyzeTransaction(context.Background(), bankingRequest(500))
	if err == nil {
		t.Fatalf("expected delegation error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeDelegationDenied {
		t.Fatalf("error code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeDelegationDenied)
	}
	if !strings.Contains(err.Error(), reason) {
		t.Fatalf("error message %q does not carry the denial reason verbatim", err.Error())
	}
}

// brokenChecker simulates an unreachable delegation service.
type brokenChecker struct {
	err error
}

func (c *brokenChecker) CheckDelegation(context.Context, string, string, string) (trust.DelegationDecision, error) {
	return trust.DelegationDecision{}, c.err
}

func TestDelegationCheckerOutageDistinctFromDenial(t *testing.T) {
	f := newFixture()
	runner, err := New(f.resolver, f.verifier,
		WithDelegationChecker(&brokenChecker{err: errors.New("dial tcp 10.0.0.7:8703: connection refused")}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	_, err = runner.AnalyzeTransaction(context.Background(), bankingRequest(500))
	if err == nil {
		t.Fatalf("expected delegation check error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeDelegationCheck {
		t.Fatalf("error code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeDelegationCheck)
	}
	if !xerrors.RetryableError(err) {
		t.Fatalf("a delegation service outage must be retryable")
	}
}

func TestApprovalRequiredByPolicy(t *testing.T) {
	f := newFixture()
	f.checker.inner.Allow(sourceDID, targetDID, ActionAnalyzeTransaction, trust.DelegationPolicy{
		ID:          "policy-banking-02",
		Constraints: trust.PolicyConstraints{RequiresApproval: true},
	})

	// Without an approval channel the workflow must stop before step 5.
	runner := f.runner(t)
	_, err := runner.AnalyzeTransaction(context.Background(), bankingRequest(500))
	if xerrors.CodeOf(err) != xerrors.CodeApprovalDenied {
		t.Fatalf("error code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeApprovalDenied)
	}

	// A denying approver keeps the gate closed.
	runner = f.runner(t, WithApprover(&approval.DenyApprover{Reason: "supervisor unavailable"}))
	_, err = runner.AnalyzeTransaction(context.Background(), bankingRequest(500))
	if xerrors.CodeOf(err) != xerrors.CodeApprovalDenied {
		t.Fatalf("error code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeApprovalDenied)
	}
	if !strings.Contains(err.Error(), "supervisor unavailable") {
		t.Fatalf("error message = %q, want the approver's reason", err.Error())
	}

	// An approving channel lets the workflow complete.
	runner = f.runner(t, WithApprover(&approval.AutoApprover{}))
	result, err := runner.AnalyzeTransaction(context.Background(), bankingRequest(500))
	if err != nil {
		t.Fatalf("AnalyzeTransaction returned error: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", result.Status, StatusCompleted)
	}
}

func TestRunIdempotentModuloTimestamp(t *testing.T) {
	f := newFixture()

	timestamps := []time.Time{
		time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 11, 30, 0, 0, time.UTC),
	}
	call := 0
	runner := f.runner(t, WithClock(func() time.Time {
		ts := timestamps[call%len(timestamps)]
		call++
		return ts
	}))

	first, err := runner.AnalyzeTransaction(context.Background(), bankingRequest(25000))
	if err != nil {
		t.Fatalf("first run returned error: %v", err)
	}
	second, err := runner.AnalyzeTransaction(context.Background(), bankingRequest(25000))
	if err != nil {
		t.Fatalf("second run returned error: %v", err)
	}

	if first.CompletedAt.Equal(second.CompletedAt) {
		t.Fatalf("clock stub should produce distinct timestamps")
	}
	a, b := *first, *second
	a.CompletedAt, b.CompletedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("results differ beyond the timestamp:\n%+v\n%+v", a, b)
	}
}

func TestRunDiagnosisSensitivePrivacyForcesApproval(t *testing.T) {
	resolver := ans.NewStaticResolver(map[string]trust.AgentIdentity{
		"primary-diagnostics":  {Name: "primary-diagnostics", DID: "did:wba:hospital:primary"},
		"radiology-specialist": {Name: "radiology-specialist", DID: "did:wba:hospital:radiology"},
	})
	verifier := did.NewStaticVerifier()
	verifier.Set("did:wba:hospital:primary", true)
	verifier.Set("did:wba:hospital:radiology", true)

	checker := a2a.NewStaticChecker()
	// The policy itself does not require approval.
	checker.Allow("did:wba:hospital:primary", "did:wba:hospital:radiology", ActionAnalyzeImaging,
		trust.DelegationPolicy{ID: "policy-health-01"})

	req := DiagnosisRequest{
		SourceAgent: "primary-diagnostics",
		TargetAgent: "radiology-specialist",
		Case: PatientCase{
			PatientID:    "patient_12345",
			Symptoms:     []string{"chest_pain", "shortness_of_breath"},
			PrivacyLevel: "sensitive",
		},
	}

	runner, err := New(resolver, verifier, WithDelegationChecker(checker))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := runner.RunDiagnosis(context.Background(), req); xerrors.CodeOf(err) != xerrors.CodeApprovalDenied {
		t.Fatalf("sensitive case without approver: code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeApprovalDenied)
	}

	runner, err = New(resolver, verifier, WithDelegationChecker(checker), WithApprover(&approval.AutoApprover{}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	result, err := runner.RunDiagnosis(context.Background(), req)
	if err != nil {
		t.Fatalf("RunDiagnosis returned error: %v", err)
	}
	if result.Response != "Possible cardiac abnormality" {
		t.Fatalf("diagnosis = %q, want cardiac abnormality stub", result.Response)
	}
	if result.Score != 0.78 {
		t.Fatalf("confidence = %v, want 0.78", result.Score)
	}

	// A standard privacy case with the same non-approving policy skips approval.
	req.Case.PrivacyLevel = "standard"
	req.Case.Symptoms = []string{"headache"}
	runner, err = New(resolver, verifier, WithDelegationChecker(checker))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	result, err = runner.RunDiagnosis(context.Background(), req)
	if err != nil {
		t.Fatalf("RunDiagnosis returned error: %v", err)
	}
	if result.Response != "Normal findings" || result.Score != 0.92 {
		t.Fatalf("diagnosis = %q (%v), want normal findings stub", result.Response, result.Score)
	}
}

func TestInvokeRequiresInvoker(t *testing.T) {
	f := newFixture()
	runner := f.runner(t)

	_, err := runner.Invoke(context.Background(), InvokeRequest{
		SourceAgent: "fraud-detector",
		TargetAgent: "risk-analyzer",
		Action:      "analyze",
	})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("error code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeInvalidArgument)
	}
}

func TestDownstreamFailureSurfaced(t *testing.T) {
	f := newFixture()
	f.checker.inner.Allow(sourceDID, targetDID, "analyze", trust.DelegationPolicy{ID: "policy-banking-03"})

	stub := downstream.NewStubInvoker()
	stub.Fail(errors.New("connection refused"))
	runner := f.runner(t, WithInvoker(stub))

	_, err := runner.Invoke(context.Background(), InvokeRequest{
		SourceAgent: "fraud-detector",
		TargetAgent: "risk-analyzer",
		Action:      "analyze",
	})
	if xerrors.CodeOf(err) != xerrors.CodeDownstreamFailure {
		t.Fatalf("error code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeDownstreamFailure)
	}
}
