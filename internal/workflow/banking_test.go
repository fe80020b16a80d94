package workflow

import (
	"testing"

	"MCPF-Flow/internal/riskdata"
)

func TestScoreTransactionBaseline(t *testing.T) {
	risk := riskdata.NewStaticProvider()
	score, decision, reasons := scoreTransaction(Transaction{
		Amount:                 10000,
		RecentTransactionCount: 5,
		DestinationCountry:     "SG",
	}, risk)

	if score != 0.0 {
		t.Fatalf("score = %v, want 0.0", score)
	}
	if decision != DecisionAllow {
		t.Fatalf("decision = %s, want %s", decision, DecisionAllow)
	}
	if len(reasons) != 1 || reasons[0] != reasonNormalPattern {
		t.Fatalf("reasons = %v, want only the normal pattern note", reasons)
	}
}

func TestScoreTransactionAllTriggers(t *testing.T) {
	risk := riskdata.NewStaticProvider()
	risk.Add("KP")

	score, decision, reasons := scoreTransaction(Transaction{
		Amount:                 60000,
		RecentTransactionCount: 6,
		DestinationCountry:     "KP",
	}, risk)

	// 0.3+0.2+0.2+0.3 = 1.0, clamped to 1.0.
	if score != 1.0 {
		t.Fatalf("score = %v, want 1.0", score)
	}
	if decision != DecisionBlock {
		t.Fatalf("decision = %s, want %s", decision, DecisionBlock)
	}
	want := []string{reasonHighAmount, reasonHighVelocity, reasonHighRiskCountry}
	if len(reasons) != len(want) {
		t.Fatalf("reasons = %v, want exactly %v", reasons, want)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Fatalf("reasons[%d] = %q, want %q", i, reasons[i], want[i])
		}
	}
}

func TestScoreTransactionStrictBoundaries(t *testing.T) {
	risk := riskdata.NewStaticProvider()
	risk.Add("KP")

	// 0.3 + 0.2 = 0.5: exactly on the REVIEW boundary, must stay ALLOW.
	score, decision, _ := scoreTransaction(Transaction{
		Amount:                 20000,
		RecentTransactionCount: 6,
		DestinationCountry:     "SG",
	}, risk)
	if score != 0.5 {
		t.Fatalf("score = %v, want 0.5", score)
	}
	if decision != DecisionAllow {
		t.Fatalf("decision at 0.5 = %s, want %s", decision, DecisionAllow)
	}

	// 0.3 + 0.2 + 0.3 = 0.8: exactly on the BLOCK boundary, must stay REVIEW.
	score, decision, _ = scoreTransaction(Transaction{
		Amount:                 20000,
		RecentTransactionCount: 6,
		DestinationCountry:     "KP",
	}, risk)
	if score != 0.8 {
		t.Fatalf("score = %v, want 0.8", score)
	}
	if decision != DecisionReview {
		t.Fatalf("decision at 0.8 = %s, want %s", decision, DecisionReview)
	}
}

func TestScoreTransactionClampAboveOne(t *testing.T) {
	risk := riskdata.NewStaticProvider()
	risk.Add("KP")

	score, _, _ := scoreTransaction(Transaction{
		Amount:                 1000000,
		RecentTransactionCount: 100,
		DestinationCountry:     "KP",
	}, risk)
	if score != 1.0 {
		t.Fatalf("score = %v, want clamp to 1.0", score)
	}
}

func TestScoreTransactionQuirkCoexistence(t *testing.T) {
	// A single velocity trigger leaves the pre-clamp score at 0.2,
	// so the normal pattern note joins the triggered reason.
	score, decision, reasons := scoreTransaction(Transaction{
		Amount:                 100,
		RecentTransactionCount: 6,
		DestinationCountry:     "SG",
	}, riskdata.NewStaticProvider())

	if score != 0.2 {
		t.Fatalf("score = %v, want 0.2", score)
	}
	if decision != DecisionAllow {
		t.Fatalf("decision = %s, want %s", decision, DecisionAllow)
	}
	if len(reasons) != 2 || reasons[0] != reasonHighVelocity || reasons[1] != reasonNormalPattern {
		t.Fatalf("reasons = %v, want velocity reason followed by normal pattern note", reasons)
	}
}
