package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"MCPF-Flow/internal/trust"
)

func TestClientCheckDelegation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/delegations/check" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req checkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Action != "fraud_analysis" {
			_ = json.NewEncoder(w).Encode(checkResponse{
				Allowed: false,
				Reason:  "Delegation does not permit action: " + req.Action,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(checkResponse{
			Allowed: true,
			Policy: &trust.DelegationPolicy{
				ID: "delegation-001",
				Constraints: trust.PolicyConstraints{
					MaxDurationSeconds: 3600,
					Scope:              "fraud_analysis",
				},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	decision, err := client.CheckDelegation(context.Background(), "did:wba:bank:orchestrator", "did:wba:bank:fraud-detector", "fraud_analysis")
	if err != nil {
		t.Fatalf("CheckDelegation returned error: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected delegation to be allowed, got reason %q", decision.Reason)
	}
	if decision.Policy.ID != "delegation-001" {
		t.Fatalf("unexpected policy id: %s", decision.Policy.ID)
	}

	decision, err = client.CheckDelegation(context.Background(), "did:wba:bank:orchestrator", "did:wba:bank:fraud-detector", "account_closure")
	if err != nil {
		t.Fatalf("CheckDelegation returned error: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected delegation to be denied")
	}
	if decision.Reason != "Delegation does not permit action: account_closure" {
		t.Fatalf("denial reason was rewritten: %q", decision.Reason)
	}
}

func TestStaticCheckerDefaultsToDeny(t *testing.T) {
	checker := NewStaticChecker()
	checker.Allow("did:a", "did:b", "triage", trust.DelegationPolicy{ID: "p1"})

	decision, err := checker.CheckDelegation(context.Background(), "did:a", "did:b", "triage")
	if err != nil {
		t.Fatalf("CheckDelegation returned error: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected registered rule to allow")
	}

	decision, err = checker.CheckDelegation(context.Background(), "did:a", "did:b", "discharge")
	if err != nil {
		t.Fatalf("CheckDelegation returned error: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected unregistered combination to be denied")
	}
}
