package approval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientApprove(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/approvals" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Decision{
			Approved: req.Action == "radiology_analysis",
			Approver: "dr-smith",
			Reason:   "reviewed scan context",
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	decision, err := client.Approve(context.Background(), Request{
		WorkflowID: "wf-001",
		Action:     "radiology_analysis",
	})
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if !decision.Approved {
		t.Fatalf("expected approval, got reason %q", decision.Reason)
	}
	if decision.Approver != "dr-smith" {
		t.Fatalf("unexpected approver: %s", decision.Approver)
	}
}

func TestAutoApprover(t *testing.T) {
	approver := &AutoApprover{}
	decision, err := approver.Approve(context.Background(), Request{WorkflowID: "wf-002"})
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if !decision.Approved {
		t.Fatalf("auto approver must approve")
	}
}

func TestDenyApprover(t *testing.T) {
	approver := &DenyApprover{Reason: "out of office"}
	decision, err := approver.Approve(context.Background(), Request{WorkflowID: "wf-003"})
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if decision.Approved {
		t.Fatalf("deny approver must deny")
	}
	if decision.Reason != "out of office" {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
}
