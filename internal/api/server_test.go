package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"MCPF-Flow/internal/auth"
	"MCPF-Flow/internal/job"
	"MCPF-Flow/internal/workflow"
)

func newTestServer(t *testing.T) (*Server, *job.MemoryStore) {
	t.Helper()
	store := job.NewMemoryStore()
	queue := job.NewMemoryQueue(16)
	svc := job.NewService(store, queue, 3)
	return NewServer(":0", svc), store
}

func submitBody(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(workflow.FraudCheckRequest{
		SourceAgent: "fraud-detector",
		TargetAgent: "risk-analyzer",
		Transaction: workflow.Transaction{ID: "txn-1", Amount: 120},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body, err := json.Marshal(job.SubmitRequest{Domain: workflow.DomainBanking, Payload: payload})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return body
}

func TestSubmitWorkflowAccepted(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewReader(submitBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: got %d want %d, body %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var created job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Status != job.StatusPending {
		t.Fatalf("unexpected job: %+v", created)
	}
}

func TestSubmitWorkflowRejectsUnknownDomain(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	body, _ := json.Marshal(job.SubmitRequest{Domain: "casino", Payload: json.RawMessage(`{}`)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestWorkflowDetail(t *testing.T) {
	server, store := newTestServer(t)
	handler := server.Handler()

	sample := &job.Job{
		ID:         "job-success",
		Domain:     workflow.DomainBanking,
		Payload:    json.RawMessage(`{}`),
		Status:     job.StatusSucceeded,
		Attempts:   1,
		MaxRetries: 3,
		Result: &workflow.Result{
			Domain:   workflow.DomainBanking,
			Decision: workflow.DecisionAllow,
			Status:   workflow.StatusCompleted,
		},
	}
	if err := store.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample job: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/job-success", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var got job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != sample.ID {
		t.Fatalf("unexpected job id: got %q want %q", got.ID, sample.ID)
	}
	if got.Result == nil || got.Result.Decision != workflow.DecisionAllow {
		t.Fatalf("unexpected job result: %+v", got.Result)
	}
}

func TestWorkflowDetailErrors(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/job-1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/missing", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestWorkflowStats(t *testing.T) {
	server, store := newTestServer(t)
	handler := server.Handler()

	jobs := []*job.Job{
		{ID: "a", Domain: workflow.DomainBanking, Payload: json.RawMessage(`{}`), Status: job.StatusPending, MaxRetries: 3},
		{ID: "b", Domain: workflow.DomainSupport, Payload: json.RawMessage(`{}`), Status: job.StatusPending, MaxRetries: 3},
	}
	for _, sample := range jobs {
		if err := store.Create(context.Background(), sample); err != nil {
			t.Fatalf("create job %s: %v", sample.ID, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/stats?domain=banking", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", rec.Code, rec.Body.String())
	}
	var stats job.JobStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestListRejectsBadQueryParams(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	for _, target := range []string{
		"/api/v1/workflows?limit=abc",
		"/api/v1/workflows?status=bogus",
		"/api/v1/workflows?domain=casino",
		"/api/v1/workflows?since=yesterday",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("target %s: expected status %d, got %d", target, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestAuthGuardsWorkflowEndpoints(t *testing.T) {
	store := job.NewMemoryStore()
	queue := job.NewMemoryQueue(16)
	svc := job.NewService(store, queue, 3)

	users, err := auth.NewMemoryStore([]auth.Seed{
		{Username: "operator", Password: "secret", Permissions: []string{auth.PermWorkflowsRead, auth.PermWorkflowsWrite}},
	})
	if err != nil {
		t.Fatalf("build user store: %v", err)
	}
	authSvc, err := auth.NewService(context.Background(), auth.Config{
		Mode: auth.ModeJWT,
		JWT:  auth.JWTOptions{Secret: "test-secret"},
	}, users)
	if err != nil {
		t.Fatalf("build auth service: %v", err)
	}
	server := NewServer(":0", svc, WithAuthService(authSvc))
	handler := server.Handler()

	// 未携带令牌应被拒绝。
	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}

	// 通过令牌端点换取访问令牌。
	tokenBody, _ := json.Marshal(auth.TokenRequest{Username: "operator", Password: "secret"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(tokenBody))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("token request failed: %d body %s", rec.Code, rec.Body.String())
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode token pair: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d body %s", http.StatusOK, rec.Code, rec.Body.String())
	}
}
