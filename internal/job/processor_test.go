package job

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	xerrors "MCPF-Flow/internal/errors"
	"MCPF-Flow/internal/workflow"
)

type fakeExecutor struct {
	processed atomic.Int32
	latency   time.Duration
	fail      error
}

func (f *fakeExecutor) Execute(ctx context.Context, job *Job) (*workflow.Result, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		return nil, f.fail
	}
	f.processed.Add(1)
	return &workflow.Result{
		Domain: job.Domain,
		Status: workflow.StatusCompleted,
	}, nil
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !stdErrors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		payload, _ := json.Marshal(workflow.FraudCheckRequest{
			SourceAgent: "fraud-detector",
			TargetAgent: "risk-analyzer",
			Transaction: workflow.Transaction{ID: fmt.Sprintf("txn-%d", i), Amount: 100},
		})
		if _, err := service.Submit(ctx, SubmitRequest{Domain: workflow.DomainBanking, Payload: payload}); err != nil {
			t.Fatalf("submit job: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(executor.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("jobs not processed in time, completed %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRetriesRetryableFailure(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	executor := &fakeExecutor{fail: xerrors.New(CodeJobProcessing, "transient backend outage")}
	processor := NewProcessor(executor, store, queue, queue)

	job := &Job{ID: "retry-1", Domain: workflow.DomainBanking, Payload: json.RawMessage(`{}`), Status: StatusPending, MaxRetries: 3}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := processor.handle(ctx, "retry-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stored, err := store.Get(ctx, "retry-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", stored.Attempts)
	}
	if stored.ErrorCode != string(CodeJobProcessing) {
		t.Fatalf("unexpected error code: %s", stored.ErrorCode)
	}

	// 可重试失败应把作业重新投递回队列。
	select {
	case requeued := <-queue.ch:
		if requeued != "retry-1" {
			t.Fatalf("unexpected requeued job: %s", requeued)
		}
	default:
		t.Fatal("expected job to be requeued")
	}
}

func TestProcessorDoesNotRetryTerminalFailure(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	// 委托被拒绝属于终态失败, 不应重试。
	executor := &fakeExecutor{fail: xerrors.New(xerrors.CodeDelegationDenied, "Principal lacks authority to delegate this action")}
	processor := NewProcessor(executor, store, queue, queue)

	job := &Job{ID: "deny-1", Domain: workflow.DomainBanking, Payload: json.RawMessage(`{}`), Status: StatusPending, MaxRetries: 3}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := processor.handle(ctx, "deny-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stored, err := store.Get(ctx, "deny-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if stored.LastError == "" || stored.ErrorCode != string(xerrors.CodeDelegationDenied) {
		t.Fatalf("unexpected failure record: %+v", stored)
	}

	select {
	case requeued := <-queue.ch:
		t.Fatalf("terminal failure must not requeue, got %s", requeued)
	default:
	}
}

type fallbackRecovery struct {
	result *workflow.Result
}

func (f *fallbackRecovery) Recover(context.Context, *Job, error) (*workflow.Result, error) {
	return f.result, nil
}

func TestProcessorAppliesRecoveryFallback(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	executor := &fakeExecutor{fail: xerrors.New(xerrors.CodeDelegationDenied, "denied")}
	fallback := &workflow.Result{Domain: workflow.DomainBanking, Status: workflow.StatusCompleted, Response: "manual review queued"}
	processor := NewProcessor(executor, store, queue, queue, WithRecoveryHandler(&fallbackRecovery{result: fallback}))

	job := &Job{ID: "rec-1", Domain: workflow.DomainBanking, Payload: json.RawMessage(`{}`), Status: StatusPending, MaxRetries: 3}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := processor.handle(ctx, "rec-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stored, err := store.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusSucceeded {
		t.Fatalf("expected degraded success, got %s", stored.Status)
	}
	if stored.Result == nil || stored.Result.Response != "manual review queued" {
		t.Fatalf("unexpected fallback result: %+v", stored.Result)
	}
}

func TestServiceSubmitIsIdempotentByID(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 3)

	payload, _ := json.Marshal(workflow.SupportRequest{
		SourceAgent: "support-bot",
		TargetAgent: "support-supervisor",
		Query:       workflow.CustomerQuery{TicketID: "TICKET-1", Question: "billing"},
	})

	first, err := service.Submit(ctx, SubmitRequest{ID: "fixed-id", Domain: workflow.DomainSupport, Payload: payload})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := service.Submit(ctx, SubmitRequest{ID: "fixed-id", Domain: workflow.DomainSupport, Payload: payload})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same job, got %s and %s", first.ID, second.ID)
	}

	// 只应入队一次。
	<-queue.ch
	select {
	case extra := <-queue.ch:
		t.Fatalf("duplicate submit must not requeue, got %s", extra)
	default:
	}
}

func TestServiceSubmitRejectsInvalidRequest(t *testing.T) {
	ctx := context.Background()
	service := NewService(NewMemoryStore(), NewMemoryQueue(8), 3)

	if _, err := service.Submit(ctx, SubmitRequest{Domain: "casino", Payload: json.RawMessage(`{}`)}); err == nil {
		t.Fatal("expected error for unsupported domain")
	} else if xerrors.CodeOf(err) != CodeJobValidation {
		t.Fatalf("unexpected error code: %s", xerrors.CodeOf(err))
	}

	if _, err := service.Submit(ctx, SubmitRequest{Domain: workflow.DomainBanking}); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
