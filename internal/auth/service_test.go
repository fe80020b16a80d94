package auth

import (
	"context"
	"errors"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := NewMemoryStore([]Seed{
		{Username: "operator", Password: "secret", Roles: []string{"operator"}, Permissions: []string{PermWorkflowsRead, PermWorkflowsWrite}},
		{Username: "viewer", Password: "readonly", Permissions: []string{PermWorkflowsRead}},
		{Username: "ghost", Password: "gone", Disabled: true},
	})
	if err != nil {
		t.Fatalf("build store: %v", err)
	}
	svc, err := NewService(context.Background(), Config{
		Mode: ModeJWT,
		JWT:  JWTOptions{Secret: "test-secret", Issuer: "mcpf-flow"},
	}, store)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func TestAuthenticateIssuesVerifiableToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Authenticate(ctx, TokenRequest{Username: "operator", Password: "secret"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if pair.AccessToken == "" || pair.TokenType != "Bearer" {
		t.Fatalf("unexpected token pair: %+v", pair)
	}

	subject, err := svc.AuthenticateRequest(ctx, "Bearer "+pair.AccessToken)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if subject.Username != "operator" {
		t.Fatalf("unexpected subject: %+v", subject)
	}
	if err := subject.Authorize(PermWorkflowsWrite); err != nil {
		t.Fatalf("authorize: %v", err)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, TokenRequest{Username: "operator", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, TokenRequest{Username: "nobody", Password: "x"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, TokenRequest{Username: "ghost", Password: "gone"}); !errors.Is(err, ErrSubjectRevoked) {
		t.Fatalf("expected revoked subject, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, TokenRequest{GrantType: "client_credentials", Username: "operator", Password: "secret"}); !errors.Is(err, ErrUnsupportedGrant) {
		t.Fatalf("expected unsupported grant, got %v", err)
	}
}

func TestAuthenticateRequestRejectsTamperedToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Authenticate(ctx, TokenRequest{Username: "viewer", Password: "readonly"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	tampered := pair.AccessToken + "x"
	if _, err := svc.AuthenticateRequest(ctx, "Bearer "+tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}

	// 刷新令牌不能充当访问令牌。
	if _, err := svc.AuthenticateRequest(ctx, "Bearer "+pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh token to be rejected, got %v", err)
	}
}

func TestSubjectAuthorize(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Authenticate(ctx, TokenRequest{Username: "viewer", Password: "readonly"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	subject, err := svc.AuthenticateRequest(ctx, "Bearer "+pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := subject.Authorize(PermWorkflowsRead); err != nil {
		t.Fatalf("read should be allowed: %v", err)
	}
	if err := subject.Authorize(PermWorkflowsWrite); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("write should be denied, got %v", err)
	}
}
