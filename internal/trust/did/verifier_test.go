package did

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"MCPF-Flow/internal/trust/registry"
)

func TestClientVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/credentials/verify" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(verifyResponse{Valid: req.DID == "did:wba:bank:fraud-detector"})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	valid, err := client.Verify(context.Background(), "did:wba:bank:fraud-detector")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !valid {
		t.Fatalf("expected credential to be valid")
	}

	valid, err = client.Verify(context.Background(), "did:wba:bank:unknown")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if valid {
		t.Fatalf("expected credential to be invalid")
	}
}

func TestClientVerifyRejectsEmptyDID(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://localhost:9"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := client.Verify(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty DID")
	}
}

type fakeAnchorReader struct {
	anchors map[string]registry.Anchor
}

func (f *fakeAnchorReader) AnchorOf(_ context.Context, did string) (registry.Anchor, error) {
	return f.anchors[did], nil
}

func (f *fakeAnchorReader) FetchChainSnapshot(context.Context) (registry.ChainSnapshot, error) {
	return registry.ChainSnapshot{}, nil
}

func (f *fakeAnchorReader) Close() {}

func TestAnchoredVerifier(t *testing.T) {
	remote := NewStaticVerifier()
	remote.Set("did:wba:bank:anchored", true)
	remote.Set("did:wba:bank:revoked", true)
	remote.Set("did:wba:bank:unanchored", true)
	remote.Set("did:wba:bank:invalid", false)

	reader := &fakeAnchorReader{anchors: map[string]registry.Anchor{
		"did:wba:bank:anchored": {Digest: [32]byte{1}, Revoked: false},
		"did:wba:bank:revoked":  {Digest: [32]byte{2}, Revoked: true},
	}}
	verifier := NewAnchoredVerifier(remote, reader)

	cases := []struct {
		did  string
		want bool
	}{
		{"did:wba:bank:anchored", true},
		{"did:wba:bank:revoked", false},
		{"did:wba:bank:unanchored", false},
		{"did:wba:bank:invalid", false},
	}
	for _, tc := range cases {
		got, err := verifier.Verify(context.Background(), tc.did)
		if err != nil {
			t.Fatalf("Verify(%s) returned error: %v", tc.did, err)
		}
		if got != tc.want {
			t.Fatalf("Verify(%s) = %v, want %v", tc.did, got, tc.want)
		}
	}
}

func TestAnchoredVerifierWithoutReader(t *testing.T) {
	remote := NewStaticVerifier()
	remote.Set("did:wba:bank:plain", true)

	verifier := NewAnchoredVerifier(remote, nil)
	valid, err := verifier.Verify(context.Background(), "did:wba:bank:plain")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !valid {
		t.Fatalf("expected remote-only verification to pass")
	}
}
