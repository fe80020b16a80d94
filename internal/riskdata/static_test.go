package riskdata

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStaticProviderDefaults(t *testing.T) {
	provider := NewStaticProvider()
	if !provider.IsHighRiskCountry("KP") {
		t.Fatalf("expected built-in list to contain KP")
	}
	if !provider.IsHighRiskCountry("kp") {
		t.Fatalf("matching should ignore case")
	}
	if provider.IsHighRiskCountry("SG") {
		t.Fatalf("SG should not be high risk by default")
	}
	if provider.IsHighRiskCountry("") {
		t.Fatalf("empty country must never match")
	}
}

func TestStaticProviderLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.json")
	content := `{"high_risk_countries": ["aa", "BB", " cc "]}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	provider := NewStaticProvider()
	if err := provider.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile returned error: %v", err)
	}

	for _, code := range []string{"AA", "BB", "CC"} {
		if !provider.IsHighRiskCountry(code) {
			t.Fatalf("expected %s to be high risk after load", code)
		}
	}
	if provider.IsHighRiskCountry("KP") {
		t.Fatalf("load must replace the built-in list")
	}

	got := provider.Countries()
	want := []string{"AA", "BB", "CC"}
	if len(got) != len(want) {
		t.Fatalf("Countries() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Countries() = %v, want %v", got, want)
		}
	}
}
