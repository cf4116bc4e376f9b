package proxy

import (
	"errors"
	"testing"
)

func mustRule(t *testing.T, prefix, target string) Rule {
	t.Helper()
	r, err := ParseRule(prefix, target)
	if err != nil {
		t.Fatalf("ParseRule(%q, %q): %v", prefix, target, err)
	}
	return r
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		target  string
		wantErr bool
	}{
		{"origin", "/api", "http://localhost:8000", false},
		{"origin with slash", "/api", "http://localhost:8000/", false},
		{"https", "/api", "https://backend.local", false},
		{"missing slash", "api", "http://localhost:8000", true},
		{"empty prefix", "", "http://localhost:8000", true},
		{"ws scheme", "/api", "ws://localhost:8000", true},
		{"no host", "/api", "http://", true},
		{"path", "/api", "http://localhost:8000/v1", true},
		{"query", "/api", "http://localhost:8000?x=1", true},
		{"userinfo", "/api", "http://u:p@localhost:8000", true},
		{"garbage", "/api", "://invalid", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRule(tt.prefix, tt.target)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRule) {
					t.Fatalf("expected ErrInvalidRule, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.Target.Path != "" {
				t.Errorf("expected empty target path, got %q", r.Target.Path)
			}
		})
	}
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	want := map[string]bool{"/transcribe": true, "/process_content": true}
	for _, r := range rules {
		if !want[r.Prefix] {
			t.Errorf("unexpected prefix %q", r.Prefix)
		}
		if r.Target.String() != DefaultBackend {
			t.Errorf("rule %q: expected target %s, got %s", r.Prefix, DefaultBackend, r.Target)
		}
	}
	if _, err := NewTable(rules); err != nil {
		t.Fatalf("default rules rejected: %v", err)
	}
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	_, err := NewTable([]Rule{
		mustRule(t, "/api", "http://localhost:8000"),
		mustRule(t, "/api", "http://localhost:9000"),
	})
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestNewTableRejectsOverlap(t *testing.T) {
	_, err := NewTable([]Rule{
		mustRule(t, "/transcribe/batch", "http://localhost:9000"),
		mustRule(t, "/transcribe", "http://localhost:8000"),
	})
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestNewTableRejectsMissingTarget(t *testing.T) {
	_, err := NewTable([]Rule{{Prefix: "/api"}})
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestMatch(t *testing.T) {
	table, err := NewTable(DefaultRules())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path      string
		wantMatch bool
		prefix    string
	}{
		{"/transcribe", true, "/transcribe"},
		{"/transcribe/", true, "/transcribe"},
		{"/transcribe/jobs/42", true, "/transcribe"},
		{"/transcribe-v2", true, "/transcribe"},
		{"/process_content", true, "/process_content"},
		{"/process_content/summary", true, "/process_content"},
		{"/Transcribe", false, ""},
		{"/api/transcribe", false, ""},
		{"/", false, ""},
		{"/src/main.ts", false, ""},
		{"/process", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r, ok := table.Match(tt.path)
			if ok != tt.wantMatch {
				t.Fatalf("Match(%q) matched=%v, want %v", tt.path, ok, tt.wantMatch)
			}
			if ok && r.Prefix != tt.prefix {
				t.Errorf("Match(%q) prefix=%q, want %q", tt.path, r.Prefix, tt.prefix)
			}
		})
	}
}

func TestMatchIndependentOfRuleOrder(t *testing.T) {
	a := mustRule(t, "/transcribe", "http://localhost:8000")
	b := mustRule(t, "/process_content", "http://localhost:8001")

	t1, err := NewTable([]Rule{a, b})
	if err != nil {
		t.Fatal(err)
	}
	t2, err := NewTable([]Rule{b, a})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/transcribe", "/process_content/x", "/other"} {
		r1, ok1 := t1.Match(p)
		r2, ok2 := t2.Match(p)
		if ok1 != ok2 || r1.Prefix != r2.Prefix {
			t.Errorf("path %q: order-dependent result (%v %q) vs (%v %q)", p, ok1, r1.Prefix, ok2, r2.Prefix)
		}
	}
}

func TestTargetsAreDistinct(t *testing.T) {
	table, err := NewTable(DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	targets := table.Targets()
	if len(targets) != 1 {
		t.Fatalf("expected 1 distinct target, got %d", len(targets))
	}
	if targets[0].String() != DefaultBackend {
		t.Errorf("expected %s, got %s", DefaultBackend, targets[0])
	}
}

func TestRulesReturnsCopy(t *testing.T) {
	table, err := NewTable(DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	rules := table.Rules()
	rules[0].Prefix = "/mutated"
	if _, ok := table.Match("/mutated"); ok {
		t.Error("mutating Rules() result changed the table")
	}
}
