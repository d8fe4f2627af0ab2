package consult

import "testing"

func TestResolveModelPrecedence(t *testing.T) {
	p := Provider{DefaultModel: "claude-default"}

	if got := ResolveModel(p, "explicit-override", []string{"skill-model"}); got != "explicit-override" {
		t.Fatalf("ResolveModel() = %q, want explicit override to win", got)
	}
	if got := ResolveModel(p, "", []string{"skill-model", "second-choice"}); got != "skill-model" {
		t.Fatalf("ResolveModel() = %q, want first skill-level model", got)
	}
	if got := ResolveModel(p, "", nil); got != "claude-default" {
		t.Fatalf("ResolveModel() = %q, want the provider's own default", got)
	}
}

func TestProviderTimeoutDefaultsWhenUnset(t *testing.T) {
	p := Provider{}
	if got := p.timeout(); got.Seconds() != 90 {
		t.Fatalf("timeout() = %v, want 90s default", got)
	}
	p.TimeoutSeconds = 5
	if got := p.timeout(); got.Seconds() != 5 {
		t.Fatalf("timeout() = %v, want 5s", got)
	}
}
