// Package consult implements the consultation orchestrator (component
// C8, SPEC_FULL.md §4.8): a provider abstraction over external AI CLI
// tools plus a native Anthropic API adapter, fan-out execution modes,
// and an on-disk response cache.
package consult

import (
	"context"
	"time"
)

// Provider configures one AI tool adapter (§4.8).
type Provider struct {
	Tool           string        `mapstructure:"tool"`
	Command        string        `mapstructure:"command"`
	DefaultModel   string        `mapstructure:"default_model"`
	Flags          []string      `mapstructure:"flags"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	Enabled        bool          `mapstructure:"enabled"`
}

func (p Provider) timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 90 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// FailureCategory classifies why a provider call did not succeed (§4.8
// failure policy).
type FailureCategory string

const (
	FailureNotInstalled    FailureCategory = "not_installed"
	FailureTimeout         FailureCategory = "timeout"
	FailureNonzeroExit     FailureCategory = "nonzero_exit"
	FailureMalformedOutput FailureCategory = "malformed_output"
	FailureCancelled       FailureCategory = "cancelled"
)

// ToolResponse is the common normalized shape every adapter returns
// (§4.8).
type ToolResponse struct {
	Tool       string          `json:"tool"`
	Model      string          `json:"model"`
	Text       string          `json:"text"`
	ElapsedS   float64         `json:"elapsed_s"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	Category   FailureCategory `json:"category,omitempty"`
	StderrTail string          `json:"stderr_tail,omitempty"`
	FromCache  bool            `json:"from_cache,omitempty"`
}

// Request is the input every adapter consumes.
type Request struct {
	Prompt           string
	SystemPrompt     string
	Model            string
	ToolListAllowed  []string
}

// Adapter is the single capability every provider implements: given a
// request, produce a ToolResponse (§4.8).
type Adapter interface {
	Name() string
	Call(ctx context.Context, req Request) ToolResponse
}

// ResolveModel implements resolve_model's precedence chain (§4.8):
// explicit override, then skill-level config, then the provider's own
// default, always returned deterministically.
func ResolveModel(p Provider, override string, skillModelPriority []string) string {
	if override != "" {
		return override
	}
	if len(skillModelPriority) > 0 {
		return skillModelPriority[0]
	}
	return p.DefaultModel
}
