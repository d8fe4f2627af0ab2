// Package ports defines the two outbound ports invoked at well-defined
// lifecycle points (component C10, SPEC_FULL.md §4.10): a version
// control sink and a terminal output sink. Both are narrow interfaces so
// the core engine never hard-codes a concrete implementation, grounded
// on the teacher's exec.Command git wrapper style in
// cmd/bd/doctor/git.go.
package ports

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/speckit/sdd/internal/spec"
)

// PullRequest mirrors the {url, number} shape create_pr returns.
type PullRequest struct {
	URL    string
	Number int
}

// GitPort is invoked by C7 after complete_task and complete_spec, gated
// by session preferences. Every operation here is non-blocking to the
// transaction outcome (§4.10): callers log failures as journal notes,
// never roll back on them.
type GitPort interface {
	ShouldOfferCommit(cadence spec.CommitCadence, event string) bool
	HasChanges(repoRoot string) (bool, error)
	Commit(repoRoot, message string) (sha string, err error)
	Push(repoRoot, branch string) error
	CreatePR(repoRoot, title, body, base string) (PullRequest, error)
}

// ExecGit shells out to the system git binary, mirroring the teacher's
// cmd.Dir-scoped exec.Command("git", ...) pattern used throughout
// cmd/bd/doctor/git.go.
type ExecGit struct{}

var _ GitPort = ExecGit{}

// ShouldOfferCommit implements the commit_cadence gate: "task" offers
// after every task completion, "phase" only after a phase-level event,
// "manual" never offers automatically (§3, §9: default is manual).
func (ExecGit) ShouldOfferCommit(cadence spec.CommitCadence, event string) bool {
	switch cadence {
	case spec.CadenceTask:
		return event == "complete_task" || event == "complete_spec"
	case spec.CadencePhase:
		return event == "complete_phase" || event == "complete_spec"
	case spec.CadenceManual, "":
		return false
	default:
		return false
	}
}

func (ExecGit) HasChanges(repoRoot string) (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return false, err
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}

func (ExecGit) Commit(repoRoot, message string) (string, error) {
	add := exec.Command("git", "add", "-A")
	add.Dir = repoRoot
	if err := add.Run(); err != nil {
		return "", err
	}

	commit := exec.Command("git", "commit", "-m", message)
	commit.Dir = repoRoot
	if err := commit.Run(); err != nil {
		return "", err
	}

	rev := exec.Command("git", "rev-parse", "HEAD")
	rev.Dir = repoRoot
	out, err := rev.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (ExecGit) Push(repoRoot, branch string) error {
	cmd := exec.Command("git", "push", "origin", branch) // #nosec G204 -- branch comes from git_metadata, not user stdin
	cmd.Dir = repoRoot
	return cmd.Run()
}

// CreatePR shells out to the GitHub CLI (gh), the same external-tool
// delegation style the teacher uses for anything beyond plumbing git
// itself. It is a best-effort port: ExternalToolNotFound bubbles up as a
// journal note, never a transaction failure (§4.10).
func (ExecGit) CreatePR(repoRoot, title, body, base string) (PullRequest, error) {
	cmd := exec.Command("gh", "pr", "create", "--title", title, "--body", body, "--base", base, "--json", "url,number")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return PullRequest{}, err
	}
	return parseGhPrJSON(out)
}
