// Package spec implements the in-memory spec document model: typed node
// trees with parent pointers, structural/semantic validators, and
// idempotent auto-fixers (component C2 of SPEC_FULL.md).
package spec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// NodeType is the sum type discriminant over {phase, group, task, verify}.
// Every node shares one shape (§3); behavior differs only by NodeType and
// status, never by struct layout, so a single tagged struct is the
// idiomatic Go rendition rather than an interface hierarchy.
type NodeType string

const (
	TypePhase  NodeType = "phase"
	TypeGroup  NodeType = "group"
	TypeTask   NodeType = "task"
	TypeVerify NodeType = "verify"
)

func (t NodeType) Valid() bool {
	switch t {
	case TypePhase, TypeGroup, TypeTask, TypeVerify:
		return true
	}
	return false
}

// Status is a node's lifecycle status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// DocStatus is the document-level lifecycle/bucket status (§3, §6.2).
type DocStatus string

const (
	DocPending   DocStatus = "pending"
	DocActive    DocStatus = "active"
	DocCompleted DocStatus = "completed"
	DocArchived  DocStatus = "archived"
)

func (s DocStatus) Valid() bool {
	switch s {
	case DocPending, DocActive, DocCompleted, DocArchived:
		return true
	}
	return false
}

// Bucket returns the filesystem directory name for a DocStatus (§6.2).
func (s DocStatus) Bucket() string { return string(s) }

// TaskCategory classifies the kind of work a task/leaf represents.
type TaskCategory string

const (
	CategoryImplementation TaskCategory = "implementation"
	CategoryTest           TaskCategory = "test"
	CategoryDoc            TaskCategory = "doc"
	CategoryResearch       TaskCategory = "research"
	CategoryVerification   TaskCategory = "verification"
)

// VerificationStatus is the outcome recorded by a verify node (§4.6).
type VerificationStatus string

const (
	VerificationPassed  VerificationStatus = "PASSED"
	VerificationFailed  VerificationStatus = "FAILED"
	VerificationPartial VerificationStatus = "PARTIAL"
)

func (v VerificationStatus) Valid() bool {
	switch v {
	case VerificationPassed, VerificationFailed, VerificationPartial:
		return true
	}
	return false
}

// EntryType is the kind of a journal entry (§3).
type EntryType string

const (
	EntryDecision      EntryType = "decision"
	EntryDeviation     EntryType = "deviation"
	EntryBlocker       EntryType = "blocker"
	EntryNote          EntryType = "note"
	EntryStatusChange  EntryType = "status_change"
	EntryVerification  EntryType = "verification"
	EntrySystem        EntryType = "system"
)

func (e EntryType) Valid() bool {
	switch e {
	case EntryDecision, EntryDeviation, EntryBlocker, EntryNote, EntryStatusChange, EntryVerification, EntrySystem:
		return true
	}
	return false
}

// CommitCadence governs when GitPort offers to commit (§3, §9).
type CommitCadence string

const (
	CadenceTask   CommitCadence = "task"
	CadencePhase  CommitCadence = "phase"
	CadenceManual CommitCadence = "manual"
)

// MaxDepth is the maximum node nesting depth enforced by the hierarchy
// validator (§4.2).
const MaxDepth = 6

// CurrentSchemaVersion / MinSupportedSchemaVersion bound metadata.version
// (§6.3): the engine refuses to write above Current or read below Min.
const (
	CurrentSchemaVersion    = 2
	MinSupportedSchemaVersion = 1
)

// Dependencies holds the two disjoint predecessor sets for a node.
type Dependencies struct {
	BlockedBy   []string `json:"blocked_by,omitempty"`
	SoftDepends []string `json:"soft_depends,omitempty"`
}

// Counts is the cached bottom-up aggregate for a non-leaf (I7).
type Counts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Blocked    int `json:"blocked"`
	Percent    int `json:"percent"`
}

// Add accumulates another Counts' leaf tallies (not Percent, which is
// always recomputed from Total/Completed).
func (c *Counts) Add(o Counts) {
	c.Total += o.Total
	c.Completed += o.Completed
	c.Pending += o.Pending
	c.InProgress += o.InProgress
	c.Blocked += o.Blocked
}

// Finalize recomputes Percent from Total/Completed per I7: rounded down,
// 0 if Total is 0.
func (c *Counts) Finalize() {
	if c.Total == 0 {
		c.Percent = 0
		return
	}
	c.Percent = (c.Completed * 100) / c.Total
}

// OnFailure is the verify-node failure policy (§3).
type OnFailure struct {
	RevertStatus     Status `json:"revert_status,omitempty"`
	MaxRetries       int    `json:"max_retries,omitempty"`
	ContinueOnFailure bool  `json:"continue_on_failure,omitempty"`
	Consult          bool   `json:"consult,omitempty"`
}

// VerificationResult is the recorded outcome of a verify node (§3, I8).
type VerificationResult struct {
	Date   time.Time          `json:"date"`
	Status VerificationStatus `json:"status"`
	Output string             `json:"output,omitempty"`
	Notes  string             `json:"notes,omitempty"`
}

// Commit is one recorded git commit tied to a node (§3).
type Commit struct {
	SHA       string    `json:"sha"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Node is the recursive document element (phase/group/task/verify), §3.
type Node struct {
	ID           string       `json:"id"`
	Type         NodeType     `json:"type"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Status       Status       `json:"status"`
	Metadata     Metadata     `json:"metadata,omitempty"`
	Children     []*Node      `json:"children,omitempty"`
	Dependencies Dependencies `json:"dependencies"`
	Counts       Counts       `json:"counts"`

	Parent *Node `json:"-"`
}

// IsLeaf reports whether n has no children (a task without subtasks, or
// any verify node).
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Depth returns n's distance from the document root (root phases are
// depth 1).
func (n *Node) Depth() int {
	d := 1
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// idShape maps each NodeType to the regex its ID must match (§3):
// phase-N, group-N-M, task-N-M[-K], verify-N-M[-K].
var idShape = map[NodeType]*regexp.Regexp{
	TypePhase:  regexp.MustCompile(`^phase-\d+$`),
	TypeGroup:  regexp.MustCompile(`^group-\d+-\d+$`),
	TypeTask:   regexp.MustCompile(`^task-\d+-\d+(-\d+)?$`),
	TypeVerify: regexp.MustCompile(`^verify-\d+-\d+(-\d+)?$`),
}

// ValidIDShape reports whether id matches the shape required for t (I1).
func ValidIDShape(t NodeType, id string) bool {
	re, ok := idShape[t]
	if !ok {
		return false
	}
	return re.MatchString(id)
}

// JournalEntry is one immutable append-only event (§3).
type JournalEntry struct {
	Timestamp time.Time `json:"timestamp"`
	EntryType EntryType `json:"entry_type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	TaskID    string    `json:"task_id,omitempty"`
	Author    string    `json:"author,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// SessionPreferences configures git-hook behavior (§3).
type SessionPreferences struct {
	CommitCadence CommitCadence `json:"commit_cadence,omitempty"`
	AutoVerify    bool          `json:"auto_verify,omitempty"`
}

// PullRequest describes a PR opened against the spec's branch (§3).
type PullRequest struct {
	URL    string `json:"url,omitempty"`
	Number int    `json:"number,omitempty"`
}

// GitMetadata tracks the branch/commits/PR tied to a spec (§3).
type GitMetadata struct {
	BranchName string       `json:"branch_name,omitempty"`
	BaseBranch string       `json:"base_branch,omitempty"`
	Commits    []Commit     `json:"commits,omitempty"`
	PR         *PullRequest `json:"pr,omitempty"`
}

// docMetaKnownKeys lists the DocMetadata fields handled explicitly by
// (Un)MarshalJSON; anything else round-trips through Extra.
var docMetaKnownKeys = map[string]bool{
	"title": true, "description": true, "status": true, "created_at": true,
	"last_updated": true, "owner": true, "priority": true, "version": true,
	"session_preferences": true, "git": true,
}

// DocMetadata is the top-level document metadata mapping (§3): a set of
// recognized fields plus arbitrary additional keys, preserved opaquely.
type DocMetadata struct {
	Title               string              `json:"-"`
	Description         string              `json:"-"`
	Status              DocStatus           `json:"-"`
	CreatedAt           time.Time           `json:"-"`
	LastUpdated         time.Time           `json:"-"`
	Owner               string              `json:"-"`
	Priority            string              `json:"-"`
	Version             int                 `json:"-"`
	SessionPreferences  SessionPreferences  `json:"-"`
	Git                 GitMetadata         `json:"-"`
	Extra               map[string]any      `json:"-"`
}

// MarshalJSON flattens known fields and Extra into a single JSON object.
func (m DocMetadata) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range m.Extra {
		out[k] = v
	}
	out["title"] = m.Title
	out["description"] = m.Description
	out["status"] = m.Status
	out["created_at"] = m.CreatedAt
	out["last_updated"] = m.LastUpdated
	out["owner"] = m.Owner
	out["priority"] = m.Priority
	out["version"] = m.Version
	out["session_preferences"] = m.SessionPreferences
	out["git"] = m.Git
	return json.Marshal(out)
}

// UnmarshalJSON pulls recognized keys into typed fields and preserves
// everything else in Extra.
func (m *DocMetadata) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding metadata: %w", err)
	}

	if v, ok := raw["title"]; ok {
		_ = json.Unmarshal(v, &m.Title)
	}
	if v, ok := raw["description"]; ok {
		_ = json.Unmarshal(v, &m.Description)
	}
	if v, ok := raw["status"]; ok {
		_ = json.Unmarshal(v, &m.Status)
	}
	if v, ok := raw["created_at"]; ok {
		_ = json.Unmarshal(v, &m.CreatedAt)
	}
	if v, ok := raw["last_updated"]; ok {
		_ = json.Unmarshal(v, &m.LastUpdated)
	}
	if v, ok := raw["owner"]; ok {
		_ = json.Unmarshal(v, &m.Owner)
	}
	if v, ok := raw["priority"]; ok {
		_ = json.Unmarshal(v, &m.Priority)
	}
	if v, ok := raw["version"]; ok {
		_ = json.Unmarshal(v, &m.Version)
	}
	if v, ok := raw["session_preferences"]; ok {
		_ = json.Unmarshal(v, &m.SessionPreferences)
	}
	if v, ok := raw["git"]; ok {
		_ = json.Unmarshal(v, &m.Git)
	}

	m.Extra = map[string]any{}
	for k, v := range raw {
		if docMetaKnownKeys[k] {
			continue
		}
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return fmt.Errorf("decoding metadata key %q: %w", k, err)
		}
		m.Extra[k] = decoded
	}
	return nil
}

// Document is the single top-level JSON document (§3).
type Document struct {
	SpecID    string         `json:"spec_id"`
	Metadata  DocMetadata    `json:"metadata"`
	Hierarchy []*Node        `json:"hierarchy"`
	Journal   []JournalEntry `json:"journal"`
	Counts    Counts         `json:"counts"`
}
