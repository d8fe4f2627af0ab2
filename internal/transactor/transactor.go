// Package transactor applies structured mutations to a spec document
// atomically, with dry-run preview and rollback-by-omission (component
// C7, SPEC_FULL.md §4.7). Ops are a sum type, unlike the Node tagged
// struct: each op kind has distinct fields and very different apply
// logic, so an interface dispatched by a type switch is the natural fit
// grounded on the teacher's handler-per-command cmd/bd/*.go layout.
package transactor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/speckit/sdd/internal/errs"
	"github.com/speckit/sdd/internal/journal"
	"github.com/speckit/sdd/internal/ports"
	"github.com/speckit/sdd/internal/spec"
	"github.com/speckit/sdd/internal/store"
)

// Op is the sum type over every modification primitive (§4.7).
type Op interface {
	Kind() string
}

type CreateSpecOp struct {
	SpecID   string
	Title    string
	Template string
}

type SetStatusOp struct {
	NodeID string
	Status spec.Status
	Note   string
}

type CompleteTaskOp struct {
	NodeID         string
	JournalTitle   string
	JournalContent string
	EntryType      spec.EntryType
}

type MarkBlockedOp struct {
	NodeID string
	Reason string
	Type   string
	Ticket string
}

type UnblockOp struct {
	NodeID     string
	Resolution string
}

type AddJournalOp struct {
	Entry spec.JournalEntry
}

type BulkJournalOp struct {
	Entries []spec.JournalEntry
}

type AddVerificationOp struct {
	VerifyID string
	Result   spec.VerificationResult
}

// ExecuteVerificationOp delegates the actual check to a caller-supplied
// VerifyRunner (§4.6: "delegates to caller skill/command") and records
// whatever outcome it returns.
type ExecuteVerificationOp struct {
	VerifyID string
	Runner   VerifyRunner
}

// VerifyRunner performs the side-effecting verification command/skill
// for a verify node and reports its outcome.
type VerifyRunner func(ctx context.Context, n *spec.Node) (spec.VerificationResult, error)

type UpdateMetadataOp struct {
	NodeID string
	Fields map[string]any
}

type MoveSpecOp struct {
	TargetBucket store.Bucket
}

type CreateNodeOp struct {
	ParentID string
	Node     *spec.Node
}

type RemoveNodeOp struct {
	NodeID string
}

type RecalculateCountsOp struct{}

type SyncMetadataOp struct{}

type SetGitMetadataOp struct {
	BranchName string
	BaseBranch string
	Commit     *spec.Commit
}

func (CreateSpecOp) Kind() string          { return "create_spec" }
func (SetStatusOp) Kind() string           { return "set_status" }
func (CompleteTaskOp) Kind() string        { return "complete_task" }
func (MarkBlockedOp) Kind() string         { return "mark_blocked" }
func (UnblockOp) Kind() string             { return "unblock" }
func (AddJournalOp) Kind() string          { return "add_journal" }
func (BulkJournalOp) Kind() string         { return "bulk_journal" }
func (AddVerificationOp) Kind() string     { return "add_verification" }
func (ExecuteVerificationOp) Kind() string { return "execute_verification" }
func (UpdateMetadataOp) Kind() string      { return "update_metadata" }
func (MoveSpecOp) Kind() string            { return "move_spec" }
func (CreateNodeOp) Kind() string          { return "create_node" }
func (RemoveNodeOp) Kind() string          { return "remove_node" }
func (RecalculateCountsOp) Kind() string   { return "recalculate_counts" }
func (SyncMetadataOp) Kind() string        { return "sync_metadata" }
func (SetGitMetadataOp) Kind() string      { return "set_git_metadata" }

// OpError reports which op in a batch failed and why (§4.7 step 2).
type OpError struct {
	OpIndex int
	Kind    string
	Reason  string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("op[%d] %s: %s", e.OpIndex, e.Kind, e.Reason)
}

// Options configures one transaction (§4.7 step 3/5).
type Options struct {
	DryRun            bool
	RequireValidAfter bool // default true; set via NewOptions
	Backup            bool // default true
	Now               time.Time
	MoveTargetBucket  store.Bucket // only consulted for move_spec preview bookkeeping

	// Git and RepoRoot, when both set, let Apply offer a commit after
	// complete_task/complete_spec events (§4.10). Nil Git disables the
	// port entirely; this never affects whether the transaction commits.
	Git      ports.GitPort
	RepoRoot string
}

// NewOptions returns the spec-mandated defaults: require_valid_after and
// backup both true.
func NewOptions() Options {
	return Options{RequireValidAfter: true, Backup: true, Now: time.Now()}
}

// Result is the outcome of one transaction: either a committed write or
// a dry-run preview, never both (§4.7 step 5/6).
type Result struct {
	OpsApplied      []string
	OpsNoop         []string
	Issues          []spec.Issue
	RolledBack      bool
	DryRun          bool
	MovedToBucket   store.Bucket
	JournalAppended []spec.JournalEntry
}

// Apply runs the full six-step transaction protocol against the spec
// identified by specID, rooted in st.
func Apply(st *store.Store, specID string, ops []Op, opts Options) (*Result, error) {
	loc, err := st.Locate(specID)
	if err != nil {
		return nil, err
	}

	lock, err := st.AcquireLock(loc.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	doc, err := store.Load(loc.Path)
	if err != nil {
		return nil, err
	}

	clone := doc.Clone()
	idx := spec.BuildIndex(clone)

	res := &Result{}
	journalBefore := len(clone.Journal)
	preStatus := snapshotStatuses(idx)

	for i, op := range ops {
		noop, err := applyOne(idx, op, opts)
		if err != nil {
			if opErr, ok := err.(*OpError); ok {
				opErr.OpIndex = i
				return nil, opErr
			}
			return nil, &OpError{OpIndex: i, Kind: op.Kind(), Reason: err.Error()}
		}
		if noop {
			res.OpsNoop = append(res.OpsNoop, op.Kind())
		} else {
			res.OpsApplied = append(res.OpsApplied, op.Kind())
		}
	}

	issues := spec.Validate(idx)
	res.Issues = issues
	if opts.RequireValidAfter && spec.HasErrors(issues) {
		res.RolledBack = true
		return res, errs.WithDetails(errs.KindValidationFailed, "mutated document failed validation", map[string]any{
			"issues":   issues,
			"rollback": true,
		})
	}

	spec.RecomputeAll(idx)
	autoCompletionNow := opts.Now
	if autoCompletionNow.IsZero() {
		autoCompletionNow = time.Now()
	}
	recordAutoCompletions(idx, preStatus, autoCompletionNow)

	res.JournalAppended = clone.Journal[journalBefore:]

	if opts.DryRun {
		res.DryRun = true
		return res, nil
	}

	targetBucket := loc.Bucket
	for _, op := range ops {
		if m, ok := op.(MoveSpecOp); ok {
			targetBucket = m.TargetBucket
		}
	}

	if err := store.Save(loc.Path, clone, store.SaveOptions{Backup: opts.Backup}); err != nil {
		return nil, err
	}

	if targetBucket != loc.Bucket {
		if err := st.Move(specID, loc.Bucket, targetBucket); err != nil {
			return nil, err
		}
		res.MovedToBucket = targetBucket
	}

	offerGitCommit(st, specID, clone, ops, targetBucket, opts)

	return res, nil
}

// offerGitCommit invokes the git port after a persisted transaction
// whose ops include a completion event, gated by session preferences
// (§4.10). Any failure here is recorded as a journal note on a
// best-effort basis and never changes the transaction's outcome; the
// commit itself is not re-persisted into the same result.
func offerGitCommit(st *store.Store, specID string, doc *spec.Document, ops []Op, targetBucket store.Bucket, opts Options) {
	if opts.Git == nil || opts.RepoRoot == "" {
		return
	}

	event := ""
	for _, op := range ops {
		if _, ok := op.(CompleteTaskOp); ok {
			event = "complete_task"
		}
	}
	if targetBucket == store.BucketCompleted {
		event = "complete_spec"
	}
	if event == "" {
		return
	}

	cadence := doc.Metadata.SessionPreferences.CommitCadence
	if !opts.Git.ShouldOfferCommit(cadence, event) {
		return
	}

	changed, err := opts.Git.HasChanges(opts.RepoRoot)
	if err != nil || !changed {
		return
	}

	sha, err := opts.Git.Commit(opts.RepoRoot, fmt.Sprintf("sdd: %s (%s)", event, specID))
	note := fmt.Sprintf("committed %s", sha)
	if err != nil {
		note = "git commit failed: " + err.Error()
	}

	loc, locErr := st.Locate(specID)
	if locErr != nil {
		return
	}
	reDoc, loadErr := store.Load(loc.Path)
	if loadErr != nil {
		return
	}
	reIdx := spec.BuildIndex(reDoc)
	journal.Append(reIdx, spec.JournalEntry{EntryType: spec.EntrySystem, Title: "Git commit", Content: note}, time.Now())
	_ = store.Save(loc.Path, reDoc, store.SaveOptions{Backup: false})
}

// CreateSpec builds a brand-new document from a named template and
// persists it to the pending bucket (§4.7 create_spec). It runs outside
// the six-step protocol since there is no existing file to lock or
// clone.
func CreateSpec(st *store.Store, specID, title, templateName string, now time.Time) (*spec.Document, error) {
	hierarchy, err := hierarchyFromTemplate(st.Root, templateName)
	if err != nil {
		return nil, err
	}

	doc := &spec.Document{
		SpecID: specID,
		Metadata: spec.DocMetadata{
			Title:       title,
			Status:      spec.DocPending,
			CreatedAt:   now,
			LastUpdated: now,
			Version:     spec.CurrentSchemaVersion,
			SessionPreferences: spec.SessionPreferences{
				CommitCadence: spec.CadenceManual,
			},
		},
		Hierarchy: hierarchy,
	}
	idx := spec.BuildIndex(doc)
	spec.RecomputeAll(idx)
	journal.Append(idx, spec.JournalEntry{
		EntryType: spec.EntrySystem, Title: "Spec created", Content: "created from template " + templateName,
	}, now)

	if _, err := st.Create(store.BucketPending, specID, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// applyOne dispatches a single op against idx, reporting whether it was
// a no-op (§4.7: "Idempotency").
func applyOne(idx *spec.Index, op Op, opts Options) (noop bool, err error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	switch o := op.(type) {
	case CreateSpecOp:
		return false, fmt.Errorf("create_spec targets a new document and cannot run inside a transaction against an existing one; use transactor.CreateSpec")

	case SetStatusOp:
		n := idx.Node(o.NodeID)
		if n == nil {
			return false, fmt.Errorf("node %s not found", o.NodeID)
		}
		if n.Status == o.Status {
			return true, nil
		}
		applyStatusTimestamps(n, o.Status, now)
		n.Status = o.Status
		if o.Note != "" {
			journal.Append(idx, spec.JournalEntry{
				EntryType: spec.EntryStatusChange, Title: "Status changed", Content: o.Note, TaskID: o.NodeID,
			}, now)
		}
		markNeedsJournaling(idx, n, now)
		return false, nil

	case CompleteTaskOp:
		n := idx.Node(o.NodeID)
		if n == nil {
			return false, fmt.Errorf("node %s not found", o.NodeID)
		}
		if n.Status == spec.StatusCompleted {
			return true, nil
		}
		applyStatusTimestamps(n, spec.StatusCompleted, now)
		n.Status = spec.StatusCompleted
		entryType := o.EntryType
		if entryType == "" {
			entryType = spec.EntryNote
		}
		journal.Append(idx, spec.JournalEntry{
			EntryType: entryType, Title: o.JournalTitle, Content: o.JournalContent, TaskID: o.NodeID,
		}, now)
		if n.Metadata == nil {
			n.Metadata = spec.Metadata{}
		}
		n.Metadata.SetNeedsJournaling(false)
		return false, nil

	case MarkBlockedOp:
		n := idx.Node(o.NodeID)
		if n == nil {
			return false, fmt.Errorf("node %s not found", o.NodeID)
		}
		if n.Status == spec.StatusBlocked {
			return true, nil
		}
		n.Status = spec.StatusBlocked
		if n.Metadata == nil {
			n.Metadata = spec.Metadata{}
		}
		n.Metadata["blocked_reason"] = o.Reason
		n.Metadata["blocked_type"] = o.Type
		if o.Ticket != "" {
			n.Metadata["blocked_ticket"] = o.Ticket
		}
		journal.Append(idx, spec.JournalEntry{
			EntryType: spec.EntryBlocker, Title: "Blocked", Content: o.Reason, TaskID: o.NodeID,
		}, now)
		return false, nil

	case UnblockOp:
		n := idx.Node(o.NodeID)
		if n == nil {
			return false, fmt.Errorf("node %s not found", o.NodeID)
		}
		if n.Status != spec.StatusBlocked {
			return true, nil
		}
		n.Status = spec.StatusPending
		if n.Metadata != nil {
			delete(n.Metadata, "blocked_reason")
			delete(n.Metadata, "blocked_type")
			delete(n.Metadata, "blocked_ticket")
		}
		journal.Append(idx, spec.JournalEntry{
			EntryType: spec.EntryNote, Title: "Unblocked", Content: o.Resolution, TaskID: o.NodeID,
		}, now)
		return false, nil

	case AddJournalOp:
		if isDuplicateJournalEntry(idx.Doc.Journal, o.Entry, now) {
			return true, nil
		}
		journal.Append(idx, o.Entry, now)
		return false, nil

	case BulkJournalOp:
		appliedAny := false
		for _, e := range o.Entries {
			if isDuplicateJournalEntry(idx.Doc.Journal, e, now) {
				continue
			}
			journal.Append(idx, e, now)
			appliedAny = true
		}
		return !appliedAny, nil

	case AddVerificationOp:
		n := idx.Node(o.VerifyID)
		if n == nil {
			return false, fmt.Errorf("verify node %s not found", o.VerifyID)
		}
		rs := journal.NewRetryState(n)
		journal.RecordVerification(idx, o.VerifyID, o.Result, rs, now)
		return false, nil

	case ExecuteVerificationOp:
		n := idx.Node(o.VerifyID)
		if n == nil {
			return false, fmt.Errorf("verify node %s not found", o.VerifyID)
		}
		if o.Runner == nil {
			return false, fmt.Errorf("execute_verification requires a VerifyRunner")
		}
		rs := journal.NewRetryState(n)
		for {
			result, err := o.Runner(context.Background(), n)
			if err != nil {
				return false, fmt.Errorf("running verification %s: %w", o.VerifyID, err)
			}
			outcome := journal.RecordVerification(idx, o.VerifyID, result, rs, now)
			if outcome.Terminal {
				return false, nil
			}
			if !outcome.ShouldRetry {
				return false, nil
			}
		}

	case UpdateMetadataOp:
		n := idx.Node(o.NodeID)
		if n == nil {
			return false, fmt.Errorf("node %s not found", o.NodeID)
		}
		if n.Metadata == nil {
			n.Metadata = spec.Metadata{}
		}
		changed := false
		for k, v := range o.Fields {
			if !recognizedMetadataFields[k] {
				return false, fmt.Errorf("metadata field %q is not recognized", k)
			}
			if existing, ok := n.Metadata[k]; !ok || existing != v {
				n.Metadata[k] = v
				changed = true
			}
		}
		return !changed, nil

	case MoveSpecOp:
		// Bucket transition is applied by Apply after validation succeeds;
		// here it is a marker op with no clone-local effect.
		return false, nil

	case CreateNodeOp:
		parent := idx.Node(o.ParentID)
		if parent == nil {
			return false, fmt.Errorf("parent node %s not found", o.ParentID)
		}
		if idx.Exists(o.Node.ID) {
			return false, fmt.Errorf("node %s already exists", o.Node.ID)
		}
		o.Node.Parent = parent
		parent.Children = append(parent.Children, o.Node)
		rebuildIndex(idx)
		return false, nil

	case RemoveNodeOp:
		n := idx.Node(o.NodeID)
		if n == nil {
			return true, nil
		}
		if n.Parent == nil {
			return false, fmt.Errorf("cannot remove a root phase via remove_node")
		}
		siblings := n.Parent.Children
		for i, c := range siblings {
			if c.ID == o.NodeID {
				n.Parent.Children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
		rebuildIndex(idx)
		return false, nil

	case RecalculateCountsOp:
		spec.RecomputeAll(idx)
		return false, nil

	case SyncMetadataOp:
		// Maintenance no-op placeholder: metadata is already kept
		// consistent by the typed accessors; nothing to reconcile beyond
		// what RecomputeAll already does for counts/status.
		return true, nil

	case SetGitMetadataOp:
		if o.BranchName != "" {
			idx.Doc.Metadata.Git.BranchName = o.BranchName
		}
		if o.BaseBranch != "" {
			idx.Doc.Metadata.Git.BaseBranch = o.BaseBranch
		}
		if o.Commit != nil {
			idx.Doc.Metadata.Git.Commits = append(idx.Doc.Metadata.Git.Commits, *o.Commit)
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown op kind %s", op.Kind())
	}
}

// rebuildIndex re-runs BuildIndex on idx.Doc in place, used after
// structural edits (create_node/remove_node) change parent/child
// pointers that the arena cached.
func rebuildIndex(idx *spec.Index) {
	*idx = *spec.BuildIndex(idx.Doc)
}

// snapshotStatuses captures every node's status before a batch of ops
// runs, so recordAutoCompletions can tell a genuine completed transition
// from a node that was already completed coming in.
func snapshotStatuses(idx *spec.Index) map[string]spec.Status {
	before := make(map[string]spec.Status, len(idx.All()))
	for _, n := range idx.All() {
		before[n.ID] = n.Status
	}
	return before
}

// recordAutoCompletions walks the hierarchy bottom-up after
// spec.RecomputeAll and appends one AutoCompletion journal entry (§4.3
// point 2) for every non-leaf node that newly derived to completed
// during this transaction — covering cascades that reach more than one
// ancestor level (task completes group, which completes phase, in the
// same transaction), unlike RecordVerification's single-parent check.
func recordAutoCompletions(idx *spec.Index, before map[string]spec.Status, now time.Time) {
	var walk func(n *spec.Node)
	walk = func(n *spec.Node) {
		for _, c := range n.Children {
			walk(c)
		}
		if n.IsLeaf() {
			return
		}
		if n.Status == spec.StatusCompleted && before[n.ID] != spec.StatusCompleted {
			journal.RecordAutoCompletion(idx, n.ID, "parent "+n.ID+" auto-completed after all its children completed", now)
		}
	}
	for _, phase := range idx.Doc.Hierarchy {
		walk(phase)
	}
}

func applyStatusTimestamps(n *spec.Node, newStatus spec.Status, now time.Time) {
	if n.Metadata == nil {
		n.Metadata = spec.Metadata{}
	}
	if n.Status == spec.StatusPending && newStatus == spec.StatusInProgress {
		n.Metadata.SetStartedAt(now)
	}
	if newStatus == spec.StatusCompleted {
		n.Metadata.SetCompletedAt(now)
	}
}

func markNeedsJournaling(idx *spec.Index, n *spec.Node, now time.Time) {
	if n.Metadata == nil {
		n.Metadata = spec.Metadata{}
	}
	if !journal.MentionsTask(idx.Doc.Journal, n.ID) {
		n.Metadata.SetNeedsJournaling(true)
	}
}

// isDuplicateJournalEntry implements the content-hash idempotency rule:
// "adding a journal entry duplicate-keyed by content hash within the
// same second" is a silent no-op (§4.7).
func isDuplicateJournalEntry(existing []spec.JournalEntry, candidate spec.JournalEntry, now time.Time) bool {
	candidateHash := contentHash(candidate)
	for _, e := range existing {
		if now.Sub(e.Timestamp) > time.Second {
			continue
		}
		if contentHash(e) == candidateHash {
			return true
		}
	}
	return false
}

func contentHash(e spec.JournalEntry) string {
	h := sha256.New()
	h.Write([]byte(e.EntryType))
	h.Write([]byte(e.Title))
	h.Write([]byte(e.Content))
	h.Write([]byte(e.TaskID))
	return hex.EncodeToString(h.Sum(nil))
}

// recognizedMetadataFields allowlists update_metadata's writable keys
// (§3, §4.7).
var recognizedMetadataFields = map[string]bool{
	"file_path": true, "task_category": true, "estimated_hours": true,
	"actual_hours": true, "skill": true, "command": true, "on_failure": true,
}
