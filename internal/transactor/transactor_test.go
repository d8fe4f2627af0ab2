package transactor

import (
	"testing"
	"time"

	"github.com/speckit/sdd/internal/ports"
	"github.com/speckit/sdd/internal/spec"
	"github.com/speckit/sdd/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New() error: %v", err)
	}
	return s
}

func seedSpec(t *testing.T, st *store.Store, specID string) {
	t.Helper()
	doc := &spec.Document{
		SpecID:   specID,
		Metadata: spec.DocMetadata{Title: "Sample", Status: spec.DocPending, Version: spec.CurrentSchemaVersion},
		Hierarchy: []*spec.Node{
			{
				ID: "phase-1", Type: spec.TypePhase, Title: "Phase one", Status: spec.StatusPending, Metadata: spec.Metadata{},
				Children: []*spec.Node{
					{ID: "task-1-1", Type: spec.TypeTask, Title: "Do the thing", Status: spec.StatusPending, Metadata: spec.Metadata{}},
				},
			},
		},
	}
	idx := spec.BuildIndex(doc)
	spec.RecomputeAll(idx)
	if _, err := st.Create(store.BucketPending, specID, doc); err != nil {
		t.Fatalf("seeding spec: %v", err)
	}
}

func TestCreateSpecUsesDefaultTemplate(t *testing.T) {
	st := newTestStore(t)
	doc, err := CreateSpec(st, "add-login-20260305-1", "Add login", "", time.Now())
	if err != nil {
		t.Fatalf("CreateSpec() error: %v", err)
	}
	if len(doc.Hierarchy) != 1 || doc.Hierarchy[0].ID != "phase-1" {
		t.Fatalf("expected default template's phase-1, got %+v", doc.Hierarchy)
	}
	if doc.Metadata.SessionPreferences.CommitCadence != spec.CadenceManual {
		t.Fatalf("CommitCadence = %s, want manual default", doc.Metadata.SessionPreferences.CommitCadence)
	}
	if len(doc.Journal) != 1 {
		t.Fatalf("expected a single creation journal entry, got %d", len(doc.Journal))
	}
}

func TestCreateSpecUnknownTemplateFallsBackToDefault(t *testing.T) {
	st := newTestStore(t)
	doc, err := CreateSpec(st, "add-x-20260305-1", "Add X", "not-a-real-template", time.Now())
	if err != nil {
		t.Fatalf("CreateSpec() error: %v", err)
	}
	if len(doc.Hierarchy) != 1 || doc.Hierarchy[0].ID != "phase-1" {
		t.Fatalf("expected fallback to default template, got %+v", doc.Hierarchy)
	}
}

func TestApplySetStatusPersists(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "set-status-20260305-1")

	result, err := Apply(st, "set-status-20260305-1", []Op{
		SetStatusOp{NodeID: "task-1-1", Status: spec.StatusInProgress},
	}, NewOptions())
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if len(result.OpsApplied) != 1 {
		t.Fatalf("OpsApplied = %v, want 1 entry", result.OpsApplied)
	}

	loc, _ := st.Locate("set-status-20260305-1")
	doc, err := store.Load(loc.Path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	idx := spec.BuildIndex(doc)
	if idx.Node("task-1-1").Status != spec.StatusInProgress {
		t.Fatal("status change was not persisted")
	}
}

func TestApplySetStatusIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "idempotent-20260305-1")

	opts := NewOptions()
	if _, err := Apply(st, "idempotent-20260305-1", []Op{SetStatusOp{NodeID: "task-1-1", Status: spec.StatusInProgress}}, opts); err != nil {
		t.Fatalf("first Apply() error: %v", err)
	}
	result, err := Apply(st, "idempotent-20260305-1", []Op{SetStatusOp{NodeID: "task-1-1", Status: spec.StatusInProgress}}, opts)
	if err != nil {
		t.Fatalf("second Apply() error: %v", err)
	}
	if len(result.OpsNoop) != 1 || len(result.OpsApplied) != 0 {
		t.Fatalf("expected the repeated set_status to be a no-op, got %+v", result)
	}
}

func TestApplyDryRunDoesNotPersist(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "dry-run-20260305-1")

	opts := NewOptions()
	opts.DryRun = true
	result, err := Apply(st, "dry-run-20260305-1", []Op{SetStatusOp{NodeID: "task-1-1", Status: spec.StatusInProgress}}, opts)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if !result.DryRun {
		t.Fatal("expected DryRun result")
	}

	loc, _ := st.Locate("dry-run-20260305-1")
	doc, _ := store.Load(loc.Path)
	idx := spec.BuildIndex(doc)
	if idx.Node("task-1-1").Status != spec.StatusPending {
		t.Fatal("dry-run must not persist any mutation")
	}
}

func TestApplyRollsBackOnValidationFailure(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "rollback-20260305-1")

	_, err := Apply(st, "rollback-20260305-1", []Op{
		UpdateMetadataOp{NodeID: "task-1-1", Fields: map[string]any{"skill": "go"}},
		SetStatusOp{NodeID: "task-1-1", Status: "not-a-real-status"},
	}, NewOptions())
	if err == nil {
		t.Fatal("expected an error: an invalid status should fail structural validation")
	}

	loc, _ := st.Locate("rollback-20260305-1")
	doc, _ := store.Load(loc.Path)
	idx := spec.BuildIndex(doc)
	if idx.Node("task-1-1").Status != spec.StatusPending {
		t.Fatal("a rolled-back transaction must not persist any op, including earlier successful ones in the batch")
	}
}

func TestApplyCompleteTaskClearsNeedsJournaling(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "complete-20260305-1")

	_, err := Apply(st, "complete-20260305-1", []Op{
		CompleteTaskOp{NodeID: "task-1-1", JournalTitle: "Done", JournalContent: "finished the thing"},
	}, NewOptions())
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	loc, _ := st.Locate("complete-20260305-1")
	doc, _ := store.Load(loc.Path)
	idx := spec.BuildIndex(doc)
	task := idx.Node("task-1-1")
	if task.Status != spec.StatusCompleted {
		t.Fatal("complete_task should mark the node completed")
	}
	if task.Metadata.NeedsJournaling() {
		t.Fatal("complete_task's own journal entry should clear needs_journaling")
	}
	if idx.Node("phase-1").Status != spec.StatusCompleted {
		t.Fatal("phase-1 had only one task, so it should auto-complete alongside it")
	}
	if len(doc.Journal) != 2 {
		t.Fatalf("expected the task's own entry plus one AutoCompletion entry for phase-1, got %d", len(doc.Journal))
	}
	auto := doc.Journal[1]
	if auto.Title != "AutoCompletion" || auto.TaskID != "phase-1" {
		t.Fatalf("expected second entry to be phase-1's AutoCompletion, got %+v", auto)
	}
}

func TestApplyMoveSpecRelocatesBucket(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "move-20260305-1")

	result, err := Apply(st, "move-20260305-1", []Op{MoveSpecOp{TargetBucket: store.BucketActive}}, NewOptions())
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if result.MovedToBucket != store.BucketActive {
		t.Fatalf("MovedToBucket = %s, want active", result.MovedToBucket)
	}
	loc, err := st.Locate("move-20260305-1")
	if err != nil || loc.Bucket != store.BucketActive {
		t.Fatalf("expected the spec to now live in the active bucket, got %+v err=%v", loc, err)
	}
}

func TestApplyDuplicateJournalEntryWithinOneSecondIsNoop(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "dedup-20260305-1")

	opts := NewOptions()
	entry := spec.JournalEntry{EntryType: spec.EntryNote, Title: "Note", Content: "same content", TaskID: "task-1-1"}
	if _, err := Apply(st, "dedup-20260305-1", []Op{AddJournalOp{Entry: entry}}, opts); err != nil {
		t.Fatalf("first Apply() error: %v", err)
	}
	result, err := Apply(st, "dedup-20260305-1", []Op{AddJournalOp{Entry: entry}}, opts)
	if err != nil {
		t.Fatalf("second Apply() error: %v", err)
	}
	if len(result.OpsNoop) != 1 {
		t.Fatalf("expected the duplicate add_journal within the same second to be a no-op, got %+v", result)
	}
}

func TestApplyCreateThenRemoveNode(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "structural-20260305-1")

	newTask := &spec.Node{ID: "task-1-2", Type: spec.TypeTask, Title: "Extra", Status: spec.StatusPending}
	if _, err := Apply(st, "structural-20260305-1", []Op{CreateNodeOp{ParentID: "phase-1", Node: newTask}}, NewOptions()); err != nil {
		t.Fatalf("create_node Apply() error: %v", err)
	}

	loc, _ := st.Locate("structural-20260305-1")
	doc, _ := store.Load(loc.Path)
	idx := spec.BuildIndex(doc)
	if !idx.Exists("task-1-2") {
		t.Fatal("task-1-2 should exist after create_node")
	}

	if _, err := Apply(st, "structural-20260305-1", []Op{RemoveNodeOp{NodeID: "task-1-2"}}, NewOptions()); err != nil {
		t.Fatalf("remove_node Apply() error: %v", err)
	}
	loc, _ = st.Locate("structural-20260305-1")
	doc, _ = store.Load(loc.Path)
	idx = spec.BuildIndex(doc)
	if idx.Exists("task-1-2") {
		t.Fatal("task-1-2 should no longer exist after remove_node")
	}
}

func TestApplyUnknownNodeReturnsOpError(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "unknown-node-20260305-1")

	_, err := Apply(st, "unknown-node-20260305-1", []Op{SetStatusOp{NodeID: "task-9-9", Status: spec.StatusInProgress}}, NewOptions())
	if err == nil {
		t.Fatal("expected an error for an op targeting a nonexistent node")
	}
	opErr, ok := err.(*OpError)
	if !ok {
		t.Fatalf("expected *OpError, got %T: %v", err, err)
	}
	if opErr.OpIndex != 0 {
		t.Fatalf("OpIndex = %d, want 0", opErr.OpIndex)
	}
}

// fakeGit is a minimal ports.GitPort double used to exercise the §4.10
// post-commit wiring without shelling out to a real git binary.
type fakeGit struct {
	offers    bool
	hasChange bool
	sha       string
	commitErr error
}

func (f *fakeGit) ShouldOfferCommit(spec.CommitCadence, string) bool { return f.offers }
func (f *fakeGit) HasChanges(string) (bool, error)                  { return f.hasChange, nil }
func (f *fakeGit) Commit(string, string) (string, error)            { return f.sha, f.commitErr }
func (f *fakeGit) Push(string, string) error                        { return nil }
func (f *fakeGit) CreatePR(string, string, string, string) (ports.PullRequest, error) {
	return ports.PullRequest{}, nil
}

func TestOfferGitCommitAppendsJournalNoteOnSuccess(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "git-commit-20260305-1")

	opts := NewOptions()
	opts.Git = &fakeGit{offers: true, hasChange: true, sha: "abc123"}
	opts.RepoRoot = "/tmp/repo"

	_, err := Apply(st, "git-commit-20260305-1", []Op{
		CompleteTaskOp{NodeID: "task-1-1", JournalTitle: "Done", JournalContent: "finished"},
	}, opts)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	loc, _ := st.Locate("git-commit-20260305-1")
	doc, _ := store.Load(loc.Path)
	found := false
	for _, e := range doc.Journal {
		if e.EntryType == spec.EntrySystem && e.Title == "Git commit" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a system journal entry recording the git commit outcome")
	}
}

func TestOfferGitCommitNeverFailsTheTransaction(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "git-commit-fail-20260305-1")

	opts := NewOptions()
	opts.Git = &fakeGit{offers: true, hasChange: true, commitErr: errGitFailure{}}
	opts.RepoRoot = "/tmp/repo"

	_, err := Apply(st, "git-commit-fail-20260305-1", []Op{
		CompleteTaskOp{NodeID: "task-1-1", JournalTitle: "Done", JournalContent: "finished"},
	}, opts)
	if err != nil {
		t.Fatalf("a failing git commit must never fail Apply(), got: %v", err)
	}
}

type errGitFailure struct{}

func (errGitFailure) Error() string { return "simulated git failure" }

func TestOfferGitCommitSkippedWhenCadenceDeclines(t *testing.T) {
	st := newTestStore(t)
	seedSpec(t, st, "git-skip-20260305-1")

	opts := NewOptions()
	opts.Git = &fakeGit{offers: false}
	opts.RepoRoot = "/tmp/repo"

	_, err := Apply(st, "git-skip-20260305-1", []Op{
		CompleteTaskOp{NodeID: "task-1-1", JournalTitle: "Done", JournalContent: "finished"},
	}, opts)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	loc, _ := st.Locate("git-skip-20260305-1")
	doc, _ := store.Load(loc.Path)
	for _, e := range doc.Journal {
		if e.Title == "Git commit" {
			t.Fatal("no git commit journal entry should appear when ShouldOfferCommit declines")
		}
	}
}
