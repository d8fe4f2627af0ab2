package spec

import (
	"testing"
	"time"
)

func TestMetadataTypedAccessorsRoundTrip(t *testing.T) {
	m := Metadata{}
	m.SetFilePath("internal/foo/bar.go")
	if got := m.FilePath(); got != "internal/foo/bar.go" {
		t.Fatalf("FilePath() = %q", got)
	}

	m.SetTaskCategory(CategoryTest)
	cat, ok := m.TaskCategory()
	if !ok || cat != CategoryTest {
		t.Fatalf("TaskCategory() = (%v, %v), want (test, true)", cat, ok)
	}

	m.SetActualHours(2.5)
	hours, ok := m.ActualHours()
	if !ok || hours != 2.5 {
		t.Fatalf("ActualHours() = (%v, %v), want (2.5, true)", hours, ok)
	}

	m.SetNeedsJournaling(true)
	if !m.NeedsJournaling() {
		t.Fatal("NeedsJournaling() should be true after SetNeedsJournaling(true)")
	}
}

func TestMetadataVerificationResultRoundTrip(t *testing.T) {
	m := Metadata{}
	if _, ok := m.VerificationResult(); ok {
		t.Fatal("VerificationResult() should report absent before being set")
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.SetVerificationResult(VerificationResult{Date: now, Status: VerificationPassed, Notes: "looks good"})

	vr, ok := m.VerificationResult()
	if !ok {
		t.Fatal("VerificationResult() should report present after being set")
	}
	if vr.Status != VerificationPassed || vr.Notes != "looks good" {
		t.Fatalf("VerificationResult() = %+v, status/notes mismatch", vr)
	}
	if !vr.Date.Equal(now) {
		t.Fatalf("VerificationResult().Date = %v, want %v", vr.Date, now)
	}
}

func TestMetadataTimestampFieldsRoundTripAsRFC3339(t *testing.T) {
	m := Metadata{}
	when := time.Date(2026, 5, 4, 9, 30, 0, 0, time.FixedZone("", -5*3600))
	m.SetStartedAt(when)

	got, ok := m.StartedAt()
	if !ok {
		t.Fatal("StartedAt() should report present after SetStartedAt")
	}
	if !got.Equal(when) {
		t.Fatalf("StartedAt() = %v, want %v", got, when)
	}

	raw, stored := m["started_at"].(string)
	if !stored {
		t.Fatal("started_at must be stored as a string for JSON round-tripping")
	}
	if _, err := time.Parse(time.RFC3339Nano, raw); err != nil {
		t.Fatalf("stored started_at is not RFC3339Nano: %v", err)
	}
}

func TestMetadataAppendCommitAccumulates(t *testing.T) {
	m := Metadata{}
	m.AppendCommit(Commit{SHA: "aaa111", Message: "first"})
	m.AppendCommit(Commit{SHA: "bbb222", Message: "second"})

	commits := m.Commits()
	if len(commits) != 2 {
		t.Fatalf("Commits() returned %d, want 2", len(commits))
	}
	if commits[0].SHA != "aaa111" || commits[1].SHA != "bbb222" {
		t.Fatalf("Commits() = %+v, order not preserved", commits)
	}
}

func TestMetadataCloneIsIndependentMap(t *testing.T) {
	m := Metadata{}
	m.SetFilePath("a.go")
	clone := m.Clone()
	clone.SetFilePath("b.go")

	if m.FilePath() != "a.go" {
		t.Fatal("Clone must not share the underlying map with the original")
	}
}

func TestMetadataCloneNil(t *testing.T) {
	var m Metadata
	if got := m.Clone(); got != nil {
		t.Fatalf("Clone() of a nil Metadata = %v, want nil", got)
	}
}
