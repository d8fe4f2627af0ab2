package spec

import (
	"encoding/json"
	"time"
)

// Metadata is a node's free-form metadata bag (§3). Recognized keys have
// typed accessors below; unrecognized keys simply live in the map and
// round-trip through JSON untouched, which is exactly what §3 asks for
// ("others are preserved opaquely") without any custom marshaling.
type Metadata map[string]any

// decodeInto round-trips v through JSON into target, so callers can pull
// a typed value out of a map[string]any (the shape produced by decoding
// JSON, or by another accessor's typed Set).
func decodeInto(v any, target any) bool {
	if v == nil {
		return false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return false
	}
	return true
}

func (m Metadata) str(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (m Metadata) FilePath() string {
	s, _ := m.str("file_path")
	return s
}

func (m Metadata) SetFilePath(p string) { m["file_path"] = p }

func (m Metadata) TaskCategory() (TaskCategory, bool) {
	s, ok := m.str("task_category")
	if !ok {
		return "", false
	}
	return TaskCategory(s), true
}

func (m Metadata) SetTaskCategory(c TaskCategory) { m["task_category"] = string(c) }

func (m Metadata) EstimatedHours() (float64, bool) {
	v, ok := m["estimated_hours"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func (m Metadata) ActualHours() (float64, bool) {
	v, ok := m["actual_hours"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func (m Metadata) SetActualHours(h float64) { m["actual_hours"] = h }

func (m Metadata) Skill() string {
	s, _ := m.str("skill")
	return s
}

func (m Metadata) Command() string {
	s, _ := m.str("command")
	return s
}

// OnFailure decodes the on_failure policy, if present.
func (m Metadata) OnFailure() (OnFailure, bool) {
	v, ok := m["on_failure"]
	if !ok {
		return OnFailure{}, false
	}
	var of OnFailure
	if !decodeInto(v, &of) {
		return OnFailure{}, false
	}
	return of, true
}

func (m Metadata) SetOnFailure(of OnFailure) { m["on_failure"] = of }

// VerificationResult decodes metadata.verification_result (I8), if set.
func (m Metadata) VerificationResult() (VerificationResult, bool) {
	v, ok := m["verification_result"]
	if !ok {
		return VerificationResult{}, false
	}
	var vr VerificationResult
	if !decodeInto(v, &vr) {
		return VerificationResult{}, false
	}
	return vr, true
}

func (m Metadata) SetVerificationResult(vr VerificationResult) {
	m["verification_result"] = vr
}

func (m Metadata) NeedsJournaling() bool {
	v, ok := m["needs_journaling"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (m Metadata) SetNeedsJournaling(b bool) { m["needs_journaling"] = b }

func (m Metadata) Commits() []Commit {
	v, ok := m["commits"]
	if !ok {
		return nil
	}
	var cs []Commit
	if !decodeInto(v, &cs) {
		return nil
	}
	return cs
}

func (m Metadata) AppendCommit(c Commit) {
	cs := m.Commits()
	cs = append(cs, c)
	m["commits"] = cs
}

func (m Metadata) timeField(key string) (time.Time, bool) {
	v, ok := m[key]
	if !ok {
		return time.Time{}, false
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (m Metadata) StartedAt() (time.Time, bool) { return m.timeField("started_at") }

func (m Metadata) SetStartedAt(t time.Time) { m["started_at"] = t.UTC().Format(time.RFC3339Nano) }

func (m Metadata) CompletedAt() (time.Time, bool) { return m.timeField("completed_at") }

func (m Metadata) SetCompletedAt(t time.Time) {
	m["completed_at"] = t.UTC().Format(time.RFC3339Nano)
}

// Clone deep-copies the metadata bag via a JSON round-trip, used when
// C7 clones a document for a transaction (§4.7 step 2).
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return Metadata{}
	}
	out := Metadata{}
	_ = json.Unmarshal(raw, &out)
	return out
}
