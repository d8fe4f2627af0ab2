// Package store implements atomic load/save/move of spec documents across
// lifecycle bucket directories (component C1, SPEC_FULL.md §4.1). Locking
// follows the teacher's cmd/bd/sync.go flock.TryLock pattern, retried with
// backoff up to a configurable timeout instead of failing on first
// contention, per §5's "default 10s timeout" rule.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/speckit/sdd/internal/errs"
	"github.com/speckit/sdd/internal/spec"
)

// Bucket is a lifecycle directory partitioning specs (§3 Glossary).
type Bucket string

const (
	BucketPending   Bucket = "pending"
	BucketActive    Bucket = "active"
	BucketCompleted Bucket = "completed"
	BucketArchived  Bucket = "archived"
)

// precedence is the lookup order for locate when a spec_id exists under
// more than one bucket (§4.1).
var precedence = []Bucket{BucketActive, BucketPending, BucketCompleted, BucketArchived}

// AllBuckets lists every lifecycle directory, in creation order.
var AllBuckets = []Bucket{BucketPending, BucketActive, BucketCompleted, BucketArchived}

// reportsDirName is the non-bucket directory holding rendered reports
// (§6.2); it never holds a spec document and so is excluded from
// AllBuckets/Locate's precedence search.
const reportsDirName = ".reports"

// Store roots all spec persistence under one specs directory.
type Store struct {
	Root        string
	LockTimeout time.Duration
	Backup      bool
}

// New constructs a Store rooted at root, ensuring every bucket directory
// and the .reports directory exist.
func New(root string) (*Store, error) {
	s := &Store{Root: root, LockTimeout: 10 * time.Second, Backup: true}
	for _, b := range AllBuckets {
		if err := os.MkdirAll(filepath.Join(root, string(b)), 0o750); err != nil {
			return nil, errs.Wrap(errs.KindIoError, err, "creating bucket directory "+string(b))
		}
	}
	if err := os.MkdirAll(s.ReportsDir(), 0o750); err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "creating reports directory")
	}
	return s, nil
}

// ReportsDir returns the path of the .reports directory (§6.2).
func (s *Store) ReportsDir() string { return filepath.Join(s.Root, reportsDirName) }

// WriteValidationReport renders content to
// .reports/<spec_id>-validation-report.md and returns the written path.
func (s *Store) WriteValidationReport(specID, content string) (string, error) {
	path := filepath.Join(s.ReportsDir(), specID+"-validation-report.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errs.Wrap(errs.KindIoError, err, "writing "+path)
	}
	return path, nil
}

func (s *Store) bucketDir(b Bucket) string { return filepath.Join(s.Root, string(b)) }
func (s *Store) docPath(b Bucket, specID string) string {
	return filepath.Join(s.bucketDir(b), specID+".json")
}

// Create persists a brand-new document into bucket, failing if a file
// already exists at that path (no lock needed: nothing else can know
// about this spec_id's path before this call returns it).
func (s *Store) Create(b Bucket, specID string, doc *spec.Document) (string, error) {
	path := s.docPath(b, specID)
	if _, err := os.Stat(path); err == nil {
		return "", errs.Newf(errs.KindUserError, "spec %s already exists in bucket %s", specID, b)
	}
	if err := Save(path, doc, SaveOptions{Backup: false}); err != nil {
		return "", err
	}
	return path, nil
}

// LocateResult is the outcome of a successful Locate: the winning path
// and bucket, plus an optional warning if the spec_id was also found
// elsewhere.
type LocateResult struct {
	Path    string
	Bucket  Bucket
	Warning string
}

// Locate searches every bucket in precedence order and returns the path
// and bucket of the first match. If more than one bucket contains the
// spec_id, Warning names every extra location found (§4.1: "surface a
// warning").
func (s *Store) Locate(specID string) (LocateResult, error) {
	var found []LocateResult
	for _, b := range precedence {
		p := s.docPath(b, specID)
		if _, err := os.Stat(p); err == nil {
			found = append(found, LocateResult{Path: p, Bucket: b})
		}
	}
	if len(found) == 0 {
		return LocateResult{}, errs.New(errs.KindNotFound, fmt.Sprintf("spec %q not found in any bucket", specID))
	}
	res := found[0]
	if len(found) > 1 {
		extra := make([]string, 0, len(found)-1)
		for _, f := range found[1:] {
			extra = append(extra, string(f.Bucket))
		}
		res.Warning = fmt.Sprintf("spec %s also found in bucket(s) %v; using %s by precedence", specID, extra, res.Bucket)
	}
	return res, nil
}

// Lock is a held exclusive advisory lock on a spec's .lock file, released
// by Unlock. Acquire retries with backoff until timeout instead of
// failing immediately on first contention.
type Lock struct {
	flock *flock.Flock
}

func (l *Lock) Unlock() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}

// AcquireLock blocks (with backoff) up to s.LockTimeout trying to obtain
// an exclusive lock on <path>.lock. Mirrors the teacher's
// flock.New(lockPath)/TryLock pattern, generalized from a single
// immediate attempt to a retry loop per §5.
func (s *Store) AcquireLock(path string) (*Lock, error) {
	lockPath := path + ".lock"
	lk := flock.New(lockPath)

	deadline := time.Now().Add(s.LockTimeout)
	backoff := 25 * time.Millisecond
	for {
		locked, err := lk.TryLock()
		if err != nil {
			return nil, errs.Wrap(errs.KindIoError, err, "acquiring lock on "+lockPath)
		}
		if locked {
			return &Lock{flock: lk}, nil
		}
		if time.Now().After(deadline) {
			return nil, errs.Newf(errs.KindLockContention, "could not acquire lock on %s within %s", lockPath, s.LockTimeout)
		}
		time.Sleep(backoff)
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}

// Load reads and unmarshals the document at path. Callers are expected
// to hold the corresponding Lock for the duration of any subsequent
// mutation/save.
func Load(path string) (*spec.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.KindNotFound, "spec file "+path+" not found")
		}
		return nil, errs.Wrap(errs.KindIoError, err, "reading "+path)
	}
	var doc spec.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errs.Wrap(errs.KindMalformedSpec, err, "parsing "+path)
	}
	return &doc, nil
}

// SaveOptions controls the optional backup-before-write step.
type SaveOptions struct {
	Backup bool
}

// Save atomically persists doc to path: optional backup copy, write to
// <path>.tmp, fsync, rename over path (§4.1). Bumps
// metadata.last_updated. The caller must already hold the path's Lock.
func Save(path string, doc *spec.Document, opts SaveOptions) error {
	doc.Metadata.LastUpdated = time.Now().UTC()

	if opts.Backup {
		if _, err := os.Stat(path); err == nil {
			if err := backupFile(path); err != nil {
				return err
			}
		}
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "encoding document")
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.Wrap(errs.KindIoError, err, "opening "+tmpPath)
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return errs.Wrap(errs.KindIoError, err, "writing "+tmpPath)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errs.Wrap(errs.KindIoError, err, "fsyncing "+tmpPath)
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.KindIoError, err, "closing "+tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Wrap(errs.KindIoError, err, "renaming "+tmpPath+" over "+path)
	}
	return nil
}

func backupFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.KindIoError, err, "reading "+path+" for backup")
	}
	ts := time.Now().UTC().Format("20060102T150405.000000000Z")
	backupPath := fmt.Sprintf("%s.backup.%s", path, ts)
	if err := os.WriteFile(backupPath, raw, 0o644); err != nil {
		return errs.Wrap(errs.KindIoError, err, "writing backup "+backupPath)
	}
	return nil
}

// Move relocates a spec's file from its current bucket to target,
// atomically on the same filesystem (rename) with a copy+fsync+unlink
// fallback across filesystems, never leaving zero or two copies visible
// (§4.1).
func (s *Store) Move(specID string, from, target Bucket) error {
	srcPath := s.docPath(from, specID)
	dstPath := s.docPath(target, specID)

	lock, err := s.AcquireLock(srcPath)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.Rename(srcPath, dstPath); err == nil {
		return nil
	}

	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return errs.Wrap(errs.KindIoError, err, "reading "+srcPath+" for move")
	}
	tmp := dstPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errs.Wrap(errs.KindIoError, err, "writing "+tmp+" during move")
	}
	f, err := os.Open(tmp)
	if err != nil {
		return errs.Wrap(errs.KindIoError, err, "reopening "+tmp+" to fsync")
	}
	syncErr := f.Sync()
	_ = f.Close()
	if syncErr != nil {
		return errs.Wrap(errs.KindIoError, syncErr, "fsyncing "+tmp)
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		return errs.Wrap(errs.KindIoError, err, "renaming "+tmp+" over "+dstPath)
	}
	if err := os.Remove(srcPath); err != nil {
		return errs.Wrap(errs.KindIoError, err, "removing source "+srcPath+" after move")
	}
	return nil
}

// ListSpecIDs returns every spec_id present in bucket.
func (s *Store) ListSpecIDs(b Bucket) ([]string, error) {
	entries, err := os.ReadDir(s.bucketDir(b))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindIoError, err, "listing bucket "+string(b))
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}

// NewTempSuffix is used by callers that need a unique scratch name (e.g.
// dry-run previews) outside the bucket directories.
func NewTempSuffix() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errs.Wrap(errs.KindInternal, err, "generating temp suffix")
	}
	return hex.EncodeToString(b[:]), nil
}
