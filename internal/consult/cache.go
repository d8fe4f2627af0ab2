package consult

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

// CacheKey identifies one cached response (§4.8: keyed by
// hash(tool, model, normalized_prompt, system_prompt, skill_name,
// structured_context_hash)).
type CacheKey struct {
	Tool                string
	Model               string
	NormalizedPrompt    string
	SystemPrompt        string
	SkillName           string
	StructuredContextHash string
}

func (k CacheKey) hash() string {
	h := sha256.New()
	for _, part := range []string{k.Tool, k.Model, k.NormalizedPrompt, k.SystemPrompt, k.SkillName, k.StructuredContextHash} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// cacheEntry is the on-disk record for one cached response.
type cacheEntry struct {
	Response   ToolResponse `json:"response"`
	StoredAt   time.Time    `json:"stored_at"`
	LastHitAt  time.Time    `json:"last_hit_at"`
	SizeBytes  int64        `json:"size_bytes"`
}

// Cache is the on-disk consultation cache (§4.8 "C8 private"): entries
// never store failures, evicted by TTL and then LRU once MaxSizeBytes
// is exceeded.
type Cache struct {
	Dir          string
	TTL          time.Duration
	MaxSizeBytes int64
}

// DefaultCache builds a Cache with the spec's stated defaults: 24h TTL,
// 512MB max size.
func DefaultCache(dir string) *Cache {
	return &Cache{Dir: dir, TTL: 24 * time.Hour, MaxSizeBytes: 512 * 1024 * 1024}
}

func (c *Cache) entryPath(key CacheKey) string {
	return filepath.Join(c.Dir, key.hash()+".json")
}

// Get returns a cached response if present and not expired, marking it
// as success/from_cache per §4.8.
func (c *Cache) Get(key CacheKey) (ToolResponse, bool) {
	path := c.entryPath(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		return ToolResponse{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return ToolResponse{}, false
	}
	if time.Since(entry.StoredAt) > c.TTL {
		_ = os.Remove(path)
		return ToolResponse{}, false
	}

	entry.LastHitAt = time.Now()
	if raw, err := json.Marshal(entry); err == nil {
		_ = os.WriteFile(path, raw, 0o644)
	}

	resp := entry.Response
	resp.FromCache = true
	resp.Success = true
	return resp, true
}

// Put stores resp under key, guarded by a per-entry flock, using
// write-temp-then-rename (§5: "cache insertion uses write-temp-then-
// rename"). Failures are never cached (§4.8).
func (c *Cache) Put(key CacheKey, resp ToolResponse) error {
	if !resp.Success {
		return nil
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return err
	}

	path := c.entryPath(key)
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	entry := cacheEntry{Response: resp, StoredAt: time.Now(), LastHitAt: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	entry.SizeBytes = int64(len(raw))
	raw, err = json.Marshal(entry)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	return c.evictIfOversized()
}

// CacheStats reports aggregate entry count/size for the cache-info
// command (§6.1).
type CacheStats struct {
	Entries   int   `json:"entries"`
	SizeBytes int64 `json:"size_bytes"`
}

// Stats reports how many responses are cached and their total on-disk
// size.
func (c *Cache) Stats() (CacheStats, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return CacheStats{}, nil
		}
		return CacheStats{}, err
	}
	var stats CacheStats
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.SizeBytes += info.Size()
	}
	return stats, nil
}

// evictIfOversized removes least-recently-hit entries until the cache
// directory fits under MaxSizeBytes (§4.8 LRU eviction).
func (c *Cache) evictIfOversized() error {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return err
	}

	type scored struct {
		path      string
		size      int64
		lastHitAt time.Time
	}
	var all []scored
	var total int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(c.Dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry cacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		all = append(all, scored{path: path, size: int64(len(raw)), lastHitAt: entry.LastHitAt})
		total += int64(len(raw))
	}

	if total <= c.MaxSizeBytes {
		return nil
	}

	sort.Slice(all, func(i, j int) bool { return all[i].lastHitAt.Before(all[j].lastHitAt) })
	for _, s := range all {
		if total <= c.MaxSizeBytes {
			break
		}
		if err := os.Remove(s.path); err == nil {
			total -= s.size
		}
	}
	return nil
}
