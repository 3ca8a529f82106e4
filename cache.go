package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// cacheEntry is the stored result of a successful run.
type cacheEntry struct {
	Hash     string    `json:"hash"`
	TaskID   string    `json:"task_id"`
	Code     int       `json:"code"`
	Output   string    `json:"output"`
	StoredAt time.Time `json:"stored_at"`
}

// outputCache keeps terminal output of cacheable tasks on disk, one entry
// per task hash:
//
//	{dir}/{hash[0:2]}/{hash}.json
type outputCache struct {
	dir string
}

func newOutputCache(dir string) *outputCache {
	return &outputCache{dir: dir}
}

// taskHash identifies a run by everything that can change its output.
func taskHash(def TaskDef, script string) string {
	h := sha256.New()
	fmt.Fprintf(h, "id=%s\x00cwd=%s\x00script=%s\x00", def.ID, def.Cwd, script)

	keys := make([]string, 0, len(def.Env))
	for k := range def.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "env:%s=%s\x00", k, def.Env[k])
	}

	outputs := append([]string(nil), def.Outputs...)
	sort.Strings(outputs)
	for _, o := range outputs {
		fmt.Fprintf(h, "out:%s\x00", o)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry for hash. A missing entry is not an error.
func (c *outputCache) Get(hash string) (*cacheEntry, error) {
	data, err := os.ReadFile(c.entryPath(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse cache entry: %w", err)
	}
	if entry.Hash != hash {
		return nil, nil
	}
	return &entry, nil
}

func (c *outputCache) Put(entry cacheEntry) error {
	if entry.Hash == "" {
		return fmt.Errorf("cache entry has no hash")
	}
	path := c.entryPath(entry.Hash)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (c *outputCache) entryPath(hash string) string {
	prefix := hash
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(c.dir, prefix, hash+".json")
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
