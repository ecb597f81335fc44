// Package history keeps an on-disk log of settled tool calls.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrNoMatches is returned when no calls match the query.
	ErrNoMatches = errors.New("no calls found")
	// ErrManyMatches is returned when multiple calls match the query.
	ErrManyMatches = errors.New("multiple calls matched the input")
)

const (
	indexFileName      = "index.jsonl"
	compactMinOps      = 256
	compactScaleFactor = 4
)

// Status classifies how a call settled.
type Status string

// Settled call statuses.
const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Record is the indexed metadata of one logged tool call.
type Record struct {
	ID        string        `json:"id"`
	Server    string        `json:"server"`
	Tool      string        `json:"tool"`
	Status    Status        `json:"status"`
	Err       string        `json:"err,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

type callEvent struct {
	Op   string  `json:"op"`
	ID   string  `json:"id,omitempty"`
	Call *Record `json:"call,omitempty"`
}

// Open loads the call index from the given datasource.
//
// The datasource is usually a directory path. The special value ":memory:"
// creates a temporary store (primarily used for tests).
func Open(ds string) (*DB, error) {
	dir, cleanupDir, err := resolveStoreDir(ds)
	if err != nil {
		return nil, fmt.Errorf("could not resolve store path: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create store directory: %w", err)
	}

	db := &DB{
		indexPath:      filepath.Join(dir, indexFileName),
		lock:           flock.New(filepath.Join(dir, "index.lock")),
		calls:          make(map[string]Record),
		cleanupTempDir: cleanupDir,
	}
	if err := db.load(); err != nil {
		return nil, err
	}

	return db, nil
}

// DB is an append-only JSONL-backed call index.
type DB struct {
	mu             sync.RWMutex
	indexPath      string
	lock           *flock.Flock
	calls          map[string]Record
	ops            int
	cleanupTempDir string
}

// Close releases temporary resources (used for :memory: stores).
func (db *DB) Close() error {
	if db.cleanupTempDir == "" {
		return nil
	}
	if err := os.RemoveAll(db.cleanupTempDir); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Save upserts a call record. A zero StartedAt becomes the current time.
func (db *DB) Save(rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("Save: %w", errors.New("empty id"))
	}
	if strings.TrimSpace(rec.Tool) == "" {
		return fmt.Errorf("Save: %w", errors.New("empty tool"))
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.calls[rec.ID] = rec
	if err := db.appendEventLocked(callEvent{Op: "upsert", Call: &rec}); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	if err := db.compactIfNeededLocked(); err != nil {
		return fmt.Errorf("Save: %w", err)
	}

	return nil
}

// Delete removes a call record by ID.
func (db *DB) Delete(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("Delete: %w", errors.New("empty id"))
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.calls[id]; !ok {
		return nil
	}
	delete(db.calls, id)

	if err := db.appendEventLocked(callEvent{Op: "delete", ID: id}); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if err := db.compactIfNeededLocked(); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// ListOlderThan returns calls that started before now minus t.
func (db *DB) ListOlderThan(t time.Duration) []Record {
	cutoff := time.Now().Add(-t)

	db.mu.RLock()
	calls := make([]Record, 0, len(db.calls))
	for _, rec := range db.calls {
		if rec.StartedAt.Before(cutoff) {
			calls = append(calls, rec)
		}
	}
	db.mu.RUnlock()

	sortCallsByStartedAtDesc(calls)
	return calls
}

// Latest returns the most recent call.
func (db *DB) Latest() (*Record, error) {
	list := db.List()
	if len(list) == 0 {
		return nil, fmt.Errorf("Latest: %w", ErrNoMatches)
	}
	head := list[0]
	return &head, nil
}

// Completions returns shell completion candidates for IDs and tool names.
func (db *DB) Completions(in string) []string {
	resultSet := make(map[string]struct{})

	db.mu.RLock()
	for _, rec := range db.calls {
		if strings.HasPrefix(rec.ID, in) {
			displayID := rec.ID
			if len(in) < IDShort && len(rec.ID) > IDShort {
				displayID = rec.ID[:IDShort]
			}
			resultSet[fmt.Sprintf("%s\t%s", displayID, rec.Tool)] = struct{}{}
		}
		if strings.HasPrefix(rec.Tool, in) {
			displayID := rec.ID
			if len(rec.ID) > IDShort {
				displayID = rec.ID[:IDShort]
			}
			resultSet[fmt.Sprintf("%s\t%s", rec.Tool, displayID)] = struct{}{}
		}
	}
	db.mu.RUnlock()

	result := make([]string, 0, len(resultSet))
	for value := range resultSet {
		result = append(result, value)
	}
	sort.Strings(result)

	return result
}

// Find resolves a call by ID prefix or exact tool name.
func (db *DB) Find(in string) (*Record, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	calls := make([]Record, 0, len(db.calls))
	if len(in) < IDMinLen {
		for _, rec := range db.calls {
			if rec.Tool == in {
				calls = append(calls, rec)
			}
		}
	} else {
		for _, rec := range db.calls {
			if strings.HasPrefix(rec.ID, in) || rec.Tool == in {
				calls = append(calls, rec)
			}
		}
	}

	if len(calls) > 1 {
		return nil, fmt.Errorf("%w: %s", ErrManyMatches, in)
	}
	if len(calls) == 1 {
		return &calls[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoMatches, in)
}

// List returns calls sorted by most recently started.
func (db *DB) List() []Record {
	db.mu.RLock()
	calls := make([]Record, 0, len(db.calls))
	for _, rec := range db.calls {
		calls = append(calls, rec)
	}
	db.mu.RUnlock()

	sortCallsByStartedAtDesc(calls)
	return calls
}

func resolveStoreDir(ds string) (dir string, cleanupDir string, err error) {
	if ds == ":memory:" {
		tempDir, err := os.MkdirTemp("", "crew-calls-*")
		if err != nil {
			return "", "", fmt.Errorf("could not create temp calls directory: %w", err)
		}
		return tempDir, tempDir, nil
	}
	return ds, "", nil
}

func (db *DB) load() error {
	if db.lock != nil {
		if err := db.lock.Lock(); err != nil {
			return fmt.Errorf("could not lock index file: %w", err)
		}
		defer func() { _ = db.lock.Unlock() }()
	}

	file, err := os.Open(db.indexPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not open index file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var evt callEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			return fmt.Errorf("could not parse index event: %w", err)
		}
		if err := db.applyEvent(&evt); err != nil {
			return err
		}
		db.ops++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("could not scan index file: %w", err)
	}

	return nil
}

func (db *DB) applyEvent(evt *callEvent) error {
	switch evt.Op {
	case "upsert":
		if evt.Call == nil {
			return fmt.Errorf("invalid upsert event: missing call")
		}
		if strings.TrimSpace(evt.Call.ID) == "" {
			return fmt.Errorf("invalid upsert event: empty id")
		}
		rec := *evt.Call
		db.calls[rec.ID] = rec
	case "delete":
		if strings.TrimSpace(evt.ID) == "" {
			return fmt.Errorf("invalid delete event: empty id")
		}
		delete(db.calls, evt.ID)
	default:
		return fmt.Errorf("invalid index event op: %q", evt.Op)
	}
	return nil
}

func (db *DB) appendEventLocked(evt callEvent) error {
	if db.lock != nil {
		if err := db.lock.Lock(); err != nil {
			return fmt.Errorf("lock index: %w", err)
		}
		defer func() { _ = db.lock.Unlock() }()
	}

	file, err := os.OpenFile(db.indexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = file.Close() }()

	bts, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal index event: %w", err)
	}
	bts = append(bts, '\n')
	if _, err := file.Write(bts); err != nil {
		return fmt.Errorf("write index event: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync index: %w", err)
	}

	db.ops++
	return nil
}

func (db *DB) compactIfNeededLocked() error {
	if db.ops < compactMinOps {
		return nil
	}
	if len(db.calls) > 0 && db.ops < len(db.calls)*compactScaleFactor {
		return nil
	}
	return db.compactLocked()
}

func (db *DB) compactLocked() error {
	if db.lock != nil {
		if err := db.lock.Lock(); err != nil {
			return fmt.Errorf("lock index: %w", err)
		}
		defer func() { _ = db.lock.Unlock() }()
	}

	items := make([]Record, 0, len(db.calls))
	for _, rec := range db.calls {
		items = append(items, rec)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].StartedAt.Equal(items[j].StartedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].StartedAt.Before(items[j].StartedAt)
	})

	tmpPath := db.indexPath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open compacted index: %w", err)
	}

	enc := json.NewEncoder(file)
	for _, rec := range items {
		event := callEvent{Op: "upsert", Call: &rec}
		if err := enc.Encode(event); err != nil {
			_ = file.Close()
			return fmt.Errorf("write compacted index: %w", err)
		}
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync compacted index: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close compacted index: %w", err)
	}

	if err := os.Rename(tmpPath, db.indexPath); err != nil {
		return fmt.Errorf("replace index with compacted version: %w", err)
	}
	_ = syncDir(filepath.Dir(db.indexPath))

	db.ops = len(db.calls)
	return nil
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}

func sortCallsByStartedAtDesc(calls []Record) {
	sort.Slice(calls, func(i, j int) bool {
		if calls[i].StartedAt.Equal(calls[j].StartedAt) {
			return calls[i].ID < calls[j].ID
		}
		return calls[i].StartedAt.After(calls[j].StartedAt)
	})
}
