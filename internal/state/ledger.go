package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Ledger is the persisted set of message ids that have already been
// summarized and delivered in a prior run. Commit and Rollback are the
// only mutations; both persist atomically.
type Ledger interface {
	// Load reads the full id set into memory. A missing or corrupt
	// backing record is treated as an empty set.
	Load() (map[string]struct{}, error)

	// Contains reports whether id is in the ledger.
	Contains(id string) (bool, error)

	// Commit adds ids to the set (union) and persists.
	Commit(ids []string) error

	// Rollback removes exactly ids from the set (difference) and
	// persists.
	Rollback(ids []string) error
}

// ledgerRecord is the on-disk JSON layout. Ids are stored sorted so the
// file content is stable across rewrites of the same set.
type ledgerRecord struct {
	ProcessedIDs []string `json:"processed_ids"`
}

// FileLedger implements Ledger backed by a single JSON file that is
// rewritten whole via temp-file-and-rename.
type FileLedger struct {
	path string
}

// NewFileLedger creates a ledger backed by the JSON file at path. The
// file is created lazily on first commit.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Load reads the id set from disk. Read failures and malformed records
// yield an empty set rather than an error, so a damaged ledger never
// blocks a run; writes are never fail-open.
func (l *FileLedger) Load() (map[string]struct{}, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return map[string]struct{}{}, nil
	}

	var record ledgerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return map[string]struct{}{}, nil
	}

	ids := make(map[string]struct{}, len(record.ProcessedIDs))
	for _, id := range record.ProcessedIDs {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// Contains reports whether id is in the ledger.
func (l *FileLedger) Contains(id string) (bool, error) {
	ids, err := l.Load()
	if err != nil {
		return false, err
	}
	_, ok := ids[id]
	return ok, nil
}

// Commit unions ids into the set and persists atomically.
func (l *FileLedger) Commit(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	current, err := l.Load()
	if err != nil {
		return err
	}

	for _, id := range ids {
		if id != "" {
			current[id] = struct{}{}
		}
	}

	return l.save(current)
}

// Rollback removes ids from the set and persists atomically. Ids not
// present are ignored.
func (l *FileLedger) Rollback(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	current, err := l.Load()
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(current, id)
	}

	return l.save(current)
}

// save writes the id set to a temp file in the ledger's directory and
// renames it into place, so readers never observe a partial record.
func (l *FileLedger) save(ids map[string]struct{}) error {
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	data, err := json.MarshalIndent(ledgerRecord{ProcessedIDs: sorted}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("creating ledger temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing ledger temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing ledger temp file: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing ledger %s: %w", l.path, err)
	}

	return nil
}
