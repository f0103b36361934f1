package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/signalbid/oie/internal/models"
)

// Store is an append-only newline-delimited JSON log of scored
// records. Records are written once and never updated or deleted;
// reading the log back is how a run learns which opportunities it has
// already seen.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	return &Store{Path: path}
}

// SeenIDs replays the log and returns the set of record ids emitted by
// previous runs. A missing file is an empty history; corrupt lines are
// skipped, not fatal.
func (s *Store) SeenIDs() (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ids, nil
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var line struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.ID != "" {
			ids[line.ID] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	return ids, nil
}

const maxLineBytes = 1 << 20

// Append writes the whole batch to the log in one operation.
func (s *Store) Append(records []models.ScoredRecord) error {
	if len(records) == 0 {
		return nil
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history file for append: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record %q: %w", rec.ID, err)
		}
		if _, err := w.Write(append(payload, '\n')); err != nil {
			return fmt.Errorf("failed to append record %q: %w", rec.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush history file: %w", err)
	}

	return nil
}

// Tail returns up to n of the most recent records, oldest first.
// Corrupt lines are skipped.
func (s *Store) Tail(n int) ([]models.ScoredRecord, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	var records []models.ScoredRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var rec models.ScoredRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}
