package epptrust

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileDocument is the on-disk shape of the trust store: a versioned JSON
// array of entries, per spec §4.4/§6 ("a version tag "1" precedes a list
// of entries") — a bare object keyed by hex would not interoperate with a
// spec-conformant peer.
type fileDocument struct {
	Version string  `json:"version"`
	Senders []Entry `json:"senders"`
}

// FileStore is the mandatory default trust registry backend (spec §4.4): a
// single JSON file, written atomically (temp file + rename) and restricted
// to owner-only permissions since it holds the operator's trust roots.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore reading and writing path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the trust store file, treating a missing file as empty.
func (s *FileStore) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("epptrust: read %s: %w", s.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("epptrust: parse %s: %w", s.path, err)
	}
	entries := make(map[string]Entry, len(doc.Senders))
	for _, e := range doc.Senders {
		entries[e.PublicKey] = e
	}
	return entries, nil
}

// Save atomically replaces the trust store file's contents.
func (s *FileStore) Save(entries map[string]Entry) error {
	senders := make([]Entry, 0, len(entries))
	for _, e := range entries {
		senders = append(senders, e)
	}
	doc := fileDocument{Version: "1", Senders: senders}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("epptrust: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".trust-*.tmp")
	if err != nil {
		return fmt.Errorf("epptrust: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("epptrust: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("epptrust: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("epptrust: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("epptrust: rename into place: %w", err)
	}
	return nil
}
