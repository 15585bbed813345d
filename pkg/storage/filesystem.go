package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultReportDir holds rendered report files when no directory is
// configured.
const DefaultReportDir = "./report-files"

// ReportStore keeps rendered report artifacts on the local filesystem,
// all under a single root directory.
type ReportStore struct {
	root string
}

// NewReportStore creates the root directory if needed.
func NewReportStore(root string) (*ReportStore, error) {
	if root == "" {
		root = DefaultReportDir
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve report dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &ReportStore{root: abs}, nil
}

// Save writes a report artifact and returns its path relative to the root.
func (s *ReportStore) Save(rel string, data []byte) (string, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create report subdir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write report file: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// Open returns the stored artifact for streaming to a download response.
func (s *ReportStore) Open(rel string) (*os.File, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open report file: %w", err)
	}
	return file, nil
}

// Delete removes an artifact, ignoring files that are already gone.
func (s *ReportStore) Delete(rel string) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete report file: %w", err)
	}
	return nil
}

// resolve rejects paths that would escape the root. Signed download tokens
// carry the relative path, so it counts as caller-supplied input.
func (s *ReportStore) resolve(rel string) (string, error) {
	rel = filepath.FromSlash(rel)
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("invalid report path %q", rel)
	}
	full := filepath.Join(s.root, rel)
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid report path %q", rel)
	}
	return full, nil
}
