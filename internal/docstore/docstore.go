// Package docstore persists the JSON documents passed between pipeline stages.
//
// Each stage reads its input from and writes its output to a named document
// under the data directory, so an in-flight run can be inspected on disk and
// a later stage never depends on in-memory handoff from an earlier one.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"trendpipe/internal/apperrors"
)

// Document file names under the data directory.
const (
	trendsFile   = "trends.json"
	ideasFile    = "ideas.json"
	manifestFile = "image-manifest.json"
)

// Trend is one discovered piece of design-trend content.
type Trend struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Source    string `json:"source,omitempty"`
	FetchedAt string `json:"fetchedAt,omitempty"`
}

// Idea is one synthesized design idea, input to image generation.
type Idea struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Style       string `json:"style"`
	Prompt      string `json:"prompt"`
}

// ImageAsset is one generated artifact listed in the manifest.
type ImageAsset struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Style       string `json:"style"`
	ImagePath   string `json:"imagePath"`
}

// Manifest lists the artifacts produced by one generation run. RunID ties the
// manifest to the job that produced it; the publish stage refuses manifests
// from other runs.
type Manifest struct {
	GeneratedAt string       `json:"generatedAt"`
	RunID       string       `json:"runId"`
	Images      []ImageAsset `json:"images"`
}

// Store reads and writes stage documents under a single directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Internal("docstore.mkdir", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// SaveTrends writes the discovered-content document.
func (s *Store) SaveTrends(trends []Trend) error {
	return s.save(trendsFile, trends)
}

// LoadTrends reads the discovered-content document.
func (s *Store) LoadTrends() ([]Trend, error) {
	var trends []Trend
	if err := s.load(trendsFile, &trends); err != nil {
		return nil, err
	}
	return trends, nil
}

// SaveIdeas writes the synthesized-ideas document.
func (s *Store) SaveIdeas(ideas []Idea) error {
	return s.save(ideasFile, ideas)
}

// LoadIdeas reads the synthesized-ideas document.
func (s *Store) LoadIdeas() ([]Idea, error) {
	var ideas []Idea
	if err := s.load(ideasFile, &ideas); err != nil {
		return nil, err
	}
	return ideas, nil
}

// SaveManifest writes the generated-artifact manifest.
func (s *Store) SaveManifest(m *Manifest) error {
	return s.save(manifestFile, m)
}

// LoadManifest reads the generated-artifact manifest.
func (s *Store) LoadManifest() (*Manifest, error) {
	var m Manifest
	if err := s.load(manifestFile, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Ready verifies the data directory is writable. Used by the readiness probe.
func (s *Store) Ready(ctx context.Context) error {
	probe := filepath.Join(s.dir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("data directory not writable: %w", err)
	}
	return os.Remove(probe)
}

// save marshals v and writes it atomically (temp file + rename) so a
// concurrent reader never sees a partially written document.
func (s *Store) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.Internal("docstore.marshal", err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return apperrors.Internal("docstore.save", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return apperrors.Internal("docstore.save", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return apperrors.Internal("docstore.save", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return apperrors.Internal("docstore.save", err)
	}
	return nil
}

func (s *Store) load(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.NotFound("document", name)
		}
		return apperrors.Internal("docstore.load", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Internal("docstore.load", fmt.Errorf("%s: %w", name, err))
	}
	return nil
}
