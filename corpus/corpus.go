// Package corpus supplies the text content behind the server's tools:
// full-file reads and line-indexed substring search over a configured file.
package corpus

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound reports that the configured source file is absent.
// The dispatcher maps it to a "not found" error response.
var ErrNotFound = errors.New("corpus file not found")

// Match is one search hit: a 1-based line number and the full line text.
type Match struct {
	Line int
	Text string
}

// Provider abstracts the text source consumed by the tool handlers.
type Provider interface {
	// FullText returns the entire configured text.
	FullText() (string, error)

	// Search returns every line containing query (case-insensitive),
	// in ascending line order.
	Search(query string) ([]Match, error)
}

// FileProvider reads from a single file on disk.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider over the given file path.
// The file is read on each call, not cached, so edits are picked up live.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Path returns the configured file path.
func (p *FileProvider) Path() string { return p.path }

func (p *FileProvider) FullText() (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p.path)
		}
		return "", err
	}
	return string(data), nil
}

func (p *FileProvider) Search(query string) ([]Match, error) {
	text, err := p.FullText()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var matches []Match
	for i, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), q) {
			matches = append(matches, Match{Line: i + 1, Text: line})
		}
	}
	return matches, nil
}
