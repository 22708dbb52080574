package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"mini-mcp/corpus"
)

// ContentBlock is one element of a tool call result. Only text blocks are
// produced today; the slice form leaves room for other block types.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the result payload of a successful tools/call.
type CallResult struct {
	Content []ContentBlock `json:"content"`
}

// TextResult wraps plain text in a single-block CallResult.
func TextResult(text string) *CallResult {
	return &CallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// NewCorpusRegistry builds the standard registry backed by the given default
// provider: read_file and search_file, in that order. Both tools accept an
// optional "path" argument overriding the configured source file.
func NewCorpusRegistry(def corpus.Provider) (*Registry, error) {
	return NewRegistry(readFileTool(def), searchFileTool(def))
}

// providerFor honors a per-call "path" override, falling back to the
// configured default provider.
func providerFor(def corpus.Provider, args map[string]any) corpus.Provider {
	if path, ok := args["path"].(string); ok && path != "" {
		return corpus.NewFileProvider(path)
	}
	return def
}

func readFileTool(def corpus.Provider) *Tool {
	return &Tool{
		Name:        "read_file",
		Description: "Read the configured context file (or an optional path).",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			text, err := providerFor(def, args).FullText()
			if err != nil {
				return nil, err
			}
			return TextResult(text), nil
		},
	}
}

func searchFileTool(def corpus.Provider) *Tool {
	return &Tool{
		Name:        "search_file",
		Description: "Search for words in the context file and return matching lines.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"words": {Type: "string", Description: "Search string"},
				"path":  {Type: "string"},
			},
			Required: []string{"words"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			words, _ := args["words"].(string)
			query := strings.TrimSpace(words)
			if query == "" {
				return nil, &InvalidArgsError{Reason: "search query must not be empty"}
			}
			matches, err := providerFor(def, args).Search(query)
			if err != nil {
				return nil, err
			}
			return TextResult(FormatMatches(query, matches)), nil
		},
	}
}

// FormatMatches renders search hits one per line, prefixed with a count
// header, or a "no matches" notice.
func FormatMatches(query string, matches []corpus.Match) string {
	if len(matches) == 0 {
		return "No matches for: " + query
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Matches (%d) for: %s", len(matches), query)
	for _, m := range matches {
		fmt.Fprintf(&b, "\n%d: %s", m.Line, m.Text)
	}
	return b.String()
}
