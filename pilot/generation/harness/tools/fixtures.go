package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
)

// FixtureFilesSchema defines the arguments of the fixture_files tool.
const FixtureFilesSchema = `{
  "type": "object",
  "properties": {
    "path": {
      "type": "string",
      "description": "Fixture file or directory, relative to the fixtures root. Empty lists the root."
    }
  },
  "additionalProperties": false
}`

// FixtureEntry describes one fixture file or directory.
type FixtureEntry struct {
	Path       string         `json:"path"`        // relative to the fixtures root
	UploadPath string         `json:"upload_path"` // absolute, usable as a file_upload argument
	Type       string         `json:"type"`        // "file" or "directory"
	Size       int64          `json:"size,omitempty"`
	MimeType   string         `json:"mime_type,omitempty"`
	ModifiedAt time.Time      `json:"modified_at"`
	Children   []FixtureEntry `json:"children,omitempty"`
}

// FixtureFilesTool lets the model find test data files it can upload
// through the browser tools. Access is confined to the fixtures root.
type FixtureFilesTool struct {
	root string
}

// NewFixtureFilesTool creates the tool rooted at dir.
func NewFixtureFilesTool(dir string) (*FixtureFilesTool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("fixtures root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fixtures root %s is not a directory", abs)
	}
	return &FixtureFilesTool{root: abs}, nil
}

func (t *FixtureFilesTool) Name() string { return "fixture_files" }

func (t *FixtureFilesTool) Description() string {
	return "List or describe local test fixture files. Returns absolute upload paths for browser_file_upload."
}

func (t *FixtureFilesTool) Schema() []byte { return []byte(FixtureFilesSchema) }

// Invoke describes the requested entry; directories list their direct
// children.
func (t *FixtureFilesTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var params struct {
		Path string `json:"path"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	rel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(params.Path, "/")))
	if rel == "." {
		rel = ""
	}
	if rel != "" && !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("path %q escapes the fixtures root", params.Path)
	}

	entry, err := t.describe(rel)
	if err != nil {
		return nil, err
	}
	if entry.Type != "directory" {
		return entry, nil
	}

	children, err := os.ReadDir(filepath.Join(t.root, rel))
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(child.Name(), ".") {
			continue
		}
		childEntry, err := t.describe(filepath.Join(rel, child.Name()))
		if err != nil {
			continue
		}
		entry.Children = append(entry.Children, childEntry)
	}
	return entry, nil
}

func (t *FixtureFilesTool) describe(rel string) (FixtureEntry, error) {
	abs := filepath.Join(t.root, rel)
	info, err := os.Stat(abs)
	if err != nil {
		return FixtureEntry{}, fmt.Errorf("not found: %s", filepath.ToSlash(rel))
	}

	entry := FixtureEntry{
		Path:       filepath.ToSlash(rel),
		UploadPath: abs,
		ModifiedAt: info.ModTime().UTC(),
	}
	if info.IsDir() {
		entry.Type = "directory"
		return entry, nil
	}

	entry.Type = "file"
	entry.Size = info.Size()
	entry.MimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(abs)))
	if entry.MimeType == "" {
		entry.MimeType = "application/octet-stream"
	}
	return entry, nil
}

var _ ports.Tool = (*FixtureFilesTool)(nil)
