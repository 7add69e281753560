// Package resources provides ready-made resource implementations for MCP
// servers: static text, lazily-computed content, and filesystem-backed
// resources filtered by glob patterns.
package resources

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oxhq/mcpwire/mcp/types"
)

// StaticResource serves fixed text content.
type StaticResource struct {
	name        string
	description string
	uri         string
	mimeType    string
	content     string
}

// NewStaticResource creates a resource with fixed content.
func NewStaticResource(name, description, uri, mimeType, content string) *StaticResource {
	return &StaticResource{
		name:        name,
		description: description,
		uri:         uri,
		mimeType:    mimeType,
		content:     content,
	}
}

func (r *StaticResource) Name() string              { return r.name }
func (r *StaticResource) Description() string       { return r.description }
func (r *StaticResource) URI() string               { return r.uri }
func (r *StaticResource) MimeType() string          { return r.mimeType }
func (r *StaticResource) Contents() (string, error) { return r.content, nil }

// DynamicResource computes its content on every read.
type DynamicResource struct {
	name        string
	description string
	uri         string
	mimeType    string
	generator   func() (string, error)
}

// NewDynamicResource creates a resource backed by a generator function.
func NewDynamicResource(name, description, uri, mimeType string, generator func() (string, error)) *DynamicResource {
	return &DynamicResource{
		name:        name,
		description: description,
		uri:         uri,
		mimeType:    mimeType,
		generator:   generator,
	}
}

func (r *DynamicResource) Name() string        { return r.name }
func (r *DynamicResource) Description() string { return r.description }
func (r *DynamicResource) URI() string         { return r.uri }
func (r *DynamicResource) MimeType() string    { return r.mimeType }

func (r *DynamicResource) Contents() (string, error) {
	if r.generator == nil {
		return "", fmt.Errorf("resource %s has no generator", r.uri)
	}
	return r.generator()
}

// FileResource serves one file from disk under a file:// URI.
type FileResource struct {
	name        string
	description string
	path        string
	mimeType    string
}

// NewFileResource creates a resource reading path on demand.
func NewFileResource(name, description, path, mimeType string) *FileResource {
	return &FileResource{
		name:        name,
		description: description,
		path:        path,
		mimeType:    mimeType,
	}
}

func (r *FileResource) Name() string        { return r.name }
func (r *FileResource) Description() string { return r.description }
func (r *FileResource) MimeType() string    { return r.mimeType }

func (r *FileResource) URI() string {
	return "file://" + filepath.ToSlash(r.path)
}

func (r *FileResource) Contents() (string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", r.path, err)
	}
	return string(data), nil
}

// DirectoryResources walks root and builds one FileResource per regular
// file matching the doublestar pattern (relative to root). An empty
// pattern matches everything.
func DirectoryResources(root, pattern, mimeType string) ([]types.Resource, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern: %s", pattern)
	}

	var result []types.Resource
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(pattern, rel); !ok {
			return nil
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		result = append(result, NewFileResource(name, "", path, mimeType))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
