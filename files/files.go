// Package files serves path-sanitized reads, writes, and listings scoped
// to a workspace root. Every relative path is resolved against the root
// and must stay inside it; anything that escapes, through traversal
// segments or symlinks, fails closed with PATH_ESCAPE.
package files

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"forge/apperr"
)

// MaxFileSize bounds reads and writes through the editor API.
const MaxFileSize = 10 << 20 // 10 MB

// MaxTreeDepth bounds listing recursion against pathological structures.
const MaxTreeDepth = 32

type Node struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"` // "file" or "dir"
	Children []Node `json:"children,omitempty"`
}

type Service struct{}

func NewService() *Service { return &Service{} }

// Resolve maps rel onto an absolute path under root, or fails with
// PATH_ESCAPE. Symlinks in every existing ancestor are followed and the
// result re-checked, so a link pointing outside the root cannot be used
// as an escape hatch even when the final component does not exist yet.
func Resolve(root, rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", apperr.New(apperr.CodePathEscape, "invalid characters in path")
	}
	rel = strings.TrimPrefix(rel, "/")
	rel = filepath.Clean(rel)
	if rel == "." {
		rel = ""
	}
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.Newf(apperr.CodePathEscape, "path %q escapes workspace root", rel)
	}

	rootReal, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeIO, "resolve workspace root", err)
	}

	abs := filepath.Join(rootReal, rel)

	// Follow symlinks on the longest existing prefix. The suffix that does
	// not exist yet was already cleaned of traversal segments above.
	existing := abs
	var suffix []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			abs = filepath.Join(append([]string{resolved}, suffix...)...)
			break
		}
		if !os.IsNotExist(err) {
			return "", apperr.Wrap(apperr.CodeIO, "resolve path", err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		suffix = append([]string{filepath.Base(existing)}, suffix...)
		existing = parent
	}

	if abs != rootReal && !strings.HasPrefix(abs, rootReal+string(filepath.Separator)) {
		return "", apperr.Newf(apperr.CodePathEscape, "path %q escapes workspace root", rel)
	}
	return abs, nil
}

// List walks the root and returns a deterministic tree: inside each
// directory, subdirectories come first, then files, both lexicographic.
// Dot-files (including the runtime's venv) are hidden from the listing.
func (s *Service) List(root string) ([]Node, error) {
	return listDir(root, "", 0)
}

func listDir(dir, relPrefix string, depth int) ([]Node, error) {
	if depth >= MaxTreeDepth {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.CodeNotFound, "directory not found")
		}
		return nil, apperr.Wrap(apperr.CodeIO, "list directory", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		di, dj := entries[i].IsDir(), entries[j].IsDir()
		if di != dj {
			return di
		}
		return entries[i].Name() < entries[j].Name()
	})

	var nodes []Node
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		relPath := name
		if relPrefix != "" {
			relPath = relPrefix + "/" + name
		}
		if e.IsDir() {
			children, err := listDir(filepath.Join(dir, name), relPath, depth+1)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, Node{Name: name, Path: relPath, Type: "dir", Children: children})
		} else if e.Type().IsRegular() {
			nodes = append(nodes, Node{Name: name, Path: relPath, Type: "file"})
		}
	}
	return nodes, nil
}

// Read returns the full content of the file at rel.
func (s *Service) Read(root, rel string) ([]byte, error) {
	abs, err := Resolve(root, rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Newf(apperr.CodeNotFound, "file %q not found", rel)
		}
		return nil, apperr.Wrap(apperr.CodeIO, "stat file", err)
	}
	if info.IsDir() {
		return nil, apperr.Newf(apperr.CodeBadRequest, "%q is a directory", rel)
	}
	if info.Size() > MaxFileSize {
		return nil, apperr.Newf(apperr.CodeBadRequest, "file %q exceeds %d bytes", rel, MaxFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeIO, "read file", err)
	}
	return data, nil
}

// Write replaces the file at rel with content, creating parent directories
// as needed. Whole-file replacement only; there are no patch semantics.
func (s *Service) Write(root, rel string, content []byte) error {
	if rel == "" || rel == "/" {
		return apperr.New(apperr.CodeBadRequest, "path is required")
	}
	if len(content) > MaxFileSize {
		return apperr.Newf(apperr.CodeBadRequest, "content exceeds %d bytes", MaxFileSize)
	}
	abs, err := Resolve(root, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return apperr.Wrap(apperr.CodeIO, "create parent directory", err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return apperr.Wrap(apperr.CodeIO, "write file", err)
	}
	return nil
}
