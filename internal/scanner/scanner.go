// Package scanner finds the PHP sources below a directory. It honours
// .flowsplitignore files with gitignore-style patterns.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// IgnoreFileName is the per-directory ignore file.
const IgnoreFileName = ".flowsplitignore"

// FileInfo describes a discovered source file.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string // Absolute path
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	Extensions      []string // Source extensions, with the leading dot
	DefaultExcludes []string // Directory names never descended into
	IgnoreFileName  string
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		Extensions:     []string{".php", ".phtml", ".inc"},
		IgnoreFileName: IgnoreFileName,
		DefaultExcludes: []string{
			".git",
			".hg",
			".svn",
			".idea",
			".vscode",
			".flowsplit",
			"node_modules",
			"vendor",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Scan walks root and returns its PHP files sorted by path. A root that is
// itself a file is returned as is.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []FileInfo{{Path: filepath.Base(absRoot), FullPath: absRoot, Size: info.Size()}}, nil
	}

	// Patterns from nested ignore files are scoped to their directory.
	scoped := map[string][]IgnorePattern{}
	var files []FileInfo

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if rel != "." {
			if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
				return skip(d)
			}
			if d.IsDir() && s.isDefaultExcluded(d.Name()) {
				return filepath.SkipDir
			}
			if s.isIgnored(rel, d.IsDir(), scoped) {
				return skip(d)
			}
		}

		if d.IsDir() {
			patterns, err := readIgnoreFile(filepath.Join(p, s.opts.IgnoreFileName))
			if err != nil {
				return fmt.Errorf("loading ignore patterns: %w", err)
			}
			if len(patterns) > 0 {
				scoped[rel] = patterns
			}
			return nil
		}

		if !d.Type().IsRegular() || !s.hasExtension(d.Name()) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{Path: rel, FullPath: p, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func skip(d fs.DirEntry) error {
	if d.IsDir() {
		return filepath.SkipDir
	}
	return nil
}

// isIgnored checks rel against the patterns of every enclosing directory.
func (s *Scanner) isIgnored(rel string, isDir bool, scoped map[string][]IgnorePattern) bool {
	out := false
	dir := "."
	rest := rel
	for {
		if patterns, ok := scoped[dir]; ok {
			for _, p := range patterns {
				if p.Match(rest, isDir) {
					out = !p.IsNegation()
				}
			}
		}
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return out
		}
		dir = path.Join(dir, rest[:i])
		rest = rest[i+1:]
	}
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

func (s *Scanner) hasExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
