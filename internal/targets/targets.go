// Package targets builds the fixed set of files the supervisor watches.
//
// Every target is tagged with its origin. Preload targets were loaded by the
// supervisor before the first child started; a change to one of them can
// only be picked up by a full reload. Glob targets only need the child to be
// restarted.
package targets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultGlob is used when no glob pattern is configured.
const DefaultGlob = "**/*.py"

// Origin records why a path is watched.
type Origin int

const (
	OriginGlob Origin = iota
	OriginPreload
)

func (origin Origin) String() string {
	switch origin {
	case OriginGlob:
		return "glob"
	case OriginPreload:
		return "preload"
	default:
		return "unknown"
	}
}

// Target is one watched file.
type Target struct {
	Path   string
	Origin Origin
}

// Set is the immutable result of Build.
type Set struct {
	targets []Target
	preload map[string]struct{}
}

// Build merges preload paths and glob matches under workDir into a Set.
// A path reached both ways is a preload target.
func Build(workDir string, preload []string, patterns []string) (Set, error) {
	if strings.TrimSpace(workDir) == "" {
		workDir = "."
	}
	root, err := filepath.Abs(workDir)
	if err != nil {
		return Set{}, fmt.Errorf("resolve working directory: %w", err)
	}

	origins := make(map[string]Origin)
	for _, path := range preload {
		abs, err := absolute(root, path)
		if err != nil {
			continue
		}
		origins[canonical(abs)] = OriginPreload
	}

	matches, err := ExpandGlobs(root, patterns)
	if err != nil {
		return Set{}, err
	}
	for _, abs := range matches {
		abs = canonical(abs)
		if _, ok := origins[abs]; ok {
			continue
		}
		origins[abs] = OriginGlob
	}

	return newSet(origins), nil
}

// FromPaths builds a Set directly, bypassing globbing and preload
// resolution.
func FromPaths(preload []string, glob []string) Set {
	origins := make(map[string]Origin, len(preload)+len(glob))
	for _, path := range glob {
		origins[canonical(path)] = OriginGlob
	}
	for _, path := range preload {
		origins[canonical(path)] = OriginPreload
	}
	return newSet(origins)
}

func newSet(origins map[string]Origin) Set {
	set := Set{
		targets: make([]Target, 0, len(origins)),
		preload: make(map[string]struct{}),
	}
	for path, origin := range origins {
		set.targets = append(set.targets, Target{Path: path, Origin: origin})
		if origin == OriginPreload {
			set.preload[path] = struct{}{}
		}
	}
	sort.Slice(set.targets, func(i, j int) bool {
		return set.targets[i].Path < set.targets[j].Path
	})
	return set
}

// ExpandGlobs returns the absolute regular files under root matching any
// doublestar pattern, sorted and de-duplicated.
func ExpandGlobs(root string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var matches []string
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return nil, fmt.Errorf("invalid glob pattern %q", pattern)
		}
		base, relPattern := doublestar.SplitPattern(filepath.ToSlash(pattern))
		searchRoot := root
		if filepath.IsAbs(pattern) {
			searchRoot = filepath.FromSlash(base)
		} else if base != "." {
			searchRoot = filepath.Join(root, filepath.FromSlash(base))
		}
		found, err := doublestar.Glob(os.DirFS(searchRoot), relPattern, doublestar.WithFilesOnly())
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("expand glob %q: %w", pattern, err)
		}
		for _, rel := range found {
			abs := filepath.Join(searchRoot, filepath.FromSlash(rel))
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			matches = append(matches, abs)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

func absolute(root, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("empty path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return filepath.Clean(path), nil
}

// canonical resolves symlinks the same way the watcher does so that batch
// paths and target paths compare equal.
func canonical(path string) string {
	cleaned := filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
		return resolved
	}
	return cleaned
}

// Paths lists every watched path sorted.
func (set Set) Paths() []string {
	out := make([]string, 0, len(set.targets))
	for _, target := range set.targets {
		out = append(out, target.Path)
	}
	return out
}

// IsPreload reports whether path is a preload target.
func (set Set) IsPreload(path string) bool {
	_, ok := set.preload[path]
	return ok
}

// Count returns the number of targets per origin.
func (set Set) Count(origin Origin) int {
	count := 0
	for _, target := range set.targets {
		if target.Origin == origin {
			count++
		}
	}
	return count
}

func (set Set) Len() int {
	return len(set.targets)
}
