package targets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSystemPrefixes are never watched as preload targets.
var DefaultSystemPrefixes = []string{"/usr"}

// Resolver maps preload names to the files backing them. Names it cannot
// handle are returned in remaining so the next resolver can try them.
type Resolver interface {
	Resolve(ctx context.Context, names []string) (paths []string, remaining []string, err error)
}

// FileResolver resolves names that are existing filesystem paths. A
// directory resolves to the regular files directly inside it.
type FileResolver struct {
	WorkDir string
}

func (resolver FileResolver) Resolve(_ context.Context, names []string) ([]string, []string, error) {
	root := resolver.WorkDir
	if root == "" {
		root = "."
	}
	var paths []string
	var remaining []string
	for _, name := range names {
		candidate := name
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(root, candidate)
		}
		info, err := os.Stat(candidate)
		if err != nil {
			remaining = append(remaining, name)
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			remaining = append(remaining, name)
			continue
		}
		if !info.IsDir() {
			paths = append(paths, abs)
			continue
		}
		entries, err := os.ReadDir(abs)
		if err != nil {
			remaining = append(remaining, name)
			continue
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				paths = append(paths, filepath.Join(abs, entry.Name()))
			}
		}
	}
	return paths, remaining, nil
}

// pythonImportScript imports every name given on the command line and
// prints the files backing all loaded modules.
const pythonImportScript = `import importlib, json, sys
failed = {}
for name in sys.argv[1:]:
    try:
        importlib.import_module(name)
    except BaseException as exc:
        failed[name] = repr(exc)
files = sorted({f for m in list(sys.modules.values()) for f in [getattr(m, "__file__", None)] if f})
print(json.dumps({"files": files, "failed": failed}))
`

// PythonResolver imports module names with an interpreter and reports
// every module file that the import loaded.
type PythonResolver struct {
	Interpreter string
	WorkDir     string
}

type pythonResolution struct {
	Files  []string          `json:"files"`
	Failed map[string]string `json:"failed"`
}

func (resolver PythonResolver) Resolve(ctx context.Context, names []string) ([]string, []string, error) {
	if len(names) == 0 {
		return nil, nil, nil
	}
	interpreter := resolver.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	args := append([]string{"-c", pythonImportScript}, names...)
	cmd := exec.CommandContext(ctx, interpreter, args...)
	cmd.Dir = resolver.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, names, fmt.Errorf("%s: %w: %s", interpreter, err, detail)
		}
		return nil, names, fmt.Errorf("%s: %w", interpreter, err)
	}

	var resolution pythonResolution
	if err := json.Unmarshal(stdout.Bytes(), &resolution); err != nil {
		return nil, names, fmt.Errorf("decode %s output: %w", interpreter, err)
	}

	var failErr error
	failedNames := make([]string, 0, len(resolution.Failed))
	for name := range resolution.Failed {
		failedNames = append(failedNames, name)
	}
	sort.Strings(failedNames)
	for _, name := range failedNames {
		failErr = errors.Join(failErr, fmt.Errorf("import %s: %s", name, resolution.Failed[name]))
	}

	paths := make([]string, 0, len(resolution.Files))
	for _, file := range resolution.Files {
		if !filepath.IsAbs(file) && resolver.WorkDir != "" {
			file = filepath.Join(resolver.WorkDir, file)
		}
		paths = append(paths, filepath.Clean(file))
	}
	return paths, nil, failErr
}

// Chain tries each resolver in order, passing along the names the previous
// one could not handle.
type Chain []Resolver

func (chain Chain) Resolve(ctx context.Context, names []string) ([]string, []string, error) {
	remaining := compactNames(names)
	var paths []string
	var resolveErr error
	for _, resolver := range chain {
		if len(remaining) == 0 {
			break
		}
		found, rest, err := resolver.Resolve(ctx, remaining)
		paths = append(paths, found...)
		resolveErr = errors.Join(resolveErr, err)
		remaining = rest
	}
	return paths, remaining, resolveErr
}

// ResolvePreload runs resolver over names and drops files under any of the
// system prefixes. Failures are returned alongside whatever did resolve.
func ResolvePreload(ctx context.Context, resolver Resolver, names []string, systemPrefixes []string) ([]string, error) {
	names = compactNames(names)
	if len(names) == 0 || resolver == nil {
		return nil, nil
	}
	paths, remaining, err := resolver.Resolve(ctx, names)
	for _, name := range remaining {
		err = errors.Join(err, fmt.Errorf("preload %s: not found", name))
	}
	return FilterSystem(paths, systemPrefixes), err
}

// FilterSystem removes paths under any prefix and de-duplicates the rest.
func FilterSystem(paths []string, prefixes []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		if underPrefix(path, prefixes) {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func underPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// SplitList splits a comma-separated flag value, trimming blanks.
func SplitList(values ...string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func compactNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
