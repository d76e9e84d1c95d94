// Package hints loads AGENTS.md / .goosehints project context files, with
// @path imports resolved relative to the git root (or, when no git root is
// found, relative to the directory the Loader was created with; imports are
// never resolved against the importing file's own directory), reads bounded
// to that root, and fsnotify-driven hot reload (§6's persisted-state
// contract).
package hints

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// candidateNames are checked, in order, in every directory Load is asked
// about; the first that exists wins for that directory.
var candidateNames = []string{"AGENTS.md", ".goosehints"}

// File is one resolved hints file: its path and fully import-expanded text.
type File struct {
	Path    string
	Content string
}

// importLine matches a bare "@relative/path" on its own line — the hints
// import syntax (§6).
var importLine = regexp.MustCompile(`(?m)^@(\S+)[ \t]*$`)

const maxImportDepth = 5

// Loader resolves hints files bounded to a root directory, with change
// notifications delivered via fsnotify.
type Loader struct {
	root    string
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	watched map[string]bool
}

// NewLoader builds a Loader rooted at the git repository containing
// startDir, or at startDir itself if no .git directory is found walking
// upward. The returned Loader owns a background fsnotify watch goroutine;
// call Close to stop it.
func NewLoader(startDir string) (*Loader, error) {
	root := findGitRoot(startDir)
	if root == "" {
		root = startDir
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("hints: create watcher: %w", err)
	}
	l := &Loader{root: root, watcher: watcher, watched: map[string]bool{}}
	go l.watchLoop()
	return l, nil
}

func findGitRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info != nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Root returns the resolved bounding root.
func (l *Loader) Root() string { return l.root }

// Load returns every hints file found directly in dir (AGENTS.md then
// .goosehints), with @path imports expanded. Missing files are skipped, not
// an error; a file outside the root (including an import target) is
// rejected.
func (l *Loader) Load(dir string) ([]File, error) {
	var files []File
	for _, name := range candidateNames {
		path := filepath.Join(dir, name)
		content, err := l.readBounded(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		resolved, err := l.resolveImports(content, 0)
		if err != nil {
			return nil, err
		}
		l.watch(path)
		files = append(files, File{Path: path, Content: resolved})
	}
	return files, nil
}

// readBounded reads path after confirming it falls within the loader's
// root, rejecting anything that escapes it (including via ../ segments).
func (l *Loader) readBounded(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(l.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("hints: %s is outside root %s", path, l.root)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// resolveImports expands every "@relative/path" line with the referenced
// file's (recursively resolved) content, relative to the loader's root. An
// import that cannot be read is left as the literal "@path" line rather
// than failing the whole file.
func (l *Loader) resolveImports(content string, depth int) (string, error) {
	if depth >= maxImportDepth {
		return content, nil
	}
	var outerErr error
	resolved := importLine.ReplaceAllStringFunc(content, func(match string) string {
		sub := importLine.FindStringSubmatch(match)
		importPath := filepath.Join(l.root, sub[1])
		imported, err := l.readBounded(importPath)
		if err != nil {
			return match
		}
		expanded, err := l.resolveImports(imported, depth+1)
		if err != nil {
			outerErr = err
			return match
		}
		l.watch(importPath)
		return expanded
	})
	if outerErr != nil {
		return "", outerErr
	}
	return resolved, nil
}

func (l *Loader) watch(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watched[path] {
		return
	}
	if err := l.watcher.Add(path); err == nil {
		l.watched[path] = true
	}
}

// Changes returns a channel of paths that changed since the last read of
// this channel — consumers re-call Load for the affected directories.
func (l *Loader) Changes() <-chan string {
	out := make(chan string, 16)
	go func() {
		for event := range l.watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Create|fsnotify.Rename) != 0 {
				out <- event.Name
			}
		}
		close(out)
	}()
	return out
}

func (l *Loader) watchLoop() {
	for range l.watcher.Errors {
		// Watcher errors are non-fatal; hints simply stop hot-reloading for
		// the affected path until the next explicit Load call re-adds it.
	}
}

// Close stops the watcher.
func (l *Loader) Close() error { return l.watcher.Close() }
