package sop

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vigilops/vigil/internal/types"
)

//go:embed builtin/*.sop.toml
var builtinFS embed.FS

// Library resolves SOPs by key from search paths, falling back to the
// compiled-in defaults.
//
// Lookup chain (highest to lowest priority):
//  1. .vigil/sops/<key>.sop.toml (project-level)
//  2. ~/.vigil/sops/<key>.sop.toml (user-level)
//  3. Embedded default
//
// File loads are cached by modification time, so an edited SOP is picked
// up on the next load without restarting. Safe for concurrent use.
type Library struct {
	mu          sync.Mutex
	searchPaths []string
	fileCache   map[string]*cachedFile
	builtins    map[string]*SOP

	// Extends resolution state, guarded by mu.
	resolvingSet   map[string]bool
	resolvingChain []string
}

type cachedFile struct {
	sop   *SOP
	mtime time.Time
}

// NewLibrary creates a library searching the given directories in order.
// With no arguments the default chain is used: ./.vigil/sops, then
// ~/.vigil/sops.
func NewLibrary(searchPaths ...string) *Library {
	paths := searchPaths
	if len(paths) == 0 {
		paths = defaultSearchPaths()
	}
	return &Library{
		searchPaths:  paths,
		fileCache:    make(map[string]*cachedFile),
		resolvingSet: make(map[string]bool),
	}
}

func defaultSearchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".vigil", "sops"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".vigil", "sops"))
	}
	return paths
}

// Load resolves a SOP by key: search paths first, then built-ins. The
// returned SOP has extends applied and is validated.
func (l *Library) Load(key string) (*SOP, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(key)
}

// ForIncidentType returns the first SOP covering the incident type, keys
// sorted, search-path SOPs before built-ins. The boolean reports whether
// one was found.
func (l *Library) ForIncidentType(t types.ActivityType) (*SOP, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range l.keys() {
		s, err := l.load(key)
		if err != nil {
			continue
		}
		if s.AppliesTo(t) {
			return s, true
		}
	}
	return nil, false
}

// StepsFor returns the SOP key and ordered step ids for an incident type.
// An empty key means no SOP covers the type. Implements the orchestrator's
// SOPSource.
func (l *Library) StepsFor(t types.ActivityType) (string, []string) {
	s, ok := l.ForIncidentType(t)
	if !ok {
		return "", nil
	}
	return s.Key, s.StepIDs()
}

// List returns every resolvable SOP, sorted by key.
func (l *Library) List() ([]*SOP, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*SOP
	for _, key := range l.keys() {
		s, err := l.load(key)
		if err != nil {
			return nil, fmt.Errorf("sop %s: %w", key, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// keys enumerates available SOP keys: files on the search paths plus
// built-ins, deduplicated, sorted.
func (l *Library) keys() []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(key string) {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	for _, dir := range l.searchPaths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if name := entry.Name(); strings.HasSuffix(name, SOPExt) {
				add(strings.TrimSuffix(name, SOPExt))
			}
		}
	}
	if err := l.ensureBuiltins(); err == nil {
		for key := range l.builtins {
			add(key)
		}
	}
	sort.Strings(keys)
	return keys
}

// load resolves one SOP with extends applied. Caller holds the mutex.
func (l *Library) load(key string) (*SOP, error) {
	if l.resolvingSet[key] {
		chain := append(l.resolvingChain, key)
		return nil, fmt.Errorf("circular extends detected: %s", strings.Join(chain, " -> "))
	}
	l.resolvingSet[key] = true
	l.resolvingChain = append(l.resolvingChain, key)
	defer func() {
		delete(l.resolvingSet, key)
		l.resolvingChain = l.resolvingChain[:len(l.resolvingChain)-1]
	}()

	base, err := l.lookup(key)
	if err != nil {
		return nil, err
	}
	if len(base.Extends) == 0 {
		if err := base.Validate(); err != nil {
			return nil, err
		}
		return base, nil
	}

	// Parent steps come first, child steps after; the child's description
	// wins when set.
	merged := &SOP{
		Key:           base.Key,
		Description:   base.Description,
		IncidentTypes: base.IncidentTypes,
		Source:        base.Source,
	}
	for _, parentKey := range base.Extends {
		parent, err := l.load(parentKey)
		if err != nil {
			return nil, fmt.Errorf("extends %s: %w", parentKey, err)
		}
		merged.Steps = append(merged.Steps, parent.Steps...)
		if merged.Description == "" {
			merged.Description = parent.Description
		}
	}
	merged.Steps = append(merged.Steps, base.Steps...)

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// lookup finds the raw (unresolved) SOP for a key: search paths first,
// then built-ins.
func (l *Library) lookup(key string) (*SOP, error) {
	for _, dir := range l.searchPaths {
		path := filepath.Join(dir, key+SOPExt)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if cached, ok := l.fileCache[path]; ok && cached.mtime.Equal(info.ModTime()) {
			return cached.sop, nil
		}
		data, err := os.ReadFile(path) // #nosec G304 -- path comes from controlled search paths
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		s, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		s.Source = path
		l.fileCache[path] = &cachedFile{sop: s, mtime: info.ModTime()}
		return s, nil
	}

	if err := l.ensureBuiltins(); err != nil {
		return nil, err
	}
	if s, ok := l.builtins[key]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("sop %q not found in search paths", key)
}

// ensureBuiltins parses the embedded defaults once.
func (l *Library) ensureBuiltins() error {
	if l.builtins != nil {
		return nil
	}
	l.builtins = make(map[string]*SOP)
	return fs.WalkDir(builtinFS, "builtin", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := builtinFS.ReadFile(path)
		if err != nil {
			return err
		}
		s, err := parse(data)
		if err != nil {
			return fmt.Errorf("builtin %s: %w", path, err)
		}
		l.builtins[s.Key] = s
		return nil
	})
}

func parse(data []byte) (*SOP, error) {
	var s SOP
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("toml: %w", err)
	}
	return &s, nil
}
