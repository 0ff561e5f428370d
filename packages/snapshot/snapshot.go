// Package snapshot compares response bodies against values recorded in a
// JSON file on an earlier run.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// MaxDiffPaths caps how many differing paths a Result lists
const MaxDiffPaths = 10

// Store holds named snapshots in a single file. The file is re-read on every
// comparison so edits made between runs in watch mode are picked up.
type Store struct {
	mu     sync.Mutex
	path   string
	update bool
}

// NewStore returns a store backed by path. With update set, mismatching
// snapshots are overwritten instead of failing.
func NewStore(path string, update bool) *Store {
	return &Store{path: path, update: update}
}

// Path returns the snapshot file
func (s *Store) Path() string {
	return s.path
}

// Result represents the result of a snapshot comparison.
type Result struct {
	Passed     bool
	Message    string
	Expected   any
	Actual     any
	Diff       []string
	IsNew      bool
	WasUpdated bool
}

// Compare checks actual against the snapshot stored under name. A missing
// snapshot is recorded and passes.
func (s *Store) Compare(name string, actual any) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	actual = normalize(actual)
	result := &Result{Actual: actual}

	snapshots, err := s.load()
	if err != nil {
		result.Message = fmt.Sprintf("failed to load snapshots: %v", err)
		return result
	}

	expected, exists := snapshots[name]
	if !exists {
		snapshots[name] = actual
		if err := s.save(snapshots); err != nil {
			result.Message = fmt.Sprintf("failed to save snapshot: %v", err)
			return result
		}
		result.Passed = true
		result.IsNew = true
		result.Expected = actual
		result.Message = "new snapshot created"
		return result
	}

	result.Expected = expected
	if reflect.DeepEqual(expected, actual) {
		result.Passed = true
		return result
	}

	result.Diff = Diff(expected, actual)
	if s.update {
		snapshots[name] = actual
		if err := s.save(snapshots); err != nil {
			result.Message = fmt.Sprintf("failed to update snapshot: %v", err)
			return result
		}
		result.Passed = true
		result.WasUpdated = true
		result.Message = "snapshot updated"
		return result
	}

	result.Message = "snapshot mismatch at " + strings.Join(result.Diff, ", ")
	return result
}

func (s *Store) load() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, err
	}

	var snapshots map[string]any
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if snapshots == nil {
		snapshots = make(map[string]any)
	}
	return snapshots, nil
}

func (s *Store) save(snapshots map[string]any) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(data, '\n'), 0644)
}

// normalize round-trips v through JSON so numbers and nested types
// compare the same way they are stored
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// Diff lists the paths at which two decoded JSON values differ, up to
// MaxDiffPaths. The root is reported as "$".
func Diff(expected, actual any) []string {
	var paths []string
	diff("$", expected, actual, &paths)
	if len(paths) > MaxDiffPaths {
		paths = append(paths[:MaxDiffPaths], fmt.Sprintf("and %d more", len(paths)-MaxDiffPaths))
	}
	return paths
}

func diff(path string, expected, actual any, paths *[]string) {
	switch e := expected.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			*paths = append(*paths, path)
			return
		}
		keys := make([]string, 0, len(e)+len(a))
		for k := range e {
			keys = append(keys, k)
		}
		for k := range a {
			if _, ok := e[k]; !ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			ev, eok := e[k]
			av, aok := a[k]
			if eok != aok {
				*paths = append(*paths, path+"."+k)
				continue
			}
			diff(path+"."+k, ev, av, paths)
		}
	case []any:
		a, ok := actual.([]any)
		if !ok {
			*paths = append(*paths, path)
			return
		}
		for i := 0; i < len(e) || i < len(a); i++ {
			p := fmt.Sprintf("%s[%d]", path, i)
			if i >= len(e) || i >= len(a) {
				*paths = append(*paths, p)
				continue
			}
			diff(p, e[i], a[i], paths)
		}
	default:
		if !reflect.DeepEqual(expected, actual) {
			*paths = append(*paths, path)
		}
	}
}
