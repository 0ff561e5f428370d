package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Compare_NewSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "__snapshots__", "api.snap.json")
	store := NewStore(path, false)

	result := store.Compare("GET /users/1", map[string]any{"id": 1, "name": "John"})
	assert.True(t, result.Passed, result.Message)
	assert.True(t, result.IsNew)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, map[string]any{"id": float64(1), "name": "John"}, stored["GET /users/1"])
}

func TestStore_Compare_Match(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.snap.json")
	data := map[string]any{"id": 1, "tags": []string{"a", "b"}}

	require.True(t, NewStore(path, false).Compare("user", data).IsNew)

	result := NewStore(path, false).Compare("user", data)
	assert.True(t, result.Passed, result.Message)
	assert.False(t, result.IsNew)
	assert.Empty(t, result.Diff)
}

func TestStore_Compare_Mismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.snap.json")
	store := NewStore(path, false)
	store.Compare("user", map[string]any{"id": 1, "name": "John"})

	result := store.Compare("user", map[string]any{"id": 1, "name": "Jane", "extra": true})
	assert.False(t, result.Passed)
	assert.Equal(t, []string{"$.extra", "$.name"}, result.Diff)
	assert.Equal(t, "snapshot mismatch at $.extra, $.name", result.Message)

	// the stored value is unchanged
	again := store.Compare("user", map[string]any{"id": 1, "name": "John"})
	assert.True(t, again.Passed)
}

func TestStore_Compare_Update(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.snap.json")
	NewStore(path, false).Compare("user", "old body")

	result := NewStore(path, true).Compare("user", "new body")
	assert.True(t, result.Passed)
	assert.True(t, result.WasUpdated)
	assert.Equal(t, []string{"$"}, result.Diff)

	assert.True(t, NewStore(path, false).Compare("user", "new body").Passed)
}

func TestStore_Compare_SeparateNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.snap.json")
	store := NewStore(path, false)

	store.Compare("GET /a", 1)
	store.Compare("GET /b", 2)

	assert.True(t, store.Compare("GET /a", 1).Passed)
	assert.True(t, store.Compare("GET /b", 2).Passed)
	assert.False(t, store.Compare("GET /a", 2).Passed)
}

func TestStore_Compare_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.snap.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	result := NewStore(path, true).Compare("user", 1)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "failed to load snapshots")
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     []string
	}{
		{"equal", map[string]any{"a": 1.0}, map[string]any{"a": 1.0}, nil},
		{"scalar", 1.0, 2.0, []string{"$"}},
		{"type change", map[string]any{"a": 1.0}, []any{1.0}, []string{"$"}},
		{"nested field", map[string]any{"a": map[string]any{"b": 1.0}}, map[string]any{"a": map[string]any{"b": 2.0}}, []string{"$.a.b"}},
		{"missing key", map[string]any{"a": 1.0, "b": 2.0}, map[string]any{"a": 1.0}, []string{"$.b"}},
		{"array element", []any{1.0, 2.0}, []any{1.0, 3.0}, []string{"$[1]"}},
		{"array length", []any{1.0}, []any{1.0, 2.0, 3.0}, []string{"$[1]", "$[2]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.expected, tt.actual))
		})
	}
}

func TestDiff_Capped(t *testing.T) {
	expected := make([]any, 15)
	actual := make([]any, 15)
	for i := range expected {
		expected[i] = float64(i)
		actual[i] = float64(i + 1)
	}

	paths := Diff(expected, actual)
	assert.Len(t, paths, MaxDiffPaths+1)
	assert.Equal(t, "and 5 more", paths[MaxDiffPaths])
}
