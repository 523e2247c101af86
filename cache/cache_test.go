package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

func testRecord() *Record {
	return &Record{
		LayerFiles: map[string]string{
			"model.layers.0.self_attn.q_proj.weight": "model-00001-of-00002.safetensors",
			"model.layers.1.self_attn.q_proj.weight": "model-00002-of-00002.safetensors",
			"model.embed_tokens.weight":              "model-00001-of-00002.safetensors",
		},
		LayerSizes: []uint64{2368, 2368},
		NumLayers:  2,
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.json")

	rec := testRecord()
	require.NoError(t, Store(path, rec))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, rec.LayerFiles, got.LayerFiles)
	assert.Equal(t, rec.LayerSizes, got.LayerSizes)
	assert.Equal(t, rec.NumLayers, got.NumLayers)
}

func TestStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "layers.json")

	require.NoError(t, Store(path, testRecord()))

	_, err := Load(path)
	require.NoError(t, err)
}

func TestStoreHumanReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.json")
	require.NoError(t, Store(path, testRecord()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// indented json with the stable field names
	assert.Contains(t, string(data), "\n  \"layer_files\"")
	assert.Contains(t, string(data), "\n  \"layer_sizes\"")
	assert.Contains(t, string(data), "\n  \"num_layers\"")
}

func TestStoreOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layers.json")

	require.NoError(t, Store(path, testRecord()))

	update := testRecord()
	update.LayerSizes = []uint64{100, 100}
	require.NoError(t, Store(path, update))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 100}, got.LayerSizes)

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "layers.json", entries[0].Name())
}

func TestStoreRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.json")

	rec := testRecord()
	rec.NumLayers = 5
	require.Error(t, Store(path, rec))

	// nothing was written
	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "layers.json"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorrupt(t *testing.T) {
	valid, err := json.Marshal(testRecord())
	require.NoError(t, err)

	var mismatched Record
	require.NoError(t, json.Unmarshal(valid, &mismatched))
	mismatched.NumLayers = 3
	mismatchedJSON, err := json.Marshal(mismatched)
	require.NoError(t, err)

	dir := fs.NewDir(t, "layer-cache",
		fs.WithFile("garbage.json", "{not json"),
		fs.WithFile("empty.json", "{}"),
		fs.WithFile("null.json", "null"),
		fs.WithFile("no-files.json", `{"layer_sizes":[1,2],"num_layers":2}`),
		fs.WithFile("no-sizes.json", `{"layer_files":{"a":"b"},"num_layers":2}`),
		fs.WithFile("zero-size.json", `{"layer_files":{"a":"b"},"layer_sizes":[100,0],"num_layers":2}`),
		fs.WithFile("count-mismatch.json", string(mismatchedJSON)),
		fs.WithFile("wrong-types.json", `{"layer_files":{"a":"b"},"layer_sizes":["x"],"num_layers":1}`),
	)
	defer dir.Remove()

	for _, name := range []string{
		"garbage.json",
		"empty.json",
		"null.json",
		"no-files.json",
		"no-sizes.json",
		"zero-size.json",
		"count-mismatch.json",
		"wrong-types.json",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(dir.Join(name))
			require.ErrorIs(t, err, ErrCorrupt)
			require.NotErrorIs(t, err, ErrNotFound)
		})
	}
}
