package cache

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-flowsplit/pkg/types"
)

func report(path string) *types.FileReport {
	return &types.FileReport{
		Path: path,
		Functions: []types.FunctionReport{{
			Name:   "f",
			Line:   3,
			Splits: []types.VarSplit{{Variable: "x", Parts: []string{"x$v_0", "x$v_1"}}},
			Diagnostics: []types.Diagnostic{{
				Function: "f", Variable: "y", Message: "Variable [y] may be used uninitialized", Line: 5, Column: 7,
			}},
		}},
	}
}

func TestLRUCache_Basic(t *testing.T) {
	c := New(Options{MaxSize: 3})

	c.Set("a", report("a.php"))
	c.Set("b", report("b.php"))
	c.Set("c", report("c.php"))

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "a.php", val.Path)

	val, found = c.Get("b")
	require.True(t, found)
	assert.Equal(t, "b.php", val.Path)
}

func TestLRUCache_LRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options{MaxSize: 3, OnEvict: func(key string, _ *types.FileReport) {
		evicted = append(evicted, key)
	}})

	c.Set("a", report("a.php"))
	c.Set("b", report("b.php"))
	c.Set("c", report("c.php"))

	// Access 'a' to make it most recently used
	c.Get("a")

	c.Set("d", report("d.php"))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, found = c.Get(k)
		assert.True(t, found, "%s should still be present", k)
	}
}

func TestLRUCache_UpdateKeepsSize(t *testing.T) {
	c := New(Options{MaxSize: 2})
	c.Set("a", report("a.php"))
	c.Set("a", report("a2.php"))

	assert.Equal(t, 1, c.Len())
	val, _ := c.Get("a")
	assert.Equal(t, "a2.php", val.Path)
}

func TestLRUCache_DeleteAndClear(t *testing.T) {
	c := New(Options{MaxSize: 10})

	c.Set("a", report("a.php"))
	c.Set("b", report("b.php"))
	c.Delete("a")
	c.Delete("missing")

	assert.Equal(t, 1, c.Len())
	_, found := c.Get("a")
	assert.False(t, found)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	c.Set("z", report("z.php"))
	assert.Equal(t, 1, c.Len())
}

func TestLRUCache_LookupAndStats(t *testing.T) {
	c := New(Options{})
	c.Set("a", report("a.php"))

	_, err := c.Lookup("nope")
	assert.True(t, errors.Is(err, ErrKeyNotFound))

	r, err := c.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, "a.php", r.Path)

	s := c.Stats()
	assert.Equal(t, 1, s.Length)
	assert.Equal(t, int64(1), s.HitCount)
	assert.Equal(t, int64(1), s.MissCount)
	assert.InDelta(t, 0.5, c.HitRate(), 1e-9)
}

func TestLRUCache_SaveLoad(t *testing.T) {
	c := New(Options{MaxSize: 10})
	c.Set("a", report("a.php"))
	c.Set("b", report("b.php"))
	c.Get("a") // a is now most recent

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	restored := New(Options{MaxSize: 1})
	require.NoError(t, restored.Load(&buf))

	// Only the most recent entry survives the smaller limit.
	assert.Equal(t, 1, restored.Len())
	r, found := restored.Get("a")
	require.True(t, found)
	assert.Equal(t, report("a.php"), r)
}

func TestLRUCache_LoadOtherVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, msgpack.NewEncoder(&buf).Encode(&snapshot{
		Version: formatVersion + 1,
		Entries: []Entry{{Key: "a", Report: report("a.php")}},
	}))

	c := New(Options{})
	c.Set("old", report("old.php"))
	require.NoError(t, c.Load(&buf))
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_LoadGarbage(t *testing.T) {
	c := New(Options{})
	assert.Error(t, c.Load(bytes.NewReader([]byte{0xc1})))
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.msgpack")

	c := New(Options{MaxSize: 4})
	c.Set(Key("cfg", []byte("<?php")), report("x.php"))
	require.NoError(t, PersistToFile(c, path))

	loaded := New(Options{MaxSize: 4})
	require.NoError(t, LoadFromFile(loaded, path))
	r, found := loaded.Get(Key("cfg", []byte("<?php")))
	require.True(t, found)
	assert.Equal(t, "x.php", r.Path)

	assert.NoError(t, LoadFromFile(New(Options{}), filepath.Join(t.TempDir(), "missing")))
}

func TestKey(t *testing.T) {
	k := Key("w=1", []byte("<?php echo 1;"))
	assert.Len(t, k, 64)
	assert.Equal(t, k, Key("w=1", []byte("<?php echo 1;")))
	assert.NotEqual(t, k, Key("w=0", []byte("<?php echo 1;")))
	assert.NotEqual(t, k, Key("w=1", []byte("<?php echo 2;")))
}

func BenchmarkCacheGet(b *testing.B) {
	c := New(Options{MaxSize: 10000})
	for i := 0; i < 1000; i++ {
		c.Set(Key("", []byte{byte(i), byte(i >> 8)}), report("f.php"))
	}
	key := Key("", []byte{0xe7, 0x03})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(key)
	}
}
