package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()

	level, err := NewLevelDB(filepath.Join(dir, "level"))
	require.NoError(t, err)

	dsn, err := FileDSN(filepath.Join(dir, "state.sqlite"))
	require.NoError(t, err)
	lite, err := NewSQLiteDB(dsn)
	require.NoError(t, err)

	backends := map[string]Database{
		"memdb":   NewMemDB(),
		"leveldb": level,
		"sqlite":  lite,
	}
	t.Cleanup(func() {
		for _, db := range backends {
			db.Close()
		}
	})
	return backends
}

func TestDatabasePutGetDelete(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.Put([]byte("a"), []byte("one")))
			got, err := db.Get([]byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("one"), got)

			require.NoError(t, db.Put([]byte("a"), []byte("two")))
			got, err = db.Get([]byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("two"), got)

			ok, err := db.Has([]byte("a"))
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, db.Delete([]byte("a")))
			ok, err = db.Has([]byte("a"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDatabaseBatchIsAppliedOnWrite(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("gone"), []byte("x")))

			batch := db.NewBatch()
			batch.Put([]byte("k1"), []byte("v1"))
			batch.Put([]byte("k2"), []byte("v2"))
			batch.Delete([]byte("gone"))
			require.Equal(t, 3, batch.Len())

			ok, err := db.Has([]byte("k1"))
			require.NoError(t, err)
			require.False(t, ok, "batch must not be visible before Write")

			require.NoError(t, batch.Write())

			v, err := db.Get([]byte("k2"))
			require.NoError(t, err)
			require.Equal(t, []byte("v2"), v)
			_, err = db.Get([]byte("gone"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDatabaseIterateByPrefixInOrder(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("p/\x00\x02"), []byte("b")))
			require.NoError(t, db.Put([]byte("p/\x00\x01"), []byte("a")))
			require.NoError(t, db.Put([]byte("q/\x00\x01"), []byte("z")))

			var seen []string
			require.NoError(t, db.Iterate([]byte("p/"), func(key, value []byte) bool {
				seen = append(seen, string(value))
				return true
			}))
			require.Equal(t, []string{"a", "b"}, seen)

			seen = nil
			require.NoError(t, db.Iterate([]byte("p/"), func(key, value []byte) bool {
				seen = append(seen, string(value))
				return false
			}))
			require.Equal(t, []string{"a"}, seen)
		})
	}
}

func TestFileDSNRequiresPath(t *testing.T) {
	_, err := FileDSN("  ")
	require.ErrorIs(t, err, ErrPathRequired)
}
