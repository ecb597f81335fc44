package payload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	const testid = "df31ae23ab8b75b5643c2f846c570997edc71333"

	t.Run("round trip", func(t *testing.T) {
		store, err := Open(t.TempDir())
		require.NoError(t, err)

		in := Payload{
			Params: map[string]any{"query": "is:open label:bug"},
			Output: "found 3 issues",
		}
		require.NoError(t, store.Write(testid, in))

		out, err := store.Read(testid)
		require.NoError(t, err)
		require.Equal(t, in, out)
	})

	t.Run("sharded path", func(t *testing.T) {
		dir := t.TempDir()
		store, err := Open(dir)
		require.NoError(t, err)

		require.NoError(t, store.Write(testid, Payload{Output: "hi"}))

		_, err = os.Stat(filepath.Join(dir, testid[:2], testid+".json"))
		require.NoError(t, err)
	})

	t.Run("read missing", func(t *testing.T) {
		store, err := Open(t.TempDir())
		require.NoError(t, err)
		_, err = store.Read(testid)
		require.Error(t, err)
	})

	t.Run("short id", func(t *testing.T) {
		store, err := Open(t.TempDir())
		require.NoError(t, err)
		require.Error(t, store.Write("a", Payload{}))
	})

	t.Run("delete", func(t *testing.T) {
		store, err := Open(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Write(testid, Payload{Output: "hi"}))
		require.NoError(t, store.Delete(testid))
		require.NoError(t, store.Delete(testid))

		_, err = store.Read(testid)
		require.Error(t, err)
	})

	t.Run("empty dir", func(t *testing.T) {
		_, err := Open("")
		require.Error(t, err)
	})
}
