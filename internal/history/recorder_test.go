package history

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/crew/internal/agent"
	"github.com/dotcommander/crew/internal/history/payload"
)

func TestRecorder(t *testing.T) {
	newRecorder := func(t *testing.T) (*Recorder, *DB, *payload.Store) {
		db := testDB(t)
		store, err := payload.Open(t.TempDir())
		require.NoError(t, err)
		return NewRecorder(db, store, nil), db, store
	}

	t.Run("ok", func(t *testing.T) {
		rec, db, store := newRecorder(t)

		rec.Observe(agent.CallStats{
			Server:   "github",
			Tool:     "github_search_issues",
			Args:     map[string]any{"query": "is:open"},
			Output:   "found 3 issues",
			Start:    time.Now(),
			Duration: 120 * time.Millisecond,
		})

		list := db.List()
		require.Len(t, list, 1)
		require.Equal(t, "github", list[0].Server)
		require.Equal(t, StatusOK, list[0].Status)
		require.Empty(t, list[0].Err)

		p, err := store.Read(list[0].ID)
		require.NoError(t, err)
		require.Equal(t, "found 3 issues", p.Output)
		require.Equal(t, map[string]any{"query": "is:open"}, p.Params)
	})

	t.Run("error", func(t *testing.T) {
		rec, db, store := newRecorder(t)

		rec.Observe(agent.CallStats{
			Server: "github",
			Tool:   "github_search_issues",
			Err:    errors.New("index out of range"),
			Start:  time.Now(),
		})

		list := db.List()
		require.Len(t, list, 1)
		require.Equal(t, StatusError, list[0].Status)
		require.Equal(t, "index out of range", list[0].Err)

		p, err := store.Read(list[0].ID)
		require.NoError(t, err)
		require.Equal(t, "index out of range", p.Err)
	})

	t.Run("timeout", func(t *testing.T) {
		rec, db, _ := newRecorder(t)

		rec.Observe(agent.CallStats{
			Server: "github",
			Tool:   "github_search_issues",
			Err:    fmt.Errorf("%w: github_search_issues gave no answer within 10m0s", agent.ErrCallTimeout),
			Start:  time.Now(),
		})

		list := db.List()
		require.Len(t, list, 1)
		require.Equal(t, StatusTimeout, list[0].Status)
	})

	t.Run("no payload store", func(t *testing.T) {
		db := testDB(t)
		rec := NewRecorder(db, nil, nil)

		rec.Observe(agent.CallStats{
			Server: "github",
			Tool:   "github_search_issues",
			Start:  time.Now(),
		})

		require.Len(t, db.List(), 1)
	})
}
