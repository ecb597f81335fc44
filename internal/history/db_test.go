package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testDB(tb testing.TB) *DB {
	db, err := Open(":memory:")
	require.NoError(tb, err)
	tb.Cleanup(func() {
		require.NoError(tb, db.Close())
	})
	return db
}

func testRecord(id, tool string, startedAt time.Time) Record {
	return Record{
		ID:        id,
		Server:    "github",
		Tool:      tool,
		Status:    StatusOK,
		StartedAt: startedAt,
		Duration:  250 * time.Millisecond,
	}
}

func TestDB(t *testing.T) {
	const testid = "df31ae23ab8b75b5643c2f846c570997edc71333"

	t.Run("list-empty", func(t *testing.T) {
		db := testDB(t)
		list := db.List()
		require.Empty(t, list)
	})

	t.Run("save", func(t *testing.T) {
		db := testDB(t)

		require.NoError(t, db.Save(testRecord(testid, "github_search_issues", time.Now().UTC())))

		rec, err := db.Find("df31")
		require.NoError(t, err)
		require.Equal(t, testid, rec.ID)
		require.Equal(t, "github_search_issues", rec.Tool)
		require.Equal(t, StatusOK, rec.Status)

		list := db.List()
		require.Len(t, list, 1)
	})

	t.Run("save no id", func(t *testing.T) {
		db := testDB(t)
		require.Error(t, db.Save(testRecord("", "github_search_issues", time.Now().UTC())))
	})

	t.Run("save no tool", func(t *testing.T) {
		db := testDB(t)
		require.Error(t, db.Save(testRecord(NewCallID(), "", time.Now().UTC())))
	})

	t.Run("save stamps zero start time", func(t *testing.T) {
		db := testDB(t)

		require.NoError(t, db.Save(testRecord(testid, "github_search_issues", time.Time{})))

		rec, err := db.Find("df31")
		require.NoError(t, err)
		require.False(t, rec.StartedAt.IsZero())
	})

	t.Run("update", func(t *testing.T) {
		db := testDB(t)

		rec := testRecord(testid, "github_search_issues", time.Now().UTC())
		require.NoError(t, db.Save(rec))

		rec.Status = StatusTimeout
		rec.Err = "gave no answer within 10m0s"
		require.NoError(t, db.Save(rec))

		got, err := db.Find("df31")
		require.NoError(t, err)
		require.Equal(t, testid, got.ID)
		require.Equal(t, StatusTimeout, got.Status)

		list := db.List()
		require.Len(t, list, 1)
	})

	t.Run("latest single", func(t *testing.T) {
		db := testDB(t)

		require.NoError(t, db.Save(testRecord(testid, "github_search_issues", time.Now().UTC())))

		head, err := db.Latest()
		require.NoError(t, err)
		require.Equal(t, testid, head.ID)
		require.Equal(t, "github_search_issues", head.Tool)
	})

	t.Run("latest empty", func(t *testing.T) {
		db := testDB(t)
		_, err := db.Latest()
		require.ErrorIs(t, err, ErrNoMatches)
	})

	t.Run("latest multiple", func(t *testing.T) {
		db := testDB(t)

		now := time.Now().UTC()
		require.NoError(t, db.Save(testRecord(testid, "github_search_issues", now.Add(-time.Minute))))
		next := NewCallID()
		require.NoError(t, db.Save(testRecord(next, "fetch_page", now)))

		head, err := db.Latest()
		require.NoError(t, err)
		require.Equal(t, next, head.ID)
		require.Equal(t, "fetch_page", head.Tool)

		list := db.List()
		require.Len(t, list, 2)
	})

	t.Run("find by tool", func(t *testing.T) {
		db := testDB(t)

		require.NoError(t, db.Save(testRecord(NewCallID(), "github_search_issues", time.Now().UTC())))
		require.NoError(t, db.Save(testRecord(testid, "fetch_page", time.Now().UTC())))

		rec, err := db.Find("fetch_page")
		require.NoError(t, err)
		require.Equal(t, testid, rec.ID)
		require.Equal(t, "fetch_page", rec.Tool)
	})

	t.Run("find short input matches tool", func(t *testing.T) {
		db := testDB(t)

		require.NoError(t, db.Save(testRecord(testid, "ls", time.Now().UTC())))

		rec, err := db.Find("ls")
		require.NoError(t, err)
		require.Equal(t, testid, rec.ID)
	})

	t.Run("find match nothing", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(testRecord(testid, "github_search_issues", time.Now().UTC())))
		_, err := db.Find("github")
		require.ErrorIs(t, err, ErrNoMatches)
	})

	t.Run("find match many", func(t *testing.T) {
		db := testDB(t)
		const testid2 = "df31ae23ab9b75b5641c2f846c571000edc71315"
		require.NoError(t, db.Save(testRecord(testid, "github_search_issues", time.Now().UTC())))
		require.NoError(t, db.Save(testRecord(testid2, "fetch_page", time.Now().UTC())))
		_, err := db.Find("df31ae")
		require.ErrorIs(t, err, ErrManyMatches)
	})

	t.Run("delete", func(t *testing.T) {
		db := testDB(t)

		require.NoError(t, db.Save(testRecord(testid, "github_search_issues", time.Now().UTC())))
		require.NoError(t, db.Delete(NewCallID()))

		list := db.List()
		require.NotEmpty(t, list)

		for _, item := range list {
			require.NoError(t, db.Delete(item.ID))
		}

		list = db.List()
		require.Empty(t, list)
	})

	t.Run("list older than", func(t *testing.T) {
		db := testDB(t)

		now := time.Now().UTC()
		require.NoError(t, db.Save(testRecord(testid, "github_search_issues", now.Add(-2*time.Hour))))
		require.NoError(t, db.Save(testRecord(NewCallID(), "fetch_page", now)))

		old := db.ListOlderThan(time.Hour)
		require.Len(t, old, 1)
		require.Equal(t, testid, old[0].ID)
	})

	t.Run("completions", func(t *testing.T) {
		db := testDB(t)

		const testid1 = "fc5012d8c67073ea0a46a3c05488a0e1d87df74b"
		const tool1 = "github_search_issues"
		const testid2 = "6c33f71694bf41a18c844a96d1f62f153e5f6f44"
		const tool2 = "fetch_page"
		require.NoError(t, db.Save(testRecord(testid1, tool1, time.Now().UTC())))
		require.NoError(t, db.Save(testRecord(testid2, tool2, time.Now().UTC())))

		results := db.Completions("f")
		require.Equal(t, []string{
			fmt.Sprintf("%s\t%s", testid1[:IDShort], tool1),
			fmt.Sprintf("%s\t%s", tool2, testid2[:IDShort]),
		}, results)

		results = db.Completions(testid1[:8])
		require.Equal(t, []string{
			fmt.Sprintf("%s\t%s", testid1, tool1),
		}, results)
	})

	t.Run("persists to jsonl index", func(t *testing.T) {
		dir := t.TempDir()

		db, err := Open(dir)
		require.NoError(t, err)
		require.NoError(t, db.Save(testRecord(testid, "github_search_issues", time.Now().UTC())))
		require.NoError(t, db.Close())

		db2, err := Open(dir)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, db2.Close())
		})

		rec, err := db2.Find(testid[:8])
		require.NoError(t, err)
		require.Equal(t, testid, rec.ID)

		_, err = os.Stat(filepath.Join(dir, indexFileName))
		require.NoError(t, err)
	})

	t.Run("compacts after many updates", func(t *testing.T) {
		dir := t.TempDir()

		db, err := Open(dir)
		require.NoError(t, err)
		for i := range 300 {
			rec := testRecord(testid, "github_search_issues", time.Now().UTC())
			rec.Duration = time.Duration(i) * time.Millisecond
			require.NoError(t, db.Save(rec))
		}
		require.NoError(t, db.Close())

		db2, err := Open(dir)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, db2.Close())
		})
		require.Len(t, db2.List(), 1)

		rec, err := db2.Find(testid[:8])
		require.NoError(t, err)
		require.Equal(t, 299*time.Millisecond, rec.Duration)
	})
}
