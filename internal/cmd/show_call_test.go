package cmd

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/crew/internal/config"
	"github.com/dotcommander/crew/internal/history"
	"github.com/dotcommander/crew/internal/history/payload"
)

func captureStdout(tb testing.TB, fn func()) string {
	tb.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(tb, err)
	os.Stdout = w

	fn()

	require.NoError(tb, w.Close())
	os.Stdout = orig

	out, err := io.ReadAll(r)
	require.NoError(tb, err)
	require.NoError(tb, r.Close())
	return string(out)
}

func TestShowCall_Headless(t *testing.T) {
	store, tmpDir := newTestCallStore(t)

	cfg := config.Config{}
	cfg.CachePath = tmpDir

	rec1 := testCall(history.NewCallID(), "github_search_issues", time.Now().Add(-time.Hour).UTC())
	p1 := payload.Payload{
		Params: map[string]any{"query": "is:open label:bug"},
		Output: "Found 3 issues.",
	}
	require.NoError(t, store.Payloads.Write(rec1.ID, p1))
	require.NoError(t, store.DB.Save(rec1))

	rec2 := testCall(history.NewCallID(), "fetch_page", time.Now().UTC())
	p2 := payload.Payload{
		Params: map[string]any{"url": "https://example.com"},
		Output: "# Example\n\nSome page.",
	}
	require.NoError(t, store.Payloads.Write(rec2.ID, p2))
	require.NoError(t, store.DB.Save(rec2))

	t.Run("show by id prefix", func(t *testing.T) {
		out := captureStdout(t, func() {
			require.NoError(t, showCall(&cfg, rec1.ID[:8], false))
		})
		require.Equal(t, renderCallRecord(rec1, p1), out)
	})

	t.Run("show by tool", func(t *testing.T) {
		out := captureStdout(t, func() {
			require.NoError(t, showCall(&cfg, "github_search_issues", false))
		})
		require.Equal(t, renderCallRecord(rec1, p1), out)
	})

	t.Run("show last", func(t *testing.T) {
		out := captureStdout(t, func() {
			require.NoError(t, showCall(&cfg, "", false))
		})
		require.Equal(t, renderCallRecord(rec2, p2), out)
	})
}

func TestRenderCallRecord(t *testing.T) {
	rec := history.Record{
		ID:        "fc5012d86339a3518a858d1e1a4bb490e98dc06b",
		Server:    "github",
		Tool:      "github_search_issues",
		Status:    history.StatusTimeout,
		Err:       "github_search_issues gave no answer within 10m0s",
		StartedAt: time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC),
		Duration:  10 * time.Minute,
	}
	p := payload.Payload{
		Params: map[string]any{"query": "is:open"},
	}

	out := renderCallRecord(rec, p)
	require.Contains(t, out, "# github_search_issues\n")
	require.Contains(t, out, "- Server: github\n")
	require.Contains(t, out, "- Status: timeout\n")
	require.Contains(t, out, "- Error: github_search_issues gave no answer within 10m0s\n")
	require.Contains(t, out, "## Params")
	require.Contains(t, out, "```json")
	require.NotContains(t, out, "## Output")
}
