package main

import (
	"testing"
	"time"

	"github.com/dotcommander/crew/internal/history"
)

func BenchmarkIndexReplayComparison(b *testing.B) {
	const calls = 64

	b.Run("one_event_per_call", func(b *testing.B) {
		dir := seedBenchmarkCalls(b, calls, 1)
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			openBenchmarkIndex(b, dir)
		}
	})

	b.Run("three_events_per_call", func(b *testing.B) {
		dir := seedBenchmarkCalls(b, calls, 3)
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			openBenchmarkIndex(b, dir)
		}
	})
}

func openBenchmarkIndex(b *testing.B, dir string) {
	b.Helper()
	db, err := history.Open(dir)
	if err != nil {
		b.Fatal(err)
	}
	if err := db.Close(); err != nil {
		b.Fatal(err)
	}
}

// seedBenchmarkCalls writes a call index where every call was saved the
// given number of times, so replay cost reflects the event count rather
// than the call count. The totals stay below the compaction threshold.
func seedBenchmarkCalls(b *testing.B, calls, saves int) string {
	b.Helper()
	dir := b.TempDir()
	db, err := history.Open(dir)
	if err != nil {
		b.Fatal(err)
	}
	started := time.Now().UTC()
	for i := range calls {
		rec := history.Record{
			ID:        history.NewCallID(),
			Server:    "github",
			Tool:      "github_search_issues",
			Status:    history.StatusOK,
			StartedAt: started.Add(time.Duration(i) * time.Second),
		}
		for s := range saves {
			rec.Duration = time.Duration(s+1) * 100 * time.Millisecond
			if err := db.Save(rec); err != nil {
				b.Fatal(err)
			}
		}
	}
	if err := db.Close(); err != nil {
		b.Fatal(err)
	}
	return dir
}
