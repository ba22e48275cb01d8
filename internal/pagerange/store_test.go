package pagerange

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRangeForDefaults(t *testing.T) {
	s := NewFileStore("", []string{"42"})

	if _, limit := s.RangeFor("unknown"); limit != defaultLimit {
		t.Errorf("unknown entity limit = %d, want %d", limit, defaultLimit)
	}
	if _, limit := s.RangeFor("42"); limit != generousLimit {
		t.Errorf("high-volume entity limit = %d, want %d", limit, generousLimit)
	}
	if offset, _ := s.RangeFor("unknown"); offset != 0 {
		t.Errorf("offset = %d, want 0", offset)
	}
}

func TestObserveGrowsLimitWithHeadroom(t *testing.T) {
	tests := []struct {
		count     int
		wantLimit int
	}{
		{50, 100},
		{100, 200},
		{2700, 3000},
		{9999, 10000},
		{19999, 20000},
		{50000, ceilingLimit},
	}

	for _, tt := range tests {
		s2 := NewFileStore("", nil)
		s2.Observe("t", "Tech", tt.count)
		if _, limit := s2.RangeFor("t"); limit != tt.wantLimit {
			t.Errorf("after Observe(%d): limit = %d, want %d", tt.count, limit, tt.wantLimit)
		}
	}

	// The invariant behind the disappearing-technician incident: the limit
	// after observing count C must always cover C.
	for _, count := range []int{1, 99, 100, 2700, 4999, 20000, 100000} {
		s3 := NewFileStore("", nil)
		s3.Observe("t", "", count)
		if _, limit := s3.RangeFor("t"); limit < count && limit != ceilingLimit {
			t.Errorf("Observe(%d) left limit %d below the observed count", count, limit)
		}
	}
}

func TestObserveNeverShrinks(t *testing.T) {
	s := NewFileStore("", nil)

	s.Observe("t", "Tech", 2700) // limit 3000
	s.Observe("t", "Tech", 120)  // a quieter week must not shrink the range

	if _, limit := s.RangeFor("t"); limit != 3000 {
		t.Errorf("limit = %d, want 3000 (monotonic within a session)", limit)
	}

	snap := s.Snapshot()
	if snap["t"].LastObservedCount != 120 {
		t.Errorf("LastObservedCount = %d, want 120 (latest observation)", snap["t"].LastObservedCount)
	}
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.json")

	s := NewFileStore(path, nil)
	s.Observe("7", "Alice", 2700)
	s.Observe("9", "Bob", 40)
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	reloaded := NewFileStore(path, nil)
	if _, limit := reloaded.RangeFor("7"); limit != 3000 {
		t.Errorf("reloaded limit for 7 = %d, want 3000", limit)
	}
	if _, limit := reloaded.RangeFor("9"); limit != 100 {
		t.Errorf("reloaded limit for 9 = %d, want 100", limit)
	}

	snap := reloaded.Snapshot()
	if snap["7"].Name != "Alice" {
		t.Errorf("reloaded name = %q, want Alice", snap["7"].Name)
	}
}

func TestMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	s := NewFileStore(path, nil)
	if _, limit := s.RangeFor("x"); limit != defaultLimit {
		t.Errorf("limit = %d, want default after missing file", limit)
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path, nil)
	if _, limit := s.RangeFor("x"); limit != defaultLimit {
		t.Errorf("limit = %d, want default after corrupt file", limit)
	}
}

func TestPersistFailureDegradesToMemory(t *testing.T) {
	// Point the store at a path whose parent is a file: writes must fail,
	// but the store keeps serving from memory.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(filepath.Join(blocker, "ranges.json"), nil)
	s.Observe("t", "Tech", 500)
	if err := s.Persist(); err == nil {
		t.Error("Persist() into unwritable path returned nil error")
	}
	if _, limit := s.RangeFor("t"); limit != 1000 {
		t.Errorf("limit = %d, want 1000 despite persist failure", limit)
	}
}

func TestSweepShrinksOnlyStaleEntries(t *testing.T) {
	s := NewFileStore("", nil)

	s.Observe("stale", "", 80) // limit 100
	s.entries["stale"].OptimalRangeLimit = 5000
	s.entries["stale"].LastUpdated = time.Now().Add(-48 * time.Hour)

	s.Observe("fresh", "", 80)
	s.entries["fresh"].OptimalRangeLimit = 5000

	s.Sweep(24 * time.Hour)

	if _, limit := s.RangeFor("stale"); limit != 100 {
		t.Errorf("stale limit = %d, want 100 after sweep", limit)
	}
	if _, limit := s.RangeFor("fresh"); limit != 5000 {
		t.Errorf("fresh limit = %d, want 5000 (untouched by sweep)", limit)
	}
}
