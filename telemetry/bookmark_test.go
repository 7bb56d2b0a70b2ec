package telemetry

import "testing"

func hasBookmark(bms []Bookmark, typ BookmarkType) bool {
	for _, bm := range bms {
		if bm.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_ContactSurge(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEnd: i * 100, PointsMean: 3, PointsMax: 4})
	}

	bms := bd.Check(WindowStats{WindowEnd: 500, PointsMean: 6, PointsMax: 12})
	if !hasBookmark(bms, BookmarkContactSurge) {
		t.Error("expected contact_surge bookmark")
	}
}

func TestBookmarkDetector_NoSurgeWithoutHistory(t *testing.T) {
	bd := NewBookmarkDetector(10)
	bms := bd.Check(WindowStats{PointsMean: 6, PointsMax: 100})
	if hasBookmark(bms, BookmarkContactSurge) {
		t.Error("surge reported without history")
	}
}

func TestBookmarkDetector_SolverDegradedAndRecovery(t *testing.T) {
	bd := NewBookmarkDetector(10)

	bms := bd.Check(WindowStats{WindowEnd: 100, Solves: 10, NotConverged: 8})
	if !hasBookmark(bms, BookmarkSolverDegraded) {
		t.Fatal("expected solver_degraded bookmark")
	}

	// Still degraded: no repeat.
	bms = bd.Check(WindowStats{WindowEnd: 200, Solves: 10, NotConverged: 9})
	if hasBookmark(bms, BookmarkSolverDegraded) {
		t.Error("solver_degraded reported twice")
	}

	bms = bd.Check(WindowStats{WindowEnd: 300, Solves: 10, NotConverged: 0})
	if !hasBookmark(bms, BookmarkSolverRecovery) {
		t.Error("expected solver_recovery bookmark")
	}
}

func TestBookmarkDetector_Settled(t *testing.T) {
	bd := NewBookmarkDetector(10)

	var fired int
	for i := 0; i < 8; i++ {
		bms := bd.Check(WindowStats{WindowEnd: i * 100, ContactsMean: 4, ContactsMax: 4})
		if hasBookmark(bms, BookmarkSettled) {
			fired++
			if i != 4 {
				t.Errorf("settled fired at window %d, want 4", i)
			}
		}
	}
	if fired != 1 {
		t.Errorf("settled fired %d times, want 1", fired)
	}
}

func TestBookmarkDetector_SettledResetsOnChange(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 4; i++ {
		bd.Check(WindowStats{ContactsMean: 4, ContactsMax: 4})
	}
	bms := bd.Check(WindowStats{ContactsMean: 4.5, ContactsMax: 5})
	if hasBookmark(bms, BookmarkSettled) {
		t.Error("settled reported while contact count changed")
	}
}
