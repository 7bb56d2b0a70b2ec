package telemetry

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkContactSurge   BookmarkType = "contact_surge"
	BookmarkSolverDegraded BookmarkType = "solver_degraded"
	BookmarkSolverRecovery BookmarkType = "solver_recovery"
	BookmarkSettled        BookmarkType = "settled"
)

// Bookmark marks a window worth looking at.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Step        int          `csv:"step"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"step", b.Step,
		"description", b.Description,
	)
}

// BookmarkDetector watches successive windows for notable changes in the
// contact load and solver behaviour.
type BookmarkDetector struct {
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	degraded      bool
	settledCount  int
	settledMarked bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest window and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(ws WindowStats) []Bookmark {
	var bookmarks []Bookmark
	for _, check := range []func(WindowStats) *Bookmark{
		bd.checkContactSurge,
		bd.checkSolver,
		bd.checkSettled,
	} {
		if b := check(ws); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}
	bd.addToHistory(ws)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(ws WindowStats) {
	bd.history[bd.historyIdx] = ws
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// checkContactSurge fires when the peak point count is more than twice the
// rolling mean.
func (bd *BookmarkDetector) checkContactSurge(ws WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}
	means := make([]float64, len(history))
	for i, h := range history {
		means[i] = h.PointsMean
	}
	avg := stat.Mean(means, nil)
	if avg <= 0 {
		return nil
	}
	if float64(ws.PointsMax) > 2*avg && ws.PointsMax >= 4 {
		return &Bookmark{
			Type:        BookmarkContactSurge,
			Step:        ws.WindowEnd,
			Description: fmt.Sprintf("Peak of %d contact points is %.1fx average (%.1f)", ws.PointsMax, float64(ws.PointsMax)/avg, avg),
		}
	}
	return nil
}

// checkSolver fires once when more than half the solves of a window stop
// at the iteration cap, and once more when a later window has none.
func (bd *BookmarkDetector) checkSolver(ws WindowStats) *Bookmark {
	if ws.Solves == 0 {
		return nil
	}
	frac := float64(ws.NotConverged) / float64(ws.Solves)
	switch {
	case !bd.degraded && frac > 0.5:
		bd.degraded = true
		return &Bookmark{
			Type:        BookmarkSolverDegraded,
			Step:        ws.WindowEnd,
			Description: fmt.Sprintf("%d of %d solves hit the iteration cap (residual max %.3g)", ws.NotConverged, ws.Solves, ws.ResidualMax),
		}
	case bd.degraded && ws.NotConverged == 0:
		bd.degraded = false
		return &Bookmark{
			Type:        BookmarkSolverRecovery,
			Step:        ws.WindowEnd,
			Description: fmt.Sprintf("All %d solves converged (%.1f iterations on average)", ws.Solves, ws.IterationsMean),
		}
	}
	return nil
}

// checkSettled fires once after five consecutive windows with a constant
// non-zero contact count and no warnings.
func (bd *BookmarkDetector) checkSettled(ws WindowStats) *Bookmark {
	if bd.settledMarked {
		return nil
	}
	steady := ws.ContactsMax > 0 && float64(ws.ContactsMax) == ws.ContactsMean && ws.Warnings == 0
	if history := bd.getHistory(); steady && len(history) > 0 {
		prev := history[(bd.historyIdx+bd.historySize-1)%bd.historySize]
		steady = prev.ContactsMax == ws.ContactsMax
	}
	if !steady {
		bd.settledCount = 0
		return nil
	}
	bd.settledCount++
	if bd.settledCount < 5 {
		return nil
	}
	bd.settledMarked = true
	return &Bookmark{
		Type:        BookmarkSettled,
		Step:        ws.WindowEnd,
		Description: fmt.Sprintf("Contact set steady at %d contacts over 5 windows", ws.ContactsMax),
	}
}
