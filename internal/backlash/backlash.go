// Package backlash records every commanded mirror move and its
// dead-zone corrections to a SQLite log, for later offline analysis of
// stepper backlash. It is purely a logging sink: Correct (the
// in-flight backlash compensation hook) remains unimplemented, per the
// open design question of whether per-axis dead-zone correction
// belongs in the control loop at all.
package backlash

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rgbond/antctl/internal/geometry"
)

// entry is one buffered step in the current move: either the initial
// move command (hasLoc=false) or a subsequent correction/stop
// (hasLoc=true, recording the mirrors' actual location when it fired).
type entry struct {
	kind             string // "move" or "corr"
	lastM1, lastM2   int
	hasLoc           bool
	px, py           int
	m1Steps, m2Steps float64
	m1s, m2s         float64
}

// Logger buffers the steps of the move currently in progress and
// flushes them to the log database as a batch when the move stops,
// mirroring the original's per-move step_list/dumpit split.
type Logger struct {
	db *sql.DB

	runID      string
	moveIndex  int
	start      geometry.Loc
	target     geometry.Loc
	haveTarget bool
	entries    []entry
}

// Open opens (creating if needed) the SQLite log at path and migrates
// it to the latest schema.
func Open(path string) (*Logger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("backlash: open %s: %w", path, err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateToLatest(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Logger{db: db, runID: uuid.NewString()}, nil
}

// Close closes the underlying database handle.
func (l *Logger) Close() error { return l.db.Close() }

// Start begins logging a new commanded move: from and to are the
// mirrors' location before and after the move, last{M1,M2} the last
// nonzero per-axis step deltas commanded before it, and m1s/m2s the requested move
// magnitude. Any unflushed entries from a prior move are discarded.
func (l *Logger) Start(from, to geometry.Loc, lastM1, lastM2 int, m1s, m2s float64) {
	l.moveIndex++
	l.start = from
	l.target = to
	l.haveTarget = true
	l.entries = []entry{{
		kind:   "move",
		lastM1: lastM1, lastM2: lastM2,
		m1s: m1s, m2s: m2s,
	}}
}

// AddCorrection records one dead-zone correction step applied while
// chasing the current move's target.
func (l *Logger) AddCorrection(cur geometry.Loc, lastM1, lastM2 int, m1s, m2s float64) {
	if !l.haveTarget {
		return
	}
	l.entries = append(l.entries, entry{
		kind:    "corr",
		lastM1:  lastM1, lastM2: lastM2,
		hasLoc:  true,
		px:      cur.Px, py: cur.Py,
		m1Steps: cur.M1Steps, m2Steps: cur.M2Steps,
		m1s:     m1s, m2s: m2s,
	})
}

// Stop closes out the current move with a zero-magnitude terminal
// entry and flushes the whole move to the database.
func (l *Logger) Stop(cur geometry.Loc, lastM1, lastM2 int) error {
	if !l.haveTarget {
		return nil
	}
	l.entries = append(l.entries, entry{
		kind:    "corr",
		lastM1:  lastM1, lastM2: lastM2,
		hasLoc:  true,
		px:      cur.Px, py: cur.Py,
		m1Steps: cur.M1Steps, m2Steps: cur.M2Steps,
	})
	err := l.flush()
	l.haveTarget = false
	l.entries = nil
	return err
}

// Correct is the in-flight per-axis dead-zone compensation hook. It is
// intentionally a no-op: the original implementation's version was
// already disabled ("wrong, return"), and no replacement compensation
// algorithm is specified. Logging the moves this package records is
// what makes deriving one later possible.
func (l *Logger) Correct(m1s, m2s *float64) {}

// flush computes each buffered entry's suffix statistics (remaining
// actual step totals and dead-zone counts from this entry to the end
// of the move) and inserts one row per entry.
func (l *Logger) flush() error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("backlash: begin: %w", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO moves (
		run_id, move_index, kind,
		start_px, start_py, target_px, target_py,
		last_m1, last_m2, cur_px, cur_py, m1_delta, m2_delta,
		m1s, m2s, m1_actual, m2_actual, m1_dead_zone, m2_dead_zone,
		created_unix_nanos
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	for i, e := range l.entries {
		m1Actual, m2Actual := actuals(l.entries[i:])
		m1DZ, m2DZ := deadZone(l.entries[i:])

		var curPx, curPy, m1Delta, m2Delta any
		if e.hasLoc {
			curPx, curPy = e.px, e.py
			m1Delta = int(math.Round(l.target.M1Steps - e.m1Steps))
			m2Delta = int(math.Round(l.target.M2Steps - e.m2Steps))
		}

		if _, err := tx.Exec(insert,
			l.runID, l.moveIndex, e.kind,
			l.start.Px, l.start.Py, l.target.Px, l.target.Py,
			e.lastM1, e.lastM2, curPx, curPy, m1Delta, m2Delta,
			int(math.Round(e.m1s)), int(math.Round(e.m2s)),
			m1Actual, m2Actual, m1DZ, m2DZ,
			time.Now().UnixNano(),
		); err != nil {
			return fmt.Errorf("backlash: insert: %w", err)
		}
	}
	return tx.Commit()
}

// actuals sums the requested move magnitude over es, the suffix of the
// move's entries from the current one to its end.
func actuals(es []entry) (m1, m2 int) {
	for _, e := range es {
		m1 += int(math.Round(e.m1s))
		m2 += int(math.Round(e.m2s))
	}
	return m1, m2
}

// deadZone sums, over the same suffix, the magnitude of any step whose
// mirror-position sample didn't move along one axis from the previous
// sample — a sign the stepper was inside its backlash dead zone on
// that axis.
func deadZone(es []entry) (m1dz, m2dz int) {
	var prev *entry
	for i := range es {
		e := &es[i]
		if e.hasLoc && prev != nil && prev.hasLoc {
			if prev.px == e.px {
				m2dz += int(math.Round(math.Abs(prev.m2s)))
			}
			if prev.py == e.py {
				m1dz += int(math.Round(math.Abs(prev.m1s)))
			}
		}
		prev = e
	}
	return m1dz, m2dz
}
