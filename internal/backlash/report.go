package backlash

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// AxisQuantiles summarizes one axis's dead-zone magnitude distribution
// across every logged correction.
type AxisQuantiles struct {
	Count      int     `json:"count"`
	P50        float64 `json:"p50"`
	P85        float64 `json:"p85"`
	P98        float64 `json:"p98"`
	MeanActual float64 `json:"mean_actual"`
}

// Summary is the quantile rollup across both mirror axes.
type Summary struct {
	M1 AxisQuantiles `json:"m1"`
	M2 AxisQuantiles `json:"m2"`
}

// Summary computes dead-zone quantiles and the mean actual step count
// over every corr row in the log.
func (l *Logger) Summary() (Summary, error) {
	rows, err := l.db.Query(`SELECT m1_dead_zone, m2_dead_zone, m1_actual, m2_actual FROM moves WHERE kind = 'corr'`)
	if err != nil {
		return Summary{}, fmt.Errorf("backlash: query: %w", err)
	}
	defer rows.Close()

	var m1dz, m2dz, m1act, m2act []float64
	for rows.Next() {
		var a, b, c, d int
		if err := rows.Scan(&a, &b, &c, &d); err != nil {
			return Summary{}, fmt.Errorf("backlash: scan: %w", err)
		}
		m1dz = append(m1dz, float64(a))
		m2dz = append(m2dz, float64(b))
		m1act = append(m1act, float64(c))
		m2act = append(m2act, float64(d))
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	return Summary{
		M1: axisQuantiles(m1dz, m1act),
		M2: axisQuantiles(m2dz, m2act),
	}, nil
}

// MoveSample is one logged correction row, in move order, for
// time-series plotting of dead-zone behavior across a run.
type MoveSample struct {
	MoveIndex  int
	M1DeadZone int
	M2DeadZone int
	M1Actual   int
	M2Actual   int
}

// Series returns every corr row in the log ordered by move index, for
// plotting dead-zone magnitude across a run.
func (l *Logger) Series() ([]MoveSample, error) {
	rows, err := l.db.Query(`SELECT move_index, m1_dead_zone, m2_dead_zone, m1_actual, m2_actual
		FROM moves WHERE kind = 'corr' ORDER BY move_index ASC`)
	if err != nil {
		return nil, fmt.Errorf("backlash: query: %w", err)
	}
	defer rows.Close()

	var out []MoveSample
	for rows.Next() {
		var s MoveSample
		if err := rows.Scan(&s.MoveIndex, &s.M1DeadZone, &s.M2DeadZone, &s.M1Actual, &s.M2Actual); err != nil {
			return nil, fmt.Errorf("backlash: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func axisQuantiles(deadZone, actual []float64) AxisQuantiles {
	if len(deadZone) == 0 {
		return AxisQuantiles{}
	}
	sort.Float64s(deadZone)
	return AxisQuantiles{
		Count:      len(deadZone),
		P50:        stat.Quantile(0.50, stat.Empirical, deadZone, nil),
		P85:        stat.Quantile(0.85, stat.Empirical, deadZone, nil),
		P98:        stat.Quantile(0.98, stat.Empirical, deadZone, nil),
		MeanActual: stat.Mean(actual, nil),
	}
}
